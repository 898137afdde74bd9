// Package identity derives the canonical key that collapses the same article reported
// by several feeds into one river item.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"river/syndication"
)

const (
	guidPrefix   = "guid:"
	urlPrefix    = "url:"
	uniquePrefix = "unique:"
)

// SourceGUID returns the publisher supplied identifier of an item, preferring an
// explicit id over an RSS guid. Empty when neither is present.
func SourceGUID(item *syndication.Item) string {
	if item == nil {
		return ""
	}
	if id := strings.TrimSpace(item.ID); id != "" {
		return id
	}
	return strings.TrimSpace(item.GUID)
}

// BuildCanonicalKey returns the deduplication key of an item. The fingerprint fallback
// includes the feed id, so items without guid or link only merge within one feed.
func BuildCanonicalKey(feedID string, item *syndication.Item, canonicalURL string) string {
	if guid := SourceGUID(item); guid != "" {
		return guidPrefix + guid
	}
	if canonicalURL != "" {
		return urlPrefix + canonicalURL
	}
	return uniquePrefix + fingerprint(feedID, item)
}

func fingerprint(feedID string, item *syndication.Item) string {
	var title, link, plain string
	var published, updated *time.Time
	if item != nil {
		title, link, plain = item.Title, item.Link, item.Content.PlainText
		published, updated = item.Published, item.Updated
	}

	material := strings.Join([]string{
		feedID,
		title,
		link,
		formatTime(published),
		formatTime(updated),
		plain,
	}, "|")

	sum := sha256.Sum256([]byte(material))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
