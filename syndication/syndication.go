// Package syndication is the feed fetching capability consumed by the ingestion engine.
// The parsed model is format-neutral; GofeedClient fills it from RSS, Atom and JSON Feed.
package syndication

import (
	"context"
	"fmt"
	"time"
)

type Client interface {
	FetchFeed(ctx context.Context, url string) (*Feed, error)
}

type Feed struct {
	Title string
	Link  string
	Items []*Item
}

type Item struct {
	// ID is an explicit entry id (Atom id, JSON Feed id)
	ID string
	// GUID is the RSS guid
	GUID       string
	Title      string
	Link       string
	Published  *time.Time
	Updated    *time.Time
	Content    Content
	Media      Media
	Enclosures []Enclosure
}

type Content struct {
	PlainText string
	HTML      string
}

type Media struct {
	ThumbnailURL string
	URL          string
}

type Enclosure struct {
	URL      string
	MimeType string
}

// FetchError describes why a feed could not be retrieved or parsed
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: http status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
