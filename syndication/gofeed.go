package syndication

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"
	log "github.com/sirupsen/logrus"
)

const DefaultUserAgent = "RiverOfNews/1.0"

// GofeedClient fetches feeds over HTTP and parses them with gofeed
type GofeedClient struct {
	timeout   time.Duration
	userAgent string
	client    *http.Client
}

func NewGofeedClient(timeout time.Duration, userAgent string) *GofeedClient {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   timeout,
		ResponseHeaderTimeout: timeout,
	}

	return &GofeedClient{
		timeout:   timeout,
		userAgent: userAgent,
		client:    &http.Client{Transport: transport},
	}
}

func (c *GofeedClient) FetchFeed(ctx context.Context, url string) (*Feed, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	// gofeed parsers keep per-document state, so one per fetch
	parser := gofeed.NewParser()
	parser.Client = c.client
	parser.UserAgent = c.userAgent

	start := time.Now()
	parsed, err := parser.ParseURLWithContext(url, ctx)
	if err != nil {
		fetchErr := &FetchError{URL: url, Err: err}
		var httpErr gofeed.HTTPError
		if errors.As(err, &httpErr) {
			fetchErr.StatusCode = httpErr.StatusCode
		}
		return nil, fetchErr
	}

	log.WithFields(log.Fields{
		"url":      url,
		"type":     parsed.FeedType,
		"items":    len(parsed.Items),
		"duration": time.Since(start),
	}).Debug("Fetched feed")

	return fromGofeed(parsed), nil
}

func fromGofeed(parsed *gofeed.Feed) *Feed {
	feed := &Feed{
		Title: strings.TrimSpace(parsed.Title),
		Link:  parsed.Link,
		Items: make([]*Item, 0, len(parsed.Items)),
	}

	for _, entry := range parsed.Items {
		if entry == nil {
			continue
		}
		feed.Items = append(feed.Items, fromGofeedItem(parsed.FeedType, entry))
	}

	return feed
}

func fromGofeedItem(feedType string, entry *gofeed.Item) *Item {
	item := &Item{
		Title:     entry.Title,
		Link:      entry.Link,
		Published: entry.PublishedParsed,
		Updated:   entry.UpdatedParsed,
	}

	// gofeed folds rss guid and atom/json id into one field
	if feedType == "rss" {
		item.GUID = entry.GUID
	} else {
		item.ID = entry.GUID
	}

	if item.Link == "" && len(entry.Links) > 0 {
		item.Link = entry.Links[0]
	}

	item.Content = splitContent(entry.Content, entry.Description)
	item.Media = mediaFromExtensions(entry.Extensions)
	if item.Media.ThumbnailURL == "" && entry.Image != nil {
		item.Media.ThumbnailURL = entry.Image.URL
	}

	for _, enc := range entry.Enclosures {
		if enc == nil {
			continue
		}
		item.Enclosures = append(item.Enclosures, Enclosure{URL: enc.URL, MimeType: enc.Type})
	}

	return item
}

// splitContent sorts the body into plain text and markup. A description without
// markup is the plain-text body; otherwise it only stands in for missing content.
func splitContent(content, description string) Content {
	var c Content
	if looksLikeMarkup(description) {
		c.HTML = description
	} else {
		c.PlainText = strings.TrimSpace(description)
	}
	if strings.TrimSpace(content) != "" {
		c.HTML = content
	}
	return c
}

func looksLikeMarkup(s string) bool {
	open := strings.Index(s, "<")
	return open >= 0 && strings.Contains(s[open:], ">")
}

func mediaFromExtensions(extensions ext.Extensions) Media {
	var media Media

	mediaExt, ok := extensions["media"]
	if !ok {
		return media
	}

	media.ThumbnailURL = firstAttr(mediaExt["thumbnail"], "url")
	media.URL = firstAttr(mediaExt["content"], "url")

	// media:group wraps thumbnail/content in some feeds (YouTube)
	for _, group := range mediaExt["group"] {
		if media.ThumbnailURL == "" {
			media.ThumbnailURL = firstAttr(group.Children["thumbnail"], "url")
		}
		if media.URL == "" {
			media.URL = firstAttr(group.Children["content"], "url")
		}
	}

	return media
}

func firstAttr(elements []ext.Extension, attr string) string {
	for _, el := range elements {
		if v := strings.TrimSpace(el.Attrs[attr]); v != "" {
			return v
		}
	}
	return ""
}
