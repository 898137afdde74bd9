// Package feeds manages feed subscriptions shared by the HTTP API, the CLI and the
// startup seed list.
package feeds

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"river/config"
	"river/db"
	"river/models"
	"river/urls"

	log "github.com/sirupsen/logrus"
)

// Store is the feed persistence used by subscriptions
type Store interface {
	ListFeeds(ctx context.Context) ([]*models.Feed, error)
	CreateFeed(ctx context.Context, url, normalizedURL, title string, now time.Time) (*models.Feed, error)
	DeleteFeed(ctx context.Context, id string) (int64, error)
}

// Subscribe validates and normalizes rawURL and adds the feed. A blank title
// defaults to the normalized URL. Errors are urls.ErrInvalidURL or db.ErrDuplicateFeed
// for bad input.
func Subscribe(ctx context.Context, store Store, rawURL, title string) (*models.Feed, error) {
	rawURL = strings.TrimSpace(rawURL)
	normalized, err := urls.NormalizeFeedURL(rawURL)
	if err != nil {
		return nil, err
	}

	return store.CreateFeed(ctx, rawURL, normalized, strings.TrimSpace(title), time.Now())
}

// Unsubscribe deletes a feed and the items only it reported
func Unsubscribe(ctx context.Context, store Store, id string) error {
	_, err := store.DeleteFeed(ctx, strings.TrimSpace(id))
	return err
}

// Seed subscribes every configured feed that is not yet present and returns how many
// were added
func Seed(ctx context.Context, store Store, configured []config.TomlFeed) (int, error) {
	added := 0
	for _, feed := range configured {
		_, err := Subscribe(ctx, store, feed.Url, feed.Title)
		switch {
		case err == nil:
			added++
		case errors.Is(err, db.ErrDuplicateFeed):
			continue
		case errors.Is(err, urls.ErrInvalidURL):
			log.WithField("url", feed.Url).Warn("Skipping configured feed with invalid url")
		default:
			return added, fmt.Errorf("seed feed %s: %w", feed.Url, err)
		}
	}

	if added > 0 {
		log.WithField("count", added).Info("Seeded feeds from config")
	}
	return added, nil
}

// Find returns the subscribed feed whose id or normalized URL matches ref
func Find(ctx context.Context, store Store, ref string) (*models.Feed, error) {
	ref = strings.TrimSpace(ref)
	normalized, _ := urls.NormalizeFeedURL(ref)

	all, err := store.ListFeeds(ctx)
	if err != nil {
		return nil, err
	}
	for _, feed := range all {
		if feed.Id == ref || (normalized != "" && feed.NormalizedUrl == normalized) {
			return feed, nil
		}
	}
	return nil, db.ErrNotFound
}
