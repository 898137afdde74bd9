// Package ingest polls subscribed feeds and folds their entries into the river.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"river/content"
	"river/db"
	"river/identity"
	"river/models"
	"river/scheduler"
	"river/syndication"
	"river/urls"

	log "github.com/sirupsen/logrus"
)

const untitled = "(untitled)"

// Store is the persistence the engine needs
type Store interface {
	ListFeedsForPolling(ctx context.Context) ([]*models.Feed, error)
	MarkFeedFailed(ctx context.Context, id string, failures int, status models.FeedStatus, message string, now time.Time) error
	CommitFeedSuccess(ctx context.Context, feedID string, items []db.NewItem, now time.Time) (db.CommitResult, error)
}

type Options struct {
	Policy        scheduler.Policy
	SnippetLength int
	// Now overrides the clock, mostly for tests
	Now func() time.Time
}

type Engine struct {
	store         Store
	client        syndication.Client
	policy        scheduler.Policy
	snippetLength int
	now           func() time.Time
}

func NewEngine(store Store, client syndication.Client, opts Options) *Engine {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.SnippetLength <= 0 {
		opts.SnippetLength = content.DefaultSnippetLength
	}
	if opts.Policy == (scheduler.Policy{}) {
		opts.Policy = scheduler.DefaultPolicy()
	}

	return &Engine{
		store:         store,
		client:        client,
		policy:        opts.Policy,
		snippetLength: opts.SnippetLength,
		now:           func() time.Time { return opts.Now().UTC() },
	}
}

// RefreshAllFeeds polls every feed regardless of schedule
func (e *Engine) RefreshAllFeeds(ctx context.Context) (models.RefreshResult, error) {
	return e.RefreshAll(ctx, true)
}

// RefreshDueFeeds polls the feeds the scheduler considers due
func (e *Engine) RefreshDueFeeds(ctx context.Context) (models.RefreshResult, error) {
	return e.RefreshAll(ctx, false)
}

// RefreshAll runs one ingestion cycle. Fetch failures are recorded on the feed and
// never returned; a storage error aborts the cycle and is returned together with the
// counts so far.
func (e *Engine) RefreshAll(ctx context.Context, force bool) (models.RefreshResult, error) {
	result := models.RefreshResult{Status: "completed"}

	start := time.Now()
	cyclesRunning.Inc()
	defer func() {
		cyclesRunning.Dec()
		cycleDuration.Observe(time.Since(start).Seconds())
	}()

	feeds, err := e.store.ListFeedsForPolling(ctx)
	if err != nil {
		return result, fmt.Errorf("list feeds: %w", err)
	}

	for _, feed := range feeds {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if !force && !e.policy.IsDue(feed, e.now()) {
			result.SkippedFeedCount++
			feedsProcessed.WithLabelValues(outcomeSkipped).Inc()
			continue
		}

		if err := e.refreshFeed(ctx, feed, &result); err != nil {
			return result, err
		}
	}

	log.WithFields(log.Fields{
		"force":     force,
		"processed": result.ProcessedFeedCount,
		"success":   result.SuccessFeedCount,
		"failed":    result.FailedFeedCount,
		"skipped":   result.SkippedFeedCount,
		"inserted":  result.InsertedItemCount,
		"merged":    result.MergedItemCount,
		"duration":  time.Since(start),
	}).Info("Refresh cycle completed")

	return result, nil
}

func (e *Engine) refreshFeed(ctx context.Context, feed *models.Feed, result *models.RefreshResult) error {
	fetchStart := time.Now()
	parsed, err := e.client.FetchFeed(ctx, feed.Url)
	fetchDuration.Observe(time.Since(fetchStart).Seconds())

	if err != nil {
		// Shutting down is not the feed's fault
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return e.recordFailure(ctx, feed, err, result)
	}
	if parsed == nil {
		return e.recordFailure(ctx, feed, errors.New("empty feed document"), result)
	}

	now := e.now()
	items := e.PrepareItems(feed, parsed, now)

	commit, err := e.store.CommitFeedSuccess(ctx, feed.Id, items, now)
	if errors.Is(err, db.ErrNotFound) {
		log.WithField("feedId", feed.Id).Info("Feed removed during refresh, skipping")
		feedsProcessed.WithLabelValues(outcomeRemoved).Inc()
		return nil
	}
	if err != nil {
		return fmt.Errorf("commit feed %s: %w", feed.Id, err)
	}

	result.ProcessedFeedCount++
	result.SuccessFeedCount++
	result.InsertedItemCount += commit.Inserted
	result.MergedItemCount += commit.Merged
	feedsProcessed.WithLabelValues(outcomeSuccess).Inc()
	itemsIngested.WithLabelValues("inserted").Add(float64(commit.Inserted))
	itemsIngested.WithLabelValues("merged").Add(float64(commit.Merged))

	log.WithFields(log.Fields{
		"feedId":   feed.Id,
		"url":      feed.NormalizedUrl,
		"items":    len(items),
		"inserted": commit.Inserted,
		"merged":   commit.Merged,
	}).Debug("Feed refreshed")

	return nil
}

func (e *Engine) recordFailure(ctx context.Context, feed *models.Feed, fetchErr error, result *models.RefreshResult) error {
	failures, status := e.policy.MarkFailure(feed.ConsecutiveFailures)

	log.WithFields(log.Fields{
		"feedId":   feed.Id,
		"url":      feed.NormalizedUrl,
		"failures": failures,
		"status":   status,
		"error":    fetchErr,
	}).Warn("Feed fetch failed")

	err := e.store.MarkFeedFailed(ctx, feed.Id, failures, status, fetchErr.Error(), e.now())
	if errors.Is(err, db.ErrNotFound) {
		feedsProcessed.WithLabelValues(outcomeRemoved).Inc()
		return nil
	}
	if err != nil {
		return fmt.Errorf("record failure for feed %s: %w", feed.Id, err)
	}

	result.ProcessedFeedCount++
	result.FailedFeedCount++
	feedsProcessed.WithLabelValues(outcomeFailed).Inc()
	return nil
}

// PrepareItems derives the stored form of every entry of a fetched feed
func (e *Engine) PrepareItems(feed *models.Feed, parsed *syndication.Feed, now time.Time) []db.NewItem {
	items := make([]db.NewItem, 0, len(parsed.Items))
	for _, entry := range parsed.Items {
		if entry == nil {
			continue
		}
		items = append(items, e.prepareItem(feed, entry, now))
	}
	return items
}

func (e *Engine) prepareItem(feed *models.Feed, entry *syndication.Item, now time.Time) db.NewItem {
	link := strings.TrimSpace(entry.Link)
	canonicalURL, _ := urls.CanonicalizeArticleURL(link)

	title := strings.TrimSpace(entry.Title)
	if title == "" {
		title = untitled
	}

	itemURL := link
	if itemURL == "" {
		itemURL = feed.Url
	}

	publishedAt := now
	if entry.Published != nil {
		publishedAt = entry.Published.UTC()
	} else if entry.Updated != nil {
		publishedAt = entry.Updated.UTC()
	}

	imageURL, _ := content.BuildImageURL(entry)

	return db.NewItem{
		CanonicalKey:  identity.BuildCanonicalKey(feed.Id, entry, canonicalURL),
		Guid:          identity.SourceGUID(entry),
		Url:           itemURL,
		CanonicalUrl:  canonicalURL,
		ImageUrl:      imageURL,
		Title:         title,
		Snippet:       content.BuildSnippet(entry, e.snippetLength),
		PublishedAt:   publishedAt,
		IngestedAt:    now,
		SourceItemUrl: link,
	}
}
