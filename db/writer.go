package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	sqlbuilder "github.com/huandu/go-sqlbuilder"
	log "github.com/sirupsen/logrus"
)

// NewItem is an item prepared for storage by the ingestion engine
type NewItem struct {
	CanonicalKey  string
	Guid          string
	Url           string
	CanonicalUrl  string
	ImageUrl      string
	Title         string
	Snippet       string
	PublishedAt   time.Time
	IngestedAt    time.Time
	SourceItemUrl string
}

type CommitResult struct {
	Inserted int
	Merged   int
}

// CommitFeedSuccess stores the items of one successful poll and marks the feed healthy,
// all in a single transaction. Items whose canonical key already exists keep their
// stored content and only gain this feed as a source. ErrNotFound means the feed no
// longer exists.
func (db *DB) CommitFeedSuccess(ctx context.Context, feedID string, items []NewItem, now time.Time) (CommitResult, error) {
	var result CommitResult

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		result = CommitResult{}

		// The feed may have been removed while it was being fetched
		if err := feedExistsTx(ctx, tx, feedID); err != nil {
			return err
		}

		for _, item := range items {
			itemID, inserted, err := upsertItem(ctx, tx, item, now)
			if err != nil {
				return err
			}
			if inserted {
				result.Inserted++
			} else {
				result.Merged++
			}

			if err := insertSource(ctx, tx, itemID, feedID, item, now); err != nil {
				return err
			}
		}

		return markFeedHealthy(ctx, tx, feedID, now)
	})
	if err != nil {
		return CommitResult{}, err
	}

	log.WithFields(log.Fields{
		"feedId":   feedID,
		"items":    len(items),
		"inserted": result.Inserted,
		"merged":   result.Merged,
	}).Debug("Committed feed items")

	return result, nil
}

func upsertItem(ctx context.Context, tx *sql.Tx, item NewItem, now time.Time) (string, bool, error) {
	id := uuid.NewString()
	ingestedAt := item.IngestedAt
	if ingestedAt.IsZero() {
		ingestedAt = now
	}

	ib := sqlbuilder.NewInsertBuilder()
	ib.InsertInto("items").
		Cols("id", "canonical_key", "guid", "url", "canonical_url", "image_url", "title", "snippet",
			"published_at", "ingested_at", "created_at", "updated_at").
		Values(id, item.CanonicalKey, nullableString(item.Guid), item.Url, nullableString(item.CanonicalUrl),
			nullableString(item.ImageUrl), item.Title, item.Snippet,
			FormatTime(item.PublishedAt), FormatTime(ingestedAt), FormatTime(now), FormatTime(now))
	ib.SQL("ON CONFLICT(canonical_key) DO NOTHING")
	query, args := ib.BuildWithFlavor(sqlbuilder.SQLite)

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return "", false, fmt.Errorf("insert item: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return id, true, nil
	}

	// Lost the race or seen before: reuse the stored row
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select("id").From("items").Where(sb.Equal("canonical_key", item.CanonicalKey))
	query, args = sb.BuildWithFlavor(sqlbuilder.SQLite)

	var existing string
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&existing); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, fmt.Errorf("item %s vanished after conflict", item.CanonicalKey)
		}
		return "", false, fmt.Errorf("lookup item: %w", err)
	}
	return existing, false, nil
}

func insertSource(ctx context.Context, tx *sql.Tx, itemID, feedID string, item NewItem, now time.Time) error {
	ib := sqlbuilder.NewInsertBuilder()
	ib.InsertInto("item_sources").
		Cols("item_id", "feed_id", "source_item_guid", "source_item_url", "first_seen_at").
		Values(itemID, feedID, item.Guid, nullableString(item.SourceItemUrl), FormatTime(now))
	ib.SQL("ON CONFLICT(item_id, feed_id) DO NOTHING")
	query, args := ib.BuildWithFlavor(sqlbuilder.SQLite)

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert item source: %w", err)
	}
	return nil
}

func feedExistsTx(ctx context.Context, tx *sql.Tx, feedID string) error {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select("1").From("feeds").Where(sb.Equal("id", feedID))
	query, args := sb.BuildWithFlavor(sqlbuilder.SQLite)

	var one int
	err := tx.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lookup feed: %w", err)
	}
	return nil
}
