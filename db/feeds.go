package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"river/models"
	"time"

	"github.com/google/uuid"
	sqlbuilder "github.com/huandu/go-sqlbuilder"
	log "github.com/sirupsen/logrus"
)

var feedColumns = []string{
	"id", "url", "normalized_url", "title", "status", "consecutive_failures",
	"last_error", "last_polled_at", "last_success_at", "created_at", "updated_at",
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFeed(row scanner) (*models.Feed, error) {
	var feed models.Feed
	var status, createdAt, updatedAt string
	var lastError, lastPolled, lastSuccess sql.NullString
	var err error

	if err := row.Scan(
		&feed.Id, &feed.Url, &feed.NormalizedUrl, &feed.Title, &status, &feed.ConsecutiveFailures,
		&lastError, &lastPolled, &lastSuccess, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	feed.Status = models.FeedStatus(status)
	feed.LastError = stringPtr(lastError)
	if feed.LastPolledAt, err = parseNullableTime(lastPolled); err != nil {
		return nil, err
	}
	if feed.LastSuccessAt, err = parseNullableTime(lastSuccess); err != nil {
		return nil, err
	}
	if feed.CreatedAt, err = ParseTime(createdAt); err != nil {
		return nil, err
	}
	if feed.UpdatedAt, err = ParseTime(updatedAt); err != nil {
		return nil, err
	}

	return &feed, nil
}

func (db *DB) queryFeeds(ctx context.Context, sb *sqlbuilder.SelectBuilder) ([]*models.Feed, error) {
	query, args := sb.BuildWithFlavor(sqlbuilder.SQLite)

	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	feeds := make([]*models.Feed, 0)
	for rows.Next() {
		feed, err := scanFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		feeds = append(feeds, feed)
	}

	return feeds, rows.Err()
}

// ListFeeds returns all feeds ordered for display
func (db *DB) ListFeeds(ctx context.Context) ([]*models.Feed, error) {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select(feedColumns...).From("feeds")
	sb.OrderBy("title COLLATE NOCASE", "normalized_url COLLATE NOCASE")
	return db.queryFeeds(ctx, sb)
}

// ListFeedsForPolling returns all feeds in the deterministic order used by ingestion
func (db *DB) ListFeedsForPolling(ctx context.Context) ([]*models.Feed, error) {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select(feedColumns...).From("feeds")
	sb.OrderBy("normalized_url")
	return db.queryFeeds(ctx, sb)
}

func (db *DB) GetFeed(ctx context.Context, id string) (*models.Feed, error) {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select(feedColumns...).From("feeds").Where(sb.Equal("id", id))
	query, args := sb.BuildWithFlavor(sqlbuilder.SQLite)

	feed, err := scanFeed(db.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	return feed, nil
}

func (db *DB) feedExists(ctx context.Context, normalizedURL string) (bool, error) {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select("1").From("feeds").Where(sb.Equal("normalized_url", normalizedURL)).Limit(1)
	query, args := sb.BuildWithFlavor(sqlbuilder.SQLite)

	var one int
	err := db.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CreateFeed subscribes a new feed. The caller normalizes the URL; a blank title
// defaults to the normalized URL.
func (db *DB) CreateFeed(ctx context.Context, url, normalizedURL, title string, now time.Time) (*models.Feed, error) {
	if title == "" {
		title = normalizedURL
	}

	exists, err := db.feedExists(ctx, normalizedURL)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	if exists {
		return nil, ErrDuplicateFeed
	}

	now = now.UTC()
	feed := &models.Feed{
		Id:            uuid.NewString(),
		Url:           url,
		NormalizedUrl: normalizedURL,
		Title:         title,
		Status:        models.FeedHealthy,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	ib := sqlbuilder.NewInsertBuilder()
	ib.InsertInto("feeds").
		Cols("id", "url", "normalized_url", "title", "status", "consecutive_failures", "created_at", "updated_at").
		Values(feed.Id, feed.Url, feed.NormalizedUrl, feed.Title, string(feed.Status), 0, FormatTime(now), FormatTime(now))
	query, args := ib.BuildWithFlavor(sqlbuilder.SQLite)

	if _, err := db.db.ExecContext(ctx, query, args...); err != nil {
		if isConstraintViolation(err) {
			return nil, ErrDuplicateFeed
		}
		return nil, fmt.Errorf("insert error: %w", err)
	}

	log.WithFields(log.Fields{
		"id":  feed.Id,
		"url": feed.NormalizedUrl,
	}).Info("Feed added")

	return feed, nil
}

const deleteOrphanedItemsSQL = `
DELETE FROM items
WHERE id IN (
	SELECT s1.item_id
	FROM item_sources s1
	WHERE s1.feed_id = ?
	AND NOT EXISTS (
		SELECT 1 FROM item_sources s2
		WHERE s2.item_id = s1.item_id
		AND s2.feed_id != ?
	)
)`

// DeleteFeed removes a feed together with the items only it reported. Items shared
// with other feeds survive and lose this feed as a source.
func (db *DB) DeleteFeed(ctx context.Context, id string) (int64, error) {
	var orphans int64

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, deleteOrphanedItemsSQL, id, id)
		if err != nil {
			return fmt.Errorf("delete orphaned items: %w", err)
		}
		orphans, _ = res.RowsAffected()

		delFeed := sqlbuilder.NewDeleteBuilder()
		delFeed.DeleteFrom("feeds").Where(delFeed.Equal("id", id))
		query, args := delFeed.BuildWithFlavor(sqlbuilder.SQLite)

		res, err = tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("delete feed: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	log.WithFields(log.Fields{
		"id":            id,
		"orphanedItems": orphans,
	}).Info("Feed deleted")

	return orphans, nil
}

// MarkFeedFailed records a failed poll
func (db *DB) MarkFeedFailed(ctx context.Context, id string, failures int, status models.FeedStatus, message string, now time.Time) error {
	ub := sqlbuilder.NewUpdateBuilder()
	ub.Update("feeds").
		Set(
			ub.Assign("status", string(status)),
			ub.Assign("consecutive_failures", failures),
			ub.Assign("last_error", message),
			ub.Assign("last_polled_at", FormatTime(now)),
			ub.Assign("updated_at", FormatTime(now)),
		).
		Where(ub.Equal("id", id))
	query, args := ub.BuildWithFlavor(sqlbuilder.SQLite)

	res, err := db.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update error: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func markFeedHealthy(ctx context.Context, tx *sql.Tx, id string, now time.Time) error {
	ts := FormatTime(now)
	ub := sqlbuilder.NewUpdateBuilder()
	ub.Update("feeds").
		Set(
			ub.Assign("status", string(models.FeedHealthy)),
			ub.Assign("consecutive_failures", 0),
			"last_error = NULL",
			ub.Assign("last_polled_at", ts),
			ub.Assign("last_success_at", ts),
			ub.Assign("updated_at", ts),
		).
		Where(ub.Equal("id", id))
	query, args := ub.BuildWithFlavor(sqlbuilder.SQLite)

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update error: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
