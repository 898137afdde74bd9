package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"river/models"
	"time"

	sqlbuilder "github.com/huandu/go-sqlbuilder"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
)

// ItemKey is a position in river order
type ItemKey struct {
	PublishedAt time.Time
	IngestedAt  time.Time
	Id          string
}

type RiverQuery struct {
	FeedIDs   []string
	StartDate *time.Time
	EndDate   *time.Time
	// After restricts the result to items strictly after this position
	After *ItemKey
	Limit int
}

const sourceNamesColumn = `(
	SELECT group_concat(DISTINCT COALESCE(NULLIF(f.title, ''), f.normalized_url))
	FROM item_sources s
	INNER JOIN feeds f ON f.id = s.feed_id
	WHERE s.item_id = i.id
) AS source_names`

var riverColumns = []string{
	"i.id", "i.title", "i.canonical_url", "i.image_url", "i.snippet",
	"i.published_at", "i.ingested_at", sourceNamesColumn,
}

func riverOrder(sb *sqlbuilder.SelectBuilder) {
	sb.OrderBy("i.published_at DESC", "i.ingested_at DESC", "i.id DESC")
}

func scanRiverItem(row scanner, extra ...any) (models.RiverItem, error) {
	var item models.RiverItem
	var canonicalURL, imageURL, sourceNames sql.NullString
	var publishedAt, ingestedAt string

	dest := []any{&item.Id, &item.Title, &canonicalURL, &imageURL, &item.Snippet, &publishedAt, &ingestedAt, &sourceNames}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return item, err
	}

	item.CanonicalUrl = stringPtr(canonicalURL)
	item.ImageUrl = stringPtr(imageURL)
	item.SourceNames = sourceNames.String

	var err error
	if item.PublishedAt, err = ParseTime(publishedAt); err != nil {
		return item, err
	}
	if item.IngestedAt, err = ParseTime(ingestedAt); err != nil {
		return item, err
	}
	return item, nil
}

func (db *DB) queryRiverItems(ctx context.Context, sb *sqlbuilder.SelectBuilder) ([]models.RiverItem, error) {
	query, args := sb.BuildWithFlavor(sqlbuilder.SQLite)

	log.WithFields(log.Fields{
		"sql":  query,
		"args": args,
	}).Trace("Generated SQL query")

	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	items := make([]models.RiverItem, 0)
	for rows.Next() {
		item, err := scanRiverItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		items = append(items, item)
	}

	return items, rows.Err()
}

// QueryRiver returns up to q.Limit items in river order matching the filter
func (db *DB) QueryRiver(ctx context.Context, q RiverQuery) ([]models.RiverItem, error) {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select(riverColumns...).From("items i")

	if q.StartDate != nil {
		sb.Where(sb.GreaterEqualThan("i.published_at", FormatTime(*q.StartDate)))
	}
	if q.EndDate != nil {
		sb.Where(sb.LessEqualThan("i.published_at", FormatTime(*q.EndDate)))
	}

	if q.After != nil {
		published := FormatTime(q.After.PublishedAt)
		ingested := FormatTime(q.After.IngestedAt)
		sb.Where(sb.Or(
			sb.LessThan("i.published_at", published),
			sb.And(sb.Equal("i.published_at", published), sb.LessThan("i.ingested_at", ingested)),
			sb.And(sb.Equal("i.published_at", published), sb.Equal("i.ingested_at", ingested), sb.LessThan("i.id", q.After.Id)),
		))
	}

	if len(q.FeedIDs) > 0 {
		sb.Where(fmt.Sprintf(
			"EXISTS (SELECT 1 FROM item_sources fs WHERE fs.item_id = i.id AND %s)",
			sb.In("fs.feed_id", lo.ToAnySlice(q.FeedIDs)...),
		))
	}

	riverOrder(sb)
	sb.Limit(q.Limit)

	return db.queryRiverItems(ctx, sb)
}

// LatestItems returns the newest n items without any filter
func (db *DB) LatestItems(ctx context.Context, n int) ([]models.RiverItem, error) {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select(riverColumns...).From("items i")
	riverOrder(sb)
	sb.Limit(n)

	return db.queryRiverItems(ctx, sb)
}

func (db *DB) GetItemDetail(ctx context.Context, id string) (*models.ItemDetail, error) {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select(append(riverColumns, "i.url")...).From("items i").Where(sb.Equal("i.id", id)).Limit(1)
	query, args := sb.BuildWithFlavor(sqlbuilder.SQLite)

	var detail models.ItemDetail
	item, err := scanRiverItem(db.db.QueryRowContext(ctx, query, args...), &detail.Url)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}

	detail.RiverItem = item
	return &detail, nil
}

// ItemSources returns the feeds that reported an item, oldest first
func (db *DB) ItemSources(ctx context.Context, itemID string) ([]models.ItemSource, error) {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select("item_id", "feed_id", "source_item_guid", "source_item_url", "first_seen_at").
		From("item_sources").
		Where(sb.Equal("item_id", itemID))
	sb.OrderBy("first_seen_at", "feed_id")
	query, args := sb.BuildWithFlavor(sqlbuilder.SQLite)

	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	sources := make([]models.ItemSource, 0)
	for rows.Next() {
		var src models.ItemSource
		var sourceURL sql.NullString
		var firstSeen string
		if err := rows.Scan(&src.ItemId, &src.FeedId, &src.SourceItemGuid, &sourceURL, &firstSeen); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		src.SourceItemUrl = sourceURL.String
		if src.FirstSeenAt, err = ParseTime(firstSeen); err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}

	return sources, rows.Err()
}

// GetItem returns the stored item row
func (db *DB) GetItem(ctx context.Context, id string) (*models.Item, error) {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select("id", "canonical_key", "guid", "url", "canonical_url", "image_url", "title", "snippet", "published_at", "ingested_at").
		From("items").
		Where(sb.Equal("id", id))
	query, args := sb.BuildWithFlavor(sqlbuilder.SQLite)

	var item models.Item
	var guid, canonicalURL, imageURL sql.NullString
	var publishedAt, ingestedAt string
	err := db.db.QueryRowContext(ctx, query, args...).Scan(
		&item.Id, &item.CanonicalKey, &guid, &item.Url, &canonicalURL, &imageURL,
		&item.Title, &item.Snippet, &publishedAt, &ingestedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}

	item.Guid = guid.String
	item.CanonicalUrl = canonicalURL.String
	item.ImageUrl = imageURL.String
	if item.PublishedAt, err = ParseTime(publishedAt); err != nil {
		return nil, err
	}
	if item.IngestedAt, err = ParseTime(ingestedAt); err != nil {
		return nil, err
	}
	return &item, nil
}

// CountItems returns the number of stored items
func (db *DB) CountItems(ctx context.Context) (int, error) {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select("count(*)").From("items")
	query, args := sb.BuildWithFlavor(sqlbuilder.SQLite)

	var n int
	if err := db.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("query error: %w", err)
	}
	return n, nil
}
