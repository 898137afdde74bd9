// Package river serves the deduplicated item stream newest first with stable keyset
// pagination.
package river

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"river/db"
	"river/models"

	"github.com/samber/lo"
)

const (
	DefaultLimit = 200
	MaxLimit     = 200
)

var (
	ErrInvalidDateRange = errors.New("invalid date range; end_date must be on or after start_date")
	ErrInvalidLimit     = errors.New("invalid limit; expected integer in range 1..200")
	ErrInvalidCursor    = errors.New("invalid cursor")
	ErrNotFound         = db.ErrNotFound
)

type Filter struct {
	FeedIDs   []string
	StartDate *time.Time
	EndDate   *time.Time
	Cursor    string
	// Limit of 0 selects DefaultLimit
	Limit int
}

// Store is the persistence the service reads from
type Store interface {
	QueryRiver(ctx context.Context, q db.RiverQuery) ([]models.RiverItem, error)
	GetItemDetail(ctx context.Context, id string) (*models.ItemDetail, error)
	LatestItems(ctx context.Context, n int) ([]models.RiverItem, error)
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// QueryItems returns one page of the river. The filter is validated before the store
// is touched.
func (s *Service) QueryItems(ctx context.Context, filter Filter) (models.RiverPage, error) {
	query, err := buildQuery(filter)
	if err != nil {
		return models.RiverPage{}, err
	}
	limit := query.Limit
	query.Limit = limit + 1

	items, err := s.store.QueryRiver(ctx, query)
	if err != nil {
		return models.RiverPage{}, err
	}

	page := models.RiverPage{Items: items}
	if len(items) > limit {
		page.Items = items[:limit]
		last := page.Items[limit-1]
		cursor := EncodeCursor(db.ItemKey{PublishedAt: last.PublishedAt, IngestedAt: last.IngestedAt, Id: last.Id})
		page.NextCursor = &cursor
	}

	return page, nil
}

func (s *Service) GetItem(ctx context.Context, id string) (*models.ItemDetail, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrNotFound
	}
	return s.store.GetItemDetail(ctx, id)
}

// Latest returns the newest n items, unfiltered
func (s *Service) Latest(ctx context.Context, n int) ([]models.RiverItem, error) {
	return s.store.LatestItems(ctx, n)
}

func buildQuery(filter Filter) (db.RiverQuery, error) {
	limit := filter.Limit
	if limit == 0 {
		limit = DefaultLimit
	}
	if limit < 1 || limit > MaxLimit {
		return db.RiverQuery{}, ErrInvalidLimit
	}

	if filter.StartDate != nil && filter.EndDate != nil && filter.EndDate.Before(*filter.StartDate) {
		return db.RiverQuery{}, ErrInvalidDateRange
	}

	query := db.RiverQuery{
		FeedIDs:   NormalizeFeedIDs(filter.FeedIDs),
		StartDate: filter.StartDate,
		EndDate:   filter.EndDate,
		Limit:     limit,
	}

	if strings.TrimSpace(filter.Cursor) != "" {
		key, err := DecodeCursor(filter.Cursor)
		if err != nil {
			return db.RiverQuery{}, err
		}
		query.After = &key
	}

	return query, nil
}

// NormalizeFeedIDs trims ids, drops blanks and removes duplicates keeping first occurrence
func NormalizeFeedIDs(ids []string) []string {
	trimmed := lo.Map(ids, func(id string, _ int) string { return strings.TrimSpace(id) })
	return lo.Uniq(lo.Compact(trimmed))
}

// ParseFeedIDs splits a comma separated id list
func ParseFeedIDs(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return NormalizeFeedIDs(strings.Split(raw, ","))
}

// EncodeCursor produces the opaque token for a river position
func EncodeCursor(key db.ItemKey) string {
	raw := strings.Join([]string{db.FormatTime(key.PublishedAt), db.FormatTime(key.IngestedAt), key.Id}, "|")
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func DecodeCursor(cursor string) (db.ItemKey, error) {
	data, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(strings.TrimSpace(cursor), "="))
	if err != nil {
		return db.ItemKey{}, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}

	parts := strings.Split(string(data), "|")
	if len(parts) != 3 || parts[2] == "" {
		return db.ItemKey{}, ErrInvalidCursor
	}

	published, err := db.ParseTime(parts[0])
	if err != nil {
		return db.ItemKey{}, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	ingested, err := db.ParseTime(parts[1])
	if err != nil {
		return db.ItemKey{}, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}

	return db.ItemKey{PublishedAt: published, IngestedAt: ingested, Id: parts[2]}, nil
}
