package river_test

import (
	"context"
	"encoding/base64"
	"fmt"
	"path/filepath"
	"river/db"
	"river/models"
	"river/river"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type recordingStore struct {
	queries []db.RiverQuery
}

func (s *recordingStore) QueryRiver(_ context.Context, q db.RiverQuery) ([]models.RiverItem, error) {
	s.queries = append(s.queries, q)
	return nil, nil
}

func (s *recordingStore) GetItemDetail(context.Context, string) (*models.ItemDetail, error) {
	return nil, db.ErrNotFound
}

func (s *recordingStore) LatestItems(context.Context, int) ([]models.RiverItem, error) {
	return nil, nil
}

func newTestDB(t *testing.T) *db.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "river.db")
	require.NoError(t, db.Migrate(path))
	database, err := db.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}

func insertItems(t *testing.T, database *db.DB, feedID string, prefix string, n int, start time.Time, step time.Duration) {
	t.Helper()
	items := make([]db.NewItem, 0, n)
	for i := 0; i < n; i++ {
		ts := start.Add(time.Duration(i) * step)
		items = append(items, db.NewItem{
			CanonicalKey: fmt.Sprintf("url:%s-%d", prefix, i),
			Url:          fmt.Sprintf("https://example.com/%s/%d", prefix, i),
			Title:        fmt.Sprintf("%s %d", prefix, i),
			PublishedAt:  ts,
			IngestedAt:   ts,
		})
	}
	_, err := database.CommitFeedSuccess(context.Background(), feedID, items, start)
	require.NoError(t, err)
}

func TestQueryItems_Validation(t *testing.T) {
	start := base
	end := base.Add(-time.Hour)

	tests := []struct {
		name   string
		filter river.Filter
		err    error
	}{
		{name: "end before start", filter: river.Filter{StartDate: &start, EndDate: &end}, err: river.ErrInvalidDateRange},
		{name: "negative limit", filter: river.Filter{Limit: -1}, err: river.ErrInvalidLimit},
		{name: "limit too large", filter: river.Filter{Limit: 201}, err: river.ErrInvalidLimit},
		{name: "garbage cursor", filter: river.Filter{Cursor: "!!!"}, err: river.ErrInvalidCursor},
		{name: "cursor with two parts", filter: river.Filter{Cursor: base64.RawURLEncoding.EncodeToString([]byte("a|b"))}, err: river.ErrInvalidCursor},
		{name: "cursor with bad timestamp", filter: river.Filter{Cursor: base64.RawURLEncoding.EncodeToString([]byte("yesterday|today|id"))}, err: river.ErrInvalidCursor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &recordingStore{}
			service := river.NewService(store)

			_, err := service.QueryItems(context.Background(), tt.filter)
			assert.ErrorIs(t, err, tt.err)
			assert.Empty(t, store.queries, "store must not be queried for invalid input")
		})
	}
}

func TestQueryItems_BuildsQuery(t *testing.T) {
	store := &recordingStore{}
	service := river.NewService(store)
	start := base
	end := base

	page, err := service.QueryItems(context.Background(), river.Filter{
		FeedIDs:   []string{" a ", "b", "a", ""},
		StartDate: &start,
		EndDate:   &end,
	})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Nil(t, page.NextCursor)

	require.Len(t, store.queries, 1)
	q := store.queries[0]
	assert.Equal(t, []string{"a", "b"}, q.FeedIDs)
	assert.Equal(t, river.DefaultLimit+1, q.Limit)
	assert.Nil(t, q.After)
}

func TestCursorRoundTrip(t *testing.T) {
	key := db.ItemKey{
		PublishedAt: time.Date(2024, 2, 3, 4, 5, 6, 789, time.UTC),
		IngestedAt:  time.Date(2024, 2, 3, 4, 5, 7, 0, time.UTC),
		Id:          "0b5c6a9e-id",
	}

	decoded, err := river.DecodeCursor(river.EncodeCursor(key))
	require.NoError(t, err)
	assert.Equal(t, key, decoded)
}

func TestParseFeedIDs(t *testing.T) {
	assert.Nil(t, river.ParseFeedIDs(""))
	assert.Nil(t, river.ParseFeedIDs("   "))
	assert.Equal(t, []string{"a", "b", "c"}, river.ParseFeedIDs("a, b,,a ,c"))
}

func TestQueryItems_PaginationIsStableUnderInserts(t *testing.T) {
	ctx := context.Background()
	database := newTestDB(t)
	service := river.NewService(database)

	feed, err := database.CreateFeed(ctx, "https://a.example.com/rss", "https://a.example.com/rss", "A", base)
	require.NoError(t, err)

	insertItems(t, database, feed.Id, "old", 120, base, time.Minute)

	seen := map[string]bool{}
	var ordered []models.RiverItem
	cursor := ""
	pages := 0

	for {
		page, err := service.QueryItems(ctx, river.Filter{Cursor: cursor, Limit: 50})
		require.NoError(t, err)
		pages++

		for _, item := range page.Items {
			assert.False(t, seen[item.Id], "item %s returned twice", item.Id)
			seen[item.Id] = true
			ordered = append(ordered, item)
		}

		if pages == 1 {
			// Newer items arriving between pages must not shift later pages
			insertItems(t, database, feed.Id, "new", 10, base.Add(24*time.Hour), time.Minute)
		}

		if page.NextCursor == nil {
			break
		}
		cursor = *page.NextCursor
	}

	assert.Equal(t, 3, pages)
	assert.Len(t, ordered, 120)
	for i := 1; i < len(ordered); i++ {
		assert.False(t, ordered[i].PublishedAt.After(ordered[i-1].PublishedAt), "river must be newest first")
	}
	assert.Equal(t, "old 119", ordered[0].Title)
	assert.Equal(t, "old 0", ordered[len(ordered)-1].Title)
}

func TestQueryItems_ExactPageHasNoCursor(t *testing.T) {
	ctx := context.Background()
	database := newTestDB(t)
	service := river.NewService(database)

	feed, err := database.CreateFeed(ctx, "https://a.example.com/rss", "https://a.example.com/rss", "A", base)
	require.NoError(t, err)
	insertItems(t, database, feed.Id, "item", 5, base, time.Minute)

	page, err := service.QueryItems(ctx, river.Filter{Limit: 5})
	require.NoError(t, err)
	assert.Len(t, page.Items, 5)
	assert.Nil(t, page.NextCursor)

	page, err = service.QueryItems(ctx, river.Filter{Limit: 4})
	require.NoError(t, err)
	assert.Len(t, page.Items, 4)
	require.NotNil(t, page.NextCursor)

	rest, err := service.QueryItems(ctx, river.Filter{Limit: 4, Cursor: *page.NextCursor})
	require.NoError(t, err)
	require.Len(t, rest.Items, 1)
	assert.Equal(t, "item 0", rest.Items[0].Title)
	assert.Nil(t, rest.NextCursor)
}

func TestGetItem(t *testing.T) {
	service := river.NewService(&recordingStore{})

	_, err := service.GetItem(context.Background(), "missing")
	assert.ErrorIs(t, err, river.ErrNotFound)

	_, err = service.GetItem(context.Background(), " ")
	assert.ErrorIs(t, err, river.ErrNotFound)
}
