package models

import "time"

type FeedStatus string

const (
	FeedHealthy   FeedStatus = "healthy"
	FeedUnhealthy FeedStatus = "unhealthy"
)

// Feed is a subscribed syndication source together with its polling health
type Feed struct {
	Id                  string     `json:"id"`
	Url                 string     `json:"url"`
	NormalizedUrl       string     `json:"normalizedUrl"`
	Title               string     `json:"title"`
	Status              FeedStatus `json:"status"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	LastError           *string    `json:"lastError"`
	LastPolledAt        *time.Time `json:"lastPolledAt"`
	LastSuccessAt       *time.Time `json:"lastSuccessAt"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

// Item is a deduplicated river entry. Content is fixed at first sight.
type Item struct {
	Id           string    `json:"id"`
	CanonicalKey string    `json:"canonicalKey"`
	Guid         string    `json:"guid,omitempty"`
	Url          string    `json:"url"`
	CanonicalUrl string    `json:"canonicalUrl,omitempty"`
	ImageUrl     string    `json:"imageUrl,omitempty"`
	Title        string    `json:"title"`
	Snippet      string    `json:"snippet"`
	PublishedAt  time.Time `json:"publishedAt"`
	IngestedAt   time.Time `json:"ingestedAt"`
}

// ItemSource records that a feed reported an item
type ItemSource struct {
	ItemId         string    `json:"itemId"`
	FeedId         string    `json:"feedId"`
	SourceItemGuid string    `json:"sourceItemGuid"`
	SourceItemUrl  string    `json:"sourceItemUrl,omitempty"`
	FirstSeenAt    time.Time `json:"firstSeenAt"`
}

// RiverItem is the list projection of an item
type RiverItem struct {
	Id           string    `json:"id"`
	Title        string    `json:"title"`
	CanonicalUrl *string   `json:"canonicalUrl"`
	ImageUrl     *string   `json:"imageUrl"`
	Snippet      string    `json:"snippet"`
	PublishedAt  time.Time `json:"publishedAt"`
	IngestedAt   time.Time `json:"ingestedAt"`
	SourceNames  string    `json:"sourceNames"`
}

// ItemDetail adds the original article URL to the list projection
type ItemDetail struct {
	RiverItem
	Url string `json:"url"`
}

// RefreshResult summarizes one ingestion cycle. Processed is always Success plus Failed;
// a feed removed while the cycle ran counts in none of them.
type RefreshResult struct {
	Status             string `json:"status"`
	ProcessedFeedCount int    `json:"processedFeedCount"`
	SuccessFeedCount   int    `json:"successFeedCount"`
	FailedFeedCount    int    `json:"failedFeedCount"`
	SkippedFeedCount   int    `json:"skippedFeedCount"`
	InsertedItemCount  int    `json:"insertedItemCount"`
	MergedItemCount    int    `json:"mergedItemCount"`
}

type RiverPage struct {
	Items      []RiverItem `json:"items"`
	NextCursor *string     `json:"nextCursor"`
}

type ErrorResponse struct {
	Message string `json:"message"`
}
