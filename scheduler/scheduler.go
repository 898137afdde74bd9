// Package scheduler decides when a feed is due for polling. Healthy feeds are polled on
// a fixed interval; feeds past the failure threshold back off through three tiers.
package scheduler

import (
	"time"

	"river/models"
)

type Policy struct {
	PollInterval       time.Duration
	UnhealthyThreshold int
	BackoffTiers       [3]time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		PollInterval:       15 * time.Minute,
		UnhealthyThreshold: 3,
		BackoffTiers:       [3]time.Duration{5 * time.Minute, 15 * time.Minute, 60 * time.Minute},
	}
}

// IsDue reports whether a feed should be fetched at now. Never-polled feeds are always due.
func (p Policy) IsDue(feed *models.Feed, now time.Time) bool {
	if feed == nil || feed.LastPolledAt == nil {
		return true
	}
	return now.Sub(*feed.LastPolledAt) >= p.RetryDelay(feed.ConsecutiveFailures)
}

// RetryDelay is the minimum time between polls for a feed with the given failure count
func (p Policy) RetryDelay(failures int) time.Duration {
	if failures < p.UnhealthyThreshold {
		return p.PollInterval
	}

	switch failures - p.UnhealthyThreshold {
	case 0:
		return p.BackoffTiers[0]
	case 1:
		return p.BackoffTiers[1]
	default:
		return p.BackoffTiers[2]
	}
}

// NextPollAt is when the feed becomes due; nil when it is due already
func (p Policy) NextPollAt(feed *models.Feed, now time.Time) *time.Time {
	if p.IsDue(feed, now) {
		return nil
	}
	next := feed.LastPolledAt.Add(p.RetryDelay(feed.ConsecutiveFailures))
	return &next
}

// MarkFailure returns the failure count and status a feed moves to after a failed poll
func (p Policy) MarkFailure(failures int) (int, models.FeedStatus) {
	failures++
	if failures >= p.UnhealthyThreshold {
		return failures, models.FeedUnhealthy
	}
	return failures, models.FeedHealthy
}
