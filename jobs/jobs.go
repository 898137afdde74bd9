// Package jobs runs the periodic background work: polling due feeds and pruning
// expired items.
package jobs

import (
	"context"
	"errors"
	"time"

	"river/models"

	log "github.com/sirupsen/logrus"
)

type Refresher interface {
	RefreshDueFeeds(ctx context.Context) (models.RefreshResult, error)
}

type Pruner interface {
	DeleteItemsOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Poller refreshes due feeds immediately and then on every tick
type Poller struct {
	refresher Refresher
	interval  time.Duration
}

func NewPoller(refresher Refresher, interval time.Duration) *Poller {
	return &Poller{refresher: refresher, interval: interval}
}

// Run blocks until ctx is cancelled
func (p *Poller) Run(ctx context.Context) {
	log.WithField("interval", p.interval).Info("Starting feed poller")
	run(ctx, p.interval, p.poll)
	log.Info("Feed poller stopped")
}

func (p *Poller) poll(ctx context.Context) {
	result, err := p.refresher.RefreshDueFeeds(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		log.WithFields(log.Fields{
			"error":     err,
			"processed": result.ProcessedFeedCount,
		}).Error("Error refreshing feeds")
	}
}

// Retention deletes items older than the retention period immediately and then on every tick
type Retention struct {
	pruner    Pruner
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
}

func NewRetention(pruner Pruner, retention, interval time.Duration) *Retention {
	return &Retention{pruner: pruner, retention: retention, interval: interval, now: time.Now}
}

// Run blocks until ctx is cancelled
func (r *Retention) Run(ctx context.Context) {
	log.WithFields(log.Fields{
		"interval":  r.interval,
		"retention": r.retention,
	}).Info("Starting retention cleanup")
	run(ctx, r.interval, r.sweep)
	log.Info("Retention cleanup stopped")
}

func (r *Retention) sweep(ctx context.Context) {
	if _, err := r.pruner.DeleteItemsOlderThan(ctx, r.now().Add(-r.retention)); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		log.WithField("error", err).Error("Error tidying database")
	}
}

func run(ctx context.Context, interval time.Duration, task func(context.Context)) {
	if ctx.Err() != nil {
		return
	}
	task(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			task(ctx)
		}
	}
}
