package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	feedsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "river_ingest_feeds_total",
		Help: "Feeds handled by the ingestion engine, by outcome",
	}, []string{"outcome"})

	itemsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "river_ingest_items_total",
		Help: "Items stored by the ingestion engine, inserted as new or merged into an existing item",
	}, []string{"result"})

	cycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "river_ingest_cycle_duration_seconds",
		Help:    "Duration of a full refresh cycle",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
	})

	fetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "river_ingest_fetch_duration_seconds",
		Help:    "Duration of a single feed fetch, successful or not",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	cyclesRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "river_ingest_cycles_running",
		Help: "Refresh cycles currently in progress",
	})
)

const (
	outcomeSuccess = "success"
	outcomeFailed  = "failed"
	outcomeSkipped = "skipped"
	outcomeRemoved = "removed"
)
