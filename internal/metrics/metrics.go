// Package metrics holds the Prometheus instruments shared across workers,
// the store pipeline and the HTTP API. Instruments register with the
// default registry on package init; /metrics exposes them.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Scheduler Metrics
	WorkerTicks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sibr_worker_ticks_total",
			Help: "Total number of worker ticks by outcome",
		},
		[]string{"worker", "outcome"}, // "success", "failed"
	)

	WorkerTickDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sibr_worker_tick_duration_seconds",
			Help:    "Duration of worker ticks in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"worker"},
	)

	// Ingest Metrics
	FetchRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sibr_fetch_requests_total",
			Help: "Total number of upstream fetches by outcome",
		},
		[]string{"host", "outcome"}, // "ok", "error", "breaker_open"
	)

	UpdatesSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sibr_updates_submitted_total",
			Help: "Total number of extracted entity updates submitted to the ledger",
		},
		[]string{"kind"},
	)

	UpdatesSaved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sibr_updates_saved_total",
			Help: "Total number of update log rows that were new",
		},
		[]string{"origin"}, // "ingest", "replay", "import"
	)

	ObjectsSaved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sibr_objects_saved_total",
			Help: "Total number of new content-addressed objects",
		},
	)

	CapturesSaved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sibr_captures_saved_total",
			Help: "Total number of new raw captures",
		},
		[]string{"stream"},
	)

	ExtractionWarnings = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sibr_extraction_warnings_total",
			Help: "Total number of skipped sub-documents during extraction",
		},
	)

	MalformedCaptures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sibr_malformed_captures_total",
			Help: "Total number of captures whose root document could not be parsed",
		},
	)

	SearchIndexRows = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sibr_search_index_rows_total",
			Help: "Total number of merged rows whose search index was filled",
		},
	)

	// Replay Metrics
	ReplayBatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sibr_replay_batch_duration_seconds",
			Help:    "Duration of replay batch transactions in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	// API Metrics
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sibr_api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "status"},
	)
)

// RecordTick records one worker tick outcome and duration.
func RecordTick(worker string, d time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failed"
	}
	WorkerTicks.WithLabelValues(worker, outcome).Inc()
	WorkerTickDuration.WithLabelValues(worker).Observe(d.Seconds())
}
