package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "honeywatch_events_ingested_total",
			Help: "Total number of normalized events received per feed",
		},
		[]string{"feed"},
	)

	EventsMalformed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "honeywatch_events_malformed_total",
			Help: "Total number of raw records skipped because they could not be decoded",
		},
		[]string{"feed"},
	)

	EventsDuplicate = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "honeywatch_events_duplicate_total",
			Help: "Total number of events dropped by deduplication",
		},
	)

	FeedReadErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "honeywatch_feed_read_errors_total",
			Help: "Total number of failed reads from a feed transport",
		},
		[]string{"feed"},
	)

	FeedBacklog = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "honeywatch_feed_backlog",
			Help: "Records waiting in a queue-backed feed",
		},
		[]string{"feed"},
	)

	Findings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "honeywatch_findings_total",
			Help: "Total number of findings per detector family and category",
		},
		[]string{"detector", "category"},
	)

	AlertsPersisted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "honeywatch_alerts_persisted_total",
			Help: "Total number of alerts written to the alert store",
		},
		[]string{"type", "severity"},
	)

	AlertsRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "honeywatch_alerts_rejected_total",
			Help: "Total number of alerts a remote collector did not acknowledge",
		},
	)

	AlertWriteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "honeywatch_alert_write_failures_total",
			Help: "Total number of alerts dropped after a store write failure",
		},
	)

	TrackedSources = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "honeywatch_anomaly_tracked_sources",
			Help: "Number of sources with live sliding-window state",
		},
	)

	EventProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "honeywatch_event_processing_duration_seconds",
			Help:    "Time taken to process one event through detection and persistence",
			Buckets: prometheus.DefBuckets,
		},
	)
)
