package etl

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Tick lifecycle metrics
	TicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "etl_ticks_total",
		Help: "Total number of ETL ticks attempted",
	})

	TickErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "etl_tick_errors_total",
		Help: "Total number of ETL ticks that ended with an error",
	})

	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "etl_tick_duration_seconds",
		Help:    "Duration of one ETL tick over all three pipelines",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	// Per-index document flow
	DocumentsIndexed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "etl_documents_indexed_total",
		Help: "Documents submitted to the sink in successful bulk loads",
	}, []string{"index"})

	BulkItemErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "etl_bulk_item_errors_total",
		Help: "Documents rejected by the sink inside otherwise successful bulk loads",
	}, []string{"index"})

	DeadLetterTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "etl_dead_letter_total",
		Help: "Documents written to the dead letter journal",
	}, []string{"index"})

	// IndexDrift is the difference between source table row count and sink
	// document count, set by the reconcile task.
	IndexDrift = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "etl_index_drift",
		Help: "Source row count minus sink document count per index",
	}, []string{"index"})
)
