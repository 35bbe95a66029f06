package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics of the sync engine. The HTTP layer
// and the websocket listener register their own metrics package-locally.
type Metrics struct {
	// Queue metrics
	QueueDepth       *prometheus.GaugeVec
	EntriesAcked     prometheus.Counter
	EntriesNacked    prometheus.Counter
	EntriesReclaimed prometheus.Counter
	PushBatchSize    prometheus.Histogram
	PushDuration     prometheus.Histogram

	// Pull metrics
	PullsTotal    *prometheus.CounterVec
	PullApplied   prometheus.Counter
	PullDiscarded prometheus.Counter
	PullSkipped   prometheus.Counter
	PullDuration  *prometheus.HistogramVec

	// Balance recomputation metrics
	RecomputeRuns     prometheus.Counter
	RecomputeDuration prometheus.Histogram
	RecomputeWrites   prometheus.Histogram
	SnapshotsUpserted prometheus.Counter
}

// New creates and registers all Prometheus metrics. Call it once per
// process; a second call panics on duplicate registration.
func New() *Metrics {
	return &Metrics{
		// Queue metrics
		QueueDepth: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fintrack_queue_depth",
				Help: "Current queue depth by status",
			},
			[]string{"status"},
		),
		EntriesAcked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fintrack_queue_entries_acked_total",
			Help: "Total queue entries acknowledged by the backend",
		}),
		EntriesNacked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fintrack_queue_entries_nacked_total",
			Help: "Total queue entries rejected by the backend",
		}),
		EntriesReclaimed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fintrack_queue_entries_reclaimed_total",
			Help: "Total stuck PROCESSING entries reset to PENDING",
		}),
		PushBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "fintrack_push_batch_size",
			Help:    "Number of entries per push batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100},
		}),
		PushDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "fintrack_push_duration_seconds",
			Help:    "Duration of push batches",
			Buckets: prometheus.DefBuckets,
		}),

		// Pull metrics
		PullsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fintrack_pulls_total",
				Help: "Total pull cycles by entity type",
			},
			[]string{"entity_type"},
		),
		PullApplied: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fintrack_pull_entities_applied_total",
			Help: "Total pulled entities that won the timestamp comparison",
		}),
		PullDiscarded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fintrack_pull_entities_discarded_total",
			Help: "Total pulled entities older than local state",
		}),
		PullSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fintrack_pull_entities_skipped_total",
			Help: "Total pulled entities skipped as undecidable or malformed",
		}),
		PullDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fintrack_pull_duration_seconds",
				Help:    "Duration of pull cycles",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"entity_type"},
		),

		// Balance recomputation metrics
		RecomputeRuns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fintrack_recompute_runs_total",
			Help: "Total balance recomputation walks",
		}),
		RecomputeDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "fintrack_recompute_duration_seconds",
			Help:    "Duration of balance recomputation walks",
			Buckets: prometheus.DefBuckets,
		}),
		RecomputeWrites: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "fintrack_recompute_balance_writes",
			Help:    "Changed running balances per recomputation walk",
			Buckets: []float64{0, 1, 10, 100, 1000, 10000},
		}),
		SnapshotsUpserted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fintrack_monthly_snapshots_upserted_total",
			Help: "Total monthly snapshot rows written",
		}),
	}
}
