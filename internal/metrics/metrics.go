// Package metrics centralizes the Prometheus collectors the persistence
// core exposes: event append throughput, storage latency, compaction
// outcomes, and token/cost accumulation. Adapted from the teacher's
// observability package, trimmed to this core's five subsystems.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the process-wide collector set. Call New once at startup
// and share the instance across the Event Store, Linearizer, and
// Context Manager.
type Metrics struct {
	// EventsAppended counts durable appends by session event type.
	EventsAppended *prometheus.CounterVec

	// AppendDuration measures Event Store.append latency in seconds.
	AppendDuration *prometheus.HistogramVec

	// StorageErrors counts classified storage failures by kind
	// (storage_full, storage_corrupt, constraint_violation).
	StorageErrors *prometheus.CounterVec

	// LinearizerQueueDepth is the current backlog per session queue.
	LinearizerQueueDepth *prometheus.GaugeVec

	// CompactionsTotal counts compaction executions by outcome
	// (applied, no_op, rejected).
	CompactionsTotal *prometheus.CounterVec

	// CompactionRatio observes compressionRatio from executed compactions.
	CompactionRatio prometheus.Histogram

	// TokensTotal accumulates normalized tokens by provider, model, and
	// kind (input, output, cache_read, cache_creation).
	TokensTotal *prometheus.CounterVec

	// CostUSDTotal accumulates computed cost in USD by provider and model.
	CostUSDTotal *prometheus.CounterVec

	// BlobBytesStored accumulates bytes written to the blob store.
	BlobBytesStored prometheus.Counter

	// BlobDedupeHits counts store() calls that resolved to an existing hash.
	BlobDedupeHits prometheus.Counter
}

var (
	sharedOnce sync.Once
	shared     *Metrics
)

// New returns the process-wide collector set. The first call registers
// the collectors with the default Prometheus registry; later calls return
// the same instance, since registering the same names twice panics.
func New() *Metrics {
	sharedOnce.Do(func() { shared = register() })
	return shared
}

// register creates the core's metric collectors on the default registry.
func register() *Metrics {
	return &Metrics{
		EventsAppended: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sessioncore_events_appended_total",
				Help: "Total number of events durably appended, by event type",
			},
			[]string{"type"},
		),
		AppendDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sessioncore_append_duration_seconds",
				Help:    "Latency of Event Store append transactions",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"type"},
		),
		StorageErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sessioncore_storage_errors_total",
				Help: "Total number of classified storage failures by kind",
			},
			[]string{"kind"},
		),
		LinearizerQueueDepth: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sessioncore_linearizer_queue_depth",
				Help: "Current number of queued appends per session",
			},
			[]string{"session_id"},
		),
		CompactionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sessioncore_compactions_total",
				Help: "Total number of compaction attempts by outcome",
			},
			[]string{"outcome"},
		),
		CompactionRatio: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sessioncore_compaction_ratio",
				Help:    "compressionRatio (tokensAfter/tokensBefore) of executed compactions",
				Buckets: []float64{0.05, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.8, 1.0},
			},
		),
		TokensTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sessioncore_tokens_total",
				Help: "Total normalized tokens by provider, model, and kind",
			},
			[]string{"provider", "model", "kind"},
		),
		CostUSDTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sessioncore_cost_usd_total",
				Help: "Estimated cost in USD by provider and model",
			},
			[]string{"provider", "model"},
		),
		BlobBytesStored: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "sessioncore_blob_bytes_stored_total",
				Help: "Total bytes written to the blob store (post-dedup)",
			},
		),
		BlobDedupeHits: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "sessioncore_blob_dedupe_hits_total",
				Help: "Total blob store() calls resolved to an existing hash",
			},
		),
	}
}
