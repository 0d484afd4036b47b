// Package metrics defines the Prometheus metrics of the cache.
// All metrics are registered with the default registerer via promauto.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Request outcomes.
const (
	OutcomeHit         = "hit"
	OutcomeMiss        = "miss"
	OutcomeRevalidated = "revalidated"
	OutcomeStale       = "stale"
	OutcomeBypass      = "bypass"
	OutcomeTunnel      = "tunnel"
	OutcomeError       = "error"
)

var (
	// Requests counts handled requests by outcome.
	Requests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cachexec_requests_total",
			Help: "Total number of requests handled by the cache, by outcome",
		},
		[]string{"outcome"},
	)

	// StoreWrites counts entries written to the store.
	StoreWrites = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cachexec_store_writes_total",
			Help: "Total number of entries written to the store",
		},
	)

	// Invalidations counts keys invalidated after unsafe requests.
	Invalidations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cachexec_invalidations_total",
			Help: "Total number of cache keys invalidated",
		},
	)

	// StoreErrors counts failed store operations.
	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cachexec_store_errors_total",
			Help: "Total number of failed store operations",
		},
		[]string{"operation"}, // "match", "update", "invalidate"
	)

	// Evictions counts entries removed to respect capacity limits.
	Evictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cachexec_evictions_total",
			Help: "Total number of entries evicted from the store",
		},
		[]string{"backend"},
	)

	// TransportFailures counts origin requests that produced no response.
	TransportFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cachexec_transport_failures_total",
			Help: "Total number of origin requests without a response",
		},
		[]string{"kind"}, // "timeout", "error"
	)

	// OriginDuration observes the latency of origin requests.
	OriginDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cachexec_origin_duration_seconds",
			Help:    "Duration of requests forwarded to the origin",
			Buckets: prometheus.DefBuckets,
		},
	)
)
