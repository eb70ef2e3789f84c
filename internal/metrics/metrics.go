// Package metrics holds the Prometheus collectors for the sigil engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles every collector the engine and server emit. Registered on
// a caller-supplied registry so tests can use isolated registries.
type Metrics struct {
	Registry *prometheus.Registry

	EncodesTotal  prometheus.Counter
	DecodesTotal  prometheus.Counter
	VerifiesTotal prometheus.Counter

	// ErrorsTotal is partitioned by error kind: validation, not_found,
	// corrupt, storage, dependency.
	ErrorsTotal *prometheus.CounterVec

	// CorruptionTotal is the dedicated alerting counter for records whose
	// signature failed verification on read.
	CorruptionTotal prometheus.Counter

	EncodeDuration prometheus.Histogram

	SweepsTotal       prometheus.Counter
	SweepVisitedTotal prometheus.Counter
	SweepEvictedTotal prometheus.Counter

	// BreakerState is 0 closed, 1 open, 2 half-open.
	BreakerState prometheus.Gauge
	BreakerTrips prometheus.Counter
}

// New creates the collector set on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	return &Metrics{
		Registry: reg,
		EncodesTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "sigil_encodes_total",
			Help: "Total encode operations.",
		}),
		DecodesTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "sigil_decodes_total",
			Help: "Total decode operations.",
		}),
		VerifiesTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "sigil_verifies_total",
			Help: "Total verify operations.",
		}),
		ErrorsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "sigil_errors_total",
			Help: "Total errors by kind.",
		}, []string{"kind"}),
		CorruptionTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "sigil_corruption_detected_total",
			Help: "Records whose stored signature failed verification.",
		}),
		EncodeDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "sigil_encode_duration_seconds",
			Help:    "Encode latency.",
			Buckets: prometheus.DefBuckets,
		}),
		SweepsTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "sigil_decay_sweeps_total",
			Help: "Completed decay sweeps.",
		}),
		SweepVisitedTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "sigil_decay_visited_total",
			Help: "Records visited by decay sweeps.",
		}),
		SweepEvictedTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "sigil_decay_evicted_total",
			Help: "Records evicted by decay sweeps.",
		}),
		BreakerState: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "sigil_breaker_state",
			Help: "Circuit breaker state: 0 closed, 1 open, 2 half-open.",
		}),
		BreakerTrips: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "sigil_breaker_trips_total",
			Help: "Times the circuit breaker tripped open.",
		}),
	}
}
