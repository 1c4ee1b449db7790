package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "confidant"
	metricsSubsystem = "session"
)

// Outcome labels recorded for each attempt, in addition to provider.Kind
// values for failed ones.
const (
	outcomeCompleted     = "completed"
	outcomeCanceled      = "canceled"
	outcomePersistFailed = "persist_failed"
)

// Metrics holds the Prometheus collectors for chat attempts.
type Metrics struct {
	// Attempts counts finished attempts by outcome.
	Attempts *prometheus.CounterVec

	// Fragments counts content fragments relayed to callers.
	Fragments prometheus.Counter

	// Duration measures attempt latency by outcome.
	Duration *prometheus.HistogramVec

	// FirstFragment measures time from request to the first fragment.
	FirstFragment prometheus.Histogram

	// InFlight is 1 while an attempt holds the session.
	InFlight prometheus.Gauge

	// Waiting counts callers queued behind the session lock.
	Waiting prometheus.Gauge

	// Turns is the length of the in-memory history.
	Turns prometheus.Gauge
}

// NewMetrics creates the session collectors and registers them with reg.
// A nil reg creates unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Attempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "attempts_total",
			Help:      "Chat attempts by outcome.",
		}, []string{"outcome"}),
		Fragments: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "fragments_total",
			Help:      "Content fragments relayed to callers.",
		}),
		Duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "attempt_duration_seconds",
			Help:      "Chat attempt duration by outcome.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"outcome"}),
		FirstFragment: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "time_to_first_fragment_seconds",
			Help:      "Time from upstream request to the first relayed fragment.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		InFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "in_flight",
			Help:      "Attempts currently holding the session.",
		}),
		Waiting: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "waiting",
			Help:      "Callers waiting for the session.",
		}),
		Turns: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "history_turns",
			Help:      "Turns in the in-memory history.",
		}),
	}
}
