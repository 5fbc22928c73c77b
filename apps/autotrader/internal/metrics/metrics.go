// Package metrics exposes Prometheus instrumentation for the scheduler and its adapters.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "autotrader"

type Metrics struct {
	// Scheduler
	TicksTotal       *prometheus.CounterVec
	TickDuration     prometheus.Histogram
	IntentsClaimed   prometheus.Counter
	IntentsFired     *prometheus.CounterVec
	IntentOutcomes   *prometheus.CounterVec
	ExecutionRetries prometheus.Counter
	StaleReclaimed   prometheus.Counter

	// Adapters
	OracleLatency        prometheus.Histogram
	ExecutionLatency     prometheus.Histogram
	NotificationFailures prometheus.Counter
	SignalsQueued        prometheus.Counter

	gatherer prometheus.Gatherer
}

// New registers all metrics on reg. A nil reg uses a private registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		TicksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "ticks_total",
			Help:      "Scheduler ticks by result",
		}, []string{"result"}),
		TickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "tick_duration_seconds",
			Help:      "Wall time of a full scheduler tick",
			Buckets:   prometheus.DefBuckets,
		}),
		IntentsClaimed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "intents_claimed_total",
			Help:      "Intents claimed for evaluation",
		}),
		IntentsFired: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "intents_fired_total",
			Help:      "Trigger firings by intent kind",
		}, []string{"kind"}),
		IntentOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "intent_outcomes_total",
			Help:      "Committed outcomes by kind and resulting status",
		}, []string{"kind", "status"}),
		ExecutionRetries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "execution_retries_total",
			Help:      "Transient execution failures scheduled for retry",
		}),
		StaleReclaimed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "stale_reclaimed_total",
			Help:      "Processing intents returned to pending by the sweeper",
		}),
		OracleLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "observe_duration_seconds",
			Help:      "Latency of market observations",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5},
		}),
		ExecutionLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "execute_duration_seconds",
			Help:      "Latency of trade submissions",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		}),
		NotificationFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifier",
			Name:      "failures_total",
			Help:      "Notifications that could not be queued",
		}),
		SignalsQueued: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "copytrade",
			Name:      "signals_queued_total",
			Help:      "Observed trader swaps queued onto copy-trade intents",
		}),
		gatherer: reg,
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
