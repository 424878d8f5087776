// Package telemetry holds the Prometheus instruments of the alerting loop.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all alerting Prometheus metrics
type Metrics struct {
	RuleEvaluations    *prometheus.CounterVec
	AlertsTriggered    *prometheus.CounterVec
	AlertsThrottled    prometheus.Counter
	SamplingErrors     prometheus.Counter
	PersistenceErrors  prometheus.Counter
	Deliveries         *prometheus.CounterVec
	TicksSkipped       prometheus.Counter
	TickDuration       prometheus.Histogram
	SamplesRecorded    prometheus.Counter
	CollectionFailures prometheus.Counter
}

// New creates the metrics and registers them with reg. A nil reg leaves them
// unregistered, which is what most tests want.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RuleEvaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "socialeye_rule_evaluations_total",
			Help: "Rule evaluations by outcome (triggered, quiet, throttled, error)",
		}, []string{"result"}),
		AlertsTriggered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "socialeye_alerts_triggered_total",
			Help: "Alerts created, by severity",
		}, []string{"severity"}),
		AlertsThrottled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "socialeye_alerts_throttled_total",
			Help: "Condition matches suppressed by the throttle gate",
		}),
		SamplingErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "socialeye_sampling_errors_total",
			Help: "Metric sampling failures",
		}),
		PersistenceErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "socialeye_persistence_errors_total",
			Help: "Alert store write failures",
		}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "socialeye_deliveries_total",
			Help: "Notification deliveries by channel kind and result",
		}, []string{"channel", "result"}),
		TicksSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "socialeye_ticks_skipped_total",
			Help: "Scheduler ticks skipped because the previous tick was still running",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "socialeye_tick_duration_seconds",
			Help:    "Duration of one rule check pass",
			Buckets: prometheus.DefBuckets,
		}),
		SamplesRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "socialeye_samples_recorded_total",
			Help: "Metric samples written by the container collector",
		}),
		CollectionFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "socialeye_collection_failures_total",
			Help: "Failed container stats collections",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.RuleEvaluations,
			m.AlertsTriggered,
			m.AlertsThrottled,
			m.SamplingErrors,
			m.PersistenceErrors,
			m.Deliveries,
			m.TicksSkipped,
			m.TickDuration,
			m.SamplesRecorded,
			m.CollectionFailures,
		)
	}
	return m
}
