package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// governance cycle.
type Metrics struct {
	CyclesCompleted  prometheus.Counter
	CycleDuration    prometheus.Histogram
	SchedulerRunning prometheus.Gauge

	// Per-step outcomes. Step labels: ingestion, prediction, enforcement,
	// accountability.
	StepRetries  *prometheus.CounterVec
	StepFailures *prometheus.CounterVec

	EnforcementDispatches    prometheus.Counter
	AccountabilityDispatches prometheus.Counter

	PredictionConfidence prometheus.Gauge
	SurgeStations        prometheus.Gauge

	// Region-resolution enrichment metrics.
	GeocodeRequests *prometheus.CounterVec // labels: outcome={success,error,empty}
	GeocodeCache    *prometheus.CounterVec // labels: result={hit,miss}
	GeocodeEnabled  prometheus.Gauge
}

// NewMetrics creates and registers all cycle metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		CyclesCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "airward",
			Name:      "cycles_completed_total",
			Help:      "Total governance cycles run to completion.",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "airward",
			Name:      "cycle_duration_seconds",
			Help:      "Wall-clock duration of a complete governance cycle.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}),
		SchedulerRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "airward",
			Name:      "scheduler_running",
			Help:      "1 while the governance loop is active, 0 when shut down.",
		}),
		StepRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "airward",
			Name:      "step_retries_total",
			Help:      "Failed step attempts that were retried, by step.",
		}, []string{"step"}),
		StepFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "airward",
			Name:      "step_failures_total",
			Help:      "Steps that exhausted all retry attempts, by step.",
		}, []string{"step"}),
		EnforcementDispatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "airward",
			Name:      "enforcement_dispatches_total",
			Help:      "Enforcement actions dispatched on Severe predictions.",
		}),
		AccountabilityDispatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "airward",
			Name:      "accountability_dispatches_total",
			Help:      "Accountability investigations dispatched on border surges.",
		}),
		PredictionConfidence: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "airward",
			Name:      "prediction_confidence",
			Help:      "Confidence score of the most recent prediction (0-100).",
		}),
		SurgeStations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "airward",
			Name:      "surge_stations",
			Help:      "Border stations flagged as surging in the most recent cycle.",
		}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "airward",
			Name:      "geocode_requests_total",
			Help:      "Region-resolution API requests by outcome.",
		}, []string{"outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "airward",
			Name:      "geocode_cache_total",
			Help:      "Region-resolution cache lookups by result.",
		}, []string{"result"}),
		GeocodeEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "airward",
			Name:      "geocode_enabled",
			Help:      "1 when region-resolution enrichment is enabled, 0 otherwise.",
		}),
	}

	prometheus.MustRegister(
		m.CyclesCompleted,
		m.CycleDuration,
		m.SchedulerRunning,
		m.StepRetries,
		m.StepFailures,
		m.EnforcementDispatches,
		m.AccountabilityDispatches,
		m.PredictionConfidence,
		m.SurgeStations,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.GeocodeEnabled,
	)

	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		CyclesCompleted:          prometheus.NewCounter(prometheus.CounterOpts{Namespace: "airward", Name: "cycles_completed_total"}),
		CycleDuration:            prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "airward", Name: "cycle_duration_seconds"}),
		SchedulerRunning:         prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "airward", Name: "scheduler_running"}),
		StepRetries:              prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "airward", Name: "step_retries_total"}, []string{"step"}),
		StepFailures:             prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "airward", Name: "step_failures_total"}, []string{"step"}),
		EnforcementDispatches:    prometheus.NewCounter(prometheus.CounterOpts{Namespace: "airward", Name: "enforcement_dispatches_total"}),
		AccountabilityDispatches: prometheus.NewCounter(prometheus.CounterOpts{Namespace: "airward", Name: "accountability_dispatches_total"}),
		PredictionConfidence:     prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "airward", Name: "prediction_confidence"}),
		SurgeStations:            prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "airward", Name: "surge_stations"}),
		GeocodeRequests:          prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "airward", Name: "geocode_requests_total"}, []string{"outcome"}),
		GeocodeCache:             prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "airward", Name: "geocode_cache_total"}, []string{"result"}),
		GeocodeEnabled:           prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "airward", Name: "geocode_enabled"}),
	}
}
