package estimator

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Estimate outcomes recorded by Metrics.
const (
	OutcomeMeasured   = "measured"
	OutcomeIneligible = "ineligible"
	OutcomeFixed      = "fixed"
	OutcomeError      = "error"
)

// Metrics holds the Prometheus collectors of an Estimator.
// A nil *Metrics records nothing.
type Metrics struct {
	estimates    *prometheus.CounterVec
	calibrations prometheus.Counter
	factor       prometheus.Gauge
	seconds      prometheus.Histogram
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		estimates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "runningtime_estimates_total",
				Help: "Estimate calls by outcome",
			},
			[]string{"outcome"},
		),
		calibrations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "runningtime_calibrations_total",
			Help: "Calibration benchmarks run",
		}),
		factor: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "runningtime_throttling_factor",
			Help: "Throttling factor in use (reference time / host time)",
		}),
		seconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "runningtime_estimate_seconds",
			Help:    "Normalized running time of measured artifacts",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.estimates, m.calibrations, m.factor, m.seconds)
	}
	return m
}

func (m *Metrics) observe(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.estimates.WithLabelValues(outcome).Inc()
	if outcome == OutcomeMeasured {
		m.seconds.Observe(seconds)
	}
}

func (m *Metrics) calibrated(f float64) {
	if m == nil {
		return
	}
	m.calibrations.Inc()
	m.factor.Set(f)
}

func (m *Metrics) factorInUse(f float64) {
	if m == nil {
		return
	}
	m.factor.Set(f)
}
