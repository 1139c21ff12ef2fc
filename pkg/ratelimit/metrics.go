package ratelimit

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exports limiter activity to prometheus. A nil *Metrics records nothing.
type Metrics struct {
	requests      *prometheus.CounterVec
	violations    *prometheus.CounterVec
	backendErrors prometheus.Counter
	checkDuration prometheus.Histogram
}

// NewMetrics registers the limiter collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "throttle",
			Name:      "requests_total",
			Help:      "Requests evaluated by the rate limiter, by decision.",
		}, []string{"decision"}),
		violations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "throttle",
			Name:      "rule_violations_total",
			Help:      "Rules tripped by denied requests.",
		}, []string{"dimension", "category"}),
		backendErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "throttle",
			Name:      "backend_errors_total",
			Help:      "Backend checks that failed and were allowed through.",
		}),
		checkDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "throttle",
			Name:      "check_duration_seconds",
			Help:      "Latency of a single backend check.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5},
		}),
	}
}

func (m *Metrics) decision(allowed bool) {
	if m == nil {
		return
	}
	if allowed {
		m.requests.WithLabelValues("allowed").Inc()
		return
	}
	m.requests.WithLabelValues("blocked").Inc()
}

func (m *Metrics) violation(key Key) {
	if m == nil {
		return
	}
	m.violations.WithLabelValues(string(key.Dimension), string(key.Category)).Inc()
}

func (m *Metrics) backendError() {
	if m == nil {
		return
	}
	m.backendErrors.Inc()
}

func (m *Metrics) observeCheck(d time.Duration) {
	if m == nil {
		return
	}
	m.checkDuration.Observe(d.Seconds())
}
