package core

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the gate's Prometheus collectors. A nil *Metrics records nothing.
type Metrics struct {
	decisions      *prometheus.CounterVec
	lookupFailures prometheus.Counter
	lookupDuration prometheus.Histogram
}

func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authgate",
			Subsystem: "gate",
			Name:      "decisions_total",
			Help:      "Access gate verdicts by path class",
		}, []string{"class", "verdict"}),

		lookupFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "authgate",
			Subsystem: "gate",
			Name:      "session_lookup_failures_total",
			Help:      "Session lookups that failed and were treated as signed out",
		}),

		lookupDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "authgate",
			Subsystem: "gate",
			Name:      "session_lookup_duration_seconds",
			Help:      "Session lookup latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) observeDecision(class PathClass, verdict Verdict) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(class.String(), verdict.String()).Inc()
}

func (m *Metrics) observeLookup(seconds float64, failed bool) {
	if m == nil {
		return
	}
	m.lookupDuration.Observe(seconds)
	if failed {
		m.lookupFailures.Inc()
	}
}
