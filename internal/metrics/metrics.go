// Package metrics holds the prometheus collectors for production tracking.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	Registry *prometheus.Registry

	childMutations *prometheus.CounterVec
	transitions    *prometheus.CounterVec
	rejections     *prometheus.CounterVec
	recompute      prometheus.Histogram
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		childMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "prodtrack",
			Name:      "child_mutations_total",
			Help:      "Hourly entry and stoppage mutations committed, by kind and operation.",
		}, []string{"kind", "op"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "prodtrack",
			Name:      "record_transitions_total",
			Help:      "Production record finalize/reopen transitions.",
		}, []string{"transition"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "prodtrack",
			Name:      "rejections_total",
			Help:      "Operations rejected, by reason.",
		}, []string{"reason"}),
		recompute: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "prodtrack",
			Name:      "recompute_duration_seconds",
			Help:      "Time spent reading children and writing record aggregates.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
	}
	reg.MustRegister(m.childMutations, m.transitions, m.rejections, m.recompute)
	return m
}

func (m *Metrics) ChildMutation(kind, op string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.childMutations.WithLabelValues(kind, op).Add(float64(n))
}

func (m *Metrics) Transition(name string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(name).Inc()
}

func (m *Metrics) Rejection(reason string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveRecompute(d time.Duration) {
	if m == nil {
		return
	}
	m.recompute.Observe(d.Seconds())
}

// Counter accessors for tests.
func (m *Metrics) TransitionCounter(name string) prometheus.Counter {
	return m.transitions.WithLabelValues(name)
}

func (m *Metrics) RejectionCounter(reason string) prometheus.Counter {
	return m.rejections.WithLabelValues(reason)
}

func (m *Metrics) ChildMutationCounter(kind, op string) prometheus.Counter {
	return m.childMutations.WithLabelValues(kind, op)
}
