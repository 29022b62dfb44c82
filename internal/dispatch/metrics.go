package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the dispatch engine's Prometheus collectors.
type Metrics struct {
	cycles   *prometheus.CounterVec
	messages *prometheus.CounterVec
	duration prometheus.Histogram
	attempts prometheus.Histogram
}

// NewMetrics registers the collectors on reg. A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "remindbot",
			Name:      "dispatch_cycles_total",
			Help:      "Dispatch cycles by result (completed, inactive, empty, busy).",
		}, []string{"result"}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "remindbot",
			Name:      "dispatch_messages_total",
			Help:      "Per-destination dispatch results by outcome and message source.",
		}, []string{"outcome", "source"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "remindbot",
			Name:      "dispatch_cycle_duration_seconds",
			Help:      "Wall time of completed dispatch cycles, including send delays.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		attempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "remindbot",
			Name:      "dispatch_generation_attempts",
			Help:      "Generation calls needed per destination.",
			Buckets:   []float64{1, 2, 3, 4},
		}),
	}
	if reg != nil {
		reg.MustRegister(m.cycles, m.messages, m.duration, m.attempts)
	}
	return m
}

func (m *Metrics) cycle(result string) {
	if m != nil {
		m.cycles.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) message(outcome, source string) {
	if m != nil {
		m.messages.WithLabelValues(outcome, source).Inc()
	}
}

func (m *Metrics) observe(r CycleReport) {
	if m != nil {
		m.duration.Observe(r.Duration.Seconds())
	}
}

func (m *Metrics) attempt(n int) {
	if m != nil && n > 0 {
		m.attempts.Observe(float64(n))
	}
}
