package vote

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts toggles by result. A nil *Metrics is a no-op.
type Metrics struct {
	toggles *prometheus.CounterVec
}

// NewMetrics creates the collector and registers it on reg (skipped when reg is nil).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		toggles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "duet",
			Subsystem: "vote",
			Name:      "toggles_total",
			Help:      "Upvote toggles by result (added, removed, not_found, no_effect, timeout, error).",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(m.toggles)
	}
	return m
}

func (m *Metrics) inc(result string) {
	if m != nil {
		m.toggles.WithLabelValues(result).Inc()
	}
}
