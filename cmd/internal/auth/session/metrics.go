package session

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts authority outcomes. A nil *Metrics is a no-op.
type Metrics struct {
	outcomes *prometheus.CounterVec
	issued   prometheus.Counter
	logouts  prometheus.Counter
	swept    prometheus.Counter
}

// NewMetrics creates the collectors and registers them on reg (skipped when reg is nil).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "duet",
			Subsystem: "auth",
			Name:      "authenticate_total",
			Help:      "Authenticate calls by outcome.",
		}, []string{"outcome"}),
		issued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "duet",
			Subsystem: "auth",
			Name:      "issued_total",
			Help:      "Token pairs issued at login or signup.",
		}),
		logouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "duet",
			Subsystem: "auth",
			Name:      "logouts_total",
			Help:      "Logouts that removed a record.",
		}),
		swept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "duet",
			Subsystem: "auth",
			Name:      "swept_total",
			Help:      "Expired records removed by the sweeper.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.outcomes, m.issued, m.logouts, m.swept)
	}
	return m
}

func (m *Metrics) outcome(o Outcome) {
	if m != nil {
		m.outcomes.WithLabelValues(o.String()).Inc()
	}
}

func (m *Metrics) issue() {
	if m != nil {
		m.issued.Inc()
	}
}

func (m *Metrics) logout() {
	if m != nil {
		m.logouts.Inc()
	}
}

func (m *Metrics) sweep(n int) {
	if m != nil && n > 0 {
		m.swept.Add(float64(n))
	}
}
