package realtime

import "github.com/prometheus/client_golang/prometheus"

// Metrics tracks websocket connections and fan-out. A nil *Metrics is a no-op.
type Metrics struct {
	connections prometheus.Gauge
	published   *prometheus.CounterVec
	dropped     prometheus.Counter
	rejected    *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg (skipped when reg is nil).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "duet",
			Subsystem: "realtime",
			Name:      "connections",
			Help:      "Open websocket connections.",
		}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "duet",
			Subsystem: "realtime",
			Name:      "published_total",
			Help:      "Events published to conversation channels, by type.",
		}, []string{"type"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "duet",
			Subsystem: "realtime",
			Name:      "dropped_total",
			Help:      "Deliveries skipped because a client queue was full.",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "duet",
			Subsystem: "realtime",
			Name:      "rejected_total",
			Help:      "Upgrade requests refused before the handshake, by reason.",
		}, []string{"reason"}),
	}
	if reg != nil {
		reg.MustRegister(m.connections, m.published, m.dropped, m.rejected)
	}
	return m
}

func (m *Metrics) connected(delta float64) {
	if m != nil {
		m.connections.Add(delta)
	}
}

func (m *Metrics) publish(typ string, dropped int) {
	if m == nil {
		return
	}
	m.published.WithLabelValues(typ).Inc()
	if dropped > 0 {
		m.dropped.Add(float64(dropped))
	}
}

func (m *Metrics) reject(reason string) {
	if m != nil {
		m.rejected.WithLabelValues(reason).Inc()
	}
}
