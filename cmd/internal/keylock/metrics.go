package keylock

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records lock waits for one or more registries, labelled by registry name.
type Metrics struct {
	wait     *prometheus.HistogramVec
	timeouts *prometheus.CounterVec
	held     *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them on reg (skipped when reg is nil).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		wait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "duet",
			Subsystem: "keylock",
			Name:      "wait_seconds",
			Help:      "Time spent waiting to acquire a key.",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 2.5, 5},
		}, []string{"registry"}),
		timeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "duet",
			Subsystem: "keylock",
			Name:      "timeouts_total",
			Help:      "Acquisitions abandoned because the wait bound elapsed.",
		}, []string{"registry"}),
		held: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "duet",
			Subsystem: "keylock",
			Name:      "held",
			Help:      "Keys currently held.",
		}, []string{"registry"}),
	}
	if reg != nil {
		reg.MustRegister(m.wait, m.timeouts, m.held)
	}
	return m
}

func (m *Metrics) observeWait(name string, d time.Duration) {
	if m == nil {
		return
	}
	m.wait.WithLabelValues(name).Observe(d.Seconds())
}

func (m *Metrics) timeout(name string) {
	if m == nil {
		return
	}
	m.timeouts.WithLabelValues(name).Inc()
}

func (m *Metrics) setHeld(name string, n int) {
	if m == nil {
		return
	}
	m.held.WithLabelValues(name).Set(float64(n))
}
