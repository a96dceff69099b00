package syncer

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus collectors of the sync engine. A nil *Metrics
// records nothing.
type Metrics struct {
	Operations *prometheus.CounterVec
	State      *prometheus.GaugeVec
	Rearms     prometheus.Counter
}

// NewMetrics creates the sync collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smartspend_sync_operations_total",
				Help: "Finished sync operations by direction and outcome",
			},
			[]string{"direction", "outcome"},
		),
		State: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "smartspend_sync_state",
				Help: "1 for the current sync engine state, 0 otherwise",
			},
			[]string{"state"},
		),
		Rearms: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "smartspend_sync_debounce_rearms_total",
				Help: "Debounce timers cancelled by a newer local change",
			},
		),
	}
	if reg != nil {
		reg.MustRegister(m.Operations, m.State, m.Rearms)
	}
	return m
}

func (m *Metrics) observe(direction, outcome string) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(direction, outcome).Inc()
}

func (m *Metrics) setState(current State) {
	if m == nil {
		return
	}
	for _, s := range States {
		v := 0.0
		if s == current {
			v = 1
		}
		m.State.WithLabelValues(string(s)).Set(v)
	}
}

func (m *Metrics) rearmed() {
	if m == nil {
		return
	}
	m.Rearms.Inc()
}
