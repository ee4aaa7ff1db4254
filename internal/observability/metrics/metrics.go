package metrics

import "github.com/prometheus/client_golang/prometheus"

// RealtimeMetrics exposes counters for the push-event pipeline.
type RealtimeMetrics struct {
	eventsTotal    *prometheus.CounterVec
	connectsTotal  prometheus.Counter
	reconnectTotal prometheus.Counter
	refreshTotal   *prometheus.CounterVec
}

func NewRealtimeMetrics(reg prometheus.Registerer) *RealtimeMetrics {
	m := &RealtimeMetrics{
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shifalink",
			Subsystem: "realtime",
			Name:      "events_total",
			Help:      "Push events by kind and reconciliation outcome",
		}, []string{"kind", "outcome"}),
		connectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shifalink",
			Subsystem: "realtime",
			Name:      "connections_total",
			Help:      "Socket connections established",
		}),
		reconnectTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shifalink",
			Subsystem: "realtime",
			Name:      "reconnects_total",
			Help:      "Socket reconnect attempts after a transport error",
		}),
		refreshTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shifalink",
			Subsystem: "api",
			Name:      "token_refresh_total",
			Help:      "Bearer token refreshes by result",
		}, []string{"status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.eventsTotal, m.connectsTotal, m.reconnectTotal, m.refreshTotal)
	return m
}

// Reconciliation outcomes.
const (
	OutcomeApplied   = "applied"
	OutcomeDuplicate = "duplicate"
	OutcomeDropped   = "dropped"
	OutcomeFailed    = "failed"
)

func (m *RealtimeMetrics) ObserveEvent(kind, outcome string) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(kind, outcome).Inc()
}

func (m *RealtimeMetrics) ObserveConnect() {
	if m == nil {
		return
	}
	m.connectsTotal.Inc()
}

func (m *RealtimeMetrics) ObserveReconnect() {
	if m == nil {
		return
	}
	m.reconnectTotal.Inc()
}

func (m *RealtimeMetrics) ObserveTokenRefresh(status string) {
	if m == nil {
		return
	}
	m.refreshTotal.WithLabelValues(status).Inc()
}
