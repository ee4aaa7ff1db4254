package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestRealtimeMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRealtimeMetrics(reg)
	m.ObserveEvent("notification.created", OutcomeApplied)
	m.ObserveEvent("notification.created", OutcomeDuplicate)
	m.ObserveConnect()
	m.ObserveReconnect()
	m.ObserveTokenRefresh("ok")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	byName := map[string]*dto.MetricFamily{}
	for _, f := range families {
		byName[f.GetName()] = f
	}
	events := byName["shifalink_realtime_events_total"]
	if events == nil {
		t.Fatal("expected events_total family")
	}
	if len(events.Metric) != 2 {
		t.Fatalf("expected two labelled series, got %d", len(events.Metric))
	}
	if byName["shifalink_realtime_connections_total"].Metric[0].Counter.GetValue() != 1 {
		t.Fatal("expected one connection observed")
	}
}

func TestRealtimeMetricsNilSafe(t *testing.T) {
	var m *RealtimeMetrics
	m.ObserveEvent("kind", OutcomeDropped)
	m.ObserveConnect()
	m.ObserveReconnect()
	m.ObserveTokenRefresh("failed")
}
