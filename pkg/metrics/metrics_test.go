package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew_RegistersInGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg, "test", "svc")

	m.RecordRPC("/multimodal.transit.v1.TransitService/SimulateAll", "ok", 10*time.Millisecond)
	m.SetServiceInfo("1.0.0", "test")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{"test_svc_rpc_requests_total", "test_svc_service_info"} {
		if !names[want] {
			t.Errorf("metric %s not registered", want)
		}
	}
}

func TestRecordCommand(t *testing.T) {
	m := New(prometheus.NewRegistry(), "test", "")

	m.RecordCommand("simulate_all", nil)
	m.RecordCommand("simulate_all", errors.New("running"))
	m.RecordCommand("simulate_all", errors.New("running"))

	if got := testutil.ToFloat64(m.CommandsTotal.WithLabelValues("simulate_all", "ok")); got != 1 {
		t.Errorf("ok = %v", got)
	}
	if got := testutil.ToFloat64(m.CommandsTotal.WithLabelValues("simulate_all", "rejected")); got != 2 {
		t.Errorf("rejected = %v", got)
	}
}

func TestSimulationMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry(), "test", "")

	m.RecordTick("Sea")
	m.RecordTick("Sea")
	m.RecordCompletion("Air")
	m.SetActiveRuns(3)

	if got := testutil.ToFloat64(m.SimulationTicks.WithLabelValues("Sea")); got != 2 {
		t.Errorf("ticks = %v", got)
	}
	if got := testutil.ToFloat64(m.ActiveRuns); got != 3 {
		t.Errorf("active = %v", got)
	}
	if got := testutil.ToFloat64(m.CompletedRuns.WithLabelValues("Air")); got != 1 {
		t.Errorf("completed = %v", got)
	}
}

func TestDestroyAndEnumeration(t *testing.T) {
	m := New(prometheus.NewRegistry(), "test", "")

	m.RecordDestroy("city", 4)
	m.RecordDestroy("route", 1)
	m.RecordEnumeration(7, time.Millisecond)

	if got := testutil.ToFloat64(m.RoutesRemoved); got != 5 {
		t.Errorf("routes removed = %v", got)
	}
	if got := testutil.ToFloat64(m.NetworkMutations.WithLabelValues("city")); got != 1 {
		t.Errorf("city destroys = %v", got)
	}
	if got := testutil.ToFloat64(m.PathEnumerations); got != 1 {
		t.Errorf("enumerations = %v", got)
	}
}

func TestAdvisorAndStream(t *testing.T) {
	m := New(prometheus.NewRegistry(), "test", "")

	m.RecordAdvisor("heuristic", "ok", 5*time.Millisecond)
	m.RecordCacheLookup(true)
	m.RecordCacheLookup(false)
	m.StreamClientDelta(1)
	m.StreamClientDelta(1)
	m.StreamClientDelta(-1)
	m.RecordStreamDrop()

	if got := testutil.ToFloat64(m.AdvisorCalls.WithLabelValues("heuristic", "ok")); got != 1 {
		t.Errorf("advisor calls = %v", got)
	}
	if got := testutil.ToFloat64(m.CacheLookups.WithLabelValues("hit")); got != 1 {
		t.Errorf("hits = %v", got)
	}
	if got := testutil.ToFloat64(m.StreamClients); got != 1 {
		t.Errorf("clients = %v", got)
	}
	if got := testutil.ToFloat64(m.StreamDropped); got != 1 {
		t.Errorf("dropped = %v", got)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.RecordRPC("p", "ok", time.Second)
	m.RecordCommand("c", nil)
	m.RecordTick("Sea")
	m.SetActiveRuns(1)
	m.RecordCompletion("Sea")
	m.RecordDestroy("city", 1)
	m.RecordEnumeration(1, time.Second)
	m.RecordAdvisor("x", "ok", time.Second)
	m.RecordCacheLookup(true)
	m.StreamClientDelta(1)
	m.RecordStreamDrop()
	m.SetServiceInfo("v", "e")
}

func TestNetworkCollector(t *testing.T) {
	stats := NetworkStats{Version: 3, Locations: 5, Routes: 8, Generation: 2, Pending: true}
	collector := NewNetworkCollector("test", "", func() NetworkStats { return stats })

	reg := prometheus.NewRegistry()
	reg.MustRegister(collector)

	if n := testutil.CollectAndCount(collector); n != 5 {
		t.Errorf("expected 5 metrics, got %d", n)
	}

	expected := `
# HELP test_network_routes Routes currently in the network
# TYPE test_network_routes gauge
test_network_routes 8
# HELP test_analysis_pending 1 while an advisor request is in flight
# TYPE test_analysis_pending gauge
test_analysis_pending 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"test_network_routes", "test_analysis_pending"); err != nil {
		t.Error(err)
	}

	stats.Routes, stats.Pending = 15, false
	if err := testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP test_network_routes Routes currently in the network
# TYPE test_network_routes gauge
test_network_routes 15
`), "test_network_routes"); err != nil {
		t.Error(err)
	}
}

func TestRequestTracker(t *testing.T) {
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_in_flight"})
	tracker := NewRequestTracker(gauge)

	tracker.Start("/SimulateAll")
	tracker.Start("/SimulateAll")
	tracker.Start("/Stop")

	if tracker.Active("/SimulateAll") != 2 {
		t.Errorf("active = %d, want 2", tracker.Active("/SimulateAll"))
	}

	tracker.End("/SimulateAll")
	tracker.End("/SimulateAll")
	tracker.End("/SimulateAll")
	if tracker.Active("/SimulateAll") != 0 {
		t.Error("active count should not go negative")
	}
	if got := testutil.ToFloat64(gauge); got != 1 {
		t.Errorf("in flight = %v, want 1", got)
	}
}

func TestHandlerFor(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg, "test", "")
	m.RecordTick("Land")

	rec := httptest.NewRecorder()
	HandlerFor(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if !strings.Contains(rec.Body.String(), `test_simulation_ticks_total{mode="Land"} 1`) {
		t.Errorf("unexpected exposition:\n%s", rec.Body.String())
	}
}
