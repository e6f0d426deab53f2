package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// NetworkStats состояние сети на момент сбора
type NetworkStats struct {
	Version    uint64
	Locations  int
	Routes     int
	Generation uint64
	Pending    bool
}

// NetworkCollector отдаёт состояние сети при каждом scrape. Источник
// вызывается из горутины промхендлера и должен быть потокобезопасным.
type NetworkCollector struct {
	source func() NetworkStats

	version    *prometheus.Desc
	locations  *prometheus.Desc
	routes     *prometheus.Desc
	generation *prometheus.Desc
	pending    *prometheus.Desc
}

// NewNetworkCollector создаёт коллектор поверх источника состояния
func NewNetworkCollector(namespace, subsystem string, source func() NetworkStats) *NetworkCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystem, name), help, nil, nil)
	}
	return &NetworkCollector{
		source:     source,
		version:    desc("network_version", "Mutation counter of the live network"),
		locations:  desc("network_locations", "Locations currently in the network"),
		routes:     desc("network_routes", "Routes currently in the network"),
		generation: desc("analysis_generation", "Current crisis analysis generation"),
		pending:    desc("analysis_pending", "1 while an advisor request is in flight"),
	}
}

func (c *NetworkCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.version
	ch <- c.locations
	ch <- c.routes
	ch <- c.generation
	ch <- c.pending
}

func (c *NetworkCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.source()

	pending := 0.0
	if s.Pending {
		pending = 1
	}

	ch <- prometheus.MustNewConstMetric(c.version, prometheus.CounterValue, float64(s.Version))
	ch <- prometheus.MustNewConstMetric(c.locations, prometheus.GaugeValue, float64(s.Locations))
	ch <- prometheus.MustNewConstMetric(c.routes, prometheus.GaugeValue, float64(s.Routes))
	ch <- prometheus.MustNewConstMetric(c.generation, prometheus.GaugeValue, float64(s.Generation))
	ch <- prometheus.MustNewConstMetric(c.pending, prometheus.GaugeValue, pending)
}

// RequestTracker считает активные запросы по процедурам
type RequestTracker struct {
	mu       sync.Mutex
	active   map[string]int
	inFlight prometheus.Gauge
}

// NewRequestTracker создаёт трекер поверх общего gauge
func NewRequestTracker(inFlight prometheus.Gauge) *RequestTracker {
	return &RequestTracker{
		active:   make(map[string]int),
		inFlight: inFlight,
	}
}

// Start отмечает начало запроса
func (t *RequestTracker) Start(procedure string) {
	t.mu.Lock()
	t.active[procedure]++
	t.mu.Unlock()
	t.inFlight.Inc()
}

// Active число активных запросов процедуры
func (t *RequestTracker) Active(procedure string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active[procedure]
}

// End отмечает завершение; лишний End игнорируется
func (t *RequestTracker) End(procedure string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.active[procedure] == 0 {
		return
	}
	t.active[procedure]--
	if t.active[procedure] == 0 {
		delete(t.active, procedure)
	}
	t.inFlight.Dec()
}
