package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics контейнер метрик сервиса. Все методы безопасны для nil-получателя,
// поэтому компоненты могут работать без метрик.
type Metrics struct {
	// RPC
	RPCRequestsTotal    *prometheus.CounterVec
	RPCRequestDuration  *prometheus.HistogramVec
	RPCRequestsInFlight prometheus.Gauge

	// Команды сессии
	CommandsTotal *prometheus.CounterVec

	// Симуляция
	SimulationTicks *prometheus.CounterVec
	ActiveRuns      prometheus.Gauge
	CompletedRuns   *prometheus.CounterVec

	// Кризис
	NetworkMutations *prometheus.CounterVec
	RoutesRemoved    prometheus.Counter

	// Поиск путей
	PathEnumerations    prometheus.Counter
	PathsFound          prometheus.Histogram
	EnumerationDuration prometheus.Histogram

	// Советник
	AdvisorCalls    *prometheus.CounterVec
	AdvisorDuration *prometheus.HistogramVec
	CacheLookups    *prometheus.CounterVec

	// Поток событий
	StreamClients prometheus.Gauge
	StreamDropped prometheus.Counter

	ServiceInfo *prometheus.GaugeVec
}

var (
	defaultMetrics *Metrics
	defaultOnce    sync.Mutex
)

// InitMetrics регистрирует метрики в глобальном реестре
func InitMetrics(namespace, subsystem string) *Metrics {
	m := New(prometheus.DefaultRegisterer, namespace, subsystem)

	defaultOnce.Lock()
	defaultMetrics = m
	defaultOnce.Unlock()

	return m
}

// New регистрирует метрики в переданном реестре
func New(reg prometheus.Registerer, namespace, subsystem string) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		RPCRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "rpc_requests_total",
				Help:      "Total number of RPC requests",
			},
			[]string{"procedure", "code"},
		),

		RPCRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "rpc_request_duration_seconds",
				Help:      "Duration of RPC requests",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"procedure"},
		),

		RPCRequestsInFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "rpc_requests_in_flight",
				Help:      "Current number of RPC requests being processed",
			},
		),

		CommandsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "commands_total",
				Help:      "Session commands by result",
			},
			[]string{"command", "result"},
		),

		SimulationTicks: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "simulation_ticks_total",
				Help:      "Motion ticks applied",
			},
			[]string{"mode"},
		),

		ActiveRuns: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "simulation_active_runs",
				Help:      "Routes currently in Running state",
			},
		),

		CompletedRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "simulation_completed_total",
				Help:      "Routes that reached progress 1",
			},
			[]string{"mode"},
		),

		NetworkMutations: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "network_mutations_total",
				Help:      "Destroy operations applied to the network",
			},
			[]string{"kind"},
		),

		RoutesRemoved: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "network_routes_removed_total",
				Help:      "Routes removed by destroy operations including cascades",
			},
		),

		PathEnumerations: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "path_enumerations_total",
				Help:      "Simple path enumerations performed",
			},
		),

		PathsFound: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "paths_found",
				Help:      "Number of simple paths found per enumeration",
				Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100, 500},
			},
		),

		EnumerationDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "path_enumeration_duration_seconds",
				Help:      "Duration of simple path enumeration",
				Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
			},
		),

		AdvisorCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "advisor_calls_total",
				Help:      "Advisor invocations by outcome",
			},
			[]string{"provider", "status"},
		),

		AdvisorDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "advisor_duration_seconds",
				Help:      "Advisor call latency",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"provider"},
		),

		CacheLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "advice_cache_lookups_total",
				Help:      "Advice cache lookups",
			},
			[]string{"result"},
		),

		StreamClients: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "stream_clients",
				Help:      "Connected websocket clients",
			},
		),

		StreamDropped: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "stream_dropped_events_total",
				Help:      "Events dropped because a client buffer was full",
			},
		),

		ServiceInfo: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "service_info",
				Help:      "Service information",
			},
			[]string{"version", "environment"},
		),
	}
}

// Get возвращает глобальные метрики
func Get() *Metrics {
	defaultOnce.Lock()
	m := defaultMetrics
	defaultOnce.Unlock()

	if m == nil {
		return InitMetrics("multimodal", "")
	}
	return m
}

// RecordRPC записывает метрики RPC запроса
func (m *Metrics) RecordRPC(procedure, code string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RPCRequestsTotal.WithLabelValues(procedure, code).Inc()
	m.RPCRequestDuration.WithLabelValues(procedure).Observe(duration.Seconds())
}

// RecordCommand учитывает команду сессии
func (m *Metrics) RecordCommand(command string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "rejected"
	}
	m.CommandsTotal.WithLabelValues(command, result).Inc()
}

// RecordTick учитывает один шаг движения
func (m *Metrics) RecordTick(mode string) {
	if m == nil {
		return
	}
	m.SimulationTicks.WithLabelValues(mode).Inc()
}

// SetActiveRuns обновляет число выполняющихся маршрутов
func (m *Metrics) SetActiveRuns(n int) {
	if m == nil {
		return
	}
	m.ActiveRuns.Set(float64(n))
}

// RecordCompletion учитывает завершённый маршрут
func (m *Metrics) RecordCompletion(mode string) {
	if m == nil {
		return
	}
	m.CompletedRuns.WithLabelValues(mode).Inc()
}

// RecordDestroy учитывает разрушение пункта или маршрута
func (m *Metrics) RecordDestroy(kind string, routesRemoved int) {
	if m == nil {
		return
	}
	m.NetworkMutations.WithLabelValues(kind).Inc()
	m.RoutesRemoved.Add(float64(routesRemoved))
}

// RecordEnumeration учитывает поиск путей
func (m *Metrics) RecordEnumeration(paths int, duration time.Duration) {
	if m == nil {
		return
	}
	m.PathEnumerations.Inc()
	m.PathsFound.Observe(float64(paths))
	m.EnumerationDuration.Observe(duration.Seconds())
}

// RecordAdvisor учитывает вызов советника
func (m *Metrics) RecordAdvisor(provider, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.AdvisorCalls.WithLabelValues(provider, status).Inc()
	m.AdvisorDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordCacheLookup учитывает попадание или промах кэша
func (m *Metrics) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// StreamClientDelta изменяет число подключённых клиентов
func (m *Metrics) StreamClientDelta(delta int) {
	if m == nil {
		return
	}
	m.StreamClients.Add(float64(delta))
}

// RecordStreamDrop учитывает отброшенное событие
func (m *Metrics) RecordStreamDrop() {
	if m == nil {
		return
	}
	m.StreamDropped.Inc()
}

// SetServiceInfo устанавливает информацию о сервисе
func (m *Metrics) SetServiceInfo(version, environment string) {
	if m == nil {
		return
	}
	m.ServiceInfo.WithLabelValues(version, environment).Set(1)
}

// Handler возвращает HTTP handler для /metrics
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor возвращает handler для конкретного реестра
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
