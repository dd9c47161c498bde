// Package metrics provides Prometheus metrics collection for the SOC
// event backbone (spec §6.5 A4).
package metrics

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors for the process.
type Metrics struct {
	// HTTP metrics
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	// Error metrics
	ErrorsTotal *prometheus.CounterVec

	// Event backbone metrics (C1-C5)
	EventsPublishedTotal *prometheus.CounterVec
	EventsConsumedTotal  *prometheus.CounterVec
	ConsumerLagEntries   *prometheus.GaugeVec

	// SOC/Ticketing domain metrics (C6, C7)
	IncidentTransitionsTotal *prometheus.CounterVec
	TicketTransitionsTotal   *prometheus.CounterVec
	SLABreachesTotal         *prometheus.CounterVec

	// Push endpoint metrics (C8)
	SSEConnectionsActive prometheus.Gauge

	// Database metrics
	DatabaseQueriesTotal    *prometheus.CounterVec
	DatabaseQueryDuration   *prometheus.HistogramVec
	DatabaseConnectionsOpen prometheus.Gauge

	// Service health
	ServiceUptime prometheus.Gauge
	ServiceInfo   *prometheus.GaugeVec
}

// New creates a new Metrics instance with all collectors registered.
func New(serviceName string) *Metrics {
	return NewWithRegistry(serviceName, prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a new Metrics instance with a custom registry.
func NewWithRegistry(serviceName string, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "http_requests_total", Help: "Total number of HTTP requests"},
			[]string{"service", "method", "path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"service", "method", "path"},
		),
		RequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "http_requests_in_flight", Help: "Current number of HTTP requests being processed"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "errors_total", Help: "Total number of errors"},
			[]string{"service", "type", "operation"},
		),

		EventsPublishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "events_published_total", Help: "Total number of events published to the event bus"},
			[]string{"event_type", "stream"},
		),
		EventsConsumedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "events_consumed_total", Help: "Total number of events consumed, by outcome"},
			[]string{"event_type", "group", "outcome"},
		),
		ConsumerLagEntries: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "consumer_lag_entries", Help: "Estimated unread entries for a consumer group"},
			[]string{"stream", "group"},
		),

		IncidentTransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "incident_transitions_total", Help: "Total number of incident state transitions"},
			[]string{"from_state", "to_state"},
		),
		TicketTransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "ticket_transitions_total", Help: "Total number of ticket state transitions"},
			[]string{"from_state", "to_state"},
		),
		SLABreachesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "sla_breaches_total", Help: "Total number of SLA breaches detected by the sweep job"},
			[]string{"severity"},
		),

		SSEConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "sse_connections_active", Help: "Current number of open SSE push connections"},
		),

		DatabaseQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "database_queries_total", Help: "Total number of database queries"},
			[]string{"service", "operation", "status"},
		),
		DatabaseQueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "database_query_duration_seconds",
				Help:    "Database query duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"service", "operation"},
		),
		DatabaseConnectionsOpen: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "database_connections_open", Help: "Current number of open database connections"},
		),

		ServiceUptime: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "service_uptime_seconds", Help: "Service uptime in seconds"},
		),
		ServiceInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "service_info", Help: "Service information"},
			[]string{"service", "version", "environment"},
		),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.RequestsTotal,
			m.RequestDuration,
			m.RequestsInFlight,
			m.ErrorsTotal,
			m.EventsPublishedTotal,
			m.EventsConsumedTotal,
			m.ConsumerLagEntries,
			m.IncidentTransitionsTotal,
			m.TicketTransitionsTotal,
			m.SLABreachesTotal,
			m.SSEConnectionsActive,
			m.DatabaseQueriesTotal,
			m.DatabaseQueryDuration,
			m.DatabaseConnectionsOpen,
			m.ServiceUptime,
			m.ServiceInfo,
		)
	}

	m.ServiceInfo.WithLabelValues(serviceName, "1.0.0", getEnvironment()).Set(1)

	return m
}

func (m *Metrics) RecordHTTPRequest(service, method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(service, method, path, status).Inc()
	m.RequestDuration.WithLabelValues(service, method, path).Observe(duration.Seconds())
}

func (m *Metrics) RecordError(service, errorType, operation string) {
	m.ErrorsTotal.WithLabelValues(service, errorType, operation).Inc()
}

func (m *Metrics) RecordEventPublished(eventType, stream string) {
	m.EventsPublishedTotal.WithLabelValues(eventType, stream).Inc()
}

func (m *Metrics) RecordEventConsumed(eventType, group, outcome string) {
	m.EventsConsumedTotal.WithLabelValues(eventType, group, outcome).Inc()
}

func (m *Metrics) RecordIncidentTransition(fromState, toState string) {
	m.IncidentTransitionsTotal.WithLabelValues(fromState, toState).Inc()
}

func (m *Metrics) RecordTicketTransition(fromState, toState string) {
	m.TicketTransitionsTotal.WithLabelValues(fromState, toState).Inc()
}

func (m *Metrics) RecordSLABreach(severity string) {
	m.SLABreachesTotal.WithLabelValues(severity).Inc()
}

func (m *Metrics) SSEConnectionOpened() { m.SSEConnectionsActive.Inc() }
func (m *Metrics) SSEConnectionClosed() { m.SSEConnectionsActive.Dec() }

func (m *Metrics) RecordDatabaseQuery(service, operation, status string, duration time.Duration) {
	m.DatabaseQueriesTotal.WithLabelValues(service, operation, status).Inc()
	m.DatabaseQueryDuration.WithLabelValues(service, operation).Observe(duration.Seconds())
}

func (m *Metrics) SetDatabaseConnections(count int) {
	m.DatabaseConnectionsOpen.Set(float64(count))
}

func (m *Metrics) UpdateUptime(startTime time.Time) {
	m.ServiceUptime.Set(time.Since(startTime).Seconds())
}

func (m *Metrics) IncrementInFlight() { m.RequestsInFlight.Inc() }
func (m *Metrics) DecrementInFlight() { m.RequestsInFlight.Dec() }

func getEnvironment() string {
	env := strings.ToLower(strings.TrimSpace(os.Getenv("ENVIRONMENT")))
	if env == "" {
		return "development"
	}
	return env
}

// Enabled returns whether Prometheus metrics should be exposed.
// Defaults to enabled; set METRICS_ENABLED=false to disable.
func Enabled() bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv("METRICS_ENABLED")))
	if raw == "" {
		return true
	}
	switch raw {
	case "0", "false", "no", "off":
		return false
	default:
		return true
	}
}

var (
	globalMetrics *Metrics
	globalMu      sync.Mutex
)

// Init initializes the global metrics instance.
func Init(serviceName string) *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalMetrics == nil {
		globalMetrics = New(serviceName)
	}
	return globalMetrics
}

// Global returns the global metrics instance.
func Global() *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalMetrics == nil {
		globalMetrics = New("unknown")
	}
	return globalMetrics
}
