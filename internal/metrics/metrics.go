// Package metrics provides Prometheus metrics collection for the dispatch
// substrate: outbox publishing, saga coordination, and audit logging.
package metrics

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors for the dispatch service.
type Metrics struct {
	// Outbox metrics
	OutboxPublishedTotal  *prometheus.CounterVec
	OutboxPublishDuration *prometheus.HistogramVec
	OutboxPendingGauge    prometheus.Gauge
	OutboxRetriesTotal    *prometheus.CounterVec

	// Saga metrics
	SagaDispatchedTotal *prometheus.CounterVec
	SagaDuration        *prometheus.HistogramVec
	SagaStuckGauge      prometheus.Gauge
	SagaFailedGauge     prometheus.Gauge
	SagaTimeoutsTotal   *prometheus.CounterVec

	// Audit metrics
	AuditEventsTotal      *prometheus.CounterVec
	AuditAlertsTotal      *prometheus.CounterVec
	AuditChainSequence    prometheus.Gauge
	AuditRetentionDeletes *prometheus.CounterVec

	// Database metrics
	DatabaseQueriesTotal    *prometheus.CounterVec
	DatabaseQueryDuration   *prometheus.HistogramVec
	DatabaseConnectionsOpen prometheus.Gauge

	// Service health
	ServiceUptime prometheus.Gauge
	ServiceInfo   *prometheus.GaugeVec
}

// New creates a new Metrics instance with all collectors registered against
// the default Prometheus registry.
func New(serviceName string) *Metrics {
	return NewWithRegistry(serviceName, prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a new Metrics instance with a custom registry.
func NewWithRegistry(serviceName string, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		OutboxPublishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dispatch_outbox_published_total",
				Help: "Total number of outbox messages published, by transport and status",
			},
			[]string{"service", "transport", "status"},
		),
		OutboxPublishDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dispatch_outbox_publish_duration_seconds",
				Help:    "Outbox publish attempt duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"service", "transport"},
		),
		OutboxPendingGauge: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "dispatch_outbox_pending",
				Help: "Current number of unpublished outbox messages",
			},
		),
		OutboxRetriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dispatch_outbox_retries_total",
				Help: "Total number of outbox publish retries",
			},
			[]string{"service", "transport"},
		),

		SagaDispatchedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dispatch_saga_dispatched_total",
				Help: "Total number of saga dispatches, by saga type and outcome",
			},
			[]string{"service", "saga_type", "outcome"},
		),
		SagaDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dispatch_saga_dispatch_duration_seconds",
				Help:    "Saga dispatch duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"service", "saga_type"},
		),
		SagaStuckGauge: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "dispatch_saga_stuck",
				Help: "Current number of sagas considered stuck by the health probe",
			},
		),
		SagaFailedGauge: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "dispatch_saga_failed",
				Help: "Current number of sagas considered failed by the health probe",
			},
		),
		SagaTimeoutsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dispatch_saga_timeouts_total",
				Help: "Total number of saga timeouts delivered, by outcome",
			},
			[]string{"service", "outcome"},
		),

		AuditEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dispatch_audit_events_total",
				Help: "Total number of audit events appended, by event type and outcome",
			},
			[]string{"service", "event_type", "outcome"},
		),
		AuditAlertsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dispatch_audit_alerts_total",
				Help: "Total number of audit alerts dispatched, by rule and severity",
			},
			[]string{"service", "rule", "severity"},
		),
		AuditChainSequence: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "dispatch_audit_chain_sequence",
				Help: "Highest sequence number appended to the audit chain",
			},
		),
		AuditRetentionDeletes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dispatch_audit_retention_deleted_total",
				Help: "Total number of audit events deleted by the retention sweep",
			},
			[]string{"service"},
		),

		DatabaseQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dispatch_database_queries_total",
				Help: "Total number of database queries, by operation and status",
			},
			[]string{"service", "operation", "status"},
		),
		DatabaseQueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dispatch_database_query_duration_seconds",
				Help:    "Database query duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"service", "operation"},
		),
		DatabaseConnectionsOpen: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "dispatch_database_connections_open",
				Help: "Current number of open database connections",
			},
		),

		ServiceUptime: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "dispatch_service_uptime_seconds",
				Help: "Service uptime in seconds",
			},
		),
		ServiceInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dispatch_service_info",
				Help: "Service information",
			},
			[]string{"service", "version", "environment"},
		),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.OutboxPublishedTotal,
			m.OutboxPublishDuration,
			m.OutboxPendingGauge,
			m.OutboxRetriesTotal,
			m.SagaDispatchedTotal,
			m.SagaDuration,
			m.SagaStuckGauge,
			m.SagaFailedGauge,
			m.SagaTimeoutsTotal,
			m.AuditEventsTotal,
			m.AuditAlertsTotal,
			m.AuditChainSequence,
			m.AuditRetentionDeletes,
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

func (m *Metrics) RecordOutboxPublish(service, transport, status string, duration time.Duration) {
	m.OutboxPublishedTotal.WithLabelValues(service, transport, status).Inc()
	m.OutboxPublishDuration.WithLabelValues(service, transport).Observe(duration.Seconds())
}

func (m *Metrics) RecordOutboxRetry(service, transport string) {
	m.OutboxRetriesTotal.WithLabelValues(service, transport).Inc()
}

func (m *Metrics) SetOutboxPending(count int) {
	m.OutboxPendingGauge.Set(float64(count))
}

func (m *Metrics) RecordSagaDispatch(service, sagaType, outcome string, duration time.Duration) {
	m.SagaDispatchedTotal.WithLabelValues(service, sagaType, outcome).Inc()
	m.SagaDuration.WithLabelValues(service, sagaType).Observe(duration.Seconds())
}

func (m *Metrics) RecordSagaTimeout(service, outcome string) {
	m.SagaTimeoutsTotal.WithLabelValues(service, outcome).Inc()
}

func (m *Metrics) SetSagaHealthCounts(stuck, failed int) {
	m.SagaStuckGauge.Set(float64(stuck))
	m.SagaFailedGauge.Set(float64(failed))
}

func (m *Metrics) RecordAuditEvent(service, eventType, outcome string) {
	m.AuditEventsTotal.WithLabelValues(service, eventType, outcome).Inc()
}

func (m *Metrics) RecordAuditAlert(service, rule, severity string) {
	m.AuditAlertsTotal.WithLabelValues(service, rule, severity).Inc()
}

func (m *Metrics) SetAuditChainSequence(seq int64) {
	m.AuditChainSequence.Set(float64(seq))
}

func (m *Metrics) RecordAuditRetentionDelete(service string, deleted int) {
	m.AuditRetentionDeletes.WithLabelValues(service).Add(float64(deleted))
}

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

func getEnvironment() string {
	env := strings.ToLower(strings.TrimSpace(os.Getenv("DISPATCH_ENV")))
	if env == "" {
		return "development"
	}
	return env
}

// Enabled returns whether Prometheus metrics should be exposed.
//
// Defaults: production disabled unless explicitly enabled via
// METRICS_ENABLED; non-production enabled unless explicitly disabled.
func Enabled() bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv("METRICS_ENABLED")))
	if raw == "" {
		return getEnvironment() != "production"
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
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
		globalMetrics = New("dispatch")
	}
	return globalMetrics
}
