package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewWithRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("dispatch-test", reg)

	if m == nil {
		t.Fatal("Expected metrics instance, got nil")
	}
	if m.OutboxPublishedTotal == nil {
		t.Error("OutboxPublishedTotal should not be nil")
	}
	if m.SagaDispatchedTotal == nil {
		t.Error("SagaDispatchedTotal should not be nil")
	}
	if m.AuditEventsTotal == nil {
		t.Error("AuditEventsTotal should not be nil")
	}

	metricFamilies, err := reg.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}
	if len(metricFamilies) == 0 {
		t.Error("Expected metrics to be registered")
	}
}

func TestRecordOutboxPublish(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("dispatch-test", reg)

	m.RecordOutboxPublish("dispatch-test", "kafka", "success", 10*time.Millisecond)
	m.RecordOutboxPublish("dispatch-test", "kafka", "failed", 5*time.Millisecond)
	m.RecordOutboxRetry("dispatch-test", "kafka")
	m.SetOutboxPending(42)
}

func TestRecordSagaDispatch(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("dispatch-test", reg)

	m.RecordSagaDispatch("dispatch-test", "order-fulfillment", "completed", 50*time.Millisecond)
	m.RecordSagaTimeout("dispatch-test", "delivered")
	m.SetSagaHealthCounts(3, 1)
}

func TestRecordAuditEvent(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("dispatch-test", reg)

	m.RecordAuditEvent("dispatch-test", "Security", "Success")
	m.RecordAuditAlert("dispatch-test", "repeated-failures", "High")
	m.SetAuditChainSequence(1024)
	m.RecordAuditRetentionDelete("dispatch-test", 500)
}

func TestUpdateUptime(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("dispatch-test", reg)
	startTime := time.Now().Add(-1 * time.Hour)

	m.UpdateUptime(startTime)
}

func TestEnabledDefaultsToTrueOutsideProduction(t *testing.T) {
	t.Setenv("METRICS_ENABLED", "")
	t.Setenv("DISPATCH_ENV", "development")

	if !Enabled() {
		t.Error("expected metrics enabled by default outside production")
	}
}

func TestEnabledDefaultsToFalseInProduction(t *testing.T) {
	t.Setenv("METRICS_ENABLED", "")
	t.Setenv("DISPATCH_ENV", "production")

	if Enabled() {
		t.Error("expected metrics disabled by default in production")
	}
}

func TestEnabledHonorsExplicitOverride(t *testing.T) {
	t.Setenv("METRICS_ENABLED", "true")
	t.Setenv("DISPATCH_ENV", "production")

	if !Enabled() {
		t.Error("expected explicit METRICS_ENABLED=true to override production default")
	}
}
