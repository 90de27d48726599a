package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestServer_HealthReturnsHealthyWithNoProbesConfigured(t *testing.T) {
	srv := NewServer("dispatchd", "1.0.0", nil, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if resp.Status != string(StatusHealthy) {
		t.Fatalf("expected Healthy, got %s", resp.Status)
	}
}

func TestServer_ReadyReturns503WhenSagaProbeUnhealthy(t *testing.T) {
	thresholds := DefaultSagaHealthThresholds()
	monitor := fakeSagaMonitor{stuck: instances(thresholds.UnhealthyStuckThreshold)}
	probe := NewSagaHealthProbe(monitor, thresholds)

	srv := NewServer("dispatchd", "1.0.0", probe, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestServer_HealthReportsOnlyJobsThatHaveBeaten(t *testing.T) {
	registry := NewHeartbeatRegistry(DefaultHeartbeatThresholds())
	registry.Beat("outbox-loop")
	// "saga-timeout-loop" never beats: ReportAll covers only jobs that have
	// beaten at least once, so it does not appear in the report at all.
	srv := NewServer("dispatchd", "1.0.0", nil, registry)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	srv.Router().ServeHTTP(rec, req)

	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if resp.Status != string(StatusHealthy) {
		t.Fatalf("expected Healthy with only a fresh heartbeat registered, got %s", resp.Status)
	}
	if len(resp.Jobs) != 1 {
		t.Fatalf("expected 1 reported job, got %d", len(resp.Jobs))
	}
}

func TestServer_InfoReturnsServiceMetadata(t *testing.T) {
	srv := NewServer("dispatchd", "2.3.1", nil, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/info", nil)
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if body["service"] != "dispatchd" {
		t.Fatalf("expected service name dispatchd, got %v", body["service"])
	}
}

func TestServer_MetricsEndpointIsRegistered(t *testing.T) {
	srv := NewServer("dispatchd", "1.0.0", nil, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
