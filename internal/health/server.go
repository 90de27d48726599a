package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthResponse is the standard response for /health and /ready.
type HealthResponse struct {
	Status    string                 `json:"status"`
	Service   string                 `json:"service"`
	Version   string                 `json:"version"`
	Timestamp string                 `json:"timestamp"`
	Sagas     *SagaHealthReport      `json:"sagas,omitempty"`
	Jobs      []HeartbeatReport      `json:"jobs,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// Server exposes /health, /ready, /info, and /metrics for the dispatch
// service, combining the saga health probe and job heartbeat registry into
// one JSON surface.
type Server struct {
	serviceName string
	version     string
	sagaProbe   *SagaHealthProbe
	heartbeats  *HeartbeatRegistry
	router      *mux.Router
	startTime   time.Time
}

// NewServer wires the standard routes onto a fresh gorilla/mux router.
// sagaProbe may be nil when no saga coordinator is configured.
func NewServer(serviceName, version string, sagaProbe *SagaHealthProbe, heartbeats *HeartbeatRegistry) *Server {
	s := &Server{
		serviceName: serviceName,
		version:     version,
		sagaProbe:   sagaProbe,
		heartbeats:  heartbeats,
		router:      mux.NewRouter(),
		startTime:   time.Now().UTC(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) Router() *mux.Router { return s.router }

func (s *Server) registerRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet)
	s.router.HandleFunc("/info", s.handleInfo).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
}

// handleHealth reports liveness: always 200 unless the process itself is
// unable to respond. It includes the same aggregate report as /ready for
// operator visibility but does not fail the HTTP status on degradation.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := s.buildReport(r.Context())
	writeJSON(w, http.StatusOK, resp)
}

// handleReady reports readiness: 503 whenever the aggregate status is not
// Healthy, suitable for a Kubernetes readiness probe.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	resp := s.buildReport(r.Context())

	code := http.StatusOK
	if resp.Status != string(StatusHealthy) {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "active",
		"service":   s.serviceName,
		"version":   s.version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.startTime).String(),
	})
}

func (s *Server) buildReport(ctx context.Context) HealthResponse {
	resp := HealthResponse{
		Status:    string(StatusHealthy),
		Service:   s.serviceName,
		Version:   s.version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	worst := StatusHealthy

	if s.sagaProbe != nil {
		report := s.sagaProbe.Check(ctx)
		resp.Sagas = &report
		worst = worstOf(worst, report.Status)
	}

	if s.heartbeats != nil {
		jobs := s.heartbeats.ReportAll()
		resp.Jobs = jobs
		for _, job := range jobs {
			worst = worstOf(worst, job.Status)
		}
	}

	resp.Status = string(worst)
	return resp
}

func worstOf(a, b Status) Status {
	rank := map[Status]int{StatusHealthy: 0, StatusDegraded: 1, StatusUnhealthy: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
