package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ntanwir10/AI-Anamoly-Detector/pkg/sketch"
	"github.com/ntanwir10/AI-Anamoly-Detector/shared/logging"
)

var (
	mIngested = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "collector", Name: "metrics_ingested_total",
		Help: "Metric payloads accepted.",
	})
	mRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "collector", Name: "metrics_rejected_total",
		Help: "Metric payloads rejected as malformed.",
	})
	mSketchErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "collector", Name: "sketch_errors_total",
		Help: "Failed counter updates.",
	})
)

func init() {
	prometheus.MustRegister(mIngested, mRejected, mSketchErrors)
}

// pairTracker records which services talk to which. Backed by the
// cuckoo filter in production.
type pairTracker interface {
	Add(ctx context.Context, item string) error
}

// Server accepts application metric payloads and feeds the
// probabilistic counters the fingerprint builder reads from.
type Server struct {
	endpoints sketch.Counter
	statuses  sketch.Counter
	pairs     pairTracker
	ping      func(context.Context) error
}

func NewServer(endpoints, statuses sketch.Counter, pairs pairTracker, ping func(context.Context) error) *Server {
	return &Server{endpoints: endpoints, statuses: statuses, pairs: pairs, ping: ping}
}

// MetricsRequest is the POST /api/metrics payload.
type MetricsRequest struct {
	Service       string        `json:"service"`
	Endpoint      string        `json:"endpoint"`
	SourceService string        `json:"source_service,omitempty"`
	Metrics       MetricsFields `json:"metrics"`
}

type MetricsFields struct {
	StatusCode   int     `json:"status_code"`
	ResponseTime float64 `json:"response_time,omitempty"`
	PayloadSize  int64   `json:"payload_size,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) MetricsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "POST required"})
		return
	}
	var req MetricsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		mRejected.Inc()
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "JSON payload required"})
		return
	}
	if req.Endpoint == "" {
		mRejected.Inc()
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "endpoint is required"})
		return
	}
	status := req.Metrics.StatusCode
	if status == 0 {
		status = http.StatusOK
	}

	ctx := r.Context()
	if req.SourceService != "" && req.Service != "" {
		if err := s.pairs.Add(ctx, req.SourceService+":"+req.Service); err != nil {
			mSketchErrors.Inc()
			logging.Warnf("pair tracking failed: %v", err)
		}
	}
	if err := s.endpoints.IncrBy(ctx, req.Endpoint, 1); err != nil {
		mSketchErrors.Inc()
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if err := s.statuses.IncrBy(ctx, strconv.Itoa(status), 1); err != nil {
		mSketchErrors.Inc()
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	mIngested.Inc()
	logging.Infof("metrics from %s endpoint=%s status=%d", req.Service, req.Endpoint, status)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "success",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy", "redis": "disconnected", "error": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "redis": "connected"})
}

func (s *Server) InfoHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "collector",
		"status":  "running",
		"endpoints": map[string]string{
			"metrics": "POST /api/metrics",
			"health":  "GET /health",
		},
	})
}
