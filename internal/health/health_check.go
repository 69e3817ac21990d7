package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/meshroute/balancer/internal/inventory"
	"github.com/meshroute/balancer/internal/service"
	"go.uber.org/zap"
)

// HealthChecker provides the engine's own liveness/readiness endpoints
type HealthChecker struct {
	engine    *service.Engine
	inventory inventory.Provider
	logger    *zap.Logger
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp int64             `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(engine *service.Engine, provider inventory.Provider, logger *zap.Logger) *HealthChecker {
	return &HealthChecker{
		engine:    engine,
		inventory: provider,
		logger:    logger,
	}
}

// LivenessHandler handles liveness probe requests
func (h *HealthChecker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{
		Status:    "alive",
		Timestamp: time.Now().Unix(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(status)
}

// ReadinessHandler handles readiness probe requests. Ready means the
// monitor loop is running and the inventory is reachable.
func (h *HealthChecker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	if h.engine.MonitoringActive() {
		checks["monitor"] = "running"
	} else {
		checks["monitor"] = "stopped"
		allHealthy = false
	}

	if _, err := h.inventory.ListNodes(ctx); err != nil {
		h.logger.Error("Inventory health check failed", zap.Error(err))
		checks["inventory"] = "unhealthy: " + err.Error()
		allHealthy = false
	} else {
		checks["inventory"] = "healthy"
	}

	status := HealthStatus{
		Timestamp: time.Now().Unix(),
		Checks:    checks,
	}

	w.Header().Set("Content-Type", "application/json")

	if allHealthy {
		status.Status = "ready"
		w.WriteHeader(http.StatusOK)
	} else {
		status.Status = "not_ready"
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	json.NewEncoder(w).Encode(status)
}

// StartHealthServer starts the health check HTTP server
func StartHealthServer(hc *HealthChecker, port int, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", hc.LivenessHandler)
	mux.HandleFunc("/health/ready", hc.ReadinessHandler)

	addr := fmt.Sprintf(":%d", port)
	logger.Info("Starting health check server", zap.String("address", addr))

	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return server.ListenAndServe()
}
