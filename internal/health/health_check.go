package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/devrev/tsdb/confignode/internal/loadcache"
	"github.com/devrev/tsdb/confignode/internal/model"
	"github.com/devrev/tsdb/confignode/internal/store"
)

// CycleCounter reports how many recompute cycles have completed
type CycleCounter interface {
	Cycles() uint64
}

// HealthChecker provides health check endpoints
type HealthChecker struct {
	topology   store.TopologyStore
	statistics store.StatisticsStore
	registry   *loadcache.Registry
	cycles     CycleCounter
	timeout    time.Duration
	logger     *zap.Logger
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status       string                    `json:"status"`
	Timestamp    int64                     `json:"timestamp"`
	Checks       map[string]string         `json:"checks,omitempty"`
	RegionGroups map[model.GroupStatus]int `json:"region_groups,omitempty"`
}

// NewHealthChecker creates a new health checker. The stores and cycles may be nil.
func NewHealthChecker(
	topology store.TopologyStore,
	statistics store.StatisticsStore,
	registry *loadcache.Registry,
	cycles CycleCounter,
	timeout time.Duration,
	logger *zap.Logger,
) *HealthChecker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HealthChecker{
		topology:   topology,
		statistics: statistics,
		registry:   registry,
		cycles:     cycles,
		timeout:    timeout,
		logger:     logger,
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

// ReadinessHandler handles readiness probe requests. The node is ready once
// both stores answer and the first recompute cycle has published statistics.
func (h *HealthChecker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	if err := h.checkTopologyStore(ctx); err != nil {
		h.logger.Error("Topology store health check failed", zap.Error(err))
		checks["topology_store"] = "unhealthy: " + err.Error()
		allHealthy = false
	} else {
		checks["topology_store"] = "healthy"
	}

	if err := h.checkStatisticsStore(ctx); err != nil {
		h.logger.Error("Statistics store health check failed", zap.Error(err))
		checks["statistics_store"] = "unhealthy: " + err.Error()
		allHealthy = false
	} else {
		checks["statistics_store"] = "healthy"
	}

	if h.cycles != nil && h.cycles.Cycles() == 0 {
		checks["load_statistics"] = "waiting for first recompute"
		allHealthy = false
	} else {
		checks["load_statistics"] = "healthy"
	}

	status := HealthStatus{
		Timestamp:    time.Now().Unix(),
		Checks:       checks,
		RegionGroups: h.registry.CountByStatus(),
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

func (h *HealthChecker) checkTopologyStore(ctx context.Context) error {
	if h.topology == nil {
		return nil
	}
	return h.topology.Ping(ctx)
}

func (h *HealthChecker) checkStatisticsStore(ctx context.Context) error {
	if h.statistics == nil {
		return nil
	}
	return h.statistics.Ping(ctx)
}

// NewHealthServer builds the health check HTTP server
func NewHealthServer(hc *HealthChecker, port int, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", hc.LivenessHandler)
	mux.HandleFunc("/health/ready", hc.ReadinessHandler)

	addr := fmt.Sprintf(":%d", port)
	logger.Info("Health check server configured", zap.String("address", addr))

	return &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}
