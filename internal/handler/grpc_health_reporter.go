package handler

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/devrev/tsdb/confignode/internal/model"
	"github.com/devrev/tsdb/confignode/internal/service"
)

// GRPCHealthReporter mirrors region group status into the standard gRPC
// health service. Each group is a health "service" named by its group id:
// SERVING while Running or Available, NOT_SERVING while Disabled.
type GRPCHealthReporter struct {
	server *health.Server
	logger *zap.Logger

	mu    sync.Mutex
	known map[model.ConsensusGroupID]struct{}
}

// NewGRPCHealthReporter creates a reporter writing to server
func NewGRPCHealthReporter(server *health.Server, logger *zap.Logger) *GRPCHealthReporter {
	return &GRPCHealthReporter{
		server: server,
		logger: logger,
		known:  make(map[model.ConsensusGroupID]struct{}),
	}
}

// OnStatisticsUpdated implements service.StatisticsListener
func (g *GRPCHealthReporter) OnStatisticsUpdated(ctx context.Context, update *service.StatisticsUpdate) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for id, stats := range update.Snapshot {
		g.server.SetServingStatus(id.String(), servingStatus(stats.Status()))
		g.known[id] = struct{}{}
	}

	// groups that left the registry
	for id := range g.known {
		if _, ok := update.Snapshot[id]; !ok {
			g.server.SetServingStatus(id.String(), healthpb.HealthCheckResponse_SERVICE_UNKNOWN)
			delete(g.known, id)
			g.logger.Debug("Region group health entry retired", zap.String("group_id", id.String()))
		}
	}
}

func servingStatus(status model.GroupStatus) healthpb.HealthCheckResponse_ServingStatus {
	if status.IsServing() {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}

var _ service.StatisticsListener = (*GRPCHealthReporter)(nil)
