package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/devrev/tsdb/confignode/internal/metrics"
	"github.com/devrev/tsdb/confignode/internal/model"
	"github.com/devrev/tsdb/confignode/internal/store"
)

// StatisticsPublisher writes recomputed group snapshots to a StatisticsStore.
// A group is written when its group status or any replica status differs from
// what was last written; all groups are written on the first cycle and then
// every fullSyncEvery cycles.
type StatisticsPublisher struct {
	store         store.StatisticsStore
	ttl           time.Duration
	fullSyncEvery uint64
	metrics       *metrics.Metrics
	logger        *zap.Logger

	mu      sync.Mutex
	written map[model.ConsensusGroupID]*model.GroupStatistics
}

// NewStatisticsPublisher creates a new statistics publisher
func NewStatisticsPublisher(
	statistics store.StatisticsStore,
	ttl time.Duration,
	fullSyncEvery int,
	m *metrics.Metrics,
	logger *zap.Logger,
) *StatisticsPublisher {
	if fullSyncEvery <= 0 {
		fullSyncEvery = 1
	}
	return &StatisticsPublisher{
		store:         statistics,
		ttl:           ttl,
		fullSyncEvery: uint64(fullSyncEvery),
		metrics:       m,
		logger:        logger,
		written:       make(map[model.ConsensusGroupID]*model.GroupStatistics),
	}
}

// OnStatisticsUpdated implements StatisticsListener
func (p *StatisticsPublisher) OnStatisticsUpdated(ctx context.Context, update *StatisticsUpdate) {
	p.mu.Lock()
	fullSync := update.Cycle == 1 || update.Cycle%p.fullSyncEvery == 0
	changed := make(map[model.ConsensusGroupID]struct{}, len(update.Changes))
	for _, c := range update.Changes {
		changed[c.GroupID] = struct{}{}
	}

	for id, stats := range update.Snapshot {
		_, statusChanged := changed[id]
		if fullSync || statusChanged || !stats.SameStatuses(p.written[id]) {
			p.put(ctx, id, stats)
		}
	}
	for id := range p.written {
		if _, ok := update.Snapshot[id]; !ok {
			delete(p.written, id)
		}
	}
	p.mu.Unlock()

	for _, c := range update.Changes {
		if err := p.store.PublishStatusChange(ctx, c); err != nil {
			p.logger.Warn("Failed to publish status change",
				zap.String("group_id", c.GroupID.String()),
				zap.String("event_id", c.EventID),
				zap.Error(err))
		}
	}
}

// put writes one snapshot; callers hold mu
func (p *StatisticsPublisher) put(ctx context.Context, id model.ConsensusGroupID, stats *model.GroupStatistics) {
	if err := p.store.PutGroupStatistics(ctx, id, stats, p.ttl); err != nil {
		p.logger.Warn("Failed to publish group statistics",
			zap.String("group_id", id.String()),
			zap.Error(err))
		return
	}
	p.written[id] = stats
	p.metrics.RecordPublished(stats.Status())
}
