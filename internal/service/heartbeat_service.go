package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	cnerrors "github.com/devrev/tsdb/confignode/internal/errors"
	"github.com/devrev/tsdb/confignode/internal/loadcache"
	"github.com/devrev/tsdb/confignode/internal/metrics"
	"github.com/devrev/tsdb/confignode/internal/model"
	"github.com/devrev/tsdb/confignode/internal/util/workerpool"
)

// HeartbeatResult counts what happened to the regions of one report
type HeartbeatResult struct {
	Cached         int `json:"cached"`
	UnknownGroup   int `json:"unknown_group"`
	UnknownReplica int `json:"unknown_replica"`
	Invalid        int `json:"invalid"`

	// InvalidTimestamp counts regions dated before the epoch or more than one
	// heartbeat interval ahead of this node's clock
	InvalidTimestamp int `json:"invalid_timestamp"`
}

// HeartbeatService routes data node heartbeat reports into the load cache
type HeartbeatService struct {
	registry *loadcache.Registry
	pool     *workerpool.WorkerPool
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewHeartbeatService creates a new heartbeat service. The pool is used by
// SubmitReport and may be nil when only HandleReport is called.
func NewHeartbeatService(
	registry *loadcache.Registry,
	pool *workerpool.WorkerPool,
	m *metrics.Metrics,
	logger *zap.Logger,
) *HeartbeatService {
	return &HeartbeatService{
		registry: registry,
		pool:     pool,
		metrics:  m,
		logger:   logger,
	}
}

// HandleReport caches every region heartbeat of a report synchronously.
// Regions of unknown groups or replicas are counted and skipped.
func (s *HeartbeatService) HandleReport(report *model.HeartbeatReport) HeartbeatResult {
	var result HeartbeatResult
	opts := s.registry.Options()
	now := opts.Now()

	for _, region := range report.Regions {
		if !region.Status.IsValid() {
			result.Invalid++
			s.metrics.RecordHeartbeatSample(metrics.SampleInvalidStatus)
			s.logger.Warn("Dropping heartbeat with invalid status",
				zap.Int32("data_node_id", report.DataNodeID),
				zap.String("group_id", region.GroupID.String()),
				zap.String("status", string(region.Status)))
			continue
		}

		if _, ok := s.registry.GroupCache(region.GroupID); !ok {
			result.UnknownGroup++
			s.metrics.RecordHeartbeatSample(metrics.SampleUnknownGroup)
			continue
		}

		sample := report.Sample(region, now)
		if sample.Timestamp <= 0 || sample.Timestamp > opts.MaxFutureTimestamp(now) {
			result.InvalidTimestamp++
			s.metrics.RecordHeartbeatSample(metrics.SampleInvalidTimestamp)
			s.logger.Warn("Dropping heartbeat with out of range timestamp",
				zap.Int32("data_node_id", report.DataNodeID),
				zap.String("group_id", region.GroupID.String()),
				zap.Int64("timestamp", sample.Timestamp),
				zap.Int64("now", now))
			continue
		}

		if !s.registry.CacheHeartbeatSample(region.GroupID, report.DataNodeID, sample, region.Overwrite) {
			result.UnknownReplica++
			s.metrics.RecordHeartbeatSample(metrics.SampleUnknownNode)
			continue
		}
		result.Cached++
		s.metrics.RecordHeartbeatSample(metrics.SampleCached)
	}

	s.metrics.RecordHeartbeatReport()
	if result.UnknownGroup > 0 || result.UnknownReplica > 0 {
		s.logger.Debug("Heartbeat report referenced unknown replicas",
			zap.Int32("data_node_id", report.DataNodeID),
			zap.Int("unknown_group", result.UnknownGroup),
			zap.Int("unknown_replica", result.UnknownReplica))
	}
	return result
}

// SubmitReport queues a report for asynchronous ingestion without blocking
func (s *HeartbeatService) SubmitReport(report *model.HeartbeatReport) error {
	if report == nil {
		return cnerrors.InvalidArgument("heartbeat report is required", nil)
	}
	if s.pool == nil {
		s.HandleReport(report)
		return nil
	}

	err := s.pool.Submit(workerpool.Task{
		ID: fmt.Sprintf("heartbeat-%d", report.DataNodeID),
		Fn: func(context.Context) error {
			s.HandleReport(report)
			return nil
		},
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, workerpool.ErrQueueFull):
		s.metrics.RecordIngestRejection("queue_full")
		return cnerrors.ResourceExhausted("heartbeat ingestion queue", err)
	case errors.Is(err, workerpool.ErrStopped):
		s.metrics.RecordIngestRejection("stopped")
		return cnerrors.Unavailable("heartbeat ingestion is stopped", err)
	default:
		return cnerrors.InternalError("failed to queue heartbeat report", err)
	}
}
