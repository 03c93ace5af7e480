package service

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	cnerrors "github.com/devrev/tsdb/confignode/internal/errors"
	"github.com/devrev/tsdb/confignode/internal/metrics"
	"github.com/devrev/tsdb/confignode/internal/model"
	"github.com/devrev/tsdb/confignode/internal/util/workerpool"
)

func TestHeartbeatService_HandleReport(t *testing.T) {
	registry, clock := newTestRegistry(t)
	m := newTestMetrics()
	require.NoError(t, registry.CreateGroupCache("root.sg", dataRegion(1), []int32{1, 2}, model.ConsistencyStrong))
	require.NoError(t, registry.CreateGroupCache("root.sg", dataRegion(2), []int32{2}, model.ConsistencyStrong))

	svc := NewHeartbeatService(registry, nil, m, zap.NewNop())

	result := svc.HandleReport(&model.HeartbeatReport{
		DataNodeID: 1,
		Regions: []model.RegionHeartbeat{
			running(dataRegion(1)),
			running(dataRegion(2)), // node 1 hosts no replica of group 2
			running(dataRegion(9)),
			{GroupID: dataRegion(1), Status: "Sleeping"},
		},
	})

	assert.Equal(t, HeartbeatResult{Cached: 1, UnknownGroup: 1, UnknownReplica: 1, Invalid: 1}, result)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HeartbeatSamples.WithLabelValues(metrics.SampleCached)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HeartbeatReports))

	cache, ok := registry.GroupCache(dataRegion(1))
	require.True(t, ok)
	replica, ok := cache.ReplicaCache(1)
	require.True(t, ok)
	latest, ok := replica.LatestSample()
	require.True(t, ok)
	// no timestamp in the report: stamped with the registry clock
	assert.Equal(t, clock.Now(), latest.Timestamp)
}

func TestHeartbeatService_HandleReportHonoursOverwrite(t *testing.T) {
	registry, clock := newTestRegistry(t)
	require.NoError(t, registry.CreateGroupCache("root.sg", dataRegion(1), []int32{1}, model.ConsistencyStrong))
	svc := NewHeartbeatService(registry, nil, newTestMetrics(), zap.NewNop())

	svc.HandleReport(&model.HeartbeatReport{DataNodeID: 1, Regions: []model.RegionHeartbeat{
		{GroupID: dataRegion(1), Status: model.ReplicaStatusRemoving, Timestamp: clock.Now()},
	}})
	svc.HandleReport(&model.HeartbeatReport{DataNodeID: 1, Regions: []model.RegionHeartbeat{
		{GroupID: dataRegion(1), Status: model.ReplicaStatusRunning, Timestamp: clock.Now() + 1},
	}})
	_, err := registry.UpdateAll(context.Background(), 1)
	require.NoError(t, err)

	stats, _ := registry.GetCurrentStatistics(dataRegion(1)).Replica(1)
	assert.Equal(t, model.ReplicaStatusRemoving, stats.Status)

	svc.HandleReport(&model.HeartbeatReport{DataNodeID: 1, Regions: []model.RegionHeartbeat{
		{GroupID: dataRegion(1), Status: model.ReplicaStatusRunning, Timestamp: clock.Now() + 2, Overwrite: true},
	}})
	_, err = registry.UpdateAll(context.Background(), 1)
	require.NoError(t, err)

	stats, _ = registry.GetCurrentStatistics(dataRegion(1)).Replica(1)
	assert.Equal(t, model.ReplicaStatusRunning, stats.Status)
}

func TestHeartbeatService_HandleReportRejectsOutOfRangeTimestamps(t *testing.T) {
	registry, clock := newTestRegistry(t)
	m := newTestMetrics()
	require.NoError(t, registry.CreateGroupCache("root.sg", dataRegion(1), []int32{1}, model.ConsistencyStrong))
	svc := NewHeartbeatService(registry, nil, m, zap.NewNop())

	result := svc.HandleReport(&model.HeartbeatReport{DataNodeID: 1, Regions: []model.RegionHeartbeat{
		{GroupID: dataRegion(1), Status: model.ReplicaStatusRunning, Timestamp: clock.Now() + int64(time.Hour)},
		{GroupID: dataRegion(1), Status: model.ReplicaStatusRunning, Timestamp: math.MinInt64 + 5},
		{GroupID: dataRegion(1), Status: model.ReplicaStatusRunning, Timestamp: -1},
	}})

	assert.Equal(t, HeartbeatResult{InvalidTimestamp: 3}, result)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.HeartbeatSamples.WithLabelValues(metrics.SampleInvalidTimestamp)))

	cache, _ := registry.GroupCache(dataRegion(1))
	replica, _ := cache.ReplicaCache(1)
	assert.Equal(t, 0, replica.SampleCount())

	// a report timestamp in the future is rejected for every region that inherits it
	result = svc.HandleReport(&model.HeartbeatReport{
		DataNodeID: 1,
		Timestamp:  clock.Now() + int64(time.Minute),
		Regions:    []model.RegionHeartbeat{running(dataRegion(1))},
	})
	assert.Equal(t, HeartbeatResult{InvalidTimestamp: 1}, result)

	// within one heartbeat interval of the clock is accepted
	result = svc.HandleReport(&model.HeartbeatReport{DataNodeID: 1, Regions: []model.RegionHeartbeat{
		{GroupID: dataRegion(1), Status: model.ReplicaStatusReadOnly, Timestamp: clock.Now() + int64(500*time.Millisecond)},
	}})
	assert.Equal(t, HeartbeatResult{Cached: 1}, result)

	_, err := registry.UpdateAll(context.Background(), 1)
	require.NoError(t, err)
	stats, _ := registry.GetCurrentStatistics(dataRegion(1)).Replica(1)
	assert.Equal(t, model.ReplicaStatusReadOnly, stats.Status)

	clock.Advance(time.Minute)
	_, err = registry.UpdateAll(context.Background(), 1)
	require.NoError(t, err)
	stats, _ = registry.GetCurrentStatistics(dataRegion(1)).Replica(1)
	assert.Equal(t, model.ReplicaStatusUnknown, stats.Status)
}

func TestHeartbeatService_SubmitReport(t *testing.T) {
	registry, _ := newTestRegistry(t)
	require.NoError(t, registry.CreateGroupCache("root.sg", dataRegion(1), []int32{1}, model.ConsistencyStrong))

	pool := workerpool.NewWorkerPool(workerpool.Config{Name: "heartbeat", MaxWorkers: 2, QueueSize: 8})
	svc := NewHeartbeatService(registry, pool, newTestMetrics(), zap.NewNop())

	require.NoError(t, svc.SubmitReport(&model.HeartbeatReport{DataNodeID: 1, Regions: []model.RegionHeartbeat{running(dataRegion(1))}}))
	require.NoError(t, pool.Stop(time.Second))

	cache, _ := registry.GroupCache(dataRegion(1))
	replica, _ := cache.ReplicaCache(1)
	assert.Equal(t, 1, replica.SampleCount())

	err := svc.SubmitReport(&model.HeartbeatReport{DataNodeID: 1})
	assert.Equal(t, cnerrors.ErrCodeUnavailable, cnerrors.GetCode(err))

	err = svc.SubmitReport(nil)
	assert.Equal(t, cnerrors.ErrCodeInvalidArgument, cnerrors.GetCode(err))
}

func TestHeartbeatService_SubmitReportQueueFull(t *testing.T) {
	registry, _ := newTestRegistry(t)
	m := newTestMetrics()
	pool := workerpool.NewWorkerPool(workerpool.Config{Name: "heartbeat", MaxWorkers: 1, QueueSize: 1})
	svc := NewHeartbeatService(registry, pool, m, zap.NewNop())

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, pool.Submit(workerpool.Task{Fn: func(context.Context) error {
		close(started)
		<-release
		return nil
	}}))
	<-started

	require.NoError(t, svc.SubmitReport(&model.HeartbeatReport{DataNodeID: 1}))
	err := svc.SubmitReport(&model.HeartbeatReport{DataNodeID: 1})
	assert.Equal(t, cnerrors.ErrCodeResourceExhausted, cnerrors.GetCode(err))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IngestRejections.WithLabelValues("queue_full")))

	close(release)
	require.NoError(t, pool.Stop(time.Second))
}
