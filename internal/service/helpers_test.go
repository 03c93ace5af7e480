package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/devrev/tsdb/confignode/internal/loadcache"
	"github.com/devrev/tsdb/confignode/internal/metrics"
	"github.com/devrev/tsdb/confignode/internal/model"
)

// testClock is a manually advanced logical clock
type testClock struct {
	now atomic.Int64
}

func (c *testClock) Now() int64 {
	return c.now.Load()
}

func (c *testClock) Advance(d time.Duration) {
	c.now.Add(int64(d))
}

func newTestRegistry(t *testing.T) (*loadcache.Registry, *testClock) {
	t.Helper()
	clock := &testClock{}
	clock.now.Store(int64(100 * time.Second))

	opts := loadcache.DefaultOptions(time.Second)
	opts.StalenessHorizon = 10 * time.Second
	opts.Clock = clock.Now

	r, err := loadcache.NewRegistry(opts, zap.NewNop())
	require.NoError(t, err)
	return r, clock
}

func newTestMetrics() *metrics.Metrics {
	return metrics.NewMetrics(prometheus.NewRegistry())
}

func dataRegion(id int32) model.ConsensusGroupID {
	return model.ConsensusGroupID{Type: model.DataRegion, ID: id}
}

func running(groupID model.ConsensusGroupID) model.RegionHeartbeat {
	return model.RegionHeartbeat{GroupID: groupID, Status: model.ReplicaStatusRunning}
}

// MockTopologyStore is a mock implementation of TopologyStore
type MockTopologyStore struct {
	mock.Mock
}

func (m *MockTopologyStore) ListRegionGroups(ctx context.Context) ([]*model.RegionGroup, error) {
	args := m.Called(ctx)
	return args.Get(0).([]*model.RegionGroup), args.Error(1)
}

func (m *MockTopologyStore) GetRegionGroup(ctx context.Context, groupID model.ConsensusGroupID) (*model.RegionGroup, error) {
	args := m.Called(ctx, groupID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.RegionGroup), args.Error(1)
}

func (m *MockTopologyStore) CreateRegionGroup(ctx context.Context, group *model.RegionGroup) error {
	args := m.Called(ctx, group)
	return args.Error(0)
}

func (m *MockTopologyStore) DeleteRegionGroup(ctx context.Context, groupID model.ConsensusGroupID) error {
	args := m.Called(ctx, groupID)
	return args.Error(0)
}

func (m *MockTopologyStore) AddReplica(ctx context.Context, groupID model.ConsensusGroupID, dataNodeID int32) error {
	args := m.Called(ctx, groupID, dataNodeID)
	return args.Error(0)
}

func (m *MockTopologyStore) RemoveReplica(ctx context.Context, groupID model.ConsensusGroupID, dataNodeID int32) error {
	args := m.Called(ctx, groupID, dataNodeID)
	return args.Error(0)
}

func (m *MockTopologyStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockTopologyStore) Close() {}

// MockStatisticsStore is a mock implementation of StatisticsStore
type MockStatisticsStore struct {
	mock.Mock
}

func (m *MockStatisticsStore) PutGroupStatistics(ctx context.Context, groupID model.ConsensusGroupID, stats *model.GroupStatistics, ttl time.Duration) error {
	args := m.Called(ctx, groupID, stats, ttl)
	return args.Error(0)
}

func (m *MockStatisticsStore) GetGroupStatistics(ctx context.Context, groupID model.ConsensusGroupID) (*model.GroupStatistics, error) {
	args := m.Called(ctx, groupID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.GroupStatistics), args.Error(1)
}

func (m *MockStatisticsStore) DeleteGroupStatistics(ctx context.Context, groupID model.ConsensusGroupID) error {
	args := m.Called(ctx, groupID)
	return args.Error(0)
}

func (m *MockStatisticsStore) PublishStatusChange(ctx context.Context, change model.StatusChange) error {
	args := m.Called(ctx, change)
	return args.Error(0)
}

func (m *MockStatisticsStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockStatisticsStore) Close() error {
	return nil
}
