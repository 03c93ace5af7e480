package loadcache

import (
	"context"
	"testing"
	"time"

	cnerrors "github.com/devrev/tsdb/confignode/internal/errors"
	"github.com/devrev/tsdb/confignode/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestRegistry(t *testing.T, clock *fakeClock) *Registry {
	t.Helper()
	r, err := NewRegistry(testOptions(clock), zaptest.NewLogger(t))
	require.NoError(t, err)
	return r
}

func groupID(id int32) model.ConsensusGroupID {
	return model.ConsensusGroupID{Type: model.DataRegion, ID: id}
}

func TestRegistry_CreateGroupCache(t *testing.T) {
	r := newTestRegistry(t, newFakeClock(0))

	require.NoError(t, r.CreateGroupCache("root.a", groupID(1), []int32{1, 2, 3}, model.ConsistencyStrong))

	err := r.CreateGroupCache("root.a", groupID(1), []int32{1}, model.ConsistencyStrong)
	assert.Equal(t, cnerrors.ErrCodeRegionGroupExists, cnerrors.GetCode(err))

	err = r.CreateGroupCache("root.a", groupID(2), []int32{1}, model.ConsistencyUnspecified)
	assert.Equal(t, cnerrors.ErrCodeInvalidConsistency, cnerrors.GetCode(err))

	assert.Equal(t, 1, r.Len())
	assert.Equal(t, []int32{1, 2, 3}, r.GetReplicaLocations(groupID(1)))
}

func TestRegistry_UnknownGroupDefaults(t *testing.T) {
	r := newTestRegistry(t, newFakeClock(0))

	stats := r.GetCurrentStatistics(groupID(7))
	assert.Equal(t, model.GroupStatusDisabled, stats.Status())
	assert.Equal(t, 0, stats.Len())
	assert.Empty(t, r.GetReplicaLocations(groupID(7)))
	assert.False(t, r.CacheHeartbeatSample(groupID(7), 1, sample(1, model.ReplicaStatusRunning), false))

	err := r.AddReplica(groupID(7), 1)
	assert.Equal(t, cnerrors.ErrCodeRegionGroupNotFound, cnerrors.GetCode(err))

	// removals of unknown things are no-ops
	r.RemoveReplica(groupID(7), 1)
	r.RemoveGroupCache(groupID(7))
}

func TestRegistry_UpdateAllReportsStatusChanges(t *testing.T) {
	clock := newFakeClock(secs(100))
	r := newTestRegistry(t, clock)

	require.NoError(t, r.CreateGroupCache("root.a", groupID(1), []int32{1, 2, 3}, model.ConsistencyStrong))
	require.NoError(t, r.CreateGroupCache("root.a", groupID(2), []int32{1, 2}, model.ConsistencyWeak))
	require.NoError(t, r.CreateGroupCache("root.b", groupID(3), []int32{4}, model.ConsistencyStrong))

	for _, node := range []int32{1, 2, 3} {
		assert.True(t, r.CacheHeartbeatSample(groupID(1), node, sample(secs(100), model.ReplicaStatusRunning), false))
	}
	r.CacheHeartbeatSample(groupID(2), 1, sample(secs(100), model.ReplicaStatusRunning), false)

	changes, err := r.UpdateAll(context.Background(), 2)
	require.NoError(t, err)

	// group 3 stays Disabled and is not reported
	require.Len(t, changes, 2)
	assert.Equal(t, groupID(1), changes[0].GroupID)
	assert.Equal(t, model.GroupStatusDisabled, changes[0].Previous)
	assert.Equal(t, model.GroupStatusRunning, changes[0].Current)
	assert.Equal(t, "root.a", changes[0].Database)
	assert.NotEmpty(t, changes[0].EventID)
	assert.Equal(t, groupID(2), changes[1].GroupID)
	assert.Equal(t, model.GroupStatusAvailable, changes[1].Current)

	changes, err = r.UpdateAll(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, changes)

	assert.Equal(t, map[model.GroupStatus]int{
		model.GroupStatusRunning:   1,
		model.GroupStatusAvailable: 1,
		model.GroupStatusDisabled:  1,
	}, r.CountByStatus())
	assert.Equal(t, []model.ConsensusGroupID{groupID(1), groupID(2)},
		r.FilterGroups(model.GroupStatusRunning, model.GroupStatusAvailable))
	assert.Equal(t, []model.ConsensusGroupID{groupID(1), groupID(2)}, r.GroupsOfDatabase("root.a"))
	assert.Equal(t, []model.ConsensusGroupID{groupID(1), groupID(2), groupID(3)}, r.GroupIDs())
	assert.Len(t, r.Snapshot(), 3)
}

func TestRegistry_UpdateAllHonoursCancellation(t *testing.T) {
	r := newTestRegistry(t, newFakeClock(0))
	require.NoError(t, r.CreateGroupCache("root.a", groupID(1), []int32{1}, model.ConsistencyStrong))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.UpdateAll(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRegistry_TopologyChanges(t *testing.T) {
	clock := newFakeClock(secs(100))
	r := newTestRegistry(t, clock)
	require.NoError(t, r.CreateGroupCache("root.a", groupID(1), []int32{1, 2}, model.ConsistencyStrong))

	require.NoError(t, r.AddReplica(groupID(1), 3))
	assert.Equal(t, []int32{1, 2, 3}, r.GetReplicaLocations(groupID(1)))

	r.RemoveReplica(groupID(1), 1)
	assert.Equal(t, []int32{2, 3}, r.GetReplicaLocations(groupID(1)))

	r.RemoveGroupCache(groupID(1))
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_CheckReplicaRemovable(t *testing.T) {
	clock := newFakeClock(secs(100))
	r := newTestRegistry(t, clock)
	require.NoError(t, r.CreateGroupCache("root.a", groupID(1), []int32{1, 2, 3}, model.ConsistencyStrong))

	// never computed: Disabled
	err := r.CheckReplicaRemovable(groupID(1))
	assert.Equal(t, cnerrors.ErrCodeReplicaNotRemovable, cnerrors.GetCode(err))

	r.CacheHeartbeatSample(groupID(1), 1, sample(secs(100), model.ReplicaStatusRunning), false)
	r.CacheHeartbeatSample(groupID(1), 2, sample(secs(100), model.ReplicaStatusRunning), false)
	_, err = r.UpdateAll(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, model.GroupStatusAvailable, r.GetCurrentStatistics(groupID(1)).Status())
	assert.NoError(t, r.CheckReplicaRemovable(groupID(1)))

	err = r.CheckReplicaRemovable(groupID(9))
	assert.Equal(t, cnerrors.ErrCodeRegionGroupNotFound, cnerrors.GetCode(err))
}

func TestNewRegistry_ValidatesOptions(t *testing.T) {
	_, err := NewRegistry(Options{}, nil)
	assert.Error(t, err)
}

func TestRegistry_StatusChangeUsesRegistryClock(t *testing.T) {
	clock := newFakeClock(secs(100))
	r := newTestRegistry(t, clock)
	require.NoError(t, r.CreateGroupCache("root.a", groupID(1), []int32{1}, model.ConsistencyStrong))

	r.CacheHeartbeatSample(groupID(1), 1, sample(secs(100), model.ReplicaStatusRunning), false)
	changes, err := r.UpdateAll(context.Background(), 1)
	require.NoError(t, err)

	require.Len(t, changes, 1)
	assert.Equal(t, time.Unix(100, 0), changes[0].ObservedAt)
}
