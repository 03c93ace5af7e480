package loadcache

import (
	"sync"
	"sync/atomic"

	"github.com/devrev/tsdb/confignode/internal/algorithm"
	cnerrors "github.com/devrev/tsdb/confignode/internal/errors"
	"github.com/devrev/tsdb/confignode/internal/model"
)

// GroupCache caches the replicas of one RegionGroup and publishes the
// group's statistics.
type GroupCache struct {
	database    string
	groupID     model.ConsensusGroupID
	consistency model.ConsistencyModel
	opts        Options
	quorum      *algorithm.QuorumCalculator

	replicas *replicaMap
	// updateMu serializes recomputation; readers never take it
	updateMu sync.Mutex
	current  atomic.Pointer[model.GroupStatistics]
}

// NewGroupCache creates a group cache with one empty replica cache per data node.
// The consistency model is fixed for the lifetime of the cache.
func NewGroupCache(
	database string,
	groupID model.ConsensusGroupID,
	dataNodeIDs []int32,
	consistency model.ConsistencyModel,
	opts Options,
) (*GroupCache, error) {
	if consistency != model.ConsistencyStrong && consistency != model.ConsistencyWeak {
		return nil, cnerrors.InvalidConsistency(groupID.String(), consistency.String())
	}
	if err := opts.Validate(); err != nil {
		return nil, cnerrors.InvalidArgument("invalid load cache options", err)
	}

	g := &GroupCache{
		database:    database,
		groupID:     groupID,
		consistency: consistency,
		opts:        opts,
		quorum:      algorithm.NewQuorumCalculator(),
		replicas:    newReplicaMap(),
	}
	for _, id := range dataNodeIDs {
		g.replicas.put(NewReplicaCache(id, groupID, opts))
	}
	g.current.Store(model.DefaultGroupStatistics())
	return g, nil
}

// Database returns the database the group belongs to
func (g *GroupCache) Database() string {
	return g.database
}

// GroupID returns the consensus group id
func (g *GroupCache) GroupID() model.ConsensusGroupID {
	return g.groupID
}

// Consistency returns the consistency model of the group
func (g *GroupCache) Consistency() model.ConsistencyModel {
	return g.consistency
}

// CacheHeartbeatSample forwards a sample to the replica on dataNodeID.
// Samples for data nodes without a replica cache are dropped; membership is
// decided by topology changes, not by heartbeats. Reports whether it was cached.
func (g *GroupCache) CacheHeartbeatSample(dataNodeID int32, sample model.HeartbeatSample, overwrite bool) bool {
	c, ok := g.replicas.get(dataNodeID)
	if !ok {
		return false
	}
	c.CacheHeartbeatSample(sample, overwrite)
	return true
}

// AddReplica creates an empty replica cache on dataNodeID, replacing any
// existing one. The replica is Unknown until its first heartbeat.
func (g *GroupCache) AddReplica(dataNodeID int32) bool {
	return g.replicas.put(NewReplicaCache(dataNodeID, g.groupID, g.opts))
}

// RemoveReplica drops the replica cache on dataNodeID; absent ids are ignored
func (g *GroupCache) RemoveReplica(dataNodeID int32) bool {
	return g.replicas.delete(dataNodeID)
}

// ReplicaCache returns the cache of the replica on dataNodeID
func (g *GroupCache) ReplicaCache(dataNodeID int32) (*ReplicaCache, bool) {
	return g.replicas.get(dataNodeID)
}

// ReplicaLocations returns the data nodes hosting a replica, ascending
func (g *GroupCache) ReplicaLocations() []int32 {
	return g.replicas.keys()
}

// UpdateCurrentStatistics recomputes every replica, aggregates the group
// status and publishes the new snapshot. It returns the replaced and the new
// snapshot.
func (g *GroupCache) UpdateCurrentStatistics() (prev, next *model.GroupStatistics) {
	g.updateMu.Lock()
	defer g.updateMu.Unlock()

	caches := g.replicas.snapshot()
	replicaStats := make(map[int32]model.ReplicaStatistics, len(caches))
	statsList := make([]model.ReplicaStatistics, 0, len(caches))
	for _, c := range caches {
		c.UpdateCurrentStatistics(false)
		stats := c.CurrentStatistics()
		replicaStats[c.DataNodeID()] = stats
		statsList = append(statsList, stats)
	}

	status := g.quorum.GroupStatus(g.consistency, algorithm.CountReplicaStatuses(statsList))
	next = model.NewGroupStatistics(status, replicaStats)
	prev = g.current.Swap(next)
	return prev, next
}

// CurrentStatistics returns the last published snapshot without blocking
func (g *GroupCache) CurrentStatistics() *model.GroupStatistics {
	return g.current.Load()
}
