package loadcache

import (
	"context"
	"sort"
	"sync"
	"time"

	cnerrors "github.com/devrev/tsdb/confignode/internal/errors"
	"github.com/devrev/tsdb/confignode/internal/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Registry owns one GroupCache per RegionGroup in the cluster
type Registry struct {
	opts   Options
	logger *zap.Logger

	mu     sync.RWMutex
	groups map[model.ConsensusGroupID]*GroupCache
}

// NewRegistry creates an empty registry
func NewRegistry(opts Options, logger *zap.Logger) (*Registry, error) {
	if err := opts.Validate(); err != nil {
		return nil, cnerrors.InvalidArgument("invalid load cache options", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		opts:   opts,
		logger: logger,
		groups: make(map[model.ConsensusGroupID]*GroupCache),
	}, nil
}

// Options returns the options every group cache is built with
func (r *Registry) Options() Options {
	return r.opts
}

// CreateGroupCache registers a RegionGroup with its initial replicas
func (r *Registry) CreateGroupCache(
	database string,
	groupID model.ConsensusGroupID,
	dataNodeIDs []int32,
	consistency model.ConsistencyModel,
) error {
	g, err := NewGroupCache(database, groupID, dataNodeIDs, consistency, r.opts)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.groups[groupID]; exists {
		return cnerrors.RegionGroupExists(groupID.String())
	}
	r.groups[groupID] = g

	r.logger.Info("Region group cache created",
		zap.String("group_id", groupID.String()),
		zap.String("database", database),
		zap.String("consistency", consistency.String()),
		zap.Int("replicas", len(dataNodeIDs)))

	return nil
}

// RemoveGroupCache drops a RegionGroup; absent groups are ignored
func (r *Registry) RemoveGroupCache(groupID model.ConsensusGroupID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.groups[groupID]; !exists {
		return
	}
	delete(r.groups, groupID)
	r.logger.Info("Region group cache removed", zap.String("group_id", groupID.String()))
}

// GroupCache returns the cache of a RegionGroup
func (r *Registry) GroupCache(groupID model.ConsensusGroupID) (*GroupCache, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.groups[groupID]
	return g, ok
}

// CacheHeartbeatSample routes a sample to its replica cache and reports
// whether a matching replica existed
func (r *Registry) CacheHeartbeatSample(
	groupID model.ConsensusGroupID,
	dataNodeID int32,
	sample model.HeartbeatSample,
	overwrite bool,
) bool {
	g, ok := r.GroupCache(groupID)
	if !ok {
		return false
	}
	return g.CacheHeartbeatSample(dataNodeID, sample, overwrite)
}

// AddReplica adds a replica cache to an existing group
func (r *Registry) AddReplica(groupID model.ConsensusGroupID, dataNodeID int32) error {
	g, ok := r.GroupCache(groupID)
	if !ok {
		return cnerrors.RegionGroupNotFound(groupID.String())
	}

	if replaced := g.AddReplica(dataNodeID); replaced {
		r.logger.Warn("Replica cache replaced",
			zap.String("group_id", groupID.String()),
			zap.Int32("data_node_id", dataNodeID))
	} else {
		r.logger.Info("Replica cache added",
			zap.String("group_id", groupID.String()),
			zap.Int32("data_node_id", dataNodeID))
	}
	return nil
}

// RemoveReplica removes a replica cache; unknown groups and replicas are ignored
func (r *Registry) RemoveReplica(groupID model.ConsensusGroupID, dataNodeID int32) {
	g, ok := r.GroupCache(groupID)
	if !ok {
		return
	}
	if g.RemoveReplica(dataNodeID) {
		r.logger.Info("Replica cache removed",
			zap.String("group_id", groupID.String()),
			zap.Int32("data_node_id", dataNodeID))
	}
}

func (r *Registry) groupList() []*GroupCache {
	r.mu.RLock()
	out := make([]*GroupCache, 0, len(r.groups))
	for _, g := range r.groups {
		out = append(out, g)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].GroupID().Less(out[j].GroupID())
	})
	return out
}

// UpdateAll recomputes every group, at most parallelism at a time, and returns
// the groups whose status changed
func (r *Registry) UpdateAll(ctx context.Context, parallelism int) ([]model.StatusChange, error) {
	groups := r.groupList()
	if parallelism <= 0 {
		parallelism = 1
	}

	observedAt := time.Unix(0, r.opts.Now())
	changes := make([]*model.StatusChange, len(groups))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)

	for i, group := range groups {
		i, group := i, group
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			prev, next := group.UpdateCurrentStatistics()
			if prev.Status() != next.Status() {
				changes[i] = &model.StatusChange{
					EventID:    uuid.NewString(),
					GroupID:    group.GroupID(),
					Database:   group.Database(),
					Previous:   prev.Status(),
					Current:    next.Status(),
					ObservedAt: observedAt,
				}
			}
			return nil
		})
	}

	err := g.Wait()

	result := make([]model.StatusChange, 0)
	for _, c := range changes {
		if c != nil {
			result = append(result, *c)
		}
	}
	return result, err
}

// GetCurrentStatistics returns the published snapshot of a group, or the
// default snapshot when the group is unknown
func (r *Registry) GetCurrentStatistics(groupID model.ConsensusGroupID) *model.GroupStatistics {
	g, ok := r.GroupCache(groupID)
	if !ok {
		return model.DefaultGroupStatistics()
	}
	return g.CurrentStatistics()
}

// GetReplicaLocations returns the data nodes hosting the group, ascending
func (r *Registry) GetReplicaLocations(groupID model.ConsensusGroupID) []int32 {
	g, ok := r.GroupCache(groupID)
	if !ok {
		return []int32{}
	}
	return g.ReplicaLocations()
}

// Snapshot returns the published statistics of every group
func (r *Registry) Snapshot() map[model.ConsensusGroupID]*model.GroupStatistics {
	groups := r.groupList()
	out := make(map[model.ConsensusGroupID]*model.GroupStatistics, len(groups))
	for _, g := range groups {
		out[g.GroupID()] = g.CurrentStatistics()
	}
	return out
}

// GroupIDs returns every registered group id in order
func (r *Registry) GroupIDs() []model.ConsensusGroupID {
	groups := r.groupList()
	ids := make([]model.ConsensusGroupID, len(groups))
	for i, g := range groups {
		ids[i] = g.GroupID()
	}
	return ids
}

// GroupsOfDatabase returns the groups belonging to database in order
func (r *Registry) GroupsOfDatabase(database string) []model.ConsensusGroupID {
	ids := make([]model.ConsensusGroupID, 0)
	for _, g := range r.groupList() {
		if g.Database() == database {
			ids = append(ids, g.GroupID())
		}
	}
	return ids
}

// FilterGroups returns the groups currently published in one of statuses
func (r *Registry) FilterGroups(statuses ...model.GroupStatus) []model.ConsensusGroupID {
	want := make(map[model.GroupStatus]struct{}, len(statuses))
	for _, s := range statuses {
		want[s] = struct{}{}
	}

	ids := make([]model.ConsensusGroupID, 0)
	for _, g := range r.groupList() {
		if _, ok := want[g.CurrentStatistics().Status()]; ok {
			ids = append(ids, g.GroupID())
		}
	}
	return ids
}

// CountByStatus counts groups per published status
func (r *Registry) CountByStatus() map[model.GroupStatus]int {
	counts := make(map[model.GroupStatus]int, len(model.AllGroupStatuses))
	for _, s := range model.AllGroupStatuses {
		counts[s] = 0
	}
	for _, g := range r.groupList() {
		counts[g.CurrentStatistics().Status()]++
	}
	return counts
}

// CheckReplicaRemovable refuses to start removing a replica from a group that
// is not serving
func (r *Registry) CheckReplicaRemovable(groupID model.ConsensusGroupID) error {
	g, ok := r.GroupCache(groupID)
	if !ok {
		return cnerrors.RegionGroupNotFound(groupID.String())
	}
	status := g.CurrentStatistics().Status()
	if !status.IsServing() {
		return cnerrors.ReplicaNotRemovable(groupID.String(), string(status))
	}
	return nil
}

// Len returns the number of registered groups
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.groups)
}
