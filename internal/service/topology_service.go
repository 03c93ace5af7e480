package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	cnerrors "github.com/devrev/tsdb/confignode/internal/errors"
	"github.com/devrev/tsdb/confignode/internal/loadcache"
	"github.com/devrev/tsdb/confignode/internal/model"
	"github.com/devrev/tsdb/confignode/internal/store"
)

// ConsistencyResolver returns the consistency model of a region type
type ConsistencyResolver func(model.ConsensusGroupType) (model.ConsistencyModel, error)

// TopologyService applies region group topology changes to the topology store
// and then to the load cache
type TopologyService struct {
	topology   store.TopologyStore
	statistics store.StatisticsStore
	registry   *loadcache.Registry
	resolve    ConsistencyResolver
	logger     *zap.Logger
}

// NewTopologyService creates a new topology service. statistics may be nil.
func NewTopologyService(
	topology store.TopologyStore,
	statistics store.StatisticsStore,
	registry *loadcache.Registry,
	resolve ConsistencyResolver,
	logger *zap.Logger,
) *TopologyService {
	return &TopologyService{
		topology:   topology,
		statistics: statistics,
		registry:   registry,
		resolve:    resolve,
		logger:     logger,
	}
}

// Bootstrap loads every persisted region group into the load cache
func (s *TopologyService) Bootstrap(ctx context.Context) (int, error) {
	groups, err := s.topology.ListRegionGroups(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list region groups: %w", err)
	}

	loaded := 0
	for _, group := range groups {
		if err := s.resolveConsistency(group); err != nil {
			return loaded, err
		}
		err := s.registry.CreateGroupCache(group.Database, group.GroupID, group.DataNodeIDs, group.Consistency)
		if cnerrors.GetCode(err) == cnerrors.ErrCodeRegionGroupExists {
			continue
		}
		if err != nil {
			return loaded, err
		}
		loaded++
	}

	s.logger.Info("Region groups bootstrapped",
		zap.Int("persisted", len(groups)),
		zap.Int("loaded", loaded))

	return loaded, nil
}

// CreateRegionGroup persists a new region group and starts tracking it
func (s *TopologyService) CreateRegionGroup(ctx context.Context, group *model.RegionGroup) error {
	if group == nil {
		return cnerrors.InvalidArgument("region group is required", nil)
	}
	if group.GroupID.Type != model.DataRegion && group.GroupID.Type != model.SchemaRegion {
		return cnerrors.InvalidArgument(fmt.Sprintf("invalid consensus group type %q", group.GroupID.Type), nil)
	}
	if group.Database == "" {
		return cnerrors.InvalidArgument("database is required", nil)
	}
	if err := s.resolveConsistency(group); err != nil {
		return err
	}

	if err := s.topology.CreateRegionGroup(ctx, group); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return cnerrors.RegionGroupExists(group.GroupID.String())
		}
		return cnerrors.Unavailable("failed to persist region group", err)
	}

	return s.registry.CreateGroupCache(group.Database, group.GroupID, group.DataNodeIDs, group.Consistency)
}

// DeleteRegionGroup removes a region group from the store and the load cache
func (s *TopologyService) DeleteRegionGroup(ctx context.Context, groupID model.ConsensusGroupID) error {
	if err := s.topology.DeleteRegionGroup(ctx, groupID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return cnerrors.RegionGroupNotFound(groupID.String())
		}
		return cnerrors.Unavailable("failed to delete region group", err)
	}

	s.registry.RemoveGroupCache(groupID)

	if s.statistics != nil {
		if err := s.statistics.DeleteGroupStatistics(ctx, groupID); err != nil {
			s.logger.Warn("Failed to delete published statistics",
				zap.String("group_id", groupID.String()),
				zap.Error(err))
		}
	}
	return nil
}

// AddReplica records a new replica of a group and starts tracking it
func (s *TopologyService) AddReplica(ctx context.Context, groupID model.ConsensusGroupID, dataNodeID int32) error {
	if _, ok := s.registry.GroupCache(groupID); !ok {
		return cnerrors.RegionGroupNotFound(groupID.String())
	}

	if err := s.topology.AddReplica(ctx, groupID, dataNodeID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return cnerrors.RegionGroupNotFound(groupID.String())
		}
		return cnerrors.Unavailable("failed to persist replica", err)
	}

	return s.registry.AddReplica(groupID, dataNodeID)
}

// RemoveReplica removes a replica from a group. Unless forced, the group must
// be serving so the removal cannot take it offline.
func (s *TopologyService) RemoveReplica(ctx context.Context, groupID model.ConsensusGroupID, dataNodeID int32, force bool) error {
	if !force {
		if err := s.registry.CheckReplicaRemovable(groupID); err != nil {
			return err
		}
	}

	if err := s.topology.RemoveReplica(ctx, groupID, dataNodeID); err != nil {
		return cnerrors.Unavailable("failed to remove replica", err)
	}

	s.registry.RemoveReplica(groupID, dataNodeID)
	return nil
}

func (s *TopologyService) resolveConsistency(group *model.RegionGroup) error {
	if group.Consistency != model.ConsistencyUnspecified {
		return nil
	}
	if s.resolve == nil {
		return cnerrors.InvalidConsistency(group.GroupID.String(), "no consistency model configured")
	}
	c, err := s.resolve(group.GroupID.Type)
	if err != nil {
		return cnerrors.InvalidConsistency(group.GroupID.String(), err.Error())
	}
	group.Consistency = c
	return nil
}
