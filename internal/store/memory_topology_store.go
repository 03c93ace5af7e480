package store

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/devrev/tsdb/confignode/internal/model"
)

// InMemoryTopologyStore implements TopologyStore using an in-memory map
type InMemoryTopologyStore struct {
	mu     sync.RWMutex
	groups map[model.ConsensusGroupID]*model.RegionGroup
	logger *zap.Logger
}

// NewInMemoryTopologyStore creates an empty in-memory topology store
func NewInMemoryTopologyStore(logger *zap.Logger) *InMemoryTopologyStore {
	return &InMemoryTopologyStore{
		groups: make(map[model.ConsensusGroupID]*model.RegionGroup),
		logger: logger,
	}
}

// topologyFile is the YAML layout of a static topology
type topologyFile struct {
	RegionGroups []topologyFileGroup `yaml:"region_groups"`
}

type topologyFileGroup struct {
	Database    string                 `yaml:"database"`
	GroupID     model.ConsensusGroupID `yaml:"group_id"`
	Consistency string                 `yaml:"consistency"`
	DataNodeIDs []int32                `yaml:"data_node_ids"`
}

// LoadTopologyFile reads a static topology from a YAML file. Groups without a
// consistency keep ConsistencyUnspecified and are resolved at bootstrap.
func LoadTopologyFile(path string, logger *zap.Logger) (*InMemoryTopologyStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read topology file: %w", err)
	}

	var file topologyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse topology file: %w", err)
	}

	s := NewInMemoryTopologyStore(logger)
	for _, entry := range file.RegionGroups {
		group := &model.RegionGroup{
			Database:    entry.Database,
			GroupID:     entry.GroupID,
			DataNodeIDs: entry.DataNodeIDs,
			CreatedAt:   time.Now(),
		}
		if err := group.Consistency.UnmarshalText([]byte(entry.Consistency)); err != nil {
			return nil, fmt.Errorf("region group %s: %w", entry.GroupID, err)
		}
		if err := s.CreateRegionGroup(context.Background(), group); err != nil {
			return nil, fmt.Errorf("region group %s: %w", entry.GroupID, err)
		}
	}

	logger.Info("Topology file loaded",
		zap.String("path", path),
		zap.Int("region_groups", len(file.RegionGroups)))

	return s, nil
}

// ListRegionGroups returns every region group ordered by group id
func (s *InMemoryTopologyStore) ListRegionGroups(ctx context.Context) ([]*model.RegionGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	groups := make([]*model.RegionGroup, 0, len(s.groups))
	for _, g := range s.groups {
		groups = append(groups, cloneRegionGroup(g))
	}
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].GroupID.Less(groups[j].GroupID)
	})
	return groups, nil
}

// GetRegionGroup returns one region group
func (s *InMemoryTopologyStore) GetRegionGroup(ctx context.Context, groupID model.ConsensusGroupID) (*model.RegionGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.groups[groupID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRegionGroup(g), nil
}

// CreateRegionGroup stores a region group
func (s *InMemoryTopologyStore) CreateRegionGroup(ctx context.Context, group *model.RegionGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.groups[group.GroupID]; exists {
		return ErrAlreadyExists
	}
	g := cloneRegionGroup(group)
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now()
	}
	sortNodeIDs(g.DataNodeIDs)
	s.groups[group.GroupID] = g
	return nil
}

// DeleteRegionGroup removes a region group
func (s *InMemoryTopologyStore) DeleteRegionGroup(ctx context.Context, groupID model.ConsensusGroupID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.groups[groupID]; !exists {
		return ErrNotFound
	}
	delete(s.groups, groupID)
	return nil
}

// AddReplica records a replica of the group on dataNodeID
func (s *InMemoryTopologyStore) AddReplica(ctx context.Context, groupID model.ConsensusGroupID, dataNodeID int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[groupID]
	if !ok {
		return ErrNotFound
	}
	if g.HasReplicaOn(dataNodeID) {
		return nil
	}
	g.DataNodeIDs = append(g.DataNodeIDs, dataNodeID)
	sortNodeIDs(g.DataNodeIDs)
	return nil
}

// RemoveReplica deletes the replica of the group on dataNodeID
func (s *InMemoryTopologyStore) RemoveReplica(ctx context.Context, groupID model.ConsensusGroupID, dataNodeID int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[groupID]
	if !ok {
		return nil
	}
	kept := g.DataNodeIDs[:0]
	for _, id := range g.DataNodeIDs {
		if id != dataNodeID {
			kept = append(kept, id)
		}
	}
	g.DataNodeIDs = kept
	return nil
}

// Ping always succeeds
func (s *InMemoryTopologyStore) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op
func (s *InMemoryTopologyStore) Close() {}

func cloneRegionGroup(g *model.RegionGroup) *model.RegionGroup {
	out := *g
	out.DataNodeIDs = append([]int32(nil), g.DataNodeIDs...)
	return &out
}

func sortNodeIDs(ids []int32) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
