package store

import (
	"context"
	"errors"
	"time"

	"github.com/devrev/tsdb/confignode/internal/model"
)

// ErrNotFound is returned when a key is not found
var ErrNotFound = errors.New("not found")

// ErrAlreadyExists is returned when creating a record that already exists
var ErrAlreadyExists = errors.New("already exists")

// TopologyStore persists RegionGroups and the data nodes hosting their replicas
type TopologyStore interface {
	ListRegionGroups(ctx context.Context) ([]*model.RegionGroup, error)
	GetRegionGroup(ctx context.Context, groupID model.ConsensusGroupID) (*model.RegionGroup, error)
	CreateRegionGroup(ctx context.Context, group *model.RegionGroup) error
	DeleteRegionGroup(ctx context.Context, groupID model.ConsensusGroupID) error

	// Replica operations
	AddReplica(ctx context.Context, groupID model.ConsensusGroupID, dataNodeID int32) error
	RemoveReplica(ctx context.Context, groupID model.ConsensusGroupID, dataNodeID int32) error

	// Health check
	Ping(ctx context.Context) error
	Close()
}

// StatisticsStore shares published group snapshots with other processes
type StatisticsStore interface {
	PutGroupStatistics(ctx context.Context, groupID model.ConsensusGroupID, stats *model.GroupStatistics, ttl time.Duration) error
	GetGroupStatistics(ctx context.Context, groupID model.ConsensusGroupID) (*model.GroupStatistics, error)
	DeleteGroupStatistics(ctx context.Context, groupID model.ConsensusGroupID) error
	PublishStatusChange(ctx context.Context, change model.StatusChange) error
	Ping(ctx context.Context) error
	Close() error
}
