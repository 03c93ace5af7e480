package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ConsensusGroupType distinguishes data partitions from schema partitions
type ConsensusGroupType string

const (
	// DataRegion holds time series data
	DataRegion ConsensusGroupType = "DataRegion"
	// SchemaRegion holds time series schema
	SchemaRegion ConsensusGroupType = "SchemaRegion"
)

// ConsensusGroupID identifies one RegionGroup
type ConsensusGroupID struct {
	Type ConsensusGroupType `json:"type" yaml:"type"`
	ID   int32              `json:"id" yaml:"id"`
}

// String renders the id as "DataRegion-7"
func (g ConsensusGroupID) String() string {
	return fmt.Sprintf("%s-%d", g.Type, g.ID)
}

// Less orders group ids by type then id
func (g ConsensusGroupID) Less(other ConsensusGroupID) bool {
	if g.Type != other.Type {
		return g.Type < other.Type
	}
	return g.ID < other.ID
}

// ParseConsensusGroupID parses the String form of a group id
func ParseConsensusGroupID(s string) (ConsensusGroupID, error) {
	idx := strings.LastIndex(s, "-")
	if idx <= 0 {
		return ConsensusGroupID{}, fmt.Errorf("invalid consensus group id %q", s)
	}

	groupType := ConsensusGroupType(s[:idx])
	if groupType != DataRegion && groupType != SchemaRegion {
		return ConsensusGroupID{}, fmt.Errorf("invalid consensus group type %q", s[:idx])
	}

	id, err := strconv.ParseInt(s[idx+1:], 10, 32)
	if err != nil {
		return ConsensusGroupID{}, fmt.Errorf("invalid consensus group id %q: %w", s, err)
	}

	return ConsensusGroupID{Type: groupType, ID: int32(id)}, nil
}

// RegionGroup is the persisted topology of one RegionGroup
type RegionGroup struct {
	Database    string           `json:"database" yaml:"database"`
	GroupID     ConsensusGroupID `json:"group_id" yaml:"group_id"`
	Consistency ConsistencyModel `json:"consistency" yaml:"-"`
	DataNodeIDs []int32          `json:"data_node_ids" yaml:"data_node_ids"`
	CreatedAt   time.Time        `json:"created_at" yaml:"-"`
}

// HasReplicaOn reports whether a replica of the group lives on dataNodeID
func (g *RegionGroup) HasReplicaOn(dataNodeID int32) bool {
	for _, id := range g.DataNodeIDs {
		if id == dataNodeID {
			return true
		}
	}
	return false
}
