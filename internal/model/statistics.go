package model

import (
	"encoding/json"
	"sort"
)

// ReplicaStatistics is the derived status of one replica
type ReplicaStatistics struct {
	Status ReplicaStatus `json:"status"`
	// Timestamp of the sample the status was derived from, 0 if none
	Timestamp int64 `json:"timestamp"`
}

// UnknownReplicaStatistics is the statistic of a replica with no samples
func UnknownReplicaStatistics() ReplicaStatistics {
	return ReplicaStatistics{Status: ReplicaStatusUnknown}
}

// ReplicaEntry pairs a data node with the statistics of the replica it hosts
type ReplicaEntry struct {
	DataNodeID int32             `json:"data_node_id"`
	Statistics ReplicaStatistics `json:"statistics"`
}

// GroupStatistics is the immutable published status of one RegionGroup.
// Replicas are kept sorted by data node id.
type GroupStatistics struct {
	status   GroupStatus
	replicas []ReplicaEntry
}

// NewGroupStatistics builds a snapshot; the map is copied and sorted
func NewGroupStatistics(status GroupStatus, replicas map[int32]ReplicaStatistics) *GroupStatistics {
	entries := make([]ReplicaEntry, 0, len(replicas))
	for id, stats := range replicas {
		entries = append(entries, ReplicaEntry{DataNodeID: id, Statistics: stats})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].DataNodeID < entries[j].DataNodeID
	})
	return &GroupStatistics{status: status, replicas: entries}
}

// DefaultGroupStatistics is the snapshot of a group that was never computed
func DefaultGroupStatistics() *GroupStatistics {
	return &GroupStatistics{status: GroupStatusDisabled, replicas: []ReplicaEntry{}}
}

// Status returns the aggregated group status
func (s *GroupStatistics) Status() GroupStatus {
	return s.status
}

// Len returns the number of replicas in the snapshot
func (s *GroupStatistics) Len() int {
	return len(s.replicas)
}

// Replicas returns a copy of the per-replica statistics ordered by data node id
func (s *GroupStatistics) Replicas() []ReplicaEntry {
	out := make([]ReplicaEntry, len(s.replicas))
	copy(out, s.replicas)
	return out
}

// Replica returns the statistics of the replica on dataNodeID
func (s *GroupStatistics) Replica(dataNodeID int32) (ReplicaStatistics, bool) {
	i := sort.Search(len(s.replicas), func(i int) bool {
		return s.replicas[i].DataNodeID >= dataNodeID
	})
	if i < len(s.replicas) && s.replicas[i].DataNodeID == dataNodeID {
		return s.replicas[i].Statistics, true
	}
	return ReplicaStatistics{}, false
}

// DataNodeIDs returns the data nodes in the snapshot in ascending order
func (s *GroupStatistics) DataNodeIDs() []int32 {
	ids := make([]int32, len(s.replicas))
	for i, e := range s.replicas {
		ids[i] = e.DataNodeID
	}
	return ids
}

// CountReplicas returns how many replicas are in the given status
func (s *GroupStatistics) CountReplicas(status ReplicaStatus) int {
	n := 0
	for _, e := range s.replicas {
		if e.Statistics.Status == status {
			n++
		}
	}
	return n
}

// Equal reports whether two snapshots carry the same status and replicas
func (s *GroupStatistics) Equal(other *GroupStatistics) bool {
	if s == other {
		return true
	}
	if s == nil || other == nil || s.status != other.status || len(s.replicas) != len(other.replicas) {
		return false
	}
	for i := range s.replicas {
		if s.replicas[i] != other.replicas[i] {
			return false
		}
	}
	return true
}

// SameStatuses reports whether two snapshots carry the same group status and
// the same status for every replica, ignoring sample timestamps
func (s *GroupStatistics) SameStatuses(other *GroupStatistics) bool {
	if s == other {
		return true
	}
	if s == nil || other == nil || s.status != other.status || len(s.replicas) != len(other.replicas) {
		return false
	}
	for i := range s.replicas {
		if s.replicas[i].DataNodeID != other.replicas[i].DataNodeID ||
			s.replicas[i].Statistics.Status != other.replicas[i].Statistics.Status {
			return false
		}
	}
	return true
}

type groupStatisticsJSON struct {
	Status   GroupStatus    `json:"status"`
	Replicas []ReplicaEntry `json:"replicas"`
}

// MarshalJSON emits replicas ordered by data node id
func (s *GroupStatistics) MarshalJSON() ([]byte, error) {
	return json.Marshal(groupStatisticsJSON{Status: s.status, Replicas: s.replicas})
}

// UnmarshalJSON restores a snapshot written by MarshalJSON
func (s *GroupStatistics) UnmarshalJSON(data []byte) error {
	var raw groupStatisticsJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	replicas := make(map[int32]ReplicaStatistics, len(raw.Replicas))
	for _, e := range raw.Replicas {
		replicas[e.DataNodeID] = e.Statistics
	}
	*s = *NewGroupStatistics(raw.Status, replicas)
	return nil
}
