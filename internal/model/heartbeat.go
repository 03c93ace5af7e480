package model

import "time"

// HeartbeatSample is one observation of a replica's status.
// Timestamp is a logical time in nanoseconds; samples are ordered by it.
type HeartbeatSample struct {
	Timestamp int64         `json:"timestamp"`
	Status    ReplicaStatus `json:"status"`
	Detail    string        `json:"detail,omitempty"`
}

// NewHeartbeatSample creates a sample without detail
func NewHeartbeatSample(timestamp int64, status ReplicaStatus) HeartbeatSample {
	return HeartbeatSample{Timestamp: timestamp, Status: status}
}

// RegionHeartbeat is the status of one region replica inside a report
type RegionHeartbeat struct {
	GroupID   ConsensusGroupID `json:"group_id"`
	Status    ReplicaStatus    `json:"status"`
	Detail    string           `json:"detail,omitempty"`
	Timestamp int64            `json:"timestamp,omitempty"`
	Overwrite bool             `json:"overwrite,omitempty"`
}

// HeartbeatReport is what a data node sends for all regions it hosts
type HeartbeatReport struct {
	DataNodeID int32             `json:"data_node_id"`
	Timestamp  int64             `json:"timestamp,omitempty"`
	Regions    []RegionHeartbeat `json:"regions"`
}

// Sample builds the sample for one region, falling back to the report
// timestamp and then to now.
func (r *HeartbeatReport) Sample(region RegionHeartbeat, now int64) HeartbeatSample {
	ts := region.Timestamp
	if ts == 0 {
		ts = r.Timestamp
	}
	if ts == 0 {
		ts = now
	}
	return HeartbeatSample{Timestamp: ts, Status: region.Status, Detail: region.Detail}
}

// StatusChange records a RegionGroup moving from one status to another
type StatusChange struct {
	EventID    string           `json:"event_id"`
	GroupID    ConsensusGroupID `json:"group_id"`
	Database   string           `json:"database"`
	Previous   GroupStatus      `json:"previous"`
	Current    GroupStatus      `json:"current"`
	ObservedAt time.Time        `json:"observed_at"`
}
