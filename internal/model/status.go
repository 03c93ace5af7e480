package model

import "fmt"

// ReplicaStatus represents the last known operational state of one region replica
type ReplicaStatus string

const (
	// ReplicaStatusRunning indicates the replica is serving reads and writes
	ReplicaStatusRunning ReplicaStatus = "Running"
	// ReplicaStatusUnknown indicates no fresh heartbeat has been observed
	ReplicaStatusUnknown ReplicaStatus = "Unknown"
	// ReplicaStatusRemoving indicates the replica is being removed by a migration
	ReplicaStatusRemoving ReplicaStatus = "Removing"
	// ReplicaStatusReadOnly indicates the replica rejects writes (e.g. disk full)
	ReplicaStatusReadOnly ReplicaStatus = "ReadOnly"
	// ReplicaStatusAdding indicates the replica is being added by a migration
	ReplicaStatusAdding ReplicaStatus = "Adding"
)

// IsTransitional reports whether the status belongs to an in-flight migration
func (s ReplicaStatus) IsTransitional() bool {
	return s == ReplicaStatusAdding || s == ReplicaStatusRemoving
}

// IsValid reports whether s is one of the known replica statuses
func (s ReplicaStatus) IsValid() bool {
	switch s {
	case ReplicaStatusRunning, ReplicaStatusUnknown, ReplicaStatusRemoving,
		ReplicaStatusReadOnly, ReplicaStatusAdding:
		return true
	default:
		return false
	}
}

// ParseReplicaStatus converts a reported status string into a ReplicaStatus
func ParseReplicaStatus(s string) (ReplicaStatus, error) {
	status := ReplicaStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("unknown replica status %q", s)
	}
	return status, nil
}

// GroupStatus represents the aggregated status of a RegionGroup
type GroupStatus string

const (
	// GroupStatusRunning indicates every steady replica is running
	GroupStatusRunning GroupStatus = "Running"
	// GroupStatusAvailable indicates enough replicas run to keep serving
	GroupStatusAvailable GroupStatus = "Available"
	// GroupStatusDisabled indicates the group cannot serve
	GroupStatusDisabled GroupStatus = "Disabled"
)

// AllGroupStatuses lists every group status in severity order
var AllGroupStatuses = []GroupStatus{GroupStatusRunning, GroupStatusAvailable, GroupStatusDisabled}

// AllReplicaStatuses lists every replica status
var AllReplicaStatuses = []ReplicaStatus{
	ReplicaStatusRunning,
	ReplicaStatusUnknown,
	ReplicaStatusRemoving,
	ReplicaStatusReadOnly,
	ReplicaStatusAdding,
}

// IsServing reports whether a group in this status can accept requests
func (s GroupStatus) IsServing() bool {
	return s == GroupStatusRunning || s == GroupStatusAvailable
}

// ConsistencyModel is the replication protocol class of a RegionGroup
type ConsistencyModel uint8

const (
	// ConsistencyUnspecified is the zero value and is rejected by caches
	ConsistencyUnspecified ConsistencyModel = iota
	// ConsistencyStrong is majority based replication (e.g. Raft)
	ConsistencyStrong
	// ConsistencyWeak is any-replica replication (e.g. IoT consensus)
	ConsistencyWeak
)

// String returns the config spelling of the model
func (c ConsistencyModel) String() string {
	switch c {
	case ConsistencyStrong:
		return "strong"
	case ConsistencyWeak:
		return "weak"
	default:
		return "unspecified"
	}
}

// ParseConsistencyModel parses "strong" or "weak"
func ParseConsistencyModel(s string) (ConsistencyModel, error) {
	switch s {
	case "strong":
		return ConsistencyStrong, nil
	case "weak":
		return ConsistencyWeak, nil
	default:
		return ConsistencyUnspecified, fmt.Errorf("unknown consistency model %q", s)
	}
}

// ConsistencyForProtocol returns the consistency model of a consensus protocol name
func ConsistencyForProtocol(protocol string) (ConsistencyModel, error) {
	switch protocol {
	case "ratis", "simple":
		return ConsistencyStrong, nil
	case "iot", "iotv2":
		return ConsistencyWeak, nil
	default:
		return ConsistencyUnspecified, fmt.Errorf("unknown consensus protocol %q", protocol)
	}
}

// MarshalText encodes the model as its config spelling
func (c ConsistencyModel) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText accepts "strong", "weak" or "unspecified"
func (c *ConsistencyModel) UnmarshalText(text []byte) error {
	if s := string(text); s == "" || s == "unspecified" {
		*c = ConsistencyUnspecified
		return nil
	}
	parsed, err := ParseConsistencyModel(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
