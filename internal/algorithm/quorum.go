package algorithm

import "github.com/devrev/tsdb/confignode/internal/model"

// QuorumCalculator calculates quorum requirements and RegionGroup status
type QuorumCalculator struct{}

// NewQuorumCalculator creates a new quorum calculator
func NewQuorumCalculator() *QuorumCalculator {
	return &QuorumCalculator{}
}

// CalculateQuorum returns the number of replicas required for quorum
func (q *QuorumCalculator) CalculateQuorum(totalReplicas int) int {
	return (totalReplicas / 2) + 1
}

// IsQuorumReached checks if quorum is reached
func (q *QuorumCalculator) IsQuorumReached(successCount, totalReplicas int) bool {
	quorum := q.CalculateQuorum(totalReplicas)
	return successCount >= quorum
}

// ReplicaCounts summarizes the replica statuses of one group
type ReplicaCounts struct {
	Total    int
	Running  int
	Adding   int
	Removing int
}

// Steady returns the number of replicas neither being added nor removed
func (c ReplicaCounts) Steady() int {
	return c.Total - c.Adding - c.Removing
}

// CountReplicaStatuses tallies the given replica statistics
func CountReplicaStatuses(stats []model.ReplicaStatistics) ReplicaCounts {
	counts := ReplicaCounts{Total: len(stats)}
	for _, s := range stats {
		switch s.Status {
		case model.ReplicaStatusRunning:
			counts.Running++
		case model.ReplicaStatusAdding:
			counts.Adding++
		case model.ReplicaStatusRemoving:
			counts.Removing++
		}
	}
	return counts
}

// GroupStatus aggregates replica counts into a RegionGroup status.
//
// Quorum is judged against the steady set only: replicas being added may not
// have caught up yet and replicas being removed are about to leave.
func (q *QuorumCalculator) GroupStatus(consistency model.ConsistencyModel, counts ReplicaCounts) model.GroupStatus {
	base := counts.Steady()
	if base <= 0 {
		// Nothing stable to judge health by
		return model.GroupStatusDisabled
	}

	if counts.Running == base {
		return model.GroupStatusRunning
	}

	switch consistency {
	case model.ConsistencyStrong:
		// Strong consistency keeps serving while a majority of the steady set runs
		if q.IsQuorumReached(counts.Running, base) {
			return model.GroupStatusAvailable
		}
		return model.GroupStatusDisabled
	case model.ConsistencyWeak:
		// Weak consistency serves from any single running replica
		if counts.Running >= 1 {
			return model.GroupStatusAvailable
		}
		return model.GroupStatusDisabled
	default:
		return model.GroupStatusDisabled
	}
}
