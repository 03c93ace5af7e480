package loadcache

import (
	"sync"
	"sync/atomic"

	"github.com/devrev/tsdb/confignode/internal/model"
)

// ReplicaCache holds the heartbeat window of one replica, identified by the
// data node hosting it and its consensus group, and derives its status.
type ReplicaCache struct {
	dataNodeID int32
	groupID    model.ConsensusGroupID
	opts       Options

	mu     sync.Mutex
	window *sampleWindow
	// pinned holds the Adding/Removing sample that currently owns the status.
	// Only an overwrite can release it.
	pinned *model.HeartbeatSample
	dirty  bool

	current atomic.Pointer[model.ReplicaStatistics]
}

// NewReplicaCache creates a replica cache with an empty window
func NewReplicaCache(dataNodeID int32, groupID model.ConsensusGroupID, opts Options) *ReplicaCache {
	c := &ReplicaCache{
		dataNodeID: dataNodeID,
		groupID:    groupID,
		opts:       opts,
		window:     newSampleWindow(opts.WindowSize, opts.Retention),
	}
	unknown := model.UnknownReplicaStatistics()
	c.current.Store(&unknown)
	return c
}

// DataNodeID returns the data node hosting the replica
func (c *ReplicaCache) DataNodeID() int32 {
	return c.dataNodeID
}

// GroupID returns the consensus group of the replica
func (c *ReplicaCache) GroupID() model.ConsensusGroupID {
	return c.groupID
}

// CacheHeartbeatSample records a sample.
// Without overwrite a pinned Adding/Removing status is kept even when the sample
// says otherwise; the sample is still stored. A sample dated more than one
// heartbeat interval ahead of the clock is recorded at the current time.
func (c *ReplicaCache) CacheHeartbeatSample(sample model.HeartbeatSample, overwrite bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if now := c.opts.Now(); sample.Timestamp > c.opts.MaxFutureTimestamp(now) {
		sample.Timestamp = now
	}

	steady, hasSteady := c.window.newestSteady()
	c.window.add(sample)
	c.dirty = true

	switch {
	case c.pinned != nil && !overwrite:
		// a late or stale report must not undo migration bookkeeping
	case sample.Status.IsTransitional():
		if overwrite || !hasSteady || sample.Timestamp >= steady.Timestamp {
			pinned := sample
			c.pinned = &pinned
		}
	case overwrite:
		c.pinned = nil
	}
}

// UpdateCurrentStatistics derives the replica status from the window and
// reports whether it changed. Without force the derivation is skipped when
// nothing was recorded and the current status cannot have aged out.
func (c *ReplicaCache) UpdateCurrentStatistics(force bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.opts.Now()
	prev := c.current.Load()
	if !force && !c.dirty && !c.mayExpire(prev, now) {
		return false
	}

	next := c.derive(now)
	c.dirty = false
	if *prev == next {
		return false
	}
	c.current.Store(&next)
	return true
}

// mayExpire reports whether a Running-like status derived from a sample could
// have become stale since it was computed.
func (c *ReplicaCache) mayExpire(stats *model.ReplicaStatistics, now int64) bool {
	if c.pinned != nil || stats.Status == model.ReplicaStatusUnknown {
		return false
	}
	return c.isStale(stats.Timestamp, now)
}

// isStale reports whether a sample taken at ts is older than the staleness
// horizon at now. An age that overflows int64 is stale.
func (c *ReplicaCache) isStale(ts, now int64) bool {
	if ts > now {
		return false
	}
	age := now - ts
	return age < 0 || age > c.opts.StalenessHorizon.Nanoseconds()
}

func (c *ReplicaCache) derive(now int64) model.ReplicaStatistics {
	if c.pinned != nil {
		return model.ReplicaStatistics{Status: c.pinned.Status, Timestamp: c.pinned.Timestamp}
	}

	sample, ok := c.window.newestSteady()
	if !ok {
		return model.UnknownReplicaStatistics()
	}
	if c.isStale(sample.Timestamp, now) {
		return model.ReplicaStatistics{Status: model.ReplicaStatusUnknown, Timestamp: sample.Timestamp}
	}
	return model.ReplicaStatistics{Status: sample.Status, Timestamp: sample.Timestamp}
}

// CurrentStatistics returns the statistics of the last derivation
func (c *ReplicaCache) CurrentStatistics() model.ReplicaStatistics {
	return *c.current.Load()
}

// SampleCount returns the number of samples in the window
func (c *ReplicaCache) SampleCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.window.len()
}

// LatestSample returns the newest recorded sample
func (c *ReplicaCache) LatestSample() (model.HeartbeatSample, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.window.newest()
}

// Samples returns the window oldest first
func (c *ReplicaCache) Samples() []model.HeartbeatSample {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.window.list()
}
