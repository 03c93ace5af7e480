// Package loadcache caches region heartbeat samples and publishes the
// aggregated status of every RegionGroup.
//
// Writers (heartbeat ingestion, topology changes) touch per-replica state only.
// A periodic driver recomputes each group and swaps in an immutable
// model.GroupStatistics that readers load without locking.
package loadcache

import (
	"errors"
	"math"
	"time"
)

const (
	// DefaultWindowSize is the number of samples kept per replica
	DefaultWindowSize = 100
	// DefaultStalenessMultiplier scales the heartbeat interval into the staleness horizon
	DefaultStalenessMultiplier = 20
)

// Clock returns the current logical time in nanoseconds
type Clock func() int64

// WallClock is the default Clock
func WallClock() int64 {
	return time.Now().UnixNano()
}

// Options are the construction-time parameters of replica and group caches
type Options struct {
	// HeartbeatInterval is the cadence data nodes report at
	HeartbeatInterval time.Duration
	// StalenessHorizon is how old the newest sample may be before the replica is Unknown
	StalenessHorizon time.Duration
	// WindowSize caps the number of samples kept per replica
	WindowSize int
	// Retention drops samples older than newest-Retention
	Retention time.Duration
	Clock     Clock
}

// DefaultOptions derives every tunable from the heartbeat interval
func DefaultOptions(heartbeatInterval time.Duration) Options {
	return Options{
		HeartbeatInterval: heartbeatInterval,
		StalenessHorizon:  DefaultStalenessMultiplier * heartbeatInterval,
		WindowSize:        DefaultWindowSize,
		Retention:         time.Duration(DefaultWindowSize) * heartbeatInterval,
		Clock:             WallClock,
	}
}

// Validate checks the options
func (o *Options) Validate() error {
	if o.HeartbeatInterval <= 0 {
		return errors.New("heartbeat interval must be positive")
	}
	if o.StalenessHorizon <= 0 {
		return errors.New("staleness horizon must be positive")
	}
	if o.WindowSize <= 0 {
		return errors.New("window size must be positive")
	}
	if o.Retention <= 0 {
		return errors.New("retention must be positive")
	}
	return nil
}

// MaxFutureTimestamp is the newest sample timestamp accepted at logical time
// now. Anything later comes from a clock running ahead of this node.
func (o Options) MaxFutureTimestamp(now int64) int64 {
	limit := now + o.HeartbeatInterval.Nanoseconds()
	if limit < now {
		return math.MaxInt64
	}
	return limit
}

// Now reads the configured clock
func (o Options) Now() int64 {
	if o.Clock == nil {
		return WallClock()
	}
	return o.Clock()
}
