package loadcache

import (
	"sync/atomic"
	"time"

	"github.com/devrev/tsdb/confignode/internal/model"
)

type fakeClock struct {
	now atomic.Int64
}

func newFakeClock(start int64) *fakeClock {
	c := &fakeClock{}
	c.now.Store(start)
	return c
}

func (c *fakeClock) Now() int64 {
	return c.now.Load()
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now.Add(d.Nanoseconds())
}

func testOptions(clock *fakeClock) Options {
	opts := DefaultOptions(time.Second)
	opts.StalenessHorizon = 10 * time.Second
	opts.WindowSize = 10
	opts.Retention = 30 * time.Second
	opts.Clock = clock.Now
	return opts
}

var testGroupID = model.ConsensusGroupID{Type: model.DataRegion, ID: 1}

func sample(ts int64, status model.ReplicaStatus) model.HeartbeatSample {
	return model.NewHeartbeatSample(ts, status)
}

func secs(n int64) int64 {
	return n * int64(time.Second)
}
