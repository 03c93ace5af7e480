package loadcache

import (
	"time"

	"github.com/devrev/tsdb/confignode/internal/model"
	"github.com/google/btree"
)

const windowDegree = 8

// sampleWindow keeps recent samples ordered by timestamp.
// It is not safe for concurrent use; ReplicaCache guards it.
type sampleWindow struct {
	samples   *btree.BTreeG[model.HeartbeatSample]
	maxSize   int
	retention int64
}

func newSampleWindow(maxSize int, retention time.Duration) *sampleWindow {
	return &sampleWindow{
		samples: btree.NewG(windowDegree, func(a, b model.HeartbeatSample) bool {
			return a.Timestamp < b.Timestamp
		}),
		maxSize:   maxSize,
		retention: retention.Nanoseconds(),
	}
}

// add inserts the sample in timestamp order and evicts what no longer fits.
// A sample with the timestamp of an existing one replaces it.
func (w *sampleWindow) add(sample model.HeartbeatSample) {
	w.samples.ReplaceOrInsert(sample)
	w.evict()
}

func (w *sampleWindow) evict() {
	for w.samples.Len() > w.maxSize {
		w.samples.DeleteMin()
	}

	newest, ok := w.samples.Max()
	if !ok {
		return
	}
	cutoff := newest.Timestamp - w.retention
	if cutoff > newest.Timestamp {
		// wrapped below math.MinInt64: nothing is old enough to drop
		return
	}
	for {
		oldest, ok := w.samples.Min()
		if !ok || oldest.Timestamp >= cutoff {
			return
		}
		w.samples.DeleteMin()
	}
}

func (w *sampleWindow) newest() (model.HeartbeatSample, bool) {
	return w.samples.Max()
}

// newestSteady returns the newest sample that is not Adding or Removing
func (w *sampleWindow) newestSteady() (model.HeartbeatSample, bool) {
	var found model.HeartbeatSample
	ok := false
	w.samples.Descend(func(s model.HeartbeatSample) bool {
		if s.Status.IsTransitional() {
			return true
		}
		found, ok = s, true
		return false
	})
	return found, ok
}

func (w *sampleWindow) len() int {
	return w.samples.Len()
}

// list returns the samples oldest first
func (w *sampleWindow) list() []model.HeartbeatSample {
	out := make([]model.HeartbeatSample, 0, w.samples.Len())
	w.samples.Ascend(func(s model.HeartbeatSample) bool {
		out = append(out, s)
		return true
	})
	return out
}
