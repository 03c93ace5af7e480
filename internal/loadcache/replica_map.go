package loadcache

import (
	"sort"
	"sync"
)

// replicaMap maps data node ids to replica caches.
// Locks are held only for single map operations; iteration works on a copy.
type replicaMap struct {
	mu       sync.RWMutex
	replicas map[int32]*ReplicaCache
}

func newReplicaMap() *replicaMap {
	return &replicaMap{replicas: make(map[int32]*ReplicaCache)}
}

func (m *replicaMap) get(dataNodeID int32) (*ReplicaCache, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.replicas[dataNodeID]
	return c, ok
}

// put stores the cache and reports whether it replaced an existing one
func (m *replicaMap) put(c *ReplicaCache) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, existed := m.replicas[c.DataNodeID()]
	m.replicas[c.DataNodeID()] = c
	return existed
}

func (m *replicaMap) delete(dataNodeID int32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, existed := m.replicas[dataNodeID]
	delete(m.replicas, dataNodeID)
	return existed
}

func (m *replicaMap) len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.replicas)
}

// snapshot returns the caches ordered by data node id
func (m *replicaMap) snapshot() []*ReplicaCache {
	m.mu.RLock()
	out := make([]*ReplicaCache, 0, len(m.replicas))
	for _, c := range m.replicas {
		out = append(out, c)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].DataNodeID() < out[j].DataNodeID()
	})
	return out
}

// keys returns the data node ids in ascending order
func (m *replicaMap) keys() []int32 {
	m.mu.RLock()
	ids := make([]int32, 0, len(m.replicas))
	for id := range m.replicas {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
