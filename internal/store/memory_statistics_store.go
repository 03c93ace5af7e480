package store

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/devrev/tsdb/confignode/internal/model"
)

// InMemoryStatisticsStore implements StatisticsStore using an in-memory map.
// It backs single-process deployments and tests.
type InMemoryStatisticsStore struct {
	mu      sync.RWMutex
	data    map[model.ConsensusGroupID]*statisticsItem
	changes []model.StatusChange
	logger  *zap.Logger
	now     func() time.Time
}

type statisticsItem struct {
	stats     *model.GroupStatistics
	expiresAt time.Time
}

// NewInMemoryStatisticsStore creates a new in-memory statistics store
func NewInMemoryStatisticsStore(logger *zap.Logger) *InMemoryStatisticsStore {
	return &InMemoryStatisticsStore{
		data:   make(map[model.ConsensusGroupID]*statisticsItem),
		logger: logger,
		now:    time.Now,
	}
}

// PutGroupStatistics stores a snapshot; a non-positive ttl never expires
func (s *InMemoryStatisticsStore) PutGroupStatistics(
	ctx context.Context,
	groupID model.ConsensusGroupID,
	stats *model.GroupStatistics,
	ttl time.Duration,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := &statisticsItem{stats: stats}
	if ttl > 0 {
		item.expiresAt = s.now().Add(ttl)
	}
	s.data[groupID] = item
	return nil
}

// GetGroupStatistics retrieves a snapshot
func (s *InMemoryStatisticsStore) GetGroupStatistics(ctx context.Context, groupID model.ConsensusGroupID) (*model.GroupStatistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, exists := s.data[groupID]
	if !exists {
		return nil, ErrNotFound
	}
	if !item.expiresAt.IsZero() && s.now().After(item.expiresAt) {
		return nil, ErrNotFound
	}
	return item.stats, nil
}

// DeleteGroupStatistics removes a snapshot
func (s *InMemoryStatisticsStore) DeleteGroupStatistics(ctx context.Context, groupID model.ConsensusGroupID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, groupID)
	return nil
}

// PublishStatusChange records a status change
func (s *InMemoryStatisticsStore) PublishStatusChange(ctx context.Context, change model.StatusChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.changes = append(s.changes, change)
	return nil
}

// StatusChanges returns the recorded status changes in publish order
func (s *InMemoryStatisticsStore) StatusChanges() []model.StatusChange {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.StatusChange(nil), s.changes...)
}

// Size returns the number of stored snapshots
func (s *InMemoryStatisticsStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Ping always succeeds
func (s *InMemoryStatisticsStore) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op
func (s *InMemoryStatisticsStore) Close() error {
	return nil
}
