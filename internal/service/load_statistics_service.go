package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/devrev/tsdb/confignode/internal/loadcache"
	"github.com/devrev/tsdb/confignode/internal/metrics"
	"github.com/devrev/tsdb/confignode/internal/model"
)

// StatisticsUpdate is the outcome of one recompute cycle
type StatisticsUpdate struct {
	Cycle    uint64
	Changes  []model.StatusChange
	Snapshot map[model.ConsensusGroupID]*model.GroupStatistics
}

// StatisticsListener is notified after every completed recompute cycle
type StatisticsListener interface {
	OnStatisticsUpdated(ctx context.Context, update *StatisticsUpdate)
}

// LoadStatisticsService periodically recomputes every region group and
// publishes the results to its listeners
type LoadStatisticsService struct {
	registry    *loadcache.Registry
	metrics     *metrics.Metrics
	interval    time.Duration
	parallelism int
	logger      *zap.Logger

	mu        sync.Mutex
	listeners []StatisticsListener
	running   bool
	cancel    context.CancelFunc
	doneCh    chan struct{}

	cycle atomic.Uint64
}

// NewLoadStatisticsService creates a new load statistics service
func NewLoadStatisticsService(
	registry *loadcache.Registry,
	interval time.Duration,
	parallelism int,
	m *metrics.Metrics,
	logger *zap.Logger,
) *LoadStatisticsService {
	return &LoadStatisticsService{
		registry:    registry,
		metrics:     m,
		interval:    interval,
		parallelism: parallelism,
		logger:      logger,
	}
}

// AddListener registers a listener for recompute results
func (s *LoadStatisticsService) AddListener(l StatisticsListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// RunOnce recomputes all region groups, records metrics and notifies listeners
func (s *LoadStatisticsService) RunOnce(ctx context.Context) (*StatisticsUpdate, error) {
	start := time.Now()
	changes, err := s.registry.UpdateAll(ctx, s.parallelism)
	s.metrics.RecordRecompute(time.Since(start).Seconds(), err)
	if err != nil {
		return nil, err
	}

	for _, c := range changes {
		s.metrics.RecordStatusTransition(c.Previous, c.Current)
		fields := []zap.Field{
			zap.String("group_id", c.GroupID.String()),
			zap.String("database", c.Database),
			zap.String("previous", string(c.Previous)),
			zap.String("current", string(c.Current)),
			zap.String("event_id", c.EventID),
		}
		if c.Current == model.GroupStatusDisabled {
			s.logger.Warn("Region group disabled", fields...)
		} else {
			s.logger.Info("Region group status changed", fields...)
		}
	}

	update := &StatisticsUpdate{
		Cycle:    s.cycle.Add(1),
		Changes:  changes,
		Snapshot: s.registry.Snapshot(),
	}
	s.recordGauges(update.Snapshot)

	s.mu.Lock()
	listeners := append([]StatisticsListener(nil), s.listeners...)
	s.mu.Unlock()
	for _, l := range listeners {
		l.OnStatisticsUpdated(ctx, update)
	}

	return update, nil
}

func (s *LoadStatisticsService) recordGauges(snapshot map[model.ConsensusGroupID]*model.GroupStatistics) {
	groups := make(map[model.GroupStatus]int, len(model.AllGroupStatuses))
	replicas := make(map[model.ReplicaStatus]int, len(model.AllReplicaStatuses))
	for _, stats := range snapshot {
		groups[stats.Status()]++
		for _, r := range stats.Replicas() {
			replicas[r.Statistics.Status]++
		}
	}
	s.metrics.UpdateRegionGroups(groups)
	s.metrics.UpdateReplicas(replicas)
}

// Start launches the periodic recompute loop
func (s *LoadStatisticsService) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.running = true
	s.cancel = cancel
	s.doneCh = make(chan struct{})

	go s.run(ctx, s.doneCh)

	s.logger.Info("Load statistics service started",
		zap.Duration("interval", s.interval),
		zap.Int("parallelism", s.parallelism))
}

// run recomputes on every tick until ctx is canceled
func (s *LoadStatisticsService) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error("Failed to recompute region group statistics", zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}

// Stop stops the loop and waits for an in-flight cycle to return
func (s *LoadStatisticsService) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	done := s.doneCh
	s.mu.Unlock()

	<-done
	s.logger.Info("Load statistics service stopped")
}

// Cycles returns the number of completed recompute cycles
func (s *LoadStatisticsService) Cycles() uint64 {
	return s.cycle.Load()
}
