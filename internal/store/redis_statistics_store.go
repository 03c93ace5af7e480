package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/devrev/tsdb/confignode/internal/model"
)

// RedisOptions are the connection settings of the statistics store
type RedisOptions struct {
	Host         string
	Port         int
	Password     string
	DB           int
	MaxRetries   int
	PoolSize     int
	MinIdleConns int
	KeyPrefix    string
}

// RedisStatisticsStore implements StatisticsStore for Redis.
// Snapshots live under "<prefix>:<group>" and status changes are published on
// "<prefix>:status_changes".
type RedisStatisticsStore struct {
	client *redis.Client
	keys   statisticsKeys
	logger *zap.Logger
}

// NewRedisStatisticsStore creates a new Redis statistics store
func NewRedisStatisticsStore(ctx context.Context, opts RedisOptions, logger *zap.Logger) (*RedisStatisticsStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", opts.Host, opts.Port),
		Password:     opts.Password,
		DB:           opts.DB,
		MaxRetries:   opts.MaxRetries,
		PoolSize:     opts.PoolSize,
		MinIdleConns: opts.MinIdleConns,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return newRedisStatisticsStore(client, opts.KeyPrefix, logger), nil
}

func newRedisStatisticsStore(client *redis.Client, prefix string, logger *zap.Logger) *RedisStatisticsStore {
	return &RedisStatisticsStore{
		client: client,
		keys:   statisticsKeys{prefix: prefix},
		logger: logger,
	}
}

// PutGroupStatistics stores a group snapshot with TTL
func (s *RedisStatisticsStore) PutGroupStatistics(
	ctx context.Context,
	groupID model.ConsensusGroupID,
	stats *model.GroupStatistics,
	ttl time.Duration,
) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to marshal statistics: %w", err)
	}

	return s.client.Set(ctx, s.keys.group(groupID), data, ttl).Err()
}

// GetGroupStatistics retrieves a group snapshot
func (s *RedisStatisticsStore) GetGroupStatistics(ctx context.Context, groupID model.ConsensusGroupID) (*model.GroupStatistics, error) {
	data, err := s.client.Get(ctx, s.keys.group(groupID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var stats model.GroupStatistics
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, fmt.Errorf("failed to unmarshal statistics: %w", err)
	}

	return &stats, nil
}

// DeleteGroupStatistics removes a group snapshot
func (s *RedisStatisticsStore) DeleteGroupStatistics(ctx context.Context, groupID model.ConsensusGroupID) error {
	return s.client.Del(ctx, s.keys.group(groupID)).Err()
}

// PublishStatusChange announces a group status transition to subscribers
func (s *RedisStatisticsStore) PublishStatusChange(ctx context.Context, change model.StatusChange) error {
	data, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("failed to marshal status change: %w", err)
	}

	return s.client.Publish(ctx, s.keys.statusChanges(), data).Err()
}

// Ping checks the Redis connection
func (s *RedisStatisticsStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis client
func (s *RedisStatisticsStore) Close() error {
	return s.client.Close()
}

type statisticsKeys struct {
	prefix string
}

func (k statisticsKeys) group(groupID model.ConsensusGroupID) string {
	if k.prefix == "" {
		return groupID.String()
	}
	return k.prefix + ":" + groupID.String()
}

func (k statisticsKeys) statusChanges() string {
	if k.prefix == "" {
		return "status_changes"
	}
	return k.prefix + ":status_changes"
}
