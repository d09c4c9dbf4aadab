package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/niaga-platform/service-order-dashboard/internal/domain/orders"
)

const snapshotKeyPrefix = "order-dashboard:orders:"

// SnapshotStore is a shared second cache tier for fetch results.
type SnapshotStore interface {
	Get(ctx context.Context, r orders.DateRange) (*CacheEntry, error)
	Set(ctx context.Context, entry *CacheEntry) error
	Invalidate(ctx context.Context, r orders.DateRange) error
	Clear(ctx context.Context) error
}

// RedisSnapshotStore keeps fetch results in Redis so instances share them.
type RedisSnapshotStore struct {
	redis  *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisSnapshotStore creates a Redis-backed snapshot store. Keys expire
// after ttl.
func NewRedisSnapshotStore(redisClient *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisSnapshotStore {
	if ttl == 0 {
		ttl = 2 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisSnapshotStore{
		redis:  redisClient,
		ttl:    ttl,
		logger: logger,
	}
}

func (s *RedisSnapshotStore) cacheKey(r orders.DateRange) string {
	return fmt.Sprintf("%s%s:%s", snapshotKeyPrefix, r.From, r.To)
}

// Get returns the snapshot for r, or nil on a miss.
func (s *RedisSnapshotStore) Get(ctx context.Context, r orders.DateRange) (*CacheEntry, error) {
	key := s.cacheKey(r)
	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get snapshot %s: %w", key, err)
	}

	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		s.logger.Warn("discarding unreadable snapshot", zap.String("key", key), zap.Error(err))
		return nil, nil
	}
	if entry.DateRange != r {
		return nil, nil
	}

	s.logger.Debug("snapshot hit", zap.String("key", key), zap.Int("orders", len(entry.Orders)))
	return &entry, nil
}

// Set stores entry under its date range.
func (s *RedisSnapshotStore) Set(ctx context.Context, entry *CacheEntry) error {
	key := s.cacheKey(entry.DateRange)

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if err := s.redis.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set snapshot %s: %w", key, err)
	}

	s.logger.Debug("stored snapshot", zap.String("key", key), zap.Duration("ttl", s.ttl))
	return nil
}

// Invalidate removes the snapshot for r.
func (s *RedisSnapshotStore) Invalidate(ctx context.Context, r orders.DateRange) error {
	if err := s.redis.Del(ctx, s.cacheKey(r)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate snapshot: %w", err)
	}
	return nil
}

// Clear removes every snapshot.
func (s *RedisSnapshotStore) Clear(ctx context.Context) error {
	var removed int
	iter := s.redis.Scan(ctx, 0, snapshotKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := s.redis.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to delete snapshot %s: %w", iter.Val(), err)
		}
		removed++
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan snapshots: %w", err)
	}

	s.logger.Debug("cleared snapshots", zap.Int("keys_removed", removed))
	return nil
}
