package fraud

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// CounterStore is the short-window counter backend for risk heuristics.
// Backed by Redis in production; tests substitute an in-memory store.
type CounterStore interface {
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)
	Count(ctx context.Context, key string) (int64, error)
	AddToSet(ctx context.Context, key, member string, window time.Duration) error
	SetCardinality(ctx context.Context, key string) (int64, error)
}

type redisCounterStore struct {
	client *redis.Client
}

// NewRedisCounterStore creates a counter store over an injected Redis client.
func NewRedisCounterStore(client *redis.Client) CounterStore {
	return &redisCounterStore{client: client}
}

func (s *redisCounterStore) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (s *redisCounterStore) Count(ctx context.Context, key string) (int64, error) {
	val, err := s.client.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return val, err
}

func (s *redisCounterStore) AddToSet(ctx context.Context, key, member string, window time.Duration) error {
	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, key, member)
	pipe.ExpireNX(ctx, key, window)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *redisCounterStore) SetCardinality(ctx context.Context, key string) (int64, error) {
	return s.client.SCard(ctx, key).Result()
}

func attemptKey(userID uint) string     { return fmt.Sprintf("fraud:attempts:user:%d", userID) }
func failureKey(userID uint) string     { return fmt.Sprintf("fraud:failures:user:%d", userID) }
func ipUsersKey(sourceIP string) string { return "fraud:users:ip:" + sourceIP }
