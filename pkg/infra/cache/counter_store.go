package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/NeuralTrust/EdgeShield/pkg/infra/breaker"
	"github.com/go-redis/redis/v8"
)

// CounterStore is the shared, atomic counter backing distributed rate limits.
type CounterStore interface {
	// Incr increments key and returns the new count. The key expires at
	// expireAt; the expiry is applied in the same transaction as the increment.
	Incr(ctx context.Context, key string, expireAt time.Time) (int64, error)
}

type redisCounterStore struct {
	redis   *redis.Client
	breaker breaker.CircuitBreaker
}

func NewCounterStore(redisClient *redis.Client, cb breaker.CircuitBreaker) CounterStore {
	return &redisCounterStore{
		redis:   redisClient,
		breaker: cb,
	}
}

func (s *redisCounterStore) Incr(ctx context.Context, key string, expireAt time.Time) (int64, error) {
	var count int64
	op := func() error {
		pipe := s.redis.TxPipeline()
		incr := pipe.Incr(ctx, key)
		pipe.PExpireAt(ctx, key, expireAt)
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
		count = incr.Val()
		return nil
	}

	var err error
	if s.breaker != nil {
		err = s.breaker.Execute(op)
	} else {
		err = op()
	}
	if err != nil {
		return 0, fmt.Errorf("counter store incr %s: %w", key, err)
	}
	return count, nil
}
