package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds rate limiter tuning parameters.
type Config struct {
	MaxSecondFactorAttempts    int
	SecondFactorAttemptsWindow time.Duration
}

// Limiter enforces per-session second-factor attempt limits using Redis
// counters. A session that exhausts its budget stays locked out until the
// window expires.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

func secondFactorKey(sessionToken string) string {
	return "ag2f:" + sessionToken
}

// CheckSecondFactor reports whether the session is still within its
// second-factor attempt budget. Returns [ErrRateLimited] if exceeded.
func (l *Limiter) CheckSecondFactor(ctx context.Context, sessionToken string) error {
	count, err := l.redis.Get(ctx, secondFactorKey(sessionToken)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if count >= int64(l.config.MaxSecondFactorAttempts) {
		return ErrRateLimited
	}

	return nil
}

// IncrementSecondFactor records a failed second-factor attempt for the
// session. Returns [ErrRateLimited] once the budget is exhausted.
func (l *Limiter) IncrementSecondFactor(ctx context.Context, sessionToken string) error {
	count, err := l.incrementWithTTL(ctx, secondFactorKey(sessionToken), l.config.SecondFactorAttemptsWindow)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxSecondFactorAttempts) {
		return ErrRateLimited
	}

	return nil
}

// ResetSecondFactor clears the attempt counter after a successful
// verification.
func (l *Limiter) ResetSecondFactor(ctx context.Context, sessionToken string) error {
	if err := l.redis.Del(ctx, secondFactorKey(sessionToken)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}
