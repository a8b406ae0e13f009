package parties

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const joinFailuresPrefix = "party:join_failures:"

// JoinLimiter throttles users who keep presenting invalid invitations.
type JoinLimiter interface {
	Blocked(ctx context.Context, userID uuid.UUID) (bool, error)
	RecordFailure(ctx context.Context, userID uuid.UUID) error
}

// RedisJoinLimiter counts failed joins per user in a fixed window.
type RedisJoinLimiter struct {
	client      *redis.Client
	maxFailures int64
	window      time.Duration
}

// NewRedisJoinLimiter creates a limiter allowing maxFailures failed joins per window.
func NewRedisJoinLimiter(client *redis.Client, maxFailures int, window time.Duration) *RedisJoinLimiter {
	return &RedisJoinLimiter{client: client, maxFailures: int64(maxFailures), window: window}
}

// Blocked reports whether the user has used up their failures for the current window.
func (l *RedisJoinLimiter) Blocked(ctx context.Context, userID uuid.UUID) (bool, error) {
	n, err := l.client.Get(ctx, joinFailuresPrefix+userID.String()).Int64()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read join failures: %w", err)
	}
	return n >= l.maxFailures, nil
}

// RecordFailure counts one failed join. The window starts at the first failure.
func (l *RedisJoinLimiter) RecordFailure(ctx context.Context, userID uuid.UUID) error {
	key := joinFailuresPrefix + userID.String()
	n, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("record join failure: %w", err)
	}
	if n == 1 {
		if err := l.client.Expire(ctx, key, l.window).Err(); err != nil {
			return fmt.Errorf("expire join failures: %w", err)
		}
	}
	return nil
}
