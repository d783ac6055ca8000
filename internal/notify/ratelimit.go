package notify

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// SlidingWindowLimiter bounds sends per target using a Redis sorted set
// keyed by target, with each member's score the send's unix-nano
// timestamp — the same ZSET sliding-window shape used for overlay-demand
// tracking in the ts-vms reference service.
type SlidingWindowLimiter struct {
	client goredis.UniversalClient
	limit  int
	window time.Duration
}

// NewSlidingWindowLimiter builds a limiter allowing at most limit sends
// per target within window (default SMS: 3 per 10 minutes, spec.md §4.5).
func NewSlidingWindowLimiter(client goredis.UniversalClient, limit int, window time.Duration) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{client: client, limit: limit, window: window}
}

// Allow reports whether target may send now, recording the attempt if so.
func (l *SlidingWindowLimiter) Allow(ctx context.Context, target string) (bool, error) {
	key := fmt.Sprintf("notify:ratelimit:%s", target)
	now := time.Now()
	cutoff := now.Add(-l.window).UnixNano()

	if err := l.client.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("%d", cutoff)).Err(); err != nil {
		return false, fmt.Errorf("ratelimit: trim window: %w", err)
	}

	count, err := l.client.ZCard(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("ratelimit: count window: %w", err)
	}
	if int(count) >= l.limit {
		return false, nil
	}

	member := fmt.Sprintf("%d", now.UnixNano())
	if err := l.client.ZAdd(ctx, key, goredis.Z{Score: float64(now.UnixNano()), Member: member}).Err(); err != nil {
		return false, fmt.Errorf("ratelimit: record send: %w", err)
	}
	_ = l.client.Expire(ctx, key, l.window)
	return true, nil
}
