package notify

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, limit int, window time.Duration) (*SlidingWindowLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSlidingWindowLimiter(client, limit, window), mr
}

func TestAllow_PermitsUpToLimit(t *testing.T) {
	l, _ := newTestLimiter(t, 3, 10*time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, "+15555550100")
		if err != nil {
			t.Fatalf("Allow: %v", err)
		}
		if !ok {
			t.Fatalf("expected send %d to be allowed", i+1)
		}
	}

	ok, err := l.Allow(ctx, "+15555550100")
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if ok {
		t.Fatal("expected 4th send within window to be rejected")
	}
}

func TestAllow_WindowExpires(t *testing.T) {
	l, mr := newTestLimiter(t, 1, 10*time.Minute)
	ctx := context.Background()

	ok, err := l.Allow(ctx, "+15555550100")
	if err != nil || !ok {
		t.Fatalf("expected first send allowed, got ok=%v err=%v", ok, err)
	}

	mr.FastForward(11 * time.Minute)

	ok, err = l.Allow(ctx, "+15555550100")
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if !ok {
		t.Fatal("expected send allowed again after window expiry")
	}
}

func TestAllow_IsolatedPerTarget(t *testing.T) {
	l, _ := newTestLimiter(t, 1, 10*time.Minute)
	ctx := context.Background()

	ok1, _ := l.Allow(ctx, "+15555550100")
	ok2, _ := l.Allow(ctx, "+15555550199")

	if !ok1 || !ok2 {
		t.Fatal("expected distinct targets to have independent limits")
	}
}
