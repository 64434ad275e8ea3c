package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, cfg Config) (*Limiter, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return New(client, cfg), mr
}

func TestBudgetExhaustion(t *testing.T) {
	l, _ := newTestLimiter(t, Config{MaxAttempts: 3, Cooldown: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := l.CheckLogin(ctx, "user", ""); err != nil {
			t.Fatalf("attempt %d blocked early: %v", i, err)
		}
		if err := l.IncrementLogin(ctx, "user", ""); err != nil {
			t.Fatalf("IncrementLogin: %v", err)
		}
	}

	if err := l.CheckLogin(ctx, "user", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("over budget = %v, want ErrRateLimited", err)
	}
}

func TestCooldownWindowExpires(t *testing.T) {
	l, mr := newTestLimiter(t, Config{MaxAttempts: 1, Cooldown: time.Minute})
	ctx := context.Background()

	if err := l.IncrementLogin(ctx, "user", ""); err != nil {
		t.Fatalf("IncrementLogin: %v", err)
	}
	if err := l.CheckLogin(ctx, "user", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("within window = %v, want ErrRateLimited", err)
	}

	mr.FastForward(2 * time.Minute)

	if err := l.CheckLogin(ctx, "user", ""); err != nil {
		t.Fatalf("after window: %v", err)
	}
}

func TestResetClearsCounters(t *testing.T) {
	l, _ := newTestLimiter(t, Config{EnableIPThrottle: true, MaxAttempts: 1, Cooldown: time.Minute})
	ctx := context.Background()

	if err := l.IncrementLogin(ctx, "user", "10.0.0.1"); err != nil {
		t.Fatalf("IncrementLogin: %v", err)
	}
	if err := l.ResetLogin(ctx, "user", "10.0.0.1"); err != nil {
		t.Fatalf("ResetLogin: %v", err)
	}

	if err := l.CheckLogin(ctx, "user", "10.0.0.1"); err != nil {
		t.Fatalf("after reset: %v", err)
	}
	if n, err := l.LoginAttempts(ctx, "user"); err != nil || n != 0 {
		t.Fatalf("LoginAttempts = (%d, %v)", n, err)
	}
}

func TestIPThrottleSharedAcrossUsernames(t *testing.T) {
	l, _ := newTestLimiter(t, Config{EnableIPThrottle: true, MaxAttempts: 2, Cooldown: time.Minute})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := l.IncrementLogin(ctx, "alice", "10.0.0.9"); err != nil {
			t.Fatalf("IncrementLogin: %v", err)
		}
	}

	// Fresh username, same source address.
	if err := l.CheckLogin(ctx, "bob", "10.0.0.9"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("same IP = %v, want ErrRateLimited", err)
	}
	if err := l.CheckLogin(ctx, "bob", "10.0.0.10"); err != nil {
		t.Fatalf("other IP: %v", err)
	}
}
