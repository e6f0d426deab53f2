package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"multimodal/pkg/config"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newLimiter(t *testing.T, cfg *Config) (*MemoryLimiter, *fakeClock) {
	t.Helper()
	cfg.CleanupInterval = 0
	l := NewMemoryLimiter(cfg)
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	l.now = clock.Now
	t.Cleanup(func() { _ = l.Close() })
	return l, clock
}

func TestSlidingWindow(t *testing.T) {
	l, clock := newLimiter(t, &Config{Requests: 3, Window: time.Second, Strategy: StrategySlidingWindow})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := l.Allow(ctx, "s1")
		if err != nil || !d.Allowed {
			t.Fatalf("request %d rejected: %+v %v", i, d, err)
		}
		if d.Remaining != 2-i {
			t.Errorf("request %d remaining = %d", i, d.Remaining)
		}
		clock.Advance(100 * time.Millisecond)
	}

	d, _ := l.Allow(ctx, "s1")
	if d.Allowed {
		t.Fatal("fourth request must be rejected")
	}
	if d.RetryAfter != 700*time.Millisecond {
		t.Errorf("RetryAfter = %v", d.RetryAfter)
	}

	// другой ключ независим
	if d, _ := l.Allow(ctx, "s2"); !d.Allowed {
		t.Error("independent key rejected")
	}

	clock.Advance(701 * time.Millisecond)
	if d, _ := l.Allow(ctx, "s1"); !d.Allowed {
		t.Error("oldest request should have left the window")
	}
}

func TestTokenBucket(t *testing.T) {
	l, clock := newLimiter(t, &Config{Requests: 2, Window: time.Second, BurstSize: 1, Strategy: StrategyTokenBucket})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if d, _ := l.Allow(ctx, "k"); !d.Allowed {
			t.Fatalf("burst request %d rejected", i)
		}
	}
	d, _ := l.Allow(ctx, "k")
	if d.Allowed {
		t.Fatal("bucket should be empty")
	}
	if d.RetryAfter != 500*time.Millisecond {
		t.Errorf("RetryAfter = %v", d.RetryAfter)
	}

	clock.Advance(500 * time.Millisecond)
	if d, _ := l.Allow(ctx, "k"); !d.Allowed {
		t.Error("token should be refilled")
	}
}

func TestReset(t *testing.T) {
	l, _ := newLimiter(t, &Config{Requests: 1, Window: time.Minute})
	ctx := context.Background()

	_, _ = l.Allow(ctx, "k")
	if d, _ := l.Allow(ctx, "k"); d.Allowed {
		t.Fatal("expected rejection")
	}
	if err := l.Reset(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if d, _ := l.Allow(ctx, "k"); !d.Allowed {
		t.Error("reset must clear the window")
	}
}

func TestEvictIdle(t *testing.T) {
	l, clock := newLimiter(t, &Config{Requests: 5, Window: time.Second})
	ctx := context.Background()

	_, _ = l.Allow(ctx, "old")
	clock.Advance(3 * time.Second)
	_, _ = l.Allow(ctx, "fresh")
	l.evictIdle()

	l.mu.Lock()
	_, oldKept := l.buckets["old"]
	_, freshKept := l.buckets["fresh"]
	l.mu.Unlock()

	if oldKept || !freshKept {
		t.Errorf("old=%v fresh=%v", oldKept, freshKept)
	}
}

func TestClosed(t *testing.T) {
	l := NewMemoryLimiter(&Config{Requests: 1, Window: time.Second, CleanupInterval: time.Millisecond})
	_ = l.Close()
	_ = l.Close()

	if _, err := l.Allow(context.Background(), "k"); !errors.Is(err, ErrLimiterClosed) {
		t.Errorf("expected ErrLimiterClosed, got %v", err)
	}
}

func TestConcurrentAllowNeverExceedsLimit(t *testing.T) {
	l, _ := newLimiter(t, &Config{Requests: 50, Window: time.Hour})
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				if d, _ := l.Allow(ctx, "shared"); d.Allowed {
					mu.Lock()
					allowed++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	if allowed != 50 {
		t.Errorf("allowed = %d, want 50", allowed)
	}
}

func TestFromConfig(t *testing.T) {
	cfg := FromConfig(config.RateLimitConfig{Requests: 10, Window: 2 * time.Second, Strategy: StrategyTokenBucket, BurstSize: 3})

	if cfg.Requests != 10 || cfg.Window != 2*time.Second || cfg.Strategy != StrategyTokenBucket || cfg.BurstSize != 3 {
		t.Errorf("unexpected %+v", cfg)
	}
	if cfg.Backend != "memory" {
		t.Errorf("backend default lost: %s", cfg.Backend)
	}
}

func TestPerMinute(t *testing.T) {
	cfg := PerMinute(20)
	if cfg.Requests != 20 || cfg.Window != time.Minute || cfg.BurstSize != 0 {
		t.Errorf("unexpected %+v", cfg)
	}
}

func TestUnlimited(t *testing.T) {
	var l Limiter = Unlimited{}
	for i := 0; i < 1000; i++ {
		if d, _ := l.Allow(context.Background(), "k"); !d.Allowed {
			t.Fatal("Unlimited rejected a request")
		}
	}
}

func TestNew_DefaultsToMemory(t *testing.T) {
	l, err := New(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	if _, ok := l.(*MemoryLimiter); !ok {
		t.Errorf("got %T", l)
	}
}
