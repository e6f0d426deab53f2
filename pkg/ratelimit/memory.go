package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"
)

// MemoryLimiter in-memory реализация rate limiter
type MemoryLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	config  *Config
	now     func() time.Time

	stopCh    chan struct{}
	closed    bool
	closeOnce sync.Once
}

type bucket struct {
	tokens   float64
	updated  time.Time
	requests []time.Time // для sliding window, по возрастанию
}

// NewMemoryLimiter создаёт in-memory rate limiter
func NewMemoryLimiter(cfg *Config) *MemoryLimiter {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	l := &MemoryLimiter{
		buckets: make(map[string]*bucket),
		config:  cfg,
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}

	if cfg.CleanupInterval > 0 {
		go l.cleanupLoop(cfg.CleanupInterval)
	}

	return l
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return Decision{}, ErrLimiterClosed
	}

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.capacity(), updated: now}
		l.buckets[key] = b
	}

	if l.config.Strategy == StrategyTokenBucket {
		return l.takeToken(b, now), nil
	}
	return l.slideWindow(b, now), nil
}

func (l *MemoryLimiter) capacity() float64 {
	return float64(l.config.Requests + l.config.BurstSize)
}

func (l *MemoryLimiter) takeToken(b *bucket, now time.Time) Decision {
	rate := float64(l.config.Requests) / l.config.Window.Seconds()
	b.tokens = math.Min(l.capacity(), b.tokens+now.Sub(b.updated).Seconds()*rate)
	b.updated = now

	d := Decision{Limit: int(l.capacity())}
	if b.tokens >= 1 {
		b.tokens--
		d.Allowed = true
	} else if rate > 0 {
		d.RetryAfter = time.Duration((1 - b.tokens) / rate * float64(time.Second))
	}
	d.Remaining = int(b.tokens)
	return d
}

func (l *MemoryLimiter) slideWindow(b *bucket, now time.Time) Decision {
	b.requests = trimBefore(b.requests, now.Add(-l.config.Window))
	b.updated = now

	d := Decision{Limit: l.config.Requests}
	if len(b.requests) < l.config.Requests {
		b.requests = append(b.requests, now)
		d.Allowed = true
	} else if len(b.requests) > 0 {
		d.RetryAfter = b.requests[0].Add(l.config.Window).Sub(now)
	}
	d.Remaining = l.config.Requests - len(b.requests)
	return d
}

// trimBefore отбрасывает отметки не позже границы окна
func trimBefore(ts []time.Time, boundary time.Time) []time.Time {
	i := 0
	for i < len(ts) && !ts[i].After(boundary) {
		i++
	}
	return ts[i:]
}

func (l *MemoryLimiter) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.buckets, key)
	return nil
}

func (l *MemoryLimiter) Close() error {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closed = true
		l.buckets = nil
		l.mu.Unlock()
		close(l.stopCh)
	})
	return nil
}

func (l *MemoryLimiter) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.evictIdle()
		}
	}
}

// evictIdle удаляет ключи, не использовавшиеся дольше двух окон
func (l *MemoryLimiter) evictIdle() {
	l.mu.Lock()
	defer l.mu.Unlock()

	idle := l.now().Add(-2 * l.config.Window)
	for key, b := range l.buckets {
		if b.updated.Before(idle) {
			delete(l.buckets, key)
		}
	}
}
