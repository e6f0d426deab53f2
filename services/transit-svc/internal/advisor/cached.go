package advisor

import (
	"context"
	"log/slog"
	"time"

	"multimodal/pkg/apperror"
	"multimodal/pkg/cache"
	"multimodal/pkg/metrics"
	"multimodal/pkg/ratelimit"
	"multimodal/pkg/telemetry"
)

const adviceCachePrefix = "advice:"

// CachedAdvisor кэширует ответы по хешу набора путей и ограничивает
// частоту обращений к нижележащему советнику
type CachedAdvisor struct {
	next    Advisor
	cache   *cache.Typed[Advice]
	limiter ratelimit.Limiter
	metrics *metrics.Metrics
	log     *slog.Logger
}

// CachedOption настраивает декоратор
type CachedOption func(*CachedAdvisor)

// WithLimiter ограничивает обращения к нижележащему советнику
func WithLimiter(l ratelimit.Limiter) CachedOption {
	return func(c *CachedAdvisor) { c.limiter = l }
}

// WithMetrics подключает метрики
func WithMetrics(m *metrics.Metrics) CachedOption {
	return func(c *CachedAdvisor) { c.metrics = m }
}

// WithLogger задаёт логгер
func WithLogger(l *slog.Logger) CachedOption {
	return func(c *CachedAdvisor) { c.log = l }
}

// NewCached оборачивает советника. c == nil отключает кэш.
func NewCached(next Advisor, c cache.Cache, ttl time.Duration, opts ...CachedOption) *CachedAdvisor {
	a := &CachedAdvisor{
		next:    next,
		limiter: ratelimit.Unlimited{},
		log:     slog.Default(),
	}
	if c != nil {
		a.cache = cache.NewTyped[Advice](c, adviceCachePrefix, ttl)
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *CachedAdvisor) Name() string { return a.next.Name() }

func (a *CachedAdvisor) Advise(ctx context.Context, req Request) (*Advice, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	key := cache.BuildAdviceKey(a.next.Name(), cache.PathsHash(req.Origin, req.Destination, req.Paths))
	if a.cache != nil {
		cached, hit, err := a.cache.Get(ctx, key)
		if err != nil {
			a.log.Warn("advice cache lookup failed", "error", err)
		}
		a.metrics.RecordCacheLookup(hit)
		telemetry.SetAttributes(ctx, telemetry.CacheAttribute(hit))
		if hit {
			return cached, nil
		}
	}

	decision, err := a.limiter.Allow(ctx, a.next.Name())
	if err != nil {
		a.log.Warn("advisor rate limiter failed, allowing", "error", err)
	} else if !decision.Allowed {
		a.metrics.RecordAdvisor(a.next.Name(), "rate_limited", 0)
		return nil, apperror.New(apperror.CodeRateLimited, "advisor rate limit exceeded").
			WithDetails("retry_after", decision.RetryAfter.String())
	}

	start := time.Now()
	advice, err := a.next.Advise(ctx, req)
	status := "ok"
	if err != nil {
		status = string(apperror.Code(err))
	}
	a.metrics.RecordAdvisor(a.next.Name(), status, time.Since(start))
	if err != nil {
		return nil, err
	}

	if a.cache != nil {
		if err := a.cache.Set(ctx, key, advice); err != nil {
			a.log.Warn("advice cache store failed", "error", err)
		}
	}
	return advice, nil
}

// Invalidate очищает кэш ответов
func (a *CachedAdvisor) Invalidate(ctx context.Context) error {
	if a.cache == nil {
		return nil
	}
	_, err := a.cache.InvalidateAll(ctx)
	return err
}
