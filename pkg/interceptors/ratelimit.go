package interceptors

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	"connectrpc.com/connect"

	"multimodal/pkg/ratelimit"
)

// KeyFunc определяет ключ лимита для запроса
type KeyFunc func(ctx context.Context, req connect.AnyRequest) string

// PeerKey ключ по адресу клиента без порта
func PeerKey(_ context.Context, req connect.AnyRequest) string {
	if ip := req.Header().Get("X-Real-Ip"); ip != "" {
		return "ip:" + ip
	}
	addr := req.Peer().Addr
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	if addr == "" {
		addr = "unknown"
	}
	return "ip:" + addr
}

// RateLimitInterceptor создаёт интерсептор для rate limiting
func RateLimitInterceptor(limiter ratelimit.Limiter, keyFunc KeyFunc, log *slog.Logger) connect.UnaryInterceptorFunc {
	if keyFunc == nil {
		keyFunc = PeerKey
	}

	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			key := keyFunc(ctx, req)

			d, err := limiter.Allow(ctx, key)
			if err != nil {
				// При ошибке пропускаем (fail open)
				log.Warn("Rate limit check failed", "error", err, "key", key)
				return next(ctx, req)
			}

			if !d.Allowed {
				log.Warn("Rate limit exceeded", "key", key, "limit", d.Limit)

				cerr := connect.NewError(connect.CodeResourceExhausted,
					fmt.Errorf("rate limit exceeded: %d requests", d.Limit))
				cerr.Meta().Set("X-Ratelimit-Limit", strconv.Itoa(d.Limit))
				cerr.Meta().Set("X-Ratelimit-Remaining", "0")
				cerr.Meta().Set("Retry-After", strconv.Itoa(int(d.RetryAfter.Seconds()+0.999)))
				return nil, cerr
			}

			resp, err := next(ctx, req)
			if err == nil {
				resp.Header().Set("X-Ratelimit-Limit", strconv.Itoa(d.Limit))
				resp.Header().Set("X-Ratelimit-Remaining", strconv.Itoa(d.Remaining))
			}
			return resp, err
		}
	}
}
