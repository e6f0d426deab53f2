// Package interceptors собирает цепочку connect-интерсепторов командного API
package interceptors

import (
	"log/slog"

	"connectrpc.com/connect"

	"multimodal/pkg/audit"
	"multimodal/pkg/metrics"
	"multimodal/pkg/ratelimit"
	"multimodal/pkg/telemetry"
)

// ServerConfig конфигурация серверных интерсепторов
type ServerConfig struct {
	ServiceName   string
	Logger        *slog.Logger
	Metrics       *metrics.Metrics
	EnableTracing bool
	RateLimiter   ratelimit.Limiter
	KeyFunc       KeyFunc
	AuditLogger   audit.Logger
	AuditExclude  map[string]bool
}

// Interceptors возвращает цепочку в порядке от внешнего к внутреннему
func Interceptors(cfg *ServerConfig) []connect.Interceptor {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	// ErrorInterceptor снаружи: внутренние звенья видят исходные apperror
	chain := []connect.Interceptor{
		RecoveryInterceptor(log),
		ErrorInterceptor(),
	}

	// Rate Limiting (первым после recovery)
	if cfg.RateLimiter != nil {
		chain = append(chain, RateLimitInterceptor(cfg.RateLimiter, cfg.KeyFunc, log))
	}

	if cfg.EnableTracing {
		chain = append(chain, telemetry.ConnectInterceptor())
	}

	chain = append(chain,
		MetricsInterceptor(cfg.Metrics),
		LoggingInterceptor(log),
	)

	if cfg.AuditLogger != nil {
		chain = append(chain, AuditInterceptor(&AuditConfig{
			ServiceName:    cfg.ServiceName,
			ExcludeMethods: cfg.AuditExclude,
			Logger:         cfg.AuditLogger,
			Log:            log,
		}))
	}

	chain = append(chain, ValidationInterceptor())

	return chain
}

// HandlerOptions опции connect-обработчика с цепочкой интерсепторов
func HandlerOptions(cfg *ServerConfig, extra ...connect.HandlerOption) []connect.HandlerOption {
	opts := []connect.HandlerOption{connect.WithInterceptors(Interceptors(cfg)...)}
	return append(opts, extra...)
}
