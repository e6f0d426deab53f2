package interceptors

import (
	"context"
	"log/slog"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"

	"multimodal/pkg/logger"
)

// RequestIDHeader заголовок идентификатора запроса
const RequestIDHeader = "X-Request-Id"

// LoggingInterceptor логирует запросы и кладёт логгер с request_id в контекст
func LoggingInterceptor(log *slog.Logger) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			requestID := req.Header().Get(RequestIDHeader)
			if requestID == "" {
				requestID = uuid.NewString()
				req.Header().Set(RequestIDHeader, requestID)
			}

			reqLog := log.With("request_id", requestID)
			ctx = logger.IntoContext(ctx, reqLog)

			start := time.Now()
			resp, err := next(ctx, req)
			duration := time.Since(start)

			if err != nil {
				reqLog.Warn("rpc failed",
					"procedure", req.Spec().Procedure,
					"duration_ms", duration.Milliseconds(),
					"code", CodeOf(err).String(),
					"error", err.Error(),
				)
			} else {
				reqLog.Debug("rpc completed",
					"procedure", req.Spec().Procedure,
					"duration_ms", duration.Milliseconds(),
				)
				resp.Header().Set(RequestIDHeader, requestID)
			}

			return resp, err
		}
	}
}
