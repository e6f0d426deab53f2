package interceptors

import (
	"context"
	"time"

	"connectrpc.com/connect"

	"multimodal/pkg/metrics"
)

// MetricsInterceptor записывает метрики запросов. m == nil - метрики выключены.
func MetricsInterceptor(m *metrics.Metrics) connect.UnaryInterceptorFunc {
	var tracker *metrics.RequestTracker
	if m != nil {
		tracker = metrics.NewRequestTracker(m.RPCRequestsInFlight)
	}

	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if tracker == nil {
				return next(ctx, req)
			}

			procedure := req.Spec().Procedure
			tracker.Start(procedure)
			defer tracker.End(procedure)

			start := time.Now()
			resp, err := next(ctx, req)

			code := "ok"
			if err != nil {
				code = CodeOf(err).String()
			}
			m.RecordRPC(procedure, code, time.Since(start))

			return resp, err
		}
	}
}
