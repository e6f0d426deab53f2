package interceptors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"connectrpc.com/connect"

	"multimodal/pkg/apperror"
)

// RecoveryInterceptor превращает панику обработчика в CodeInternal
func RecoveryInterceptor(log *slog.Logger) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (resp connect.AnyResponse, err error) {
			defer func() {
				if p := recover(); p != nil {
					log.Error("panic in handler",
						"procedure", req.Spec().Procedure,
						"panic", fmt.Sprint(p),
						"stack", string(debug.Stack()),
					)
					resp = nil
					err = connect.NewError(connect.CodeInternal, fmt.Errorf("internal error"))
				}
			}()
			return next(ctx, req)
		}
	}
}

// ErrorInterceptor переводит ошибки apperror в connect-ошибки
func ErrorInterceptor() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			resp, err := next(ctx, req)
			if err != nil {
				return nil, apperror.ToConnect(err)
			}
			return resp, nil
		}
	}
}

// CodeOf код ответа с учётом ещё не преобразованных apperror
func CodeOf(err error) connect.Code {
	var appErr *apperror.Error
	if errors.As(err, &appErr) {
		return appErr.ConnectCode()
	}
	return connect.CodeOf(err)
}
