package interceptors

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"connectrpc.com/connect"

	"multimodal/pkg/apperror"
	"multimodal/pkg/audit"
)

// AuditConfig конфигурация аудит интерсептора
type AuditConfig struct {
	ServiceName    string
	ExcludeMethods map[string]bool
	Logger         audit.Logger
	Log            *slog.Logger
}

// Applier реализуется ответами команд: false означает no-op
type Applier interface {
	WasApplied() bool
}

// Targeter реализуется запросами команд с объектом воздействия
type Targeter interface {
	AuditTarget() string
}

// AuditInterceptor журналирует каждую команду с её исходом
func AuditInterceptor(cfg *AuditConfig) connect.UnaryInterceptorFunc {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			procedure := req.Spec().Procedure
			command := MethodName(procedure)
			if cfg.ExcludeMethods[procedure] || cfg.ExcludeMethods[command] {
				return next(ctx, req)
			}

			start := time.Now()
			resp, err := next(ctx, req)

			builder := audit.NewEntry().
				Service(cfg.ServiceName).
				Command(command).
				RequestID(req.Header().Get(RequestIDHeader)).
				Client(req.Peer().Addr).
				Duration(time.Since(start))

			if t, ok := req.Any().(Targeter); ok {
				builder.Target(t.AuditTarget())
			}

			builder.Outcome(outcomeOf(resp, err))
			if err != nil {
				builder.Error(string(apperror.Code(err)), err.Error())
			}

			entry := builder.Build()
			if logErr := cfg.Logger.Log(context.WithoutCancel(ctx), entry); logErr != nil {
				log.Warn("Failed to write audit log", "error", logErr)
			}

			return resp, err
		}
	}
}

func outcomeOf(resp connect.AnyResponse, err error) audit.Outcome {
	if err != nil {
		switch apperror.ClassOf(err) {
		case apperror.ClassValidation:
			return audit.OutcomeNoop
		case apperror.ClassState:
			return audit.OutcomeRejected
		default:
			return audit.OutcomeFailed
		}
	}
	if resp != nil {
		if a, ok := resp.Any().(Applier); ok && !a.WasApplied() {
			return audit.OutcomeNoop
		}
	}
	return audit.OutcomeApplied
}

// MethodName последний сегмент процедуры: /pkg.Service/Method -> Method
func MethodName(procedure string) string {
	if i := strings.LastIndexByte(procedure, '/'); i >= 0 {
		return procedure[i+1:]
	}
	return procedure
}
