// Package server служебный gRPC сервер: health, reflection, keepalive.
// Командный API обслуживается connect-обработчиками по HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/logging"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/recovery"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"multimodal/pkg/config"
	"multimodal/pkg/telemetry"
)

// GRPCServer обёртка над grpc.Server
type GRPCServer struct {
	server      *grpc.Server
	health      *health.Server
	serviceName string
	port        int
	log         *slog.Logger
}

// New создаёт служебный gRPC сервер
func New(cfg *config.Config, log *slog.Logger) *GRPCServer {
	if log == nil {
		log = slog.Default()
	}

	kaParams := keepalive.ServerParameters{
		MaxConnectionIdle: cfg.GRPC.KeepAlive.MaxConnectionIdle,
		MaxConnectionAge:  cfg.GRPC.KeepAlive.MaxConnectionAge,
		Time:              cfg.GRPC.KeepAlive.Time,
		Timeout:           cfg.GRPC.KeepAlive.Timeout,
	}

	kaPolicy := keepalive.EnforcementPolicy{
		MinTime:             5 * time.Second,
		PermitWithoutStream: true,
	}

	unary := []grpc.UnaryServerInterceptor{
		recovery.UnaryServerInterceptor(recovery.WithRecoveryHandler(func(p any) error {
			log.Error("panic in grpc handler", "panic", fmt.Sprint(p))
			return status.Error(codes.Internal, "internal error")
		})),
		logging.UnaryServerInterceptor(InterceptorLogger(log),
			logging.WithLogOnEvents(logging.FinishCall)),
	}
	if cfg.Tracing.Enabled {
		unary = append(unary, telemetry.UnaryServerInterceptor())
	}

	s := grpc.NewServer(
		grpc.KeepaliveParams(kaParams),
		grpc.KeepaliveEnforcementPolicy(kaPolicy),
		grpc.ChainUnaryInterceptor(unary...),
		grpc.ChainStreamInterceptor(
			recovery.StreamServerInterceptor(),
			logging.StreamServerInterceptor(InterceptorLogger(log)),
		),
	)

	h := health.NewServer()
	grpc_health_v1.RegisterHealthServer(s, h)

	if cfg.IsDevelopment() {
		reflection.Register(s)
		log.Debug("gRPC reflection enabled")
	}

	return &GRPCServer{
		server:      s,
		health:      h,
		serviceName: cfg.App.Name,
		port:        cfg.GRPC.Port,
		log:         log,
	}
}

// InterceptorLogger адаптер slog для go-grpc-middleware logging
func InterceptorLogger(l *slog.Logger) logging.Logger {
	return logging.LoggerFunc(func(ctx context.Context, lvl logging.Level, msg string, fields ...any) {
		l.Log(ctx, slog.Level(lvl), msg, fields...)
	})
}

// GetEngine возвращает *grpc.Server для регистрации сервисов
func (s *GRPCServer) GetEngine() *grpc.Server {
	return s.server
}

// Run слушает порт из конфигурации до отмены ctx
func (s *GRPCServer) Run(ctx context.Context) error {
	lc := net.ListenConfig{}
	lis, err := lc.Listen(ctx, "tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.Serve(ctx, lis)
}

// Serve обслуживает lis до отмены ctx, затем останавливается gracefully
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	s.SetServing(true)

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Starting gRPC admin server", "service", s.serviceName, "addr", lis.Addr().String())
		errCh <- s.server.Serve(lis)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.SetServing(false)

	done := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("gRPC admin server stopped gracefully")
	case <-time.After(10 * time.Second):
		s.log.Warn("Forcing gRPC admin server stop")
		s.server.Stop()
	}
	return nil
}

// SetServing переключает статус health для сервиса и для "" (весь сервер)
func (s *GRPCServer) SetServing(serving bool) {
	st := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		st = grpc_health_v1.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(s.serviceName, st)
	s.health.SetServingStatus("", st)
}

// Stop останавливает сервер немедленно
func (s *GRPCServer) Stop() {
	s.server.Stop()
}
