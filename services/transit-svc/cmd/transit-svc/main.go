package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"multimodal/pkg/audit"
	"multimodal/pkg/cache"
	"multimodal/pkg/config"
	"multimodal/pkg/domain"
	"multimodal/pkg/interceptors"
	"multimodal/pkg/logger"
	"multimodal/pkg/metrics"
	"multimodal/pkg/ratelimit"
	"multimodal/pkg/server"
	"multimodal/pkg/swagger"
	"multimodal/pkg/telemetry"
	"multimodal/services/transit-svc/internal/advisor"
	"multimodal/services/transit-svc/internal/handlers"
	"multimodal/services/transit-svc/internal/middleware"
	"multimodal/services/transit-svc/internal/report"
	"multimodal/services/transit-svc/internal/repository"
	"multimodal/services/transit-svc/internal/session"
	"multimodal/services/transit-svc/internal/simulator"
	"multimodal/services/transit-svc/internal/stream"
)

const serviceName = "transit-svc"

func main() {
	// Загружаем конфигурацию
	cfg, err := config.Load()
	if err != nil {
		logger.Init("error")
		logger.Fatal("Failed to load config", "error", err)
	}

	// Инициализируем логгер
	logCloser := logger.InitWithConfig(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		FilePath:   cfg.Log.FilePath,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	})
	defer logCloser.Close()

	log := logger.WithService(serviceName)
	log.Info("Starting Transit Service",
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
	)

	if err := run(cfg, log); err != nil {
		log.Error("Service failed", "error", err)
		os.Exit(1)
	}
	log.Info("Server stopped")
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Трассировка
	tp, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:     cfg.Tracing.Enabled,
		Exporter:    cfg.Tracing.Exporter,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: firstNonEmpty(cfg.Tracing.ServiceName, serviceName),
		Version:     cfg.App.Version,
		Environment: cfg.App.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Warn("Telemetry shutdown error", "error", err)
		}
	}()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.InitMetrics(cfg.Metrics.Namespace, cfg.Metrics.Subsystem)
		m.SetServiceInfo(cfg.App.Version, cfg.App.Environment)
	}

	ds, err := loadDataset(cfg.Dataset.Path)
	if err != nil {
		return fmt.Errorf("load dataset: %w", err)
	}
	log.Info("Dataset loaded", "locations", len(ds.Locations), "routes", len(ds.Routes))

	// История анализов
	repo, err := repository.Open(ctx, &cfg.Database, log)
	if err != nil {
		return fmt.Errorf("open repository: %w", err)
	}
	defer repo.Close()

	adv, closeAdvisor, err := buildAdvisor(cfg, m, log)
	if err != nil {
		return fmt.Errorf("init advisor: %w", err)
	}
	defer closeAdvisor()

	auditLog, err := audit.New(audit.FromConfig(cfg.Audit))
	if err != nil {
		return fmt.Errorf("init audit: %w", err)
	}
	defer auditLog.Close()

	limiter := ratelimit.Limiter(ratelimit.Unlimited{})
	if cfg.RateLimit.Enabled {
		if limiter, err = ratelimit.New(ratelimit.FromConfig(cfg.RateLimit)); err != nil {
			return fmt.Errorf("init rate limiter: %w", err)
		}
	}
	defer limiter.Close()

	// Поток событий и сессия; новый клиент сначала получает состояние
	var sess *session.Session
	hub := stream.NewHub(stream.FromConfig(cfg.Stream),
		stream.WithMetrics(m),
		stream.WithLogger(log),
		stream.WithInitialState(func() any { return sess.State() }),
	)
	defer hub.Close()

	sess, err = session.New(ds, session.Config{AdviceTimeout: cfg.Advisor.Timeout},
		session.WithAdvisor(adv),
		session.WithRepository(repo),
		session.WithPublisher(hub),
		session.WithMetrics(m),
		session.WithLogger(log),
		session.WithSimulatorConfig(simulator.Config{
			TickInterval: cfg.Simulation.TickInterval,
			Quantum:      cfg.Simulation.Quantum,
		}),
	)
	if err != nil {
		return fmt.Errorf("init session: %w", err)
	}
	defer sess.Close()

	if m != nil {
		collector := metrics.NewNetworkCollector(cfg.Metrics.Namespace, cfg.Metrics.Subsystem, func() metrics.NetworkStats {
			return networkStats(sess)
		})
		if err := prometheus.Register(collector); err != nil {
			log.Warn("Network collector is not registered", "error", err)
		}
	}

	format, err := report.ParseFormat(cfg.Report.DefaultFormat)
	if err != nil {
		return err
	}
	transitHandler := handlers.NewTransitHandler(sess,
		handlers.WithReportOptions(report.Options{
			CompanyName:     cfg.Report.CompanyName,
			MaxPathsInTable: cfg.Report.MaxPathsInTable,
			PageNumbers:     cfg.Report.PageNumbers,
		}, format),
		handlers.WithLogger(log),
	)

	mux := http.NewServeMux()
	transitHandler.Register(mux, interceptors.HandlerOptions(&interceptors.ServerConfig{
		ServiceName:   serviceName,
		Logger:        log,
		Metrics:       m,
		EnableTracing: cfg.Tracing.Enabled,
		RateLimiter:   limiter,
		KeyFunc:       interceptors.PeerKey,
		AuditLogger:   auditLog,
		AuditExclude:  excludeSet(cfg.Audit.ExcludeMethods),
	})...)
	mux.Handle(firstNonEmpty(cfg.Stream.Path, "/ws"), hub)

	var ready atomic.Bool

	// Health endpoints (обычный HTTP для k8s probes)
	mux.HandleFunc("/health", handleHealth)
	mux.HandleFunc("/ready", handleReady(&ready))

	if cfg.HTTP.Docs.Enabled {
		docs := swagger.FromConfig(cfg.HTTP.Docs)
		swagger.NewHandler(docs, handlers.OpenAPI(docs.Title, cfg.App.Version)).Register(mux)
	}

	if cfg.Metrics.Enabled {
		mux.Handle(firstNonEmpty(cfg.Metrics.Path, "/metrics"), metrics.Handler())
	}

	var httpHandler http.Handler = mux
	if cfg.HTTP.Compression {
		httpHandler = middleware.Compress(httpHandler)
	}
	if cfg.HTTP.CORS.Enabled {
		httpHandler = middleware.CORS(cfg.HTTP.CORS)(httpHandler)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      h2c.NewHandler(httpHandler, &http2.Server{}),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	errCh := make(chan error, 2)
	go func() {
		log.Info("Transit service listening",
			"port", cfg.HTTP.Port,
			"protocol", "HTTP/1.1 + H2C (ConnectRPC)",
			"stream", cfg.Stream.Path,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	// Служебный gRPC сервер: health и reflection
	if cfg.GRPC.Enabled {
		grpcServer := server.New(cfg, log)
		go func() {
			if err := grpcServer.Run(ctx); err != nil {
				errCh <- fmt.Errorf("grpc server: %w", err)
			}
		}()
	}

	ready.Store(true)

	select {
	case <-ctx.Done():
	case err = <-errCh:
	}
	ready.Store(false)

	log.Info("Shutting down...")

	timeout := cfg.HTTP.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	hub.Close()
	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		log.Error("Server shutdown error", "error", shutdownErr)
	}
	return err
}

// loadDataset читает набор из файла либо берёт встроенный
func loadDataset(path string) (*domain.Dataset, error) {
	if path == "" {
		return domain.DefaultDataset()
	}
	return domain.LoadDatasetFile(path)
}

func networkStats(s *session.Session) metrics.NetworkStats {
	view := s.State()
	network := s.Network()
	return metrics.NetworkStats{
		Version:    view.NetworkVersion,
		Locations:  len(network.Locations()),
		Routes:     len(network.Routes()),
		Generation: view.Generation,
		Pending:    view.Pending,
	}
}

// buildAdvisor собирает советника с кэшем и лимитом запросов
func buildAdvisor(cfg *config.Config, m *metrics.Metrics, log *slog.Logger) (advisor.Advisor, func(), error) {
	base, err := advisor.FromConfig(cfg.Advisor, &http.Client{Timeout: cfg.Advisor.Timeout}, log)
	if err != nil {
		return nil, nil, err
	}
	if base.Name() == advisor.ProviderNone || !cfg.Cache.Enabled {
		return base, func() {}, nil
	}

	c, err := cache.New(cache.FromConfig(&cfg.Cache))
	if err != nil {
		return nil, nil, fmt.Errorf("init cache: %w", err)
	}

	opts := []advisor.CachedOption{advisor.WithMetrics(m), advisor.WithLogger(log)}
	var limiter ratelimit.Limiter
	if cfg.Advisor.MaxPerMinute > 0 {
		limiter = ratelimit.NewMemoryLimiter(ratelimit.PerMinute(cfg.Advisor.MaxPerMinute))
		opts = append(opts, advisor.WithLimiter(limiter))
	}

	closeFn := func() {
		if limiter != nil {
			_ = limiter.Close()
		}
		_ = c.Close()
	}
	return advisor.NewCached(base, c, cfg.Advisor.CacheTTL, opts...), closeFn, nil
}

func excludeSet(methods []string) map[string]bool {
	out := make(map[string]bool, len(methods))
	for _, m := range methods {
		out[m] = true
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(`{"status":"ok"}`)); err != nil {
		// Логировать не можем - response уже начат отправляться
		return
	}
}

func handleReady(ready *atomic.Bool) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if ready.Load() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"ready":true}`))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"ready":false}`))
	}
}
