// Package session связывает сеть, симулятор, кризисный контроллер и
// советника в одну операторскую сессию. Команды сериализуются; результат
// советника применяется только для актуального поколения анализа.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"multimodal/pkg/apperror"
	"multimodal/pkg/domain"
	"multimodal/pkg/metrics"
	"multimodal/services/transit-svc/internal/advisor"
	"multimodal/services/transit-svc/internal/crisis"
	"multimodal/services/transit-svc/internal/repository"
	"multimodal/services/transit-svc/internal/simulator"
)

// Типы событий потока
const (
	EventSnapshot = "snapshot"
	EventProgress = "progress"
	EventCrisis   = "crisis"
	EventMessage  = "message"
	EventAdvice   = "advice"
)

// Publisher получатель событий сессии. Publish не должен блокироваться.
type Publisher interface {
	Publish(kind string, data any)
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, any) {}

// Result итог команды. Applied=false означает no-op с пояснением в Message.
type Result struct {
	Applied bool   `json:"applied"`
	Message string `json:"message,omitempty"`
}

// Target цель разрушения: город либо маршрут
type Target struct {
	City        string `json:"city,omitempty"`
	Origin      string `json:"origin,omitempty"`
	Destination string `json:"destination,omitempty"`
	Mode        string `json:"mode,omitempty"`
}

// MessageEvent сообщение оператору
type MessageEvent struct {
	Kind string `json:"kind"` // destroy, advisory
	Text string `json:"text"`
}

// AdviceEvent результат анализа
type AdviceEvent struct {
	AnalysisID string          `json:"analysisId,omitempty"`
	Generation uint64          `json:"generation"`
	Advice     *advisor.Advice `json:"advice,omitempty"`
	Message    string          `json:"message,omitempty"`
}

// Config параметры сессии
type Config struct {
	AdviceTimeout time.Duration
}

// Session операторская сессия над одной сетью
type Session struct {
	id      string
	dataset *domain.Dataset
	network *domain.Network
	sim     *simulator.Simulator
	crisis  *crisis.Controller
	advisor advisor.Advisor
	repo    repository.Repository
	pub     Publisher
	metrics *metrics.Metrics
	log     *slog.Logger
	cfg     Config
	simCfg  *simulator.Config

	// cmdMu сериализует команды; наблюдатели симулятора его не берут
	cmdMu sync.Mutex

	mu             sync.Mutex
	generation     uint64
	cancelAdvice   context.CancelFunc
	pending        bool
	advice         *advisor.Advice
	adviceMessage  string
	destroyMessage string
	analysisID     string

	baseCtx    context.Context
	cancelBase context.CancelFunc
	wg         sync.WaitGroup
	unsub      func()
}

// Option настраивает сессию
type Option func(*Session)

// WithAdvisor задаёт советника
func WithAdvisor(a advisor.Advisor) Option {
	return func(s *Session) { s.advisor = a }
}

// WithRepository задаёт хранилище истории
func WithRepository(r repository.Repository) Option {
	return func(s *Session) { s.repo = r }
}

// WithPublisher задаёт получателя событий
func WithPublisher(p Publisher) Option {
	return func(s *Session) { s.pub = p }
}

// WithMetrics подключает метрики
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithLogger задаёт логгер
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.log = l }
}

// WithSimulatorConfig задаёт параметры симулятора
func WithSimulatorConfig(cfg simulator.Config) Option {
	return func(s *Session) { s.simCfg = &cfg }
}

// New собирает сессию на копии набора данных
func New(ds *domain.Dataset, cfg Config, opts ...Option) (*Session, error) {
	if ds == nil {
		return nil, apperror.ErrNilNetwork
	}
	network, err := domain.NewNetworkFromDataset(ds)
	if err != nil {
		return nil, err
	}
	if cfg.AdviceTimeout <= 0 {
		cfg.AdviceTimeout = 30 * time.Second
	}

	s := &Session{
		id:      uuid.NewString(),
		dataset: ds.Clone(),
		network: network,
		advisor: advisor.NewHeuristic(),
		repo:    repository.NewMemoryRepository(),
		pub:     nopPublisher{},
		log:     slog.Default(),
		cfg:     cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("session_id", s.id)

	simCfg := simulator.DefaultConfig()
	if s.simCfg != nil {
		simCfg = *s.simCfg
	}
	s.sim = simulator.New(simCfg, simulator.WithMetrics(s.metrics), simulator.WithLogger(s.log))
	s.unsub = s.sim.Subscribe(func(u simulator.Update) {
		s.pub.Publish(EventProgress, u)
	})

	s.crisis = crisis.New(network,
		crisis.WithMetrics(s.metrics),
		crisis.WithLogger(s.log),
		crisis.WithRoutesRemoved(s.cancelRuns),
	)

	s.baseCtx, s.cancelBase = context.WithCancel(context.Background())
	return s, nil
}

// ID идентификатор сессии
func (s *Session) ID() string { return s.id }

// Network сеть сессии
func (s *Session) Network() *domain.Network { return s.network }

// Simulator симулятор сессии
func (s *Session) Simulator() *simulator.Simulator { return s.sim }

// Repository хранилище истории
func (s *Session) Repository() repository.Repository { return s.repo }

func (s *Session) cancelRuns(removed []domain.Route) {
	ids := make([]domain.RouteID, len(removed))
	for i, r := range removed {
		ids[i] = r.ID
	}
	s.sim.Remove(ids...)
}

// absorb переводит ошибку команды в результат: ошибки ввода и
// предупреждения становятся no-op, остальные возвращаются как есть
func (s *Session) absorb(command string, err error) (Result, error) {
	s.metrics.RecordCommand(command, err)
	if err == nil {
		return Result{Applied: true}, nil
	}

	var appErr *apperror.Error
	if errors.As(err, &appErr) && (appErr.Class() == apperror.ClassValidation || apperror.IsWarning(err)) {
		s.log.Debug("command ignored", "command", command, "reason", appErr.Message)
		return Result{Applied: false, Message: appErr.Message}, nil
	}
	s.log.Info("command rejected", "command", command, "error", err)
	return Result{}, err
}

// SimulateAll запускает движение по всем маршрутам
func (s *Session) SimulateAll() (Result, error) {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	if s.crisis.Active() {
		return s.absorb("SimulateAll", apperror.ErrCrisisActive)
	}
	snap := s.network.Snapshot()
	return s.absorb("SimulateAll", s.sim.Start(snap.Routes, snap.Locations))
}

// Stop приостанавливает движение
func (s *Session) Stop() (Result, error) {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	if s.crisis.Active() {
		return s.absorb("Stop", apperror.ErrCrisisActive)
	}
	if !s.sim.Running() {
		return s.absorb("Stop", apperror.New(apperror.CodeInvalidState, "no route is running"))
	}
	s.sim.Stop()
	return s.absorb("Stop", nil)
}

// Restart сбрасывает все прогоны в Idle
func (s *Session) Restart() (Result, error) {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	if s.crisis.Active() {
		return s.absorb("Restart", apperror.ErrCrisisActive)
	}
	s.sim.Restart()
	return s.absorb("Restart", nil)
}

// SetSpeed меняет скорость вида транспорта
func (s *Session) SetSpeed(mode string, value float64) (Result, error) {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	m, err := domain.ParseMode(mode)
	if err != nil {
		return s.absorb("SetSpeed", err)
	}
	return s.absorb("SetSpeed", s.sim.SetSpeed(m, value))
}

// EnterCrisisMode включает кризисный режим
func (s *Session) EnterCrisisMode() (Result, error) {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	if s.sim.Running() {
		return s.absorb("EnterCrisisMode", apperror.ErrSimulationRunning)
	}
	res, err := s.absorb("EnterCrisisMode", s.crisis.Enter())
	s.publishCrisis(res)
	return res, err
}

// SelectProtectedEndpoint защищает пункт
func (s *Session) SelectProtectedEndpoint(id string) (Result, error) {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	res, err := s.absorb("SelectProtectedEndpoint", s.crisis.SelectProtected(id))
	s.publishCrisis(res)
	return res, err
}

// ChooseDestroyKind выбирает вид цели
func (s *Session) ChooseDestroyKind(kind string) (Result, error) {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	k, err := crisis.ParseKind(kind)
	if err != nil {
		return s.absorb("ChooseDestroyKind", err)
	}
	res, err := s.absorb("ChooseDestroyKind", s.crisis.ChooseKind(k))
	s.publishCrisis(res)
	return res, err
}

// SelectDestroyTarget разрушает цель и запускает анализ путей между
// защищёнными пунктами
func (s *Session) SelectDestroyTarget(t Target) (Result, error) {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	var (
		out *crisis.Result
		err error
	)
	if t.City != "" {
		out, err = s.crisis.DestroyCity(t.City)
	} else {
		var mode domain.Mode
		if mode, err = domain.ParseMode(t.Mode); err == nil {
			out, err = s.crisis.DestroyRoute(t.Origin, t.Destination, mode)
		}
	}

	res, err := s.absorb("SelectDestroyTarget", err)
	if err != nil || !res.Applied {
		return res, err
	}

	res.Message = out.Message
	s.mu.Lock()
	s.destroyMessage = out.Message
	s.mu.Unlock()

	s.pub.Publish(EventMessage, MessageEvent{Kind: "destroy", Text: out.Message})
	s.pub.Publish(EventSnapshot, s.network.Snapshot())
	s.publishCrisis(res)

	if out.Analysis != nil {
		s.startAnalysis(out.Analysis)
	}
	return res, nil
}

// CancelCrisis выходит из кризисного режима без изменения сети
func (s *Session) CancelCrisis() (Result, error) {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	res, err := s.absorb("CancelCrisis", s.crisis.Cancel())
	s.publishCrisis(res)
	return res, err
}

// RestoreAll восстанавливает исходную сеть и сбрасывает состояние сессии.
// Незавершённый анализ отменяется.
func (s *Session) RestoreAll() (Result, error) {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	if s.sim.Running() {
		return s.absorb("RestoreAll", apperror.ErrSimulationRunning)
	}
	if s.crisis.Active() {
		return s.absorb("RestoreAll", apperror.ErrCrisisActive)
	}
	if err := s.crisis.RestoreAll(s.dataset.Clone()); err != nil {
		return s.absorb("RestoreAll", err)
	}
	s.sim.Restart()

	s.mu.Lock()
	s.generation++
	if s.cancelAdvice != nil {
		s.cancelAdvice()
		s.cancelAdvice = nil
	}
	s.pending = false
	s.advice = nil
	s.adviceMessage = ""
	s.destroyMessage = ""
	s.analysisID = ""
	s.mu.Unlock()

	s.pub.Publish(EventSnapshot, s.network.Snapshot())
	s.publishCrisis(Result{Applied: true})
	return s.absorb("RestoreAll", nil)
}

func (s *Session) publishCrisis(res Result) {
	if res.Applied {
		s.pub.Publish(EventCrisis, s.crisis.Snapshot())
	}
}

// FindPaths перебирает простые пути на текущей сети
func (s *Session) FindPaths(origin, destination string) ([]domain.Path, error) {
	snap := s.network.Snapshot()
	if !snap.HasLocation(origin) {
		return nil, apperror.Newf(apperror.CodeUnknownLocation, "location %q not found", origin).WithField("origin")
	}
	if !snap.HasLocation(destination) {
		return nil, apperror.Newf(apperror.CodeUnknownLocation, "location %q not found", destination).WithField("destination")
	}
	start := time.Now()
	paths := domain.FindAllSimplePaths(snap, origin, destination)
	s.metrics.RecordEnumeration(len(paths), time.Since(start))
	return paths, nil
}

// Snapshot снимок сети
func (s *Session) Snapshot() *domain.Snapshot {
	return s.network.Snapshot()
}

// Step ручной тик симулятора
func (s *Session) Step() int {
	return s.sim.Step()
}

// Wait дожидается завершения запущенных анализов
func (s *Session) Wait() {
	s.wg.Wait()
}

// Close отменяет анализы и останавливает симулятор
func (s *Session) Close() error {
	s.cancelBase()
	s.wg.Wait()
	if s.unsub != nil {
		s.unsub()
	}
	s.sim.Close()
	return nil
}

func (s *Session) String() string {
	return fmt.Sprintf("session(%s)", s.id)
}
