// Package simulator анимирует движение по маршрутам сети.
//
// Каждый выполняющийся маршрут ведёт собственная горутина с тикером;
// горутины не координируются между собой. Тик добавляет к elapsed
// фиксированный квант модельного времени, независимо от реальной длины тика.
// Стоимость маршрута используется как расстояние:
//
//	progress = min(elapsed / (cost / speed(mode)), 1)
package simulator

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"multimodal/pkg/apperror"
	"multimodal/pkg/domain"
	"multimodal/pkg/metrics"
)

// State состояние прогона маршрута
type State string

const (
	StateIdle      State = "Idle"
	StateRunning   State = "Running"
	StatePaused    State = "Paused"
	StateCompleted State = "Completed"
)

// Update снимок прогона маршрута; рассылается наблюдателям после каждого тика
type Update struct {
	RouteID  domain.RouteID `json:"routeId"`
	Mode     domain.Mode    `json:"mode"`
	Elapsed  float64        `json:"elapsed"`
	Progress float64        `json:"progress"`
	X        float64        `json:"x"`
	Y        float64        `json:"y"`
	State    State          `json:"state"`
}

// Observer получает обновления. Вызывается из горутины маршрута и не должен
// вызывать команды симулятора.
type Observer func(Update)

// Config параметры симулятора
type Config struct {
	// TickInterval реальная длина тика; <= 0 включает ручной режим (Step)
	TickInterval time.Duration
	// Quantum приращение elapsed за тик
	Quantum float64
}

// DefaultConfig 100ms и квант 0.1
func DefaultConfig() Config {
	return Config{
		TickInterval: 100 * time.Millisecond,
		Quantum:      domain.DefaultTickQuantum,
	}
}

type run struct {
	route    domain.Route
	from, to domain.Location
	ticks    int
	elapsed  float64
	progress float64
	state    State
}

func (r *run) update() Update {
	return Update{
		RouteID:  r.route.ID,
		Mode:     r.route.Mode,
		Elapsed:  r.elapsed,
		Progress: r.progress,
		X:        domain.Lerp(r.from.X, r.to.X, r.progress),
		Y:        domain.Lerp(r.from.Y, r.to.Y, r.progress),
		State:    r.state,
	}
}

type task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Simulator владеет прогонами маршрутов и их задачами
type Simulator struct {
	cfg     Config
	speeds  *domain.SpeedTable
	metrics *metrics.Metrics
	log     *slog.Logger

	// cmdMu упорядочивает команды; mu охраняет состояние.
	// Ожидание задач выполняется под cmdMu, но без mu.
	cmdMu sync.Mutex
	mu    sync.Mutex

	order     []domain.RouteID
	runs      map[domain.RouteID]*run
	tasks     map[domain.RouteID]*task
	observers map[int]Observer
	nextObs   int
}

// Option настраивает симулятор
type Option func(*Simulator)

// WithMetrics подключает метрики
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Simulator) { s.metrics = m }
}

// WithLogger задаёт логгер
func WithLogger(l *slog.Logger) Option {
	return func(s *Simulator) { s.log = l }
}

// WithSpeedTable задаёт общую таблицу скоростей
func WithSpeedTable(t *domain.SpeedTable) Option {
	return func(s *Simulator) { s.speeds = t }
}

// New создаёт симулятор
func New(cfg Config, opts ...Option) *Simulator {
	if cfg.Quantum <= 0 {
		cfg.Quantum = domain.DefaultTickQuantum
	}
	s := &Simulator{
		cfg:       cfg,
		log:       slog.Default(),
		runs:      make(map[domain.RouteID]*run),
		tasks:     make(map[domain.RouteID]*task),
		observers: make(map[int]Observer),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.speeds == nil {
		s.speeds = domain.NewSpeedTable()
	}
	return s
}

// Subscribe регистрирует наблюдателя; возвращает функцию отписки
func (s *Simulator) Subscribe(fn Observer) func() {
	s.mu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

// Speeds таблица текущих скоростей
func (s *Simulator) Speeds() *domain.SpeedTable {
	return s.speeds
}

// SetSpeed меняет скорость вида транспорта; влияет на следующие тики
func (s *Simulator) SetSpeed(mode domain.Mode, value float64) error {
	return s.speeds.Set(mode, value)
}

// Start запускает все маршруты заново. Отклоняется, пока что-то выполняется.
// Маршруты с неизвестными конечными пунктами пропускаются.
func (s *Simulator) Start(routes []domain.Route, locations []domain.Location) error {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	index := make(map[string]domain.Location, len(locations))
	for _, loc := range locations {
		index[loc.ID] = loc
	}

	s.mu.Lock()
	if s.runningLocked() > 0 {
		s.mu.Unlock()
		return apperror.ErrSimulationRunning
	}

	stale := s.tasks
	s.tasks = make(map[domain.RouteID]*task)
	s.runs = make(map[domain.RouteID]*run, len(routes))
	s.order = s.order[:0]

	for _, r := range routes {
		from, okFrom := index[r.Origin]
		to, okTo := index[r.Destination]
		if !okFrom || !okTo {
			continue
		}
		s.runs[r.ID] = &run{route: r, from: from, to: to, state: StateRunning}
		s.order = append(s.order, r.ID)
	}
	started := len(s.order)
	s.mu.Unlock()

	stopTasks(stale)

	if s.cfg.TickInterval > 0 {
		s.mu.Lock()
		for _, id := range s.order {
			ctx, cancel := context.WithCancel(context.Background())
			t := &task{cancel: cancel, done: make(chan struct{})}
			s.tasks[id] = t
			go s.loop(ctx, id, t)
		}
		s.mu.Unlock()
	}

	s.metrics.SetActiveRuns(started)
	s.log.Debug("simulation started", "routes", started, "tick", s.cfg.TickInterval)
	return nil
}

// Stop переводит выполняющиеся маршруты в Paused и синхронно отменяет задачи.
// Возвращает число остановленных маршрутов.
func (s *Simulator) Stop() int {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	s.mu.Lock()
	paused := 0
	for _, r := range s.runs {
		if r.state == StateRunning {
			r.state = StatePaused
			paused++
		}
	}
	stale := s.tasks
	s.tasks = make(map[domain.RouteID]*task)
	s.mu.Unlock()

	stopTasks(stale)
	s.metrics.SetActiveRuns(0)
	return paused
}

// Restart отменяет все задачи и очищает прогоны: всё в Idle
func (s *Simulator) Restart() {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	s.mu.Lock()
	stale := s.tasks
	s.tasks = make(map[domain.RouteID]*task)
	s.runs = make(map[domain.RouteID]*run)
	s.order = nil
	s.mu.Unlock()

	stopTasks(stale)
	s.metrics.SetActiveRuns(0)
}

// Remove синхронно отменяет задачи маршрутов и удаляет их прогоны.
// Идемпотентна; после возврата обновлений по этим маршрутам не будет.
func (s *Simulator) Remove(ids ...domain.RouteID) int {
	if len(ids) == 0 {
		return 0
	}

	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	s.mu.Lock()
	stale := make(map[domain.RouteID]*task, len(ids))
	removed := 0
	for _, id := range ids {
		if t, ok := s.tasks[id]; ok {
			stale[id] = t
			delete(s.tasks, id)
		}
		if _, ok := s.runs[id]; ok {
			delete(s.runs, id)
			removed++
		}
	}
	if removed > 0 {
		order := s.order[:0:0]
		for _, id := range s.order {
			if _, ok := s.runs[id]; ok {
				order = append(order, id)
			}
		}
		s.order = order
	}
	active := s.runningLocked()
	s.mu.Unlock()

	stopTasks(stale)
	s.metrics.SetActiveRuns(active)
	return removed
}

// Step применяет один тик ко всем выполняющимся маршрутам синхронно.
// Основной драйвер ручного режима. Возвращает число применённых тиков.
func (s *Simulator) Step() int {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	s.mu.Lock()
	ids := make([]domain.RouteID, len(s.order))
	copy(ids, s.order)
	s.mu.Unlock()

	applied := 0
	for _, id := range ids {
		if _, ok := s.tick(id); ok {
			applied++
		}
	}
	return applied
}

// Running проверяет, выполняется ли хотя бы один маршрут
func (s *Simulator) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runningLocked() > 0
}

func (s *Simulator) runningLocked() int {
	n := 0
	for _, r := range s.runs {
		if r.state == StateRunning {
			n++
		}
	}
	return n
}

// Runs снимки всех прогонов в порядке запуска
func (s *Simulator) Runs() []Update {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Update, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.runs[id].update())
	}
	return out
}

// Run снимок прогона маршрута; отсутствующий прогон означает Idle
func (s *Simulator) Run(id domain.RouteID) (Update, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok {
		return Update{RouteID: id, State: StateIdle}, false
	}
	return r.update(), true
}

// ActiveTasks число живых задач (для проверки отсутствия висящих таймеров)
func (s *Simulator) ActiveTasks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.tasks {
		select {
		case <-t.done:
		default:
			n++
		}
	}
	return n
}

// Close останавливает все задачи
func (s *Simulator) Close() {
	s.Restart()
}

func (s *Simulator) loop(ctx context.Context, id domain.RouteID, t *task) {
	defer close(t.done)

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// тик, уже вынутый из канала, перепроверяет состояние внутри tick
			if more, _ := s.tick(id); !more {
				return
			}
		}
	}
}

// tick продвигает один маршрут. more=false: маршрут больше не выполняется;
// applied=false: тик ничего не изменил.
func (s *Simulator) tick(id domain.RouteID) (more, applied bool) {
	s.mu.Lock()
	r, ok := s.runs[id]
	if !ok || r.state != StateRunning {
		s.mu.Unlock()
		return false, false
	}

	r.ticks++
	r.elapsed = float64(r.ticks) * s.cfg.Quantum
	r.progress = math.Max(r.progress, progressOf(r.elapsed, r.route.Cost, s.speeds.Get(r.route.Mode)))
	if r.progress >= 1 {
		r.progress = 1
		r.state = StateCompleted
	}

	u := r.update()
	observers := make([]Observer, 0, len(s.observers))
	for _, fn := range s.observers {
		observers = append(observers, fn)
	}
	s.mu.Unlock()

	s.metrics.RecordTick(string(u.Mode))
	if u.State == StateCompleted {
		s.metrics.RecordCompletion(string(u.Mode))
	}

	for _, fn := range observers {
		fn(u)
	}
	return u.State == StateRunning, true
}

// progressOf доля пройденного пути; нулевая стоимость завершает сразу
func progressOf(elapsed, cost, speed float64) float64 {
	if cost <= 0 {
		return 1
	}
	if speed <= 0 {
		return 0
	}
	return domain.Clamp01(elapsed / (cost / speed))
}

func stopTasks(tasks map[domain.RouteID]*task) {
	for _, t := range tasks {
		t.cancel()
	}
	for _, t := range tasks {
		<-t.done
	}
}
