// Package crisis конечный автомат кризисного режима: защита двух конечных
// пунктов, выбор вида цели, разрушение города или маршрута и пересчёт путей.
package crisis

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"multimodal/pkg/apperror"
	"multimodal/pkg/domain"
	"multimodal/pkg/metrics"
)

// State состояние контроллера
type State string

const (
	StateNormal         State = "Normal"
	StateProtecting     State = "Protecting"
	StateChoosingKind   State = "ChoosingKind"
	StateAwaitingTarget State = "AwaitingTarget"
)

// Kind вид цели разрушения
type Kind string

const (
	KindNone  Kind = ""
	KindCity  Kind = "city"
	KindRoute Kind = "route"
)

// ParseKind разбирает вид цели без учёта регистра
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "city":
		return KindCity, nil
	case "route":
		return KindRoute, nil
	default:
		return KindNone, apperror.Newf(apperror.CodeInvalidKind, "unknown destroy kind %q", s).WithField("kind")
	}
}

// DestroyedItem запись журнала разрушений
type DestroyedItem struct {
	Kind          Kind          `json:"kind"`
	City          string        `json:"city,omitempty"`
	Route         *domain.Route `json:"route,omitempty"`
	RoutesRemoved int           `json:"routesRemoved"`
	At            time.Time     `json:"at"`
}

// Label краткое описание цели
func (d DestroyedItem) Label() string {
	if d.Kind == KindCity {
		return d.City
	}
	if d.Route != nil {
		return fmt.Sprintf("%s -> %s (%s)", d.Route.Origin, d.Route.Destination, d.Route.Mode)
	}
	return ""
}

// Analysis пути между защищёнными пунктами после изменения сети
type Analysis struct {
	Origin         string          `json:"origin"`
	Destination    string          `json:"destination"`
	NetworkVersion uint64          `json:"networkVersion"`
	Paths          []domain.Path   `json:"paths"`
	Destroyed      []DestroyedItem `json:"destroyed"`
}

// Result итог успешного разрушения
type Result struct {
	Item     DestroyedItem
	Message  string
	Removed  []domain.Route
	Analysis *Analysis // nil, если защищено меньше двух пунктов
}

// Snapshot состояние контроллера для отображения
type Snapshot struct {
	State     State           `json:"state"`
	Protected []string        `json:"protected"`
	Kind      Kind            `json:"kind,omitempty"`
	Destroyed []DestroyedItem `json:"destroyed"`
}

// RoutesRemovedFunc вызывается после удаления маршрутов из сети под замком
// контроллера; используется для синхронной отмены анимаций
type RoutesRemovedFunc func([]domain.Route)

// Controller кризисный режим над сетью
type Controller struct {
	mu sync.Mutex

	network   *domain.Network
	state     State
	protected []string
	kind      Kind
	destroyed []DestroyedItem

	onRemoved RoutesRemovedFunc
	metrics   *metrics.Metrics
	log       *slog.Logger
	now       func() time.Time
}

// Option настраивает контроллер
type Option func(*Controller)

// WithRoutesRemoved задаёт обработчик удалённых маршрутов
func WithRoutesRemoved(fn RoutesRemovedFunc) Option {
	return func(c *Controller) { c.onRemoved = fn }
}

// WithMetrics подключает метрики
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithLogger задаёт логгер
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// New создаёт контроллер в состоянии Normal
func New(network *domain.Network, opts ...Option) *Controller {
	c := &Controller{
		network: network,
		state:   StateNormal,
		log:     slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Enter Normal -> Protecting; защищённые пункты и вид цели сбрасываются
func (c *Controller) Enter() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateNormal {
		return stateError("crisis mode is already active", c.state)
	}
	c.state = StateProtecting
	c.protected = nil
	c.kind = KindNone
	return nil
}

// SelectProtected добавляет защищённый пункт. Неизвестный или повторный
// пункт и третий выбор - no-op.
func (c *Controller) SelectProtected(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateProtecting:
	case StateChoosingKind, StateAwaitingTarget:
		return apperror.NewWarning(apperror.CodeEndpointLimit, "two endpoints are already protected").
			WithField("id")
	default:
		return stateError("enter crisis mode first", c.state)
	}

	if !c.network.HasLocation(id) {
		return apperror.Newf(apperror.CodeUnknownLocation, "location %q not found", id).WithField("id")
	}
	for _, p := range c.protected {
		if p == id {
			return apperror.NewWarning(apperror.CodeInvalidArgument, fmt.Sprintf("%s is already protected", id)).
				WithField("id")
		}
	}

	c.protected = append(c.protected, id)
	if len(c.protected) == domain.MaxProtectedEndpoints {
		c.state = StateChoosingKind
	}
	return nil
}

// ChooseKind выбирает вид цели; допускается и смена уже выбранного вида
func (c *Controller) ChooseKind(kind Kind) error {
	if kind != KindCity && kind != KindRoute {
		return apperror.Newf(apperror.CodeInvalidKind, "unknown destroy kind %q", kind).WithField("kind")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateChoosingKind, StateAwaitingTarget:
		c.kind = kind
		c.state = StateAwaitingTarget
		return nil
	case StateProtecting:
		return stateError("protect two endpoints before choosing what to destroy", c.state)
	default:
		return stateError("enter crisis mode first", c.state)
	}
}

// DestroyCity разрушает город вместе со всеми его маршрутами
func (c *Controller) DestroyCity(id string) (*Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.expectTarget(KindCity); err != nil {
		return nil, err
	}
	if c.isProtected(id) {
		return nil, apperror.Newf(apperror.CodeProtectedLocation, "%s is protected and cannot be destroyed", id).
			WithField("id")
	}

	removed, ok := c.network.RemoveLocation(id)
	if !ok {
		return nil, apperror.Newf(apperror.CodeUnknownLocation, "location %q not found", id).WithField("id")
	}

	item := DestroyedItem{Kind: KindCity, City: id, RoutesRemoved: len(removed), At: c.now()}
	msg := fmt.Sprintf("Simulation of transport involving the city of %s is destroyed.", id)
	return c.finishLocked(item, removed, msg), nil
}

// DestroyRoute разрушает первый маршрут с совпадающей тройкой
func (c *Controller) DestroyRoute(origin, destination string, mode domain.Mode) (*Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.expectTarget(KindRoute); err != nil {
		return nil, err
	}

	route, ok := c.network.RemoveRoute(origin, destination, mode)
	if !ok {
		return nil, apperror.Newf(apperror.CodeUnknownRoute, "route %s -> %s (%s) not found", origin, destination, mode).
			WithField("route")
	}

	item := DestroyedItem{Kind: KindRoute, Route: &route, RoutesRemoved: 1, At: c.now()}
	msg := fmt.Sprintf("Simulation of the %s transport between %s and %s is destroyed.", route.Mode, route.Origin, route.Destination)
	return c.finishLocked(item, []domain.Route{route}, msg), nil
}

func (c *Controller) finishLocked(item DestroyedItem, removed []domain.Route, msg string) *Result {
	c.destroyed = append(c.destroyed, item)

	if c.onRemoved != nil && len(removed) > 0 {
		c.onRemoved(removed)
	}

	c.state = StateNormal
	c.kind = KindNone

	c.metrics.RecordDestroy(string(item.Kind), len(removed))
	c.log.Info("crisis target destroyed", "kind", item.Kind, "target", item.Label(), "routes_removed", len(removed))

	res := &Result{Item: item, Message: msg, Removed: removed}
	if len(c.protected) == domain.MaxProtectedEndpoints {
		res.Analysis = c.analyzeLocked()
	}
	return res
}

func (c *Controller) analyzeLocked() *Analysis {
	start := time.Now()
	snap := c.network.Snapshot()
	paths := domain.FindAllSimplePaths(snap, c.protected[0], c.protected[1])
	c.metrics.RecordEnumeration(len(paths), time.Since(start))

	return &Analysis{
		Origin:         c.protected[0],
		Destination:    c.protected[1],
		NetworkVersion: snap.Version,
		Paths:          paths,
		Destroyed:      c.destroyedCopyLocked(),
	}
}

// Analyze пересчитывает пути между защищёнными пунктами на текущей сети.
// Без двух защищённых пунктов возвращает nil.
func (c *Controller) Analyze() *Analysis {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.protected) != domain.MaxProtectedEndpoints {
		return nil
	}
	return c.analyzeLocked()
}

// Cancel возвращает в Normal без изменения сети. Сбрасываются только выбор
// защищённой пары и вида разрушения. Журнал разрушений живёт до RestoreAll
// и совпадает с тем, чего нет в сети.
func (c *Controller) Cancel() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateNormal {
		return apperror.NewWarning(apperror.CodeInvalidState, "crisis mode is not active")
	}
	c.state = StateNormal
	c.protected = nil
	c.kind = KindNone
	return nil
}

// RestoreAll восстанавливает сеть из набора данных и очищает сессию
func (c *Controller) RestoreAll(ds *domain.Dataset) error {
	if ds == nil {
		return apperror.ErrNilNetwork
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.network.Reset(ds.Locations, ds.Routes); err != nil {
		return err
	}
	c.state = StateNormal
	c.protected = nil
	c.kind = KindNone
	c.destroyed = nil
	c.metrics.RecordDestroy("restore", 0)
	return nil
}

// Active кризисный режим включён
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state != StateNormal
}

// State текущее состояние
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot копия состояния
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	protected := make([]string, len(c.protected))
	copy(protected, c.protected)
	return Snapshot{
		State:     c.state,
		Protected: protected,
		Kind:      c.kind,
		Destroyed: c.destroyedCopyLocked(),
	}
}

func (c *Controller) destroyedCopyLocked() []DestroyedItem {
	out := make([]DestroyedItem, len(c.destroyed))
	copy(out, c.destroyed)
	return out
}

func (c *Controller) isProtected(id string) bool {
	for _, p := range c.protected {
		if p == id {
			return true
		}
	}
	return false
}

func (c *Controller) expectTarget(kind Kind) error {
	if c.state != StateAwaitingTarget {
		return stateError("choose what to destroy first", c.state)
	}
	if c.kind != kind {
		return apperror.Newf(apperror.CodeInvalidState, "awaiting a %s target", c.kind).
			WithDetails("state", string(c.state))
	}
	return nil
}

func stateError(msg string, st State) *apperror.Error {
	return apperror.New(apperror.CodeInvalidState, msg).WithDetails("state", string(st))
}
