package domain

import (
	"fmt"
	"math"
	"sync"

	"multimodal/pkg/apperror"
)

// Location пункт сети. Координаты только для отображения.
type Location struct {
	ID string  `json:"id" yaml:"id"`
	X  float64 `json:"x" yaml:"x"`
	Y  float64 `json:"y" yaml:"y"`
}

// RouteID идентичность маршрута: origin>destination/mode#n,
// где n различает дубликаты одной тройки в порядке добавления
type RouteID string

// NewRouteID формирует идентификатор маршрута
func NewRouteID(origin, destination string, mode Mode, seq int) RouteID {
	return RouteID(fmt.Sprintf("%s>%s/%s#%d", origin, destination, mode, seq))
}

// Route направленный маршрут между двумя пунктами
type Route struct {
	ID          RouteID `json:"id,omitempty" yaml:"-"`
	Origin      string  `json:"origin" yaml:"origin"`
	Destination string  `json:"destination" yaml:"destination"`
	Mode        Mode    `json:"mode" yaml:"mode"`
	Cost        float64 `json:"cost" yaml:"cost"`
	Time        float64 `json:"time" yaml:"time"`
	Environment float64 `json:"environment" yaml:"environment"`
}

// Touches проверяет, начинается или заканчивается ли маршрут в пункте id
func (r Route) Touches(id string) bool {
	return r.Origin == id || r.Destination == id
}

// Matches проверяет совпадение тройки (origin, destination, mode)
func (r Route) Matches(origin, destination string, mode Mode) bool {
	return r.Origin == origin && r.Destination == destination && r.Mode == mode
}

// RouteSource источник маршрутов для перебора путей
type RouteSource interface {
	HasLocation(id string) bool
	Outgoing(id string) []Route
}

// Network единственный изменяемый агрегат: пункты и маршруты.
// Изменение только удалением либо полным Reset.
type Network struct {
	mu sync.RWMutex

	order     []string
	locations map[string]Location
	routes    []Route
	version   uint64
}

// NewNetwork создаёт сеть из исходного набора данных
func NewNetwork(locations []Location, routes []Route) (*Network, error) {
	n := &Network{}
	if err := n.Reset(locations, routes); err != nil {
		return nil, err
	}
	return n, nil
}

// NewNetworkFromDataset создаёт сеть из Dataset
func NewNetworkFromDataset(ds *Dataset) (*Network, error) {
	if ds == nil {
		return nil, apperror.ErrNilNetwork
	}
	return NewNetwork(ds.Locations, ds.Routes)
}

// Reset атомарно заменяет состояние сети.
// При ошибке валидации прежнее состояние не меняется.
func (n *Network) Reset(locations []Location, routes []Route) error {
	order, index, normalized, err := buildState(locations, routes)
	if err != nil {
		return err
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.order = order
	n.locations = index
	n.routes = normalized
	n.version++
	return nil
}

// RemoveLocation удаляет пункт и каскадно все маршруты, которые его касаются.
// Неизвестный id: no-op. Возвращает удалённые маршруты.
func (n *Network) RemoveLocation(id string) ([]Route, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.locations[id]; !ok {
		return nil, false
	}

	delete(n.locations, id)
	order := n.order[:0:0]
	for _, lid := range n.order {
		if lid != id {
			order = append(order, lid)
		}
	}
	n.order = order

	var removed []Route
	kept := make([]Route, 0, len(n.routes))
	for _, r := range n.routes {
		if r.Touches(id) {
			removed = append(removed, r)
			continue
		}
		kept = append(kept, r)
	}
	n.routes = kept
	n.version++
	return removed, true
}

// RemoveRoute удаляет первый маршрут с совпадающей тройкой; иначе no-op
func (n *Network) RemoveRoute(origin, destination string, mode Mode) (Route, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for i, r := range n.routes {
		if !r.Matches(origin, destination, mode) {
			continue
		}
		routes := make([]Route, 0, len(n.routes)-1)
		routes = append(routes, n.routes[:i]...)
		routes = append(routes, n.routes[i+1:]...)
		n.routes = routes
		n.version++
		return r, true
	}
	return Route{}, false
}

// FindRoute ищет первый маршрут с совпадающей тройкой
func (n *Network) FindRoute(origin, destination string, mode Mode) (Route, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, r := range n.routes {
		if r.Matches(origin, destination, mode) {
			return r, true
		}
	}
	return Route{}, false
}

// Location возвращает пункт по id
func (n *Network) Location(id string) (Location, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	loc, ok := n.locations[id]
	return loc, ok
}

// HasLocation проверяет наличие пункта
func (n *Network) HasLocation(id string) bool {
	_, ok := n.Location(id)
	return ok
}

// Outgoing возвращает исходящие маршруты пункта в порядке добавления
func (n *Network) Outgoing(id string) []Route {
	n.mu.RLock()
	defer n.mu.RUnlock()
	var out []Route
	for _, r := range n.routes {
		if r.Origin == id {
			out = append(out, r)
		}
	}
	return out
}

// Routes возвращает копию списка маршрутов
func (n *Network) Routes() []Route {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]Route, len(n.routes))
	copy(out, n.routes)
	return out
}

// Locations возвращает копию списка пунктов в порядке добавления
func (n *Network) Locations() []Location {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]Location, 0, len(n.order))
	for _, id := range n.order {
		out = append(out, n.locations[id])
	}
	return out
}

// Version номер ревизии; растёт при каждом изменении
func (n *Network) Version() uint64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.version
}

// Snapshot возвращает согласованный неизменяемый снимок сети
func (n *Network) Snapshot() *Snapshot {
	n.mu.RLock()
	defer n.mu.RUnlock()

	locations := make([]Location, 0, len(n.order))
	for _, id := range n.order {
		locations = append(locations, n.locations[id])
	}
	routes := make([]Route, len(n.routes))
	copy(routes, n.routes)

	return NewSnapshot(n.version, locations, routes)
}

// FindAllSimplePaths перебирает пути на снимке сети, взятом под одной блокировкой
func (n *Network) FindAllSimplePaths(origin, destination string) []Path {
	return FindAllSimplePaths(n.Snapshot(), origin, destination)
}

// Snapshot неизменяемая копия сети для отображения и перебора путей
type Snapshot struct {
	Version   uint64     `json:"version"`
	Locations []Location `json:"locations"`
	Routes    []Route    `json:"routes"`

	index    map[string]Location
	outgoing map[string][]Route
}

// NewSnapshot строит снимок и индексы смежности
func NewSnapshot(version uint64, locations []Location, routes []Route) *Snapshot {
	s := &Snapshot{
		Version:   version,
		Locations: locations,
		Routes:    routes,
		index:     make(map[string]Location, len(locations)),
		outgoing:  make(map[string][]Route, len(locations)),
	}
	for _, loc := range locations {
		s.index[loc.ID] = loc
	}
	for _, r := range routes {
		s.outgoing[r.Origin] = append(s.outgoing[r.Origin], r)
	}
	return s
}

// HasLocation проверяет наличие пункта в снимке
func (s *Snapshot) HasLocation(id string) bool {
	_, ok := s.index[id]
	return ok
}

// Location возвращает пункт снимка
func (s *Snapshot) Location(id string) (Location, bool) {
	loc, ok := s.index[id]
	return loc, ok
}

// Outgoing исходящие маршруты пункта
func (s *Snapshot) Outgoing(id string) []Route {
	return s.outgoing[id]
}

// buildState проверяет ссылочную целостность и диапазоны значений,
// нормализует виды транспорта и назначает идентификаторы маршрутов
func buildState(locations []Location, routes []Route) ([]string, map[string]Location, []Route, error) {
	verrs := apperror.NewValidationErrors()

	order := make([]string, 0, len(locations))
	index := make(map[string]Location, len(locations))
	for i, loc := range locations {
		field := fmt.Sprintf("locations[%d]", i)
		if loc.ID == "" {
			verrs.AddErrorWithField(apperror.CodeInvalidNetwork, "location id is empty", field)
			continue
		}
		if _, dup := index[loc.ID]; dup {
			verrs.AddErrorWithField(apperror.CodeDuplicateLocation,
				fmt.Sprintf("duplicate location %q", loc.ID), field)
			continue
		}
		index[loc.ID] = loc
		order = append(order, loc.ID)
	}

	seq := make(map[string]int)
	normalized := make([]Route, 0, len(routes))
	for i, r := range routes {
		field := fmt.Sprintf("routes[%d]", i)

		mode, err := ParseMode(string(r.Mode))
		if err != nil {
			verrs.AddErrorWithField(apperror.CodeUnknownMode, err.Error(), field)
			continue
		}
		r.Mode = mode

		if _, ok := index[r.Origin]; !ok {
			verrs.AddErrorWithField(apperror.CodeDanglingRoute,
				fmt.Sprintf("origin %q does not exist", r.Origin), field)
			continue
		}
		if _, ok := index[r.Destination]; !ok {
			verrs.AddErrorWithField(apperror.CodeDanglingRoute,
				fmt.Sprintf("destination %q does not exist", r.Destination), field)
			continue
		}
		if math.IsNaN(r.Cost) || r.Cost < 0 {
			verrs.AddErrorWithField(apperror.CodeNegativeCost, "cost must be >= 0", field)
			continue
		}
		if math.IsNaN(r.Time) || r.Time <= 0 {
			verrs.AddErrorWithField(apperror.CodeInvalidTime, "time must be > 0", field)
			continue
		}
		if math.IsNaN(r.Environment) || r.Environment < 0 {
			verrs.AddErrorWithField(apperror.CodeNegativeEnvironment, "environment must be >= 0", field)
			continue
		}

		key := fmt.Sprintf("%s\x00%s\x00%s", r.Origin, r.Destination, r.Mode)
		r.ID = NewRouteID(r.Origin, r.Destination, r.Mode, seq[key])
		seq[key]++
		normalized = append(normalized, r)
	}

	if err := verrs.Err(); err != nil {
		return nil, nil, nil, err
	}
	return order, index, normalized, nil
}
