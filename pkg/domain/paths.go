package domain

import (
	"strings"
)

// Path простой путь: цепочка маршрутов от Origin без повторных пунктов.
// Путь без маршрутов означает совпадение начала и конца.
type Path struct {
	Origin string  `json:"origin"`
	Routes []Route `json:"routes"`
}

// Destination конечный пункт пути
func (p Path) Destination() string {
	if len(p.Routes) == 0 {
		return p.Origin
	}
	return p.Routes[len(p.Routes)-1].Destination
}

// Hops количество маршрутов
func (p Path) Hops() int {
	return len(p.Routes)
}

// Locations последовательность пунктов пути
func (p Path) Locations() []string {
	out := make([]string, 0, len(p.Routes)+1)
	out = append(out, p.Origin)
	for _, r := range p.Routes {
		out = append(out, r.Destination)
	}
	return out
}

// Modes вид транспорта каждого перегона
func (p Path) Modes() []Mode {
	out := make([]Mode, len(p.Routes))
	for i, r := range p.Routes {
		out[i] = r.Mode
	}
	return out
}

// TotalCost сумма стоимостей маршрутов
func (p Path) TotalCost() float64 {
	var sum float64
	for _, r := range p.Routes {
		sum += r.Cost
	}
	return sum
}

// TotalTime сумма номинальных времён (без учёта текущих скоростей)
func (p Path) TotalTime() float64 {
	var sum float64
	for _, r := range p.Routes {
		sum += r.Time
	}
	return sum
}

// TotalEnvironment сумма экологической нагрузки
func (p Path) TotalEnvironment() float64 {
	var sum float64
	for _, r := range p.Routes {
		sum += r.Environment
	}
	return sum
}

// Summary агрегированное описание пути для советника
func (p Path) Summary() PathSummary {
	return PathSummary{
		LocationSequence: p.Locations(),
		ModeSequence:     p.Modes(),
		TotalCost:        p.TotalCost(),
		TotalTime:        p.TotalTime(),
		TotalEnvironment: p.TotalEnvironment(),
	}
}

// PathSummary форма пути в запросе к советнику
type PathSummary struct {
	LocationSequence []string `json:"locationSequence"`
	ModeSequence     []Mode   `json:"modeSequence"`
	TotalCost        float64  `json:"totalCost"`
	TotalTime        float64  `json:"totalTime"`
	TotalEnvironment float64  `json:"totalEnvironment"`
}

// RouteText маршрут в виде "A -> B -> C"
func (s PathSummary) RouteText() string {
	return strings.Join(s.LocationSequence, " -> ")
}

// ModesText виды транспорта в виде "Sea, Air"
func (s PathSummary) ModesText() string {
	parts := make([]string, len(s.ModeSequence))
	for i, m := range s.ModeSequence {
		parts[i] = string(m)
	}
	return strings.Join(parts, ", ")
}

// SummarizePaths агрегирует набор путей
func SummarizePaths(paths []Path) []PathSummary {
	out := make([]PathSummary, len(paths))
	for i, p := range paths {
		out[i] = p.Summary()
	}
	return out
}

// FindAllSimplePaths перебирает все простые пути от origin до destination
// поиском в глубину. Множество посещённых пунктов копируется на каждой ветке,
// поэтому параллельные ветки независимо проходят через одни и те же пункты.
//
// Неизвестный пункт или отсутствие пути дают пустой результат.
// origin == destination даёт ровно один путь без маршрутов.
func FindAllSimplePaths(src RouteSource, origin, destination string) []Path {
	if src == nil || !src.HasLocation(origin) || !src.HasLocation(destination) {
		return nil
	}
	if origin == destination {
		return []Path{{Origin: origin}}
	}

	var paths []Path
	var walk func(current string, acc []Route, visited map[string]struct{})
	walk = func(current string, acc []Route, visited map[string]struct{}) {
		if current == destination {
			routes := make([]Route, len(acc))
			copy(routes, acc)
			paths = append(paths, Path{Origin: origin, Routes: routes})
			return
		}

		for _, r := range src.Outgoing(current) {
			if _, seen := visited[r.Destination]; seen {
				continue
			}
			branch := make(map[string]struct{}, len(visited)+1)
			for id := range visited {
				branch[id] = struct{}{}
			}
			branch[r.Destination] = struct{}{}
			walk(r.Destination, append(acc[:len(acc):len(acc)], r), branch)
		}
	}

	walk(origin, nil, map[string]struct{}{origin: {}})
	return paths
}
