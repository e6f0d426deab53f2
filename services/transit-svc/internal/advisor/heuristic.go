package advisor

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"multimodal/pkg/domain"
)

// Веса критериев для оптимального решения
const (
	weightCost        = 1.0 / 3
	weightTime        = 1.0 / 3
	weightEnvironment = 1.0 / 3
)

// HeuristicAdvisor детерминированный локальный выбор решений
type HeuristicAdvisor struct{}

// NewHeuristic создаёт локального советника
func NewHeuristic() *HeuristicAdvisor { return &HeuristicAdvisor{} }

func (*HeuristicAdvisor) Name() string { return ProviderHeuristic }

// Advise выбирает пути с минимальной стоимостью, временем и нагрузкой,
// а оптимальный по нормированной взвешенной сумме. При равенстве
// выигрывает путь, найденный раньше.
func (h *HeuristicAdvisor) Advise(ctx context.Context, req Request) (*Advice, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	paths := req.Paths
	costs := make([]float64, len(paths))
	times := make([]float64, len(paths))
	envs := make([]float64, len(paths))
	for i, p := range paths {
		costs[i], times[i], envs[i] = p.TotalCost, p.TotalTime, p.TotalEnvironment
	}

	nc, nt, ne := normalize(costs), normalize(times), normalize(envs)
	scores := make([]float64, len(paths))
	for i := range paths {
		scores[i] = weightCost*nc[i] + weightTime*nt[i] + weightEnvironment*ne[i]
	}

	picks := []struct {
		c   Consideration
		idx int
	}{
		{ConsiderationOptimal, argmin(scores)},
		{ConsiderationCost, argmin(costs)},
		{ConsiderationFastest, argmin(times)},
		{ConsiderationEco, argmin(envs)},
	}

	advice := &Advice{Provider: h.Name(), Solutions: make([]Solution, 0, len(picks))}
	for _, p := range picks {
		advice.Solutions = append(advice.Solutions, solutionFor(p.c, paths[p.idx]))
	}
	return advice, nil
}

func solutionFor(c Consideration, p domain.PathSummary) Solution {
	s := Solution{
		Consideration:       c,
		Route:               append([]string(nil), p.LocationSequence...),
		Modes:               append([]domain.Mode(nil), p.ModeSequence...),
		Cost:                p.TotalCost,
		Time:                p.TotalTime,
		EnvironmentalImpact: p.TotalEnvironment,
		Comment:             commentFor(c),
	}
	s.Text = FormatSolution(s)
	return s
}

func commentFor(c Consideration) string {
	switch c {
	case ConsiderationOptimal:
		return "Best balance of cost, time and carbon footprint among the remaining routes."
	case ConsiderationCost:
		return "Cheapest way to move the goods over the remaining network."
	case ConsiderationFastest:
		return "Shortest total transit time over the remaining network."
	case ConsiderationEco:
		return "Lowest carbon footprint over the remaining network."
	default:
		return ""
	}
}

var considerationTitles = map[Consideration]string{
	ConsiderationOptimal: "Optimal solution",
	ConsiderationCost:    "Cost-efficient",
	ConsiderationFastest: "Time-saving",
	ConsiderationEco:     "Environmentally friendly",
}

// FormatSolution текст решения в формате ответа внешнего советника
func FormatSolution(s Solution) string {
	modes := make([]string, len(s.Modes))
	for i, m := range s.Modes {
		modes[i] = string(m)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "1. Consideration: %s\n", considerationTitles[s.Consideration])
	fmt.Fprintf(&b, "2. Route: [%s] by [%s]\n", strings.Join(s.Route, " -> "), strings.Join(modes, ", "))
	fmt.Fprintf(&b, "3. Cost: $%s\n", formatNumber(s.Cost))
	fmt.Fprintf(&b, "4. Time: %s hours\n", formatNumber(s.Time))
	fmt.Fprintf(&b, "5. Carbon Footprint: %s kg\n", formatNumber(s.EnvironmentalImpact))
	fmt.Fprintf(&b, "6. Evaluation: %s", s.Comment)
	return b.String()
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// normalize приводит значения к [0, 1]; одинаковые значения дают нули
func normalize(vals []float64) []float64 {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range vals {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	out := make([]float64, len(vals))
	span := hi - lo
	if domain.IsZero(span) {
		return out
	}
	for i, v := range vals {
		out[i] = (v - lo) / span
	}
	return out
}

func argmin(vals []float64) int {
	best := 0
	for i := 1; i < len(vals); i++ {
		if vals[i] < vals[best] {
			best = i
		}
	}
	return best
}
