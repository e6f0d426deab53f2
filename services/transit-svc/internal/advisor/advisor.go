// Package advisor выбор рекомендуемых путей между защищёнными пунктами.
// Внешний советник (chat completions) подключается через интерфейс Advisor;
// при его отключении работает локальный HeuristicAdvisor.
package advisor

import (
	"context"
	"strings"

	"multimodal/pkg/apperror"
	"multimodal/pkg/domain"
)

// Имена провайдеров
const (
	ProviderOpenAI    = "openai"
	ProviderHeuristic = "heuristic"
	ProviderNone      = "none"
)

// Сообщения оператору при отказе советника
const (
	MsgAnalysisFailed = "Error analyzing routes. Please try again."
	MsgNoAnalysis     = "No analysis received from the advisor. Please try again."
	MsgNoPaths        = "No valid routes between the protected cities."
)

// ErrDisabled советник не настроен (нет ключа или provider=none)
var ErrDisabled = apperror.ErrAdvisorDisabled

// Consideration критерий решения
type Consideration string

const (
	ConsiderationOptimal  Consideration = "optimal"
	ConsiderationCost     Consideration = "lowest-cost"
	ConsiderationFastest  Consideration = "fastest"
	ConsiderationEco      Consideration = "eco-friendly"
	ConsiderationUnparsed Consideration = ""
)

// Considerations порядок решений в ответе
func Considerations() []Consideration {
	return []Consideration{ConsiderationOptimal, ConsiderationCost, ConsiderationFastest, ConsiderationEco}
}

// ParseConsideration сопоставляет свободный текст критерию
func ParseConsideration(s string) Consideration {
	s = strings.ToLower(s)
	switch {
	case strings.Contains(s, "optimal"):
		return ConsiderationOptimal
	case strings.Contains(s, "cost"):
		return ConsiderationCost
	case strings.Contains(s, "time"), strings.Contains(s, "fast"):
		return ConsiderationFastest
	case strings.Contains(s, "environment"), strings.Contains(s, "eco"):
		return ConsiderationEco
	default:
		return ConsiderationUnparsed
	}
}

// Request запрос к советнику
type Request struct {
	Origin      string               `json:"origin"`
	Destination string               `json:"destination"`
	Paths       []domain.PathSummary `json:"paths"`
}

// NewRequest собирает запрос из найденных путей
func NewRequest(origin, destination string, paths []domain.Path) Request {
	return Request{
		Origin:      origin,
		Destination: destination,
		Paths:       domain.SummarizePaths(paths),
	}
}

// Validate проверяет запрос
func (r Request) Validate() error {
	verrs := apperror.NewValidationErrors()
	if r.Origin == "" {
		verrs.AddErrorWithField(apperror.CodeInvalidArgument, "origin is required", "origin")
	}
	if r.Destination == "" {
		verrs.AddErrorWithField(apperror.CodeInvalidArgument, "destination is required", "destination")
	}
	if len(r.Paths) == 0 {
		verrs.AddErrorWithField(apperror.CodeInvalidArgument, MsgNoPaths, "paths")
	}
	return verrs.Err()
}

// Solution одно решение советника
type Solution struct {
	Consideration       Consideration `json:"consideration"`
	Route               []string      `json:"route"`
	Modes               []domain.Mode `json:"modes"`
	Cost                float64       `json:"cost"`
	Time                float64       `json:"time"`
	EnvironmentalImpact float64       `json:"environmentalImpact"`
	Comment             string        `json:"comment"`
	Text                string        `json:"text"`
}

// Advice ответ советника
type Advice struct {
	Provider  string     `json:"provider"`
	Solutions []Solution `json:"solutions"`
	Raw       string     `json:"raw,omitempty"`
}

// Advisor внешний коллаборатор, выбирающий решения из набора путей.
// Ошибка никогда не влияет на состояние сети.
type Advisor interface {
	Advise(ctx context.Context, req Request) (*Advice, error)
	Name() string
}

// FailureMessage сообщение оператору по ошибке советника
func FailureMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case apperror.Is(err, apperror.CodeAdvisorMalformed), apperror.Is(err, apperror.CodeAdvisorDisabled):
		return MsgNoAnalysis
	default:
		return MsgAnalysisFailed
	}
}
