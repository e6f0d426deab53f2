package advisor

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"multimodal/pkg/config"
)

// Disabled советник, всегда возвращающий ErrDisabled
type Disabled struct{}

func (Disabled) Name() string { return ProviderNone }

func (Disabled) Advise(context.Context, Request) (*Advice, error) { return nil, ErrDisabled }

// FromConfig выбирает реализацию по advisor.provider. openai без ключа
// откатывается на эвристику.
func FromConfig(cfg config.AdvisorConfig, client *http.Client, log *slog.Logger) (Advisor, error) {
	if log == nil {
		log = slog.Default()
	}

	switch cfg.Provider {
	case ProviderOpenAI:
		a, err := NewOpenAI(OpenAIConfigFrom(cfg), client, log)
		if errors.Is(err, ErrDisabled) {
			log.Warn("advisor api key is not set, falling back to heuristic advisor")
			return NewHeuristic(), nil
		}
		if err != nil {
			return nil, err
		}
		return a, nil
	case ProviderNone:
		return Disabled{}, nil
	default:
		return NewHeuristic(), nil
	}
}
