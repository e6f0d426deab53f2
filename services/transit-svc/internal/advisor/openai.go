package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"multimodal/pkg/apperror"
	"multimodal/pkg/config"
)

const (
	defaultSystemMessage = "You are a helpful assistant."
	maxResponseBytes     = 1 << 20
)

// OpenAIConfig параметры chat completions клиента
type OpenAIConfig struct {
	Endpoint     string
	Model        string
	APIKey       string
	Timeout      time.Duration
	MaxTokens    int
	Temperature  float64
	MaxRetries   uint64
	RetryBackoff time.Duration
}

// OpenAIConfigFrom переносит настройки сервиса
func OpenAIConfigFrom(cfg config.AdvisorConfig) OpenAIConfig {
	return OpenAIConfig{
		Endpoint:     cfg.Endpoint,
		Model:        cfg.Model,
		APIKey:       cfg.APIKey,
		Timeout:      cfg.Timeout,
		MaxTokens:    cfg.MaxTokens,
		Temperature:  cfg.Temperature,
		MaxRetries:   2,
		RetryBackoff: 500 * time.Millisecond,
	}
}

// OpenAIAdvisor советник поверх chat completions API
type OpenAIAdvisor struct {
	cfg    OpenAIConfig
	client *http.Client
	log    *slog.Logger
}

// NewOpenAI создаёт клиента. Пустой ключ - ErrDisabled.
func NewOpenAI(cfg OpenAIConfig, client *http.Client, log *slog.Logger) (*OpenAIAdvisor, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrDisabled
	}
	if cfg.Endpoint == "" {
		return nil, apperror.New(apperror.CodeInvalidArgument, "advisor endpoint is required").WithField("advisor.endpoint")
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1000
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 500 * time.Millisecond
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if log == nil {
		log = slog.Default()
	}
	return &OpenAIAdvisor{cfg: cfg, client: client, log: log}, nil
}

func (a *OpenAIAdvisor) Name() string { return ProviderOpenAI }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	N           int           `json:"n"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Advise запрашивает четыре решения. Временные ошибки (сеть, 429, 5xx)
// повторяются с экспоненциальной задержкой.
func (a *OpenAIAdvisor) Advise(ctx context.Context, req Request) (*Advice, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	prompt, err := BuildPrompt(req)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(chatRequest{
		Model: a.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: defaultSystemMessage},
			{Role: "user", Content: prompt},
		},
		MaxTokens:   a.cfg.MaxTokens,
		N:           1,
		Temperature: a.cfg.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	var resp chatResponse
	backoff := retry.WithMaxRetries(a.cfg.MaxRetries, retry.NewExponential(a.cfg.RetryBackoff))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		return a.do(ctx, body, &resp)
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, apperror.Wrap(err, apperror.CodeTimeout, "advisor request timed out")
		}
		var appErr *apperror.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, apperror.Wrap(err, apperror.CodeAdvisorUnavailable, "advisor request failed")
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return nil, apperror.New(apperror.CodeAdvisorMalformed, "advisor reply has no choices")
	}

	content := resp.Choices[0].Message.Content
	solutions, err := ParseReply(content)
	if err != nil {
		return nil, err
	}
	return &Advice{Provider: a.Name(), Solutions: solutions, Raw: content}, nil
}

func (a *OpenAIAdvisor) do(ctx context.Context, body []byte, out *chatResponse) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)

	res, err := a.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		a.log.Warn("advisor request failed, retrying", "error", err)
		return retry.RetryableError(err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		return retry.RetryableError(fmt.Errorf("read advisor response: %w", err))
	}

	switch {
	case res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= http.StatusInternalServerError:
		a.log.Warn("advisor upstream unavailable, retrying", "status", res.StatusCode)
		return retry.RetryableError(apperror.Newf(apperror.CodeAdvisorUnavailable, "advisor returned %d", res.StatusCode))
	case res.StatusCode != http.StatusOK:
		return apperror.Newf(apperror.CodeAdvisorUnavailable, "advisor returned %d", res.StatusCode).
			WithDetails("status", res.StatusCode)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return apperror.Wrap(err, apperror.CodeAdvisorMalformed, "advisor reply is not valid JSON")
	}
	return nil
}
