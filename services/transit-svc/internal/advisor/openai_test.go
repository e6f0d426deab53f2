package advisor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"multimodal/pkg/apperror"
	"multimodal/pkg/config"
	"multimodal/pkg/domain"
	"multimodal/pkg/logger"
)

func testRequest(t *testing.T) Request {
	t.Helper()
	network, err := domain.NewNetworkFromDataset(domain.MustDefaultDataset())
	require.NoError(t, err)
	return NewRequest("Shanghai", "Singapore", network.FindAllSimplePaths("Shanghai", "Singapore"))
}

func newTestOpenAI(t *testing.T, url string) *OpenAIAdvisor {
	t.Helper()
	a, err := NewOpenAI(OpenAIConfig{
		Endpoint:     url,
		APIKey:       "test-key",
		Timeout:      5 * time.Second,
		MaxRetries:   2,
		RetryBackoff: time.Millisecond,
	}, nil, logger.Discard())
	require.NoError(t, err)
	return a
}

func writeReply(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": content}}},
	})
}

func TestOpenAI_Advise(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeReply(w, sampleReply)
	}))
	defer srv.Close()

	advice, err := newTestOpenAI(t, srv.URL).Advise(context.Background(), testRequest(t))
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, advice.Provider)
	assert.Len(t, advice.Solutions, 3)
	assert.Equal(t, sampleReply, advice.Raw)

	assert.Equal(t, "gpt-4", got.Model)
	assert.Equal(t, 1000, got.MaxTokens)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, defaultSystemMessage, got.Messages[0].Content)
	assert.Contains(t, got.Messages[1].Content, "from Shanghai to Singapore")
}

func TestOpenAI_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeReply(w, sampleReply)
	}))
	defer srv.Close()

	_, err := newTestOpenAI(t, srv.URL).Advise(context.Background(), testRequest(t))
	require.NoError(t, err)
	assert.EqualValues(t, 3, calls.Load())
}

func TestOpenAI_GivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestOpenAI(t, srv.URL).Advise(context.Background(), testRequest(t))
	assert.True(t, apperror.Is(err, apperror.CodeAdvisorUnavailable))
	assert.Equal(t, MsgAnalysisFailed, FailureMessage(err))
	assert.EqualValues(t, 3, calls.Load())
}

func TestOpenAI_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newTestOpenAI(t, srv.URL).Advise(context.Background(), testRequest(t))
	assert.True(t, apperror.IsExternal(err))
	assert.EqualValues(t, 1, calls.Load())
}

func TestOpenAI_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	_, err := newTestOpenAI(t, srv.URL).Advise(context.Background(), testRequest(t))
	assert.True(t, apperror.Is(err, apperror.CodeAdvisorMalformed))
	assert.Equal(t, MsgNoAnalysis, FailureMessage(err))
}

func TestOpenAI_EmptyRequest(t *testing.T) {
	a := newTestOpenAI(t, "http://127.0.0.1:1")
	_, err := a.Advise(context.Background(), Request{Origin: "A", Destination: "B"})
	assert.True(t, apperror.IsValidation(err))
}

func TestNewOpenAI_Disabled(t *testing.T) {
	_, err := NewOpenAI(OpenAIConfig{Endpoint: "http://example.invalid"}, nil, nil)
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestFromConfig(t *testing.T) {
	a, err := FromConfig(config.AdvisorConfig{Provider: ProviderOpenAI, Endpoint: "http://example.invalid"}, nil, logger.Discard())
	require.NoError(t, err)
	assert.Equal(t, ProviderHeuristic, a.Name())

	a, err = FromConfig(config.AdvisorConfig{Provider: ProviderOpenAI, Endpoint: "http://example.invalid", APIKey: "k"}, nil, logger.Discard())
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, a.Name())

	a, err = FromConfig(config.AdvisorConfig{Provider: ProviderNone}, nil, nil)
	require.NoError(t, err)
	_, err = a.Advise(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrDisabled)
}
