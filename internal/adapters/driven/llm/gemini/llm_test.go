package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oratorio-dev/rudybot/internal/core/domain"
	"github.com/oratorio-dev/rudybot/internal/core/ports/driven"
)

func newTestService(t *testing.T, handler http.HandlerFunc) *LLMService {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	s, err := NewLLMService(Config{APIKey: "test-key", BaseURL: srv.URL, Model: "gemini-2.5-flash"})
	require.NoError(t, err)
	return s
}

func TestNewLLMService_RequiresAPIKey(t *testing.T) {
	_, err := NewLLMService(Config{})
	assert.ErrorContains(t, err, "API key")
}

func TestLLMService_Complete(t *testing.T) {
	s := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-2.5-flash:generateContent", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))

		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Contents, 1)
		assert.Equal(t, "user", req.Contents[0].Role)
		assert.Equal(t, "what time is it?", req.Contents[0].Parts[0].Text)
		require.NotNil(t, req.SystemInstruction)
		assert.Equal(t, "answer briefly", req.SystemInstruction.Parts[0].Text)
		require.NotNil(t, req.GenerationConfig)
		assert.Equal(t, 100, req.GenerationConfig.MaxOutputTokens)

		w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"It is "},{"text":"noon."}]}}]}`))
	})

	out, err := s.Complete(context.Background(), "what time is it?", driven.CompleteOptions{
		SystemInstruction: "answer briefly",
		MaxTokens:         100,
	})
	require.NoError(t, err)
	assert.Equal(t, "It is noon.", out)
}

func TestLLMService_Complete_OmitsOptionalFields(t *testing.T) {
	s := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		assert.NotContains(t, raw, "systemInstruction")
		assert.NotContains(t, raw, "generationConfig")
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"ok"}]}}]}`))
	})

	out, err := s.Complete(context.Background(), "hi", driven.CompleteOptions{})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
}

func TestLLMService_Complete_RateLimited(t *testing.T) {
	s := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := s.Complete(context.Background(), "hi", driven.CompleteOptions{})
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}

func TestLLMService_Complete_APIError(t *testing.T) {
	s := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"invalid"}}`))
	})

	_, err := s.Complete(context.Background(), "hi", driven.CompleteOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
}

func TestLLMService_Complete_NoCandidates(t *testing.T) {
	s := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[]}`))
	})

	_, err := s.Complete(context.Background(), "hi", driven.CompleteOptions{})
	assert.ErrorContains(t, err, "no candidates")
}

func TestLLMService_Complete_TransportErrorWrapsUnavailable(t *testing.T) {
	s, err := NewLLMService(Config{APIKey: "k", BaseURL: "http://127.0.0.1:1"})
	require.NoError(t, err)

	_, err = s.Complete(context.Background(), "hi", driven.CompleteOptions{})
	assert.ErrorIs(t, err, domain.ErrLLMUnavailable)
}

func TestLLMService_ModelName(t *testing.T) {
	s, err := NewLLMService(Config{APIKey: "k", Model: "gemini-2.5-pro"})
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.5-pro", s.ModelName())
}

func TestLLMService_Ping(t *testing.T) {
	s := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/models/gemini-2.5-flash", r.URL.Path)
		w.Write([]byte(`{"name":"models/gemini-2.5-flash"}`))
	})
	assert.NoError(t, s.Ping(context.Background()))
}
