package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type chatRequest struct {
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float32 `json:"temperature"`
	Messages    []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func fakeOpenAI(t *testing.T, content string, status int, seen *chatRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		if seen != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		}
		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"nope","type":"invalid_request_error"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"model":   "gpt-4o-mini",
			"choices": []map[string]any{{"index": 0, "message": map[string]any{"role": "assistant", "content": content}, "finish_reason": "stop"}},
			"usage":   map[string]any{"prompt_tokens": 3, "completion_tokens": 2, "total_tokens": 5},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCompleteSendsPromptAndOptions(t *testing.T) {
	var seen chatRequest
	srv := fakeOpenAI(t, "category: Tools", http.StatusOK, &seen)

	temp := float32(0.4)
	c := NewClient(srv.URL+"/v1/", "sk-test", Options{Model: "gpt-4o-mini", MaxTokens: 50, Temperature: &temp}, zap.NewNop())

	out, err := c.Complete(context.Background(), "classify me")
	require.NoError(t, err)

	assert.Equal(t, "category: Tools", out)
	assert.Equal(t, "gpt-4o-mini", seen.Model)
	assert.Equal(t, 50, seen.MaxTokens)
	assert.InDelta(t, 0.4, seen.Temperature, 1e-6)
	require.Len(t, seen.Messages, 1)
	assert.Equal(t, "user", seen.Messages[0].Role)
	assert.Equal(t, "classify me", seen.Messages[0].Content)
}

func TestCompleteEmptyResponseIsGatewayError(t *testing.T) {
	srv := fakeOpenAI(t, "   ", http.StatusOK, nil)
	c := NewClient(srv.URL+"/v1", "sk-test", Options{Model: "m"}, zap.NewNop())

	_, err := c.Complete(context.Background(), "hi")

	var gwErr *GatewayError
	require.True(t, errors.As(err, &gwErr))
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestCompleteHTTPErrorCarriesStatus(t *testing.T) {
	srv := fakeOpenAI(t, "", http.StatusUnauthorized, nil)
	c := NewClient(srv.URL+"/v1", "sk-test", Options{Model: "m"}, zap.NewNop())

	_, err := c.Complete(context.Background(), "hi")

	var gwErr *GatewayError
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, http.StatusUnauthorized, gwErr.StatusCode)
}

func TestCompleteHonorsCancelledContext(t *testing.T) {
	srv := fakeOpenAI(t, "ok", http.StatusOK, nil)
	c := NewClient(srv.URL+"/v1", "sk-test", Options{Model: "m", RatePerMin: 1}, zap.NewNop())

	// The first call consumes the only token; the second must wait a full
	// minute and so fails immediately on a cancelled context.
	_, err := c.Complete(context.Background(), "first")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Complete(ctx, "second")

	var gwErr *GatewayError
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, "rate limit", gwErr.Op)
}

func TestPing(t *testing.T) {
	var seen chatRequest
	srv := fakeOpenAI(t, "OK", http.StatusOK, &seen)
	c := NewClient(srv.URL+"/v1", "sk-test", Options{Model: "m", MaxTokens: 500}, zap.NewNop())

	out, err := c.Ping(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "OK", out)
	assert.Equal(t, 10, seen.MaxTokens)
}

func TestCompleteSendsExplicitZeroTemperature(t *testing.T) {
	tests := []struct {
		name        string
		temperature *float32
		wantKey     bool
	}{
		{"zero", new(float32), true},
		{"unset", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body map[string]any
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				w.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(w).Encode(map[string]any{
					"choices": []map[string]any{{"message": map[string]any{"role": "assistant", "content": "ok"}}},
				})
			}))
			defer srv.Close()

			c := NewClient(srv.URL+"/v1", "sk-test", Options{Model: "m", Temperature: tt.temperature}, zap.NewNop())
			_, err := c.Complete(context.Background(), "hi")
			require.NoError(t, err)

			temp, ok := body["temperature"]
			assert.Equal(t, tt.wantKey, ok, "body=%v", body)
			if ok {
				assert.InDelta(t, 0, temp, 1e-6)
			}
		})
	}
}
