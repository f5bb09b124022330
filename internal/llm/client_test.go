package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCompletionServer answers /chat/completions with reply, or with status when non-200
func fakeCompletionServer(t *testing.T, status int, reply string, seen func(openai.ChatCompletionRequest)) (*httptest.Server, *atomic.Int32) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req openai.ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if seen != nil {
			seen(req)
		}

		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"upstream failed","type":"server_error"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  req.Model,
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": reply},
				"finish_reason": "stop",
			}},
			"usage": map[string]int{"prompt_tokens": 7, "completion_tokens": 3, "total_tokens": 10},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig(
		WithAPIKey("k"),
		WithModel("m"),
		WithBaseURL("http://localhost"),
		WithTimeout(time.Second),
		WithMaxRetries(5),
		WithMaxTokens(10),
		WithTemperature(0.1),
		WithTopP(0.5),
	)

	assert.Equal(t, "k", cfg.APIKey)
	assert.Equal(t, "m", cfg.Model)
	assert.Equal(t, "http://localhost", cfg.BaseURL)
	assert.Equal(t, time.Second, cfg.Timeout)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, 10, cfg.MaxTokens)
	assert.Equal(t, float32(0.1), cfg.Temperature)
	assert.Equal(t, float32(0.5), cfg.TopP)
}

func TestNewClient(t *testing.T) {
	t.Run("registered providers", func(t *testing.T) {
		for _, name := range []string{ProviderOpenAI, ProviderGroq} {
			client, err := NewClient(name, WithAPIKey("k"))
			require.NoError(t, err, name)
			assert.NotEmpty(t, client.Name())
		}
	})

	t.Run("groq defaults", func(t *testing.T) {
		client, err := NewClient(ProviderGroq, WithAPIKey("k"))
		require.NoError(t, err)
		assert.Equal(t, ModelLlama3170B, client.Name())
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := NewClient("nope")
		var llmErr LLMError
		require.ErrorAs(t, err, &llmErr)
		assert.Equal(t, ErrCodeInvalidRequest, llmErr.Code)
	})

	t.Run("missing key", func(t *testing.T) {
		_, err := NewClient(ProviderOpenAI)
		var llmErr LLMError
		require.ErrorAs(t, err, &llmErr)
		assert.Equal(t, ErrCodeInvalidAPIKey, llmErr.Code)
	})
}

func TestOpenAIClient_Generate(t *testing.T) {
	var got openai.ChatCompletionRequest
	srv, _ := fakeCompletionServer(t, http.StatusOK, "  hello there ", func(r openai.ChatCompletionRequest) { got = r })

	client, err := NewOpenAIClient(WithAPIKey("test-key"), WithBaseURL(srv.URL), WithModel("test-model"))
	require.NoError(t, err)

	resp, err := client.Generate(context.Background(), "say hi",
		WithGenerateStop("\nSQL Result:"),
		WithGenerateJSON(),
		WithGenerateMaxTokens(50),
	)
	require.NoError(t, err)

	assert.Equal(t, "  hello there ", resp.Text)
	assert.Equal(t, 10, resp.TokenCount)
	assert.Equal(t, "test-model", resp.ModelName)
	require.Len(t, resp.Messages, 2)
	assert.Equal(t, RoleAssistant, resp.Messages[1].Role)

	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
	assert.Equal(t, "say hi", got.Messages[0].Content)
	assert.Equal(t, []string{"\nSQL Result:"}, got.Stop)
	assert.Equal(t, 50, got.MaxTokens)
	require.NotNil(t, got.ResponseFormat)
	assert.Equal(t, openai.ChatCompletionResponseFormatTypeJSONObject, got.ResponseFormat.Type)
}

func TestOpenAIClient_EmptyPrompt(t *testing.T) {
	client, err := NewOpenAIClient(WithAPIKey("test-key"), WithBaseURL("http://127.0.0.1:1"))
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), "")
	var llmErr LLMError
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, ErrCodeEmptyPrompt, llmErr.Code)

	_, err = client.Chat(context.Background(), nil)
	assert.Error(t, err)
}

func TestOpenAIClient_Errors(t *testing.T) {
	t.Run("server errors are retried", func(t *testing.T) {
		srv, calls := fakeCompletionServer(t, http.StatusInternalServerError, "", nil)
		client, err := NewOpenAIClient(WithAPIKey("test-key"), WithBaseURL(srv.URL), WithMaxRetries(2))
		require.NoError(t, err)

		_, err = client.Generate(context.Background(), "hi")
		var llmErr LLMError
		require.ErrorAs(t, err, &llmErr)
		assert.Equal(t, ErrCodeServerError, llmErr.Code)
		assert.True(t, IsRetryable(err))
		assert.EqualValues(t, 3, calls.Load())
	})

	t.Run("client errors are not retried", func(t *testing.T) {
		srv, calls := fakeCompletionServer(t, http.StatusUnauthorized, "", nil)
		client, err := NewOpenAIClient(WithAPIKey("test-key"), WithBaseURL(srv.URL), WithMaxRetries(3))
		require.NoError(t, err)

		_, err = client.Generate(context.Background(), "hi")
		var llmErr LLMError
		require.ErrorAs(t, err, &llmErr)
		assert.Equal(t, ErrCodeInvalidAPIKey, llmErr.Code)
		assert.False(t, IsRetryable(err))
		assert.EqualValues(t, 1, calls.Load())
	})
}

func TestWrapError(t *testing.T) {
	original := NewLLMError(ErrCodeRateLimited, ErrMsgRateLimited)
	assert.Equal(t, original, WrapError(original, ErrCodeServerError))

	wrapped := WrapError(assert.AnError, ErrCodeNetworkError)
	assert.Equal(t, ErrCodeNetworkError, wrapped.Code)
	assert.True(t, wrapped.Retryable())

	assert.Equal(t, "unknown error", WrapError(nil, ErrCodeServerError).Message)
}
