package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
)

// OpenAI embedding models
const (
	ModelOpenAISmall = "text-embedding-3-small"
	ModelOpenAILarge = "text-embedding-3-large"
)

// OpenAIClient embeds text with the OpenAI embeddings API
type OpenAIClient struct {
	client *openai.Client
	cfg    *Config
}

// NewOpenAIClient creates an OpenAI embedding client
func NewOpenAIClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)
	if cfg.APIKey == "" {
		return nil, NewEmbeddingError(ErrCodeInvalidAPIKey, ErrMsgInvalidAPIKey)
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientConfig),
		cfg:    cfg,
	}, nil
}

// Name returns the model name
func (c *OpenAIClient) Name() string {
	return c.cfg.Model
}

// Embed embeds a single text
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds up to BatchSize texts in one request
func (c *OpenAIClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if c.cfg.BatchSize > 0 && len(texts) > c.cfg.BatchSize {
		return nil, ErrBatchTooLarge
	}
	for _, text := range texts {
		if text == "" {
			return nil, ErrEmptyText
		}
	}

	req := openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(c.cfg.Model),
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(1<<attempt) * 100 * time.Millisecond):
			}
		}

		reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		resp, err := c.client.CreateEmbeddings(reqCtx, req)
		cancel()
		if err == nil {
			return orderEmbeddings(resp.Data, len(texts))
		}

		lastErr = err
		if !isRateLimitError(err) {
			break
		}
	}
	return nil, fmt.Errorf("embedding API error: %w", lastErr)
}

// orderEmbeddings places each vector at the input index it was returned for
func orderEmbeddings(data []openai.Embedding, n int) ([][]float32, error) {
	if len(data) != n {
		return nil, NewEmbeddingError(ErrCodeInvalidResponse,
			fmt.Sprintf("expected %d embeddings, got %d", n, len(data)))
	}
	out := make([][]float32, n)
	for _, d := range data {
		if d.Index < 0 || d.Index >= n {
			return nil, NewEmbeddingError(ErrCodeInvalidResponse, fmt.Sprintf("embedding index %d out of range", d.Index))
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

func isRateLimitError(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	return false
}

func init() {
	RegisterClient("openai", NewOpenAIClient)
}
