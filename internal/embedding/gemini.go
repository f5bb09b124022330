package embedding

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// ModelGeminiText004 is Google's general purpose embedding model
const ModelGeminiText004 = "text-embedding-004"

// GeminiClient embeds text with the Google Generative AI API
type GeminiClient struct {
	client *genai.Client
	model  *genai.EmbeddingModel
	cfg    *Config
}

// NewGeminiClient creates a Gemini embedding client
func NewGeminiClient(opts ...Option) (Client, error) {
	cfg := NewConfig(append([]Option{WithModel(ModelGeminiText004), WithDimensions(768), WithBatchSize(100)}, opts...)...)
	if cfg.APIKey == "" {
		return nil, NewEmbeddingError(ErrCodeInvalidAPIKey, ErrMsgInvalidAPIKey)
	}

	clientOpts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(cfg.BaseURL))
	}

	client, err := genai.NewClient(context.Background(), clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiClient{
		client: client,
		model:  client.EmbeddingModel(cfg.Model),
		cfg:    cfg,
	}, nil
}

// Name returns the model name
func (c *GeminiClient) Name() string {
	return c.cfg.Model
}

// Embed embeds a single text
func (c *GeminiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp, err := c.model.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("gemini embed: %w", err)
	}
	if resp.Embedding == nil {
		return nil, NewEmbeddingError(ErrCodeInvalidResponse, "empty embedding")
	}
	return resp.Embedding.Values, nil
}

// EmbedBatch embeds texts in a single batch request
func (c *GeminiClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if c.cfg.BatchSize > 0 && len(texts) > c.cfg.BatchSize {
		return nil, ErrBatchTooLarge
	}

	batch := c.model.NewBatch()
	for _, text := range texts {
		if text == "" {
			return nil, ErrEmptyText
		}
		batch.AddContent(genai.Text(text))
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp, err := c.model.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("gemini batch embed: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, NewEmbeddingError(ErrCodeInvalidResponse,
			fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(resp.Embeddings)))
	}

	out := make([][]float32, 0, len(resp.Embeddings))
	for _, e := range resp.Embeddings {
		out = append(out, e.Values)
	}
	return out, nil
}

// Close releases the underlying connection
func (c *GeminiClient) Close() error {
	return c.client.Close()
}

func init() {
	RegisterClient("gemini", NewGeminiClient)
}
