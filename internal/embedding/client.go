package embedding

import (
	"context"
	"time"
)

// Client turns text into vectors
type Client interface {
	// Embed embeds one text
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch embeds texts, returning vectors in input order
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Name returns the model name
	Name() string
}

// Config holds embedding client settings
type Config struct {
	APIKey     string        // API key
	BaseURL    string        // API base URL, empty means the provider default
	Model      string        // model name
	Timeout    time.Duration // per request timeout
	MaxRetries int           // retries on rate limiting
	Dimensions int           // vector dimension
	BatchSize  int           // max texts per request
}

// Option configures a client
type Option func(*Config)

// WithAPIKey sets the API key
func WithAPIKey(apiKey string) Option {
	return func(c *Config) {
		c.APIKey = apiKey
	}
}

// WithBaseURL sets the API base URL
func WithBaseURL(url string) Option {
	return func(c *Config) {
		c.BaseURL = url
	}
}

// WithModel sets the model
func WithModel(model string) Option {
	return func(c *Config) {
		c.Model = model
	}
}

// WithTimeout sets the per request timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.Timeout = timeout
	}
}

// WithMaxRetries sets the retry count
func WithMaxRetries(retries int) Option {
	return func(c *Config) {
		c.MaxRetries = retries
	}
}

// WithDimensions sets the vector dimension
func WithDimensions(dimensions int) Option {
	return func(c *Config) {
		c.Dimensions = dimensions
	}
}

// WithBatchSize sets the request batch size
func WithBatchSize(size int) Option {
	return func(c *Config) {
		c.BatchSize = size
	}
}

// DefaultConfig returns OpenAI text-embedding-3-small settings
func DefaultConfig() *Config {
	return &Config{
		Model:      ModelOpenAISmall,
		Timeout:    30 * time.Second,
		MaxRetries: 3,
		Dimensions: 1536,
		BatchSize:  64,
	}
}

// NewConfig applies opts over the defaults
func NewConfig(opts ...Option) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Factory builds a client from options
type Factory func(opts ...Option) (Client, error)

var clientFactories = make(map[string]Factory)

// RegisterClient registers a provider under name
func RegisterClient(name string, factory Factory) {
	clientFactories[name] = factory
}

// NewClient builds the client registered under name
func NewClient(name string, opts ...Option) (Client, error) {
	factory, exists := clientFactories[name]
	if !exists {
		return nil, NewEmbeddingError(
			ErrCodeInvalidRequest,
			"embedding client type not registered: "+name)
	}
	return factory(opts...)
}
