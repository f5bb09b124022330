package llm

import (
	"context"
	"time"
)

// Client talks to a hosted chat model
type Client interface {
	// Generate answers a single prompt
	Generate(ctx context.Context, prompt string, options ...GenerateOption) (*Response, error)

	// Chat continues a multi-turn conversation
	Chat(ctx context.Context, messages []Message, options ...ChatOption) (*Response, error)

	// Name returns the model name
	Name() string
}

// Config holds client settings
type Config struct {
	APIKey      string        // API key
	BaseURL     string        // API base URL, empty means the provider default
	Model       string        // model name
	Timeout     time.Duration // per request timeout
	MaxRetries  int           // retries on transport and 5xx errors
	MaxTokens   int           // default completion limit
	Temperature float32       // sampling temperature (0.0-2.0)
	TopP        float32       // nucleus sampling threshold (0.0-1.0)
}

// DefaultConfig returns the default settings
func DefaultConfig() *Config {
	return &Config{
		Model:       ModelGPT4oMini,
		Timeout:     60 * time.Second,
		MaxRetries:  3,
		MaxTokens:   1024,
		Temperature: 0.7,
		TopP:        1.0,
	}
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

// WithMaxTokens sets the default completion limit
func WithMaxTokens(tokens int) Option {
	return func(c *Config) {
		c.MaxTokens = tokens
	}
}

// WithTemperature sets the default temperature
func WithTemperature(temp float32) Option {
	return func(c *Config) {
		c.Temperature = temp
	}
}

// WithTopP sets the default nucleus sampling threshold
func WithTopP(topP float32) Option {
	return func(c *Config) {
		c.TopP = topP
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

// GenerateOption adjusts one Generate call
type GenerateOption func(*GenerateOptions)

// GenerateOptions are per call overrides; nil means use the client default
type GenerateOptions struct {
	MaxTokens   *int
	Temperature *float32
	TopP        *float32
	Stop        []string // stop sequences
	JSONMode    bool     // ask the model for a JSON object
}

// WithGenerateMaxTokens limits the completion length
func WithGenerateMaxTokens(tokens int) GenerateOption {
	return func(o *GenerateOptions) {
		o.MaxTokens = &tokens
	}
}

// WithGenerateTemperature overrides the temperature
func WithGenerateTemperature(temp float32) GenerateOption {
	return func(o *GenerateOptions) {
		o.Temperature = &temp
	}
}

// WithGenerateTopP overrides top-p
func WithGenerateTopP(topP float32) GenerateOption {
	return func(o *GenerateOptions) {
		o.TopP = &topP
	}
}

// WithGenerateStop sets stop sequences
func WithGenerateStop(stop ...string) GenerateOption {
	return func(o *GenerateOptions) {
		o.Stop = stop
	}
}

// WithGenerateJSON requests a JSON object response
func WithGenerateJSON() GenerateOption {
	return func(o *GenerateOptions) {
		o.JSONMode = true
	}
}

// ChatOption adjusts one Chat call
type ChatOption func(*ChatOptions)

// ChatOptions are per call overrides for Chat
type ChatOptions struct {
	MaxTokens   *int
	Temperature *float32
	TopP        *float32
	Stop        []string
	JSONMode    bool
}

// WithChatMaxTokens limits the completion length
func WithChatMaxTokens(tokens int) ChatOption {
	return func(o *ChatOptions) {
		o.MaxTokens = &tokens
	}
}

// WithChatTemperature overrides the temperature
func WithChatTemperature(temp float32) ChatOption {
	return func(o *ChatOptions) {
		o.Temperature = &temp
	}
}

// WithChatTopP overrides top-p
func WithChatTopP(topP float32) ChatOption {
	return func(o *ChatOptions) {
		o.TopP = &topP
	}
}

// WithChatStop sets stop sequences
func WithChatStop(stop ...string) ChatOption {
	return func(o *ChatOptions) {
		o.Stop = stop
	}
}

// WithChatJSON requests a JSON object response
func WithChatJSON() ChatOption {
	return func(o *ChatOptions) {
		o.JSONMode = true
	}
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
		return nil, NewLLMError(
			ErrCodeInvalidRequest,
			"llm client type not registered: "+name)
	}
	return factory(opts...)
}
