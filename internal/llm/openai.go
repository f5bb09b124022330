package llm

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/sashabaranov/go-openai"
)

// OpenAIClient is a chat client for OpenAI compatible endpoints (OpenAI, Groq)
type OpenAIClient struct {
	client *openai.Client
	cfg    *Config
}

// NewOpenAIClient creates a client for the OpenAI API
func NewOpenAIClient(opts ...Option) (Client, error) {
	return newCompatibleClient(NewConfig(opts...))
}

// NewGroqClient creates a client for Groq's OpenAI compatible API
func NewGroqClient(opts ...Option) (Client, error) {
	cfg := NewConfig(append([]Option{WithBaseURL(DefaultGroqBaseURL), WithModel(ModelLlama3170B)}, opts...)...)
	return newCompatibleClient(cfg)
}

func newCompatibleClient(cfg *Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, NewLLMError(ErrCodeInvalidAPIKey, ErrMsgInvalidAPIKey)
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

// Generate sends prompt as a single user message
func (c *OpenAIClient) Generate(ctx context.Context, prompt string, options ...GenerateOption) (*Response, error) {
	if prompt == "" {
		return nil, NewLLMError(ErrCodeEmptyPrompt, ErrMsgEmptyPrompt)
	}

	opts := &GenerateOptions{}
	for _, opt := range options {
		opt(opts)
	}

	return c.Chat(ctx, []Message{{Role: RoleUser, Content: prompt}}, func(o *ChatOptions) {
		o.MaxTokens = opts.MaxTokens
		o.Temperature = opts.Temperature
		o.TopP = opts.TopP
		o.Stop = opts.Stop
		o.JSONMode = opts.JSONMode
	})
}

// Chat sends the conversation and returns the assistant reply
func (c *OpenAIClient) Chat(ctx context.Context, messages []Message, options ...ChatOption) (*Response, error) {
	if len(messages) == 0 {
		return nil, NewLLMError(ErrCodeEmptyPrompt, "messages cannot be empty")
	}

	opts := &ChatOptions{}
	for _, opt := range options {
		opt(opts)
	}

	req := c.buildRequest(messages, opts)
	resp, err := c.complete(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, NewLLMError(ErrCodeInvalidResponse, ErrMsgEmptyCompletion)
	}

	reply := Message{Role: RoleAssistant, Content: resp.Choices[0].Message.Content}
	history := make([]Message, 0, len(messages)+1)
	history = append(history, messages...)
	history = append(history, reply)

	return &Response{
		Text:       reply.Content,
		Messages:   history,
		TokenCount: resp.Usage.TotalTokens,
		ModelName:  resp.Model,
		FinishTime: time.Now(),
	}, nil
}

func (c *OpenAIClient) buildRequest(messages []Message, opts *ChatOptions) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    make([]openai.ChatCompletionMessage, len(messages)),
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
		TopP:        c.cfg.TopP,
		Stop:        opts.Stop,
	}
	for i, m := range messages {
		req.Messages[i] = openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content, Name: m.Name}
	}

	if opts.MaxTokens != nil {
		req.MaxTokens = *opts.MaxTokens
	}
	if opts.Temperature != nil {
		req.Temperature = *opts.Temperature
	}
	if opts.TopP != nil {
		req.TopP = *opts.TopP
	}
	// a zero temperature is dropped by omitempty and the server default applies
	if req.Temperature == 0 {
		req.Temperature = math.SmallestNonzeroFloat32
	}
	if opts.JSONMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}
	return req
}

// complete retries transport, rate limit and 5xx failures with exponential backoff
func (c *OpenAIClient) complete(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	var lastErr LLMError
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return openai.ChatCompletionResponse{}, WrapError(ctx.Err(), ErrCodeTimeout)
			case <-time.After(time.Duration(1<<attempt) * 100 * time.Millisecond):
			}
		}

		reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		resp, err := c.client.CreateChatCompletion(reqCtx, req)
		cancel()
		if err == nil {
			return resp, nil
		}

		lastErr = classifyError(err)
		if !lastErr.Retryable() || ctx.Err() != nil {
			break
		}
	}
	return openai.ChatCompletionResponse{}, lastErr
}

func classifyError(err error) LLMError {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return NewLLMError(codeForStatus(apiErr.HTTPStatusCode), apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return NewLLMError(codeForStatus(reqErr.HTTPStatusCode), reqErr.Error())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewLLMError(ErrCodeTimeout, ErrMsgTimeout)
	}
	if errors.Is(err, context.Canceled) {
		return NewLLMError(ErrCodeInvalidRequest, err.Error())
	}
	return NewLLMError(ErrCodeNetworkError, err.Error())
}

func init() {
	RegisterClient(ProviderOpenAI, NewOpenAIClient)
	RegisterClient(ProviderGroq, NewGroqClient)
}
