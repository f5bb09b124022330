package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// DefaultRAGTemplate answers from retrieved context.
// Variables: {{.Question}} and {{.Context}}
const DefaultRAGTemplate = `Answer the following question based on the provided context.
Provide the most accurate and relevant information.
If the context does not contain the answer, say that you don't know instead of guessing.

Context:
{{.Context}}

Question: {{.Question}}

Answer:`

// ConversationalRAGTemplate is used by the chat flow, where the answer is part of a dialogue
const ConversationalRAGTemplate = `Use the following pieces of context to answer the question at the end.
If you don't know the answer, just say that you don't know, don't try to make up an answer.

{{.Context}}

Question: {{.Question}}
Helpful Answer:`

// formatContext numbers each retrieved chunk
func formatContext(sources []SourceReference) string {
	var sb strings.Builder
	for i, src := range sources {
		fmt.Fprintf(&sb, "[%d] %s\n\n", i+1, src.Content)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// RAGConfig holds answer generation settings
type RAGConfig struct {
	Template       string
	MaxTokens      int
	Temperature    float32
	Timeout        time.Duration
	IncludeSources bool // return the context chunks with the answer
}

// DefaultRAGConfig returns the default settings
func DefaultRAGConfig() *RAGConfig {
	return &RAGConfig{
		Template:       DefaultRAGTemplate,
		MaxTokens:      1024,
		Temperature:    0.2,
		Timeout:        60 * time.Second,
		IncludeSources: true,
	}
}

// RAGService answers questions from retrieved chunks
type RAGService struct {
	Client Client
	config *RAGConfig
	mu     sync.RWMutex
}

// RAGOption configures a RAGService
type RAGOption func(*RAGConfig)

// NewRAG creates a RAG service on top of client
func NewRAG(client Client, opts ...RAGOption) *RAGService {
	cfg := DefaultRAGConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	return &RAGService{
		Client: client,
		config: cfg,
	}
}

// WithTemplate sets the prompt template
func WithTemplate(template string) RAGOption {
	return func(c *RAGConfig) {
		c.Template = template
	}
}

// WithRAGMaxTokens sets the completion limit
func WithRAGMaxTokens(tokens int) RAGOption {
	return func(c *RAGConfig) {
		c.MaxTokens = tokens
	}
}

// WithRAGTemperature sets the temperature
func WithRAGTemperature(temp float32) RAGOption {
	return func(c *RAGConfig) {
		c.Temperature = temp
	}
}

// WithRAGTimeout bounds one answer call
func WithRAGTimeout(timeout time.Duration) RAGOption {
	return func(c *RAGConfig) {
		c.Timeout = timeout
	}
}

// WithSources controls whether sources are returned
func WithSources(include bool) RAGOption {
	return func(c *RAGConfig) {
		c.IncludeSources = include
	}
}

// Answer generates an answer to question from the retrieved sources
func (r *RAGService) Answer(ctx context.Context, question string, sources []SourceReference) (*RAGResponse, error) {
	if strings.TrimSpace(question) == "" {
		return nil, NewLLMError(ErrCodeEmptyPrompt, "question cannot be empty")
	}

	r.mu.RLock()
	cfg := *r.config
	r.mu.RUnlock()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	prompt := buildPrompt(cfg.Template, question, sources)

	response, err := r.Client.Generate(
		ctxWithTimeout,
		prompt,
		WithGenerateMaxTokens(cfg.MaxTokens),
		WithGenerateTemperature(cfg.Temperature),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to generate response: %w", err)
	}

	ragResponse := &RAGResponse{
		Answer:   strings.TrimSpace(response.Text),
		Question: question,
	}
	if cfg.IncludeSources && len(sources) > 0 {
		ragResponse.Sources = append([]SourceReference(nil), sources...)
	}

	return ragResponse, nil
}

func buildPrompt(template, question string, sources []SourceReference) string {
	prompt := strings.ReplaceAll(template, "{{.Question}}", question)
	return strings.ReplaceAll(prompt, "{{.Context}}", formatContext(sources))
}

// SetTemplate replaces the prompt template
func (r *RAGService) SetTemplate(template string) *RAGService {
	r.mu.Lock()
	r.config.Template = template
	r.mu.Unlock()
	return r
}
