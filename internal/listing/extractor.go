package listing

import (
	"context"
	"fmt"
	"strings"

	"github.com/fyerfyer/doc-extract/internal/llm"
)

// ListingPrompt asks the model for every property in {document}
const ListingPrompt = `you are an intelligent text extraction and conversion assistant.

if you do not have the information about a certain field, please leave it empty.

get from each property the following information:
- address
- price
- property type
- bedrooms
- bathrooms
- square footage

Answer with a single JSON object of the form
{"properties": [{"address": "...", "price": "...", "property_type": "...", "bedrooms": "...", "bathrooms": "...", "square_footage": "..."}]}
using null for any field you do not have.

{document}
`

// StructuredExtractor turns raw text into records
type StructuredExtractor interface {
	Extract(ctx context.Context, text string) ([]Record, error)
}

// ExtractorFunc adapts a function to StructuredExtractor
type ExtractorFunc func(ctx context.Context, text string) ([]Record, error)

// Extract calls f
func (f ExtractorFunc) Extract(ctx context.Context, text string) ([]Record, error) {
	return f(ctx, text)
}

// LLMExtractor prompts a chat model and decodes its JSON reply
type LLMExtractor struct {
	client    llm.Client
	prompt    string
	maxTokens int
}

// LLMExtractorOption configures an LLMExtractor
type LLMExtractorOption func(*LLMExtractor)

// WithPrompt replaces the prompt; it must contain {document}
func WithPrompt(prompt string) LLMExtractorOption {
	return func(e *LLMExtractor) {
		e.prompt = prompt
	}
}

// WithMaxTokens bounds the reply length
func WithMaxTokens(n int) LLMExtractorOption {
	return func(e *LLMExtractor) {
		e.maxTokens = n
	}
}

// NewLLMExtractor creates an extractor over client
func NewLLMExtractor(client llm.Client, opts ...LLMExtractorOption) *LLMExtractor {
	e := &LLMExtractor{
		client:    client,
		prompt:    ListingPrompt,
		maxTokens: 4096,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract runs one deterministic JSON completion over text
func (e *LLMExtractor) Extract(ctx context.Context, text string) ([]Record, error) {
	prompt := strings.ReplaceAll(e.prompt, "{document}", text)

	resp, err := e.client.Generate(ctx, prompt,
		llm.WithGenerateTemperature(0),
		llm.WithGenerateMaxTokens(e.maxTokens),
		llm.WithGenerateJSON(),
	)
	if err != nil {
		return nil, fmt.Errorf("listing completion: %w", err)
	}
	return DecodeListing(resp.Text)
}
