package llm

import (
	"context"
	"fmt"
	"strings"
)

// CondenseQuestionTemplate rewrites a follow-up into a standalone question.
// Variables: {{.History}} and {{.Question}}
const CondenseQuestionTemplate = `Given the following conversation and a follow up question, rephrase the follow up question to be a standalone question, in its original language.

Chat History:
{{.History}}
Follow Up Input: {{.Question}}
Standalone question:`

// Retriever finds the sources relevant to a question
type Retriever interface {
	Retrieve(ctx context.Context, question string) ([]SourceReference, error)
}

// RetrieverFunc adapts a function to Retriever
type RetrieverFunc func(ctx context.Context, question string) ([]SourceReference, error)

// Retrieve calls f
func (f RetrieverFunc) Retrieve(ctx context.Context, question string) ([]SourceReference, error) {
	return f(ctx, question)
}

// ConversationalRetrieval answers follow-up questions over a retriever,
// using the chat history to resolve references in the question
type ConversationalRetrieval struct {
	rag          *RAGService
	historyLimit int
}

// NewConversationalRetrieval creates the chain; historyLimit caps the messages used for condensing
func NewConversationalRetrieval(rag *RAGService, historyLimit int) *ConversationalRetrieval {
	if historyLimit <= 0 {
		historyLimit = 20
	}
	return &ConversationalRetrieval{rag: rag, historyLimit: historyLimit}
}

// Ask condenses question against history, retrieves, and answers.
// The returned response carries the standalone question that was searched.
func (c *ConversationalRetrieval) Ask(ctx context.Context, retriever Retriever, history []Message, question string) (*RAGResponse, error) {
	standalone, err := c.Condense(ctx, history, question)
	if err != nil {
		return nil, err
	}

	sources, err := retriever.Retrieve(ctx, standalone)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve context: %w", err)
	}

	return c.rag.Answer(ctx, standalone, sources)
}

// Condense returns question unchanged when there is no history
func (c *ConversationalRetrieval) Condense(ctx context.Context, history []Message, question string) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", NewLLMError(ErrCodeEmptyPrompt, "question cannot be empty")
	}
	if len(history) == 0 {
		return question, nil
	}
	if len(history) > c.historyLimit {
		history = history[len(history)-c.historyLimit:]
	}

	prompt := strings.ReplaceAll(CondenseQuestionTemplate, "{{.History}}", formatHistory(history))
	prompt = strings.ReplaceAll(prompt, "{{.Question}}", question)

	resp, err := c.rag.Client.Generate(ctx, prompt, WithGenerateTemperature(0))
	if err != nil {
		return "", fmt.Errorf("failed to condense question: %w", err)
	}

	standalone := strings.TrimSpace(resp.Text)
	if standalone == "" {
		return question, nil
	}
	return standalone, nil
}

func formatHistory(history []Message) string {
	var sb strings.Builder
	for _, m := range history {
		switch m.Role {
		case RoleUser:
			sb.WriteString("Human: ")
		case RoleAssistant:
			sb.WriteString("Assistant: ")
		default:
			continue
		}
		sb.WriteString(m.Content)
		sb.WriteByte('\n')
	}
	return strings.TrimRight(sb.String(), "\n")
}
