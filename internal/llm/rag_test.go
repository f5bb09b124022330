package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestRAGService_Answer(t *testing.T) {
	sources := []SourceReference{
		{ID: "c1", FileName: "a.pdf", Content: "Paris is the capital of France."},
		{ID: "c2", FileName: "a.pdf", Content: "France is in Europe."},
	}

	t.Run("prompt carries question and numbered context", func(t *testing.T) {
		client := NewMockClient(t)
		client.On("Generate", mock.Anything, mock.MatchedBy(func(prompt string) bool {
			return strings.Contains(prompt, "Question: What is the capital of France?") &&
				strings.Contains(prompt, "[1] Paris is the capital of France.") &&
				strings.Contains(prompt, "[2] France is in Europe.")
		})).Return(&Response{Text: " Paris \n"}, nil).Once()

		rag := NewRAG(client)
		resp, err := rag.Answer(context.Background(), "What is the capital of France?", sources)
		require.NoError(t, err)
		assert.Equal(t, "Paris", resp.Answer)
		assert.Equal(t, sources, resp.Sources)
	})

	t.Run("sources can be omitted", func(t *testing.T) {
		client := NewMockClient(t)
		client.On("Generate", mock.Anything, mock.Anything).Return(&Response{Text: "Paris"}, nil).Once()

		resp, err := NewRAG(client, WithSources(false)).Answer(context.Background(), "q", sources)
		require.NoError(t, err)
		assert.Empty(t, resp.Sources)
	})

	t.Run("custom template", func(t *testing.T) {
		client := NewMockClient(t)
		client.On("Generate", mock.Anything, "Q=q C=[1] x").Return(&Response{Text: "ok"}, nil).Once()

		rag := NewRAG(client).SetTemplate("Q={{.Question}} C={{.Context}}")
		_, err := rag.Answer(context.Background(), "q", []SourceReference{{Content: "x"}})
		require.NoError(t, err)
	})

	t.Run("empty question", func(t *testing.T) {
		rag := NewRAG(NewMockClient(t))
		_, err := rag.Answer(context.Background(), "  ", sources)
		var llmErr LLMError
		require.ErrorAs(t, err, &llmErr)
		assert.Equal(t, ErrCodeEmptyPrompt, llmErr.Code)
	})

	t.Run("model failure", func(t *testing.T) {
		client := NewMockClient(t)
		client.On("Generate", mock.Anything, mock.Anything).Return(nil, errors.New("boom")).Once()

		_, err := NewRAG(client).Answer(context.Background(), "q", sources)
		assert.ErrorContains(t, err, "boom")
	})
}

func TestConversationalRetrieval(t *testing.T) {
	retrieved := []SourceReference{{Content: "The warranty lasts two years."}}

	t.Run("no history skips condensing", func(t *testing.T) {
		client := NewMockClient(t)
		client.On("Generate", mock.Anything, mock.MatchedBy(func(p string) bool {
			return strings.Contains(p, "Question: How long is the warranty?")
		})).Return(&Response{Text: "Two years."}, nil).Once()

		var searched string
		retriever := RetrieverFunc(func(_ context.Context, q string) ([]SourceReference, error) {
			searched = q
			return retrieved, nil
		})

		chain := NewConversationalRetrieval(NewRAG(client), 0)
		resp, err := chain.Ask(context.Background(), retriever, nil, "How long is the warranty?")
		require.NoError(t, err)
		assert.Equal(t, "Two years.", resp.Answer)
		assert.Equal(t, "How long is the warranty?", searched)
	})

	t.Run("follow-up is condensed before retrieval", func(t *testing.T) {
		history := []Message{
			{Role: RoleUser, Content: "Tell me about the X100 printer"},
			{Role: RoleAssistant, Content: "The X100 is a laser printer."},
		}

		client := NewMockClient(t)
		client.On("Generate", mock.Anything, mock.MatchedBy(func(p string) bool {
			return strings.Contains(p, "Human: Tell me about the X100 printer\nAssistant: The X100 is a laser printer.") &&
				strings.Contains(p, "Follow Up Input: how long is its warranty?")
		})).Return(&Response{Text: "How long is the X100 printer warranty?"}, nil).Once()
		client.On("Generate", mock.Anything, mock.MatchedBy(func(p string) bool {
			return strings.Contains(p, "Question: How long is the X100 printer warranty?")
		})).Return(&Response{Text: "Two years."}, nil).Once()

		var searched string
		retriever := RetrieverFunc(func(_ context.Context, q string) ([]SourceReference, error) {
			searched = q
			return retrieved, nil
		})

		chain := NewConversationalRetrieval(NewRAG(client), 10)
		resp, err := chain.Ask(context.Background(), retriever, history, "how long is its warranty?")
		require.NoError(t, err)
		assert.Equal(t, "How long is the X100 printer warranty?", searched)
		assert.Equal(t, "How long is the X100 printer warranty?", resp.Question)
		assert.Equal(t, "Two years.", resp.Answer)
	})

	t.Run("retriever failure", func(t *testing.T) {
		chain := NewConversationalRetrieval(NewRAG(NewMockClient(t)), 10)
		retriever := RetrieverFunc(func(context.Context, string) ([]SourceReference, error) {
			return nil, errors.New("index offline")
		})

		_, err := chain.Ask(context.Background(), retriever, nil, "q")
		assert.ErrorContains(t, err, "index offline")
	})
}
