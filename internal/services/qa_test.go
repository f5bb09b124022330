package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fyerfyer/doc-extract/internal/cache"
	"github.com/fyerfyer/doc-extract/internal/document"
	"github.com/fyerfyer/doc-extract/internal/llm"
	"github.com/fyerfyer/doc-extract/internal/models"
	"github.com/fyerfyer/doc-extract/internal/repository"
)

type qaFixture struct {
	qa       *QAService
	docs     *DocumentService
	client   *llm.MockClient
	embedder *wordEmbedder
}

func newQAFixture(t *testing.T, opts ...QAOption) *qaFixture {
	t.Helper()
	docs, embedder := newDocumentService(t)
	client := llm.NewMockClient(t)

	opts = append([]QAOption{WithQALogger(quietLogger())}, opts...)
	qa := NewQAService(embedder, docs.sessions, llm.NewRAG(client), opts...)

	_, err := docs.Process(context.Background(), "s1", []document.Document{
		document.NewTextDocument("pets.txt", "Cats sleep most of the day. Dogs need daily walks outside."),
	})
	require.NoError(t, err)
	return &qaFixture{qa: qa, docs: docs, client: client, embedder: embedder}
}

func promptContains(parts ...string) interface{} {
	return mock.MatchedBy(func(prompt string) bool {
		for _, p := range parts {
			if !strings.Contains(prompt, p) {
				return false
			}
		}
		return true
	})
}

func TestQAService_Answer(t *testing.T) {
	f := newQAFixture(t)
	f.client.On("Generate", mock.Anything, promptContains("Question: How long do cats sleep?", "Cats sleep")).
		Return(&llm.Response{Text: " Most of the day. "}, nil).Once()

	resp, err := f.qa.Answer(context.Background(), "s1", "How long do cats sleep?")
	require.NoError(t, err)
	assert.Equal(t, "Most of the day.", resp.Answer)
	require.NotEmpty(t, resp.Sources)
	assert.Equal(t, "pets.txt", resp.Sources[0].FileName)
}

func TestQAService_AnswerErrors(t *testing.T) {
	f := newQAFixture(t)
	ctx := context.Background()

	_, err := f.qa.Answer(ctx, "s1", "   ")
	assert.ErrorIs(t, err, ErrEmptyQuestion)

	_, err = f.qa.Answer(ctx, "unknown", "anything?")
	assert.ErrorIs(t, err, ErrNoDocuments)

	empty := f.docs.sessions.Create()
	_, err = f.qa.Answer(ctx, empty.ID(), "anything?")
	assert.ErrorIs(t, err, ErrNoDocuments)

	boom := errors.New("provider down")
	f.client.On("Generate", mock.Anything, mock.Anything).Return(nil, boom).Once()
	_, err = f.qa.Answer(ctx, "s1", "Do dogs need walks?")
	assert.ErrorIs(t, err, boom)
}

func TestQAService_AnswerCached(t *testing.T) {
	c, err := cache.NewMemoryCache(cache.DefaultConfig())
	require.NoError(t, err)
	f := newQAFixture(t, WithCache(c, time.Minute))
	ctx := context.Background()

	f.client.On("Generate", mock.Anything, mock.Anything).Return(&llm.Response{Text: "Daily."}, nil).Once()

	first, err := f.qa.Answer(ctx, "s1", "Do dogs need walks?")
	require.NoError(t, err)
	second, err := f.qa.Answer(ctx, "s1", "  Do dogs need walks?  ")
	require.NoError(t, err)
	assert.Equal(t, first.Answer, second.Answer)
	assert.Len(t, second.Sources, len(first.Sources))

	// a new store version misses the cache
	_, err = f.docs.Process(ctx, "s1", []document.Document{document.NewTextDocument("birds.txt", "Birds fly south.")})
	require.NoError(t, err)
	f.client.On("Generate", mock.Anything, mock.Anything).Return(&llm.Response{Text: "No idea."}, nil).Once()

	third, err := f.qa.Answer(ctx, "s1", "Do dogs need walks?")
	require.NoError(t, err)
	assert.Equal(t, "No idea.", third.Answer)

	require.NoError(t, f.qa.ClearCache(ctx))
}

func TestQAService_Chat(t *testing.T) {
	chats := repository.NewChatRepositoryWithDB(newTestDB(t))
	f := newQAFixture(t, WithChatRepository(chats))
	ctx := context.Background()

	// first turn: no history, no condensing
	f.client.On("Generate", mock.Anything, promptContains("Question: What do dogs need?")).
		Return(&llm.Response{Text: "Daily walks."}, nil).Once()

	resp, err := f.qa.Chat(ctx, "s1", "What do dogs need?")
	require.NoError(t, err)
	assert.Equal(t, "Daily walks.", resp.Answer)

	// second turn is condensed against the history first
	f.client.On("Generate", mock.Anything, promptContains("Human: What do dogs need?", "Assistant: Daily walks.", "Follow Up Input: And cats?")).
		Return(&llm.Response{Text: "What do cats need?"}, nil).Once()
	f.client.On("Generate", mock.Anything, promptContains("Question: What do cats need?")).
		Return(&llm.Response{Text: "Sleep."}, nil).Once()

	resp, err = f.qa.Chat(ctx, "s1", "And cats?")
	require.NoError(t, err)
	assert.Equal(t, "Sleep.", resp.Answer)
	assert.Equal(t, "What do cats need?", resp.Question)

	sess, err := f.docs.sessions.Get("s1")
	require.NoError(t, err)
	assert.Len(t, sess.History(), 4)

	msgs, total, err := f.qa.History(ctx, "s1", 0, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 4, total)
	require.Len(t, msgs, 4)
	assert.Equal(t, models.RoleUser, msgs[2].Role)
	assert.Equal(t, "And cats?", msgs[2].Content)
	assert.Equal(t, "What do cats need?", msgs[3].Question)

	saved, err := chats.GetSession("s1")
	require.NoError(t, err)
	assert.Equal(t, "What do dogs need?", saved.Title)
}

func TestQAService_ChatHistoryClearedByNewDocuments(t *testing.T) {
	f := newQAFixture(t)
	ctx := context.Background()

	f.client.On("Generate", mock.Anything, mock.Anything).Return(&llm.Response{Text: "Walks."}, nil).Once()
	_, err := f.qa.Chat(ctx, "s1", "What do dogs need?")
	require.NoError(t, err)

	msgs, total, err := f.qa.History(ctx, "s1", 0, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, msgs, 2)

	_, err = f.docs.Process(ctx, "s1", []document.Document{document.NewTextDocument("birds.txt", "Birds fly south.")})
	require.NoError(t, err)

	_, total, err = f.qa.History(ctx, "s1", 0, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 0, total)
}

func TestQAService_HistoryNegativeOffset(t *testing.T) {
	f := newQAFixture(t)
	ctx := context.Background()

	f.client.On("Generate", mock.Anything, mock.Anything).Return(&llm.Response{Text: "Walks."}, nil).Once()
	_, err := f.qa.Chat(ctx, "s1", "What do dogs need?")
	require.NoError(t, err)

	msgs, total, err := f.qa.History(ctx, "s1", -20, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, msgs, 2)
}

func TestQAService_ChatBeforeDocuments(t *testing.T) {
	f := newQAFixture(t)
	_, err := f.qa.Chat(context.Background(), "nobody", "hello?")
	assert.ErrorIs(t, err, ErrNoDocuments)
	assert.Equal(t, "please upload and process documents before asking questions", err.Error())
}
