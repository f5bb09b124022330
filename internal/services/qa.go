package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/doc-extract/internal/cache"
	"github.com/fyerfyer/doc-extract/internal/embedding"
	"github.com/fyerfyer/doc-extract/internal/llm"
	"github.com/fyerfyer/doc-extract/internal/models"
	"github.com/fyerfyer/doc-extract/internal/repository"
	"github.com/fyerfyer/doc-extract/internal/session"
	"github.com/fyerfyer/doc-extract/internal/vectordb"
)

// QAService answers questions over a session's vector store
type QAService struct {
	embedder    embedding.Client
	sessions    *session.Manager
	rag         *llm.RAGService
	chain       *llm.ConversationalRetrieval
	cache       cache.Cache
	cacheTTL    time.Duration
	chats       repository.ChatRepository
	searchLimit int
	minScore    float32
	logger      *logrus.Logger
}

// QAOption configures a QAService
type QAOption func(*QAService)

// WithCache caches single-shot answers for ttl
func WithCache(c cache.Cache, ttl time.Duration) QAOption {
	return func(s *QAService) {
		s.cache = c
		s.cacheTTL = ttl
	}
}

// WithSearchLimit sets how many chunks are retrieved
func WithSearchLimit(limit int) QAOption {
	return func(s *QAService) {
		if limit > 0 {
			s.searchLimit = limit
		}
	}
}

// WithMinScore drops chunks scoring below score
func WithMinScore(score float32) QAOption {
	return func(s *QAService) {
		s.minScore = score
	}
}

// WithChatRepository persists chat turns
func WithChatRepository(repo repository.ChatRepository) QAOption {
	return func(s *QAService) {
		s.chats = repo
	}
}

// WithConversation sets the chain used by Chat
func WithConversation(chain *llm.ConversationalRetrieval) QAOption {
	return func(s *QAService) {
		s.chain = chain
	}
}

// WithQALogger sets the logger
func WithQALogger(logger *logrus.Logger) QAOption {
	return func(s *QAService) {
		s.logger = logger
	}
}

// NewQAService creates the service. Chat uses rag with the conversational
// template unless WithConversation is given.
func NewQAService(embedder embedding.Client, sessions *session.Manager, rag *llm.RAGService, opts ...QAOption) *QAService {
	s := &QAService{
		embedder:    embedder,
		sessions:    sessions,
		rag:         rag,
		cacheTTL:    time.Hour,
		searchLimit: vectordb.DefaultSearchFilter().MaxResults,
		logger:      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.chain == nil {
		chatRAG := llm.NewRAG(rag.Client, llm.WithTemplate(llm.ConversationalRAGTemplate))
		s.chain = llm.NewConversationalRetrieval(chatRAG, 0)
	}
	return s
}

// storeFor returns the session's current store or ErrNoDocuments
func (s *QAService) storeFor(sessionID string) (vectordb.Repository, int, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return nil, 0, ErrNoDocuments
		}
		return nil, 0, err
	}
	store, version := sess.Store()
	if store == nil {
		return nil, 0, ErrNoDocuments
	}
	return store, version, nil
}

func (s *QAService) retriever(store vectordb.Repository) llm.Retriever {
	return llm.RetrieverFunc(func(ctx context.Context, question string) ([]llm.SourceReference, error) {
		vector, err := s.embedder.Embed(ctx, question)
		if err != nil {
			return nil, fmt.Errorf("failed to embed question: %w", err)
		}
		results, err := store.Search(vector, vectordb.SearchFilter{
			MinScore:   s.minScore,
			MaxResults: s.searchLimit,
		})
		if err != nil {
			return nil, fmt.Errorf("search failed: %w", err)
		}

		sources := make([]llm.SourceReference, len(results))
		for i, r := range results {
			sources[i] = llm.SourceReference{
				ID:       r.Entry.ID,
				FileName: r.Entry.Source,
				Content:  r.Entry.Text,
				Score:    r.Score,
				Metadata: map[string]interface{}{
					"position": r.Entry.Position,
					"start":    r.Entry.Start,
				},
			}
		}
		return sources, nil
	})
}

// Answer retrieves context for question and answers it. The sources are
// returned with the answer.
func (s *QAService) Answer(ctx context.Context, sessionID, question string) (*llm.RAGResponse, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	store, version, err := s.storeFor(sessionID)
	if err != nil {
		return nil, err
	}

	// the version keeps answers from a replaced store out of the cache
	key := cache.GenerateCacheKey("qa", sessionID, strconv.Itoa(version), cache.HashKey(question))
	if cached, ok := s.cached(ctx, key); ok {
		return cached, nil
	}

	sources, err := s.retriever(store).Retrieve(ctx, question)
	if err != nil {
		return nil, err
	}
	resp, err := s.rag.Answer(ctx, question, sources)
	if err != nil {
		return nil, err
	}

	s.store(ctx, key, resp)
	s.logger.WithFields(logrus.Fields{
		"session": sessionID,
		"sources": len(sources),
	}).Debug("Question answered")
	return resp, nil
}

func (s *QAService) cached(ctx context.Context, key string) (*llm.RAGResponse, bool) {
	if s.cache == nil {
		return nil, false
	}
	value, found, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.WithError(err).Warn("Answer cache read failed")
		return nil, false
	}
	if !found {
		return nil, false
	}
	var resp llm.RAGResponse
	if err := json.Unmarshal([]byte(value), &resp); err != nil {
		return nil, false
	}
	return &resp, true
}

func (s *QAService) store(ctx context.Context, key string, resp *llm.RAGResponse) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, string(data), s.cacheTTL); err != nil {
		s.logger.WithError(err).Warn("Answer cache write failed")
	}
}

// Chat answers a follow-up question using the session's chat history and
// appends the exchange to it
func (s *QAService) Chat(ctx context.Context, sessionID, question string) (*llm.RAGResponse, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	store, _, err := s.storeFor(sessionID)
	if err != nil {
		return nil, err
	}
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, ErrNoDocuments
	}

	resp, err := s.chain.Ask(ctx, s.retriever(store), sess.History(), question)
	if err != nil {
		return nil, err
	}

	if err := s.sessions.AppendHistory(sessionID,
		llm.Message{Role: llm.RoleUser, Content: question},
		llm.Message{Role: llm.RoleAssistant, Content: resp.Answer},
	); err != nil {
		s.logger.WithError(err).WithField("session", sessionID).Warn("Failed to append chat history")
	}
	s.persist(ctx, sessionID, question, resp)
	return resp, nil
}

func (s *QAService) persist(ctx context.Context, sessionID, question string, resp *llm.RAGResponse) {
	if s.chats == nil {
		return
	}
	repo := s.chats.WithContext(ctx)
	if err := repo.EnsureSession(sessionID, question); err != nil {
		s.logger.WithError(err).WithField("session", sessionID).Warn("Failed to save chat session")
		return
	}

	sources := make([]models.Source, len(resp.Sources))
	for i, src := range resp.Sources {
		pos, _ := src.Metadata["position"].(int)
		sources[i] = models.Source{Source: src.FileName, Position: pos, Text: src.Content, Score: src.Score}
	}
	sourceJSON, _ := json.Marshal(sources)

	err := repo.AppendMessages(
		&models.ChatMessage{SessionID: sessionID, Role: models.RoleUser, Content: question},
		&models.ChatMessage{
			SessionID: sessionID,
			Role:      models.RoleAssistant,
			Content:   resp.Answer,
			Question:  resp.Question,
			Sources:   sourceJSON,
		},
	)
	if err != nil {
		s.logger.WithError(err).WithField("session", sessionID).Warn("Failed to save chat messages")
	}
}

// History returns the persisted conversation, oldest first. Without a chat
// repository the in-memory history of the live session is returned.
func (s *QAService) History(ctx context.Context, sessionID string, offset, limit int) ([]*models.ChatMessage, int64, error) {
	offset = max(offset, 0)
	if s.chats != nil {
		return s.chats.WithContext(ctx).GetMessages(sessionID, offset, limit)
	}

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, 0, models.ErrChatSessionNotFound
	}
	history := sess.History()
	total := int64(len(history))
	if offset > len(history) {
		offset = len(history)
	}
	history = history[offset:]
	if limit > 0 && limit < len(history) {
		history = history[:limit]
	}

	out := make([]*models.ChatMessage, len(history))
	for i, m := range history {
		out[i] = &models.ChatMessage{SessionID: sessionID, Role: models.MessageRole(m.Role), Content: m.Content}
	}
	return out, total, nil
}

// ClearCache drops every cached answer
func (s *QAService) ClearCache(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Clear(ctx)
}
