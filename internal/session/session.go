package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/doc-extract/internal/listing"
	"github.com/fyerfyer/doc-extract/internal/llm"
	"github.com/fyerfyer/doc-extract/internal/vectordb"
)

// ErrSessionNotFound is returned for unknown or expired session IDs
var ErrSessionNotFound = errors.New("session not found")

// Session is the per-user state: the current vector store, chat history and
// the last listing table. Each replacement supersedes the previous value.
type Session struct {
	mu           sync.RWMutex
	id           string
	store        vectordb.Repository
	storeVersion int
	history      []llm.Message
	table        *listing.ResultTable
	createdAt    time.Time
	updatedAt    time.Time
	closed       bool
}

// ID returns the session ID
func (s *Session) ID() string {
	return s.id
}

// Store returns the current vector store and its version; nil before the
// first document run
func (s *Session) Store() (vectordb.Repository, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store, s.storeVersion
}

// History returns a copy of the chat history
func (s *Session) History() []llm.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]llm.Message, len(s.history))
	copy(out, s.history)
	return out
}

// Table returns the last listing table, or nil
func (s *Session) Table() *listing.ResultTable {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.table
}

// CreatedAt returns the creation time
func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// UpdatedAt returns the last modification time
func (s *Session) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt
}

func (s *Session) replaceStore(repo vectordb.Repository) (old vectordb.Repository, version int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, 0, ErrSessionNotFound
	}
	old = s.store
	s.store = repo
	s.storeVersion++
	// a new document set starts a new conversation
	s.history = nil
	s.updatedAt = time.Now()
	return old, s.storeVersion, nil
}

func (s *Session) replaceTable(table *listing.ResultTable) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionNotFound
	}
	s.table = table
	s.updatedAt = time.Now()
	return nil
}

func (s *Session) appendHistory(msgs []llm.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionNotFound
	}
	s.history = append(s.history, msgs...)
	s.updatedAt = time.Now()
	return nil
}

// teardown closes the store; the session rejects further writes
func (s *Session) teardown() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.history = nil
	s.table = nil
	if s.store == nil {
		return nil
	}
	err := s.store.Close()
	s.store = nil
	return err
}

// Manager holds live sessions and tears them down after an idle TTL
type Manager struct {
	items  *gocache.Cache
	logger *logrus.Logger
}

// Config is the session section of the app config
type Config struct {
	IdleTTL         time.Duration `mapstructure:"idle_ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// NewManager creates a session manager
func NewManager(cfg Config, logger *logrus.Logger) *Manager {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 2 * time.Hour
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	m := &Manager{
		items:  gocache.New(cfg.IdleTTL, cfg.CleanupInterval),
		logger: logger,
	}
	m.items.OnEvicted(func(id string, v interface{}) {
		s, ok := v.(*Session)
		if !ok {
			return
		}
		if err := s.teardown(); err != nil {
			m.logger.WithError(err).WithField("session", id).Warn("Failed to close session store")
			return
		}
		m.logger.WithField("session", id).Debug("Session torn down")
	})
	return m
}

// Create starts a new session
func (m *Manager) Create() *Session {
	return m.create(uuid.NewString())
}

func (m *Manager) create(id string) *Session {
	now := time.Now()
	s := &Session{id: id, createdAt: now, updatedAt: now}
	m.items.SetDefault(id, s)
	return s
}

// Get returns a live session and resets its idle timer. An expired entry
// the janitor has not collected yet is torn down here.
func (m *Manager) Get(id string) (*Session, error) {
	v, ok := m.items.Get(id)
	if !ok {
		m.items.Delete(id)
		return nil, ErrSessionNotFound
	}
	s := v.(*Session)
	m.items.SetDefault(id, s)
	return s, nil
}

// GetOrCreate returns the session for id, creating it when absent. An empty
// id creates a session with a fresh ID.
func (m *Manager) GetOrCreate(id string) *Session {
	if id == "" {
		return m.Create()
	}
	if s, err := m.Get(id); err == nil {
		return s
	}
	return m.create(id)
}

// ReplaceStore swaps in a new vector store, closes the old one and clears
// the chat history. It returns the new store version.
func (m *Manager) ReplaceStore(id string, repo vectordb.Repository) (int, error) {
	s, err := m.Get(id)
	if err != nil {
		return 0, err
	}
	old, version, err := s.replaceStore(repo)
	if err != nil {
		return 0, err
	}
	if old != nil {
		if err := old.Close(); err != nil {
			m.logger.WithError(err).WithField("session", id).Warn("Failed to close replaced store")
		}
	}
	return version, nil
}

// ReplaceTable sets the latest listing table
func (m *Manager) ReplaceTable(id string, table *listing.ResultTable) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	return s.replaceTable(table)
}

// AppendHistory adds chat turns
func (m *Manager) AppendHistory(id string, msgs ...llm.Message) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	return s.appendHistory(msgs)
}

// Teardown removes the session and closes its store
func (m *Manager) Teardown(id string) error {
	if _, err := m.Get(id); err != nil {
		return err
	}
	m.items.Delete(id)
	return nil
}

// Count returns the number of live sessions
func (m *Manager) Count() int {
	return m.items.ItemCount()
}

// Close tears down every session, expired ones included
func (m *Manager) Close() {
	m.items.DeleteExpired()
	for id := range m.items.Items() {
		m.items.Delete(id)
	}
}
