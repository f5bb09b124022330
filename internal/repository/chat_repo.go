package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fyerfyer/doc-extract/internal/database"
	"github.com/fyerfyer/doc-extract/internal/models"
)

// ChatRepository stores conversations
type ChatRepository interface {
	// EnsureSession creates the session row on first use
	EnsureSession(id, title string) error
	GetSession(id string) (*models.ChatSession, error)
	DeleteSession(id string) error
	// AppendMessages stores messages in order and touches the session
	AppendMessages(messages ...*models.ChatMessage) error
	GetMessages(sessionID string, offset, limit int) ([]*models.ChatMessage, int64, error)
	CountMessages(sessionID string) (int64, error)
	WithContext(ctx context.Context) ChatRepository
}

type chatRepo struct {
	db *gorm.DB
}

// NewChatRepository uses the global database
func NewChatRepository() ChatRepository {
	return &chatRepo{db: database.MustDB()}
}

// NewChatRepositoryWithDB uses db, or the global database when nil
func NewChatRepositoryWithDB(db *gorm.DB) ChatRepository {
	if db == nil {
		db = database.MustDB()
	}
	return &chatRepo{db: db}
}

func (r *chatRepo) WithContext(ctx context.Context) ChatRepository {
	return &chatRepo{db: r.db.WithContext(ctx)}
}

func (r *chatRepo) EnsureSession(id, title string) error {
	if id == "" {
		return errors.New("session ID cannot be empty")
	}
	if len([]rune(title)) > 80 {
		title = string([]rune(title)[:80])
	}
	session := &models.ChatSession{ID: id, Title: title}
	return r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(session).Error
}

func (r *chatRepo) GetSession(id string) (*models.ChatSession, error) {
	var session models.ChatSession
	if err := r.db.Where("id = ?", id).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrChatSessionNotFound
		}
		return nil, err
	}
	return &session, nil
}

func (r *chatRepo) DeleteSession(id string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", id).Delete(&models.ChatMessage{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&models.ChatSession{}).Error
	})
}

func (r *chatRepo) AppendMessages(messages ...*models.ChatMessage) error {
	if len(messages) == 0 {
		return nil
	}
	return r.db.Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		for i, m := range messages {
			if m.SessionID == "" {
				return errors.New("session ID cannot be empty")
			}
			if m.CreatedAt.IsZero() {
				// keep insertion order stable when timestamps collide
				m.CreatedAt = now.Add(time.Duration(i) * time.Microsecond)
			}
			if err := tx.Create(m).Error; err != nil {
				return err
			}
		}
		return tx.Model(&models.ChatSession{}).
			Where("id = ?", messages[0].SessionID).
			Update("updated_at", now).Error
	})
}

func (r *chatRepo) GetMessages(sessionID string, offset, limit int) ([]*models.ChatMessage, int64, error) {
	var exists int64
	if err := r.db.Model(&models.ChatSession{}).Where("id = ?", sessionID).Count(&exists).Error; err != nil {
		return nil, 0, err
	}
	if exists == 0 {
		return nil, 0, models.ErrChatSessionNotFound
	}

	var total int64
	if err := r.db.Model(&models.ChatMessage{}).Where("session_id = ?", sessionID).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if limit <= 0 {
		limit = 50
	}
	var messages []*models.ChatMessage
	err := r.db.Where("session_id = ?", sessionID).
		Order("created_at ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, 0, err
	}
	return messages, total, nil
}

func (r *chatRepo) CountMessages(sessionID string) (int64, error) {
	var count int64
	err := r.db.Model(&models.ChatMessage{}).Where("session_id = ?", sessionID).Count(&count).Error
	return count, err
}
