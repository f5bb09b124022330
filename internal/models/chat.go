package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// MessageRole is the author of a chat message
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// ChatSession is the persisted side of a conversation
type ChatSession struct {
	ID        string    `gorm:"primaryKey"`
	Title     string    `gorm:"not null"` // first question, truncated
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// BeforeCreate sets timestamps
func (cs *ChatSession) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if cs.CreatedAt.IsZero() {
		cs.CreatedAt = now
	}
	cs.UpdatedAt = now
	return nil
}

// TableName sets the table name
func (ChatSession) TableName() string {
	return "chat_sessions"
}

// ChatMessage is one turn of a conversation
type ChatMessage struct {
	ID        uint           `gorm:"primaryKey;autoIncrement"`
	SessionID string         `gorm:"not null;index"`
	Role      MessageRole    `gorm:"not null;type:varchar(20)"`
	Content   string         `gorm:"type:text;not null"`
	Question  string         `gorm:"type:text"` // standalone question used for retrieval
	Sources   datatypes.JSON `gorm:"type:json"`
	CreatedAt time.Time      `gorm:"not null;index"`
}

// BeforeCreate sets CreatedAt
func (cm *ChatMessage) BeforeCreate(tx *gorm.DB) error {
	if cm.CreatedAt.IsZero() {
		cm.CreatedAt = time.Now()
	}
	return nil
}

// TableName sets the table name
func (ChatMessage) TableName() string {
	return "chat_messages"
}

// Source is a chunk an answer was grounded on
type Source struct {
	Source   string  `json:"source"`
	Position int     `json:"position"`
	Text     string  `json:"text"`
	Score    float32 `json:"score,omitempty"`
}
