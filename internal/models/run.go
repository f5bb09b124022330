package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// RunKind is what a processing run did
type RunKind string

const (
	// RunDocuments extracted, chunked and indexed uploaded documents
	RunDocuments RunKind = "documents"
	// RunListing scraped a page and extracted listing records
	RunListing RunKind = "listing"
)

// RunStatus is the lifecycle state of a run
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Run records one processing run of a session
type Run struct {
	ID           string         `gorm:"primaryKey"`
	SessionID    string         `gorm:"not null;index"`
	Kind         RunKind        `gorm:"not null;size:20;index"`
	Status       RunStatus      `gorm:"not null;size:20;index"`
	Source       string         `gorm:"type:text"` // URL or document names
	TaskID       string         `gorm:"size:64;index"`
	ChunkCount   int            `gorm:"not null;default:0"`
	RowCount     int            `gorm:"not null;default:0"`
	FailedChunks datatypes.JSON `gorm:"type:json"` // chunk indexes skipped under the skip policy
	RawPath      string         `gorm:"size:512"`
	OutputPath   string         `gorm:"size:512"`
	Error        string         `gorm:"type:text"`
	CreatedAt    time.Time      `gorm:"not null;index"`
	UpdatedAt    time.Time      `gorm:"not null"`
	FinishedAt   *time.Time
}

// BeforeCreate sets timestamps and the initial status
func (r *Run) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	if r.Status == "" {
		r.Status = RunPending
	}
	return nil
}

// BeforeUpdate refreshes UpdatedAt
func (r *Run) BeforeUpdate(tx *gorm.DB) error {
	r.UpdatedAt = time.Now()
	return nil
}

// TableName sets the table name
func (Run) TableName() string {
	return "runs"
}

// Finished reports whether the run reached a terminal state
func (r *Run) Finished() bool {
	return r.Status == RunCompleted || r.Status == RunFailed
}
