package services

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/doc-extract/internal/models"
	"github.com/fyerfyer/doc-extract/internal/repository"
)

// Common service errors
var (
	// ErrNoDocuments is returned when a question is asked before any documents were processed
	ErrNoDocuments = errors.New("please upload and process documents before asking questions")
	// ErrEmptyQuestion is returned for a blank question
	ErrEmptyQuestion = errors.New("question cannot be empty")
	// ErrNoText is returned when the processed documents contain no text
	ErrNoText = errors.New("documents contain no text")
	// ErrAsyncDisabled is returned by Submit when no task queue is configured
	ErrAsyncDisabled = errors.New("async processing is not enabled")
)

// RunObserver is told about every finished run
type RunObserver func(kind models.RunKind, status models.RunStatus, rows int)

// runRecorder writes run records when a repository is configured. Record
// failures are logged and never fail the run itself.
type runRecorder struct {
	runs    repository.RunRepository
	observe RunObserver
	logger  *logrus.Logger
}

// start creates the run, or marks an already queued run as running
func (r *runRecorder) start(ctx context.Context, runID string, kind models.RunKind, sessionID, source string) string {
	if r.runs == nil {
		return runID
	}
	repo := r.runs.WithContext(ctx)

	if runID != "" {
		if err := repo.MarkRunning(runID, ""); err != nil {
			r.logger.WithError(err).WithField("run_id", runID).Warn("Failed to mark run as running")
		}
		return runID
	}

	run := &models.Run{
		SessionID: sessionID,
		Kind:      kind,
		Status:    models.RunRunning,
		Source:    source,
	}
	if err := repo.Create(run); err != nil {
		r.logger.WithError(err).WithField("session", sessionID).Warn("Failed to create run record")
		return ""
	}
	return run.ID
}

// queue creates a pending run for a task that has not started yet
func (r *runRecorder) queue(ctx context.Context, kind models.RunKind, sessionID, source string) (*models.Run, error) {
	run := &models.Run{
		SessionID: sessionID,
		Kind:      kind,
		Status:    models.RunPending,
		Source:    source,
	}
	if r.runs == nil {
		return run, nil
	}
	if err := r.runs.WithContext(ctx).Create(run); err != nil {
		return nil, err
	}
	return run, nil
}

func (r *runRecorder) attachTask(ctx context.Context, runID, taskID string) {
	if r.runs == nil || runID == "" {
		return
	}
	if err := r.runs.WithContext(ctx).AttachTask(runID, taskID); err != nil {
		r.logger.WithError(err).WithField("run_id", runID).Warn("Failed to attach task to run")
	}
}

func (r *runRecorder) complete(ctx context.Context, runID string, kind models.RunKind, result repository.RunResult) {
	if r.observe != nil {
		r.observe(kind, models.RunCompleted, result.RowCount)
	}
	if r.runs == nil || runID == "" {
		return
	}
	if err := r.runs.WithContext(ctx).Complete(runID, result); err != nil {
		r.logger.WithError(err).WithField("run_id", runID).Warn("Failed to complete run record")
	}
}

func (r *runRecorder) fail(ctx context.Context, runID string, kind models.RunKind, cause error) {
	if r.observe != nil {
		r.observe(kind, models.RunFailed, 0)
	}
	if r.runs == nil || runID == "" {
		return
	}
	// the request context may already be cancelled
	if err := r.runs.WithContext(context.WithoutCancel(ctx)).Fail(runID, cause.Error()); err != nil {
		r.logger.WithError(err).WithField("run_id", runID).Warn("Failed to mark run as failed")
	}
}
