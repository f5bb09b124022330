package taskqueue

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

// Permanent marks err so the task is failed without further retries
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
}

// lastAttempt reports whether a failure ends the task. Outside an asynq
// server there is no retry count, so every failure is final.
func lastAttempt(ctx context.Context, err error) bool {
	if errors.Is(err, asynq.SkipRetry) {
		return true
	}
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return true
	}
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	if !ok {
		return true
	}
	return retried >= maxRetry
}

// runTask moves a task through processing to completed or failed around
// one handler call, notifying waiters after every transition
func runTask(ctx context.Context, q Queue, h Handler, taskID string, logger *logrus.Logger) error {
	log := logger.WithField("task_id", taskID)

	task, err := q.GetTask(ctx, taskID)
	if err != nil {
		log.WithError(err).Error("Failed to get task info")
		if errors.Is(err, ErrTaskNotFound) {
			return Permanent(err)
		}
		return err
	}
	log = log.WithFields(logrus.Fields{"task_type": task.Type, "run_id": task.RunID})

	if err := q.UpdateTaskStatus(ctx, taskID, StatusProcessing, nil, ""); err != nil {
		log.WithError(err).Error("Failed to update task status to processing")
	}
	notify(ctx, q, taskID, log)

	result, err := h.ProcessTask(ctx, task)
	if err != nil {
		status := StatusPending
		if lastAttempt(ctx, err) {
			status = StatusFailed
		}
		if updateErr := q.UpdateTaskStatus(ctx, taskID, status, nil, err.Error()); updateErr != nil {
			log.WithError(updateErr).Error("Failed to update task status after failure")
		}
		notify(ctx, q, taskID, log)
		log.WithError(err).WithField("status", status).Warn("Task failed")
		return err
	}

	if err := q.UpdateTaskStatus(ctx, taskID, StatusCompleted, result, ""); err != nil {
		log.WithError(err).Error("Failed to update task status after completion")
	}
	notify(ctx, q, taskID, log)
	log.Info("Task completed")
	return nil
}

func notify(ctx context.Context, q Queue, taskID string, log *logrus.Entry) {
	if err := q.NotifyTaskUpdate(ctx, taskID); err != nil {
		log.WithError(err).Debug("Failed to publish task update")
	}
}
