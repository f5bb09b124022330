package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/fyerfyer/doc-extract/internal/database"
	"github.com/fyerfyer/doc-extract/internal/models"
)

// RunRepository stores processing run records
type RunRepository interface {
	Create(run *models.Run) error
	Get(id string) (*models.Run, error)
	// List returns runs newest first; filters accept session_id, kind and status
	List(offset, limit int, filters map[string]interface{}) ([]*models.Run, int64, error)
	// AttachTask records the queue task of a pending run
	AttachTask(id, taskID string) error
	MarkRunning(id, taskID string) error
	Complete(id string, result RunResult) error
	Fail(id string, errMsg string) error
	Delete(id string) error
	WithContext(ctx context.Context) RunRepository
}

// RunResult is what a finished run produced
type RunResult struct {
	ChunkCount   int
	RowCount     int
	FailedChunks []int
	RawPath      string
	OutputPath   string
}

type runRepo struct {
	db *gorm.DB
}

// NewRunRepository uses the global database
func NewRunRepository() RunRepository {
	return &runRepo{db: database.MustDB()}
}

// NewRunRepositoryWithDB uses db, or the global database when nil
func NewRunRepositoryWithDB(db *gorm.DB) RunRepository {
	if db == nil {
		db = database.MustDB()
	}
	return &runRepo{db: db}
}

func (r *runRepo) WithContext(ctx context.Context) RunRepository {
	return &runRepo{db: r.db.WithContext(ctx)}
}

func (r *runRepo) Create(run *models.Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	return r.db.Create(run).Error
}

func (r *runRepo) Get(id string) (*models.Run, error) {
	var run models.Run
	if err := r.db.Where("id = ?", id).First(&run).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrRunNotFound
		}
		return nil, err
	}
	return &run, nil
}

func (r *runRepo) List(offset, limit int, filters map[string]interface{}) ([]*models.Run, int64, error) {
	var (
		runs  []*models.Run
		total int64
	)

	query := r.db.Model(&models.Run{})
	if sessionID, ok := filters["session_id"].(string); ok && sessionID != "" {
		query = query.Where("session_id = ?", sessionID)
	}
	if kind, ok := filters["kind"].(models.RunKind); ok && kind != "" {
		query = query.Where("kind = ?", kind)
	}
	if status, ok := filters["status"].(models.RunStatus); ok && status != "" {
		query = query.Where("status = ?", status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if limit <= 0 {
		limit = 20
	}
	err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&runs).Error
	if err != nil {
		return nil, 0, err
	}
	return runs, total, nil
}

func (r *runRepo) update(id string, values map[string]interface{}) error {
	values["updated_at"] = time.Now()
	res := r.db.Model(&models.Run{}).Where("id = ?", id).Updates(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return models.ErrRunNotFound
	}
	return nil
}

func (r *runRepo) AttachTask(id, taskID string) error {
	return r.update(id, map[string]interface{}{"task_id": taskID})
}

func (r *runRepo) MarkRunning(id, taskID string) error {
	values := map[string]interface{}{"status": models.RunRunning}
	if taskID != "" {
		values["task_id"] = taskID
	}
	return r.update(id, values)
}

func (r *runRepo) Complete(id string, result RunResult) error {
	failed, err := json.Marshal(result.FailedChunks)
	if err != nil {
		return err
	}
	return r.update(id, map[string]interface{}{
		"status":        models.RunCompleted,
		"chunk_count":   result.ChunkCount,
		"row_count":     result.RowCount,
		"failed_chunks": datatypes.JSON(failed),
		"raw_path":      result.RawPath,
		"output_path":   result.OutputPath,
		"finished_at":   time.Now(),
	})
}

func (r *runRepo) Fail(id string, errMsg string) error {
	return r.update(id, map[string]interface{}{
		"status":      models.RunFailed,
		"error":       errMsg,
		"finished_at": time.Now(),
	})
}

func (r *runRepo) Delete(id string) error {
	res := r.db.Where("id = ?", id).Delete(&models.Run{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return models.ErrRunNotFound
	}
	return nil
}
