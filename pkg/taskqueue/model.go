package taskqueue

import (
	"encoding/json"
	"time"
)

// TaskType 任务类型
type TaskType string

const (
	// TaskListingExtract 抓取页面并抽取房源表
	TaskListingExtract TaskType = "listing_extract"
	// TaskDocumentProcess 解析、分块并向量化一批已上传文档
	TaskDocumentProcess TaskType = "document_process"
)

// TaskStatus 任务状态
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusProcessing TaskStatus = "processing"
	StatusCompleted  TaskStatus = "completed"
	StatusFailed     TaskStatus = "failed"
)

// Task is the record kept in redis next to the asynq message
type Task struct {
	ID          string          `json:"id"`
	Type        TaskType        `json:"type"`
	RunID       string          `json:"run_id"` // 关联的运行记录
	Status      TaskStatus      `json:"status"`
	Payload     json.RawMessage `json:"payload"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Attempts    int             `json:"attempts"`
	MaxRetries  int             `json:"max_retries"`
}

// Finished reports whether the task reached a terminal status
func (t *Task) Finished() bool {
	return t.Status == StatusCompleted || t.Status == StatusFailed
}

// ListingExtractPayload 房源抽取任务载荷
type ListingExtractPayload struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// ListingExtractResult 房源抽取任务结果
type ListingExtractResult struct {
	RowCount     int    `json:"row_count"`
	ChunkCount   int    `json:"chunk_count"`
	FailedChunks []int  `json:"failed_chunks,omitempty"`
	RawKey       string `json:"raw_key"`
	OutputKey    string `json:"output_key"`
}

// DocumentProcessPayload 文档处理任务载荷，Keys 为存储中的对象键
type DocumentProcessPayload struct {
	SessionID string   `json:"session_id"`
	Keys      []string `json:"keys"`
}

// DocumentProcessResult 文档处理任务结果
type DocumentProcessResult struct {
	Documents    int `json:"documents"`
	ChunkCount   int `json:"chunk_count"`
	StoreVersion int `json:"store_version"`
}

// TaskInfo 表示任务的元信息
// 用于传递给客户端的简化任务信息
type TaskInfo struct {
	ID          string          `json:"id"`
	Type        TaskType        `json:"type"`
	RunID       string          `json:"run_id"`
	Status      TaskStatus      `json:"status"`
	Error       string          `json:"error,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	Attempts    int             `json:"attempts"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Progress    float64         `json:"progress"`
}

// NewTaskInfo 从Task创建TaskInfo
func NewTaskInfo(task *Task) *TaskInfo {
	return &TaskInfo{
		ID:          task.ID,
		Type:        task.Type,
		RunID:       task.RunID,
		Status:      task.Status,
		Error:       task.Error,
		Result:      task.Result,
		Attempts:    task.Attempts,
		CreatedAt:   task.CreatedAt,
		StartedAt:   task.StartedAt,
		CompletedAt: task.CompletedAt,
		Progress:    getTaskProgress(task),
	}
}

// getTaskProgress 根据任务状态计算进度
func getTaskProgress(task *Task) float64 {
	switch task.Status {
	case StatusProcessing:
		return 50.0
	case StatusCompleted, StatusFailed:
		return 100.0
	default:
		return 0.0
	}
}

// ErrTaskNotFound 任务未找到错误
var ErrTaskNotFound = TaskError("task not found")

// ErrTaskTimeout 任务超时错误
var ErrTaskTimeout = TaskError("task timed out")

// ErrInvalidPayload 无效的任务载荷错误
var ErrInvalidPayload = TaskError("invalid task payload")

// TaskError 任务错误类型
type TaskError string

func (e TaskError) Error() string {
	return string(e)
}

// MarshalPayload 将任务载荷序列化为JSON
func MarshalPayload(payload interface{}) (json.RawMessage, error) {
	if payload == nil {
		return json.RawMessage("{}"), nil
	}
	return json.Marshal(payload)
}

// UnmarshalPayload 将JSON反序列化为任务载荷
func UnmarshalPayload(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return ErrInvalidPayload
	}
	return json.Unmarshal(data, v)
}
