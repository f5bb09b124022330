package model

import (
	"encoding/json"
	"time"

	"github.com/fyerfyer/doc-extract/internal/llm"
	"github.com/fyerfyer/doc-extract/internal/models"
)

// Response 通用响应结构
type Response struct {
	Code    int         `json:"code"`               // 响应状态码，0表示成功
	Message string      `json:"message"`            // 响应消息
	Data    interface{} `json:"data,omitempty"`     // 响应数据，可能为空
	TraceID string      `json:"trace_id,omitempty"` // 调用链追踪ID
}

// NewSuccessResponse 创建成功响应
func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Code:    0,
		Message: "success",
		Data:    data,
	}
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(code int, message string) *Response {
	return &Response{
		Code:    code,
		Message: message,
	}
}

// SessionResponse 会话信息
type SessionResponse struct {
	SessionID    string    `json:"session_id"`
	StoreVersion int       `json:"store_version"`
	HasDocuments bool      `json:"has_documents"`
	HasTable     bool      `json:"has_table"`
	HistoryLen   int       `json:"history_len"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// QASourceInfo 问答来源信息
type QASourceInfo struct {
	Text     string  `json:"text"`     // 相关文本段落
	FileName string  `json:"filename"` // 来源文件
	Position int     `json:"position"` // 段落位置
	Score    float32 `json:"score"`
}

// QAResponse 问答响应
type QAResponse struct {
	Question   string         `json:"question"`             // 用户问题
	Standalone string         `json:"standalone,omitempty"` // 聊天时改写后的独立问题
	Answer     string         `json:"answer"`               // 模型生成的回答
	Sources    []QASourceInfo `json:"sources"`              // 来源信息
}

// NewQAResponse 由RAG结果构建问答响应
func NewQAResponse(question string, resp *llm.RAGResponse) QAResponse {
	out := QAResponse{
		Question: question,
		Answer:   resp.Answer,
		Sources:  ConvertToSourceInfo(resp.Sources),
	}
	if resp.Question != "" && resp.Question != question {
		out.Standalone = resp.Question
	}
	return out
}

// ConvertToSourceInfo 将检索结果转换为来源信息
func ConvertToSourceInfo(sources []llm.SourceReference) []QASourceInfo {
	out := make([]QASourceInfo, len(sources))
	for i, src := range sources {
		out[i] = QASourceInfo{
			Text:     src.Content,
			FileName: src.FileName,
			Position: metadataInt(src.Metadata, "position"),
			Score:    src.Score,
		}
	}
	return out
}

// 缓存过的答案经过JSON往返，数字变为float64
func metadataInt(meta map[string]interface{}, key string) int {
	switch v := meta[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

// RunInfo 运行记录
type RunInfo struct {
	ID           string     `json:"run_id"`
	SessionID    string     `json:"session_id"`
	Kind         string     `json:"kind"`
	Status       string     `json:"status"`
	Source       string     `json:"source,omitempty"`
	TaskID       string     `json:"task_id,omitempty"`
	ChunkCount   int        `json:"chunk_count"`
	RowCount     int        `json:"row_count"`
	FailedChunks []int      `json:"failed_chunks,omitempty"`
	RawPath      string     `json:"raw_path,omitempty"`
	OutputPath   string     `json:"output_path,omitempty"`
	Error        string     `json:"error,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

// NewRunInfo 转换运行记录
func NewRunInfo(run *models.Run) RunInfo {
	info := RunInfo{
		ID:         run.ID,
		SessionID:  run.SessionID,
		Kind:       string(run.Kind),
		Status:     string(run.Status),
		Source:     run.Source,
		TaskID:     run.TaskID,
		ChunkCount: run.ChunkCount,
		RowCount:   run.RowCount,
		RawPath:    run.RawPath,
		OutputPath: run.OutputPath,
		Error:      run.Error,
		CreatedAt:  run.CreatedAt,
		FinishedAt: run.FinishedAt,
	}
	if len(run.FailedChunks) > 0 {
		_ = json.Unmarshal(run.FailedChunks, &info.FailedChunks)
	}
	return info
}

// RunListResponse 运行记录列表响应
type RunListResponse struct {
	PaginationResponse
	Runs []RunInfo `json:"runs"`
}

// PaginationResponse 分页响应信息
type PaginationResponse struct {
	Total    int64 `json:"total"`     // 总记录数
	Page     int   `json:"page"`      // 当前页码
	PageSize int   `json:"page_size"` // 每页大小
}
