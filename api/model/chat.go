package model

import (
	"encoding/json"
	"time"

	"github.com/fyerfyer/doc-extract/internal/models"
)

// ChatMessageResponse 聊天消息响应对象
type ChatMessageResponse struct {
	ID         uint           `json:"id,omitempty"`         // 消息ID，未持久化时为空
	SessionID  string         `json:"session_id"`           // 会话ID
	Role       string         `json:"role"`                 // 消息角色
	Content    string         `json:"content"`              // 消息内容
	Standalone string         `json:"standalone,omitempty"` // 检索时使用的独立问题
	CreatedAt  *time.Time     `json:"created_at,omitempty"` // 创建时间
	Sources    []QASourceInfo `json:"sources,omitempty"`    // 引用来源
}

// ChatHistoryResponse 聊天历史响应
type ChatHistoryResponse struct {
	PaginationResponse
	Messages []ChatMessageResponse `json:"messages"`
}

// NewChatMessageResponse 转换聊天消息
func NewChatMessageResponse(m *models.ChatMessage) ChatMessageResponse {
	out := ChatMessageResponse{
		ID:         m.ID,
		SessionID:  m.SessionID,
		Role:       string(m.Role),
		Content:    m.Content,
		Standalone: m.Question,
	}
	if !m.CreatedAt.IsZero() {
		created := m.CreatedAt
		out.CreatedAt = &created
	}
	if len(m.Sources) > 0 {
		var sources []models.Source
		if err := json.Unmarshal(m.Sources, &sources); err == nil {
			out.Sources = make([]QASourceInfo, len(sources))
			for i, src := range sources {
				out.Sources[i] = QASourceInfo{
					Text:     src.Text,
					FileName: src.Source,
					Position: src.Position,
					Score:    src.Score,
				}
			}
		}
	}
	return out
}
