package model

import (
	"mime/multipart"
)

// PaginationRequest 分页请求参数
type PaginationRequest struct {
	Page     int `form:"page" json:"page" binding:"omitempty,min=1,max=1000000"` // 当前页码，从1开始
	PageSize int `form:"page_size" json:"page_size" binding:"omitempty,min=1"`   // 每页记录数
}

// MaxPage 页码上限
const MaxPage = 1000000

// GetPage 获取页码，默认为1，最大为 MaxPage
func (p *PaginationRequest) GetPage() int {
	if p.Page <= 0 {
		return 1
	}
	return min(p.Page, MaxPage)
}

// GetPageSize 获取每页记录数，默认为10，最大为100
func (p *PaginationRequest) GetPageSize() int {
	if p.PageSize <= 0 {
		return 10
	}
	if p.PageSize > 100 {
		return 100
	}
	return p.PageSize
}

// Offset 返回分页偏移量
func (p *PaginationRequest) Offset() int {
	return (p.GetPage() - 1) * p.GetPageSize()
}

// DocumentProcessRequest 上传并处理文档。async 为 true 时交给任务队列。
type DocumentProcessRequest struct {
	SessionID string                  `form:"session_id"`
	Files     []*multipart.FileHeader `form:"files" binding:"required"`
	Async     bool                    `form:"async"`
}

// SessionRequest 只携带会话ID的请求
type SessionRequest struct {
	SessionID string `json:"session_id" binding:"required"`
}

// QARequest 问答请求
type QARequest struct {
	SessionID string `json:"session_id" binding:"required"`
	Question  string `json:"question" binding:"required"`
}

// ChatHistoryRequest 获取聊天历史请求
type ChatHistoryRequest struct {
	SessionID string `uri:"session_id" binding:"required"`
}

// ListingRequest 抓取一个房源页面
type ListingRequest struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url" binding:"required,url"`
	Async     bool   `json:"async"`
}

// ListingTextRequest 从已获取的文本中抽取房源
type ListingTextRequest struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text" binding:"required"`
}

// ExportRequest 下载会话最新的房源表
type ExportRequest struct {
	SessionID string `uri:"session_id" binding:"required"`
	Format    string `form:"format" binding:"omitempty,oneof=xlsx csv"`
}

// RunListRequest 运行记录列表请求
type RunListRequest struct {
	PaginationRequest
	SessionID string `form:"session_id"`
	Kind      string `form:"kind" binding:"omitempty,oneof=documents listing"`
	Status    string `form:"status" binding:"omitempty,oneof=pending running completed failed"`
}

// SQLRequest 自然语言查询数据库
type SQLRequest struct {
	Question string `json:"question" binding:"required"`
}
