package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/doc-extract/api/middleware"
	"github.com/fyerfyer/doc-extract/api/model"
	"github.com/fyerfyer/doc-extract/internal/services"
)

// QAHandler 处理问答相关的API请求
type QAHandler struct {
	qaService *services.QAService // 问答服务
	logger    *logrus.Logger      // 日志记录器
}

// NewQAHandler 创建新的问答处理器
func NewQAHandler(qaService *services.QAService) *QAHandler {
	return &QAHandler{
		qaService: qaService,
		logger:    middleware.GetLogger(),
	}
}

// AnswerQuestion 单轮问答，返回答案和检索到的段落
// POST /api/qa
func (h *QAHandler) AnswerQuestion(c *gin.Context) {
	var req model.QARequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("invalid request parameters", err.Error()))
		return
	}
	c.Set(middleware.ContextSessionID, req.SessionID)

	resp, err := h.qaService.Answer(c.Request.Context(), req.SessionID, req.Question)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		middleware.FieldSessionID: req.SessionID,
		"sources":                 len(resp.Sources),
	}).Info("Question answered")
	c.JSON(http.StatusOK, model.NewSuccessResponse(model.NewQAResponse(req.Question, resp)))
}

// Chat 带历史的多轮问答
// POST /api/chat
func (h *QAHandler) Chat(c *gin.Context) {
	var req model.QARequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("invalid request parameters", err.Error()))
		return
	}
	c.Set(middleware.ContextSessionID, req.SessionID)

	resp, err := h.qaService.Chat(c.Request.Context(), req.SessionID, req.Question)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.NewSuccessResponse(model.NewQAResponse(req.Question, resp)))
}

// GetChatHistory 获取会话的聊天记录，按时间正序
// GET /api/chat/:session_id/history
func (h *QAHandler) GetChatHistory(c *gin.Context) {
	var uri model.ChatHistoryRequest
	if err := c.ShouldBindUri(&uri); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("invalid session ID", err.Error()))
		return
	}
	var page model.PaginationRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("invalid query parameters", err.Error()))
		return
	}
	c.Set(middleware.ContextSessionID, uri.SessionID)

	messages, total, err := h.qaService.History(c.Request.Context(), uri.SessionID, page.Offset(), page.GetPageSize())
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	resp := model.ChatHistoryResponse{
		PaginationResponse: model.PaginationResponse{
			Total:    total,
			Page:     page.GetPage(),
			PageSize: page.GetPageSize(),
		},
		Messages: make([]model.ChatMessageResponse, len(messages)),
	}
	for i, m := range messages {
		resp.Messages[i] = model.NewChatMessageResponse(m)
	}
	c.JSON(http.StatusOK, model.NewSuccessResponse(resp))
}
