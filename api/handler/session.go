package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/doc-extract/api/middleware"
	"github.com/fyerfyer/doc-extract/api/model"
	"github.com/fyerfyer/doc-extract/internal/session"
)

// SessionHandler 管理会话
type SessionHandler struct {
	sessions *session.Manager
	logger   *logrus.Logger
}

// NewSessionHandler 创建会话处理器
func NewSessionHandler(sessions *session.Manager) *SessionHandler {
	return &SessionHandler{sessions: sessions, logger: middleware.GetLogger()}
}

// CreateSession 创建空会话
// POST /api/sessions
func (h *SessionHandler) CreateSession(c *gin.Context) {
	sess := h.sessions.Create()
	c.Set(middleware.ContextSessionID, sess.ID())
	c.JSON(http.StatusCreated, model.NewSuccessResponse(sessionResponse(sess)))
}

// GetSession 获取会话状态
// GET /api/sessions/:id
func (h *SessionHandler) GetSession(c *gin.Context) {
	sess, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.NewSuccessResponse(sessionResponse(sess)))
}

// DeleteSession 释放会话及其向量索引
// DELETE /api/sessions/:id
func (h *SessionHandler) DeleteSession(c *gin.Context) {
	id := c.Param("id")
	if err := h.sessions.Teardown(id); err != nil {
		middleware.HandleError(c, err)
		return
	}
	h.logger.WithField(middleware.FieldSessionID, id).Info("Session deleted")
	c.JSON(http.StatusOK, model.NewSuccessResponse(gin.H{"session_id": id}))
}

func sessionResponse(sess *session.Session) model.SessionResponse {
	store, version := sess.Store()
	return model.SessionResponse{
		SessionID:    sess.ID(),
		StoreVersion: version,
		HasDocuments: store != nil,
		HasTable:     sess.Table() != nil,
		HistoryLen:   len(sess.History()),
		CreatedAt:    sess.CreatedAt(),
		UpdatedAt:    sess.UpdatedAt(),
	}
}
