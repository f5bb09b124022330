package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/doc-extract/api/middleware"
	"github.com/fyerfyer/doc-extract/api/model"
	"github.com/fyerfyer/doc-extract/internal/sqlqa"
)

// SQLHandler 自然语言查询数据库
type SQLHandler struct {
	service *sqlqa.Service
	logger  *logrus.Logger
}

// NewSQLHandler 创建处理器
func NewSQLHandler(service *sqlqa.Service) *SQLHandler {
	return &SQLHandler{service: service, logger: middleware.GetLogger()}
}

// Ask 生成查询、执行并用自然语言解释结果
// POST /api/sql
func (h *SQLHandler) Ask(c *gin.Context) {
	var req model.SQLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("invalid request parameters", err.Error()))
		return
	}

	answer, err := h.service.Ask(c.Request.Context(), req.Question)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"query": answer.Query,
		"rows":  len(answer.Result),
	}).Info("SQL question answered")
	c.JSON(http.StatusOK, model.NewSuccessResponse(answer))
}

// Schema 返回提供给模型的数据库结构
// GET /api/sql/schema
func (h *SQLHandler) Schema(c *gin.Context) {
	schema, err := h.service.Schema(c.Request.Context())
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.NewSuccessResponse(gin.H{
		"dialect": schema.Dialect,
		"tables":  len(schema.Tables),
		"schema":  schema.String(),
	}))
}
