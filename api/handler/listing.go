package handler

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/doc-extract/api/middleware"
	"github.com/fyerfyer/doc-extract/api/model"
	"github.com/fyerfyer/doc-extract/internal/export"
	"github.com/fyerfyer/doc-extract/internal/services"
)

// ListingHandler 处理房源抓取与导出请求
type ListingHandler struct {
	listings *services.ListingService
	logger   *logrus.Logger
}

// NewListingHandler 创建房源处理器
func NewListingHandler(listings *services.ListingService) *ListingHandler {
	return &ListingHandler{
		listings: listings,
		logger:   middleware.GetLogger(),
	}
}

// RunListing 抓取页面并抽取房源；async 为 true 时放入任务队列
// POST /api/listings
func (h *ListingHandler) RunListing(c *gin.Context) {
	var req model.ListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("invalid request parameters", err.Error()))
		return
	}
	ctx := c.Request.Context()

	if req.Async {
		run, err := h.listings.Submit(ctx, req.SessionID, req.URL)
		if err != nil {
			middleware.HandleError(c, err)
			return
		}
		c.Set(middleware.ContextSessionID, run.SessionID)
		c.JSON(http.StatusAccepted, model.NewSuccessResponse(model.NewRunInfo(run)))
		return
	}

	result, err := h.listings.Process(ctx, req.SessionID, req.URL)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.Set(middleware.ContextSessionID, result.SessionID)

	h.logger.WithFields(logrus.Fields{
		middleware.FieldSessionID: result.SessionID,
		"url":                     req.URL,
		"rows":                    result.RowCount,
	}).Info("Listing run finished")
	c.JSON(http.StatusOK, model.NewSuccessResponse(result))
}

// ExtractText 对已获取的文本执行同样的抽取流程
// POST /api/listings/text
func (h *ListingHandler) ExtractText(c *gin.Context) {
	var req model.ListingTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("invalid request parameters", err.Error()))
		return
	}

	result, err := h.listings.ExtractText(c.Request.Context(), req.SessionID, req.Text)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.Set(middleware.ContextSessionID, result.SessionID)
	c.JSON(http.StatusOK, model.NewSuccessResponse(result))
}

// ExportListing 下载会话最新的房源表
// GET /api/listings/:session_id/export?format=xlsx|csv
func (h *ListingHandler) ExportListing(c *gin.Context) {
	var req model.ExportRequest
	if err := c.ShouldBindUri(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("invalid session ID", err.Error()))
		return
	}
	if err := c.ShouldBindQuery(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("invalid format", err.Error()))
		return
	}
	c.Set(middleware.ContextSessionID, req.SessionID)

	exp := h.listings.Exporter()
	if req.Format != "" {
		var err error
		if exp, err = export.NewExporter(req.Format); err != nil {
			middleware.HandleError(c, middleware.NewValidationError(err.Error()))
			return
		}
	}

	// 先写入缓冲区，失败时仍能返回JSON错误
	var buf bytes.Buffer
	if err := h.listings.Export(req.SessionID, &buf, exp); err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s%s"`, services.OutputName, exp.Extension()))
	c.Data(http.StatusOK, exp.ContentType(), buf.Bytes())
}
