package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/doc-extract/api/middleware"
	"github.com/fyerfyer/doc-extract/api/model"
	"github.com/fyerfyer/doc-extract/internal/repository"
)

// RunHandler 查询处理运行记录
type RunHandler struct {
	runs   repository.RunRepository
	logger *logrus.Logger
}

// NewRunHandler 创建运行记录处理器
func NewRunHandler(runs repository.RunRepository) *RunHandler {
	return &RunHandler{runs: runs, logger: middleware.GetLogger()}
}

// GetRun 获取单次运行
// GET /api/runs/:id
func (h *RunHandler) GetRun(c *gin.Context) {
	run, err := h.runs.WithContext(c.Request.Context()).Get(c.Param("id"))
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.NewSuccessResponse(model.NewRunInfo(run)))
}

// ListRuns 分页列出运行记录，最新的在前
// GET /api/runs
func (h *RunHandler) ListRuns(c *gin.Context) {
	var req model.RunListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("invalid query parameters", err.Error()))
		return
	}

	filters := make(map[string]interface{})
	if req.SessionID != "" {
		filters["session_id"] = req.SessionID
	}
	if req.Kind != "" {
		filters["kind"] = req.Kind
	}
	if req.Status != "" {
		filters["status"] = req.Status
	}

	runs, total, err := h.runs.WithContext(c.Request.Context()).List(req.Offset(), req.GetPageSize(), filters)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	resp := model.RunListResponse{
		PaginationResponse: model.PaginationResponse{
			Total:    total,
			Page:     req.GetPage(),
			PageSize: req.GetPageSize(),
		},
		Runs: make([]model.RunInfo, len(runs)),
	}
	for i, run := range runs {
		resp.Runs[i] = model.NewRunInfo(run)
	}
	c.JSON(http.StatusOK, model.NewSuccessResponse(resp))
}
