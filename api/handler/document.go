package handler

import (
	"bytes"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/doc-extract/api/middleware"
	"github.com/fyerfyer/doc-extract/api/model"
	"github.com/fyerfyer/doc-extract/internal/document"
	"github.com/fyerfyer/doc-extract/internal/services"
	"github.com/fyerfyer/doc-extract/internal/session"
)

// DocumentHandler 处理文档相关的API请求
type DocumentHandler struct {
	documents     *services.DocumentService // 文档服务
	sessions      *session.Manager          // 会话管理
	keepUploads   bool                      // 同步处理时是否保存上传文件
	maxUploadSize int64
	logger        *logrus.Logger // 日志记录器
}

// NewDocumentHandler 创建新的文档处理器。keepUploads 为 true 时同步处理也会保存原文件。
func NewDocumentHandler(documents *services.DocumentService, sessions *session.Manager, keepUploads bool, maxUploadSize int64) *DocumentHandler {
	return &DocumentHandler{
		documents:     documents,
		sessions:      sessions,
		keepUploads:   keepUploads,
		maxUploadSize: maxUploadSize,
		logger:        middleware.GetLogger(),
	}
}

// ProcessDocuments 上传文档并建立会话的向量索引
// POST /api/documents
func (h *DocumentHandler) ProcessDocuments(c *gin.Context) {
	var req model.DocumentProcessRequest
	if err := c.ShouldBind(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("invalid request parameters", err.Error()))
		return
	}
	if len(req.Files) == 0 {
		middleware.HandleError(c, &document.EmptyInputError{})
		return
	}

	sessionID := h.sessions.GetOrCreate(req.SessionID).ID()
	c.Set(middleware.ContextSessionID, sessionID)
	ctx := c.Request.Context()

	docs := make([]document.Document, 0, len(req.Files))
	keys := make([]string, 0, len(req.Files))
	for _, fh := range req.Files {
		if h.maxUploadSize > 0 && fh.Size > h.maxUploadSize {
			middleware.HandleError(c, middleware.NewValidationError("file too large", fh.Filename))
			return
		}
		data, err := readUpload(fh)
		if err != nil {
			middleware.HandleError(c, middleware.NewInternalError("failed to read uploaded file", err.Error()))
			return
		}

		if req.Async || h.keepUploads {
			key, err := h.documents.Upload(ctx, sessionID, fh.Filename, bytes.NewReader(data))
			if err != nil {
				middleware.HandleError(c, err)
				return
			}
			keys = append(keys, key)
		}
		docs = append(docs, document.NewDocument(fh.Filename, data))
	}

	if req.Async {
		run, err := h.documents.Submit(ctx, sessionID, keys)
		if err != nil {
			middleware.HandleError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, model.NewSuccessResponse(model.NewRunInfo(run)))
		return
	}

	result, err := h.documents.Process(ctx, sessionID, docs)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		middleware.FieldSessionID: sessionID,
		"documents":               result.Documents,
		"chunks":                  result.ChunkCount,
	}).Info("Documents processed")
	c.JSON(http.StatusOK, model.NewSuccessResponse(result))
}

// RestoreDocuments 从保存的快照恢复会话的向量索引
// POST /api/documents/restore
func (h *DocumentHandler) RestoreDocuments(c *gin.Context) {
	var req model.SessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("invalid request parameters", err.Error()))
		return
	}
	c.Set(middleware.ContextSessionID, req.SessionID)

	result, err := h.documents.Restore(c.Request.Context(), req.SessionID)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.NewSuccessResponse(result))
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
