package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/doc-extract/api/model"
	"github.com/fyerfyer/doc-extract/internal/document"
	"github.com/fyerfyer/doc-extract/internal/embedding"
	"github.com/fyerfyer/doc-extract/internal/listing"
	"github.com/fyerfyer/doc-extract/internal/llm"
	"github.com/fyerfyer/doc-extract/internal/models"
	"github.com/fyerfyer/doc-extract/internal/scraper"
	"github.com/fyerfyer/doc-extract/internal/services"
	"github.com/fyerfyer/doc-extract/internal/session"
	"github.com/fyerfyer/doc-extract/internal/sqlqa"
	"github.com/fyerfyer/doc-extract/pkg/storage"
	"github.com/fyerfyer/doc-extract/pkg/taskqueue"
)

// 定义应用中的错误类型常量
const (
	ErrorTypeValidation    = "VALIDATION_ERROR"    // 输入验证错误
	ErrorTypeNotFound      = "NOT_FOUND_ERROR"     // 资源不存在错误
	ErrorTypeUnprocessable = "UNPROCESSABLE_ERROR" // 文档无法解析
	ErrorTypeUpstream      = "UPSTREAM_ERROR"      // 模型或抓取服务失败
	ErrorTypeUnavailable   = "UNAVAILABLE_ERROR"   // 功能未启用
	ErrorTypeInternal      = "INTERNAL_ERROR"      // 内部服务器错误
	ErrorTypeBusiness      = "BUSINESS_ERROR"      // 业务逻辑错误
)

// AppError 应用错误结构体
type AppError struct {
	Type    string // 错误类型
	Message string // 错误消息
	Details string // 详细错误信息
	Code    int    // HTTP状态码
}

// Error 实现error接口的方法
func (e AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// NewValidationError 创建输入验证错误
func NewValidationError(message string, details ...string) AppError {
	return AppError{
		Type:    ErrorTypeValidation,
		Message: message,
		Details: strings.Join(details, "; "),
		Code:    http.StatusBadRequest,
	}
}

// NewNotFoundError 创建资源不存在错误
func NewNotFoundError(message string) AppError {
	return AppError{
		Type:    ErrorTypeNotFound,
		Message: message,
		Code:    http.StatusNotFound,
	}
}

// NewInternalError 创建内部服务器错误
func NewInternalError(message string, details ...string) AppError {
	return AppError{
		Type:    ErrorTypeInternal,
		Message: message,
		Details: strings.Join(details, "; "),
		Code:    http.StatusInternalServerError,
	}
}

// NewBusinessError 创建业务逻辑错误
func NewBusinessError(message string, details ...string) AppError {
	return AppError{
		Type:    ErrorTypeBusiness,
		Message: message,
		Details: strings.Join(details, "; "),
		Code:    http.StatusBadRequest,
	}
}

// Classify maps a service error to the AppError the client sees.
// Unknown errors become internal errors.
func Classify(err error) AppError {
	var appErr AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var (
		emptyInput *document.EmptyInputError
		parseErr   *document.DocumentParseError
		chunkErr   *listing.ChunkExtractionError
		llmErr     llm.LLMError
		embedErr   embedding.EmbeddingError
	)
	switch {
	case errors.As(err, &emptyInput),
		errors.Is(err, services.ErrEmptyQuestion),
		errors.Is(err, services.ErrNoText),
		errors.Is(err, services.ErrNoDocuments),
		errors.Is(err, sqlqa.ErrEmptyQuestion),
		errors.Is(err, scraper.ErrInvalidURL),
		errors.Is(err, document.ErrUnsupportedType):
		return NewBusinessError(err.Error())
	case errors.As(err, &parseErr):
		return AppError{Type: ErrorTypeUnprocessable, Message: err.Error(), Code: http.StatusUnprocessableEntity}
	case errors.Is(err, sqlqa.ErrUnsafeQuery):
		return AppError{Type: ErrorTypeUnprocessable, Message: err.Error(), Code: http.StatusUnprocessableEntity}
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, models.ErrRunNotFound),
		errors.Is(err, models.ErrChatSessionNotFound),
		errors.Is(err, taskqueue.ErrTaskNotFound),
		errors.Is(err, services.ErrNoTable),
		errors.Is(err, storage.ErrNotFound):
		return NewNotFoundError(err.Error())
	case errors.Is(err, services.ErrAsyncDisabled):
		return AppError{Type: ErrorTypeUnavailable, Message: err.Error(), Code: http.StatusServiceUnavailable}
	case errors.As(err, &chunkErr),
		errors.As(err, &llmErr),
		errors.As(err, &embedErr),
		errors.Is(err, scraper.ErrEmptyContent),
		errors.Is(err, scraper.ErrNoMarkdown):
		return AppError{Type: ErrorTypeUpstream, Message: err.Error(), Code: http.StatusBadGateway}
	}
	return NewInternalError("Internal server error", err.Error())
}

// ErrorMiddleware 统一错误处理中间件
func ErrorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 捕获 panic
		defer func() {
			if err := recover(); err != nil {
				log.WithFields(logrus.Fields{
					FieldError:   err,
					"stack":      string(debug.Stack()),
					FieldPath:    c.Request.URL.Path,
					FieldTraceID: TraceID(c),
				}).Error("Panic recovered in API request")

				errorResponse := model.NewErrorResponse(
					http.StatusInternalServerError,
					"An unexpected error occurred",
				)
				if gin.Mode() == gin.DebugMode {
					errorResponse.Message = fmt.Sprintf("Panic: %v", err)
				}
				errorResponse.TraceID = TraceID(c)

				c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse)
			}
		}()

		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		// 取最后一个错误进行处理
		err := c.Errors.Last().Err
		traceID := TraceID(c)
		appErr := Classify(err)

		entry := log.WithFields(logrus.Fields{
			"error_type": appErr.Type,
			FieldTraceID: traceID,
			FieldPath:    c.Request.URL.Path,
		})
		if appErr.Code >= http.StatusInternalServerError {
			entry.WithError(err).Error(appErr.Message)
		} else {
			entry.Warn(appErr.Message)
		}

		message := appErr.Message
		if appErr.Type == ErrorTypeInternal && gin.Mode() == gin.DebugMode {
			message = err.Error()
		}
		errResp := model.NewErrorResponse(appErr.Code, message)
		errResp.TraceID = traceID

		c.AbortWithStatusJSON(appErr.Code, errResp)
	}
}

// HandleError 在处理器中使用的错误处理辅助函数
func HandleError(c *gin.Context, err error) {
	_ = c.Error(err)
}
