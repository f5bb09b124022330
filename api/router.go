package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fyerfyer/doc-extract/api/handler"
	"github.com/fyerfyer/doc-extract/api/middleware"
	"github.com/fyerfyer/doc-extract/internal/metrics"
)

// Handlers 路由使用的处理器。SQL、Task、Run 为空时不注册对应路由。
type Handlers struct {
	Document *handler.DocumentHandler
	QA       *handler.QAHandler
	Listing  *handler.ListingHandler
	Session  *handler.SessionHandler
	SQL      *handler.SQLHandler
	Task     *handler.TaskHandler
	Run      *handler.RunHandler
}

// SetupRouter 设置API路由
// 配置所有的API端点并应用中间件
func SetupRouter(h Handlers, m *metrics.Metrics) *gin.Engine {
	router := gin.New()

	// 追踪ID最先设置，错误处理和日志都会用到
	router.Use(middleware.SetTraceID())
	router.Use(middleware.Logger())
	if m != nil {
		router.Use(middleware.Metrics(m))
	}
	router.Use(middleware.ErrorMiddleware())
	router.Use(middleware.Cors())

	if gin.Mode() == gin.DebugMode {
		router.Use(middleware.RequestBodyLog())
	}

	if m != nil {
		router.GET("/metrics", gin.WrapH(m.Handler()))
	}

	api := router.Group("/api")
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		sessions := api.Group("/sessions")
		{
			sessions.POST("", h.Session.CreateSession)
			sessions.GET("/:id", h.Session.GetSession)
			sessions.DELETE("/:id", h.Session.DeleteSession)
		}

		docs := api.Group("/documents")
		{
			docs.POST("", h.Document.ProcessDocuments)
			docs.POST("/restore", h.Document.RestoreDocuments)
		}

		api.POST("/qa", h.QA.AnswerQuestion)

		chat := api.Group("/chat")
		{
			chat.POST("", h.QA.Chat)
			chat.GET("/:session_id/history", h.QA.GetChatHistory)
		}

		listings := api.Group("/listings")
		{
			listings.POST("", h.Listing.RunListing)
			listings.POST("/text", h.Listing.ExtractText)
			listings.GET("/:session_id/export", h.Listing.ExportListing)
		}

		if h.SQL != nil {
			api.POST("/sql", h.SQL.Ask)
			api.GET("/sql/schema", h.SQL.Schema)
		}

		if h.Run != nil {
			api.GET("/runs", h.Run.ListRuns)
			api.GET("/runs/:id", h.Run.GetRun)
		}

		if h.Task != nil {
			api.GET("/tasks/:id", h.Task.GetTaskStatus)
			api.GET("/runs/:id/tasks", h.Task.GetRunTasks)
		}
	}

	return router
}
