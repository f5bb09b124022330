package middleware

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var log = logrus.New()

// 初始化日志配置
func init() {
	log.SetOutput(os.Stdout)
	log.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
	})

	if os.Getenv("DEBUG") == "true" {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.InfoLevel)
	}
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	Format     string `mapstructure:"format" validate:"omitempty,oneof=json text"`
	File       string `mapstructure:"file"`        // 为空时只输出到标准输出
	MaxSizeMB  int    `mapstructure:"max_size_mb"` // 单个日志文件大小上限
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// ConfigureLogger 按配置设置全局日志。配置了文件时同时写入标准输出和滚动文件。
func ConfigureLogger(cfg LogConfig) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Format == "text" {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	}

	if cfg.File == "" {
		log.SetOutput(os.Stdout)
		return log, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
		return nil, err
	}
	rotator := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	log.SetOutput(io.MultiWriter(os.Stdout, rotator))
	return log, nil
}

// Logger 日志中间件
// 记录请求信息和响应时间
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		fields := logrus.Fields{
			FieldStatus:   c.Writer.Status(),
			FieldLatency:  time.Since(start).String(),
			FieldClientIP: c.ClientIP(),
			FieldMethod:   c.Request.Method,
			FieldPath:     path,
			FieldTraceID:  TraceID(c),
			"user_agent":  c.Request.UserAgent(),
		}
		if sessionID := c.GetString(ContextSessionID); sessionID != "" {
			fields[FieldSessionID] = sessionID
		}
		log.WithFields(fields).Info("HTTP request")
	}
}

// RequestBodyLog 请求体日志中间件
// 在DEBUG模式下记录请求体内容，multipart上传除外
func RequestBodyLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		if log.Level >= logrus.DebugLevel && !strings.HasPrefix(c.ContentType(), "multipart/") && c.Request.Body != nil {
			var buf bytes.Buffer
			tee := io.TeeReader(c.Request.Body, &buf)
			body, _ := io.ReadAll(tee)
			c.Request.Body = io.NopCloser(&buf)

			if len(body) > 0 {
				log.WithFields(logrus.Fields{
					FieldMethod:  c.Request.Method,
					FieldPath:    c.Request.URL.Path,
					FieldTraceID: TraceID(c),
					"body":       string(body),
				}).Debug("Request body")
			}
		}

		c.Next()
	}
}

// SetTraceID 将追踪ID设置到上下文和响应头中
func SetTraceID() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(HeaderTraceID)
		if traceID == "" {
			traceID = uuid.NewString()
		}

		c.Set(ContextTraceID, traceID)
		c.Header(HeaderTraceID, traceID)

		c.Next()
	}
}

// TraceID 返回当前请求的追踪ID
func TraceID(c *gin.Context) string {
	return c.GetString(ContextTraceID)
}

// 上下文键与请求头
const (
	HeaderTraceID    = "X-Trace-ID"
	ContextTraceID   = "TraceID"
	ContextSessionID = "SessionID"
)

// 常用日志字段
const (
	FieldTraceID   = "trace_id"    // 追踪ID
	FieldSessionID = "session_id"  // 会话ID
	FieldPath      = "path"        // 请求路径
	FieldMethod    = "method"      // 请求方法
	FieldStatus    = "status_code" // 状态码
	FieldLatency   = "latency"     // 延迟时间
	FieldClientIP  = "client_ip"   // 客户端IP
	FieldError     = "error"       // 错误信息
)

// GetLogger 返回全局日志实例
func GetLogger() *logrus.Logger {
	return log
}
