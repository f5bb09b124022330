package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/fyerfyer/doc-extract/api/middleware"
	"github.com/fyerfyer/doc-extract/internal/cache"
	"github.com/fyerfyer/doc-extract/internal/database"
	"github.com/fyerfyer/doc-extract/internal/document"
	"github.com/fyerfyer/doc-extract/internal/listing"
	"github.com/fyerfyer/doc-extract/internal/session"
	"github.com/fyerfyer/doc-extract/internal/sqlqa"
	"github.com/fyerfyer/doc-extract/internal/vectordb"
	"github.com/fyerfyer/doc-extract/pkg/storage"
	"github.com/fyerfyer/doc-extract/pkg/taskqueue"
)

// Config 应用程序配置结构体
type Config struct {
	Server    ServerConfig         `mapstructure:"server"`
	Log       middleware.LogConfig `mapstructure:"log"`
	Database  database.Config      `mapstructure:"database"`
	Cache     CacheConfig          `mapstructure:"cache"`
	Storage   storage.Config       `mapstructure:"storage"`
	Queue     QueueConfig          `mapstructure:"queue"`
	LLM       LLMConfig            `mapstructure:"llm"`
	Embedding EmbeddingConfig      `mapstructure:"embedding"`
	VectorDB  vectordb.Config      `mapstructure:"vectordb"`
	Chunker   ChunkerConfig        `mapstructure:"chunker"`
	Search    SearchConfig         `mapstructure:"search"`
	Listing   ListingConfig        `mapstructure:"listing"`
	Scraper   ScraperConfig        `mapstructure:"scraper"`
	SQL       SQLConfig            `mapstructure:"sql"`
	Session   session.Config       `mapstructure:"session"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port" validate:"min=1,max=65535"`
	Mode            string        `mapstructure:"mode" validate:"omitempty,oneof=debug release test"` // gin 运行模式
	MaxUploadMB     int64         `mapstructure:"max_upload_mb" validate:"min=0"`
	KeepUploads     bool          `mapstructure:"keep_uploads"` // 同步处理时也保存上传的原文件
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr 返回监听地址
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// CacheConfig 答案缓存配置
type CacheConfig struct {
	Enable       bool `mapstructure:"enable"`
	cache.Config `mapstructure:",squash"`
}

// QueueConfig 任务队列配置，未启用时只能同步处理
type QueueConfig struct {
	Enable           bool `mapstructure:"enable"`
	taskqueue.Config `mapstructure:",squash"`
}

// LLMConfig 大语言模型配置
type LLMConfig struct {
	Provider    string        `mapstructure:"provider" validate:"oneof=openai groq"`
	Model       string        `mapstructure:"model"`
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	MaxTokens   int           `mapstructure:"max_tokens" validate:"min=0"`
	Temperature float32       `mapstructure:"temperature" validate:"min=0,max=2"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxRetries  int           `mapstructure:"max_retries" validate:"min=0"`
}

// EmbeddingConfig 向量嵌入模型配置
type EmbeddingConfig struct {
	Provider   string        `mapstructure:"provider" validate:"oneof=openai gemini"`
	Model      string        `mapstructure:"model"`
	APIKey     string        `mapstructure:"api_key"`
	BaseURL    string        `mapstructure:"base_url"`
	Dimensions int           `mapstructure:"dimensions" validate:"min=0"`
	BatchSize  int           `mapstructure:"batch_size" validate:"min=1"`
	Workers    int           `mapstructure:"workers" validate:"min=1"` // 并发批次数
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries" validate:"min=0"`
}

// ChunkerConfig 文档问答和房源抽取分别使用的分块参数
type ChunkerConfig struct {
	Preset   string                 `mapstructure:"preset" validate:"oneof=chat rag"` // 文档分块预设，未显式配置的 document 参数取自预设
	Document document.ChunkerConfig `mapstructure:"document"`
	Listing  document.ChunkerConfig `mapstructure:"listing"`
	Persist  bool                   `mapstructure:"persist"` // 处理后保存向量索引快照
}

// SearchConfig 检索配置
type SearchConfig struct {
	Limit    int     `mapstructure:"limit" validate:"min=1"`
	MinScore float32 `mapstructure:"min_score" validate:"min=0,max=1"`
}

// ListingConfig 批量结构化抽取配置
type ListingConfig struct {
	Policy      listing.FailurePolicy `mapstructure:"policy" validate:"oneof=abort skip retry"`
	Retry       listing.RetryConfig   `mapstructure:"retry"`
	Concurrency int                   `mapstructure:"concurrency" validate:"min=1"`
	Timeout     time.Duration         `mapstructure:"timeout"`    // 单个分块的调用超时
	RateLimit   float64               `mapstructure:"rate_limit"` // 每秒请求数，0表示不限制
	Burst       int                   `mapstructure:"burst"`
	MaxTokens   int                   `mapstructure:"max_tokens"`
	Format      string                `mapstructure:"format" validate:"oneof=xlsx csv"`
}

// ScraperConfig 页面抓取配置
type ScraperConfig struct {
	Type    string        `mapstructure:"type" validate:"oneof=firecrawl readability"`
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// SQLConfig 自然语言查询数据库配置
type SQLConfig struct {
	Enable       bool `mapstructure:"enable"`
	sqlqa.Config `mapstructure:",squash"`
}

// Load 从 .env、配置文件和环境变量加载配置。configPath 为空时在当前目录寻找 config.yaml，
// 文件不存在时使用默认值。
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if configPath == "" {
		configPath = "config.yaml"
	}
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// 支持环境变量覆盖，如 LLM_API_KEY 对应 llm.api_key
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setPresetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	expandEnv(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// documentPresets 文档分块预设：chat 用于多轮对话，rag 用于返回上下文的问答
var documentPresets = map[string]document.ChunkerConfig{
	"chat": document.DefaultOverlapConfig(),
	"rag":  document.RAGOverlapConfig(),
}

// setPresetDefaults 按 chunker.preset 设置文档分块的默认值
func setPresetDefaults(v *viper.Viper) {
	preset, ok := documentPresets[v.GetString("chunker.preset")]
	if !ok {
		return
	}
	v.SetDefault("chunker.document.mode", string(preset.Mode))
	v.SetDefault("chunker.document.chunk_size", preset.ChunkSize)
	v.SetDefault("chunker.document.overlap", preset.Overlap)
}

// Validate 校验配置
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Chunker.Document.Overlap >= cfg.Chunker.Document.ChunkSize {
		return fmt.Errorf("invalid config: %w", document.ErrInvalidChunkConfig)
	}
	if cfg.Chunker.Listing.Overlap >= cfg.Chunker.Listing.ChunkSize {
		return fmt.Errorf("invalid config: %w", document.ErrInvalidChunkConfig)
	}
	if cfg.Scraper.Type == "firecrawl" && cfg.Scraper.APIKey == "" {
		return errors.New("invalid config: scraper.api_key is required for firecrawl")
	}
	if cfg.SQL.Enable && cfg.SQL.DSN == "" {
		return errors.New("invalid config: sql.dsn is required when sql is enabled")
	}
	return nil
}

// expandEnv 替换密钥和连接串中的 ${VAR}
func expandEnv(cfg *Config) {
	for _, s := range []*string{
		&cfg.LLM.APIKey,
		&cfg.LLM.BaseURL,
		&cfg.Embedding.APIKey,
		&cfg.Embedding.BaseURL,
		&cfg.Scraper.APIKey,
		&cfg.Database.DSN,
		&cfg.VectorDB.DSN,
		&cfg.SQL.DSN,
		&cfg.Cache.RedisPassword,
		&cfg.Queue.RedisPassword,
		&cfg.Storage.Minio.AccessKey,
		&cfg.Storage.Minio.SecretKey,
	} {
		if strings.Contains(*s, "${") {
			*s = os.ExpandEnv(*s)
		}
	}
}

// setDefaults 设置配置的默认值
func setDefaults(v *viper.Viper) {
	// 服务器默认配置
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.max_upload_mb", 50)
	v.SetDefault("server.keep_uploads", false)
	v.SetDefault("server.shutdown_timeout", "10s")

	// 日志默认配置
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.compress", true)

	// 数据库默认配置
	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dsn", "data/doc-extract.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_lifetime", "1h")

	// 缓存默认配置
	v.SetDefault("cache.enable", true)
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.key_prefix", "doc-extract:")
	v.SetDefault("cache.default_ttl", "1h")
	v.SetDefault("cache.cleanup_interval", "10m")

	// 存储默认配置
	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local.path", "./data/files")
	v.SetDefault("storage.minio.endpoint", "localhost:9000")
	v.SetDefault("storage.minio.access_key", "")
	v.SetDefault("storage.minio.secret_key", "")
	v.SetDefault("storage.minio.use_ssl", false)
	v.SetDefault("storage.minio.bucket", "doc-extract")

	// 队列默认配置
	v.SetDefault("queue.enable", false)
	v.SetDefault("queue.redis_addr", "localhost:6379")
	v.SetDefault("queue.redis_password", "")
	v.SetDefault("queue.redis_db", 0)
	v.SetDefault("queue.concurrency", 4)
	v.SetDefault("queue.retry_limit", 2)
	v.SetDefault("queue.retry_delay", "30s")
	v.SetDefault("queue.task_expiry", "168h")
	v.SetDefault("queue.queue", "default")

	// LLM默认配置
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.api_key", "${OPENAI_API_KEY}")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.max_tokens", 2048)
	v.SetDefault("llm.temperature", 0)
	v.SetDefault("llm.timeout", "60s")
	v.SetDefault("llm.max_retries", 3)

	// Embedding默认配置
	v.SetDefault("embedding.provider", "openai")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.api_key", "${OPENAI_API_KEY}")
	v.SetDefault("embedding.base_url", "")
	v.SetDefault("embedding.dimensions", 0)
	v.SetDefault("embedding.batch_size", 16)
	v.SetDefault("embedding.workers", 4)
	v.SetDefault("embedding.timeout", "30s")
	v.SetDefault("embedding.max_retries", 3)

	// 向量库默认配置
	v.SetDefault("vectordb.type", "memory")
	v.SetDefault("vectordb.dsn", "")
	v.SetDefault("vectordb.table", "chunks")
	v.SetDefault("vectordb.distance_type", string(vectordb.Cosine))
	v.SetDefault("vectordb.timeout", "10s")

	// 分块默认配置
	v.SetDefault("chunker.preset", "chat")
	listingChunks := document.DefaultDisjointConfig()
	v.SetDefault("chunker.listing.mode", string(listingChunks.Mode))
	v.SetDefault("chunker.listing.chunk_size", listingChunks.ChunkSize)
	v.SetDefault("chunker.listing.overlap", listingChunks.Overlap)
	v.SetDefault("chunker.persist", true)

	// 检索默认配置
	v.SetDefault("search.limit", 4)
	v.SetDefault("search.min_score", 0)

	// 房源抽取默认配置
	v.SetDefault("listing.policy", string(listing.PolicyAbort))
	v.SetDefault("listing.retry.max_attempts", 3)
	v.SetDefault("listing.retry.base_delay", "1s")
	v.SetDefault("listing.retry.max_delay", "30s")
	v.SetDefault("listing.retry.skip_after_retry", false)
	v.SetDefault("listing.concurrency", 4)
	v.SetDefault("listing.timeout", "2m")
	v.SetDefault("listing.rate_limit", 0)
	v.SetDefault("listing.burst", 1)
	v.SetDefault("listing.max_tokens", 4096)
	v.SetDefault("listing.format", "xlsx")

	// 抓取默认配置
	v.SetDefault("scraper.type", "readability")
	v.SetDefault("scraper.api_key", "${FIRECRAWL_API_KEY}")
	v.SetDefault("scraper.base_url", "")
	v.SetDefault("scraper.timeout", "60s")

	// 自然语言查询默认配置
	v.SetDefault("sql.enable", false)
	v.SetDefault("sql.dialect", string(sqlqa.SQLite))
	v.SetDefault("sql.dsn", "")
	v.SetDefault("sql.sample_rows", 3)
	v.SetDefault("sql.max_rows", 100)

	// 会话默认配置
	v.SetDefault("session.idle_ttl", "2h")
	v.SetDefault("session.cleanup_interval", "10m")
}
