package main

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/doc-extract/api/middleware"
	"github.com/fyerfyer/doc-extract/config"
	"github.com/fyerfyer/doc-extract/internal/cache"
	"github.com/fyerfyer/doc-extract/internal/database"
	"github.com/fyerfyer/doc-extract/internal/document"
	"github.com/fyerfyer/doc-extract/internal/embedding"
	"github.com/fyerfyer/doc-extract/internal/export"
	"github.com/fyerfyer/doc-extract/internal/listing"
	"github.com/fyerfyer/doc-extract/internal/llm"
	"github.com/fyerfyer/doc-extract/internal/metrics"
	"github.com/fyerfyer/doc-extract/internal/models"
	"github.com/fyerfyer/doc-extract/internal/repository"
	"github.com/fyerfyer/doc-extract/internal/scraper"
	"github.com/fyerfyer/doc-extract/internal/services"
	"github.com/fyerfyer/doc-extract/internal/session"
	"github.com/fyerfyer/doc-extract/internal/sqlqa"
	"github.com/fyerfyer/doc-extract/pkg/storage"
	"github.com/fyerfyer/doc-extract/pkg/taskqueue"
)

// app 持有由配置构建的各个组件
type app struct {
	cfg      *config.Config
	logger   *logrus.Logger
	metrics  *metrics.Metrics
	storage  storage.Storage
	sessions *session.Manager
	runs     repository.RunRepository
	chats    repository.ChatRepository
	queue    *taskqueue.RedisQueue
	llm      llm.Client

	documents *services.DocumentService
	listings  *services.ListingService
	qa        *services.QAService
	sql       *sqlqa.Service

	closers []func() error
}

// loadApp 加载配置并初始化日志、数据库、存储、会话和任务队列
func loadApp(cfgPath string) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	gin.SetMode(cfg.Server.Mode)

	logger, err := middleware.ConfigureLogger(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to configure logger: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, metrics: metrics.New()}

	// 初始化数据库
	if err := database.Setup(&cfg.Database, logger); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	a.closers = append(a.closers, database.Close)
	db := database.MustDB()
	a.runs = repository.NewRunRepositoryWithDB(db)
	a.chats = repository.NewChatRepositoryWithDB(db)

	// 创建文件存储服务
	if a.storage, err = storage.New(cfg.Storage); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	a.sessions = session.NewManager(cfg.Session, logger)
	a.closers = append(a.closers, func() error { a.sessions.Close(); return nil })

	// 初始化任务队列（如果启用）
	if cfg.Queue.Enable {
		a.queue, err = taskqueue.NewRedisQueue(&cfg.Queue.Config, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize task queue: %w", err)
		}
		a.closers = append(a.closers, a.queue.Close)
		logger.WithFields(logrus.Fields{
			"redis_addr":  cfg.Queue.RedisAddr,
			"concurrency": cfg.Queue.Concurrency,
			"retry_limit": cfg.Queue.RetryLimit,
		}).Info("Task queue initialized")
	}
	return a, nil
}

// Close 按创建的逆序释放资源
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.WithError(err).Warn("Failed to release resource")
		}
	}
	a.closers = nil
}

// observeRun 将运行结果计入指标
func (a *app) observeRun(kind models.RunKind, status models.RunStatus, rows int) {
	a.metrics.ObserveRun(string(kind), string(status), rows)
}

// setupLLM 设置大语言模型客户端
func (a *app) setupLLM() error {
	if a.llm != nil {
		return nil
	}
	c := a.cfg.LLM
	client, err := llm.NewClient(c.Provider,
		llm.WithAPIKey(c.APIKey),
		llm.WithBaseURL(c.BaseURL),
		llm.WithModel(c.Model),
		llm.WithMaxTokens(c.MaxTokens),
		llm.WithTemperature(c.Temperature),
		llm.WithTimeout(c.Timeout),
		llm.WithMaxRetries(c.MaxRetries),
	)
	if err != nil {
		return fmt.Errorf("failed to initialize LLM client: %w", err)
	}
	a.llm = client
	return nil
}

// setupScraper 根据配置选择页面抓取方式
func (a *app) setupScraper() scraper.Scraper {
	c := a.cfg.Scraper
	httpClient := &http.Client{Timeout: c.Timeout}
	if c.Type == "firecrawl" {
		opts := []scraper.FirecrawlOption{scraper.WithHTTPClient(httpClient)}
		if c.BaseURL != "" {
			opts = append(opts, scraper.WithFirecrawlBaseURL(c.BaseURL))
		}
		return scraper.NewFirecrawlScraper(c.APIKey, opts...)
	}
	return scraper.NewReadabilityScraper(httpClient)
}

// setupListings 创建房源抽取服务
func (a *app) setupListings() error {
	if a.listings != nil {
		return nil
	}
	if err := a.setupLLM(); err != nil {
		return err
	}
	c := a.cfg.Listing

	exporter, err := export.NewExporter(c.Format)
	if err != nil {
		return err
	}

	extractor := listing.NewLLMExtractor(a.llm, listing.WithMaxTokens(c.MaxTokens))
	batchOpts := []listing.BatchOption{
		listing.WithPolicy(c.Policy),
		listing.WithRetry(c.Retry),
		listing.WithConcurrency(c.Concurrency),
		listing.WithTimeout(c.Timeout),
		listing.WithLogger(a.logger),
		listing.WithObserver(a.metrics.ObserveChunk),
	}
	if c.RateLimit > 0 {
		batchOpts = append(batchOpts, listing.WithRateLimit(c.RateLimit, c.Burst))
	}
	batch := listing.NewBatchExtractor(extractor, batchOpts...)

	opts := []services.ListingOption{
		services.WithListingLogger(a.logger),
		services.WithScraper(a.setupScraper()),
		services.WithExporter(exporter),
		services.WithListingStorage(a.storage),
		services.WithListingRuns(a.runs, a.observeRun),
	}
	if a.queue != nil {
		opts = append(opts, services.WithListingQueue(a.queue))
	}
	a.listings, err = services.NewListingService(batch, a.sessions, a.cfg.Chunker.Listing, opts...)
	return err
}

// setupEmbedding 设置嵌入模型客户端
func (a *app) setupEmbedding() (embedding.Client, error) {
	c := a.cfg.Embedding
	client, err := embedding.NewClient(c.Provider,
		embedding.WithAPIKey(c.APIKey),
		embedding.WithBaseURL(c.BaseURL),
		embedding.WithModel(c.Model),
		embedding.WithDimensions(c.Dimensions),
		embedding.WithBatchSize(c.BatchSize),
		embedding.WithTimeout(c.Timeout),
		embedding.WithMaxRetries(c.MaxRetries),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding client: %w", err)
	}
	return client, nil
}

// setupDocuments 创建文档索引与问答服务
func (a *app) setupDocuments() error {
	if a.documents != nil {
		return nil
	}
	if err := a.setupLLM(); err != nil {
		return err
	}
	embedder, err := a.setupEmbedding()
	if err != nil {
		return err
	}

	docOpts := []services.DocumentOption{
		services.WithDocumentLogger(a.logger),
		services.WithExtractor(document.NewExtractor(document.WithParallelism(a.cfg.Embedding.Workers))),
		services.WithEmbedBatching(a.cfg.Embedding.BatchSize, a.cfg.Embedding.Workers),
		services.WithStorage(a.storage),
		services.WithVectorConfig(a.cfg.VectorDB),
		services.WithPersist(a.cfg.Chunker.Persist),
		services.WithDocumentRuns(a.runs, a.observeRun),
	}
	if a.queue != nil {
		docOpts = append(docOpts, services.WithDocumentQueue(a.queue))
	}
	a.documents, err = services.NewDocumentService(embedder, a.sessions, a.cfg.Chunker.Document, docOpts...)
	if err != nil {
		return err
	}

	qaOpts := []services.QAOption{
		services.WithQALogger(a.logger),
		services.WithSearchLimit(a.cfg.Search.Limit),
		services.WithMinScore(a.cfg.Search.MinScore),
		services.WithChatRepository(a.chats),
	}
	if a.cfg.Cache.Enable {
		answerCache, err := cache.NewCache(a.cfg.Cache.Config)
		if err != nil {
			return fmt.Errorf("failed to initialize cache: %w", err)
		}
		if c, ok := answerCache.(io.Closer); ok {
			a.closers = append(a.closers, c.Close)
		}
		qaOpts = append(qaOpts, services.WithCache(answerCache, a.cfg.Cache.DefaultTTL))
	}
	rag := llm.NewRAG(a.llm,
		llm.WithRAGMaxTokens(a.cfg.LLM.MaxTokens),
		llm.WithRAGTemperature(a.cfg.LLM.Temperature),
	)
	a.qa = services.NewQAService(embedder, a.sessions, rag, qaOpts...)
	return nil
}

// setupSQL 连接业务数据库并创建自然语言查询服务
func (a *app) setupSQL(ctx context.Context) error {
	if a.sql != nil {
		return nil
	}
	if err := a.setupLLM(); err != nil {
		return err
	}
	db, err := sqlqa.Open(ctx, a.cfg.SQL.Config)
	if err != nil {
		return fmt.Errorf("failed to connect to sql database: %w", err)
	}
	a.closers = append(a.closers, db.Close)
	a.sql = sqlqa.NewService(db, a.cfg.SQL.Config, a.llm, a.logger)
	return nil
}

// newWorker 创建注册了全部任务处理器的 worker
func (a *app) newWorker() *taskqueue.RedisWorker {
	worker := taskqueue.NewRedisWorker(a.queue, &a.cfg.Queue.Config)
	if a.listings != nil {
		worker.RegisterHandler(taskqueue.TaskListingExtract, a.listings)
	}
	if a.documents != nil {
		worker.RegisterHandler(taskqueue.TaskDocumentProcess, a.documents)
	}
	return worker
}
