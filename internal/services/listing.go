package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/doc-extract/internal/document"
	"github.com/fyerfyer/doc-extract/internal/export"
	"github.com/fyerfyer/doc-extract/internal/listing"
	"github.com/fyerfyer/doc-extract/internal/models"
	"github.com/fyerfyer/doc-extract/internal/repository"
	"github.com/fyerfyer/doc-extract/internal/scraper"
	"github.com/fyerfyer/doc-extract/internal/session"
	"github.com/fyerfyer/doc-extract/pkg/storage"
	"github.com/fyerfyer/doc-extract/pkg/taskqueue"
)

const (
	rawPrefix    = "raw"
	outputPrefix = "output"
	// OutputName is the file name of every exported listing table
	OutputName = "real_estate_properties"
)

// RunResult summarizes one listing run
type RunResult struct {
	RunID        string               `json:"run_id,omitempty"`
	SessionID    string               `json:"session_id"`
	Source       string               `json:"source"`
	RawKey       string               `json:"raw_key,omitempty"`
	OutputKey    string               `json:"output_key,omitempty"`
	ChunkCount   int                  `json:"chunk_count"`
	RowCount     int                  `json:"row_count"`
	FailedChunks []int                `json:"failed_chunks,omitempty"`
	Table        *listing.ResultTable `json:"-"`
}

// ListingService scrapes listing pages into a spreadsheet of records
type ListingService struct {
	scraper   scraper.Scraper
	extractor *document.Extractor
	chunker   *document.Chunker
	batch     *listing.BatchExtractor
	exporter  export.Exporter
	storage   storage.Storage
	sessions  *session.Manager
	queue     taskqueue.Queue
	recorder  runRecorder
	now       func() time.Time
	logger    *logrus.Logger
}

// ListingOption configures a ListingService
type ListingOption func(*ListingService)

// WithListingLogger sets the logger
func WithListingLogger(logger *logrus.Logger) ListingOption {
	return func(s *ListingService) {
		s.logger = logger
	}
}

// WithScraper sets the page scraper; without one only ExtractText works
func WithScraper(sc scraper.Scraper) ListingOption {
	return func(s *ListingService) {
		s.scraper = sc
	}
}

// WithExporter replaces the xlsx exporter
func WithExporter(e export.Exporter) ListingOption {
	return func(s *ListingService) {
		s.exporter = e
	}
}

// WithListingStorage saves the raw text and the export
func WithListingStorage(st storage.Storage) ListingOption {
	return func(s *ListingService) {
		s.storage = st
	}
}

// WithListingQueue enables Submit
func WithListingQueue(q taskqueue.Queue) ListingOption {
	return func(s *ListingService) {
		s.queue = q
	}
}

// WithListingRuns records runs
func WithListingRuns(runs repository.RunRepository, observe RunObserver) ListingOption {
	return func(s *ListingService) {
		s.recorder.runs = runs
		s.recorder.observe = observe
	}
}

// NewListingService creates the service. chunkCfg is forced to disjoint mode.
func NewListingService(batch *listing.BatchExtractor, sessions *session.Manager, chunkCfg document.ChunkerConfig, opts ...ListingOption) (*ListingService, error) {
	chunkCfg.Mode = document.DisjointMode
	chunker, err := document.NewChunker(chunkCfg)
	if err != nil {
		return nil, err
	}

	s := &ListingService{
		extractor: document.NewExtractor(),
		chunker:   chunker,
		batch:     batch,
		exporter:  export.XLSXExporter{},
		sessions:  sessions,
		now:       time.Now,
		logger:    logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.recorder.logger = s.logger
	return s, nil
}

// Process scrapes url, extracts its listings and exports them
func (s *ListingService) Process(ctx context.Context, sessionID, url string) (*RunResult, error) {
	return s.run(ctx, "", sessionID, url, func(ctx context.Context) (document.Document, error) {
		return s.scrape(ctx, url)
	})
}

// ExtractText runs the same pipeline on text that was already fetched
func (s *ListingService) ExtractText(ctx context.Context, sessionID, text string) (*RunResult, error) {
	return s.run(ctx, "", sessionID, "text", func(context.Context) (document.Document, error) {
		return document.NewTextDocument("text", scraper.Sanitize(text)), nil
	})
}

func (s *ListingService) scrape(ctx context.Context, url string) (document.Document, error) {
	if s.scraper == nil {
		return document.Document{}, errors.New("no scraper configured")
	}
	doc, err := scraper.ScrapeDocument(ctx, s.scraper, url)
	if err != nil {
		return document.Document{}, err
	}
	doc.Data = []byte(scraper.Sanitize(string(doc.Data)))
	return doc, nil
}

func (s *ListingService) run(ctx context.Context, runID, sessionID, source string, fetch func(context.Context) (document.Document, error)) (*RunResult, error) {
	sessionID = s.sessions.GetOrCreate(sessionID).ID()
	runID = s.recorder.start(ctx, runID, models.RunListing, sessionID, source)
	log := s.logger.WithFields(logrus.Fields{"session": sessionID, "run_id": runID, "source": source})

	result, err := s.extract(ctx, runID, sessionID, source, fetch)
	if err != nil {
		s.recorder.fail(ctx, runID, models.RunListing, err)
		log.WithError(err).Error("Listing run failed")
		return nil, err
	}

	s.recorder.complete(ctx, runID, models.RunListing, repository.RunResult{
		ChunkCount:   result.ChunkCount,
		RowCount:     result.RowCount,
		FailedChunks: result.FailedChunks,
		RawPath:      result.RawKey,
		OutputPath:   result.OutputKey,
	})
	log.WithFields(logrus.Fields{
		"chunks": result.ChunkCount,
		"rows":   result.RowCount,
		"failed": len(result.FailedChunks),
	}).Info("Listing run completed")
	return result, nil
}

func (s *ListingService) extract(ctx context.Context, runID, sessionID, source string, fetch func(context.Context) (document.Document, error)) (*RunResult, error) {
	doc, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	text, err := s.extractor.Extract(ctx, []document.Document{doc})
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, scraper.ErrEmptyContent
	}

	result := &RunResult{RunID: runID, SessionID: sessionID, Source: source}
	stamp := s.now()

	if s.storage != nil {
		name := "raw_data_" + stamp.Format("20060102150405") + ".md"
		info, err := s.storage.Put(ctx, path.Join(rawPrefix, sessionID, name), strings.NewReader(text), "text/markdown")
		if err != nil {
			return nil, fmt.Errorf("failed to save raw data: %w", err)
		}
		result.RawKey = info.Key
	}

	chunks := s.chunker.Split(text)
	result.ChunkCount = len(chunks)

	table, err := s.batch.Run(ctx, chunks)
	if err != nil {
		return nil, err
	}
	result.Table = table
	result.RowCount = table.Len()
	for _, f := range table.Failures() {
		result.FailedChunks = append(result.FailedChunks, f.Index)
	}

	if s.storage != nil {
		var buf bytes.Buffer
		if err := s.exporter.Export(&buf, table); err != nil {
			return nil, fmt.Errorf("failed to export table: %w", err)
		}
		key := path.Join(outputPrefix, sessionID, OutputName+s.exporter.Extension())
		info, err := s.storage.Put(ctx, key, &buf, s.exporter.ContentType())
		if err != nil {
			return nil, fmt.Errorf("failed to save export: %w", err)
		}
		result.OutputKey = info.Key
	}

	if err := s.sessions.ReplaceTable(sessionID, table); err != nil {
		return nil, err
	}
	return result, nil
}

// Export writes the session's latest table to w with exp, or with the
// configured exporter when exp is nil
func (s *ListingService) Export(sessionID string, w io.Writer, exp export.Exporter) error {
	if exp == nil {
		exp = s.exporter
	}
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return err
	}
	table := sess.Table()
	if table == nil {
		return ErrNoTable
	}
	return exp.Export(w, table)
}

// ErrNoTable is returned when a session has no listing run yet
var ErrNoTable = errors.New("no listing table for this session")

// Exporter returns the configured exporter
func (s *ListingService) Exporter() export.Exporter {
	return s.exporter
}

// Submit queues a listing run for url and returns the pending run
func (s *ListingService) Submit(ctx context.Context, sessionID, url string) (*models.Run, error) {
	if s.queue == nil {
		return nil, ErrAsyncDisabled
	}
	sessionID = s.sessions.GetOrCreate(sessionID).ID()

	run, err := s.recorder.queue(ctx, models.RunListing, sessionID, url)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	taskID, err := s.queue.Enqueue(ctx, taskqueue.TaskListingExtract, run.ID, &taskqueue.ListingExtractPayload{
		SessionID: sessionID,
		URL:       url,
	})
	if err != nil {
		s.recorder.fail(ctx, run.ID, models.RunListing, err)
		return nil, fmt.Errorf("failed to enqueue listing task: %w", err)
	}
	s.recorder.attachTask(ctx, run.ID, taskID)
	run.TaskID = taskID
	return run, nil
}

// ProcessTask runs a queued listing task. Extraction and scrape input
// errors are not retried by the queue.
func (s *ListingService) ProcessTask(ctx context.Context, task *taskqueue.Task) (interface{}, error) {
	var payload taskqueue.ListingExtractPayload
	if err := taskqueue.UnmarshalPayload(task.Payload, &payload); err != nil {
		return nil, taskqueue.Permanent(err)
	}

	result, err := s.run(ctx, task.RunID, payload.SessionID, payload.URL, func(ctx context.Context) (document.Document, error) {
		return s.scrape(ctx, payload.URL)
	})
	if err != nil {
		var chunkErr *listing.ChunkExtractionError
		if errors.As(err, &chunkErr) || errors.Is(err, scraper.ErrInvalidURL) ||
			errors.Is(err, scraper.ErrEmptyContent) || errors.Is(err, scraper.ErrNoMarkdown) {
			return nil, taskqueue.Permanent(err)
		}
		return nil, err
	}
	return taskqueue.ListingExtractResult{
		RowCount:     result.RowCount,
		ChunkCount:   result.ChunkCount,
		FailedChunks: result.FailedChunks,
		RawKey:       result.RawKey,
		OutputKey:    result.OutputKey,
	}, nil
}
