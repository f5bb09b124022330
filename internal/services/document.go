package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/doc-extract/internal/document"
	"github.com/fyerfyer/doc-extract/internal/embedding"
	"github.com/fyerfyer/doc-extract/internal/models"
	"github.com/fyerfyer/doc-extract/internal/repository"
	"github.com/fyerfyer/doc-extract/internal/session"
	"github.com/fyerfyer/doc-extract/internal/vectordb"
	"github.com/fyerfyer/doc-extract/pkg/storage"
	"github.com/fyerfyer/doc-extract/pkg/taskqueue"
)

const (
	uploadPrefix   = "uploads"
	snapshotPrefix = "vectorstore"
	snapshotName   = "index.json"
)

// ProcessResult summarizes one document run
type ProcessResult struct {
	RunID        string `json:"run_id,omitempty"`
	SessionID    string `json:"session_id"`
	Documents    int    `json:"documents"`
	ChunkCount   int    `json:"chunk_count"`
	StoreVersion int    `json:"store_version"`
	SnapshotKey  string `json:"snapshot_key,omitempty"`
}

// DocumentService turns uploaded documents into a session's vector store
type DocumentService struct {
	extractor *document.Extractor
	chunker   *document.Chunker
	embedder  embedding.Client
	batch     *embedding.BatchProcessor
	sessions  *session.Manager
	storage   storage.Storage
	vectorCfg vectordb.Config
	persist   bool
	queue     taskqueue.Queue
	recorder  runRecorder
	logger    *logrus.Logger
}

// DocumentOption configures a DocumentService
type DocumentOption func(*DocumentService)

// WithDocumentLogger sets the logger
func WithDocumentLogger(logger *logrus.Logger) DocumentOption {
	return func(s *DocumentService) {
		s.logger = logger
	}
}

// WithExtractor replaces the default sequential extractor
func WithExtractor(e *document.Extractor) DocumentOption {
	return func(s *DocumentService) {
		s.extractor = e
	}
}

// WithEmbedBatching sets the embedding batch size and worker count
func WithEmbedBatching(batchSize, workers int) DocumentOption {
	return func(s *DocumentService) {
		s.batch = embedding.NewBatchProcessor(s.embedder, batchSize, workers)
	}
}

// WithStorage enables uploads and vector snapshots
func WithStorage(st storage.Storage) DocumentOption {
	return func(s *DocumentService) {
		s.storage = st
	}
}

// WithVectorConfig selects the vector repository built for each run
func WithVectorConfig(cfg vectordb.Config) DocumentOption {
	return func(s *DocumentService) {
		s.vectorCfg = cfg
	}
}

// WithPersist saves a snapshot of every memory store to storage
func WithPersist(persist bool) DocumentOption {
	return func(s *DocumentService) {
		s.persist = persist
	}
}

// WithDocumentQueue enables Submit
func WithDocumentQueue(q taskqueue.Queue) DocumentOption {
	return func(s *DocumentService) {
		s.queue = q
	}
}

// WithDocumentRuns records runs
func WithDocumentRuns(runs repository.RunRepository, observe RunObserver) DocumentOption {
	return func(s *DocumentService) {
		s.recorder.runs = runs
		s.recorder.observe = observe
	}
}

// NewDocumentService creates the service; chunkCfg is validated here
func NewDocumentService(embedder embedding.Client, sessions *session.Manager, chunkCfg document.ChunkerConfig, opts ...DocumentOption) (*DocumentService, error) {
	chunker, err := document.NewChunker(chunkCfg)
	if err != nil {
		return nil, err
	}

	s := &DocumentService{
		extractor: document.NewExtractor(),
		chunker:   chunker,
		embedder:  embedder,
		batch:     embedding.NewBatchProcessor(embedder, 0, 0),
		sessions:  sessions,
		vectorCfg: vectordb.Config{Type: "memory", DistanceType: vectordb.Cosine},
		logger:    logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.recorder.logger = s.logger
	return s, nil
}

// Process extracts, chunks and embeds docs, then replaces the session's
// vector store. The session is created when it does not exist.
func (s *DocumentService) Process(ctx context.Context, sessionID string, docs []document.Document) (*ProcessResult, error) {
	return s.process(ctx, "", sessionID, docs)
}

func (s *DocumentService) process(ctx context.Context, runID, sessionID string, docs []document.Document) (*ProcessResult, error) {
	sess := s.sessions.GetOrCreate(sessionID)
	sessionID = sess.ID()

	runID = s.recorder.start(ctx, runID, models.RunDocuments, sessionID, documentNames(docs))
	log := s.logger.WithFields(logrus.Fields{"session": sessionID, "run_id": runID, "documents": len(docs)})

	result, err := s.index(ctx, sessionID, docs)
	if err != nil {
		s.recorder.fail(ctx, runID, models.RunDocuments, err)
		log.WithError(err).Error("Document processing failed")
		return nil, err
	}
	result.RunID = runID

	s.recorder.complete(ctx, runID, models.RunDocuments, repository.RunResult{
		ChunkCount: result.ChunkCount,
		OutputPath: result.SnapshotKey,
	})
	log.WithFields(logrus.Fields{
		"chunks":        result.ChunkCount,
		"store_version": result.StoreVersion,
	}).Info("Documents processed")
	return result, nil
}

func (s *DocumentService) index(ctx context.Context, sessionID string, docs []document.Document) (*ProcessResult, error) {
	extracted, err := s.extractor.ExtractAll(ctx, docs)
	if err != nil {
		return nil, err
	}

	var (
		blob   strings.Builder
		bounds = make([]int, len(extracted)) // rune offset where each document ends
		total  int
	)
	for i, doc := range extracted {
		blob.WriteString(*doc.Text)
		total += utf8.RuneCountInString(*doc.Text)
		bounds[i] = total
	}

	chunks := s.chunker.Split(blob.String())
	if len(chunks) == 0 {
		return nil, ErrNoText
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := s.batch.Process(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed chunks: %w", err)
	}

	dimension := 0
	for _, v := range vectors {
		if len(v) > 0 {
			dimension = len(v)
			break
		}
	}
	if dimension == 0 {
		return nil, ErrNoText
	}

	store, err := s.newStore(sessionID, dimension)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	entries := make([]vectordb.Entry, 0, len(chunks))
	for i, c := range chunks {
		if len(vectors[i]) == 0 {
			// whitespace-only chunk the embedder skipped
			continue
		}
		entries = append(entries, vectordb.Entry{
			ID:        uuid.NewString(),
			Source:    extracted[sourceIndex(bounds, c.Start)].Name,
			Position:  c.Index,
			Start:     c.Start,
			Text:      c.Text,
			Vector:    vectors[i],
			CreatedAt: now,
			Metadata:  map[string]interface{}{"session": sessionID},
		})
	}
	if err := store.AddBatch(entries); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to index chunks: %w", err)
	}

	result := &ProcessResult{SessionID: sessionID, Documents: len(docs), ChunkCount: len(chunks)}
	if s.persist {
		key, err := s.saveSnapshot(ctx, sessionID, store)
		if err != nil {
			store.Close()
			return nil, err
		}
		result.SnapshotKey = key
	}

	version, err := s.sessions.ReplaceStore(sessionID, store)
	if err != nil {
		store.Close()
		return nil, err
	}
	result.StoreVersion = version
	return result, nil
}

// sourceIndex finds the document whose text contains rune offset start
func sourceIndex(bounds []int, start int) int {
	i := sort.SearchInts(bounds, start+1)
	return min(i, len(bounds)-1)
}

// newStore builds an empty repository for one run. A postgres store gets a
// table of its own per run, dropped when the store is closed, so the live
// store of the session is untouched until ReplaceStore swaps it out.
func (s *DocumentService) newStore(sessionID string, dimension int) (vectordb.Repository, error) {
	cfg := s.vectorCfg
	cfg.Dimension = dimension
	if cfg.Type != "" && cfg.Type != "memory" {
		cfg.Table = runTable(cfg.Table, sessionID)
		cfg.DropOnClose = true
	}

	store, err := vectordb.NewRepository(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create vector store: %w", err)
	}
	return store, nil
}

// runTable is base, a hash of the session and a per-run suffix
func runTable(base, sessionID string) string {
	if base == "" {
		base = "chunk_embeddings"
	}
	sess := strings.ReplaceAll(uuid.NewSHA1(uuid.NameSpaceOID, []byte(sessionID)).String()[:13], "-", "")
	run := strings.ReplaceAll(uuid.NewString()[:13], "-", "")
	return base + "_" + sess + "_" + run
}

func snapshotKey(sessionID string) string {
	return path.Join(snapshotPrefix, sessionID, snapshotName)
}

// saveSnapshot overwrites the session's saved vector store
func (s *DocumentService) saveSnapshot(ctx context.Context, sessionID string, store vectordb.Repository) (string, error) {
	mem, ok := store.(*vectordb.MemoryRepository)
	if !ok || s.storage == nil {
		return "", nil
	}

	var buf bytes.Buffer
	if err := mem.Snapshot(&buf); err != nil {
		return "", fmt.Errorf("failed to snapshot vector store: %w", err)
	}
	info, err := s.storage.Put(ctx, snapshotKey(sessionID), &buf, "application/json")
	if err != nil {
		return "", fmt.Errorf("failed to save vector store: %w", err)
	}
	return info.Key, nil
}

// Restore loads the session's saved vector store back into memory
func (s *DocumentService) Restore(ctx context.Context, sessionID string) (*ProcessResult, error) {
	if s.storage == nil {
		return nil, storage.ErrNotFound
	}
	rc, err := s.storage.Get(ctx, snapshotKey(sessionID))
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	store, err := vectordb.LoadMemorySnapshot(rc)
	if err != nil {
		return nil, err
	}
	count, err := store.Count()
	if err != nil {
		return nil, err
	}

	s.sessions.GetOrCreate(sessionID)
	version, err := s.sessions.ReplaceStore(sessionID, store)
	if err != nil {
		store.Close()
		return nil, err
	}
	return &ProcessResult{
		SessionID:    sessionID,
		ChunkCount:   count,
		StoreVersion: version,
		SnapshotKey:  snapshotKey(sessionID),
	}, nil
}

// Upload stores a raw document for later processing and returns its key
func (s *DocumentService) Upload(ctx context.Context, sessionID, name string, r io.Reader) (string, error) {
	if s.storage == nil {
		return "", errors.New("storage is not configured")
	}
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	key := path.Join(uploadPrefix, sessionID, uuid.NewString()[:8]+"_"+name)
	info, err := s.storage.Put(ctx, key, r, storage.ContentTypeFor(name))
	if err != nil {
		return "", fmt.Errorf("failed to store %s: %w", name, err)
	}
	return info.Key, nil
}

// LoadDocuments reads uploaded documents back in key order
func (s *DocumentService) LoadDocuments(ctx context.Context, keys []string) ([]document.Document, error) {
	if s.storage == nil {
		return nil, errors.New("storage is not configured")
	}
	docs := make([]document.Document, 0, len(keys))
	for _, key := range keys {
		rc, err := s.storage.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", key, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", key, err)
		}
		docs = append(docs, document.NewDocument(uploadName(key), data))
	}
	return docs, nil
}

// uploadName strips the directory and the random upload prefix
func uploadName(key string) string {
	name := path.Base(key)
	if i := strings.IndexByte(name, '_'); i == 8 {
		return name[i+1:]
	}
	return name
}

// Submit queues processing of uploaded keys and returns the pending run
func (s *DocumentService) Submit(ctx context.Context, sessionID string, keys []string) (*models.Run, error) {
	if s.queue == nil {
		return nil, ErrAsyncDisabled
	}
	if len(keys) == 0 {
		return nil, &document.EmptyInputError{}
	}
	sessionID = s.sessions.GetOrCreate(sessionID).ID()

	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = uploadName(k)
	}
	run, err := s.recorder.queue(ctx, models.RunDocuments, sessionID, strings.Join(names, ", "))
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	taskID, err := s.queue.Enqueue(ctx, taskqueue.TaskDocumentProcess, run.ID, &taskqueue.DocumentProcessPayload{
		SessionID: sessionID,
		Keys:      keys,
	})
	if err != nil {
		s.recorder.fail(ctx, run.ID, models.RunDocuments, err)
		return nil, fmt.Errorf("failed to enqueue document task: %w", err)
	}
	s.recorder.attachTask(ctx, run.ID, taskID)
	run.TaskID = taskID
	return run, nil
}

// ProcessTask runs a queued document task
func (s *DocumentService) ProcessTask(ctx context.Context, task *taskqueue.Task) (interface{}, error) {
	var payload taskqueue.DocumentProcessPayload
	if err := taskqueue.UnmarshalPayload(task.Payload, &payload); err != nil {
		return nil, taskqueue.Permanent(err)
	}

	docs, err := s.LoadDocuments(ctx, payload.Keys)
	if err != nil {
		s.recorder.fail(ctx, task.RunID, models.RunDocuments, err)
		return nil, taskqueue.Permanent(err)
	}

	result, err := s.process(ctx, task.RunID, payload.SessionID, docs)
	if err != nil {
		var parseErr *document.DocumentParseError
		var emptyErr *document.EmptyInputError
		if errors.As(err, &parseErr) || errors.As(err, &emptyErr) || errors.Is(err, ErrNoText) {
			return nil, taskqueue.Permanent(err)
		}
		return nil, err
	}
	return taskqueue.DocumentProcessResult{
		Documents:    result.Documents,
		ChunkCount:   result.ChunkCount,
		StoreVersion: result.StoreVersion,
	}, nil
}

func documentNames(docs []document.Document) string {
	names := make([]string, len(docs))
	for i, d := range docs {
		names[i] = d.Name
	}
	return strings.Join(names, ", ")
}
