package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyerfyer/doc-extract/internal/document"
	"github.com/fyerfyer/doc-extract/internal/models"
	"github.com/fyerfyer/doc-extract/internal/repository"
	"github.com/fyerfyer/doc-extract/internal/vectordb"
	"github.com/fyerfyer/doc-extract/pkg/taskqueue"
)

func newDocumentService(t *testing.T, opts ...DocumentOption) (*DocumentService, *wordEmbedder) {
	t.Helper()
	embedder := &wordEmbedder{}
	cfg := document.ChunkerConfig{Mode: document.OverlapMode, ChunkSize: 40, Overlap: 10}
	opts = append([]DocumentOption{WithDocumentLogger(quietLogger())}, opts...)
	svc, err := NewDocumentService(embedder, newSessions(t), cfg, opts...)
	require.NoError(t, err)
	return svc, embedder
}

func TestNewDocumentService_BadChunkConfig(t *testing.T) {
	_, err := NewDocumentService(&wordEmbedder{}, newSessions(t), document.ChunkerConfig{ChunkSize: 10, Overlap: 10})
	assert.ErrorIs(t, err, document.ErrInvalidChunkConfig)
}

func TestDocumentService_Process(t *testing.T) {
	svc, _ := newDocumentService(t)
	ctx := context.Background()

	docs := []document.Document{
		document.NewDocument("alpha.txt", []byte(strings.Repeat("alpha ", 20))),
		document.NewDocument("beta.txt", []byte(strings.Repeat("beta ", 20))),
	}
	result, err := svc.Process(ctx, "s1", docs)
	require.NoError(t, err)
	assert.Equal(t, "s1", result.SessionID)
	assert.Equal(t, 2, result.Documents)
	assert.Equal(t, 1, result.StoreVersion)
	// 220 runes, step 30
	assert.Equal(t, 8, result.ChunkCount)

	sess, err := svc.sessions.Get("s1")
	require.NoError(t, err)
	store, version := sess.Store()
	require.NotNil(t, store)
	assert.Equal(t, 1, version)

	count, err := store.Count()
	require.NoError(t, err)
	assert.Equal(t, 8, count)

	// first chunk lies in alpha.txt, last one in beta.txt
	hits, err := store.Search((&wordEmbedder{}).vector("beta"), vectordb.SearchFilter{MaxResults: 1})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "beta.txt", hits[0].Entry.Source)

	hits, err = store.Search((&wordEmbedder{}).vector("alpha"), vectordb.SearchFilter{MaxResults: 1, Sources: []string{"alpha.txt"}})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, 0, hits[0].Entry.Position)
}

func TestDocumentService_ProcessReplacesStore(t *testing.T) {
	svc, _ := newDocumentService(t)
	ctx := context.Background()

	_, err := svc.Process(ctx, "s1", []document.Document{document.NewTextDocument("a", "first document text")})
	require.NoError(t, err)
	sess, _ := svc.sessions.Get("s1")
	first, _ := sess.Store()

	result, err := svc.Process(ctx, "s1", []document.Document{document.NewTextDocument("b", "second document text")})
	require.NoError(t, err)
	assert.Equal(t, 2, result.StoreVersion)

	second, _ := sess.Store()
	assert.NotSame(t, first, second)
	_, err = first.Count()
	assert.ErrorIs(t, err, vectordb.ErrClosed)
}

func TestDocumentService_ProcessErrors(t *testing.T) {
	svc, _ := newDocumentService(t)
	ctx := context.Background()

	_, err := svc.Process(ctx, "s1", nil)
	var empty *document.EmptyInputError
	assert.ErrorAs(t, err, &empty)

	_, err = svc.Process(ctx, "s1", []document.Document{document.NewTextDocument("blank", "")})
	assert.ErrorIs(t, err, ErrNoText)

	_, err = svc.Process(ctx, "s1", []document.Document{
		document.NewDocument("ok.txt", []byte("fine")),
		document.NewDocument("broken.pdf", []byte("not a pdf")),
	})
	var parseErr *document.DocumentParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, 1, parseErr.Index)

	// failed runs leave the session without a store
	sess, err := svc.sessions.Get("s1")
	require.NoError(t, err)
	store, _ := sess.Store()
	assert.Nil(t, store)
}

func TestDocumentService_PersistAndRestore(t *testing.T) {
	st := newTestStorage(t)
	svc, _ := newDocumentService(t, WithStorage(st), WithPersist(true))
	ctx := context.Background()

	result, err := svc.Process(ctx, "s1", []document.Document{document.NewTextDocument("notes.txt", "persisted vector store content")})
	require.NoError(t, err)
	assert.Equal(t, "vectorstore/s1/index.json", result.SnapshotKey)

	exists, err := st.Exists(ctx, result.SnapshotKey)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, svc.sessions.Teardown("s1"))

	restored, err := svc.Restore(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, result.ChunkCount, restored.ChunkCount)

	sess, err := svc.sessions.Get("s1")
	require.NoError(t, err)
	store, _ := sess.Store()
	require.NotNil(t, store)

	_, err = svc.Restore(ctx, "unknown")
	assert.Error(t, err)
}

func TestDocumentService_UploadAndLoad(t *testing.T) {
	svc, _ := newDocumentService(t, WithStorage(newTestStorage(t)))
	ctx := context.Background()

	key, err := svc.Upload(ctx, "s1", "../../etc/report.txt", strings.NewReader("quarterly report"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "uploads/s1/"))
	assert.True(t, strings.HasSuffix(key, "_report.txt"))

	docs, err := svc.LoadDocuments(ctx, []string{key})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "report.txt", docs[0].Name)
	assert.Equal(t, "quarterly report", string(docs[0].Data))
}

func TestDocumentService_RunsRecorded(t *testing.T) {
	runs := repository.NewRunRepositoryWithDB(newTestDB(t))
	var observed []models.RunStatus
	svc, _ := newDocumentService(t, WithDocumentRuns(runs, func(kind models.RunKind, status models.RunStatus, rows int) {
		observed = append(observed, status)
	}))
	ctx := context.Background()

	result, err := svc.Process(ctx, "s1", []document.Document{document.NewTextDocument("a.txt", "some text to index")})
	require.NoError(t, err)
	require.NotEmpty(t, result.RunID)

	run, err := runs.Get(result.RunID)
	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, run.Status)
	assert.Equal(t, models.RunDocuments, run.Kind)
	assert.Equal(t, "a.txt", run.Source)
	assert.Equal(t, result.ChunkCount, run.ChunkCount)

	_, err = svc.Process(ctx, "s1", []document.Document{document.NewTextDocument("b.txt", "")})
	require.Error(t, err)
	list, total, err := runs.List(0, 10, map[string]interface{}{"status": models.RunFailed})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, ErrNoText.Error(), list[0].Error)

	assert.Equal(t, []models.RunStatus{models.RunCompleted, models.RunFailed}, observed)
}

func TestDocumentService_ProcessTask(t *testing.T) {
	st := newTestStorage(t)
	svc, _ := newDocumentService(t, WithStorage(st))
	ctx := context.Background()

	key, err := svc.Upload(ctx, "s9", "guide.md", strings.NewReader("# Guide\n\nInstall the package and run it."))
	require.NoError(t, err)

	payload, err := taskqueue.MarshalPayload(&taskqueue.DocumentProcessPayload{SessionID: "s9", Keys: []string{key}})
	require.NoError(t, err)

	out, err := svc.ProcessTask(ctx, &taskqueue.Task{ID: "t1", Payload: payload})
	require.NoError(t, err)
	result, ok := out.(taskqueue.DocumentProcessResult)
	require.True(t, ok)
	assert.Equal(t, 1, result.Documents)
	assert.Equal(t, 1, result.StoreVersion)

	payload, _ = taskqueue.MarshalPayload(&taskqueue.DocumentProcessPayload{SessionID: "s9", Keys: []string{"uploads/s9/missing.txt"}})
	_, err = svc.ProcessTask(ctx, &taskqueue.Task{ID: "t2", Payload: payload})
	assert.Error(t, err)
}

func TestDocumentService_SubmitWithoutQueue(t *testing.T) {
	svc, _ := newDocumentService(t)
	_, err := svc.Submit(context.Background(), "s1", []string{"uploads/s1/a.txt"})
	assert.ErrorIs(t, err, ErrAsyncDisabled)
}

func TestSourceIndex(t *testing.T) {
	bounds := []int{10, 10, 25}
	assert.Equal(t, 0, sourceIndex(bounds, 0))
	assert.Equal(t, 0, sourceIndex(bounds, 9))
	assert.Equal(t, 2, sourceIndex(bounds, 10))
	assert.Equal(t, 2, sourceIndex(bounds, 24))
}

// tableStore is a memory store that remembers the config it was built with
type tableStore struct {
	vectordb.Repository
	cfg     vectordb.Config
	failAdd bool
	closed  bool
}

func (s *tableStore) AddBatch(entries []vectordb.Entry) error {
	if s.failAdd {
		return errors.New("insert failed")
	}
	return s.Repository.AddBatch(entries)
}

func (s *tableStore) Close() error {
	s.closed = true
	return s.Repository.Close()
}

func TestDocumentService_FailedReprocessKeepsStore(t *testing.T) {
	var (
		created []*tableStore
		failAdd bool
	)
	vectordb.RegisterRepository("table-test", func(cfg vectordb.Config) (vectordb.Repository, error) {
		mem, err := vectordb.NewMemoryRepository(vectordb.Config{Dimension: cfg.Dimension})
		if err != nil {
			return nil, err
		}
		st := &tableStore{Repository: mem, cfg: cfg, failAdd: failAdd}
		created = append(created, st)
		return st, nil
	})

	svc, _ := newDocumentService(t, WithVectorConfig(vectordb.Config{Type: "table-test", Table: "chunks"}))
	ctx := context.Background()

	_, err := svc.Process(ctx, "s1", []document.Document{document.NewTextDocument("a", "first document text")})
	require.NoError(t, err)

	failAdd = true
	_, err = svc.Process(ctx, "s1", []document.Document{document.NewTextDocument("b", "second document text")})
	require.ErrorContains(t, err, "insert failed")

	require.Len(t, created, 2)
	first, second := created[0], created[1]
	assert.NotEqual(t, first.cfg.Table, second.cfg.Table, "every run writes its own table")
	assert.Regexp(t, `^chunks_[0-9a-f]{12}_[0-9a-f]{12}$`, first.cfg.Table)
	assert.Equal(t, first.cfg.Table[:len("chunks_")+12], second.cfg.Table[:len("chunks_")+12])
	assert.True(t, first.cfg.DropOnClose)
	assert.True(t, second.closed)
	assert.False(t, first.closed)

	sess, err := svc.sessions.Get("s1")
	require.NoError(t, err)
	store, version := sess.Store()
	assert.Same(t, first, store)
	assert.Equal(t, 1, version)
	count, err := store.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestDocumentService_MemoryStoreKeepsConfig(t *testing.T) {
	svc, _ := newDocumentService(t)
	store, err := svc.newStore("s1", 4)
	require.NoError(t, err)
	defer store.Close()
	assert.Equal(t, 4, store.GetDimension())
	assert.IsType(t, &vectordb.MemoryRepository{}, store)
}
