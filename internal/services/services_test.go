package services

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/fyerfyer/doc-extract/internal/database"
	"github.com/fyerfyer/doc-extract/internal/session"
	"github.com/fyerfyer/doc-extract/pkg/storage"
)

const testDim = 16

// wordEmbedder hashes words into a fixed size bag-of-words vector, so texts
// sharing words score close under cosine distance
type wordEmbedder struct {
	calls atomic.Int32
}

func (e *wordEmbedder) vector(text string) []float32 {
	v := make([]float32, testDim)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(strings.Trim(w, ".,?!")))
		v[h.Sum32()%testDim]++
	}
	return v
}

func (e *wordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	return e.vector(text), nil
}

func (e *wordEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	e.calls.Add(1)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *wordEmbedder) Name() string {
	return "word-hash"
}

func quietLogger() *logrus.Logger {
	l, _ := test.NewNullLogger()
	return l
}

func newSessions(t *testing.T) *session.Manager {
	t.Helper()
	m := session.NewManager(session.Config{IdleTTL: time.Hour}, quietLogger())
	t.Cleanup(m.Close)
	return m
}

func newTestStorage(t *testing.T) storage.Storage {
	t.Helper()
	st, err := storage.NewLocalStorage(storage.LocalConfig{Path: t.TempDir()})
	require.NoError(t, err)
	return st
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:memdb_services_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}
