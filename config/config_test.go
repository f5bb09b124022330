package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyerfyer/doc-extract/internal/document"
	"github.com/fyerfyer/doc-extract/internal/listing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "sqlite", cfg.Database.Type)
	assert.True(t, cfg.Cache.Enable)
	assert.Equal(t, "memory", cfg.Cache.Type)
	assert.Equal(t, time.Hour, cfg.Cache.DefaultTTL)
	assert.False(t, cfg.Queue.Enable)
	assert.Equal(t, 30*time.Second, cfg.Queue.RetryDelay)

	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, "sk-test", cfg.Embedding.APIKey)

	assert.Equal(t, "chat", cfg.Chunker.Preset)
	assert.Equal(t, document.ChunkerConfig{Mode: document.OverlapMode, ChunkSize: 1000, Overlap: 200}, cfg.Chunker.Document)
	assert.Equal(t, document.ChunkerConfig{Mode: document.DisjointMode, ChunkSize: 15000}, cfg.Chunker.Listing)

	assert.Equal(t, listing.PolicyAbort, cfg.Listing.Policy)
	assert.Equal(t, 3, cfg.Listing.Retry.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Listing.Retry.BaseDelay)
	assert.Equal(t, "xlsx", cfg.Listing.Format)
	assert.Equal(t, "readability", cfg.Scraper.Type)
	assert.Equal(t, 2*time.Hour, cfg.Session.IdleTTL)
}

func TestLoad_FileAndEnv(t *testing.T) {
	t.Setenv("FIRECRAWL_TOKEN", "fc-123")
	t.Setenv("LISTING_POLICY", "skip")

	path := writeConfig(t, `
server:
  port: 9090
llm:
  provider: groq
  model: llama3-70b-8192
scraper:
  type: firecrawl
  api_key: ${FIRECRAWL_TOKEN}
listing:
  concurrency: 8
  rate_limit: 2.5
  retry:
    max_delay: 10s
chunker:
  listing:
    chunk_size: 5000
sql:
  enable: true
  dialect: mysql
  dsn: user:pass@tcp(localhost:3306)/estate
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "groq", cfg.LLM.Provider)
	assert.Equal(t, "llama3-70b-8192", cfg.LLM.Model)
	assert.Equal(t, "fc-123", cfg.Scraper.APIKey)
	assert.Equal(t, listing.PolicySkip, cfg.Listing.Policy)
	assert.Equal(t, 8, cfg.Listing.Concurrency)
	assert.InDelta(t, 2.5, cfg.Listing.RateLimit, 1e-9)
	assert.Equal(t, 10*time.Second, cfg.Listing.Retry.MaxDelay)
	assert.Equal(t, 3, cfg.Listing.Retry.MaxAttempts)
	assert.Equal(t, 5000, cfg.Chunker.Listing.ChunkSize)
	assert.True(t, cfg.SQL.Enable)
	assert.EqualValues(t, "mysql", cfg.SQL.Dialect)
}

func TestLoad_ChunkerPreset(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load(writeConfig(t, "chunker:\n  preset: rag\n"))
	require.NoError(t, err)
	assert.Equal(t, "rag", cfg.Chunker.Preset)
	assert.Equal(t, document.RAGOverlapConfig(), cfg.Chunker.Document)

	cfg, err = Load(writeConfig(t, "chunker:\n  preset: rag\n  document:\n    overlap: 50\n"))
	require.NoError(t, err)
	assert.Equal(t, document.ChunkerConfig{Mode: document.OverlapMode, ChunkSize: 1000, Overlap: 50}, cfg.Chunker.Document)

	t.Setenv("CHUNKER_PRESET", "chat")
	cfg, err = Load(writeConfig(t, "chunker:\n  preset: rag\n"))
	require.NoError(t, err)
	assert.Equal(t, document.DefaultOverlapConfig(), cfg.Chunker.Document)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown provider", "llm:\n  provider: cohere\n"},
		{"unknown policy", "listing:\n  policy: ignore\n"},
		{"bad port", "server:\n  port: 70000\n"},
		{"overlap too large", "chunker:\n  document:\n    chunk_size: 100\n    overlap: 100\n"},
		{"firecrawl without key", "scraper:\n  type: firecrawl\n  api_key: \"\"\n"},
		{"sql without dsn", "sql:\n  enable: true\n"},
		{"unknown storage", "storage:\n  type: s3\n"},
		{"unknown chunk preset", "chunker:\n  preset: huge\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	_, err := Load(writeConfig(t, "server: [unclosed"))
	assert.Error(t, err)
}
