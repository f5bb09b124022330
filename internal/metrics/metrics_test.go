package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyerfyer/doc-extract/internal/listing"
)

func TestObserveChunk(t *testing.T) {
	m := New()

	m.ObserveChunk(listing.OutcomeOK)
	m.ObserveChunk(listing.OutcomeOK)
	m.ObserveChunk(listing.OutcomeRetried)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.chunkOutcomes.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.chunkOutcomes.WithLabelValues("retried")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.chunkOutcomes.WithLabelValues("failed")))
}

func TestObserveRun(t *testing.T) {
	m := New()

	m.ObserveRun("listing", "completed", 12)
	m.ObserveRun("listing", "failed", 0)

	assert.Equal(t, 12.0, testutil.ToFloat64(m.rowsExtracted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("listing", "failed")))
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveHTTP(http.MethodGet, "/api/v1/health", http.StatusOK, 15*time.Millisecond)
	m.ObserveHTTP(http.MethodGet, "", http.StatusNotFound, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `doc_extract_http_requests_total{method="GET",route="/api/v1/health",status="200"} 1`)
	assert.Contains(t, string(body), `route="unmatched"`)
	assert.Contains(t, string(body), "doc_extract_http_request_duration_seconds_bucket")
}
