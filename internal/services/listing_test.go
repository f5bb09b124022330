package services

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/fyerfyer/doc-extract/internal/document"
	"github.com/fyerfyer/doc-extract/internal/export"
	"github.com/fyerfyer/doc-extract/internal/listing"
	"github.com/fyerfyer/doc-extract/internal/models"
	"github.com/fyerfyer/doc-extract/internal/repository"
	"github.com/fyerfyer/doc-extract/internal/scraper"
	"github.com/fyerfyer/doc-extract/pkg/taskqueue"
)

// pageScraper serves fixed pages by URL
type pageScraper map[string]string

func (p pageScraper) Scrape(_ context.Context, url string) (string, error) {
	page, ok := p[url]
	if !ok {
		return "", scraper.ErrEmptyContent
	}
	return page, nil
}

// listingPage splits into three disjoint chunks of 20 runes
const listingPage = "12 Oak St, 3 bed... 9 Elm Rd, 2 bed.... 4 Ash Ln, house...."

func str(s string) *string { return &s }

// addressExtractor turns each chunk into one record holding the chunk text
func addressExtractor(failOn string) listing.ExtractorFunc {
	return func(_ context.Context, text string) ([]listing.Record, error) {
		if failOn != "" && strings.Contains(text, failOn) {
			return nil, errors.New("model returned garbage")
		}
		return []listing.Record{{Address: str(strings.TrimSpace(text))}}, nil
	}
}

func newListingService(t *testing.T, batch *listing.BatchExtractor, opts ...ListingOption) *ListingService {
	t.Helper()
	opts = append([]ListingOption{
		WithListingLogger(quietLogger()),
		WithScraper(pageScraper{"https://homes.example/list": listingPage}),
	}, opts...)
	svc, err := NewListingService(batch, newSessions(t), document.ChunkerConfig{ChunkSize: 20}, opts...)
	require.NoError(t, err)
	svc.now = func() time.Time { return time.Date(2024, 3, 9, 14, 5, 6, 0, time.UTC) }
	return svc
}

func TestListingService_Process(t *testing.T) {
	st := newTestStorage(t)
	batch := listing.NewBatchExtractor(addressExtractor(""), listing.WithLogger(quietLogger()))
	svc := newListingService(t, batch, WithListingStorage(st))
	ctx := context.Background()

	result, err := svc.Process(ctx, "s1", "https://homes.example/list")
	require.NoError(t, err)
	assert.Equal(t, "s1", result.SessionID)
	assert.Equal(t, 3, result.ChunkCount)
	assert.Equal(t, 3, result.RowCount)
	assert.Empty(t, result.FailedChunks)
	assert.Equal(t, "raw/s1/raw_data_20240309140506.md", result.RawKey)
	assert.Equal(t, "output/s1/real_estate_properties.xlsx", result.OutputKey)

	// punctuation other than commas and dots is blanked before chunking
	rows := result.Table.Rows()
	require.Len(t, rows, 3)
	assert.Equal(t, "12 Oak St, 3 bed...", *rows[0].Address)
	assert.Equal(t, "4 Ash Ln, house....", *rows[2].Address)

	raw, err := st.Get(ctx, result.RawKey)
	require.NoError(t, err)
	data, err := io.ReadAll(raw)
	raw.Close()
	require.NoError(t, err)
	assert.Equal(t, listingPage, string(data))

	out, err := st.Get(ctx, result.OutputKey)
	require.NoError(t, err)
	defer out.Close()
	book, err := excelize.OpenReader(out)
	require.NoError(t, err)
	defer book.Close()
	sheet, err := book.GetRows(export.SheetName)
	require.NoError(t, err)
	require.Len(t, sheet, 4)
	assert.Equal(t, listing.Columns, sheet[0])
	assert.Equal(t, "9 Elm Rd, 2 bed....", sheet[2][0])

	sess, err := svc.sessions.Get("s1")
	require.NoError(t, err)
	assert.Same(t, result.Table, sess.Table())
}

func TestListingService_ProcessAbort(t *testing.T) {
	batch := listing.NewBatchExtractor(addressExtractor("Elm"), listing.WithLogger(quietLogger()))
	svc := newListingService(t, batch, WithListingStorage(newTestStorage(t)))

	_, err := svc.Process(context.Background(), "s1", "https://homes.example/list")
	var chunkErr *listing.ChunkExtractionError
	require.ErrorAs(t, err, &chunkErr)
	assert.Equal(t, 1, chunkErr.Index)

	// the previous table is kept on failure, here none
	sess, err := svc.sessions.Get("s1")
	require.NoError(t, err)
	assert.Nil(t, sess.Table())
}

func TestListingService_ProcessSkip(t *testing.T) {
	runs := repository.NewRunRepositoryWithDB(newTestDB(t))
	var rows []int
	batch := listing.NewBatchExtractor(addressExtractor("Elm"),
		listing.WithPolicy(listing.PolicySkip), listing.WithLogger(quietLogger()))
	svc := newListingService(t, batch, WithListingRuns(runs, func(kind models.RunKind, status models.RunStatus, n int) {
		assert.Equal(t, models.RunListing, kind)
		rows = append(rows, n)
	}))

	result, err := svc.Process(context.Background(), "", "https://homes.example/list")
	require.NoError(t, err)
	assert.NotEmpty(t, result.SessionID)
	assert.Equal(t, 2, result.RowCount)
	assert.Equal(t, []int{1}, result.FailedChunks)
	assert.Empty(t, result.OutputKey)
	assert.Equal(t, []int{2}, rows)

	run, err := runs.Get(result.RunID)
	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, run.Status)
	assert.Equal(t, 2, run.RowCount)
	assert.JSONEq(t, `[1]`, string(run.FailedChunks))
}

func TestListingService_ProcessScrapeErrors(t *testing.T) {
	batch := listing.NewBatchExtractor(addressExtractor(""))
	svc := newListingService(t, batch)
	ctx := context.Background()

	_, err := svc.Process(ctx, "s1", "https://homes.example/missing")
	assert.ErrorIs(t, err, scraper.ErrEmptyContent)

	svc.scraper = pageScraper{"https://homes.example/blank": " \n\t "}
	_, err = svc.Process(ctx, "s1", "https://homes.example/blank")
	assert.ErrorIs(t, err, scraper.ErrEmptyContent)

	svc.scraper = nil
	_, err = svc.Process(ctx, "s1", "https://homes.example/list")
	assert.Error(t, err)
}

func TestListingService_ExtractText(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	batch := listing.NewBatchExtractor(listing.ExtractorFunc(func(_ context.Context, text string) ([]listing.Record, error) {
		mu.Lock()
		seen = append(seen, text)
		mu.Unlock()
		return nil, nil
	}))
	svc := newListingService(t, batch)

	result, err := svc.ExtractText(context.Background(), "s2", "<b>Price: $500,000</b>")
	require.NoError(t, err)
	assert.Equal(t, "text", result.Source)
	assert.Equal(t, 0, result.RowCount)
	assert.Equal(t, 2, result.ChunkCount)
	assert.Equal(t, []string{" b Price   500,000  ", "b "}, seen)
}

func TestListingService_Export(t *testing.T) {
	batch := listing.NewBatchExtractor(addressExtractor(""))
	svc := newListingService(t, batch, WithExporter(export.CSVExporter{}))
	ctx := context.Background()

	var sb strings.Builder
	assert.Error(t, svc.Export("nobody", &sb, nil))

	svc.sessions.GetOrCreate("s1")
	assert.ErrorIs(t, svc.Export("s1", &sb, nil), ErrNoTable)

	_, err := svc.Process(ctx, "s1", "https://homes.example/list")
	require.NoError(t, err)
	require.NoError(t, svc.Export("s1", &sb, nil))

	lines := strings.Split(strings.TrimSpace(sb.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, strings.Join(listing.Columns, ","), strings.TrimSpace(lines[0]))
	assert.Equal(t, ".csv", svc.Exporter().Extension())
}

func TestListingService_SubmitAndProcessTask(t *testing.T) {
	mr := miniredis.RunT(t)
	queue, err := taskqueue.NewRedisQueue(&taskqueue.Config{RedisAddr: mr.Addr(), RetryLimit: 1}, quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { queue.Close() })

	runs := repository.NewRunRepositoryWithDB(newTestDB(t))
	st := newTestStorage(t)
	batch := listing.NewBatchExtractor(addressExtractor(""))
	svc := newListingService(t, batch, WithListingQueue(queue), WithListingRuns(runs, nil), WithListingStorage(st))
	ctx := context.Background()

	run, err := svc.Submit(ctx, "s1", "https://homes.example/list")
	require.NoError(t, err)
	require.NotEmpty(t, run.TaskID)
	assert.Equal(t, models.RunPending, run.Status)

	stored, err := runs.Get(run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.TaskID, stored.TaskID)
	assert.Equal(t, models.RunPending, stored.Status)

	task, err := queue.GetTask(ctx, run.TaskID)
	require.NoError(t, err)
	assert.Equal(t, taskqueue.TaskListingExtract, task.Type)
	assert.Equal(t, run.ID, task.RunID)

	out, err := svc.ProcessTask(ctx, task)
	require.NoError(t, err)
	result, ok := out.(taskqueue.ListingExtractResult)
	require.True(t, ok)
	assert.Equal(t, 3, result.RowCount)
	assert.Equal(t, "output/s1/real_estate_properties.xlsx", result.OutputKey)

	stored, err = runs.Get(run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, stored.Status)
	assert.Equal(t, result.OutputKey, stored.OutputPath)
}

func TestListingService_ProcessTaskPermanentErrors(t *testing.T) {
	batch := listing.NewBatchExtractor(addressExtractor("Oak"))
	svc := newListingService(t, batch)
	ctx := context.Background()

	_, err := svc.ProcessTask(ctx, &taskqueue.Task{ID: "t0"})
	assert.ErrorIs(t, err, taskqueue.ErrInvalidPayload)

	payload, err := taskqueue.MarshalPayload(&taskqueue.ListingExtractPayload{SessionID: "s1", URL: "https://homes.example/list"})
	require.NoError(t, err)
	_, err = svc.ProcessTask(ctx, &taskqueue.Task{ID: "t1", Payload: payload})
	var chunkErr *listing.ChunkExtractionError
	assert.ErrorAs(t, err, &chunkErr)
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestListingService_SubmitWithoutQueue(t *testing.T) {
	svc := newListingService(t, listing.NewBatchExtractor(addressExtractor("")))
	_, err := svc.Submit(context.Background(), "s1", "https://homes.example/list")
	assert.ErrorIs(t, err, ErrAsyncDisabled)
}
