package listing

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/fyerfyer/doc-extract/internal/document"
)

// FailurePolicy decides what a failed chunk does to the run
type FailurePolicy string

const (
	// PolicyAbort fails the whole run on the first failed chunk
	PolicyAbort FailurePolicy = "abort"
	// PolicySkip drops failed chunks and records them in the table
	PolicySkip FailurePolicy = "skip"
	// PolicyRetry retries a failed chunk with backoff, then aborts or skips
	PolicyRetry FailurePolicy = "retry"
)

// Outcome labels a finished chunk attempt
type Outcome string

const (
	OutcomeOK      Outcome = "ok"
	OutcomeFailed  Outcome = "failed"
	OutcomeRetried Outcome = "retried"
)

// RetryConfig controls PolicyRetry
type RetryConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts"`
	BaseDelay      time.Duration `mapstructure:"base_delay"`
	MaxDelay       time.Duration `mapstructure:"max_delay"`
	SkipAfterRetry bool          `mapstructure:"skip_after_retry"`
}

// DefaultRetryConfig returns 3 attempts starting at 500ms
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
	}
}

// BatchExtractor runs a StructuredExtractor over an ordered chunk sequence
type BatchExtractor struct {
	extractor   StructuredExtractor
	policy      FailurePolicy
	retry       RetryConfig
	concurrency int
	timeout     time.Duration
	limiter     *rate.Limiter
	logger      *logrus.Logger
	observe     func(Outcome)
}

// BatchOption configures a BatchExtractor
type BatchOption func(*BatchExtractor)

// WithPolicy sets the failure policy
func WithPolicy(p FailurePolicy) BatchOption {
	return func(b *BatchExtractor) {
		b.policy = p
	}
}

// WithRetry sets the retry settings used by PolicyRetry
func WithRetry(cfg RetryConfig) BatchOption {
	return func(b *BatchExtractor) {
		b.retry = cfg
	}
}

// WithConcurrency runs up to n chunk extractions at once
func WithConcurrency(n int) BatchOption {
	return func(b *BatchExtractor) {
		b.concurrency = n
	}
}

// WithTimeout bounds each extraction call
func WithTimeout(d time.Duration) BatchOption {
	return func(b *BatchExtractor) {
		b.timeout = d
	}
}

// WithRateLimit allows rps calls per second with the given burst
func WithRateLimit(rps float64, burst int) BatchOption {
	return func(b *BatchExtractor) {
		if rps <= 0 {
			b.limiter = nil
			return
		}
		b.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
	}
}

// WithLogger sets the logger
func WithLogger(logger *logrus.Logger) BatchOption {
	return func(b *BatchExtractor) {
		b.logger = logger
	}
}

// WithObserver is called once per attempt outcome
func WithObserver(fn func(Outcome)) BatchOption {
	return func(b *BatchExtractor) {
		b.observe = fn
	}
}

// NewBatchExtractor creates a sequential, abort-on-failure batch extractor
func NewBatchExtractor(extractor StructuredExtractor, opts ...BatchOption) *BatchExtractor {
	b := &BatchExtractor{
		extractor:   extractor,
		policy:      PolicyAbort,
		retry:       DefaultRetryConfig(),
		concurrency: 1,
		logger:      logrus.StandardLogger(),
		observe:     func(Outcome) {},
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.retry.MaxAttempts < 1 {
		b.retry.MaxAttempts = 1
	}
	return b
}

type chunkResult struct {
	records []Record
	err     error // set only for chunks skipped under the policy
}

// Run extracts every chunk and returns the records in chunk order. Under
// PolicyAbort any failure discards all rows and returns *ChunkExtractionError.
func (b *BatchExtractor) Run(ctx context.Context, chunks []document.Chunk) (*ResultTable, error) {
	if len(chunks) == 0 {
		return newResultTable(nil, nil), nil
	}

	results := make([]chunkResult, len(chunks))
	var err error
	if b.concurrency > 1 && len(chunks) > 1 {
		err = b.runParallel(ctx, chunks, results)
	} else {
		err = b.runSequential(ctx, chunks, results)
	}
	if err != nil {
		return nil, err
	}

	var (
		rows     []Record
		failures []Failure
	)
	for i, r := range results {
		if r.err != nil {
			failures = append(failures, Failure{Index: chunks[i].Index, Err: r.err})
			continue
		}
		rows = append(rows, r.records...)
	}

	b.logger.WithFields(logrus.Fields{
		"chunks":   len(chunks),
		"rows":     len(rows),
		"failures": len(failures),
	}).Info("Batch extraction finished")

	return newResultTable(rows, failures), nil
}

func (b *BatchExtractor) runSequential(ctx context.Context, chunks []document.Chunk, results []chunkResult) error {
	for i, chunk := range chunks {
		records, err := b.extractChunk(ctx, chunk)
		if err != nil {
			if !b.skips(ctx, err) {
				return err
			}
			results[i] = chunkResult{err: err}
			continue
		}
		results[i] = chunkResult{records: records}
	}
	return nil
}

func (b *BatchExtractor) runParallel(ctx context.Context, chunks []document.Chunk, results []chunkResult) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)

	// slot i holds the abort error of chunk i so the lowest index wins
	aborts := make([]error, len(chunks))

	for i, chunk := range chunks {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			records, err := b.extractChunk(gctx, chunk)
			if err != nil {
				if b.skips(gctx, err) {
					results[i] = chunkResult{err: err}
					return nil
				}
				aborts[i] = err
				return err
			}
			results[i] = chunkResult{records: records}
			return nil
		})
	}

	groupErr := g.Wait()
	if groupErr == nil {
		return nil
	}
	if ctx.Err() != nil {
		for _, err := range aborts {
			if err != nil {
				return err
			}
		}
		return ctx.Err()
	}

	// chunks cancelled by an earlier failure are not the cause
	var fallback error
	for _, err := range aborts {
		if err == nil {
			continue
		}
		if errors.Is(err, context.Canceled) {
			if fallback == nil {
				fallback = err
			}
			continue
		}
		return err
	}
	if fallback != nil {
		return fallback
	}
	return groupErr
}

// skips reports whether a failed chunk is dropped rather than aborting the run
func (b *BatchExtractor) skips(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	switch b.policy {
	case PolicySkip:
		return true
	case PolicyRetry:
		return b.retry.SkipAfterRetry
	default:
		return false
	}
}

func (b *BatchExtractor) extractChunk(ctx context.Context, chunk document.Chunk) ([]Record, error) {
	maxAttempts := 1
	if b.policy == PolicyRetry {
		maxAttempts = b.retry.MaxAttempts
	}

	var (
		records  []Record
		attempts int
	)
	op := func() error {
		attempts++
		var err error
		records, err = b.attempt(ctx, chunk)
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		b.observe(OutcomeRetried)
		b.logger.WithFields(logrus.Fields{
			"chunk":   chunk.Index,
			"attempt": attempts,
			"wait":    wait.String(),
		}).WithError(err).Warn("Chunk extraction failed, retrying")
	}

	err := backoff.RetryNotify(op, b.backoffPolicy(ctx, maxAttempts), notify)
	if err != nil {
		b.observe(OutcomeFailed)
		b.logger.WithFields(logrus.Fields{
			"chunk":    chunk.Index,
			"attempts": attempts,
		}).WithError(err).Error("Chunk extraction failed")
		return nil, &ChunkExtractionError{Index: chunk.Index, Attempts: attempts, Err: err}
	}

	b.observe(OutcomeOK)
	return records, nil
}

func (b *BatchExtractor) backoffPolicy(ctx context.Context, maxAttempts int) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = b.retry.BaseDelay
	exp.MaxInterval = b.retry.MaxDelay
	exp.MaxElapsedTime = 0
	exp.RandomizationFactor = 0.5
	exp.Multiplier = 2
	exp.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(maxAttempts-1)), ctx)
}

func (b *BatchExtractor) attempt(ctx context.Context, chunk document.Chunk) ([]Record, error) {
	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}
	return b.extractor.Extract(ctx, chunk.Text)
}
