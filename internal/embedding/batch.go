package embedding

import (
	"context"
	"fmt"
	"sync"

	"github.com/gammazero/workerpool"
)

// BatchProcessor splits large inputs into request sized batches and embeds
// them on a worker pool
type BatchProcessor struct {
	client     Client
	batchSize  int
	maxWorkers int
}

// NewBatchProcessor creates a batch processor
func NewBatchProcessor(client Client, batchSize int, maxWorkers int) *BatchProcessor {
	if batchSize <= 0 {
		batchSize = 16
	}
	if maxWorkers <= 0 {
		maxWorkers = 4
	}

	return &BatchProcessor{
		client:     client,
		batchSize:  batchSize,
		maxWorkers: maxWorkers,
	}
}

// Process embeds texts and returns one vector per input, in input order.
// Empty texts are not sent and get a nil vector.
func (p *BatchProcessor) Process(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))

	// positions of the non-empty texts
	indices := make([]int, 0, len(texts))
	for i, text := range texts {
		if text != "" {
			indices = append(indices, i)
		}
	}
	if len(indices) == 0 {
		return results, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	wp := workerpool.New(p.maxWorkers)
	var (
		errOnce  sync.Once
		firstErr error
	)

	for b, start := 0, 0; start < len(indices); b, start = b+1, start+p.batchSize {
		batchIdx := indices[start:min(start+p.batchSize, len(indices))]

		wp.Submit(func() {
			if ctx.Err() != nil {
				return
			}

			batch := make([]string, len(batchIdx))
			for i, idx := range batchIdx {
				batch[i] = texts[idx]
			}

			vectors, err := p.client.EmbedBatch(ctx, batch)
			if err == nil && len(vectors) != len(batch) {
				err = NewEmbeddingError(ErrCodeInvalidResponse,
					fmt.Sprintf("expected %d vectors, got %d", len(batch), len(vectors)))
			}
			if err != nil {
				errOnce.Do(func() {
					firstErr = fmt.Errorf("batch %d: %w", b, err)
					cancel()
				})
				return
			}

			// each batch owns distinct slots
			for i, idx := range batchIdx {
				results[idx] = vectors[i]
			}
		})
	}

	wp.StopWait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
