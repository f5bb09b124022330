package listing

import "fmt"

// ChunkExtractionError reports the chunk whose extraction failed
type ChunkExtractionError struct {
	Index    int
	Attempts int
	Err      error
}

func (e *ChunkExtractionError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("chunk %d: extraction failed after %d attempts: %v", e.Index, e.Attempts, e.Err)
	}
	return fmt.Sprintf("chunk %d: extraction failed: %v", e.Index, e.Err)
}

func (e *ChunkExtractionError) Unwrap() error {
	return e.Err
}
