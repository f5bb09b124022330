package document

import (
	"errors"
	"fmt"
)

// ErrInvalidChunkConfig is returned for a size/overlap pair the chunker cannot use
var ErrInvalidChunkConfig = errors.New("invalid chunker config")

// Mode selects how consecutive chunks relate
type Mode string

const (
	// OverlapMode repeats the last Overlap characters of a chunk at the start of the next
	OverlapMode Mode = "overlap"
	// DisjointMode cuts fixed windows with no shared text
	DisjointMode Mode = "disjoint"
)

// ChunkerConfig holds chunking parameters. Sizes count characters (runes).
type ChunkerConfig struct {
	Mode      Mode `mapstructure:"mode" json:"mode"`
	ChunkSize int  `mapstructure:"chunk_size" json:"chunk_size"`
	Overlap   int  `mapstructure:"overlap" json:"overlap"`
}

// DefaultOverlapConfig is used for conversational retrieval over uploaded PDFs
func DefaultOverlapConfig() ChunkerConfig {
	return ChunkerConfig{Mode: OverlapMode, ChunkSize: 1000, Overlap: 200}
}

// RAGOverlapConfig is used for context-returning question answering
func RAGOverlapConfig() ChunkerConfig {
	return ChunkerConfig{Mode: OverlapMode, ChunkSize: 1000, Overlap: 100}
}

// DefaultDisjointConfig is used for listing extraction, one LLM call per window
func DefaultDisjointConfig() ChunkerConfig {
	return ChunkerConfig{Mode: DisjointMode, ChunkSize: 15000}
}

// Validate checks 0 <= overlap < chunk size
func (c ChunkerConfig) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidChunkConfig, c.ChunkSize)
	}
	if c.Overlap < 0 || c.Overlap >= c.ChunkSize {
		return fmt.Errorf("%w: overlap must be in [0, %d), got %d", ErrInvalidChunkConfig, c.ChunkSize, c.Overlap)
	}
	switch c.Mode {
	case OverlapMode, DisjointMode, "":
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidChunkConfig, c.Mode)
	}
	return nil
}

// Chunk is a window of the text blob
type Chunk struct {
	Index   int    `json:"index"`
	Start   int    `json:"start"`   // offset of the first character
	Length  int    `json:"length"`  // number of characters
	Overlap int    `json:"overlap"` // leading characters shared with the previous chunk
	Text    string `json:"text"`
}

// End returns the exclusive end offset
func (c Chunk) End() int {
	return c.Start + c.Length
}

// Chunker splits text into fixed-size windows
type Chunker struct {
	size    int
	overlap int
	mode    Mode
}

// NewChunker validates cfg and builds a chunker. DisjointMode ignores cfg.Overlap.
func NewChunker(cfg ChunkerConfig) (*Chunker, error) {
	if cfg.Mode == "" {
		cfg.Mode = OverlapMode
	}
	if cfg.Mode == DisjointMode {
		cfg.Overlap = 0
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Chunker{size: cfg.ChunkSize, overlap: cfg.Overlap, mode: cfg.Mode}, nil
}

// Mode returns the chunking mode
func (c *Chunker) Mode() Mode {
	return c.mode
}

// Split cuts blob into chunks covering [offset, offset+size) and advancing by
// size-overlap. The last chunk may be shorter. An empty blob yields no chunks.
func (c *Chunker) Split(blob string) []Chunk {
	runes := []rune(blob)
	total := len(runes)
	step := c.size - c.overlap

	chunks := make([]Chunk, 0, chunkCount(total, step))
	prevEnd := 0
	for offset := 0; offset < total; offset += step {
		end := min(offset+c.size, total)

		shared := 0
		if len(chunks) > 0 {
			shared = max(prevEnd-offset, 0)
		}

		chunks = append(chunks, Chunk{
			Index:   len(chunks),
			Start:   offset,
			Length:  end - offset,
			Overlap: shared,
			Text:    string(runes[offset:end]),
		})
		prevEnd = end
	}
	return chunks
}

func chunkCount(total, step int) int {
	if total == 0 {
		return 0
	}
	return (total-1)/step + 1
}
