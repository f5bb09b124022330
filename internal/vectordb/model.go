package vectordb

import (
	"errors"
	"time"
)

// Repository errors
var (
	ErrEntryNotFound    = errors.New("entry not found")
	ErrEmptyVector      = errors.New("empty vector")
	ErrInvalidID        = errors.New("invalid entry ID")
	ErrInvalidDimension = errors.New("vector dimension mismatch")
	ErrClosed           = errors.New("repository is closed")
)

// Entry is one embedded chunk
type Entry struct {
	ID        string                 `json:"id"`
	Source    string                 `json:"source"`   // document the chunk came from
	Position  int                    `json:"position"` // chunk index in the text blob
	Start     int                    `json:"start"`    // character offset in the text blob
	Text      string                 `json:"text"`
	Vector    []float32              `json:"vector"`
	CreatedAt time.Time              `json:"created_at"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// DistanceType is the vector distance measure
type DistanceType string

const (
	// Cosine distance, 1 - cosine similarity
	Cosine DistanceType = "cosine"
	// DotProduct inner product
	DotProduct DistanceType = "dot"
	// Euclidean L2 distance
	Euclidean DistanceType = "l2"
)

// SearchResult is a scored match
type SearchResult struct {
	Entry    Entry
	Score    float32 // higher is closer, in [0, 1]
	Distance float32
}

// SearchFilter narrows a search
type SearchFilter struct {
	Sources    []string               // only entries from these sources
	Metadata   map[string]interface{} // exact metadata matches
	MinScore   float32
	MaxResults int
}

// DefaultSearchFilter returns the top 4 results, the usual retrieval depth
func DefaultSearchFilter() SearchFilter {
	return SearchFilter{
		MaxResults: 4,
	}
}

// Repository stores vectors and answers similarity queries
type Repository interface {
	Add(entry Entry) error
	AddBatch(entries []Entry) error
	Get(id string) (Entry, error)
	Delete(id string) error
	DeleteBySource(source string) error
	Search(vector []float32, filter SearchFilter) ([]SearchResult, error)
	Count() (int, error)
	GetDimension() int
	Close() error
}

// Config selects and configures a repository
type Config struct {
	Type         string        `mapstructure:"type"` // memory or pgvector
	DSN          string        `mapstructure:"dsn"`
	Table        string        `mapstructure:"table"`
	Dimension    int           `mapstructure:"dimension"`
	DistanceType DistanceType  `mapstructure:"distance_type"`
	Timeout      time.Duration `mapstructure:"timeout"`
	// DropOnClose removes the backing table when the repository is closed
	DropOnClose bool `mapstructure:"-"`
}

// Factory creates a repository from config
type Factory func(config Config) (Repository, error)

var repositoryRegistry = map[string]Factory{}

// RegisterRepository registers a repository implementation
func RegisterRepository(name string, factory Factory) {
	repositoryRegistry[name] = factory
}

// NewRepository creates the configured repository; unknown types fall back to memory
func NewRepository(config Config) (Repository, error) {
	factory, ok := repositoryRegistry[config.Type]
	if !ok {
		factory = NewMemoryRepository
	}
	return factory(config)
}
