package vectordb

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"
)

// MemoryRepository keeps entries in a map and searches by linear scan
type MemoryRepository struct {
	mu        sync.RWMutex
	dimension int
	distType  DistanceType
	entries   map[string]Entry
	order     []string // insertion order of IDs
	closed    bool
}

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository(cfg Config) (Repository, error) {
	return newMemoryRepository(cfg)
}

func newMemoryRepository(cfg Config) (*MemoryRepository, error) {
	if cfg.Dimension < 0 {
		return nil, fmt.Errorf("%w: negative dimension %d", ErrInvalidDimension, cfg.Dimension)
	}
	if cfg.DistanceType == "" {
		cfg.DistanceType = Cosine
	}
	if !validDistance(cfg.DistanceType) {
		return nil, fmt.Errorf("unsupported distance type: %s", cfg.DistanceType)
	}

	return &MemoryRepository{
		dimension: cfg.Dimension,
		distType:  cfg.DistanceType,
		entries:   make(map[string]Entry),
	}, nil
}

// Add stores one entry, replacing an entry with the same ID
func (r *MemoryRepository) Add(entry Entry) error {
	return r.AddBatch([]Entry{entry})
}

// AddBatch validates all entries before storing any of them
func (r *MemoryRepository) AddBatch(entries []Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}

	for _, e := range entries {
		if e.ID == "" {
			return ErrInvalidID
		}
		if err := ValidateVector(e.Vector, r.dimension); err != nil {
			return fmt.Errorf("entry %s: %w", e.ID, err)
		}
	}

	now := time.Now()
	for _, e := range entries {
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		e.Vector = append([]float32(nil), e.Vector...)
		if _, exists := r.entries[e.ID]; !exists {
			r.order = append(r.order, e.ID)
		}
		r.entries[e.ID] = e
	}
	return nil
}

// Get returns the entry with id
func (r *MemoryRepository) Get(id string) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return Entry{}, ErrClosed
	}
	entry, ok := r.entries[id]
	if !ok {
		return Entry{}, ErrEntryNotFound
	}
	return entry, nil
}

// Delete removes one entry
func (r *MemoryRepository) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	if _, ok := r.entries[id]; !ok {
		return ErrEntryNotFound
	}
	r.remove(func(e Entry) bool { return e.ID == id })
	return nil
}

// DeleteBySource removes every entry of a source document
func (r *MemoryRepository) DeleteBySource(source string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	r.remove(func(e Entry) bool { return e.Source == source })
	return nil
}

// remove drops matching entries; caller holds the write lock
func (r *MemoryRepository) remove(match func(Entry) bool) {
	kept := r.order[:0]
	for _, id := range r.order {
		if match(r.entries[id]) {
			delete(r.entries, id)
			continue
		}
		kept = append(kept, id)
	}
	r.order = kept
}

// Search scores every entry against vector and returns the best matches
func (r *MemoryRepository) Search(vector []float32, filter SearchFilter) ([]SearchResult, error) {
	if err := ValidateVector(vector, r.dimension); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, ErrClosed
	}

	sources := make(map[string]bool, len(filter.Sources))
	for _, s := range filter.Sources {
		sources[s] = true
	}

	results := make([]SearchResult, 0, len(r.order))
	for _, id := range r.order {
		entry := r.entries[id]
		if !matchFilter(entry, sources, filter.Metadata) {
			continue
		}

		distance, err := ComputeDistance(vector, entry.Vector, r.distType)
		if err != nil {
			return nil, err
		}
		score := DistanceToScore(distance, r.distType)
		if score < filter.MinScore {
			continue
		}
		results = append(results, SearchResult{Entry: entry, Score: score, Distance: distance})
	}

	SortSearchResults(results)
	if filter.MaxResults > 0 && len(results) > filter.MaxResults {
		results = results[:filter.MaxResults]
	}
	return results, nil
}

// Count returns the number of entries
func (r *MemoryRepository) Count() (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return 0, ErrClosed
	}
	return len(r.entries), nil
}

// GetDimension returns the configured dimension, 0 meaning any
func (r *MemoryRepository) GetDimension() int {
	return r.dimension
}

// Close releases the entries; every later call fails with ErrClosed
func (r *MemoryRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	r.entries = make(map[string]Entry)
	r.order = nil
	return nil
}

// memorySnapshot is the serialized form of a MemoryRepository
type memorySnapshot struct {
	Dimension    int          `json:"dimension"`
	DistanceType DistanceType `json:"distance_type"`
	Entries      []Entry      `json:"entries"`
	SavedAt      time.Time    `json:"saved_at"`
}

// Snapshot writes all entries, in insertion order, as JSON
func (r *MemoryRepository) Snapshot(w io.Writer) error {
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return ErrClosed
	}
	snap := memorySnapshot{
		Dimension:    r.dimension,
		DistanceType: r.distType,
		Entries:      make([]Entry, 0, len(r.order)),
		SavedAt:      time.Now(),
	}
	for _, id := range r.order {
		snap.Entries = append(snap.Entries, r.entries[id])
	}
	r.mu.RUnlock()

	if err := json.NewEncoder(w).Encode(snap); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

// LoadMemorySnapshot rebuilds a repository written by Snapshot
func LoadMemorySnapshot(rd io.Reader) (*MemoryRepository, error) {
	var snap memorySnapshot
	if err := json.NewDecoder(rd).Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	repo, err := newMemoryRepository(Config{Dimension: snap.Dimension, DistanceType: snap.DistanceType})
	if err != nil {
		return nil, err
	}
	if err := repo.AddBatch(snap.Entries); err != nil {
		return nil, err
	}
	return repo, nil
}

func init() {
	RegisterRepository("memory", NewMemoryRepository)
}
