package vectordb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pgvector/pgvector-go"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// PGVectorRepository stores entries in Postgres with the pgvector extension
type PGVectorRepository struct {
	db        *sql.DB
	table     string
	dimension int
	distType  DistanceType
	timeout   time.Duration
	drop      bool
}

// NewPGVectorRepository opens cfg.DSN with the pgx driver and prepares the table
func NewPGVectorRepository(cfg Config) (Repository, error) {
	if cfg.DSN == "" {
		return nil, errors.New("pgvector: dsn is required")
	}
	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pgvector: open: %w", err)
	}

	repo, err := NewPGVectorRepositoryWithDB(db, cfg)
	if err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

// NewPGVectorRepositoryWithDB uses an existing connection pool; Close closes it
func NewPGVectorRepositoryWithDB(db *sql.DB, cfg Config) (*PGVectorRepository, error) {
	if cfg.Table == "" {
		cfg.Table = "chunk_embeddings"
	}
	if !tableNamePattern.MatchString(cfg.Table) {
		return nil, fmt.Errorf("pgvector: invalid table name %q", cfg.Table)
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("%w: pgvector needs a fixed dimension", ErrInvalidDimension)
	}
	if cfg.DistanceType == "" {
		cfg.DistanceType = Cosine
	}
	if _, err := distanceOperator(cfg.DistanceType); err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	repo := &PGVectorRepository{
		db:        db,
		table:     cfg.Table,
		dimension: cfg.Dimension,
		distType:  cfg.DistanceType,
		timeout:   cfg.Timeout,
		drop:      cfg.DropOnClose,
	}
	if err := repo.migrate(); err != nil {
		return nil, err
	}
	return repo, nil
}

func distanceOperator(distType DistanceType) (string, error) {
	switch distType {
	case Cosine:
		return "<=>", nil
	case DotProduct:
		return "<#>", nil
	case Euclidean:
		return "<->", nil
	default:
		return "", fmt.Errorf("unsupported distance type: %s", distType)
	}
}

func (r *PGVectorRepository) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), r.timeout)
}

func (r *PGVectorRepository) migrate() error {
	ctx, cancel := r.context()
	defer cancel()

	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			position INTEGER NOT NULL,
			start_offset INTEGER NOT NULL,
			text TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			metadata JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, r.table, r.dimension),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_source_idx ON %s (source)`, r.table, r.table),
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("pgvector: migrate: %w", err)
		}
	}
	return nil
}

// Add upserts one entry
func (r *PGVectorRepository) Add(entry Entry) error {
	return r.AddBatch([]Entry{entry})
}

// AddBatch upserts entries in one transaction
func (r *PGVectorRepository) AddBatch(entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	for _, e := range entries {
		if e.ID == "" {
			return ErrInvalidID
		}
		if err := ValidateVector(e.Vector, r.dimension); err != nil {
			return fmt.Errorf("entry %s: %w", e.ID, err)
		}
	}

	ctx, cancel := r.context()
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("pgvector: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, source, position, start_offset, text, embedding, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8)
		ON CONFLICT (id) DO UPDATE SET
			source = EXCLUDED.source,
			position = EXCLUDED.position,
			start_offset = EXCLUDED.start_offset,
			text = EXCLUDED.text,
			embedding = EXCLUDED.embedding,
			metadata = EXCLUDED.metadata`, r.table))
	if err != nil {
		return fmt.Errorf("pgvector: prepare: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for _, e := range entries {
		meta, err := encodeMetadata(e.Metadata)
		if err != nil {
			return err
		}
		createdAt := e.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		if _, err := stmt.ExecContext(ctx,
			e.ID, e.Source, e.Position, e.Start, e.Text, pgvector.NewVector(e.Vector), meta, createdAt,
		); err != nil {
			return fmt.Errorf("pgvector: insert %s: %w", e.ID, err)
		}
	}
	return tx.Commit()
}

func encodeMetadata(meta map[string]interface{}) (*string, error) {
	if len(meta) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("pgvector: encode metadata: %w", err)
	}
	s := string(b)
	return &s, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner, extra ...any) (Entry, error) {
	var (
		e    Entry
		vec  pgvector.Vector
		meta []byte
	)
	dest := append([]any{&e.ID, &e.Source, &e.Position, &e.Start, &e.Text, &vec, &meta, &e.CreatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return Entry{}, err
	}
	e.Vector = vec.Slice()
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &e.Metadata); err != nil {
			return Entry{}, fmt.Errorf("pgvector: decode metadata: %w", err)
		}
	}
	return e, nil
}

const entryColumns = `id, source, position, start_offset, text, embedding, metadata, created_at`

// Get returns the entry with id
func (r *PGVectorRepository) Get(id string) (Entry, error) {
	ctx, cancel := r.context()
	defer cancel()

	row := r.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, entryColumns, r.table), id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrEntryNotFound
	}
	return e, err
}

// Delete removes one entry
func (r *PGVectorRepository) Delete(id string) error {
	ctx, cancel := r.context()
	defer cancel()

	res, err := r.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, r.table), id)
	if err != nil {
		return fmt.Errorf("pgvector: delete: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrEntryNotFound
	}
	return nil
}

// DeleteBySource removes every entry of a source document
func (r *PGVectorRepository) DeleteBySource(source string) error {
	ctx, cancel := r.context()
	defer cancel()

	if _, err := r.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE source = $1`, r.table), source); err != nil {
		return fmt.Errorf("pgvector: delete source: %w", err)
	}
	return nil
}

// Search orders rows by the configured distance operator
func (r *PGVectorRepository) Search(vector []float32, filter SearchFilter) ([]SearchResult, error) {
	if err := ValidateVector(vector, r.dimension); err != nil {
		return nil, err
	}
	op, err := distanceOperator(r.distType)
	if err != nil {
		return nil, err
	}

	limit := filter.MaxResults
	if limit <= 0 {
		limit = DefaultSearchFilter().MaxResults
	}
	var sources any
	if len(filter.Sources) > 0 {
		sources = filter.Sources
	}
	meta, err := encodeMetadata(filter.Metadata)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT %s, embedding %s $1 AS distance
		FROM %s
		WHERE ($2::text[] IS NULL OR source = ANY($2::text[]))
		  AND ($3::jsonb IS NULL OR metadata @> $3::jsonb)
		ORDER BY distance
		LIMIT $4`, entryColumns, op, r.table)

	ctx, cancel := r.context()
	defer cancel()

	rows, err := r.db.QueryContext(ctx, query, pgvector.NewVector(vector), sources, meta, limit)
	if err != nil {
		return nil, fmt.Errorf("pgvector: search: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var distance float64
		e, err := scanEntry(rows, &distance)
		if err != nil {
			return nil, err
		}

		d := float32(distance)
		if r.distType == DotProduct {
			// <#> returns the negative inner product
			d = -d
		}
		score := DistanceToScore(d, r.distType)
		if score < filter.MinScore {
			continue
		}
		results = append(results, SearchResult{Entry: e, Score: score, Distance: d})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	SortSearchResults(results)
	return results, nil
}

// Count returns the number of rows
func (r *PGVectorRepository) Count() (int, error) {
	ctx, cancel := r.context()
	defer cancel()

	var n int
	if err := r.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, r.table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("pgvector: count: %w", err)
	}
	return n, nil
}

// GetDimension returns the column dimension
func (r *PGVectorRepository) GetDimension() int {
	return r.dimension
}

// Close closes the connection pool, dropping the table first when the
// repository was opened with DropOnClose
func (r *PGVectorRepository) Close() error {
	var dropErr error
	if r.drop {
		ctx, cancel := r.context()
		if _, err := r.db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, r.table)); err != nil {
			dropErr = fmt.Errorf("pgvector: drop: %w", err)
		}
		cancel()
	}
	return errors.Join(dropErr, r.db.Close())
}

func init() {
	RegisterRepository("pgvector", NewPGVectorRepository)
}
