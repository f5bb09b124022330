package listing

import "time"

// Failure is a chunk left out of a table under the skip policy
type Failure struct {
	Index int   `json:"index"`
	Err   error `json:"-"`
}

// ResultTable holds the records of one run in chunk order. It is never
// modified after the batch extractor returns it.
type ResultTable struct {
	rows      []Record
	failures  []Failure
	createdAt time.Time
}

func newResultTable(rows []Record, failures []Failure) *ResultTable {
	owned := make([]Record, len(rows))
	for i, r := range rows {
		owned[i] = r.Clone()
	}
	return &ResultTable{
		rows:      owned,
		failures:  failures,
		createdAt: time.Now(),
	}
}

// Rows returns a deep copy of the records
func (t *ResultTable) Rows() []Record {
	out := make([]Record, len(t.rows))
	for i, r := range t.rows {
		out[i] = r.Clone()
	}
	return out
}

// Len returns the number of records
func (t *ResultTable) Len() int {
	return len(t.rows)
}

// Failures returns the skipped chunks
func (t *ResultTable) Failures() []Failure {
	out := make([]Failure, len(t.failures))
	copy(out, t.failures)
	return out
}

// CreatedAt returns when the run finished
func (t *ResultTable) CreatedAt() time.Time {
	return t.createdAt
}
