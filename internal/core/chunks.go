package core

// SummaryOrdinal is the ordinal of the PR-level summary chunk. It is always
// processed first because every later review call depends on its output.
const SummaryOrdinal = 0

// HunkRange identifies the new-side line span a chunk covers.
type HunkRange struct {
	Start int `db:"hunk_start"`
	End   int `db:"hunk_end"`
}

// DiffChunk is one token-bounded unit of diff content submitted to the model
// in a single request. Chunks belong exclusively to their job and are ordered
// by Ordinal; the ordinal defines deterministic processing order.
type DiffChunk struct {
	JobID         string    `db:"job_id"`
	Ordinal       int       `db:"ordinal"`
	FilePath      string    `db:"file_path"`
	HunkRange     HunkRange `db:"hunk_range"`
	TokenEstimate int       `db:"token_estimate"`
	Content       string    `db:"content"`
}

// IsSummary reports whether the chunk is the PR-level summary pass.
func (c *DiffChunk) IsSummary() bool {
	return c.Ordinal == SummaryOrdinal
}
