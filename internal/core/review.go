package core

// FileLevelLine marks a finding that is anchored to a file as a whole rather
// than to a specific diff line.
const FileLevelLine = 0

// Finding is a single piece of feedback produced by the model, anchored to a
// location in the diff.
type Finding struct {
	FilePath string `json:"file_path"`
	// Line is the new-side line number the finding refers to, or FileLevelLine
	// when the finding applies to the whole file.
	Line     int    `json:"line"`
	Severity string `json:"severity"` // e.g. "Low", "Medium", "High", "Critical"
	Category string `json:"category"` // e.g. "Bug", "Security", "Style"
	Message  string `json:"message"`
}

// FileLevel reports whether the finding has no line anchor.
func (f *Finding) FileLevel() bool {
	return f.Line == FileLevelLine
}

// ChunkResult is the outcome of one model pass over one chunk. A failed chunk
// carries zero findings and an error message; the job continues regardless.
type ChunkResult struct {
	Ordinal  int
	FilePath string
	Findings []Finding
	// Degraded is set when the request had to be truncated to fit the token budget.
	Degraded bool
	// Err holds the terminal model error for this chunk, if any.
	Err error
}

// GlobalContext is the cross-file context produced by the summary pass and
// fed into every per-file review call.
type GlobalContext struct {
	Summary string
	// Degraded is set when the summary had to be truncated or the summary
	// pass failed entirely and the reviews proceed without PR-wide context.
	Degraded bool
}

// PostStatus tracks a single review comment through posting.
type PostStatus string

const (
	PostPending PostStatus = "pending"
	PostPosted  PostStatus = "posted"
	PostFailed  PostStatus = "failed"
)

// ReviewComment records the posting state of one finding. ExternalID stays
// zero until the hosting system acknowledges the comment, which makes
// re-execution of the posting stage idempotent.
type ReviewComment struct {
	JobID        string     `db:"job_id"`
	Ordinal      int        `db:"ordinal"`
	FindingIndex int        `db:"finding_index"`
	FilePath     string     `db:"file_path"`
	Line         int        `db:"line"`
	Body         string     `db:"body"`
	ExternalID   int64      `db:"external_id"`
	PostStatus   PostStatus `db:"post_status"`
}

// PostResult summarizes a publishing pass over a job's findings.
type PostResult struct {
	Posted  int
	Failed  int
	Skipped int
}
