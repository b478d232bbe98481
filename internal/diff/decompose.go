package diff

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/sevigo/reviewflow/internal/core"
)

// Budget holds the token ceilings the decomposer works under.
type Budget struct {
	// SummaryTokens bounds the ordinal-0 summary chunk.
	SummaryTokens int
	// ChunkTokens bounds every per-file chunk.
	ChunkTokens int
}

// Decomposer splits a unified diff into an ordered sequence of token-bounded
// chunks: one PR-level summary chunk (ordinal 0) followed by one or more
// chunks per changed file in the diff's original order.
type Decomposer struct {
	policy *ExclusionPolicy
	budget Budget
	logger *slog.Logger
}

// NewDecomposer creates a Decomposer with the given exclusion policy and budget.
func NewDecomposer(policy *ExclusionPolicy, budget Budget, logger *slog.Logger) *Decomposer {
	if policy == nil {
		policy = NewExclusionPolicy()
	}
	return &Decomposer{policy: policy, budget: budget, logger: logger}
}

// WithExtraExcludes returns a Decomposer whose exclusion policy is extended
// with additional patterns, typically from a repository's policy file. The
// receiver is unchanged.
func (d *Decomposer) WithExtraExcludes(patterns []string) *Decomposer {
	if len(patterns) == 0 {
		return d
	}
	return &Decomposer{policy: d.policy.With(patterns...), budget: d.budget, logger: d.logger}
}

// Decompose parses the diff and produces the job's chunk sequence. Binary
// files, excluded paths, and files without changed lines never produce a
// chunk. The returned error wraps core.ErrDiffUnavailable only when the diff
// itself is unusable.
func (d *Decomposer) Decompose(jobID, diffText string) ([]core.DiffChunk, error) {
	files, err := Parse(diffText)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrDiffUnavailable, err)
	}

	reviewable := make([]*FileDiff, 0, len(files))
	for _, f := range files {
		switch {
		case f.Binary:
			d.logger.Debug("skipping binary file", "path", f.Path)
		case f.Path == "":
			d.logger.Debug("skipping deleted file", "path", f.OldPath)
		case d.policy.Excluded(f.Path):
			d.logger.Debug("skipping excluded path", "path", f.Path)
		case f.ChangedLineCount() == 0:
			d.logger.Debug("skipping file without changed lines", "path", f.Path)
		default:
			reviewable = append(reviewable, f)
		}
	}
	if len(reviewable) == 0 {
		return nil, nil
	}

	chunks := []core.DiffChunk{d.summaryChunk(jobID, reviewable)}
	for _, f := range reviewable {
		chunks = append(chunks, d.fileChunks(jobID, f, len(chunks))...)
	}
	return chunks, nil
}

// summaryChunk builds ordinal 0: the whole diff, truncated file-by-file
// (largest files first) until it fits the summary budget. It exists purely to
// give later per-file passes cross-file context.
func (d *Decomposer) summaryChunk(jobID string, files []*FileDiff) core.DiffChunk {
	// Work on mutable per-file hunk lists so truncation can drop hunks from
	// the tail of whichever file is currently largest.
	texts := make([]string, len(files))
	hunksLeft := make([][]*Hunk, len(files))
	for i, f := range files {
		texts[i] = f.Text()
		hunksLeft[i] = append([]*Hunk(nil), f.Hunks...)
	}

	total := func() int {
		n := 0
		for _, t := range texts {
			n += EstimateTokens(t)
		}
		return n
	}

	truncated := false
	for total() > d.budget.SummaryTokens {
		largest := -1
		for i := range texts {
			if len(hunksLeft[i]) == 0 {
				continue
			}
			if largest < 0 || len(texts[i]) > len(texts[largest]) {
				largest = i
			}
		}
		if largest < 0 {
			break // only headers remain everywhere
		}
		hunksLeft[largest] = hunksLeft[largest][:len(hunksLeft[largest])-1]
		var b strings.Builder
		b.WriteString(files[largest].HeaderText())
		for _, h := range hunksLeft[largest] {
			b.WriteString(h.Text())
		}
		texts[largest] = b.String()
		truncated = true
	}

	content := strings.Join(texts, "")
	if est := EstimateTokens(content); est > d.budget.SummaryTokens {
		// Headers alone blew the budget; hard-truncate as the last resort.
		content = content[:d.budget.SummaryTokens*3]
		truncated = true
	}
	if truncated {
		d.logger.Info("summary chunk truncated to fit budget",
			"job_id", jobID, "budget", d.budget.SummaryTokens)
	}

	return core.DiffChunk{
		JobID:         jobID,
		Ordinal:       core.SummaryOrdinal,
		TokenEstimate: EstimateTokens(content),
		Content:       content,
	}
}

// fileChunks emits the chunks for one changed file starting at nextOrdinal.
// A file whose diff fits the chunk budget yields a single chunk; otherwise it
// is split at hunk boundaries, never inside a hunk.
func (d *Decomposer) fileChunks(jobID string, f *FileDiff, nextOrdinal int) []core.DiffChunk {
	header := f.HeaderText()

	if EstimateTokens(f.Text()) <= d.budget.ChunkTokens {
		return []core.DiffChunk{d.buildChunk(jobID, f, nextOrdinal, header, f.Hunks)}
	}

	var chunks []core.DiffChunk
	var group []*Hunk
	groupSize := EstimateTokens(header)

	flush := func() {
		if len(group) == 0 {
			return
		}
		chunks = append(chunks, d.buildChunk(jobID, f, nextOrdinal+len(chunks), header, group))
		group = nil
		groupSize = EstimateTokens(header)
	}

	for _, h := range f.Hunks {
		hunkSize := EstimateTokens(h.Text())
		if groupSize+hunkSize > d.budget.ChunkTokens && len(group) > 0 {
			flush()
		}
		if EstimateTokens(header)+hunkSize > d.budget.ChunkTokens {
			// A single hunk that alone exceeds the budget is trimmed from its
			// tail; splitting it across chunks would break line anchoring.
			flush()
			chunks = append(chunks, d.oversizedHunkChunk(jobID, f, nextOrdinal+len(chunks), header, h))
			continue
		}
		group = append(group, h)
		groupSize += hunkSize
	}
	flush()

	return chunks
}

func (d *Decomposer) buildChunk(jobID string, f *FileDiff, ordinal int, header string, hunks []*Hunk) core.DiffChunk {
	var b strings.Builder
	b.WriteString(header)
	for _, h := range hunks {
		b.WriteString(h.Text())
	}
	content := b.String()

	hr := core.HunkRange{}
	if len(hunks) > 0 {
		hr.Start = hunks[0].NewStart
		hr.End = hunks[len(hunks)-1].NewEnd()
	}

	return core.DiffChunk{
		JobID:         jobID,
		Ordinal:       ordinal,
		FilePath:      f.Path,
		HunkRange:     hr,
		TokenEstimate: EstimateTokens(content),
		Content:       content,
	}
}

// oversizedHunkChunk emits a budget-respecting chunk for a hunk that alone
// exceeds the chunk budget, dropping body lines from the tail.
func (d *Decomposer) oversizedHunkChunk(jobID string, f *FileDiff, ordinal int, header string, h *Hunk) core.DiffChunk {
	trimmed := &Hunk{
		Header:   h.Header,
		OldStart: h.OldStart,
		OldLines: h.OldLines,
		NewStart: h.NewStart,
		NewLines: h.NewLines,
		Body:     append([]string(nil), h.Body...),
	}
	for len(trimmed.Body) > 0 && EstimateTokens(header)+EstimateTokens(trimmed.Text()) > d.budget.ChunkTokens {
		trimmed.Body = trimmed.Body[:len(trimmed.Body)-1]
	}
	d.logger.Warn("oversized hunk trimmed to fit chunk budget",
		"job_id", jobID, "path", f.Path, "hunk", h.Header,
		"kept_lines", len(trimmed.Body), "total_lines", len(h.Body))

	return d.buildChunk(jobID, f, ordinal, header, []*Hunk{trimmed})
}

// TruncateOldestHunks drops hunks from the front of a chunk's content until
// its estimate fits maxTokens. The model gateway uses this when a chunk plus
// the accumulated global context would exceed the provider limit. Returns the
// (possibly shortened) content and whether anything was dropped.
func TruncateOldestHunks(content string, maxTokens int) (string, bool) {
	if EstimateTokens(content) <= maxTokens {
		return content, false
	}

	lines := strings.Split(content, "\n")
	starts := []int{}
	for i, line := range lines {
		if strings.HasPrefix(line, "@@") {
			starts = append(starts, i)
		}
	}

	// Drop whole hunks oldest-first while more than one remains.
	for len(starts) > 1 {
		kept := strings.Join(lines[starts[1]:], "\n")
		if EstimateTokens(kept) <= maxTokens {
			return kept, true
		}
		lines = lines[starts[1]:]
		starts = starts[1:]
		for i := range starts {
			starts[i] -= starts[0]
		}
	}

	// One hunk (or no hunk structure) left: cut from the front by lines.
	for len(lines) > 1 && EstimateTokens(strings.Join(lines, "\n")) > maxTokens {
		lines = lines[1:]
	}
	out := strings.Join(lines, "\n")
	if EstimateTokens(out) > maxTokens {
		out = out[len(out)-maxTokens*3:]
	}
	return out, true
}
