package llm

import (
	"fmt"
	"strings"

	"github.com/sevigo/reviewflow/internal/core"
)

const summaryInstructions = `You are reviewing a pull request. Summarize the intent of the
following changes in one short paragraph: what the change does, which areas it
touches, and anything a per-file reviewer should keep in mind. Output plain
text only.`

const reviewInstructions = `You are reviewing one file of a pull request. Report genuine
problems in the changed lines only. For every problem, output a block in exactly
this format:

## Finding [<file path>:<new-side line number>]
**Severity:** Low|Medium|High|Critical
**Category:** Bug|Security|Performance|Style|Best Practice
<one short paragraph explaining the problem>

Use line number 0 for feedback about the file as a whole. If the changes look
fine, output nothing.`

// buildSummaryPrompt assembles the ordinal-0 request.
func buildSummaryPrompt(job *core.ReviewJob, chunk core.DiffChunk) string {
	var b strings.Builder
	b.WriteString(summaryInstructions)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Pull request: %s (#%d in %s)\n\n", job.PRTitle, job.PRNumber, job.RepoFullName)
	b.WriteString("```diff\n")
	b.WriteString(chunk.Content)
	b.WriteString("\n```\n")
	return b.String()
}

// buildReviewPrompt assembles a per-file request carrying the global context
// produced by the summary pass.
func buildReviewPrompt(chunk core.DiffChunk, gc core.GlobalContext) string {
	var b strings.Builder
	b.WriteString(reviewInstructions)
	b.WriteString("\n\n")
	if gc.Summary != "" {
		b.WriteString("Overall PR context:\n")
		b.WriteString(gc.Summary)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "Current file: `%s`. Focus only on the changes in this file.\n\n", chunk.FilePath)
	b.WriteString("```diff\n")
	b.WriteString(chunk.Content)
	b.WriteString("\n```\n")
	return b.String()
}
