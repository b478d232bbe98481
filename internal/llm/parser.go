package llm

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/sevigo/reviewflow/internal/core"
)

var (
	// Matches: ## Finding [path/to/file.go:123] with optional space after the colon.
	findingHeaderRegex = regexp.MustCompile(`(?i)##\s+Finding\s+\[(.*?):\s*(\d+)\]`)
	severityRegex      = regexp.MustCompile(`(?i)\*\*Severity:?\*\*\s*(.*)`)
	categoryRegex      = regexp.MustCompile(`(?i)\*\*Category:?\*\*\s*(.*)`)
)

// ParseFindings extracts structured findings from the model's Markdown
// output. It tolerates common model quirks: output wrapped in code fences,
// inconsistent casing, and missing metadata lines. Unparseable blocks are
// skipped rather than failing the chunk.
func ParseFindings(raw string) []core.Finding {
	raw = stripMarkdownFence(raw)

	var findings []core.Finding
	var current *core.Finding
	var body strings.Builder

	flush := func() {
		if current == nil {
			return
		}
		current.Message = strings.TrimSpace(body.String())
		body.Reset()
		if current.Message != "" {
			findings = append(findings, *current)
		}
		current = nil
	}

	for _, rawLine := range strings.Split(raw, "\n") {
		line := strings.TrimSpace(rawLine)

		if m := findingHeaderRegex.FindStringSubmatch(line); m != nil {
			flush()
			lineNum, _ := strconv.Atoi(m[2])
			current = &core.Finding{
				FilePath: strings.TrimSpace(m[1]),
				Line:     lineNum,
			}
			continue
		}
		if current == nil {
			continue
		}

		if m := severityRegex.FindStringSubmatch(line); m != nil {
			current.Severity = strings.TrimSpace(m[1])
			continue
		}
		if m := categoryRegex.FindStringSubmatch(line); m != nil {
			current.Category = strings.TrimSpace(m[1])
			continue
		}
		if strings.HasPrefix(line, "#") {
			// A new section the model invented; close the current finding.
			flush()
			continue
		}

		if line != "" || body.Len() > 0 {
			body.WriteString(rawLine)
			body.WriteByte('\n')
		}
	}
	flush()

	return findings
}

// stripMarkdownFence removes a wrapping ```markdown ... ``` fence some models
// add around their whole answer.
func stripMarkdownFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return s
	}
	idx := strings.Index(trimmed, "\n")
	if idx < 0 {
		return s
	}
	inner := trimmed[idx+1:]
	if last := strings.LastIndex(inner, "```"); last >= 0 {
		inner = inner[:last]
	}
	return strings.TrimSpace(inner)
}
