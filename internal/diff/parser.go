// Package diff parses unified diffs and decomposes them into review-sized,
// token-bounded chunks.
package diff

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var hunkHeaderRegex = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@`)

// Hunk is one contiguous block of changes in a file diff. Hunks are the
// smallest unit of decomposition: a chunk never contains a partial hunk.
type Hunk struct {
	Header   string
	OldStart int
	OldLines int
	NewStart int
	NewLines int
	// Body holds the hunk's lines with their leading '+', '-' or ' ' markers.
	Body []string
}

// Text renders the hunk back to unified diff form.
func (h *Hunk) Text() string {
	var b strings.Builder
	b.WriteString(h.Header)
	b.WriteByte('\n')
	for _, line := range h.Body {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

// NewEnd returns the last new-side line number the hunk covers.
func (h *Hunk) NewEnd() int {
	if h.NewLines == 0 {
		return h.NewStart
	}
	return h.NewStart + h.NewLines - 1
}

// FileDiff is the parsed diff of a single file.
type FileDiff struct {
	Path    string
	OldPath string
	Binary  bool
	// Header holds the file's preamble lines (diff --git, index, ---, +++).
	Header []string
	Hunks  []*Hunk
}

// Text renders the file diff back to unified diff form.
func (f *FileDiff) Text() string {
	var b strings.Builder
	for _, line := range f.Header {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	for _, h := range f.Hunks {
		b.WriteString(h.Text())
	}
	return b.String()
}

// HeaderText renders only the file preamble.
func (f *FileDiff) HeaderText() string {
	if len(f.Header) == 0 {
		return ""
	}
	return strings.Join(f.Header, "\n") + "\n"
}

// ChangedLineCount counts added and removed lines across all hunks.
func (f *FileDiff) ChangedLineCount() int {
	n := 0
	for _, h := range f.Hunks {
		for _, line := range h.Body {
			if strings.HasPrefix(line, "+") || strings.HasPrefix(line, "-") {
				n++
			}
		}
	}
	return n
}

// CommentableLines returns the new-side line numbers that can anchor a review
// comment: lines present in the new version of the file ('+' and ' ' lines).
func (f *FileDiff) CommentableLines() map[int]struct{} {
	lines := make(map[int]struct{})
	for _, h := range f.Hunks {
		current := h.NewStart
		for _, line := range h.Body {
			switch {
			case strings.HasPrefix(line, "+"), strings.HasPrefix(line, " "):
				lines[current] = struct{}{}
				current++
			case strings.HasPrefix(line, "-"):
				// Removal lines exist only in the old version.
			}
		}
	}
	return lines
}

// Parse splits a unified diff into per-file diffs with parsed hunks.
func Parse(diffText string) ([]*FileDiff, error) {
	if strings.TrimSpace(diffText) == "" {
		return nil, fmt.Errorf("empty diff")
	}

	var files []*FileDiff
	var current *FileDiff
	var hunk *Hunk

	flushHunk := func() {
		if hunk != nil && current != nil {
			current.Hunks = append(current.Hunks, hunk)
		}
		hunk = nil
	}

	for _, line := range strings.Split(diffText, "\n") {
		switch {
		case strings.HasPrefix(line, "diff --git "):
			flushHunk()
			current = &FileDiff{
				Path:   pathFromGitHeader(line),
				Header: []string{line},
			}
			files = append(files, current)

		case current == nil:
			// Preamble before the first file marker; some providers emit a
			// bare patch without the diff --git line.
			if hunkHeaderRegex.MatchString(line) {
				return nil, fmt.Errorf("hunk header before file header: %q", line)
			}

		case strings.HasPrefix(line, "@@"):
			m := hunkHeaderRegex.FindStringSubmatch(line)
			if m == nil {
				return nil, fmt.Errorf("malformed hunk header: %q", line)
			}
			flushHunk()
			hunk = &Hunk{
				Header:   line,
				OldStart: atoiOrZero(m[1]),
				OldLines: atoiOrDefault(m[2], 1),
				NewStart: atoiOrZero(m[3]),
				NewLines: atoiOrDefault(m[4], 1),
			}

		case hunk != nil:
			if line == `\ No newline at end of file` || line == "" {
				// Trailing marker or blank line between files; keep markers
				// inside the hunk so the rendered text round-trips.
				if line != "" {
					hunk.Body = append(hunk.Body, line)
				}
				continue
			}
			if strings.HasPrefix(line, "+") || strings.HasPrefix(line, "-") || strings.HasPrefix(line, " ") {
				hunk.Body = append(hunk.Body, line)
				continue
			}
			// Anything else ends the hunk and belongs to the next file header.
			flushHunk()
			current.Header = append(current.Header, line)

		default:
			if strings.HasPrefix(line, "Binary files ") || line == "GIT binary patch" {
				current.Binary = true
			}
			if strings.HasPrefix(line, "--- ") {
				current.OldPath = stripPathPrefix(strings.TrimPrefix(line, "--- "))
			}
			if strings.HasPrefix(line, "+++ ") {
				// /dev/null maps to "": the file no longer exists and its
				// diff cannot anchor comments.
				current.Path = stripPathPrefix(strings.TrimPrefix(line, "+++ "))
			}
			if line != "" {
				current.Header = append(current.Header, line)
			}
		}
	}
	flushHunk()

	if len(files) == 0 {
		return nil, fmt.Errorf("no file diffs found")
	}
	return files, nil
}

// pathFromGitHeader extracts the new path from a "diff --git a/x b/y" line.
func pathFromGitHeader(line string) string {
	parts := strings.Fields(line)
	if len(parts) < 4 {
		return ""
	}
	return strings.TrimPrefix(parts[3], "b/")
}

// stripPathPrefix removes git's a/ or b/ prefixes and maps /dev/null to "".
func stripPathPrefix(p string) string {
	p = strings.TrimSpace(p)
	if p == "/dev/null" {
		return ""
	}
	if strings.HasPrefix(p, "a/") || strings.HasPrefix(p, "b/") {
		return p[2:]
	}
	return p
}

func atoiOrZero(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func atoiOrDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
