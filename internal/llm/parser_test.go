package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFindings(t *testing.T) {
	raw := `## Finding [internal/server/server.go:42]
**Severity:** High
**Category:** Bug
The error from Shutdown is discarded, so a failed shutdown looks clean.

## Finding [internal/server/server.go:0]
**Severity:** Low
**Category:** Style
This file mixes two naming conventions for handlers.
`

	findings := ParseFindings(raw)
	require.Len(t, findings, 2)

	assert.Equal(t, "internal/server/server.go", findings[0].FilePath)
	assert.Equal(t, 42, findings[0].Line)
	assert.Equal(t, "High", findings[0].Severity)
	assert.Equal(t, "Bug", findings[0].Category)
	assert.Contains(t, findings[0].Message, "failed shutdown looks clean")
	assert.False(t, findings[0].FileLevel())

	assert.Equal(t, 0, findings[1].Line)
	assert.True(t, findings[1].FileLevel())
	assert.Equal(t, "Style", findings[1].Category)
}

func TestParseFindingsQuirks(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want int
	}{
		{name: "empty output", raw: "", want: 0},
		{name: "prose without findings", raw: "The changes look fine to me.", want: 0},
		{
			name: "wrapped in markdown fence",
			raw:  "```markdown\n## Finding [a.go:1]\n**Severity:** Low\nSomething.\n```",
			want: 1,
		},
		{
			name: "lowercase header and spacing",
			raw:  "## finding [a.go: 7]\nmessage body",
			want: 1,
		},
		{
			name: "missing metadata lines",
			raw:  "## Finding [a.go:3]\njust the message",
			want: 1,
		},
		{
			name: "header without message is dropped",
			raw:  "## Finding [a.go:3]\n\n## Finding [b.go:4]\nreal message",
			want: 1,
		},
		{
			name: "invented section ends the finding",
			raw:  "## Finding [a.go:3]\nmessage\n# Conclusion\nall good",
			want: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			findings := ParseFindings(tt.raw)
			assert.Len(t, findings, tt.want)
		})
	}
}

func TestParseFindingsMessageExcludesNextSection(t *testing.T) {
	raw := "## Finding [a.go:3]\nthe message\n# Conclusion\nall good"
	findings := ParseFindings(raw)
	require.Len(t, findings, 1)
	assert.Equal(t, "the message", findings[0].Message)
}
