package diff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDiff = `diff --git a/main.go b/main.go
index 1111111..2222222 100644
--- a/main.go
+++ b/main.go
@@ -1,4 +1,5 @@
 package main
 
+import "fmt"
 
 func main() {
@@ -10,3 +11,4 @@
 func helper() {
 	return
+	fmt.Println("done")
 }
diff --git a/img.png b/img.png
index 3333333..4444444 100644
Binary files a/img.png and b/img.png differ
diff --git a/old.go b/old.go
deleted file mode 100644
index 5555555..0000000
--- a/old.go
+++ /dev/null
@@ -1,3 +0,0 @@
-package old
-
-func gone() {}
`

func TestParse(t *testing.T) {
	files, err := Parse(sampleDiff)
	require.NoError(t, err)
	require.Len(t, files, 3)

	modified := files[0]
	assert.Equal(t, "main.go", modified.Path)
	assert.False(t, modified.Binary)
	require.Len(t, modified.Hunks, 2)

	first := modified.Hunks[0]
	assert.Equal(t, 1, first.OldStart)
	assert.Equal(t, 4, first.OldLines)
	assert.Equal(t, 1, first.NewStart)
	assert.Equal(t, 5, first.NewLines)
	assert.Equal(t, 5, first.NewEnd())

	second := modified.Hunks[1]
	assert.Equal(t, 11, second.NewStart)
	assert.Equal(t, 4, second.NewLines)
	assert.Equal(t, 14, second.NewEnd())

	binary := files[1]
	assert.Equal(t, "img.png", binary.Path)
	assert.True(t, binary.Binary)
	assert.Empty(t, binary.Hunks)

	deleted := files[2]
	assert.Equal(t, "", deleted.Path)
	assert.Equal(t, "old.go", deleted.OldPath)
	require.Len(t, deleted.Hunks, 1)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		diff string
	}{
		{name: "empty input", diff: ""},
		{name: "whitespace only", diff: "   \n\t\n"},
		{name: "no file diffs", diff: "just some text\nwithout any markers\n"},
		{name: "hunk before file header", diff: "@@ -1,2 +1,2 @@\n-a\n+b\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.diff)
			assert.Error(t, err)
		})
	}
}

func TestFileDiffTextRoundTrip(t *testing.T) {
	files, err := Parse(sampleDiff)
	require.NoError(t, err)

	text := files[0].Text()
	assert.Contains(t, text, "diff --git a/main.go b/main.go")
	assert.Contains(t, text, "@@ -1,4 +1,5 @@")
	assert.Contains(t, text, `+import "fmt"`)

	reparsed, err := Parse(text)
	require.NoError(t, err)
	require.Len(t, reparsed, 1)
	assert.Equal(t, files[0].Path, reparsed[0].Path)
	assert.Len(t, reparsed[0].Hunks, len(files[0].Hunks))
}

func TestChangedLineCount(t *testing.T) {
	files, err := Parse(sampleDiff)
	require.NoError(t, err)

	assert.Equal(t, 2, files[0].ChangedLineCount())
	assert.Equal(t, 0, files[1].ChangedLineCount())
	assert.Equal(t, 3, files[2].ChangedLineCount())
}

func TestCommentableLines(t *testing.T) {
	files, err := Parse(sampleDiff)
	require.NoError(t, err)

	lines := files[0].CommentableLines()
	// First hunk covers new lines 1-5, second hunk 11-14.
	for _, want := range []int{1, 2, 3, 4, 5, 11, 12, 13, 14} {
		assert.Contains(t, lines, want, "line %d should be commentable", want)
	}
	assert.NotContains(t, lines, 6)
	assert.NotContains(t, lines, 10)

	byFile := CommentableLinesByFile(files)
	assert.Contains(t, byFile, "main.go")
	assert.NotContains(t, byFile, "img.png")
}

func TestCommentableLinesSkipRemovals(t *testing.T) {
	diffText := `diff --git a/a.go b/a.go
index 1..2 100644
--- a/a.go
+++ b/a.go
@@ -5,4 +5,3 @@
 context
-removed one
-removed two
+added
 trailing
`
	files, err := Parse(diffText)
	require.NoError(t, err)
	require.Len(t, files, 1)

	lines := files[0].CommentableLines()
	assert.Equal(t, map[int]struct{}{5: {}, 6: {}, 7: {}}, lines)
}
