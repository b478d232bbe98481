package diff

import "strings"

// CommentableLinesByFile builds, for every changed file in the diff, the set
// of new-side line numbers a comment can anchor to. The publisher uses it to
// decide between an inline comment and the file-level fallback.
func CommentableLinesByFile(files []*FileDiff) map[string]map[int]struct{} {
	byFile := make(map[string]map[int]struct{}, len(files))
	for _, f := range files {
		if f.Binary || f.Path == "" {
			continue
		}
		byFile[strings.TrimPrefix(f.Path, "./")] = f.CommentableLines()
	}
	return byFile
}
