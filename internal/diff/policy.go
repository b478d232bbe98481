package diff

import (
	"path"
	"strings"
)

// defaultExcludes cover generated and vendored paths that are never worth a
// model pass. Configuration and per-repo policy files extend this list.
var defaultExcludes = []string{
	"vendor/",
	"node_modules/",
	"*.pb.go",
	"*_generated.go",
	"*.min.js",
	"*.min.css",
	"go.sum",
	"package-lock.json",
	"yarn.lock",
}

// ExclusionPolicy decides which changed files are skipped by the decomposer.
type ExclusionPolicy struct {
	patterns []string
}

// NewExclusionPolicy builds a policy from the default exclusions plus any
// configured extra patterns. A pattern ending in '/' matches a path prefix;
// anything else is matched as a glob against the full path and the base name.
func NewExclusionPolicy(extra ...string) *ExclusionPolicy {
	patterns := make([]string, 0, len(defaultExcludes)+len(extra))
	patterns = append(patterns, defaultExcludes...)
	patterns = append(patterns, extra...)
	return &ExclusionPolicy{patterns: patterns}
}

// With returns a copy of the policy extended with additional patterns. The
// receiver is left untouched, so per-repo extensions never leak between jobs.
func (p *ExclusionPolicy) With(extra ...string) *ExclusionPolicy {
	patterns := make([]string, 0, len(p.patterns)+len(extra))
	patterns = append(patterns, p.patterns...)
	patterns = append(patterns, extra...)
	return &ExclusionPolicy{patterns: patterns}
}

// Excluded reports whether the given file path is excluded from review.
func (p *ExclusionPolicy) Excluded(filePath string) bool {
	filePath = strings.TrimPrefix(filePath, "./")
	for _, pattern := range p.patterns {
		if strings.HasSuffix(pattern, "/") {
			if strings.HasPrefix(filePath, pattern) || strings.Contains(filePath, "/"+pattern) {
				return true
			}
			continue
		}
		if ok, _ := path.Match(pattern, filePath); ok {
			return true
		}
		if ok, _ := path.Match(pattern, path.Base(filePath)); ok {
			return true
		}
	}
	return false
}
