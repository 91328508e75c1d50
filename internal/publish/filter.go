package publish

import (
	"path"
	"path/filepath"
	"strings"
)

// PathFilter is an ordered set of shell-style path patterns. A relative
// slash-separated path matches when any pattern matches the full path, its
// base name, or any ancestor directory. An empty filter matches nothing, so
// the default exclusion filter excludes zero paths.
type PathFilter struct {
	patterns []string
}

// NewPathFilter builds a filter from ordered patterns. Invalid patterns are
// rejected at config validation time; here they simply never match.
func NewPathFilter(patterns []string) *PathFilter {
	return &PathFilter{patterns: patterns}
}

// Empty reports whether the filter has no patterns.
func (f *PathFilter) Empty() bool {
	return f == nil || len(f.patterns) == 0
}

// Matches reports whether rel (slash-separated, relative) matches the filter.
func (f *PathFilter) Matches(rel string) bool {
	if f.Empty() {
		return false
	}
	rel = filepath.ToSlash(rel)

	for _, pattern := range f.patterns {
		if matchOne(pattern, rel) {
			return true
		}
	}
	return false
}

func matchOne(pattern, rel string) bool {
	if ok, _ := path.Match(pattern, rel); ok {
		return true
	}
	if ok, _ := path.Match(pattern, path.Base(rel)); ok {
		return true
	}
	// A pattern matching a directory excludes everything beneath it.
	for dir := path.Dir(rel); dir != "." && dir != "/"; dir = path.Dir(dir) {
		if ok, _ := path.Match(pattern, dir); ok {
			return true
		}
	}
	return strings.HasPrefix(rel, strings.TrimSuffix(pattern, "/")+"/")
}
