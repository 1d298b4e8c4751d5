package tracefile

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Substitution is one "s/pattern/replacement/" path rewrite.
type Substitution struct {
	Pattern     *regexp.Regexp
	Replacement string
	spec        string
	used        bool
}

// ParseSubstitution compiles an s/from/to/ specification. The delimiter is
// whatever character follows the leading "s".
func ParseSubstitution(spec string) (*Substitution, error) {
	if len(spec) < 4 || spec[0] != 's' {
		return nil, fmt.Errorf("substitute %q: want s/pattern/replacement/", spec)
	}

	delim := string(spec[1])

	parts := strings.Split(spec[2:], delim)
	if len(parts) < 2 {
		return nil, fmt.Errorf("substitute %q: want s/pattern/replacement/", spec)
	}

	re, err := regexp.Compile(parts[0])
	if err != nil {
		return nil, fmt.Errorf("substitute %q: %w", spec, err)
	}

	return &Substitution{Pattern: re, Replacement: parts[1], spec: spec}, nil
}

// PathFilter applies substitute rewrites and include/exclude glob patterns to
// trace paths, tracking which patterns ever matched so unused ones can be
// reported after the run.
type PathFilter struct {
	include     []string
	exclude     []string
	substitute  []*Substitution
	includeUsed []bool
	excludeUsed []bool
}

// NewPathFilter builds a filter; include and exclude use doublestar glob
// syntax, substitutions apply before matching.
func NewPathFilter(include, exclude []string, substitute []*Substitution) (*PathFilter, error) {
	for _, pattern := range append(append([]string{}, include...), exclude...) {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid glob pattern %q", pattern)
		}
	}

	return &PathFilter{
		include:     include,
		exclude:     exclude,
		substitute:  substitute,
		includeUsed: make([]bool, len(include)),
		excludeUsed: make([]bool, len(exclude)),
	}, nil
}

// Apply rewrites the path and reports whether it survives the filters.
func (f *PathFilter) Apply(path string) (string, bool) {
	for _, sub := range f.substitute {
		rewritten := sub.Pattern.ReplaceAllString(path, sub.Replacement)
		if rewritten != path {
			sub.used = true
			path = rewritten
		}
	}

	for i, pattern := range f.exclude {
		if ok, _ := doublestar.Match(pattern, path); ok {
			f.excludeUsed[i] = true

			return path, false
		}
	}

	if len(f.include) == 0 {
		return path, true
	}

	for i, pattern := range f.include {
		if ok, _ := doublestar.Match(pattern, path); ok {
			f.includeUsed[i] = true

			return path, true
		}
	}

	return path, false
}

// Unused returns the patterns that never matched any path, for the post-run
// unused-pattern report.
func (f *PathFilter) Unused() []string {
	var unused []string

	for i, pattern := range f.include {
		if !f.includeUsed[i] {
			unused = append(unused, "include:"+pattern)
		}
	}

	for i, pattern := range f.exclude {
		if !f.excludeUsed[i] {
			unused = append(unused, "exclude:"+pattern)
		}
	}

	for _, sub := range f.substitute {
		if !sub.used {
			unused = append(unused, "substitute:"+sub.spec)
		}
	}

	return unused
}
