// Package source loads source file text at the current or baseline revision
// and provides the line classifiers used by the post-ingest filters.
package source

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/Sumatoshi-tech/deltacov/internal/diffmap"
)

// File is the text of one source file at the current revision.
type File struct {
	Path  string
	Lines []string

	// Synthesized marks content generated for an unreadable file.
	Synthesized bool
}

// Read loads the current revision of a file from disk.
func Read(path string) (*File, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}

	lines := strings.Split(string(content), "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	return &File{Path: path, Lines: lines}, nil
}

// Synthesize fabricates placeholder content for an unreadable file, long
// enough to anchor every coverpoint up to maxLine.
func Synthesize(path string, maxLine int) *File {
	lines := make([]string, maxLine)
	for i := range lines {
		lines[i] = fmt.Sprintf("/* %s: line %d not found */", path, i+1)
	}

	return &File{Path: path, Lines: lines, Synthesized: true}
}

// Line returns the 1-based line text, or empty when out of range.
func (f *File) Line(no int) string {
	if no < 1 || no > len(f.Lines) {
		return ""
	}

	return f.Lines[no-1]
}

// Len returns the number of lines.
func (f *File) Len() int {
	return len(f.Lines)
}

// Baseline is a view of the baseline revision built from the current file and
// the diff map: baseline lines that survived the change delegate to their
// mapped current line, deleted lines have no text.
type Baseline struct {
	current *File
	dm      *diffmap.Map
	path    string
}

// NewBaseline wraps a current file with the diff map.
func NewBaseline(current *File, dm *diffmap.Map) *Baseline {
	return &Baseline{current: current, dm: dm, path: current.Path}
}

// Line returns the text of a baseline line, or ok=false when the line was
// deleted by the change.
func (b *Baseline) Line(oldNo int) (string, bool) {
	if b.dm.Kind(b.path, diffmap.Old, oldNo) != diffmap.Equal {
		return "", false
	}

	return b.current.Line(b.dm.Lookup(b.path, diffmap.Old, oldNo)), true
}

// IsBlank reports whether the baseline line is blank. Deleted lines are not.
func (b *Baseline) IsBlank(oldNo int) bool {
	text, ok := b.Line(oldNo)

	return ok && IsBlank(text)
}

// IsCloseBrace delegates to the mapped current line.
func (b *Baseline) IsCloseBrace(oldNo int) bool {
	text, ok := b.Line(oldNo)

	return ok && IsCloseBrace(text)
}

// ContainsConditional delegates to the mapped current line.
func (b *Baseline) ContainsConditional(oldNo int) bool {
	text, ok := b.Line(oldNo)

	return ok && ContainsConditional(text)
}

// IsCharacter delegates to the mapped current line.
func (b *Baseline) IsCharacter(oldNo int, ch byte) bool {
	text, ok := b.Line(oldNo)

	return ok && IsCharacter(text, ch)
}

// IsBlank reports whether the line contains only whitespace.
func IsBlank(line string) bool {
	return strings.TrimSpace(line) == ""
}

// IsCloseBrace reports whether the line is a bare closing brace, optionally
// followed by a semicolon or comma.
func IsCloseBrace(line string) bool {
	trimmed := strings.TrimSpace(line)

	switch trimmed {
	case "}", "};", "},":
		return true
	}

	return false
}

// conditionalPattern matches the operators that make a line a plausible
// branch site.
var conditionalPattern = regexp.MustCompile(
	`\bif\b|\bswitch\b|\bcase\b|\bwhile\b|\bfor\b|[?]|&&|\|\|`)

// ContainsConditional reports whether the line plausibly holds a conditional
// expression. Used by the branch filter to drop compiler-fabricated branches
// on lines without one.
func ContainsConditional(line string) bool {
	return conditionalPattern.MatchString(line)
}

// IsCharacter reports whether the line consists of a single punctuation
// character, optionally terminated by a semicolon or comma.
func IsCharacter(line string, ch byte) bool {
	trimmed := strings.TrimSpace(line)
	trimmed = strings.TrimRight(trimmed, ";,")

	return len(trimmed) == 1 && trimmed[0] == ch
}

// Omitter drops coverage from source lines matching any omit_lines pattern.
type Omitter struct {
	patterns []*regexp.Regexp
	specs    []string
	used     []bool
}

// NewOmitter compiles the omit_lines regular expressions.
func NewOmitter(specs []string) (*Omitter, error) {
	omitter := &Omitter{
		specs: specs,
		used:  make([]bool, len(specs)),
	}

	for _, spec := range specs {
		re, err := regexp.Compile(spec)
		if err != nil {
			return nil, fmt.Errorf("omit pattern %q: %w", spec, err)
		}

		omitter.patterns = append(omitter.patterns, re)
	}

	return omitter, nil
}

// Omit reports whether the line's coverage should be dropped.
func (o *Omitter) Omit(line string) bool {
	if o == nil {
		return false
	}

	for i, re := range o.patterns {
		if re.MatchString(line) {
			o.used[i] = true

			return true
		}
	}

	return false
}

// Unused returns the omit patterns that never matched.
func (o *Omitter) Unused() []string {
	if o == nil {
		return nil
	}

	var unused []string

	for i, spec := range o.specs {
		if !o.used[i] {
			unused = append(unused, "omit:"+spec)
		}
	}

	return unused
}
