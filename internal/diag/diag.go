// Package diag implements the classified diagnostics engine. Every anomaly the
// engine can surface belongs to a closed set of kinds; each kind is configured
// fatal, warning, or ignored, and warnings are subject to a per-kind
// maximum-count suppressor.
package diag

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"sync"

	"github.com/fatih/color"
)

// Kind identifies one class of diagnostic.
type Kind int

// The closed set of diagnostic kinds.
const (
	Source Kind = iota
	Unmapped
	Category
	Path
	Inconsistent
	Mismatch
	Branch
	Version
	Empty
	Unused
	Parallel
	Package
	Negative
	Count
	Format
	Corrupt
	Unsupported

	numKinds
)

var kindNames = [numKinds]string{
	Source:       "source",
	Unmapped:     "unmapped",
	Category:     "category",
	Path:         "path",
	Inconsistent: "inconsistent",
	Mismatch:     "mismatch",
	Branch:       "branch",
	Version:      "version",
	Empty:        "empty",
	Unused:       "unused",
	Parallel:     "parallel",
	Package:      "package",
	Negative:     "negative",
	Count:        "count",
	Format:       "format",
	Corrupt:      "corrupt",
	Unsupported:  "unsupported",
}

// String returns the stable name used as the stderr message prefix.
func (k Kind) String() string {
	if k < 0 || k >= numKinds {
		return fmt.Sprintf("kind(%d)", int(k))
	}

	return kindNames[k]
}

// ParseKind resolves a kind by its stable name.
func ParseKind(name string) (Kind, error) {
	for k, n := range kindNames {
		if n == name {
			return Kind(k), nil
		}
	}

	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, name)
}

// Severity controls how a reported diagnostic is handled.
type Severity int

// Severity levels, from silent to aborting.
const (
	Ignore Severity = iota
	Warn
	Fatal
)

// ErrUnknownKind is returned when a kind name is not in the closed set.
var ErrUnknownKind = errors.New("unknown diagnostic kind")

// ErrFatal wraps every diagnostic whose kind is configured fatal.
var ErrFatal = errors.New("fatal diagnostic")

// Reporter collects and emits diagnostics. It is safe for concurrent use.
type Reporter struct {
	mu        sync.Mutex
	severity  [numKinds]Severity
	counts    [numKinds]int
	maxCount  int
	out       io.Writer
	logger    *slog.Logger
	colorized bool
}

// Option mutates a Reporter during construction.
type Option func(*Reporter)

// WithOutput redirects diagnostic text away from stderr.
func WithOutput(w io.Writer) Option {
	return func(r *Reporter) { r.out = w }
}

// WithMaxCount caps the number of printed messages per kind; further messages
// of that kind are counted but not printed. Zero means unlimited.
func WithMaxCount(n int) Option {
	return func(r *Reporter) { r.maxCount = n }
}

// WithColor toggles colored severity prefixes.
func WithColor(enabled bool) Option {
	return func(r *Reporter) { r.colorized = enabled }
}

// WithSeverity overrides the handling of one kind.
func WithSeverity(kind Kind, severity Severity) Option {
	return func(r *Reporter) { r.severity[kind] = severity }
}

// NewReporter builds a reporter where every kind defaults to Warn except the
// structurally fatal ones (Corrupt).
func NewReporter(logger *slog.Logger, opts ...Option) *Reporter {
	reporter := &Reporter{
		out:    os.Stderr,
		logger: logger,
	}

	for k := range reporter.severity {
		reporter.severity[k] = Warn
	}

	reporter.severity[Corrupt] = Fatal

	for _, opt := range opts {
		opt(reporter)
	}

	return reporter
}

// Report records one diagnostic. The returned error is non-nil only when the
// kind is configured fatal; callers propagate it up to abort the run.
func (r *Reporter) Report(kind Kind, format string, args ...any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.counts[kind]++

	severity := r.severity[kind]
	if severity == Ignore {
		return nil
	}

	message := fmt.Sprintf(format, args...)

	if severity == Fatal {
		fmt.Fprintf(r.out, "%s: (%s) %s\n", r.label("error"), kind, message)

		return fmt.Errorf("%w: (%s) %s", ErrFatal, kind, message)
	}

	if r.maxCount > 0 && r.counts[kind] > r.maxCount {
		if r.counts[kind] == r.maxCount+1 {
			fmt.Fprintf(r.out, "%s: (%s) further messages suppressed after %d\n",
				r.label("warning"), kind, r.maxCount)
		}

		return nil
	}

	fmt.Fprintf(r.out, "%s: (%s) %s\n", r.label("warning"), kind, message)

	if r.logger != nil {
		r.logger.Warn("diagnostic", "kind", kind.String(), "message", message)
	}

	return nil
}

func (r *Reporter) label(severity string) string {
	if !r.colorized {
		return severity
	}

	if severity == "error" {
		return color.RedString(severity)
	}

	return color.YellowString(severity)
}

// CountOf returns how many diagnostics of the kind were reported.
func (r *Reporter) CountOf(kind Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.counts[kind]
}

// Total returns the number of diagnostics reported across all kinds.
func (r *Reporter) Total() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	total := 0
	for _, c := range r.counts {
		total += c
	}

	return total
}

// Summary returns a "kind: count" breakdown of the non-zero kinds, sorted by
// kind name, for the post-run report.
func (r *Reporter) Summary() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var lines []string

	for k, c := range r.counts {
		if c > 0 {
			lines = append(lines, fmt.Sprintf("%s: %d", Kind(k), c))
		}
	}

	sort.Strings(lines)

	return lines
}
