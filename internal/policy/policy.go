// Package policy holds the immutable per-invocation policy value. It is built
// once per run by engine.Run (not by main) from the resolved configuration,
// via engine.NewPolicy, and passed by reference to
// every component, replacing what would otherwise be process-wide mutable
// state (category tables, cutpoints, filter flags).
package policy

import (
	"sort"
	"time"
)

// Filter names accepted by the "filter" option.
const (
	FilterBrace         = "brace"
	FilterBlank         = "blank"
	FilterRange         = "range"
	FilterBranchNoCond  = "branch_no_cond"
	FilterFunctionAlias = "function_alias"
)

// DefaultDateBins is the default set of age cutpoints, in days.
var DefaultDateBins = []int{7, 30, 180}

// Policy is the immutable invocation-wide configuration consumed by the
// engine components. Construct it once; never mutate it afterwards.
type Policy struct {
	// DateBins are the ordered age cutpoints c1 < c2 < ... < cn defining the
	// n+1 age bins [..c1], (c1,c2], ..., (cn,..].
	DateBins []int

	// Now anchors age computation for annotated lines.
	Now time.Time

	// BranchCoverage and FunctionCoverage toggle the respective coverage kinds.
	BranchCoverage   bool
	FunctionCoverage bool

	// Differential reports whether a baseline trace is configured.
	Differential bool

	// Hierarchical selects the multi-level directory tree over the two-level view.
	Hierarchical bool

	// ElidePathMismatch rewrites unambiguous basename-only diff matches onto
	// the trace path instead of dropping them.
	ElidePathMismatch bool

	// NewFileAsBaseline remaps UIC->UBC and GIC->CBC for files that appear
	// only in the current trace but whose newest line predates the baseline
	// trace, so ratcheting criteria do not penalize newly measured code.
	NewFileAsBaseline bool

	// PathStrip is the number of leading path components stripped from diff
	// entries before they are matched against trace paths.
	PathStrip int

	// Filters is the set of enabled post-ingest filters, keyed by filter name.
	Filters map[string]bool

	// Preserve keeps the per-worker dump and log files after a successful run.
	Preserve bool
}

// NumBins returns the number of age bins implied by the cutpoints.
func (p *Policy) NumBins() int {
	return len(p.DateBins) + 1
}

// AgeBinOf locates the bin index for an age in days. The same function is
// used at line level and during rollup so parent and child always agree.
func (p *Policy) AgeBinOf(ageDays int) int {
	return sort.SearchInts(p.DateBins, ageDays)
}

// FilterEnabled reports whether the named post-ingest filter is active.
func (p *Policy) FilterEnabled(name string) bool {
	return p.Filters[name]
}
