// Package model holds the aggregated coverage model: per-node summaries, the
// per-file source model with its category indices, and the navigation
// queries the report is browsed with.
package model

import (
	"github.com/Sumatoshi-tech/deltacov/internal/cover"
)

// NodeKind distinguishes the three summary node levels.
type NodeKind int

// Summary node kinds.
const (
	FileNode NodeKind = iota
	DirectoryNode
	TopNode
)

// String returns the node kind name used at the criteria boundary.
func (k NodeKind) String() string {
	switch k {
	case FileNode:
		return "file"
	case DirectoryNode:
		return "directory"
	default:
		return "top"
	}
}

// Rate sentinel for nodes with nothing to cover.
const emptyRate = 1000

// Counts is the additive coverage tally of one coverage kind: found and hit
// totals plus the full per-category breakdown.
type Counts struct {
	Found  int64
	Hit    int64
	PerTLA [cover.NumTLA]int64
}

// Add tallies one coverpoint. Only current-revision categories contribute to
// found; the hit categories additionally contribute to hit.
func (c *Counts) Add(tla cover.TLA) {
	c.PerTLA[tla]++

	if tla.InCurrent() {
		c.Found++

		if tla.Hit() {
			c.Hit++
		}
	}
}

// Append adds another tally into this one.
func (c *Counts) Append(other *Counts) {
	c.Found += other.Found
	c.Hit += other.Hit

	for i := range c.PerTLA {
		c.PerTLA[i] += other.PerTLA[i]
	}
}

// Rate computes the sort key for this tally. The formula folds the total size
// into the low digits so that, at equal percentage, larger nodes sort above
// smaller ones. Nothing to cover yields the sentinel 1000.
func (c *Counts) Rate() int64 {
	if c.Found == 0 {
		return emptyRate
	}

	return c.Hit*1000/c.Found*10 + 2 - 1/c.Found
}

// TLATally is a bare per-category count vector, used where found/hit totals
// do not apply (owner tables).
type TLATally [cover.NumTLA]int64

// Add tallies one coverpoint.
func (t *TLATally) Add(tla cover.TLA) {
	t[tla]++
}

// Append adds another vector into this one.
func (t *TLATally) Append(other *TLATally) {
	for i := range t {
		t[i] += other[i]
	}
}

// OwnerCounts is one owner's line and branch category breakdown.
type OwnerCounts struct {
	Line   TLATally
	Branch TLATally
}

// AgeBins carries one Counts per age bin for each coverage kind.
type AgeBins struct {
	Line     []Counts
	Branch   []Counts
	Function []Counts
}

// newAgeBins allocates n bins per kind.
func newAgeBins(n int) AgeBins {
	return AgeBins{
		Line:     make([]Counts, n),
		Branch:   make([]Counts, n),
		Function: make([]Counts, n),
	}
}

// Summary is the aggregated coverage of one node: a file, a directory, or
// the top of the tree. All fields are strictly additive, which makes the
// rollup commutative and associative.
type Summary struct {
	Kind NodeKind
	Name string

	Line     Counts
	Branch   Counts
	Function Counts

	Ages AgeBins

	Owners map[string]*OwnerCounts

	// parent is a non-owning back-reference used during ingest. It is
	// unexported so it never crosses a serialization boundary.
	parent *Summary
}

// NewSummary creates an empty summary with numBins age bins per kind.
func NewSummary(kind NodeKind, name string, numBins int) *Summary {
	return &Summary{
		Kind:   kind,
		Name:   name,
		Ages:   newAgeBins(numBins),
		Owners: make(map[string]*OwnerCounts),
	}
}

// Parent returns the ingest-time parent node, if linked.
func (s *Summary) Parent() *Summary {
	return s.parent
}

// SetParent links the ingest-time parent node.
func (s *Summary) SetParent(parent *Summary) {
	s.parent = parent
}

// Owner returns the tally for an owner, creating it on first use.
func (s *Summary) Owner(name string) *OwnerCounts {
	oc, ok := s.Owners[name]
	if !ok {
		oc = &OwnerCounts{}
		s.Owners[name] = oc
	}

	return oc
}

// Append folds a child summary into this one. Every additive field of the
// parent ends up equal to the sum over its children; owner tables merge by
// outer union.
func (s *Summary) Append(child *Summary) {
	s.Line.Append(&child.Line)
	s.Branch.Append(&child.Branch)
	s.Function.Append(&child.Function)

	for i := range s.Ages.Line {
		if i < len(child.Ages.Line) {
			s.Ages.Line[i].Append(&child.Ages.Line[i])
			s.Ages.Branch[i].Append(&child.Ages.Branch[i])
			s.Ages.Function[i].Append(&child.Ages.Function[i])
		}
	}

	for name, childOwner := range child.Owners {
		owner := s.Owner(name)
		owner.Line.Append(&childOwner.Line)
		owner.Branch.Append(&childOwner.Branch)
	}
}

// CountsJSON is the serialized shape of one coverage kind at the criteria
// boundary.
type CountsJSON struct {
	Found  int64            `json:"found"`
	Hit    int64            `json:"hit"`
	PerTLA map[string]int64 `json:"per_tla"`
}

// SummaryJSON is the criteria-facing serialization of a summary node.
type SummaryJSON struct {
	Line     CountsJSON `json:"line"`
	Branch   CountsJSON `json:"branch"`
	Function CountsJSON `json:"function"`
}

func countsJSON(c *Counts) CountsJSON {
	perTLA := make(map[string]int64)

	for t, n := range c.PerTLA {
		if n != 0 {
			perTLA[cover.TLA(t).String()] = n
		}
	}

	return CountsJSON{Found: c.Found, Hit: c.Hit, PerTLA: perTLA}
}

// JSON returns the criteria-facing view of the summary.
func (s *Summary) JSON() SummaryJSON {
	return SummaryJSON{
		Line:     countsJSON(&s.Line),
		Branch:   countsJSON(&s.Branch),
		Function: countsJSON(&s.Function),
	}
}
