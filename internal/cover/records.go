package cover

import (
	"sort"

	"github.com/Sumatoshi-tech/deltacov/internal/diffmap"
)

// LineKey keys the per-file record table. Deleted baseline lines are keyed as
// ghosts so they are summarized without perturbing the current-line index.
type LineKey struct {
	Ghost bool
	Line  int
}

// Less orders current lines ascending first, ghost lines after.
func (k LineKey) Less(other LineKey) bool {
	if k.Ghost != other.Ghost {
		return !k.Ghost
	}

	return k.Line < other.Line
}

// BranchRecord is one categorized branch outcome.
type BranchRecord struct {
	Block  int
	Branch int

	HasBase   bool
	BaseCount int64
	HasCurr   bool
	CurrCount int64

	TLA  TLA
	Expr string
}

// AliasCov is the per-alias hit count and category of a merged function.
type AliasCov struct {
	Hit int64
	TLA TLA
}

// FunctionRecord is one function, represented by its leader name with every
// alias sharing the source location recorded alongside. The leader's TLA is
// always derived from the merged hit count; the rollup depends on that.
type FunctionRecord struct {
	Name string
	File string

	// Line is the declaring line in the current revision, 0 when the function
	// exists only at baseline or its anchor is unknown.
	Line int

	// Hit is the merged execution count across aliases.
	Hit int64

	TLA TLA

	// Aliases maps each alias name to its own hit count and category. Empty
	// when the function-alias filter merged them away.
	Aliases map[string]AliasCov
}

// LineRecord is the categorized state of one line present in either revision.
type LineRecord struct {
	Kind diffmap.Kind

	// BaseLine and CurrLine are 0 when absent; at least one is set.
	BaseLine int
	CurrLine int

	HasBase   bool
	BaseCount int64
	HasCurr   bool
	CurrCount int64

	TLA TLA

	Branches []BranchRecord

	Function *FunctionRecord
}

// FileRecords is the categorizer's output for one file.
type FileRecords struct {
	Path string

	// Lines is the per-file record table keyed by LineKey.
	Lines map[LineKey]*LineRecord

	// Functions lists every function record, including baseline-only
	// functions that have no current anchor line.
	Functions []*FunctionRecord
}

// SortedKeys returns the table keys in report order: current lines ascending,
// then ghosts ascending.
func (fr *FileRecords) SortedKeys() []LineKey {
	keys := make([]LineKey, 0, len(fr.Lines))
	for key := range fr.Lines {
		keys = append(keys, key)
	}

	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	return keys
}

// MaxLine returns the highest current-revision line number carrying a record.
func (fr *FileRecords) MaxLine() int {
	maxLine := 0

	for key := range fr.Lines {
		if !key.Ghost && key.Line > maxLine {
			maxLine = key.Line
		}
	}

	return maxLine
}

// RemapAsBaseline rewrites the "newly measured" categories onto their
// baseline equivalents: UIC becomes UBC and GIC becomes CBC, across lines,
// branches, functions and aliases. Applied when a file appears only in the
// current trace but its newest line predates the baseline trace, so that
// ratcheting criteria do not penalize code that simply started being
// measured.
func (fr *FileRecords) RemapAsBaseline() {
	remap := func(t TLA) TLA {
		switch t {
		case UIC:
			return UBC
		case GIC:
			return CBC
		default:
			return t
		}
	}

	for _, rec := range fr.Lines {
		rec.TLA = remap(rec.TLA)

		for i := range rec.Branches {
			rec.Branches[i].TLA = remap(rec.Branches[i].TLA)
		}
	}

	for _, fn := range fr.Functions {
		fn.TLA = remap(fn.TLA)

		for name, alias := range fn.Aliases {
			alias.TLA = remap(alias.TLA)
			fn.Aliases[name] = alias
		}
	}
}
