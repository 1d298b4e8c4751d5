// Package report defines the boundary to the report emitters: the sink that
// consumes (SourceFile, Summary) records, the callback-slice shapes the
// emitters retrieve data through, and a console renderer.
//
// The HTML/CSS emitters themselves live outside the engine; everything they
// need flows through these types.
package report

import (
	"github.com/Sumatoshi-tech/deltacov/internal/cover"
	"github.com/Sumatoshi-tech/deltacov/internal/model"
)

// Sink consumes the aggregated model as the scheduler produces it. File and
// directory records arrive in reap order; the top summary arrives last.
type Sink interface {
	EmitFile(src *model.SourceFile, summary *model.Summary) error
	EmitDirectory(summary *model.Summary) error
	EmitTop(summary *model.Summary) error
}

// SliceKind tags the callback shapes an emitter can request data by.
type SliceKind int

// The callback-slice variants.
const (
	WholeFile SliceKind = iota
	OwnerSlice
	DateSlice
	FileOwnerSlice
	FileDateSlice
)

// Slice selects a view of a source file's category indices: the whole file,
// one owner's lines, one age bin's lines, or the per-file combinations.
// Emitters pattern-match on Kind instead of dispatching through virtuals.
type Slice struct {
	Kind  SliceKind
	File  *model.SourceFile
	Owner string
	Bin   int
}

// ForWholeFile selects every line of the file.
func ForWholeFile(file *model.SourceFile) Slice {
	return Slice{Kind: WholeFile, File: file}
}

// ForOwner selects the lines owned by one author across the file.
func ForOwner(file *model.SourceFile, owner string) Slice {
	return Slice{Kind: OwnerSlice, File: file, Owner: owner}
}

// ForDateBin selects the lines whose age falls in one bin.
func ForDateBin(file *model.SourceFile, bin int) Slice {
	return Slice{Kind: DateSlice, File: file, Bin: bin}
}

// ForFileOwner selects one owner's lines within one file view.
func ForFileOwner(file *model.SourceFile, owner string) Slice {
	return Slice{Kind: FileOwnerSlice, File: file, Owner: owner}
}

// ForFileDateBin selects one age bin's lines within one file view.
func ForFileDateBin(file *model.SourceFile, bin int) Slice {
	return Slice{Kind: FileDateSlice, File: file, Bin: bin}
}

// LineNumbers resolves the slice to the line numbers of one category,
// strictly increasing.
func (s Slice) LineNumbers(tla cover.TLA) []int {
	switch s.Kind {
	case OwnerSlice, FileOwnerSlice:
		owner, ok := s.File.ByOwner[s.Owner]
		if !ok {
			return nil
		}

		return owner.ByTLA[tla]
	case DateSlice, FileDateSlice:
		if s.Bin < 0 || s.Bin >= len(s.File.ByBin) {
			return nil
		}

		return s.File.ByBin[s.Bin].ByTLA[tla]
	default:
		return s.File.ByCategory[tla]
	}
}

// BranchLineNumbers is the branch-index analogue of LineNumbers.
func (s Slice) BranchLineNumbers(tla cover.TLA) []int {
	switch s.Kind {
	case OwnerSlice, FileOwnerSlice:
		owner, ok := s.File.ByOwner[s.Owner]
		if !ok {
			return nil
		}

		return owner.BranchByTLA[tla]
	case DateSlice, FileDateSlice:
		if s.Bin < 0 || s.Bin >= len(s.File.ByBin) {
			return nil
		}

		return s.File.ByBin[s.Bin].BranchByTLA[tla]
	default:
		return s.File.BranchByCategory[tla]
	}
}
