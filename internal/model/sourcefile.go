package model

import (
	"sort"

	"github.com/Sumatoshi-tech/deltacov/internal/annotate"
	"github.com/Sumatoshi-tech/deltacov/internal/cover"
	"github.com/Sumatoshi-tech/deltacov/internal/policy"
	"github.com/Sumatoshi-tech/deltacov/internal/source"
)

// SourceLine is one annotated, categorized line of the current revision.
type SourceLine struct {
	No   int
	Text string

	Owner    string
	HasOwner bool
	Age      int
	HasAge   bool

	TLA    cover.TLA
	HasTLA bool

	Branches []cover.BranchRecord
	Function *cover.FunctionRecord
}

// OwnerIndex is the per-owner slice of a file's category indices.
type OwnerIndex struct {
	Lines       []int
	ByTLA       map[cover.TLA][]int
	BranchLines []int
	BranchByTLA map[cover.TLA][]int
}

// newOwnerIndex allocates an empty owner slice.
func newOwnerIndex() *OwnerIndex {
	return &OwnerIndex{
		ByTLA:       make(map[cover.TLA][]int),
		BranchByTLA: make(map[cover.TLA][]int),
	}
}

// BinIndex is the per-age-bin slice of a file's category indices.
type BinIndex struct {
	ByTLA       map[cover.TLA][]int
	BranchByTLA map[cover.TLA][]int
}

func newBinIndex() BinIndex {
	return BinIndex{
		ByTLA:       make(map[cover.TLA][]int),
		BranchByTLA: make(map[cover.TLA][]int),
	}
}

// SourceFile joins annotation and categorization for one current-revision
// file and indexes its lines by category, owner and age bin. It is mutated
// only inside NewSourceFile; afterwards it is read-only and safe to share.
type SourceFile struct {
	Path    string
	Lines   []SourceLine
	Summary *Summary

	// ByCategory and BranchByCategory list the current-revision line numbers
	// per category, strictly increasing.
	ByCategory       map[cover.TLA][]int
	BranchByCategory map[cover.TLA][]int

	ByOwner map[string]*OwnerIndex
	ByBin   []BinIndex
}

// NewSourceFile constructs the per-file model. Records walk in report order:
// current lines ascending, deleted-line ghosts last, so ghosts never perturb
// the visual index.
func NewSourceFile(
	src *source.File,
	ann []annotate.Line,
	records *cover.FileRecords,
	pol *policy.Policy,
) *SourceFile {
	numLines := src.Len()
	if maxLine := records.MaxLine(); maxLine > numLines {
		numLines = maxLine
	}

	sf := &SourceFile{
		Path:             records.Path,
		Lines:            make([]SourceLine, numLines),
		Summary:          NewSummary(FileNode, records.Path, pol.NumBins()),
		ByCategory:       make(map[cover.TLA][]int),
		BranchByCategory: make(map[cover.TLA][]int),
		ByOwner:          make(map[string]*OwnerIndex),
		ByBin:            make([]BinIndex, pol.NumBins()),
	}

	for i := range sf.ByBin {
		sf.ByBin[i] = newBinIndex()
	}

	for i := range sf.Lines {
		line := &sf.Lines[i]
		line.No = i + 1
		line.Text = src.Line(line.No)

		if i < len(ann) && ann[i].HasOwner {
			line.Owner = ann[i].Author
			line.HasOwner = true
			line.Age = ann[i].AgeDays
			line.HasAge = true
		}
	}

	for _, key := range records.SortedKeys() {
		sf.addRecord(key, records.Lines[key], pol)
	}

	sf.addFunctions(records, pol)

	return sf
}

// addRecord folds one line record into the summary and, for lines present in
// the current revision, into the category, owner and age-bin indices.
func (sf *SourceFile) addRecord(key cover.LineKey, rec *cover.LineRecord, pol *policy.Policy) {
	sf.Summary.Line.Add(rec.TLA)

	for i := range rec.Branches {
		sf.Summary.Branch.Add(rec.Branches[i].TLA)
	}

	if key.Ghost || !rec.TLA.InSource() || rec.CurrLine < 1 || rec.CurrLine > len(sf.Lines) {
		return
	}

	line := &sf.Lines[rec.CurrLine-1]
	line.TLA = rec.TLA
	line.HasTLA = true
	line.Branches = rec.Branches
	line.Function = rec.Function

	sf.ByCategory[rec.TLA] = append(sf.ByCategory[rec.TLA], line.No)

	if line.HasOwner {
		owner := sf.owner(line.Owner)
		owner.Lines = append(owner.Lines, line.No)
		owner.ByTLA[rec.TLA] = append(owner.ByTLA[rec.TLA], line.No)

		sf.Summary.Owner(line.Owner).Line.Add(rec.TLA)
	}

	if line.HasAge {
		bin := pol.AgeBinOf(line.Age)
		sf.ByBin[bin].ByTLA[rec.TLA] = append(sf.ByBin[bin].ByTLA[rec.TLA], line.No)
		sf.Summary.Ages.Line[bin].Add(rec.TLA)
	}

	for i := range rec.Branches {
		branchTLA := rec.Branches[i].TLA
		if !branchTLA.InSource() {
			continue
		}

		sf.appendBranchLine(sf.BranchByCategory, branchTLA, line.No)

		if line.HasOwner {
			owner := sf.owner(line.Owner)
			sf.appendBranchLine(owner.BranchByTLA, branchTLA, line.No)

			if len(owner.BranchLines) == 0 || owner.BranchLines[len(owner.BranchLines)-1] != line.No {
				owner.BranchLines = append(owner.BranchLines, line.No)
			}

			sf.Summary.Owner(line.Owner).Branch.Add(branchTLA)
		}

		if line.HasAge {
			bin := pol.AgeBinOf(line.Age)
			sf.appendBranchLine(sf.ByBin[bin].BranchByTLA, branchTLA, line.No)
			sf.Summary.Ages.Branch[bin].Add(branchTLA)
		}
	}
}

// appendBranchLine appends a line number to a branch index, deduplicating the
// common case of several branches of one category on the same line.
func (sf *SourceFile) appendBranchLine(index map[cover.TLA][]int, tla cover.TLA, no int) {
	list := index[tla]
	if len(list) > 0 && list[len(list)-1] == no {
		return
	}

	index[tla] = append(index[tla], no)
}

func (sf *SourceFile) owner(name string) *OwnerIndex {
	idx, ok := sf.ByOwner[name]
	if !ok {
		idx = newOwnerIndex()
		sf.ByOwner[name] = idx
	}

	return idx
}

// addFunctions folds function records into the summary. With aliases present
// each alias counts individually; a merged record counts once through its
// leader. Function age attribution follows the declaring line's annotation.
func (sf *SourceFile) addFunctions(records *cover.FileRecords, pol *policy.Policy) {
	for _, fn := range records.Functions {
		tlas := []cover.TLA{fn.TLA}

		if len(fn.Aliases) > 0 {
			tlas = tlas[:0]

			names := make([]string, 0, len(fn.Aliases))
			for name := range fn.Aliases {
				names = append(names, name)
			}

			sort.Strings(names)

			for _, name := range names {
				tlas = append(tlas, fn.Aliases[name].TLA)
			}
		}

		var line *SourceLine
		if fn.Line >= 1 && fn.Line <= len(sf.Lines) {
			line = &sf.Lines[fn.Line-1]
		}

		for _, tla := range tlas {
			sf.Summary.Function.Add(tla)

			if line != nil && line.HasAge && tla.InSource() {
				sf.Summary.Ages.Function[pol.AgeBinOf(line.Age)].Add(tla)
			}
		}
	}
}
