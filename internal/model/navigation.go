package model

import (
	"sort"

	"github.com/Sumatoshi-tech/deltacov/internal/cover"
)

// Navigation queries answer "where is the next occurrence after line L".
// Every index is strictly increasing, so each query is a binary search plus,
// for grouped line categories, a short walk to the start of the group.
//
// A return of (0, false) means there is no later occurrence; the report links
// such a query back to the top.

// nextAfter returns the smallest element of the sorted list strictly greater
// than after.
func nextAfter(list []int, after int) (int, bool) {
	idx := sort.SearchInts(list, after+1)
	if idx == len(list) {
		return 0, false
	}

	return list[idx], true
}

// NextTLAGroup returns the first line after "after" that starts a block of
// consecutive lines of the category. A block is terminated by a line whose
// category is defined and differs; lines with no category (non-code) never
// break a block, which keeps the navigation free of visual clutter.
func (sf *SourceFile) NextTLAGroup(tla cover.TLA, after int) (int, bool) {
	list := sf.ByCategory[tla]

	idx := sort.SearchInts(list, after+1)
	for ; idx < len(list); idx++ {
		if sf.startsGroup(tla, list[idx]) {
			return list[idx], true
		}
	}

	return 0, false
}

// startsGroup reports whether the line is the first of its category block:
// the nearest preceding code line either does not exist or carries a
// different category.
func (sf *SourceFile) startsGroup(tla cover.TLA, no int) bool {
	for prev := no - 1; prev >= 1; prev-- {
		line := &sf.Lines[prev-1]
		if !line.HasTLA {
			continue
		}

		return line.TLA != tla
	}

	return true
}

// NextBranchGroup returns the next line after "after" carrying a branch of
// the category. Branches are always independent: no same-block coalescing.
func (sf *SourceFile) NextBranchGroup(tla cover.TLA, after int) (int, bool) {
	return nextAfter(sf.BranchByCategory[tla], after)
}

// NextInDateBin returns the next line of the category whose age falls in the
// bin.
func (sf *SourceFile) NextInDateBin(bin int, tla cover.TLA, after int) (int, bool) {
	if bin < 0 || bin >= len(sf.ByBin) {
		return 0, false
	}

	return nextAfter(sf.ByBin[bin].ByTLA[tla], after)
}

// NextBranchInDateBin is the branch variant of NextInDateBin.
func (sf *SourceFile) NextBranchInDateBin(bin int, tla cover.TLA, after int) (int, bool) {
	if bin < 0 || bin >= len(sf.ByBin) {
		return 0, false
	}

	return nextAfter(sf.ByBin[bin].BranchByTLA[tla], after)
}

// NextInOwnerBin returns the next line of the category owned by the owner.
func (sf *SourceFile) NextInOwnerBin(owner string, tla cover.TLA, after int) (int, bool) {
	idx, ok := sf.ByOwner[owner]
	if !ok {
		return 0, false
	}

	return nextAfter(idx.ByTLA[tla], after)
}

// NextBranchInOwnerBin is the branch variant of NextInOwnerBin.
func (sf *SourceFile) NextBranchInOwnerBin(owner string, tla cover.TLA, after int) (int, bool) {
	idx, ok := sf.ByOwner[owner]
	if !ok {
		return 0, false
	}

	return nextAfter(idx.BranchByTLA[tla], after)
}
