// Package cover assigns every coverpoint its differential category and builds
// the per-file record model the report is assembled from.
package cover

import "fmt"

// TLA is a three-letter coverage category from the closed twelve-element set.
type TLA int

// The category set, partitioned by location and coverage transition.
const (
	// GNC: gained new coverage — inserted line, covered now.
	GNC TLA = iota
	// UNC: uncovered new code — inserted line, not covered.
	UNC
	// GIC: gained included coverage — unchanged line, newly measured, covered.
	GIC
	// UIC: uncovered included code — unchanged line, newly measured, not covered.
	UIC
	// CBC: covered baseline code — covered in both revisions.
	CBC
	// GBC: gain baseline coverage — uncovered before, covered now.
	GBC
	// LBC: lost baseline coverage — covered before, uncovered now.
	LBC
	// UBC: uncovered baseline code — uncovered in both revisions.
	UBC
	// ECB: excluded covered baseline — measured before, unreachable now, was covered.
	ECB
	// EUB: excluded uncovered baseline — measured before, unreachable now, was uncovered.
	EUB
	// DCB: deleted covered baseline — deleted line that was covered.
	DCB
	// DUB: deleted uncovered baseline — deleted line that was uncovered.
	DUB

	// NumTLA is the size of the category set.
	NumTLA
)

var tlaNames = [NumTLA]string{
	GNC: "GNC", UNC: "UNC", GIC: "GIC", UIC: "UIC",
	CBC: "CBC", GBC: "GBC", LBC: "LBC", UBC: "UBC",
	ECB: "ECB", EUB: "EUB", DCB: "DCB", DUB: "DUB",
}

// String returns the three-letter abbreviation.
func (t TLA) String() string {
	if t < 0 || t >= NumTLA {
		return fmt.Sprintf("TLA(%d)", int(t))
	}

	return tlaNames[t]
}

// Location bits gating where a category is displayed.
const (
	// LocSource marks categories whose coverpoint has a line number in the
	// current revision and therefore appears in the source-detail view.
	LocSource = 1 << iota
	// LocSummary marks categories shown in summary tables; all twelve are.
	LocSummary
)

var tlaLocation = [NumTLA]int{
	GNC: LocSource | LocSummary,
	UNC: LocSource | LocSummary,
	GIC: LocSource | LocSummary,
	UIC: LocSource | LocSummary,
	CBC: LocSource | LocSummary,
	GBC: LocSource | LocSummary,
	LBC: LocSource | LocSummary,
	UBC: LocSource | LocSummary,
	ECB: LocSource | LocSummary,
	EUB: LocSource | LocSummary,
	DCB: LocSummary,
	DUB: LocSummary,
}

// Location returns the category's display bitmask.
func (t TLA) Location() int {
	return tlaLocation[t]
}

// InSource reports whether the category anchors to a current-revision line.
func (t TLA) InSource() bool {
	return t.Location()&LocSource != 0
}

// InCurrent reports whether the category contributes to found: the eight
// categories describing coverpoints measured in the current revision.
func (t TLA) InCurrent() bool {
	switch t {
	case GNC, UNC, GIC, UIC, CBC, GBC, LBC, UBC:
		return true
	default:
		return false
	}
}

// Hit reports whether the category counts as covered in the current revision.
func (t TLA) Hit() bool {
	switch t {
	case GNC, GIC, CBC, GBC:
		return true
	default:
		return false
	}
}

// ParseTLA resolves a category by its abbreviation.
func ParseTLA(name string) (TLA, bool) {
	for t, n := range tlaNames {
		if n == name {
			return TLA(t), true
		}
	}

	return 0, false
}

// ForInsert categorizes a coverpoint on an inserted line.
func ForInsert(curr int64) TLA {
	if curr > 0 {
		return GNC
	}

	return UNC
}

// ForDelete categorizes a coverpoint on a deleted line.
func ForDelete(base int64) TLA {
	if base > 0 {
		return DCB
	}

	return DUB
}

// ForPair categorizes an unchanged coverpoint measured in both revisions.
func ForPair(base, curr int64) TLA {
	switch {
	case base > 0 && curr > 0:
		return CBC
	case base == 0 && curr > 0:
		return GBC
	case base > 0 && curr == 0:
		return LBC
	default:
		return UBC
	}
}

// ForBaseOnly categorizes an unchanged coverpoint measured only at baseline.
func ForBaseOnly(base int64) TLA {
	if base > 0 {
		return ECB
	}

	return EUB
}

// ForCurrOnly categorizes an unchanged coverpoint measured only now.
func ForCurrOnly(curr int64) TLA {
	if curr > 0 {
		return GIC
	}

	return UIC
}
