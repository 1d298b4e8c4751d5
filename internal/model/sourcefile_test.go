package model

import (
	"io"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/deltacov/internal/annotate"
	"github.com/Sumatoshi-tech/deltacov/internal/cover"
	"github.com/Sumatoshi-tech/deltacov/internal/diag"
	"github.com/Sumatoshi-tech/deltacov/internal/diffmap"
	"github.com/Sumatoshi-tech/deltacov/internal/policy"
	"github.com/Sumatoshi-tech/deltacov/internal/source"
	"github.com/Sumatoshi-tech/deltacov/internal/tracefile"
)

func testPolicy() *policy.Policy {
	return &policy.Policy{
		DateBins:         []int{7, 30, 180},
		BranchCoverage:   true,
		FunctionCoverage: true,
		Differential:     true,
		Filters:          map[string]bool{},
	}
}

func sourceLines(n int) *source.File {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = "code();"
	}

	return &source.File{Path: "f.c", Lines: lines}
}

func categorize(t *testing.T, pol *policy.Policy, base, curr *tracefile.FileCov) *cover.FileRecords {
	t.Helper()

	cat := &cover.Categorizer{
		Policy:   pol,
		Diff:     diffmap.New(true),
		Reporter: diag.NewReporter(nil, diag.WithOutput(io.Discard)),
	}

	records, err := cat.Categorize("f.c", base, curr)
	require.NoError(t, err)

	return records
}

// Age bins: three unchanged lines landing in the first, second and last bin.
func TestNewSourceFile_AgeBins(t *testing.T) {
	t.Parallel()

	pol := testPolicy()

	curr := tracefile.NewFileCov("f.c")
	curr.Lines[1] = 1
	curr.Lines[2] = 1
	curr.Lines[3] = 0

	records := categorize(t, pol, nil, curr)

	ann := []annotate.Line{
		{Commit: "c1", Author: "alice", AgeDays: 3, HasOwner: true},
		{Commit: "c2", Author: "alice", AgeDays: 20, HasOwner: true},
		{Commit: "c3", Author: "bob", AgeDays: 200, HasOwner: true},
	}

	sf := NewSourceFile(sourceLines(3), ann, records, pol)

	require.Len(t, sf.Summary.Ages.Line, 4)

	assert.Equal(t, int64(1), sf.Summary.Ages.Line[0].Found)
	assert.Equal(t, int64(1), sf.Summary.Ages.Line[1].Found)
	assert.Equal(t, int64(0), sf.Summary.Ages.Line[2].Found)
	assert.Equal(t, int64(1), sf.Summary.Ages.Line[3].Found)

	assert.Equal(t, int64(1), sf.Summary.Ages.Line[0].PerTLA[cover.GIC])
	assert.Equal(t, int64(1), sf.Summary.Ages.Line[1].PerTLA[cover.GIC])
	assert.Equal(t, int64(1), sf.Summary.Ages.Line[3].PerTLA[cover.UIC])
}

// Ghost records are summarized but never indexed under current lines.
func TestNewSourceFile_GhostExcludedFromIndices(t *testing.T) {
	t.Parallel()

	pol := testPolicy()

	records := &cover.FileRecords{
		Path: "f.c",
		Lines: map[cover.LineKey]*cover.LineRecord{
			{Line: 1}:              {Kind: diffmap.Equal, CurrLine: 1, HasCurr: true, CurrCount: 1, TLA: cover.GIC},
			{Ghost: true, Line: 7}: {Kind: diffmap.Delete, BaseLine: 7, HasBase: true, BaseCount: 3, TLA: cover.DCB},
		},
	}

	sf := NewSourceFile(sourceLines(1), nil, records, pol)

	assert.Equal(t, int64(1), sf.Summary.Line.PerTLA[cover.DCB])
	assert.Equal(t, int64(1), sf.Summary.Line.Found, "ghost does not count as found")
	assert.Empty(t, sf.ByCategory[cover.DCB])
}

// Every category index is strictly increasing.
func TestNewSourceFile_IndexMonotonicity(t *testing.T) {
	t.Parallel()

	pol := testPolicy()

	curr := tracefile.NewFileCov("f.c")
	for line := 1; line <= 20; line++ {
		curr.Lines[line] = int64(line % 2)
	}

	records := categorize(t, pol, nil, curr)
	sf := NewSourceFile(sourceLines(20), nil, records, pol)

	for tla, list := range sf.ByCategory {
		assert.True(t, sort.IntsAreSorted(list), "%s index not sorted", tla)

		for i := 1; i < len(list); i++ {
			assert.Less(t, list[i-1], list[i], "%s index not strictly increasing", tla)
		}
	}

	// by_category lists exactly the lines carrying that category.
	assert.Len(t, sf.ByCategory[cover.GIC], 10)
	assert.Len(t, sf.ByCategory[cover.UIC], 10)
}

func TestNewSourceFile_OwnerIndices(t *testing.T) {
	t.Parallel()

	pol := testPolicy()

	curr := tracefile.NewFileCov("f.c")
	curr.Lines[1] = 1
	curr.Lines[2] = 0
	curr.Lines[3] = 1

	records := categorize(t, pol, nil, curr)

	ann := []annotate.Line{
		{Commit: "c1", Author: "alice", AgeDays: 1, HasOwner: true},
		{Commit: "c2", Author: "bob", AgeDays: 1, HasOwner: true},
		{Commit: "c3", Author: "alice", AgeDays: 1, HasOwner: true},
	}

	sf := NewSourceFile(sourceLines(3), ann, records, pol)

	require.Contains(t, sf.ByOwner, "alice")
	require.Contains(t, sf.ByOwner, "bob")

	assert.Equal(t, []int{1, 3}, sf.ByOwner["alice"].Lines)
	assert.Equal(t, []int{1, 3}, sf.ByOwner["alice"].ByTLA[cover.GIC])
	assert.Equal(t, []int{2}, sf.ByOwner["bob"].ByTLA[cover.UIC])

	assert.Equal(t, int64(2), sf.Summary.Owners["alice"].Line[cover.GIC])
	assert.Equal(t, int64(1), sf.Summary.Owners["bob"].Line[cover.UIC])
}

func TestNewSourceFile_BranchIndices(t *testing.T) {
	t.Parallel()

	pol := testPolicy()

	curr := tracefile.NewFileCov("f.c")
	curr.Lines[2] = 1
	curr.Branches[2] = map[int][]tracefile.BranchCov{
		0: {
			{Block: 0, Branch: 0, Taken: 1, Executed: true},
			{Block: 0, Branch: 1, Taken: 0, Executed: true},
		},
	}

	records := categorize(t, pol, nil, curr)
	sf := NewSourceFile(sourceLines(2), nil, records, pol)

	assert.Equal(t, int64(2), sf.Summary.Branch.Found)
	assert.Equal(t, int64(1), sf.Summary.Branch.Hit)
	assert.Equal(t, []int{2}, sf.BranchByCategory[cover.GIC])
	assert.Equal(t, []int{2}, sf.BranchByCategory[cover.UIC])
}

func TestNewSourceFile_FunctionCounts(t *testing.T) {
	t.Parallel()

	pol := testPolicy()

	curr := tracefile.NewFileCov("f.c")
	curr.Lines[4] = 2
	curr.Functions["f"] = &tracefile.FuncCov{Name: "f", Line: 4, Hit: 2}

	records := categorize(t, pol, nil, curr)
	sf := NewSourceFile(sourceLines(4), nil, records, pol)

	assert.Equal(t, int64(1), sf.Summary.Function.Found)
	assert.Equal(t, int64(1), sf.Summary.Function.Hit)
	assert.Equal(t, int64(1), sf.Summary.Function.PerTLA[cover.GIC])
}
