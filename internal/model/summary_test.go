package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/deltacov/internal/cover"
)

func TestCounts_Add(t *testing.T) {
	t.Parallel()

	var c Counts

	c.Add(cover.CBC)
	c.Add(cover.LBC)
	c.Add(cover.DUB)

	assert.Equal(t, int64(2), c.Found, "ghosts do not count as found")
	assert.Equal(t, int64(1), c.Hit)
	assert.Equal(t, int64(1), c.PerTLA[cover.DUB])
}

// Directory rollup: every additive field of the parent equals the sum over
// its children.
func TestSummary_AppendAdditivity(t *testing.T) {
	t.Parallel()

	fileA := NewSummary(FileNode, "a.c", 4)
	for range 7 {
		fileA.Line.Add(cover.CBC)
	}

	for range 3 {
		fileA.Line.Add(cover.UBC)
	}

	fileB := NewSummary(FileNode, "b.c", 4)
	for range 5 {
		fileB.Line.Add(cover.GNC)
	}

	fileA.Ages.Line[1].Add(cover.CBC)
	fileB.Ages.Line[1].Add(cover.GNC)
	fileA.Owner("alice").Line.Add(cover.CBC)
	fileB.Owner("alice").Line.Add(cover.GNC)
	fileB.Owner("bob").Line.Add(cover.UNC)

	dir := NewSummary(DirectoryNode, "src", 4)
	dir.Append(fileA)
	dir.Append(fileB)

	assert.Equal(t, int64(15), dir.Line.Found)
	assert.Equal(t, int64(12), dir.Line.Hit)
	assert.Equal(t, int64(7), dir.Line.PerTLA[cover.CBC])
	assert.Equal(t, int64(5), dir.Line.PerTLA[cover.GNC])
	assert.Equal(t, int64(3), dir.Line.PerTLA[cover.UBC])

	assert.Equal(t, int64(2), dir.Ages.Line[1].Found)

	require.Contains(t, dir.Owners, "alice")
	require.Contains(t, dir.Owners, "bob")
	assert.Equal(t, int64(1), dir.Owners["alice"].Line[cover.CBC])
	assert.Equal(t, int64(1), dir.Owners["alice"].Line[cover.GNC])
	assert.Equal(t, int64(1), dir.Owners["bob"].Line[cover.UNC])
}

// Append is commutative: merging children in any order yields the same
// summary.
func TestSummary_AppendCommutative(t *testing.T) {
	t.Parallel()

	build := func() (*Summary, *Summary) {
		a := NewSummary(FileNode, "a.c", 2)
		a.Line.Add(cover.CBC)
		a.Line.Add(cover.LBC)

		b := NewSummary(FileNode, "b.c", 2)
		b.Line.Add(cover.GNC)

		return a, b
	}

	a1, b1 := build()
	forward := NewSummary(DirectoryNode, "d", 2)
	forward.Append(a1)
	forward.Append(b1)

	a2, b2 := build()
	backward := NewSummary(DirectoryNode, "d", 2)
	backward.Append(b2)
	backward.Append(a2)

	assert.Equal(t, forward.Line, backward.Line)
}

func TestCounts_RateMonotoneInHit(t *testing.T) {
	t.Parallel()

	const found = 50

	prev := int64(-1)

	for hit := int64(0); hit <= found; hit++ {
		c := Counts{Found: found, Hit: hit}
		rate := c.Rate()

		assert.Greater(t, rate, prev, "rate must increase with hit at %d", hit)

		prev = rate
	}
}

func TestCounts_RateSentinelAndTies(t *testing.T) {
	t.Parallel()

	empty := Counts{}
	assert.Equal(t, int64(1000), empty.Rate())

	// At equal percentage, the larger node rates higher.
	small := Counts{Found: 1, Hit: 1}
	large := Counts{Found: 100, Hit: 100}

	assert.Greater(t, large.Rate(), small.Rate())
}

func TestSummary_ParentNotSerialized(t *testing.T) {
	t.Parallel()

	parent := NewSummary(DirectoryNode, "d", 2)
	child := NewSummary(FileNode, "f.c", 2)
	child.SetParent(parent)

	assert.Same(t, parent, child.Parent())
}

func TestSummary_JSON(t *testing.T) {
	t.Parallel()

	s := NewSummary(FileNode, "f.c", 2)
	s.Line.Add(cover.CBC)
	s.Line.Add(cover.DCB)

	j := s.JSON()

	assert.Equal(t, int64(1), j.Line.Found)
	assert.Equal(t, int64(1), j.Line.Hit)
	assert.Equal(t, int64(1), j.Line.PerTLA["CBC"])
	assert.Equal(t, int64(1), j.Line.PerTLA["DCB"])
	assert.NotContains(t, j.Line.PerTLA, "GNC")
}
