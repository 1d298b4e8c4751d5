package cover

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTLA_Closure(t *testing.T) {
	t.Parallel()

	// Every assignment function lands inside the closed set.
	assignments := []TLA{
		ForInsert(0), ForInsert(1),
		ForDelete(0), ForDelete(1),
		ForPair(0, 0), ForPair(0, 1), ForPair(1, 0), ForPair(1, 1),
		ForBaseOnly(0), ForBaseOnly(1),
		ForCurrOnly(0), ForCurrOnly(1),
	}

	for _, tla := range assignments {
		assert.GreaterOrEqual(t, tla, TLA(0))
		assert.Less(t, tla, NumTLA)
	}
}

func TestTLA_HitImpliesInCurrent(t *testing.T) {
	t.Parallel()

	for tla := TLA(0); tla < NumTLA; tla++ {
		if tla.Hit() {
			assert.True(t, tla.InCurrent(), "%s hits but is not current", tla)
		}
	}
}

func TestTLA_HitSet(t *testing.T) {
	t.Parallel()

	want := map[TLA]bool{GNC: true, GIC: true, CBC: true, GBC: true}

	for tla := TLA(0); tla < NumTLA; tla++ {
		assert.Equal(t, want[tla], tla.Hit(), "%s", tla)
	}
}

func TestTLA_LocationBits(t *testing.T) {
	t.Parallel()

	// Ghost categories never appear in the source view.
	assert.False(t, DCB.InSource())
	assert.False(t, DUB.InSource())

	// Excluded baseline lines still exist in the current source.
	assert.True(t, ECB.InSource())
	assert.True(t, EUB.InSource())

	for _, tla := range []TLA{GNC, UNC, GIC, UIC, CBC, GBC, LBC, UBC} {
		assert.True(t, tla.InSource(), "%s", tla)
		assert.True(t, tla.InCurrent(), "%s", tla)
	}
}

func TestParseTLA(t *testing.T) {
	t.Parallel()

	for tla := TLA(0); tla < NumTLA; tla++ {
		parsed, ok := ParseTLA(tla.String())

		assert.True(t, ok)
		assert.Equal(t, tla, parsed)
	}

	_, ok := ParseTLA("XYZ")
	assert.False(t, ok)
}

func TestLineKey_Ordering(t *testing.T) {
	t.Parallel()

	current := LineKey{Line: 100}
	ghost := LineKey{Ghost: true, Line: 1}

	assert.True(t, current.Less(ghost), "current lines precede ghosts")
	assert.False(t, ghost.Less(current))
	assert.True(t, LineKey{Line: 1}.Less(LineKey{Line: 2}))
}
