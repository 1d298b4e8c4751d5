package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPolicy_AgeBinOf(t *testing.T) {
	t.Parallel()

	pol := &Policy{DateBins: []int{7, 30, 180}}

	assert.Equal(t, 4, pol.NumBins())

	// Bins are half-open: [..7], (7,30], (30,180], (180,..].
	cases := map[int]int{
		0: 0, 3: 0, 7: 0,
		8: 1, 20: 1, 30: 1,
		31: 2, 180: 2,
		181: 3, 10000: 3,
	}

	for age, want := range cases {
		assert.Equal(t, want, pol.AgeBinOf(age), "age %d", age)
	}
}

func TestPolicy_AgeBinOf_ParentChildAgreement(t *testing.T) {
	t.Parallel()

	// The same function serves line level and rollup, so any two policies
	// with equal cutpoints agree on every age.
	a := &Policy{DateBins: []int{7, 30, 180}}
	b := &Policy{DateBins: []int{7, 30, 180}}

	for age := 0; age < 400; age++ {
		assert.Equal(t, a.AgeBinOf(age), b.AgeBinOf(age))
	}
}

func TestPolicy_FilterEnabled(t *testing.T) {
	t.Parallel()

	pol := &Policy{Filters: map[string]bool{FilterBrace: true}}

	assert.True(t, pol.FilterEnabled(FilterBrace))
	assert.False(t, pol.FilterEnabled(FilterBlank))

	empty := &Policy{}
	assert.False(t, empty.FilterEnabled(FilterBrace), "nil filter map is inert")
}
