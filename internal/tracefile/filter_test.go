package tracefile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathFilter_IncludeExclude(t *testing.T) {
	t.Parallel()

	filter, err := NewPathFilter(
		[]string{"src/**"},
		[]string{"src/vendor/**"},
		nil,
	)
	require.NoError(t, err)

	path, kept := filter.Apply("src/foo.c")
	assert.True(t, kept)
	assert.Equal(t, "src/foo.c", path)

	_, kept = filter.Apply("src/vendor/lib.c")
	assert.False(t, kept, "exclude wins over include")

	_, kept = filter.Apply("docs/readme.c")
	assert.False(t, kept, "not matched by any include")
}

func TestPathFilter_Substitute(t *testing.T) {
	t.Parallel()

	sub, err := ParseSubstitution("s#^/build/#src/#")
	require.NoError(t, err)

	filter, err := NewPathFilter(nil, nil, []*Substitution{sub})
	require.NoError(t, err)

	path, kept := filter.Apply("/build/foo.c")
	assert.True(t, kept)
	assert.Equal(t, "src/foo.c", path)
}

func TestParseSubstitution_Malformed(t *testing.T) {
	t.Parallel()

	for _, spec := range []string{"", "x/y/z/", "s/unterminated", "s/[/x/"} {
		_, err := ParseSubstitution(spec)
		assert.Error(t, err, "spec %q", spec)
	}
}

func TestPathFilter_Unused(t *testing.T) {
	t.Parallel()

	sub, err := ParseSubstitution("s/never/ever/")
	require.NoError(t, err)

	filter, err := NewPathFilter(
		[]string{"src/**", "lib/**"},
		[]string{"gen/**"},
		[]*Substitution{sub},
	)
	require.NoError(t, err)

	filter.Apply("src/foo.c")

	unused := filter.Unused()

	assert.Contains(t, unused, "include:lib/**")
	assert.Contains(t, unused, "exclude:gen/**")
	assert.Contains(t, unused, "substitute:s/never/ever/")
	assert.NotContains(t, unused, "include:src/**")
}

func TestNewPathFilter_InvalidGlob(t *testing.T) {
	t.Parallel()

	_, err := NewPathFilter([]string{"src/[bad"}, nil, nil)
	assert.Error(t, err)
}
