package annotate

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeScript creates an executable shell script echoing fixed annotate
// output regardless of the path argument.
func writeScript(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "annotate.sh")
	script := "#!/bin/sh\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))

	return path
}

func testNow() time.Time {
	return time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
}

func TestAnnotator_NilAnnotatesNothing(t *testing.T) {
	t.Parallel()

	var a *Annotator

	lines, err := a.Annotate(context.Background(), "f.c")
	require.NoError(t, err)
	assert.Nil(t, lines)

	assert.Nil(t, New(nil, testNow()))
}

func TestAnnotator_ParsesRecords(t *testing.T) {
	t.Parallel()

	script := writeScript(t, `printf 'abc123|alice|12|int x = 1;\nabc123|alice|12|x++;\n'`)

	a := New([]string{script}, testNow())

	lines, err := a.Annotate(context.Background(), "f.c")
	require.NoError(t, err)
	require.Len(t, lines, 2)

	assert.Equal(t, "abc123", lines[0].Commit)
	assert.Equal(t, "alice", lines[0].Author)
	assert.True(t, lines[0].HasOwner)

	// An integer "when" passes through as the age itself.
	assert.Equal(t, 12, lines[0].AgeDays)
	assert.Equal(t, "int x = 1;", lines[0].Text)
}

func TestAnnotator_TimestampWhen(t *testing.T) {
	t.Parallel()

	script := writeScript(t, `printf 'c1|bob|2026-07-22|old();\n'`)

	a := New([]string{script}, testNow())

	lines, err := a.Annotate(context.Background(), "f.c")
	require.NoError(t, err)
	require.Len(t, lines, 1)

	assert.Equal(t, 10, lines[0].AgeDays)
}

func TestAnnotator_NoneCommitHasNoOwner(t *testing.T) {
	t.Parallel()

	script := writeScript(t, `printf 'NONE|||extern int errno;\nNONE|||extern char end;\n'`)

	a := New([]string{script}, testNow())

	lines, err := a.Annotate(context.Background(), "f.c")
	require.NoError(t, err)
	require.Len(t, lines, 2)

	assert.False(t, lines[0].HasOwner)
	assert.Zero(t, lines[0].AgeDays)
}

func TestAnnotator_MixedAnnotationViolation(t *testing.T) {
	t.Parallel()

	script := writeScript(t, `printf 'c1|alice|3|a;\nNONE|||b;\n'`)

	a := New([]string{script}, testNow())

	lines, err := a.Annotate(context.Background(), "f.c")
	require.ErrorIs(t, err, ErrMixedAnnotation)

	// Best-effort lines are still returned.
	assert.Len(t, lines, 2)
}

func TestAnnotator_NonZeroExit(t *testing.T) {
	t.Parallel()

	script := writeScript(t, `echo "no such revision" >&2; exit 3`)

	a := New([]string{script}, testNow())

	_, err := a.Annotate(context.Background(), "f.c")
	require.ErrorIs(t, err, ErrAnnotateFailed)
	assert.Contains(t, err.Error(), "no such revision")
}

func TestAnnotator_MalformedRecord(t *testing.T) {
	t.Parallel()

	script := writeScript(t, `printf 'only two|fields\n'`)

	a := New([]string{script}, testNow())

	_, err := a.Annotate(context.Background(), "f.c")
	require.ErrorIs(t, err, ErrAnnotateFailed)
}
