package tracefile

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTrace = `TN:unit
SF:src/foo.c
FN:3,foo
FNDA:2,foo
FNF:1
FNH:1
DA:3,2
DA:4,0,abc123
BRDA:3,0,0,1
BRDA:3,0,1,-
LF:2
LH:1
end_of_record
TN:integration
SF:src/foo.c
DA:3,5
end_of_record
SF:src/bar.c
DA:1,1
end_of_record
`

func parseSample(t *testing.T) *Trace {
	t.Helper()

	parser := NewParser(nil)
	require.NoError(t, parser.Parse(strings.NewReader(sampleTrace)))
	require.Empty(t, parser.Anomalies)

	return parser.Trace()
}

func TestParser_LineCountsSumAcrossTests(t *testing.T) {
	t.Parallel()

	trace := parseSample(t)

	foo := trace.Files["src/foo.c"]
	require.NotNil(t, foo)

	assert.Equal(t, int64(7), foo.Lines[3], "counts sum across test cases")
	assert.Equal(t, int64(0), foo.Lines[4])

	assert.Equal(t, int64(2), foo.TestLines["unit"][3])
	assert.Equal(t, int64(5), foo.TestLines["integration"][3])

	assert.Equal(t, "abc123", foo.Checksums[4])
	assert.True(t, trace.Tests["unit"])
	assert.True(t, trace.Tests["integration"])
}

func TestParser_Branches(t *testing.T) {
	t.Parallel()

	trace := parseSample(t)

	foo := trace.Files["src/foo.c"]
	branches := foo.Branches[3][0]
	require.Len(t, branches, 2)

	assert.Equal(t, int64(1), branches[0].Taken)
	assert.True(t, branches[0].Executed)

	// "-" means the block never ran.
	assert.Equal(t, int64(0), branches[1].Taken)
	assert.False(t, branches[1].Executed)
}

func TestParser_Functions(t *testing.T) {
	t.Parallel()

	trace := parseSample(t)

	foo := trace.Files["src/foo.c"]
	require.Contains(t, foo.Functions, "foo")

	assert.Equal(t, 3, foo.Functions["foo"].Line)
	assert.Equal(t, int64(2), foo.Functions["foo"].Hit)
}

func TestParser_NegativeCountsClamped(t *testing.T) {
	t.Parallel()

	parser := NewParser(nil)
	require.NoError(t, parser.Parse(strings.NewReader("SF:f.c\nDA:1,-5\nend_of_record\n")))

	assert.Equal(t, 1, parser.Negatives)
	assert.Equal(t, int64(0), parser.Trace().Files["f.c"].Lines[1])
}

func TestParser_MalformedRecordsAreAnomalies(t *testing.T) {
	t.Parallel()

	input := "SF:f.c\nDA:notaline,1\nBRDA:1,0\nGIBBERISH:1\nend_of_record\n"

	parser := NewParser(nil)
	require.NoError(t, parser.Parse(strings.NewReader(input)))

	assert.Len(t, parser.Anomalies, 3)
}

func TestFileCov_Accessors(t *testing.T) {
	t.Parallel()

	fc := NewFileCov("f.c")
	fc.Lines[5] = 1
	fc.Lines[2] = 0
	fc.Branches[9] = map[int][]BranchCov{1: {{Block: 1}}, 0: {{Block: 0}}}
	fc.Functions["a"] = &FuncCov{Name: "a", Line: 12}
	fc.Functions["b"] = &FuncCov{Name: "b", Line: 12}

	assert.Equal(t, []int{2, 5}, fc.SortedLines())
	assert.Equal(t, []int{0, 1}, fc.BlockIDs(9))
	assert.Equal(t, map[int][]string{12: {"a", "b"}}, fc.FunctionsByLine())
	assert.Equal(t, 12, fc.MaxLine())

	fc.DropLine(5)
	assert.NotContains(t, fc.Lines, 5)
}

func TestParser_MultipleStreamsAccumulate(t *testing.T) {
	t.Parallel()

	parser := NewParser(nil)
	require.NoError(t, parser.Parse(strings.NewReader("SF:f.c\nDA:1,1\nend_of_record\n")))
	require.NoError(t, parser.Parse(strings.NewReader("SF:f.c\nDA:1,2\nend_of_record\n")))

	assert.Equal(t, int64(3), parser.Trace().Files["f.c"].Lines[1])
}
