package sched

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/deltacov/internal/cover"
	"github.com/Sumatoshi-tech/deltacov/internal/diag"
	"github.com/Sumatoshi-tech/deltacov/internal/model"
	"github.com/Sumatoshi-tech/deltacov/pkg/persist"
)

// persistLoadFirstDump reads the first worker's dump; with one worker the
// first dispatched leaf always gets id 1.
func persistLoadFirstDump(dir string, dump *TaskDump) error {
	return persist.LoadState(dir, dumpName(1), dumpCodec, dump)
}

func TestBuildTree_Flat(t *testing.T) {
	t.Parallel()

	top := BuildTree([]string{"a/x.c", "a/y.c", "b/z.c"}, false)

	require.Len(t, top.Children, 2)

	assert.Equal(t, "a", top.Children[0].Name)
	assert.Equal(t, "b", top.Children[1].Name)
	assert.Len(t, top.Children[0].Children, 2)
	assert.Len(t, top.Children[1].Children, 1)

	// Deep paths still produce a two-level view.
	flat := BuildTree([]string{"a/b/c/d.c"}, false)
	require.Len(t, flat.Children, 1)
	assert.Equal(t, "a/b/c", flat.Children[0].Name)
	assert.Equal(t, model.FileNode, flat.Children[0].Children[0].Kind)
}

func TestBuildTree_Hierarchical(t *testing.T) {
	t.Parallel()

	top := BuildTree([]string{"a/b/x.c", "a/y.c", "z.c"}, true)

	byName := make(map[string]*Task)
	for _, child := range top.Children {
		byName[child.Name] = child
	}

	require.Contains(t, byName, "a")
	require.Contains(t, byName, "z.c")

	a := byName["a"]
	require.Len(t, a.Children, 2)

	var ab *Task

	for _, child := range a.Children {
		if child.Name == "a/b" {
			ab = child
		}
	}

	require.NotNil(t, ab, "nested directory task missing")
	assert.Equal(t, model.DirectoryNode, ab.Kind)
	assert.Equal(t, "a/b/x.c", ab.Children[0].Name)
	assert.Same(t, a, ab.Parent())
}

// recordingSink captures emissions; safe for the single-threaded reap loop.
type recordingSink struct {
	mu    sync.Mutex
	files []string
	dirs  []string
	top   *model.Summary
}

func (r *recordingSink) EmitFile(src *model.SourceFile, _ *model.Summary) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.files = append(r.files, src.Path)

	return nil
}

func (r *recordingSink) EmitDirectory(summary *model.Summary) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.dirs = append(r.dirs, summary.Name)

	return nil
}

func (r *recordingSink) EmitTop(summary *model.Summary) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.top = summary

	return nil
}

// fakeCompute gives every file one covered and one uncovered line.
func fakeCompute(_ context.Context, path string, _ *slog.Logger) (*FileResult, error) {
	summary := model.NewSummary(model.FileNode, path, 4)
	summary.Line.Add(cover.GNC)
	summary.Line.Add(cover.UNC)

	return &FileResult{
		Summary: summary,
		Source:  &model.SourceFile{Path: path, Summary: summary},
		Tests:   []string{"t1"},
	}, nil
}

func newRunner(t *testing.T, workers int, sink *recordingSink, compute Compute) *Runner {
	t.Helper()

	return &Runner{
		Workers:  workers,
		TmpDir:   t.TempDir(),
		NumBins:  4,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Reporter: diag.NewReporter(nil, diag.WithOutput(io.Discard)),
		Compute:  compute,
		Sink:     sink,
	}
}

func TestRunner_RollupAcrossWorkerCounts(t *testing.T) {
	t.Parallel()

	files := []string{"a/x.c", "a/y.c", "b/z.c", "b/w.c", "c/v.c"}

	for _, workers := range []int{1, 4} {
		sink := &recordingSink{}
		runner := newRunner(t, workers, sink, fakeCompute)

		top := BuildTree(files, false)

		result, err := runner.Run(context.Background(), top)
		require.NoError(t, err)

		// Summaries are order-independent: 2 coverpoints per file.
		assert.Equal(t, int64(10), result.Top.Line.Found, "workers=%d", workers)
		assert.Equal(t, int64(5), result.Top.Line.Hit, "workers=%d", workers)
		assert.Equal(t, int64(5), result.Top.Line.PerTLA[cover.GNC], "workers=%d", workers)

		assert.Zero(t, result.Failed)
		assert.Equal(t, []string{"t1"}, result.Tests)
		assert.Len(t, sink.files, 5)
		assert.Len(t, sink.dirs, 3)
		require.NotNil(t, sink.top)
	}
}

func TestRunner_FailureDrains(t *testing.T) {
	t.Parallel()

	failing := func(ctx context.Context, path string, logger *slog.Logger) (*FileResult, error) {
		if path == "a/y.c" {
			return nil, errors.New("boom")
		}

		return fakeCompute(ctx, path, logger)
	}

	sink := &recordingSink{}
	runner := newRunner(t, 2, sink, failing)

	top := BuildTree([]string{"a/x.c", "a/y.c", "b/z.c"}, false)

	result, err := runner.Run(context.Background(), top)
	require.NoError(t, err, "a failing worker must not stop the drain")

	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, runner.Reporter.CountOf(diag.Parallel))

	// The top summary is missing the failed subtree only.
	assert.Equal(t, int64(4), result.Top.Line.Found)
	assert.Len(t, sink.files, 2)
}

func TestRunner_WorkerPanicIsParallelDiagnostic(t *testing.T) {
	t.Parallel()

	panicking := func(ctx context.Context, path string, logger *slog.Logger) (*FileResult, error) {
		if path == "a/x.c" {
			panic("worker exploded")
		}

		return fakeCompute(ctx, path, logger)
	}

	sink := &recordingSink{}
	runner := newRunner(t, 2, sink, panicking)

	top := BuildTree([]string{"a/x.c", "b/z.c"}, false)

	result, err := runner.Run(context.Background(), top)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, runner.Reporter.CountOf(diag.Parallel))
	assert.Equal(t, int64(2), result.Top.Line.Found)
}

func TestRunner_HierarchicalRollup(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	runner := newRunner(t, 3, sink, fakeCompute)

	top := BuildTree([]string{"a/b/x.c", "a/y.c", "z.c"}, true)

	result, err := runner.Run(context.Background(), top)
	require.NoError(t, err)

	assert.Equal(t, int64(6), result.Top.Line.Found)

	// Intermediate directory a contains both its own file and a/b's.
	var dirA *Task

	for _, child := range top.Children {
		if child.Name == "a" {
			dirA = child
		}
	}

	require.NotNil(t, dirA)
	assert.Equal(t, int64(4), dirA.Summary.Line.Found)
}

func TestRunner_PreserveKeepsDumps(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	runner := newRunner(t, 1, sink, fakeCompute)
	runner.Preserve = true

	top := BuildTree([]string{"a/x.c"}, false)

	_, err := runner.Run(context.Background(), top)
	require.NoError(t, err)

	dump := &TaskDump{}
	require.NoError(t, persistLoadFirstDump(runner.TmpDir, dump))
	assert.Equal(t, "a/x.c", dump.Name)
}
