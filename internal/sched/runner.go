package sched

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sort"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/Sumatoshi-tech/deltacov/internal/diag"
	"github.com/Sumatoshi-tech/deltacov/internal/model"
	"github.com/Sumatoshi-tech/deltacov/internal/report"
	"github.com/Sumatoshi-tech/deltacov/pkg/persist"
)

// FileResult is what the per-file computation hands back to the scheduler.
type FileResult struct {
	Summary *model.Summary
	Source  *model.SourceFile
	Tests   []string
}

// Compute is the file task body: read and annotate the source, categorize
// the counts, build the per-file model. It runs inside a worker; the logger
// writes to the worker's private log buffer.
type Compute func(ctx context.Context, path string, logger *slog.Logger) (*FileResult, error)

// TaskDump is the serialized worker result written to the temp directory.
// The parent reconstructs the subtree summary from it; communication between
// worker and parent is one-way through this file.
type TaskDump struct {
	Name    string
	Kind    model.NodeKind
	Summary *model.Summary
	Source  *model.SourceFile
	Tests   []string
}

// taskDone travels from a finished worker to the reap loop.
type taskDone struct {
	task *Task
	id   int
	err  error
}

// Runner executes a task tree.
type Runner struct {
	// Workers is the parallelism ceiling P; 0 means host concurrency.
	Workers int

	// MemoryCap is the soft RSS cap in bytes; 0 disables the gate.
	MemoryCap int64

	// TmpDir receives worker dumps and log files.
	TmpDir string

	// Preserve keeps dumps and logs after a successful run.
	Preserve bool

	// NumBins is the age-bin count used for inner summaries.
	NumBins int

	Logger   *slog.Logger
	Reporter *diag.Reporter
	Compute  Compute
	Sink     report.Sink
}

// Result is the outcome of a tree run.
type Result struct {
	Top *model.Summary

	// Tests is the union of test names seen across all files, sorted.
	Tests []string

	// Failed counts workers that exited with an error; the top summary is
	// missing their subtrees.
	Failed int
}

// dumpCodec compresses gob-encoded dumps with LZ4.
var dumpCodec = persist.NewLZ4Codec(persist.NewGobCodec())

// Run executes the tree leaves-to-root. Eligible tasks run on up to P
// workers; each worker writes a serialized dump which the reap loop merges
// into the parent. A failing worker is surfaced as a parallel diagnostic and
// the drain continues so the report stays as complete as possible.
func (r *Runner) Run(ctx context.Context, top *Task) (*Result, error) {
	workers := r.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	initSummaries(top, r.NumBins)

	ready := leaves(top)
	total := countTasks(top)

	results := make(chan taskDone, workers)
	sem := semaphore.NewWeighted(int64(workers))

	var eg errgroup.Group

	res := &Result{}
	testSet := make(map[string]bool)

	var (
		active  int
		reaped  int
		nextID  int
		haltErr error
	)

	for reaped < total && haltErr == nil {
		canDispatch := len(ready) > 0 && active < workers && r.memoryFits(active)

		if canDispatch {
			task := ready[0]
			ready = ready[1:]

			if err := sem.Acquire(ctx, 1); err != nil {
				haltErr = fmt.Errorf("acquire worker slot: %w", err)

				break
			}

			nextID++
			active++

			r.startWorker(ctx, &eg, task, nextID, results, sem)

			continue
		}

		if active == 0 {
			// No eligible tasks and nothing running: the remaining tasks can
			// never become ready. This cannot happen on a well-formed tree.
			haltErr = fmt.Errorf("scheduler stalled with %d of %d tasks done", reaped, total)

			break
		}

		done := <-results
		active--
		reaped++

		var more []*Task

		more, haltErr = r.reap(done, testSet, res)
		ready = append(ready, more...)
	}

	waitErr := eg.Wait()

	// Drain any workers that finished after the halt.
	for active > 0 {
		done := <-results
		active--

		_, reapErr := r.reap(done, testSet, res)
		if haltErr == nil {
			haltErr = reapErr
		}
	}

	if haltErr == nil && waitErr != nil {
		haltErr = waitErr
	}

	if haltErr != nil {
		return nil, haltErr
	}

	res.Top = top.Summary

	for name := range testSet {
		res.Tests = append(res.Tests, name)
	}

	sort.Strings(res.Tests)

	if err := r.Sink.EmitTop(top.Summary); err != nil {
		return nil, fmt.Errorf("emit top summary: %w", err)
	}

	return res, nil
}

// initSummaries allocates accumulating summaries for every inner task.
func initSummaries(t *Task, numBins int) {
	if t.Kind != model.FileNode {
		t.Summary = model.NewSummary(t.Kind, t.Name, numBins)
	}

	for _, child := range t.Children {
		initSummaries(child, numBins)
	}
}

// memoryFits applies the back-pressure rule: with a cap configured and
// workers running, adding one more worker must not push the projected RSS
// past the cap.
func (r *Runner) memoryFits(active int) bool {
	if r.MemoryCap <= 0 || active == 0 {
		return true
	}

	rss := readRSS()
	if rss == 0 {
		return true
	}

	estimate := rss / int64(active)
	projected := int64(active+1) * estimate

	if projected <= r.MemoryCap {
		return true
	}

	r.Logger.Debug("memory gate holding",
		"rss", humanize.IBytes(uint64(rss)),
		"projected", humanize.IBytes(uint64(projected)),
		"cap", humanize.IBytes(uint64(r.MemoryCap)),
		"active", active,
	)

	return false
}

// startWorker launches one task on the pool. The worker never returns an
// error through the errgroup; failures, including panics, travel through the
// results channel so the drain keeps going.
func (r *Runner) startWorker(
	ctx context.Context, eg *errgroup.Group, task *Task, id int,
	results chan<- taskDone, sem *semaphore.Weighted,
) {
	eg.Go(func() error {
		defer sem.Release(1)

		done := taskDone{task: task, id: id}

		defer func() {
			if p := recover(); p != nil {
				done.err = fmt.Errorf("worker panic: %v\n%s", p, debug.Stack())
			}

			results <- done
		}()

		done.err = r.runTask(ctx, task, id)

		return nil
	})
}

// runTask executes one task body and writes its dump and log files.
func (r *Runner) runTask(ctx context.Context, task *Task, id int) error {
	var logBuf, errBuf bytes.Buffer

	dump := &TaskDump{Name: task.Name, Kind: task.Kind}

	switch task.Kind {
	case model.FileNode:
		logger := slog.New(slog.NewTextHandler(&logBuf, nil))

		fileResult, err := r.Compute(ctx, task.Path, logger)
		if err != nil {
			fmt.Fprintf(&errBuf, "%s: %v\n", task.Path, err)
			r.writeLogs(id, &logBuf, &errBuf)

			return err
		}

		dump.Summary = fileResult.Summary
		dump.Source = fileResult.Source
		dump.Tests = fileResult.Tests
	default:
		// Inner tasks carry the summary accumulated from their children.
		dump.Summary = task.Summary
	}

	if err := persist.SaveState(r.TmpDir, dumpName(id), dumpCodec, dump); err != nil {
		return fmt.Errorf("write dump: %w", err)
	}

	r.writeLogs(id, &logBuf, &errBuf)

	return nil
}

func dumpName(id int) string {
	return fmt.Sprintf("dumper_%d", id)
}

// writeLogs persists the worker's captured output next to its dump.
func (r *Runner) writeLogs(id int, logBuf, errBuf *bytes.Buffer) {
	base := filepath.Join(r.TmpDir, fmt.Sprintf("deltacov_%d", id))

	if logBuf.Len() > 0 {
		_ = os.WriteFile(base+".log", logBuf.Bytes(), 0o644)
	}

	if errBuf.Len() > 0 {
		_ = os.WriteFile(base+".err", errBuf.Bytes(), 0o644)
	}
}

// reap merges one finished task into its parent and returns any tasks that
// became eligible.
func (r *Runner) reap(done taskDone, testSet map[string]bool, res *Result) ([]*Task, error) {
	task := done.task

	if done.err != nil {
		res.Failed++

		r.replayWorkerErr(done.id)

		if err := r.Reporter.Report(diag.Parallel,
			"task %s failed: %v", task.Name, done.err); err != nil {
			return nil, err
		}

		return r.advanceParent(task), nil
	}

	dump := &TaskDump{}

	if err := persist.LoadState(r.TmpDir, dumpName(done.id), dumpCodec, dump); err != nil {
		res.Failed++

		if diagErr := r.Reporter.Report(diag.Parallel,
			"task %s returned a garbled result: %v", task.Name, err); diagErr != nil {
			return nil, diagErr
		}

		return r.advanceParent(task), nil
	}

	task.Summary = dump.Summary

	for _, test := range dump.Tests {
		testSet[test] = true
	}

	var emitErr error

	switch task.Kind {
	case model.FileNode:
		emitErr = r.Sink.EmitFile(dump.Source, dump.Summary)
	case model.DirectoryNode:
		emitErr = r.Sink.EmitDirectory(dump.Summary)
	case model.TopNode:
		// Emitted once by Run after the loop completes.
	}

	if emitErr != nil {
		return nil, fmt.Errorf("emit %s: %w", task.Name, emitErr)
	}

	if parent := task.Parent(); parent != nil {
		parent.Summary.Append(dump.Summary)
	}

	if !r.Preserve {
		_ = persist.RemoveState(r.TmpDir, dumpName(done.id), dumpCodec)
		_ = os.Remove(filepath.Join(r.TmpDir, fmt.Sprintf("deltacov_%d.log", done.id)))
		_ = os.Remove(filepath.Join(r.TmpDir, fmt.Sprintf("deltacov_%d.err", done.id)))
	}

	return r.advanceParent(task), nil
}

// advanceParent decrements the parent's outstanding-dependency count and
// returns it when it became eligible.
func (r *Runner) advanceParent(task *Task) []*Task {
	parent := task.Parent()
	if parent == nil {
		return nil
	}

	parent.pending--
	if parent.pending == 0 {
		return []*Task{parent}
	}

	return nil
}

// replayWorkerErr copies a failed worker's stderr capture to our stderr
// verbatim, so the file identity and the failure reach the user unmangled.
func (r *Runner) replayWorkerErr(id int) {
	content, err := os.ReadFile(filepath.Join(r.TmpDir, fmt.Sprintf("deltacov_%d.err", id)))
	if err != nil || len(content) == 0 {
		return
	}

	_, _ = os.Stderr.Write(content)
}
