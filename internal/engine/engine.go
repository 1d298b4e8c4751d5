// Package engine wires the differential coverage pipeline together: trace
// ingest, diff alignment, parallel per-file categorization, hierarchical
// rollup, criteria evaluation and report emission.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/Sumatoshi-tech/deltacov/internal/annotate"
	"github.com/Sumatoshi-tech/deltacov/internal/config"
	"github.com/Sumatoshi-tech/deltacov/internal/criteria"
	"github.com/Sumatoshi-tech/deltacov/internal/diag"
	"github.com/Sumatoshi-tech/deltacov/internal/diffmap"
	"github.com/Sumatoshi-tech/deltacov/internal/policy"
	"github.com/Sumatoshi-tech/deltacov/internal/report"
	"github.com/Sumatoshi-tech/deltacov/internal/sched"
	"github.com/Sumatoshi-tech/deltacov/internal/source"
	"github.com/Sumatoshi-tech/deltacov/internal/tracefile"
)

// mbToBytes converts the memory option to bytes.
const mbToBytes = 1024 * 1024

// ErrNoTraceFiles is returned when the invocation names no trace files.
var ErrNoTraceFiles = errors.New("no trace files given")

// ErrCriteriaFailed marks a run whose criteria predicate rejected at least
// one node; the process exit code must be non-zero even though the report
// rendered.
var ErrCriteriaFailed = errors.New("coverage criteria failed")

// Engine runs one invocation end to end.
type Engine struct {
	Config   *config.Config
	Logger   *slog.Logger
	Reporter *diag.Reporter

	// Sink receives the aggregated model; defaults to a console sink when
	// nil.
	Sink report.Sink

	pol       *policy.Policy
	diff      *diffmap.Map
	currTrace *tracefile.Trace
	baseTrace *tracefile.Trace
	filter    *tracefile.PathFilter
	omitter   *source.Omitter
	annotator *annotate.Annotator
	checker   *criteria.Checker

	// baselineAgeDays is the age of the baseline trace file, used by the
	// new-file-as-baseline rewrite.
	baselineAgeDays int
}

// NewPolicy derives the immutable policy value from the configuration.
func NewPolicy(cfg *config.Config, now time.Time) (*policy.Policy, error) {
	bins, err := cfg.ParsedDateBins()
	if err != nil {
		return nil, err
	}

	filters := make(map[string]bool, len(cfg.Filter))
	for _, name := range cfg.Filter {
		filters[name] = true
	}

	return &policy.Policy{
		DateBins:          bins,
		Now:               now,
		BranchCoverage:    cfg.BranchCoverage,
		FunctionCoverage:  cfg.FunctionCoverage,
		Differential:      cfg.BaselineFile != "",
		Hierarchical:      cfg.Hierarchical,
		ElidePathMismatch: cfg.ElidePathMismatch,
		NewFileAsBaseline: cfg.NewFileAsBaseline,
		PathStrip:         cfg.Strip,
		Filters:           filters,
		Preserve:          cfg.Preserve,
	}, nil
}

// NewReporter builds the diagnostics reporter from the configured policy:
// stop_on_error promotes everything to fatal, ignore_errors silences the
// listed kinds, max_message_count caps the output.
func NewReporter(cfg *config.Config, logger *slog.Logger) (*diag.Reporter, error) {
	opts := []diag.Option{
		diag.WithMaxCount(cfg.MaxMessageCount),
		diag.WithColor(!cfg.NoColor),
	}

	if cfg.StopOnError {
		for kind := diag.Source; kind <= diag.Unsupported; kind++ {
			opts = append(opts, diag.WithSeverity(kind, diag.Fatal))
		}
	}

	for _, name := range cfg.IgnoreErrors {
		kind, err := diag.ParseKind(name)
		if err != nil {
			return nil, err
		}

		opts = append(opts, diag.WithSeverity(kind, diag.Ignore))
	}

	return diag.NewReporter(logger, opts...), nil
}

// Run processes the trace files and returns once the report is emitted.
// ErrCriteriaFailed reports a completed run whose criteria predicate failed.
func (e *Engine) Run(ctx context.Context, traceFiles []string) error {
	if len(traceFiles) == 0 {
		return ErrNoTraceFiles
	}

	pol, err := NewPolicy(e.Config, time.Now())
	if err != nil {
		return err
	}

	e.pol = pol

	if e.Sink == nil {
		e.Sink = report.NewConsoleSink(os.Stdout)
	}

	if err := e.prepare(traceFiles); err != nil {
		return err
	}

	tmpDir, err := os.MkdirTemp("", "deltacov-")
	if err != nil {
		return fmt.Errorf("create temp directory: %w", err)
	}

	if !e.pol.Preserve {
		defer os.RemoveAll(tmpDir)
	}

	top := sched.BuildTree(e.fileSet(), e.pol.Hierarchical)

	runner := &sched.Runner{
		Workers:   e.Config.Parallel,
		MemoryCap: int64(e.Config.MemoryMB) * mbToBytes,
		TmpDir:    tmpDir,
		Preserve:  e.pol.Preserve,
		NumBins:   e.pol.NumBins(),
		Logger:    e.Logger,
		Reporter:  e.Reporter,
		Compute:   e.computeFile,
		Sink:      e.Sink,
	}

	result, err := runner.Run(ctx, top)
	if err != nil {
		return err
	}

	e.Logger.Info("rollup complete",
		"files", len(e.fileSet()),
		"tests", len(result.Tests),
		"failed_workers", result.Failed,
	)

	criteriaFailed, err := e.evaluateCriteria(ctx, top)
	if err != nil {
		return err
	}

	e.reportUnusedPatterns()

	if console, ok := e.Sink.(*report.ConsoleSink); ok {
		console.Render()
	}

	if criteriaFailed {
		return ErrCriteriaFailed
	}

	if result.Failed > 0 {
		return fmt.Errorf("%d worker(s) failed", result.Failed)
	}

	return nil
}

// prepare loads traces, the diff, and the external helpers.
func (e *Engine) prepare(traceFiles []string) error {
	var err error

	e.filter, err = newPathFilter(e.Config)
	if err != nil {
		return err
	}

	e.omitter, err = source.NewOmitter(e.Config.OmitLines)
	if err != nil {
		return err
	}

	e.currTrace, err = e.parseTraces(traceFiles)
	if err != nil {
		return err
	}

	if e.Config.BaselineFile != "" {
		e.baseTrace, err = e.parseTraces([]string{e.Config.BaselineFile})
		if err != nil {
			return err
		}

		if info, statErr := os.Stat(e.Config.BaselineFile); statErr == nil {
			e.baselineAgeDays = int(e.pol.Now.Sub(info.ModTime()).Hours() / 24)
		}
	}

	if err := e.loadDiff(); err != nil {
		return err
	}

	e.annotator = annotate.New(splitCommand(e.Config.AnnotateScript), e.pol.Now)
	e.checker = criteria.New(splitCommand(e.Config.CriteriaScript))

	return nil
}

// parseTraces reads and accumulates one or more trace files, routing parse
// anomalies through the diagnostics engine.
func (e *Engine) parseTraces(paths []string) (*tracefile.Trace, error) {
	parser := tracefile.NewParser(e.filter)

	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open trace: %w", err)
		}

		parseErr := parser.Parse(f)
		f.Close()

		if parseErr != nil {
			return nil, parseErr
		}
	}

	for _, anomaly := range parser.Anomalies {
		if err := e.Reporter.Report(diag.Format, "%s", anomaly.Error()); err != nil {
			return nil, err
		}
	}

	if parser.Negatives > 0 {
		err := e.Reporter.Report(diag.Negative,
			"%d negative counts clamped to zero", parser.Negatives)
		if err != nil {
			return nil, err
		}
	}

	return parser.Trace(), nil
}

// loadDiff reads the unified diff and cross-checks its paths against the
// trace file set.
func (e *Engine) loadDiff() error {
	e.diff = diffmap.New(e.pol.Differential)

	if e.Config.DiffFile == "" {
		return nil
	}

	content, err := os.ReadFile(e.Config.DiffFile)
	if err != nil {
		return fmt.Errorf("read diff: %w", err)
	}

	if err := e.diff.Load(content, e.pol, e.Reporter); err != nil {
		return err
	}

	tracePaths := e.currTrace.Paths()
	if e.baseTrace != nil {
		tracePaths = append(tracePaths, e.baseTrace.Paths()...)
	}

	return e.diff.CheckPaths(tracePaths, e.pol, e.Reporter)
}

// fileSet is the union of current trace paths and the baseline-only paths
// whose deletion the report still summarizes.
func (e *Engine) fileSet() []string {
	seen := make(map[string]bool)

	var files []string

	for _, path := range e.currTrace.Paths() {
		seen[path] = true
		files = append(files, path)
	}

	if e.baseTrace != nil {
		for _, path := range e.baseTrace.Paths() {
			if !seen[path] && !e.mapsToCurrent(path, seen) {
				seen[path] = true
				files = append(files, path)
			}
		}
	}

	return files
}

// mapsToCurrent reports whether a baseline path is the pre-rename name of a
// file already in the set.
func (e *Engine) mapsToCurrent(basePath string, seen map[string]bool) bool {
	for _, current := range e.diff.Files() {
		if e.diff.BaselinePath(current) == basePath && seen[current] {
			return true
		}
	}

	return false
}

// evaluateCriteria walks the finished tree top-down and runs the predicate
// on every node.
func (e *Engine) evaluateCriteria(ctx context.Context, top *sched.Task) (bool, error) {
	if e.checker == nil {
		return false, nil
	}

	results := &criteria.Results{}

	var walk func(task *sched.Task) error

	walk = func(task *sched.Task) error {
		if task.Summary != nil {
			node, err := e.checker.Check(ctx, task.Summary)
			if err != nil {
				return err
			}

			results.Add(node)
		}

		for _, child := range task.Children {
			if err := walk(child); err != nil {
				return err
			}
		}

		return nil
	}

	if err := walk(top); err != nil {
		return false, err
	}

	results.Print(os.Stdout, os.Stderr)

	return results.Failed(), nil
}

// reportUnusedPatterns raises an Unused diagnostic per include, exclude,
// substitute or omit pattern that never matched anything.
func (e *Engine) reportUnusedPatterns() {
	unused := append(e.filter.Unused(), e.omitter.Unused()...)

	for _, pattern := range unused {
		// Unused patterns are informational; a fatal configuration would
		// already have stopped the run.
		_ = e.Reporter.Report(diag.Unused, "pattern matched nothing: %s", pattern)
	}
}

func newPathFilter(cfg *config.Config) (*tracefile.PathFilter, error) {
	subs := make([]*tracefile.Substitution, 0, len(cfg.Substitute))

	for _, spec := range cfg.Substitute {
		sub, err := tracefile.ParseSubstitution(spec)
		if err != nil {
			return nil, err
		}

		subs = append(subs, sub)
	}

	return tracefile.NewPathFilter(cfg.Include, cfg.Exclude, subs)
}

// splitCommand turns a configured command line into argv form.
func splitCommand(command string) []string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil
	}

	return fields
}
