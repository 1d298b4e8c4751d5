package engine

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"log/slog"
	"os/exec"

	"github.com/Sumatoshi-tech/deltacov/internal/annotate"
	"github.com/Sumatoshi-tech/deltacov/internal/cover"
	"github.com/Sumatoshi-tech/deltacov/internal/diag"
	"github.com/Sumatoshi-tech/deltacov/internal/model"
	"github.com/Sumatoshi-tech/deltacov/internal/policy"
	"github.com/Sumatoshi-tech/deltacov/internal/sched"
	"github.com/Sumatoshi-tech/deltacov/internal/source"
	"github.com/Sumatoshi-tech/deltacov/internal/tracefile"
)

// computeFile is the file task body run inside a scheduler worker: load and
// annotate the source, apply the post-ingest filters, categorize both
// revisions' counts and build the per-file model.
func (e *Engine) computeFile(ctx context.Context, path string, logger *slog.Logger) (*sched.FileResult, error) {
	curr := e.currTrace.Files[path]

	basePath := path
	if bp := e.diff.BaselinePath(path); bp != "" {
		basePath = bp
	}

	var base *tracefile.FileCov
	if e.baseTrace != nil {
		base = e.baseTrace.Files[basePath]
	}

	src, err := e.loadSource(path, curr, base)
	if err != nil {
		return nil, err
	}

	if curr != nil {
		if err := e.applyFilters(src, curr); err != nil {
			return nil, err
		}
	}

	if err := e.checkVersion(ctx, path); err != nil {
		return nil, err
	}

	ann, err := e.annotateSource(ctx, path, src)
	if err != nil {
		return nil, err
	}

	categorizer := &cover.Categorizer{
		Policy:   e.pol,
		Diff:     e.diff,
		Reporter: e.Reporter,
	}

	records, err := categorizer.Categorize(path, base, curr)
	if err != nil {
		return nil, err
	}

	if e.shouldRemapAsBaseline(base, curr, ann) {
		records.RemapAsBaseline()
	}

	sf := model.NewSourceFile(src, ann, records, e.pol)

	logger.Info("file categorized",
		"path", path,
		"lines_found", sf.Summary.Line.Found,
		"lines_hit", sf.Summary.Line.Hit,
	)

	result := &sched.FileResult{
		Summary: sf.Summary,
		Source:  sf,
	}

	if curr != nil {
		for test := range curr.TestLines {
			result.Tests = append(result.Tests, test)
		}
	}

	return result, nil
}

// loadSource reads the current revision, synthesizing placeholder content
// when the file is unreadable, and verifies the trace checksums against it.
func (e *Engine) loadSource(path string, curr, base *tracefile.FileCov) (*source.File, error) {
	maxLine := 0
	if curr != nil {
		maxLine = curr.MaxLine()
	}

	if base != nil && base.MaxLine() > maxLine {
		maxLine = base.MaxLine()
	}

	src, readErr := source.Read(path)
	if readErr != nil {
		if err := e.Reporter.Report(diag.Source,
			"%s: unreadable, content synthesized: %v", path, readErr); err != nil {
			return nil, err
		}

		return source.Synthesize(path, maxLine), nil
	}

	if curr != nil {
		if err := e.verifyChecksums(src, curr); err != nil {
			return nil, err
		}

		if err := e.checkUnmapped(src, curr); err != nil {
			return nil, err
		}
	}

	return src, nil
}

// verifyChecksums compares DA record checksums with the current source text.
func (e *Engine) verifyChecksums(src *source.File, curr *tracefile.FileCov) error {
	for line, want := range curr.Checksums {
		sum := md5.Sum([]byte(src.Line(line)))

		if got := hex.EncodeToString(sum[:]); got != want {
			err := e.Reporter.Report(diag.Mismatch,
				"%s:%d: checksum %s does not match source (%s)", src.Path, line, want, got)
			if err != nil {
				return err
			}
		}
	}

	return nil
}

// checkUnmapped flags counts referencing lines past the end of the source.
func (e *Engine) checkUnmapped(src *source.File, curr *tracefile.FileCov) error {
	for _, line := range curr.SortedLines() {
		if line > src.Len() {
			err := e.Reporter.Report(diag.Unmapped,
				"%s:%d: count references a line past end of source (%d lines)",
				src.Path, line, src.Len())
			if err != nil {
				return err
			}
		}
	}

	return nil
}

// applyFilters drops coverpoints per the enabled post-ingest filters and the
// omit_lines patterns.
func (e *Engine) applyFilters(src *source.File, curr *tracefile.FileCov) error {
	dropBrace := e.pol.FilterEnabled(policy.FilterBrace)
	dropBlank := e.pol.FilterEnabled(policy.FilterBlank)
	dropNoCond := e.pol.FilterEnabled(policy.FilterBranchNoCond)

	for _, line := range curr.SortedLines() {
		text := src.Line(line)

		switch {
		case e.omitter.Omit(text):
			curr.DropLine(line)
		case dropBrace && source.IsCloseBrace(text):
			curr.DropLine(line)
		case dropBlank && source.IsBlank(text):
			curr.DropLine(line)
		}
	}

	if dropNoCond {
		for line := range curr.Branches {
			if !source.ContainsConditional(src.Line(line)) {
				delete(curr.Branches, line)
			}
		}
	}

	return nil
}

// checkVersion runs the informational per-file version script.
func (e *Engine) checkVersion(ctx context.Context, path string) error {
	command := splitCommand(e.Config.VersionScript)
	if len(command) == 0 {
		return nil
	}

	args := append(append([]string{}, command[1:]...), path)

	if err := exec.CommandContext(ctx, command[0], args...).Run(); err != nil {
		return e.Reporter.Report(diag.Version,
			"%s: version script disagrees: %v", path, err)
	}

	return nil
}

// annotateSource runs the external annotator. Failures are recoverable: the
// file simply proceeds without owners and ages.
func (e *Engine) annotateSource(ctx context.Context, path string, src *source.File) ([]annotate.Line, error) {
	if e.annotator == nil || src.Synthesized {
		return nil, nil
	}

	ann, err := e.annotator.Annotate(ctx, path)
	if err != nil {
		kind := diag.Package
		if errors.Is(err, annotate.ErrMixedAnnotation) {
			kind = diag.Inconsistent
		}

		if diagErr := e.Reporter.Report(kind, "%v", err); diagErr != nil {
			return nil, diagErr
		}

		if errors.Is(err, annotate.ErrMixedAnnotation) {
			// Best-effort lines are still usable.
			return ann, nil
		}

		return nil, nil
	}

	return ann, nil
}

// shouldRemapAsBaseline decides the new-file-as-baseline rewrite: the file
// is only in the current trace, yet even its newest line predates the
// baseline trace, so it was merely unmeasured before, not new.
func (e *Engine) shouldRemapAsBaseline(base, curr *tracefile.FileCov, ann []annotate.Line) bool {
	if !e.pol.NewFileAsBaseline || !e.pol.Differential {
		return false
	}

	if base != nil || curr == nil || len(ann) == 0 {
		return false
	}

	newest := -1

	for _, line := range ann {
		if !line.HasOwner {
			continue
		}

		if newest == -1 || line.AgeDays < newest {
			newest = line.AgeDays
		}
	}

	return newest > e.baselineAgeDays
}
