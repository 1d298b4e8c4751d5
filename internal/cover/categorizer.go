package cover

import (
	"sort"

	"github.com/Sumatoshi-tech/deltacov/internal/diag"
	"github.com/Sumatoshi-tech/deltacov/internal/diffmap"
	"github.com/Sumatoshi-tech/deltacov/internal/policy"
	"github.com/Sumatoshi-tech/deltacov/internal/tracefile"
)

// Categorizer assigns a TLA to every line, branch and function coverpoint of
// a file, given both revisions' counts and the diff map. Categorization is
// pure: identical inputs always produce identical record tables.
type Categorizer struct {
	Policy   *policy.Policy
	Diff     *diffmap.Map
	Reporter *diag.Reporter
}

// Categorize builds the per-file record table. A nil base stands for a file
// absent from the baseline trace. Per-coverpoint anomalies are reported and
// categorization proceeds best-effort; only a fatal diagnostic aborts.
func (c *Categorizer) Categorize(path string, base, curr *tracefile.FileCov) (*FileRecords, error) {
	if base == nil {
		base = tracefile.NewFileCov(path)
	}

	if curr == nil {
		curr = tracefile.NewFileCov(path)
	}

	records := &FileRecords{
		Path:  path,
		Lines: make(map[LineKey]*LineRecord),
	}

	if err := c.categorizeCurrentLines(records, base, curr); err != nil {
		return nil, err
	}

	if err := c.categorizeBaselineLines(records, base, curr); err != nil {
		return nil, err
	}

	if c.Policy.BranchCoverage {
		if err := c.categorizeBranches(records, base, curr); err != nil {
			return nil, err
		}
	}

	if c.Policy.FunctionCoverage {
		if err := c.categorizeFunctions(records, base, curr); err != nil {
			return nil, err
		}
	}

	return records, nil
}

// categorizeCurrentLines creates one record per current-revision line count.
func (c *Categorizer) categorizeCurrentLines(records *FileRecords, base, curr *tracefile.FileCov) error {
	for _, line := range curr.SortedLines() {
		count := curr.Lines[line]
		kind := c.Diff.Kind(records.Path, diffmap.NewSide, line)

		rec := &LineRecord{
			Kind:      kind,
			CurrLine:  line,
			HasCurr:   true,
			CurrCount: count,
		}

		switch kind {
		case diffmap.Insert:
			rec.TLA = ForInsert(count)
		case diffmap.Equal:
			baseLine := c.Diff.Lookup(records.Path, diffmap.NewSide, line)

			baseCount, inBase := base.Lines[baseLine]
			if inBase {
				rec.BaseLine = baseLine
				rec.HasBase = true
				rec.BaseCount = baseCount
				rec.TLA = ForPair(baseCount, count)
			} else {
				rec.BaseLine = baseLine
				rec.TLA = ForCurrOnly(count)
			}
		case diffmap.Delete:
			// A current count on a deleted line means the trace and the diff
			// disagree about this file.
			err := c.Reporter.Report(diag.Inconsistent,
				"%s:%d: current count on a line the diff deletes", records.Path, line)
			if err != nil {
				return err
			}

			rec.Kind = diffmap.Equal
			rec.TLA = ForCurrOnly(count)
		}

		records.Lines[LineKey{Line: line}] = rec
	}

	return nil
}

// categorizeBaselineLines folds baseline counts in: pairing handled above,
// this pass adds deleted ghosts and baseline-only (excluded) lines.
func (c *Categorizer) categorizeBaselineLines(records *FileRecords, base, curr *tracefile.FileCov) error {
	for _, line := range base.SortedLines() {
		count := base.Lines[line]
		kind := c.Diff.Kind(records.Path, diffmap.Old, line)

		switch kind {
		case diffmap.Delete:
			records.Lines[LineKey{Ghost: true, Line: line}] = &LineRecord{
				Kind:      diffmap.Delete,
				BaseLine:  line,
				HasBase:   true,
				BaseCount: count,
				TLA:       ForDelete(count),
			}
		case diffmap.Equal:
			currLine := c.Diff.Lookup(records.Path, diffmap.Old, line)

			rec, ok := records.Lines[LineKey{Line: currLine}]
			if ok {
				if !rec.HasBase {
					rec.BaseLine = line
					rec.HasBase = true
					rec.BaseCount = count
					rec.TLA = ForPair(count, rec.CurrCount)
				}

				continue
			}

			// Measured at baseline, unreachable in the current measurement.
			records.Lines[LineKey{Line: currLine}] = &LineRecord{
				Kind:      diffmap.Equal,
				BaseLine:  line,
				CurrLine:  currLine,
				HasBase:   true,
				BaseCount: count,
				TLA:       ForBaseOnly(count),
			}
		case diffmap.Insert:
			// A baseline count inside an inserted region is structurally
			// impossible; the baseline trace does not match the diff.
			err := c.Reporter.Report(diag.Inconsistent,
				"%s:%d: baseline count on a line the diff inserts", records.Path, line)
			if err != nil {
				return err
			}
		}
	}

	return nil
}

// categorizeBranches attaches categorized branch records to their lines. For
// unchanged lines, baseline and current blocks are zipped by block id and
// then by position inside the block.
func (c *Categorizer) categorizeBranches(records *FileRecords, base, curr *tracefile.FileCov) error {
	for key, rec := range records.Lines {
		var currBlocks map[int][]tracefile.BranchCov
		if rec.HasCurr || (!key.Ghost && rec.CurrLine > 0) {
			currBlocks = curr.Branches[rec.CurrLine]
		}

		var baseBlocks map[int][]tracefile.BranchCov
		if rec.HasBase || rec.BaseLine > 0 {
			baseBlocks = base.Branches[rec.BaseLine]
		}

		switch rec.Kind {
		case diffmap.Insert:
			if len(baseBlocks) > 0 {
				err := c.Reporter.Report(diag.Inconsistent,
					"%s:%d: baseline branch data on an inserted line", records.Path, rec.CurrLine)
				if err != nil {
					return err
				}
			}

			appendBranches(rec, currBlocks, func(b tracefile.BranchCov) BranchRecord {
				return BranchRecord{
					Block: b.Block, Branch: b.Branch,
					HasCurr: true, CurrCount: b.Taken,
					TLA: ForInsert(b.Taken), Expr: b.Expr,
				}
			})
		case diffmap.Delete:
			if len(currBlocks) > 0 {
				err := c.Reporter.Report(diag.Inconsistent,
					"%s:%d: current branch data on a deleted line", records.Path, rec.BaseLine)
				if err != nil {
					return err
				}
			}

			appendBranches(rec, baseBlocks, func(b tracefile.BranchCov) BranchRecord {
				return BranchRecord{
					Block: b.Block, Branch: b.Branch,
					HasBase: true, BaseCount: b.Taken,
					TLA: ForDelete(b.Taken), Expr: b.Expr,
				}
			})
		case diffmap.Equal:
			zipBranchBlocks(rec, baseBlocks, currBlocks)
		}
	}

	// Branch data on lines without a line record cannot be anchored.
	return c.reportOrphanBranches(records, base, curr)
}

// appendBranches converts raw branch entries block by block in id order.
func appendBranches(rec *LineRecord, blocks map[int][]tracefile.BranchCov,
	convert func(tracefile.BranchCov) BranchRecord,
) {
	ids := make([]int, 0, len(blocks))
	for id := range blocks {
		ids = append(ids, id)
	}

	sort.Ints(ids)

	for _, id := range ids {
		for _, b := range blocks[id] {
			rec.Branches = append(rec.Branches, convert(b))
		}
	}
}

// zipBranchBlocks pairs baseline and current branch entries of an unchanged
// line by block id and positional index. Entries present on only one side are
// categorized like a coverpoint measured on that side alone.
func zipBranchBlocks(rec *LineRecord, baseBlocks, currBlocks map[int][]tracefile.BranchCov) {
	idSet := make(map[int]bool, len(baseBlocks)+len(currBlocks))
	for id := range baseBlocks {
		idSet[id] = true
	}

	for id := range currBlocks {
		idSet[id] = true
	}

	ids := make([]int, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}

	sort.Ints(ids)

	for _, id := range ids {
		baseList := baseBlocks[id]
		currList := currBlocks[id]

		n := len(baseList)
		if len(currList) > n {
			n = len(currList)
		}

		for i := range n {
			branch := BranchRecord{Block: id}

			switch {
			case i < len(baseList) && i < len(currList):
				branch.Branch = currList[i].Branch
				branch.HasBase = true
				branch.BaseCount = baseList[i].Taken
				branch.HasCurr = true
				branch.CurrCount = currList[i].Taken
				branch.TLA = ForPair(baseList[i].Taken, currList[i].Taken)
				branch.Expr = currList[i].Expr
			case i < len(currList):
				branch.Branch = currList[i].Branch
				branch.HasCurr = true
				branch.CurrCount = currList[i].Taken
				branch.TLA = ForCurrOnly(currList[i].Taken)
				branch.Expr = currList[i].Expr
			default:
				branch.Branch = baseList[i].Branch
				branch.HasBase = true
				branch.BaseCount = baseList[i].Taken
				branch.TLA = ForBaseOnly(baseList[i].Taken)
				branch.Expr = baseList[i].Expr
			}

			rec.Branches = append(rec.Branches, branch)
		}
	}
}

// reportOrphanBranches raises a Branch diagnostic for branch data on lines
// carrying no line record at all.
func (c *Categorizer) reportOrphanBranches(records *FileRecords, base, curr *tracefile.FileCov) error {
	for line := range curr.Branches {
		if _, ok := records.Lines[LineKey{Line: line}]; !ok {
			err := c.Reporter.Report(diag.Branch,
				"%s:%d: branch data without line data", records.Path, line)
			if err != nil {
				return err
			}
		}
	}

	return nil
}
