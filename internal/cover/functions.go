package cover

import (
	"sort"

	"github.com/Sumatoshi-tech/deltacov/internal/diag"
	"github.com/Sumatoshi-tech/deltacov/internal/diffmap"
	"github.com/Sumatoshi-tech/deltacov/internal/policy"
	"github.com/Sumatoshi-tech/deltacov/internal/tracefile"
)

// pickLeader chooses the representative name of an alias group: the shortest
// name, ties broken lexicographically. Template instantiations share a
// declaring line with their primary, which is the shortest spelling.
func pickLeader(names []string) string {
	leader := names[0]

	for _, name := range names[1:] {
		if len(name) < len(leader) || (len(name) == len(leader) && name < leader) {
			leader = name
		}
	}

	return leader
}

// categorizeFunctions builds one FunctionRecord per alias group, anchored to
// its declaring line when that line has a record.
func (c *Categorizer) categorizeFunctions(records *FileRecords, base, curr *tracefile.FileCov) error {
	byLine := curr.FunctionsByLine()

	lines := make([]int, 0, len(byLine))
	for line := range byLine {
		lines = append(lines, line)
	}

	sort.Ints(lines)

	claimed := make(map[string]bool)

	for _, line := range lines {
		names := byLine[line]
		for _, name := range names {
			claimed[name] = true
		}

		fn, err := c.categorizeFunctionGroup(records.Path, line, names, base, curr)
		if err != nil {
			return err
		}

		records.Functions = append(records.Functions, fn)

		if rec, ok := records.Lines[LineKey{Line: line}]; ok && line > 0 {
			rec.Function = fn
		}
	}

	return c.categorizeBaselineFunctions(records, base, claimed)
}

// categorizeFunctionGroup merges one alias group. The leader's TLA always
// derives from the merged hit count; with the function-alias filter off each
// alias additionally keeps its own count and category.
func (c *Categorizer) categorizeFunctionGroup(
	path string, line int, names []string, base, curr *tracefile.FileCov,
) (*FunctionRecord, error) {
	var mergedHit, mergedBase int64

	inBase := false

	for _, name := range names {
		mergedHit += curr.Functions[name].Hit

		if baseFn, ok := base.Functions[name]; ok {
			inBase = true
			mergedBase += baseFn.Hit
		}
	}

	kind := diffmap.Insert
	if line > 0 {
		kind = c.Diff.Kind(path, diffmap.NewSide, line)
	} else {
		// A hit count with no declaring line cannot be categorized against
		// the diff; that is an invariant violation, not a defensive default.
		err := c.Reporter.Report(diag.Inconsistent,
			"%s: function %s has a hit count but no declaring line", path, names[0])
		if err != nil {
			return nil, err
		}
	}

	fn := &FunctionRecord{
		Name: pickLeader(names),
		File: path,
		Line: line,
		Hit:  mergedHit,
		TLA:  c.functionTLA(kind, inBase, mergedBase, mergedHit),
	}

	if kind == diffmap.Delete {
		err := c.Reporter.Report(diag.Inconsistent,
			"%s:%d: current function %s on a deleted line", path, line, fn.Name)
		if err != nil {
			return nil, err
		}

		fn.TLA = ForCurrOnly(mergedHit)
	}

	if !c.Policy.FilterEnabled(policy.FilterFunctionAlias) {
		fn.Aliases = make(map[string]AliasCov, len(names))

		for _, name := range names {
			hit := curr.Functions[name].Hit

			aliasInBase := false

			var aliasBase int64

			if baseFn, ok := base.Functions[name]; ok {
				aliasInBase = true
				aliasBase = baseFn.Hit
			}

			fn.Aliases[name] = AliasCov{
				Hit: hit,
				TLA: c.functionTLA(kind, aliasInBase, aliasBase, hit),
			}
		}
	}

	return fn, nil
}

// functionTLA maps a function's diff kind and counts onto a category.
func (c *Categorizer) functionTLA(kind diffmap.Kind, inBase bool, baseHit, currHit int64) TLA {
	switch kind {
	case diffmap.Insert:
		return ForInsert(currHit)
	case diffmap.Equal:
		if inBase {
			return ForPair(baseHit, currHit)
		}

		return ForCurrOnly(currHit)
	default:
		return ForCurrOnly(currHit)
	}
}

// categorizeBaselineFunctions accounts for functions that exist only in the
// baseline trace: deleted or excluded by the change.
func (c *Categorizer) categorizeBaselineFunctions(
	records *FileRecords, base *tracefile.FileCov, claimed map[string]bool,
) error {
	byLine := base.FunctionsByLine()

	lines := make([]int, 0, len(byLine))
	for line := range byLine {
		lines = append(lines, line)
	}

	sort.Ints(lines)

	for _, line := range lines {
		var (
			names     []string
			mergedHit int64
		)

		for _, name := range byLine[line] {
			if claimed[name] {
				continue
			}

			names = append(names, name)
			mergedHit += base.Functions[name].Hit
		}

		if len(names) == 0 {
			continue
		}

		kind := c.Diff.Kind(records.Path, diffmap.Old, line)

		var tla TLA

		switch kind {
		case diffmap.Delete:
			tla = ForDelete(mergedHit)
		case diffmap.Equal:
			tla = ForBaseOnly(mergedHit)
		case diffmap.Insert:
			err := c.Reporter.Report(diag.Inconsistent,
				"%s:%d: baseline function %s on an inserted line",
				records.Path, line, names[0])
			if err != nil {
				return err
			}

			tla = ForBaseOnly(mergedHit)
		}

		fn := &FunctionRecord{
			Name: pickLeader(names),
			File: records.Path,
			Hit:  mergedHit,
			TLA:  tla,
		}

		if !c.Policy.FilterEnabled(policy.FilterFunctionAlias) {
			fn.Aliases = make(map[string]AliasCov, len(names))

			for _, name := range names {
				hit := base.Functions[name].Hit
				aliasTLA := tla

				if kind == diffmap.Delete {
					aliasTLA = ForDelete(hit)
				} else if kind == diffmap.Equal {
					aliasTLA = ForBaseOnly(hit)
				}

				fn.Aliases[name] = AliasCov{Hit: hit, TLA: aliasTLA}
			}
		}

		records.Functions = append(records.Functions, fn)
	}

	return nil
}
