package report

import (
	"fmt"
	"io"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/Sumatoshi-tech/deltacov/internal/cover"
	"github.com/Sumatoshi-tech/deltacov/internal/model"
)

// percentFactor converts a hit/found ratio to a percentage.
const percentFactor = 100.0

// ConsoleSink renders the directory tree as a console table once the run
// completes. It retains only summaries; source models are released after
// their row is recorded.
type ConsoleSink struct {
	out io.Writer

	files []*model.Summary
	dirs  []*model.Summary
	top   *model.Summary
}

// NewConsoleSink writes the rendered table to out.
func NewConsoleSink(out io.Writer) *ConsoleSink {
	return &ConsoleSink{out: out}
}

// EmitFile implements Sink.
func (c *ConsoleSink) EmitFile(_ *model.SourceFile, summary *model.Summary) error {
	c.files = append(c.files, summary)

	return nil
}

// EmitDirectory implements Sink.
func (c *ConsoleSink) EmitDirectory(summary *model.Summary) error {
	c.dirs = append(c.dirs, summary)

	return nil
}

// EmitTop implements Sink.
func (c *ConsoleSink) EmitTop(summary *model.Summary) error {
	c.top = summary

	return nil
}

// Render prints the summary table: directories sorted by rate then name,
// files grouped under their directory, the top row last.
func (c *ConsoleSink) Render() {
	if c.top == nil {
		return
	}

	w := table.NewWriter()
	w.SetOutputMirror(c.out)
	style := table.StyleLight
	style.Format.Footer = text.FormatDefault
	w.SetStyle(style)
	w.AppendHeader(table.Row{
		"Name", "Lines", "Hit", "Coverage", "GNC", "UNC", "LBC", "UBC", "Branches", "Functions",
	})

	sortSummaries(c.dirs)

	byDir := make(map[string][]*model.Summary)
	for _, file := range c.files {
		dir := parentName(file.Name)
		byDir[dir] = append(byDir[dir], file)
	}

	for _, dir := range c.dirs {
		w.AppendRow(summaryRow(dir, dir.Name))

		files := byDir[dir.Name]
		sortSummaries(files)

		for _, file := range files {
			w.AppendRow(summaryRow(file, "  "+file.Name))
		}
	}

	w.AppendFooter(summaryRow(c.top, "total"))
	w.Render()
}

// sortSummaries orders by ascending rate so the least-covered nodes lead,
// ties broken by name.
func sortSummaries(list []*model.Summary) {
	sort.Slice(list, func(i, j int) bool {
		ri, rj := list[i].Line.Rate(), list[j].Line.Rate()
		if ri != rj {
			return ri < rj
		}

		return list[i].Name < list[j].Name
	})
}

func parentName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}

	return "."
}

func summaryRow(s *model.Summary, name string) table.Row {
	return table.Row{
		name,
		s.Line.Found,
		s.Line.Hit,
		percent(&s.Line),
		s.Line.PerTLA[cover.GNC],
		s.Line.PerTLA[cover.UNC],
		s.Line.PerTLA[cover.LBC],
		s.Line.PerTLA[cover.UBC],
		percent(&s.Branch),
		percent(&s.Function),
	}
}

func percent(c *model.Counts) string {
	if c.Found == 0 {
		return "-"
	}

	return fmt.Sprintf("%.1f%%", percentFactor*float64(c.Hit)/float64(c.Found))
}
