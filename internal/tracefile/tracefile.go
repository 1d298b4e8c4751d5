// Package tracefile parses lcov-style coverage traces into the per-file count
// model consumed by the categorizer, applying the ingest-time path filters
// (include/exclude globs and substitute rewrites).
package tracefile

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// Record prefixes recognized inside an SF block.
const (
	prefixTest        = "TN:"
	prefixSourceFile  = "SF:"
	prefixLineData    = "DA:"
	prefixBranchData  = "BRDA:"
	prefixFuncLine    = "FN:"
	prefixFuncData    = "FNDA:"
	prefixFuncFound   = "FNF:"
	prefixFuncHit     = "FNH:"
	prefixLinesFound  = "LF:"
	prefixLinesHit    = "LH:"
	prefixBranchFound = "BRF:"
	prefixBranchHit   = "BRH:"
	endOfRecord       = "end_of_record"
)

// branchNotExecuted is the BRDA taken field for a branch whose block never ran.
const branchNotExecuted = "-"

// BranchCov is one branch outcome within a basic block.
type BranchCov struct {
	Block    int
	Branch   int
	Taken    int64
	Executed bool
	Expr     string
}

// FuncCov is one named function's coverage.
type FuncCov struct {
	Name string
	Line int
	Hit  int64
}

// FileCov holds all coverage counts for one source file, summed across test
// cases, with the per-test line breakdown retained; worker dumps carry only
// the test names taken from it.
type FileCov struct {
	Path string

	// Lines maps line number to execution count summed over all tests.
	Lines map[int]int64

	// TestLines keeps the per-testcase line counts.
	TestLines map[string]map[int]int64

	// Checksums maps line number to the optional MD5 from the DA record.
	Checksums map[int]string

	// Branches maps line -> block id -> ordered branch list.
	Branches map[int]map[int][]BranchCov

	// Functions maps leader-agnostic function name to its coverage.
	Functions map[string]*FuncCov
}

// NewFileCov returns an empty coverage record for a path.
func NewFileCov(path string) *FileCov {
	return &FileCov{
		Path:      path,
		Lines:     make(map[int]int64),
		TestLines: make(map[string]map[int]int64),
		Checksums: make(map[int]string),
		Branches:  make(map[int]map[int][]BranchCov),
		Functions: make(map[string]*FuncCov),
	}
}

// SortedLines returns the line numbers carrying counts, ascending.
func (fc *FileCov) SortedLines() []int {
	lines := make([]int, 0, len(fc.Lines))
	for line := range fc.Lines {
		lines = append(lines, line)
	}

	sort.Ints(lines)

	return lines
}

// BlockIDs returns the block ids on a line, ascending.
func (fc *FileCov) BlockIDs(line int) []int {
	blocks := make([]int, 0, len(fc.Branches[line]))
	for id := range fc.Branches[line] {
		blocks = append(blocks, id)
	}

	sort.Ints(blocks)

	return blocks
}

// FunctionsByLine groups function names by declaration line, names sorted.
func (fc *FileCov) FunctionsByLine() map[int][]string {
	byLine := make(map[int][]string)
	for name, fn := range fc.Functions {
		byLine[fn.Line] = append(byLine[fn.Line], name)
	}

	for line := range byLine {
		sort.Strings(byLine[line])
	}

	return byLine
}

// MaxLine returns the highest line number referenced by any coverpoint.
func (fc *FileCov) MaxLine() int {
	maxLine := 0

	for line := range fc.Lines {
		if line > maxLine {
			maxLine = line
		}
	}

	for line := range fc.Branches {
		if line > maxLine {
			maxLine = line
		}
	}

	for _, fn := range fc.Functions {
		if fn.Line > maxLine {
			maxLine = fn.Line
		}
	}

	return maxLine
}

// DropLine removes every coverpoint on the line. Used by the omit_lines
// filter once source text is available.
func (fc *FileCov) DropLine(line int) {
	delete(fc.Lines, line)
	delete(fc.Checksums, line)
	delete(fc.Branches, line)

	for _, perTest := range fc.TestLines {
		delete(perTest, line)
	}
}

// Trace is a parsed trace file: per-path coverage plus the set of test names.
type Trace struct {
	Files map[string]*FileCov
	Tests map[string]bool
}

// NewTrace returns an empty trace.
func NewTrace() *Trace {
	return &Trace{
		Files: make(map[string]*FileCov),
		Tests: make(map[string]bool),
	}
}

// Paths returns the file paths present in the trace, sorted.
func (t *Trace) Paths() []string {
	paths := make([]string, 0, len(t.Files))
	for path := range t.Files {
		paths = append(paths, path)
	}

	sort.Strings(paths)

	return paths
}

// ParseError describes a malformed trace record. It is surfaced through the
// diagnostics engine rather than aborting the parse.
type ParseError struct {
	Line    int
	Record  string
	Message string
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("trace line %d: %s: %s", e.Line, e.Message, e.Record)
}

// Parser reads lcov trace streams. A single Parser may accumulate several
// streams into one Trace (lcov aggregates multiple tracefiles the same way).
type Parser struct {
	filter *PathFilter

	trace *Trace

	// Anomalies collects the per-record parse problems encountered so far;
	// the caller routes them through the diagnostics engine.
	Anomalies []*ParseError

	// Negatives counts line, branch and function records whose count was
	// negative and clamped.
	Negatives int
}

// NewParser builds a parser with an optional path filter.
func NewParser(filter *PathFilter) *Parser {
	return &Parser{
		filter: filter,
		trace:  NewTrace(),
	}
}

// Trace returns the accumulated trace.
func (p *Parser) Trace() *Trace {
	return p.trace
}

// Parse consumes one trace stream.
func (p *Parser) Parse(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	test := ""

	var (
		current *FileCov
		skip    bool
	)

	lineno := 0

	for scanner.Scan() {
		lineno++

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if line == endOfRecord {
			current = nil
			skip = false

			continue
		}

		if name, ok := strings.CutPrefix(line, prefixTest); ok {
			test = name
			p.trace.Tests[test] = true

			continue
		}

		if path, ok := strings.CutPrefix(line, prefixSourceFile); ok {
			current, skip = p.openFile(path)

			continue
		}

		if current == nil || skip {
			continue
		}

		p.parseRecord(current, test, line, lineno)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read trace: %w", err)
	}

	return nil
}

// openFile resolves the SF path through the filter and returns the record to
// fill, or skip=true when the file is excluded.
func (p *Parser) openFile(path string) (*FileCov, bool) {
	if p.filter != nil {
		mapped, kept := p.filter.Apply(path)
		if !kept {
			return nil, true
		}

		path = mapped
	}

	fc, ok := p.trace.Files[path]
	if !ok {
		fc = NewFileCov(path)
		p.trace.Files[path] = fc
	}

	return fc, false
}

func (p *Parser) parseRecord(fc *FileCov, test, line string, lineno int) {
	switch {
	case strings.HasPrefix(line, prefixLineData):
		p.parseLineData(fc, test, line, lineno)
	case strings.HasPrefix(line, prefixBranchData):
		p.parseBranchData(fc, line, lineno)
	case strings.HasPrefix(line, prefixFuncLine):
		p.parseFuncLine(fc, line, lineno)
	case strings.HasPrefix(line, prefixFuncData):
		p.parseFuncData(fc, line, lineno)
	case strings.HasPrefix(line, prefixFuncFound),
		strings.HasPrefix(line, prefixFuncHit),
		strings.HasPrefix(line, prefixLinesFound),
		strings.HasPrefix(line, prefixLinesHit),
		strings.HasPrefix(line, prefixBranchFound),
		strings.HasPrefix(line, prefixBranchHit):
		// Totals are recomputed from the records themselves.
	default:
		p.anomaly(lineno, line, "unrecognized record")
	}
}

func (p *Parser) parseLineData(fc *FileCov, test, line string, lineno int) {
	fields := strings.Split(strings.TrimPrefix(line, prefixLineData), ",")
	if len(fields) < 2 {
		p.anomaly(lineno, line, "DA record needs line and count")

		return
	}

	no, err := strconv.Atoi(fields[0])
	if err != nil || no <= 0 {
		p.anomaly(lineno, line, "bad DA line number")

		return
	}

	count, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		p.anomaly(lineno, line, "bad DA count")

		return
	}

	if count < 0 {
		p.Negatives++
		count = 0
	}

	fc.Lines[no] += count

	perTest := fc.TestLines[test]
	if perTest == nil {
		perTest = make(map[int]int64)
		fc.TestLines[test] = perTest
	}

	perTest[no] += count

	if len(fields) >= 3 && fields[2] != "" {
		fc.Checksums[no] = fields[2]
	}
}

func (p *Parser) parseBranchData(fc *FileCov, line string, lineno int) {
	fields := strings.Split(strings.TrimPrefix(line, prefixBranchData), ",")
	if len(fields) < 4 {
		p.anomaly(lineno, line, "BRDA record needs line, block, branch, taken")

		return
	}

	no, err1 := strconv.Atoi(fields[0])
	block, err2 := strconv.Atoi(fields[1])
	branch, err3 := strconv.Atoi(fields[2])

	if err1 != nil || err2 != nil || err3 != nil || no <= 0 {
		p.anomaly(lineno, line, "bad BRDA fields")

		return
	}

	var (
		taken    int64
		executed bool
	)

	if fields[3] != branchNotExecuted {
		taken, err1 = strconv.ParseInt(fields[3], 10, 64)
		if err1 != nil {
			p.anomaly(lineno, line, "bad BRDA taken count")

			return
		}

		if taken < 0 {
			p.Negatives++
			taken = 0
		}

		executed = true
	}

	blocks := fc.Branches[no]
	if blocks == nil {
		blocks = make(map[int][]BranchCov)
		fc.Branches[no] = blocks
	}

	// Repeated BRDA records for the same branch accumulate.
	for i := range blocks[block] {
		if blocks[block][i].Branch == branch {
			blocks[block][i].Taken += taken
			blocks[block][i].Executed = blocks[block][i].Executed || executed

			return
		}
	}

	blocks[block] = append(blocks[block], BranchCov{
		Block:    block,
		Branch:   branch,
		Taken:    taken,
		Executed: executed,
	})
}

func (p *Parser) parseFuncLine(fc *FileCov, line string, lineno int) {
	fields := strings.SplitN(strings.TrimPrefix(line, prefixFuncLine), ",", 2)
	if len(fields) != 2 {
		p.anomaly(lineno, line, "FN record needs line and name")

		return
	}

	no, err := strconv.Atoi(fields[0])
	if err != nil || no <= 0 {
		p.anomaly(lineno, line, "bad FN line number")

		return
	}

	fn := fc.Functions[fields[1]]
	if fn == nil {
		fn = &FuncCov{Name: fields[1]}
		fc.Functions[fields[1]] = fn
	}

	fn.Line = no
}

func (p *Parser) parseFuncData(fc *FileCov, line string, lineno int) {
	fields := strings.SplitN(strings.TrimPrefix(line, prefixFuncData), ",", 2)
	if len(fields) != 2 {
		p.anomaly(lineno, line, "FNDA record needs count and name")

		return
	}

	count, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		p.anomaly(lineno, line, "bad FNDA count")

		return
	}

	if count < 0 {
		p.Negatives++
		count = 0
	}

	fn := fc.Functions[fields[1]]
	if fn == nil {
		fn = &FuncCov{Name: fields[1]}
		fc.Functions[fields[1]] = fn
	}

	fn.Hit += count
}

func (p *Parser) anomaly(lineno int, record, message string) {
	p.Anomalies = append(p.Anomalies, &ParseError{
		Line:    lineno,
		Record:  record,
		Message: message,
	})
}
