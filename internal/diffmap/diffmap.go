// Package diffmap aligns baseline and current line numbers through a unified
// diff. It partitions every file's line space into equal, insert and delete
// chunks and exposes the bijection between revisions where one exists.
package diffmap

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sourcegraph/go-diff/diff"

	"github.com/Sumatoshi-tech/deltacov/internal/diag"
	"github.com/Sumatoshi-tech/deltacov/internal/policy"
)

// Side selects which revision a line number refers to.
type Side int

// The two revision sides.
const (
	Old Side = iota
	NewSide
)

// Kind classifies a line with respect to the diff.
type Kind int

// Diff chunk kinds.
const (
	Equal Kind = iota
	Insert
	Delete
)

// String returns the lowercase chunk kind name.
func (k Kind) String() string {
	switch k {
	case Insert:
		return "insert"
	case Delete:
		return "delete"
	default:
		return "equal"
	}
}

// Chunk is one maximal run of lines sharing a kind. Ranges are inclusive;
// an empty range has End == Start-1 and marks the position the run would
// occupy on that side.
type Chunk struct {
	Kind     Kind
	OldStart int
	OldEnd   int
	NewStart int
	NewEnd   int
}

// FileEntry holds the chunk partition for one file. Lines beyond the last
// chunk belong to an implicit open-ended equal tail.
type FileEntry struct {
	// Path is the current-revision path; for files deleted outright it is the
	// baseline path, which is the only name the file still has.
	Path string

	// BasePath is the baseline path, empty when the file was created.
	BasePath string

	Chunks []Chunk

	tailOld int
	tailNew int
}

// Map is the loaded diff, keyed by current-revision path. A nil or empty Map
// behaves as "no changes": every line is equal in differential mode and
// insert otherwise.
type Map struct {
	entries      map[string]*FileEntry
	differential bool
}

// New returns an empty map whose default kind follows the differential flag.
func New(differential bool) *Map {
	return &Map{
		entries:      make(map[string]*FileEntry),
		differential: differential,
	}
}

// Load parses a unified diff stream into the map. Lines of the form
// "=== path" mark files identical in both revisions and are tolerated.
// An empty diff raises an ignorable Empty diagnostic: it simply means no
// source change between the snapshots.
func (m *Map) Load(content []byte, pol *policy.Policy, reporter *diag.Reporter) error {
	filtered, identical := splitIdenticalMarkers(content)

	for _, path := range identical {
		p := stripComponents(path, pol.PathStrip)
		m.entries[p] = &FileEntry{Path: p, BasePath: p, tailOld: 1, tailNew: 1}
	}

	fileDiffs, err := diff.ParseMultiFileDiff(filtered)
	if err != nil {
		return fmt.Errorf("parse unified diff: %w", err)
	}

	if len(fileDiffs) == 0 && len(identical) == 0 {
		if diagErr := reporter.Report(diag.Empty, "diff contains no differences"); diagErr != nil {
			return diagErr
		}

		return nil
	}

	for _, fd := range fileDiffs {
		entry := buildEntry(fd, pol.PathStrip)
		m.entries[entry.Path] = entry
	}

	return nil
}

// splitIdenticalMarkers removes "=== path" marker lines from the stream and
// returns the remaining diff text plus the marked paths.
func splitIdenticalMarkers(content []byte) ([]byte, []string) {
	var (
		kept      strings.Builder
		identical []string
	)

	for _, line := range strings.SplitAfter(string(content), "\n") {
		if trimmed, ok := strings.CutPrefix(line, "=== "); ok {
			identical = append(identical, strings.TrimSpace(trimmed))

			continue
		}

		kept.WriteString(line)
	}

	return []byte(kept.String()), identical
}

const devNull = "/dev/null"

// stripComponents removes the git-style a/ and b/ prefixes plus n further
// leading path components.
func stripComponents(path string, n int) string {
	path = strings.TrimPrefix(path, "a/")
	path = strings.TrimPrefix(path, "b/")

	for range n {
		idx := strings.IndexByte(path, '/')
		if idx < 0 {
			break
		}

		path = path[idx+1:]
	}

	return path
}

// buildEntry converts one parsed file diff into a chunk partition. Hunk gaps
// become equal chunks; inside a hunk, runs of context, removed and added lines
// become equal, delete and insert chunks respectively.
func buildEntry(fd *diff.FileDiff, strip int) *FileEntry {
	origPath := stripComponents(fd.OrigName, strip)
	newPath := stripComponents(fd.NewName, strip)

	entry := &FileEntry{}

	switch {
	case fd.NewName == devNull:
		// File deleted outright: it only exists in the baseline.
		entry.Path = origPath
		entry.BasePath = origPath
	case fd.OrigName == devNull:
		entry.Path = newPath
	default:
		entry.Path = newPath
		entry.BasePath = origPath
	}

	oldPos, newPos := 1, 1

	for _, hunk := range fd.Hunks {
		hunkOld := int(hunk.OrigStartLine)
		hunkNew := int(hunk.NewStartLine)

		// Zero-length sides report the line before the change.
		if hunk.OrigLines == 0 {
			hunkOld++
		}

		if hunk.NewLines == 0 {
			hunkNew++
		}

		if hunkOld > oldPos {
			entry.Chunks = append(entry.Chunks, Chunk{
				Kind:     Equal,
				OldStart: oldPos, OldEnd: hunkOld - 1,
				NewStart: newPos, NewEnd: hunkNew - 1,
			})
		}

		oldPos, newPos = hunkOld, hunkNew
		oldPos, newPos = appendHunkChunks(entry, hunk.Body, oldPos, newPos)
	}

	entry.tailOld = oldPos
	entry.tailNew = newPos

	return entry
}

// appendHunkChunks walks one hunk body and appends a chunk per run of lines
// sharing a prefix. Returns the cursor positions after the hunk.
func appendHunkChunks(entry *FileEntry, body []byte, oldPos, newPos int) (int, int) {
	lines := strings.Split(string(body), "\n")

	run := byte(0)
	runLen := 0

	flush := func() {
		if runLen == 0 {
			return
		}

		switch run {
		case ' ':
			entry.Chunks = append(entry.Chunks, Chunk{
				Kind:     Equal,
				OldStart: oldPos, OldEnd: oldPos + runLen - 1,
				NewStart: newPos, NewEnd: newPos + runLen - 1,
			})
			oldPos += runLen
			newPos += runLen
		case '-':
			entry.Chunks = append(entry.Chunks, Chunk{
				Kind:     Delete,
				OldStart: oldPos, OldEnd: oldPos + runLen - 1,
				NewStart: newPos, NewEnd: newPos - 1,
			})

			oldPos += runLen
		case '+':
			entry.Chunks = append(entry.Chunks, Chunk{
				Kind:     Insert,
				OldStart: oldPos, OldEnd: oldPos - 1,
				NewStart: newPos, NewEnd: newPos + runLen - 1,
			})
			newPos += runLen
		}

		runLen = 0
	}

	for _, line := range lines {
		if line == "" {
			continue
		}

		prefix := line[0]
		if prefix == '\\' {
			// "\ No newline at end of file" marker.
			continue
		}

		if prefix != run {
			flush()

			run = prefix
		}

		runLen++
	}

	flush()

	return oldPos, newPos
}

// entryFor finds the partition entry keyed by a current-revision path. It is
// a direct lookup: rename links are not followed, so a renamed file's
// old-side lines are queried through its current path.
func (m *Map) entryFor(path string) *FileEntry {
	if m == nil {
		return nil
	}

	return m.entries[path]
}

// Kind classifies a line number on the given side of a file. Files absent
// from the diff are unchanged, so every line is equal when a baseline is
// configured and insert otherwise.
func (m *Map) Kind(path string, side Side, line int) Kind {
	entry := m.entryFor(path)
	if entry == nil {
		if m != nil && m.differential {
			return Equal
		}

		return Insert
	}

	chunk := entry.chunkAt(side, line)
	if chunk == nil {
		return Equal
	}

	return chunk.Kind
}

// Lookup maps a line number on one side to the corresponding line on the
// opposite side. Inside an equal chunk (or the tail) the mapping is exact;
// inside an insert or delete chunk the opposite range is empty and the end of
// the sibling range is returned.
func (m *Map) Lookup(path string, side Side, line int) int {
	entry := m.entryFor(path)
	if entry == nil {
		return line
	}

	chunk := entry.chunkAt(side, line)
	if chunk == nil {
		// Open-ended equal tail.
		if side == Old {
			return entry.tailNew + (line - entry.tailOld)
		}

		return entry.tailOld + (line - entry.tailNew)
	}

	if side == Old {
		if chunk.Kind == Equal {
			return chunk.NewStart + (line - chunk.OldStart)
		}

		return chunk.NewEnd
	}

	if chunk.Kind == Equal {
		return chunk.OldStart + (line - chunk.NewStart)
	}

	return chunk.OldEnd
}

// chunkAt locates the chunk containing the line on the given side, or nil
// when the line falls in the open-ended tail.
func (e *FileEntry) chunkAt(side Side, line int) *Chunk {
	idx := sort.Search(len(e.Chunks), func(i int) bool {
		c := &e.Chunks[i]
		if side == Old {
			return c.OldEnd >= line
		}

		return c.NewEnd >= line
	})

	for ; idx < len(e.Chunks); idx++ {
		c := &e.Chunks[idx]

		var start, end int
		if side == Old {
			start, end = c.OldStart, c.OldEnd
		} else {
			start, end = c.NewStart, c.NewEnd
		}

		if end < start {
			// Empty on this side; the line cannot be inside it.
			continue
		}

		if line < start {
			return nil
		}

		if line <= end {
			return c
		}
	}

	return nil
}

// Files returns the current-revision paths mentioned by the diff, sorted.
func (m *Map) Files() []string {
	paths := make([]string, 0, len(m.entries))
	for path := range m.entries {
		paths = append(paths, path)
	}

	sort.Strings(paths)

	return paths
}

// BaselinePath returns the baseline path of a current file, or empty when the
// file was created by the change or is unknown to the diff.
func (m *Map) BaselinePath(current string) string {
	entry := m.entryFor(current)
	if entry == nil {
		return ""
	}

	return entry.BasePath
}

// CheckPaths cross-checks diff entries against the trace file set. A diff
// entry whose full path matches no trace file but whose basename does raises
// a Path diagnostic listing the candidates; with the elide policy on and a
// single unambiguous candidate, the entry is re-keyed onto the trace path.
func (m *Map) CheckPaths(tracePaths []string, pol *policy.Policy, reporter *diag.Reporter) error {
	known := make(map[string]bool, len(tracePaths))
	byBase := make(map[string][]string)

	for _, p := range tracePaths {
		known[p] = true
		byBase[filepath.Base(p)] = append(byBase[filepath.Base(p)], p)
	}

	for path, entry := range m.entries {
		if known[path] {
			continue
		}

		candidates := byBase[filepath.Base(path)]
		if len(candidates) == 0 {
			continue
		}

		err := reporter.Report(diag.Path,
			"diff entry %q matches trace files only by basename: %s",
			path, strings.Join(candidates, ", "))
		if err != nil {
			return err
		}

		if pol.ElidePathMismatch && len(candidates) == 1 {
			delete(m.entries, path)

			entry.Path = candidates[0]
			m.entries[candidates[0]] = entry
		}
	}

	return nil
}
