// Package sched turns the file set into a dependency forest of file and
// directory tasks and executes it with bounded-parallel workers under a soft
// memory cap. Child results travel through serialized dumps in the temp
// directory; merges are additive, so any interleaving yields the same
// summaries.
package sched

import (
	"path/filepath"
	"sort"

	"github.com/Sumatoshi-tech/deltacov/internal/model"
)

// TopName is the display name of the root task.
const TopName = "top"

// Task is one node of the dependency forest. Leaves are files; inner nodes
// are directories plus the single top task.
type Task struct {
	Name string
	Kind model.NodeKind

	// Path is the source path for file tasks, the directory path otherwise.
	Path string

	Children []*Task

	parent  *Task
	pending int

	// Summary accumulates merged child results for inner tasks; for file
	// tasks it is set from the worker dump at reap time.
	Summary *model.Summary
}

// Parent returns the task this one merges into, nil for the top.
func (t *Task) Parent() *Task {
	return t.parent
}

// BuildTree constructs the dependency forest for the file set. The build is
// a dedicated pass: no task is enqueued until the whole tree exists.
//
// In flat mode the tree has exactly two inner levels: top and one directory
// task per distinct parent directory. In hierarchical mode directory tasks
// nest, each depending on its immediate files and child directories.
func BuildTree(files []string, hierarchical bool) *Task {
	top := &Task{Name: TopName, Kind: model.TopNode}

	sorted := append([]string{}, files...)
	sort.Strings(sorted)

	if hierarchical {
		buildHierarchical(top, sorted)
	} else {
		buildFlat(top, sorted)
	}

	linkAndCount(top)

	return top
}

func buildFlat(top *Task, files []string) {
	dirs := make(map[string]*Task)

	for _, file := range files {
		dir := filepath.Dir(file)

		dirTask, ok := dirs[dir]
		if !ok {
			dirTask = &Task{Name: dir, Kind: model.DirectoryNode, Path: dir}
			dirs[dir] = dirTask
			top.Children = append(top.Children, dirTask)
		}

		dirTask.Children = append(dirTask.Children, &Task{
			Name: file,
			Kind: model.FileNode,
			Path: file,
		})
	}

	sort.Slice(top.Children, func(i, j int) bool {
		return top.Children[i].Name < top.Children[j].Name
	})
}

func buildHierarchical(top *Task, files []string) {
	dirs := make(map[string]*Task)

	// dirTask returns the directory node for a path, creating it and its
	// ancestors up to the top.
	var dirTask func(dir string) *Task

	dirTask = func(dir string) *Task {
		if dir == "." || dir == string(filepath.Separator) || dir == "" {
			return top
		}

		if t, ok := dirs[dir]; ok {
			return t
		}

		t := &Task{Name: dir, Kind: model.DirectoryNode, Path: dir}
		dirs[dir] = t

		parent := dirTask(filepath.Dir(dir))
		parent.Children = append(parent.Children, t)

		return t
	}

	for _, file := range files {
		parent := dirTask(filepath.Dir(file))
		parent.Children = append(parent.Children, &Task{
			Name: file,
			Kind: model.FileNode,
			Path: file,
		})
	}
}

// linkAndCount wires parent pointers and outstanding-dependency counters.
func linkAndCount(t *Task) {
	t.pending = len(t.Children)

	for _, child := range t.Children {
		child.parent = t

		linkAndCount(child)
	}
}

// leaves collects the initially eligible tasks: those with no dependencies.
func leaves(t *Task) []*Task {
	if len(t.Children) == 0 {
		return []*Task{t}
	}

	var out []*Task
	for _, child := range t.Children {
		out = append(out, leaves(child)...)
	}

	return out
}

// countTasks returns the total number of tasks in the tree.
func countTasks(t *Task) int {
	n := 1
	for _, child := range t.Children {
		n += countTasks(child)
	}

	return n
}
