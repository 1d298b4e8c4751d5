// Package criteria evaluates the optional coverage-criteria predicate: an
// external program invoked with every summary node's JSON, whose exit codes
// decide the process exit status.
package criteria

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/Sumatoshi-tech/deltacov/internal/model"
)

// NodeResult is the predicate's verdict for one summary node.
type NodeResult struct {
	Name     string
	Kind     string
	Messages []string
	Failed   bool
}

// Checker runs the external criteria program. A nil Checker passes every
// node.
type Checker struct {
	command []string
}

// New builds a checker from the configured command line; returns nil when
// the command is empty.
func New(command []string) *Checker {
	if len(command) == 0 {
		return nil
	}

	return &Checker{command: command}
}

// Check invokes the predicate as "CRITERIA <name> <kind> <json>". Output
// lines are collected verbatim; a non-zero exit marks the node failed.
func (c *Checker) Check(ctx context.Context, summary *model.Summary) (*NodeResult, error) {
	result := &NodeResult{
		Name: summary.Name,
		Kind: summary.Kind.String(),
	}

	if c == nil {
		return result, nil
	}

	payload, err := json.Marshal(summary.JSON())
	if err != nil {
		return nil, fmt.Errorf("marshal summary for %s: %w", summary.Name, err)
	}

	args := append(append([]string{}, c.command[1:]...),
		summary.Name, result.Kind, string(payload))
	cmd := exec.CommandContext(ctx, c.command[0], args...)

	var output bytes.Buffer

	cmd.Stdout = &output
	cmd.Stderr = &output

	runErr := cmd.Run()
	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return nil, fmt.Errorf("run criteria for %s: %w", summary.Name, runErr)
		}

		result.Failed = true
	}

	for _, line := range strings.Split(output.String(), "\n") {
		if line != "" {
			result.Messages = append(result.Messages, line)
		}
	}

	return result, nil
}

// Results accumulates the per-node verdicts for the end-of-run report.
type Results struct {
	Nodes []*NodeResult
}

// Add records one verdict.
func (r *Results) Add(node *NodeResult) {
	r.Nodes = append(r.Nodes, node)
}

// Failed reports whether any node failed; the process exit code is non-zero
// iff so.
func (r *Results) Failed() bool {
	for _, node := range r.Nodes {
		if node.Failed {
			return true
		}
	}

	return false
}

// Print writes messages and failures to stdout; failures are additionally
// written to stderr.
func (r *Results) Print(stdout, stderr io.Writer) {
	for _, node := range r.Nodes {
		for _, message := range node.Messages {
			fmt.Fprintf(stdout, "%s %s: %s\n", node.Kind, node.Name, message)
		}

		if node.Failed {
			fmt.Fprintf(stdout, "%s %s: criteria failed\n", node.Kind, node.Name)
			fmt.Fprintf(stderr, "%s %s: criteria failed\n", node.Kind, node.Name)
		}
	}
}
