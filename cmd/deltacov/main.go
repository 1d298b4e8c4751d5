// Package main provides the entry point for the deltacov CLI tool.
package main

import (
	"fmt"
	"os"

	"github.com/Sumatoshi-tech/deltacov/cmd/deltacov/commands"
	"github.com/Sumatoshi-tech/deltacov/pkg/version"
)

func main() {
	cmd := commands.NewReportCommand()
	cmd.Version = version.String()

	err := cmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "deltacov: %v\n", err)
	}

	os.Exit(commands.ExitCode(err))
}
