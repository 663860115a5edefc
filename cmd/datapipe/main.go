// Package main is the entry point for the datapipe CLI.
//
// Usage:
//
//	datapipe [flags] <command> [subcommand] [args]
//
// Commands:
//
//	pipeline   - Dataset pipelines (list, run, sample)
//	version    - Show version information
package main

import (
	"fmt"
	"os"

	"github.com/qxlabai/datapipe/cmd/datapipe/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
