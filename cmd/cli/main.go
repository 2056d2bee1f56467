// Package main is the entry point for the profit-engine CLI.
package main

import (
	"os"

	"profit-engine/cmd/cli/cmd"
	"profit-engine/internal/logging"
)

func main() {
	err := cmd.Execute()
	logging.Sync()
	if err != nil {
		os.Exit(1)
	}
}
