// Package main provides the entry point for the trindex CLI.
package main

import (
	"os"

	"github.com/aleksaelezovic/trindex/cmd/trindex/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
