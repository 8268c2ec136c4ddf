// Package main provides the entry point for the codexlens CLI.
package main

import (
	"os"

	"github.com/codexlens/codexlens/cmd/codexlens/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
