// Package main provides the entry point for the codexctl CLI.
package main

import (
	"os"

	"github.com/kraklabs/codex-index/cmd/codexctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
