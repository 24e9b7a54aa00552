// Package main provides the entry point for the redact CLI.
package main

import (
	"os"

	"github.com/raphaelgruber/redactomat/internal/cli"
)

func main() {
	// cli.Execute prints the error itself.
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
