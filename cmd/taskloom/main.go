// Package main is the entry point for the taskloom CLI.
package main

import (
	"os"

	"github.com/taskloom/taskloom/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
