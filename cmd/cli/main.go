// Package main is the entry point for the ltcombine CLI.
package main

import (
	"os"

	"ltcombine/cmd/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
