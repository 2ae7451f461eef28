// Package main is the entry point for the distill CLI.
package main

import (
	"os"

	"github.com/jmylchreest/distill/cmd/distill/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
