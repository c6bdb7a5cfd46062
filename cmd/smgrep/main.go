// Package main provides the entry point for the smgrep CLI.
package main

import (
	"os"

	"github.com/can1357/smgrep/cmd/smgrep/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
