// Package main is the entry point for the guardarr application.
package main

import (
	"os"

	"github.com/jmylchreest/guardarr/cmd/guardarr/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
