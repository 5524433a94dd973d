// Package main provides the entry point for the trenton CLI.
package main

import (
	"os"

	"github.com/trentonhq/trenton/cmd/trenton/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
