package main

import (
	"fmt"
	"os"

	"movie-tracker/cmd/commands"
)

// Set by the release build.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	commands.SetVersion(version, commit)

	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
