// Package main is the entry point for the chatsync CLI.
package main

import (
	"os"

	"github.com/tOgg1/chatsync/internal/cli"
)

// Version information (set by goreleaser)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := cli.Execute(version + " (" + commit + ", " + date + ")"); err != nil {
		os.Exit(1)
	}
}
