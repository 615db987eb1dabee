package main

import (
	"fmt"
	"os"

	"github.com/molt-dev/molt/internal/cmd"
)

// Set by the linker at release build time.
var (
	version = "0.0.0-dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := cmd.Execute(version, commit, date); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
