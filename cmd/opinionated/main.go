// Command opinionated migrates deprecated map tags and enriches entities
// with multilingual labels.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/opinionated/internal/cli"
)

// version is set at build time with -ldflags "-X main.version=...".
var version string

func main() {
	if version != "" {
		cli.EngineVersion = version
	}

	if err := cli.NewRootCommand().Execute(); err != nil {
		if !cli.IsReported(err) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
