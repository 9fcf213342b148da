// Command metanet is the MetaNet generalizer CLI.
package main

import (
	"os"

	"github.com/turtacn/MetaNet-Generalizer/internal/interfaces/cli"
)

// Build-time variables injected via ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	cli.Version = version
	cli.GitCommit = commit
	cli.BuildDate = buildDate

	if err := cli.Execute(nil); err != nil {
		os.Exit(1)
	}
}
