// Command worker consumes generalization requests from Kafka. It is
// shorthand for "metanet worker" and accepts the same flags.
package main

import (
	"os"

	"github.com/turtacn/MetaNet-Generalizer/internal/interfaces/cli"
)

var version = "dev"

func main() {
	cli.Version = version
	if err := cli.Execute(append([]string{"worker"}, os.Args[1:]...)); err != nil {
		os.Exit(1)
	}
}
