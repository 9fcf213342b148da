// Command apiserver serves the generalization REST API. It is shorthand for
// "metanet serve" and accepts the same flags.
package main

import (
	"os"

	"github.com/turtacn/MetaNet-Generalizer/internal/interfaces/cli"
)

var version = "dev"

func main() {
	cli.Version = version
	if err := cli.Execute(append([]string{"serve"}, os.Args[1:]...)); err != nil {
		os.Exit(1)
	}
}
