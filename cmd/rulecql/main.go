// Command rulecql compiles rule predicate graphs into ELM libraries.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/rulecql/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
