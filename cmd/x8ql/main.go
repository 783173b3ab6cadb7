// Command x8ql parses, translates and executes QL statements.
package main

import (
	"fmt"
	"os"

	"github.com/omniql-engine/x8ql/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
