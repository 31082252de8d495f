// Command railyard runs scenarios against railyard ledgers and inspects
// their directory and fact log.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/railyard/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "railyard:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
