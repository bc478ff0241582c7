// Command probectl plans market refreshes for a probe fleet.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/probectl/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
