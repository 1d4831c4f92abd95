// Command relaycheck verifies the fan-out relay pipeline: it
// generates input, drives the stack, waits for the sink files to
// settle, and proves no record was lost or duplicated.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/relaycheck/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		// Subcommands silence cobra's own reporting, so print once here.
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
