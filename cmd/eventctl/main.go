// Command eventctl drives the agent session core from the command
// line: start it as an HTTP server, or exercise the Event Store,
// Session Linearizer, and Session Reconstructor directly against a
// local database file.
package main

import (
	"fmt"
	"os"

	"github.com/mhismail3/tron-sub003/cmd/eventctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
