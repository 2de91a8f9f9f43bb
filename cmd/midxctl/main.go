// Command midxctl is an operator CLI that opens a mail index directory
// and reports its header, record, and recovery state.
package main

import (
	"fmt"
	"os"

	"github.com/marmos91/mailidx/cmd/midxctl/commands"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.Version = version
	commands.Commit = commit
	commands.Date = date

	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
