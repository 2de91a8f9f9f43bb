// Command midx is a small supervisor daemon: it accepts connections on a
// UNIX socket, one per mailbox, and opens/holds a *mailindex.Index per
// mailbox directory, serializing access to it the way a single-writer
// index requires.
package main

import (
	"fmt"
	"os"

	"github.com/marmos91/mailidx/cmd/midx/commands"
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
