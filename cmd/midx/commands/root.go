// Package commands implements the midx daemon's CLI surface.
package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "midx",
	Short: "midx - mail index storage engine daemon",
	Long: `midx is a supervisor daemon for the mail index storage engine: it
accepts connections on a UNIX socket, one per mailbox directory, and
serializes every append/expunge/update_flags/lookup call through the
single *mailindex.Index handle that directory owns.

Use "midx [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/mailidx/config.yaml)")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}
