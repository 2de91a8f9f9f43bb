// Package commands implements the midxctl operator CLI.
package commands

import (
	"os"

	"github.com/marmos91/mailidx/internal/cli/output"
	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Flags holds the persistent flag values synced in PersistentPreRun, the
// way dfsctl's cmdutil.Flags does for its own subcommands.
var Flags struct {
	Dir     string
	Prefix  string
	Output  string
	NoColor bool
	Verbose bool
}

var rootCmd = &cobra.Command{
	Use:   "midxctl",
	Short: "midxctl - mail index inspection client",
	Long: `midxctl opens a mail index directory and reports its header,
record, and recovery state.

Opening the index runs the engine's normal open, which takes EXCLUSIVE
briefly, runs any pending recovery steps, and updates the header on
release. After that midxctl holds only SHARED and issues no writes of
its own; use the midx daemon's socket protocol for writes.

Use "midxctl [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		Flags.Dir, _ = cmd.Flags().GetString("dir")
		Flags.Prefix, _ = cmd.Flags().GetString("prefix")
		Flags.Output, _ = cmd.Flags().GetString("output")
		Flags.NoColor, _ = cmd.Flags().GetBool("no-color")
		Flags.Verbose, _ = cmd.Flags().GetBool("verbose")
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().String("dir", ".", "index directory")
	rootCmd.PersistentFlags().String("prefix", "dovecot.index", "index file prefix")
	rootCmd.PersistentFlags().StringP("output", "o", "table", "output format (table|json|yaml)")
	rootCmd.PersistentFlags().Bool("no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable verbose output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(headerCmd)
	rootCmd.AddCommand(recordsCmd)
}

// printer builds an output.Printer from the current persistent flags.
func printer() (*output.Printer, error) {
	format, err := output.ParseFormat(Flags.Output)
	if err != nil {
		return nil, err
	}
	return output.NewPrinter(os.Stdout, format, !Flags.NoColor), nil
}

// PrintErr prints an error message to stderr.
func PrintErr(format string, args ...any) {
	rootCmd.PrintErrf(format+"\n", args...)
}

// Exit prints an error and exits with code 1.
func Exit(format string, args ...any) {
	PrintErr(format, args...)
	os.Exit(1)
}
