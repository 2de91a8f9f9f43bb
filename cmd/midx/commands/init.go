package commands

import (
	"fmt"
	"os"

	"github.com/marmos91/mailidx/pkg/config"
	"github.com/spf13/cobra"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if path == "" {
			path = config.GetDefaultConfigPath()
		}

		if !initForce {
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
			}
		}

		cfg := config.DefaultConfig()
		if err := config.SaveConfig(&cfg, path); err != nil {
			return fmt.Errorf("write config: %w", err)
		}

		fmt.Printf("Configuration file created at: %s\n", path)
		fmt.Println("Edit it to point index.dir at your mailbox directory, then run: midx serve")
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing config file")
}
