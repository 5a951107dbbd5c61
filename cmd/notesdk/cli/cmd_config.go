package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/srbot/notesdk/sdk/config"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write the default configuration",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := defaultConfigFileName
			if len(args) == 1 {
				path = args[0]
			} else if a.cfgFile != "" {
				path = a.cfgFile
			}
			path = processConfigPath(path)

			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists, use --force to overwrite", path)
			}
			cfg := config.Default()
			if a.baseURL != "" {
				cfg.BaseURL = a.baseURL
			}
			if err := config.Write(path, cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	cmd.AddCommand(initCmd)
	return cmd
}
