package cli

import (
	"time"

	"github.com/spf13/cobra"
)

func newStatusCmd(a *app) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "status <task-id>",
		Short: "Query a task once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.setup(cmd.Context())
			if err != nil {
				return err
			}
			st, err := client.GetTaskStatus(cmd.Context(), args[0], timeout)
			if err != nil {
				return err
			}
			(&printer{w: cmd.OutOrStdout()}).status(st)
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "query timeout (default from config)")
	return cmd
}
