package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/srbot/notesdk/sdk/task"
)

func newSubmitCmd(a *app) *cobra.Command {
	var (
		noteID   int64
		infoHash string
	)

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a calibration task and print its id",
		RunE: func(cmd *cobra.Command, args []string) error {
			if (noteID > 0) == (infoHash != "") {
				return fmt.Errorf("exactly one of --note or --info-hash is required")
			}
			client, err := a.setup(cmd.Context())
			if err != nil {
				return err
			}

			var payload interface{} = task.NotePayload{NoteID: noteID}
			if infoHash != "" {
				payload = task.InfoHashPayload{InfoHash: infoHash}
			}
			taskID, err := client.SubmitTask(cmd.Context(), payload)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), taskID)
			return nil
		},
	}
	cmd.Flags().Int64Var(&noteID, "note", 0, "note id to calibrate")
	cmd.Flags().StringVar(&infoHash, "info-hash", "", "info hash to resolve")
	return cmd
}
