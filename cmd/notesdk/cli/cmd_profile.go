package cli

import (
	"github.com/spf13/cobra"

	"github.com/srbot/notesdk/sdk/event"
)

func newProfileCmd(a *app) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show how the current connection is classified",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := a.setup(ctx)
			if err != nil {
				return err
			}
			p := &printer{w: cmd.OutOrStdout()}

			p.Printf("Connection profile:\n")
			p.Printf("   Online: %t\n", client.Online(ctx))
			p.Printf("   Type: %s\n", client.DetectConnectionType(ctx))
			p.Printf("   Timeout: %s\n", client.APITimeout(ctx))
			p.Printf("   Retries: %d\n", client.RetryCount(ctx))

			if !watch {
				return nil
			}
			client.SubscribeToEvents(event.NetworkChanged, func(e event.Event) {
				p.Printf("Network changed: type=%v online=%v\n", e.Data[event.KeyConnection], e.Data[event.KeyOnline])
			})
			if !client.WatchNetwork(ctx) {
				p.Printf("Network change detection needs network.host_signals enabled\n")
				return nil
			}
			p.Printf("Watching for network changes, press Ctrl+C to stop\n")
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "keep running and report network changes")
	return cmd
}
