package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/srbot/notesdk/sdk/task"
)

func newPollCmd(a *app) *cobra.Command {
	var (
		interval    time.Duration
		maxDuration time.Duration
		concurrency int
		quiet       bool
	)

	cmd := &cobra.Command{
		Use:   "poll <task-id>...",
		Short: "Poll tasks until they finish",
		Long: `Poll one or more tasks until each reaches a terminal state, the time
budget runs out, or the command is interrupted. Tasks are polled concurrently
and independently; one failing does not stop the others.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkConcurrency(concurrency); err != nil {
				return err
			}
			ctx := cmd.Context()
			client, err := a.setup(ctx)
			if err != nil {
				return err
			}
			p := &printer{w: cmd.OutOrStdout()}

			opts := task.PollOptions{Interval: interval, MaxDuration: maxDuration}
			if !quiet {
				opts.OnTick = p.tick
			}

			var g errgroup.Group
			g.SetLimit(concurrency)
			failed := make([]error, len(args))
			for i, id := range args {
				g.Go(func() error {
					st, err := client.PollTask(ctx, id, opts)
					if err != nil {
						failed[i] = err
						p.Printf("Task %s: %v\n", id, err)
						return nil
					}
					p.status(st)
					return nil
				})
			}
			_ = g.Wait()

			n := 0
			for _, err := range failed {
				if err != nil {
					n++
				}
			}
			if n > 0 {
				return fmt.Errorf("%d of %d task(s) did not complete", n, len(args))
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 0, "delay between status queries (default from config)")
	cmd.Flags().DurationVar(&maxDuration, "max", 0, "give up after this long (default from config)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "maximum tasks polled at once")
	cmd.Flags().BoolVar(&quiet, "quiet", false, "only print final results")
	return cmd
}
