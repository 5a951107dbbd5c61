package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/ratelimit"
	"golang.org/x/sync/errgroup"

	"github.com/srbot/notesdk/sdk/action"
	"github.com/srbot/notesdk/sdk/task"
)

func newCalibrateCmd(a *app) *cobra.Command {
	var (
		noteIDs     []int64
		infoHash    string
		rate        int
		concurrency int
		sync        bool
		quiet       bool
	)

	cmd := &cobra.Command{
		Use:   "calibrate",
		Short: "Calibrate notes end to end",
		Long: `Calibrate submits an asynchronous calibration for each note and polls it
to completion. If the asynchronous endpoint rejects the task the synchronous
endpoint is used instead. Submissions are throttled to --rate per second.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(noteIDs) == 0 && infoHash == "" {
				return fmt.Errorf("--note or --info-hash is required")
			}
			if err := checkConcurrency(concurrency); err != nil {
				return err
			}
			ctx := cmd.Context()
			client, err := a.setup(ctx)
			if err != nil {
				return err
			}
			p := &printer{w: cmd.OutOrStdout()}
			opts := task.PollOptions{}
			if !quiet {
				opts.OnTick = p.tick
			}

			if infoHash != "" {
				name, err := client.CalibrateInfoHash(ctx, infoHash, opts)
				if err != nil {
					return err
				}
				p.Printf("%s -> %s\n", infoHash, name)
				if len(noteIDs) == 0 {
					return nil
				}
			}

			if rate <= 0 {
				rate = 1
			}
			limiter := ratelimit.New(rate)

			var g errgroup.Group
			g.SetLimit(concurrency)
			failures := make([]error, len(noteIDs))
			for i, id := range noteIDs {
				limiter.Take()
				if ctx.Err() != nil {
					break
				}
				g.Go(func() error {
					out, err := calibrateOne(cmd, client, id, sync, opts)
					if err != nil {
						failures[i] = err
						p.Printf("Note %d: %v\n", id, err)
						return nil
					}
					mode := "async task " + out.TaskID
					if out.Sync {
						mode = "sync"
					}
					p.Printf("Note %d (%s):\n", id, mode)
					p.result(out.Result)
					return nil
				})
			}
			_ = g.Wait()

			n := 0
			for _, err := range failures {
				if err != nil {
					n++
				}
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if n > 0 {
				return fmt.Errorf("%d of %d note(s) failed", n, len(noteIDs))
			}
			return nil
		},
	}
	cmd.Flags().Int64SliceVar(&noteIDs, "note", nil, "note ids to calibrate (repeatable or comma separated)")
	cmd.Flags().StringVar(&infoHash, "info-hash", "", "resolve the filename of a single info hash")
	cmd.Flags().IntVar(&rate, "rate", 2, "maximum submissions per second")
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "maximum calibrations in flight")
	cmd.Flags().BoolVar(&sync, "sync", false, "skip the asynchronous endpoint")
	cmd.Flags().BoolVar(&quiet, "quiet", false, "do not print poll progress")
	return cmd
}

func calibrateOne(cmd *cobra.Command, client action.Client, noteID int64, sync bool, opts task.PollOptions) (*action.CalibrationOutcome, error) {
	if !sync {
		return client.CalibrateNote(cmd.Context(), noteID, opts)
	}
	res, err := client.CalibrateNoteSync(cmd.Context(), noteID)
	if err != nil {
		return nil, err
	}
	return &action.CalibrationOutcome{Sync: true, Result: res}, nil
}
