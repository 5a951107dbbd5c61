package cli

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/srbot/notesdk/pkg/logtrace"
	"github.com/srbot/notesdk/sdk/action"
	"github.com/srbot/notesdk/sdk/config"
)

const defaultConfigFileName = "notesdk.yml"

// app carries global flags and the lazily built SDK client.
type app struct {
	cfgFile   string
	baseURL   string
	csrfToken string
	debug     bool

	cfg    *config.Config
	client action.Client
}

// NewRootCmd builds the command tree. Each call returns an independent tree.
func NewRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "notesdk",
		Short: "Submit and track note calibration tasks",
		Long: `notesdk talks to the notes API with connection-aware timeouts and retries.

It can submit calibration tasks, query their status, poll them to completion,
and report how the current connection is classified.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.client != nil {
				a.client.Close()
			}
			logtrace.Sync()
		},
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default: none, built-in defaults)")
	root.PersistentFlags().StringVar(&a.baseURL, "base-url", "", "API base URL, overrides the config file")
	root.PersistentFlags().StringVar(&a.csrfToken, "csrf-token", "", "CSRF token sent on unsafe requests")
	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "Enable debug logging")

	root.AddCommand(
		newProfileCmd(a),
		newSubmitCmd(a),
		newStatusCmd(a),
		newPollCmd(a),
		newCalibrateCmd(a),
		newConfigCmd(a),
	)
	return root
}

// setup loads configuration, initializes logging and builds the client.
func (a *app) setup(ctx context.Context) (action.Client, error) {
	if a.client != nil {
		return a.client, nil
	}

	path := ""
	if a.cfgFile != "" {
		path = processConfigPath(a.cfgFile)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	if a.baseURL != "" {
		cfg.BaseURL = a.baseURL
	}
	if a.csrfToken != "" {
		cfg.CSRF.Token = a.csrfToken
	}

	level := slog.LevelWarn
	if a.debug {
		level = slog.LevelDebug
	} else if lvl, ok := parseLevel(cfg.Log.Level); ok {
		level = lvl
	}
	logtrace.Setup("notesdk", cfg.Log.Env, level)

	client, err := action.NewClient(*cfg)
	if err != nil {
		return nil, errors.Wrap(err, "create client")
	}
	logtrace.Debug(ctx, "Client ready", logtrace.Fields{"base_url": cfg.BaseURL})

	a.cfg = cfg
	a.client = client
	return client, nil
}

func parseLevel(s string) (slog.Level, bool) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, false
	}
	return l, true
}
