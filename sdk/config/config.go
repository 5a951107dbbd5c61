// Package config holds the SDK configuration. Files are YAML; every key can
// be overridden from the environment with the NOTESDK_ prefix.
package config

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/srbot/notesdk/pkg/logtrace"
)

const EnvPrefix = "NOTESDK"

type Config struct {
	BaseURL   string          `yaml:"base_url" mapstructure:"base_url"`
	Endpoints EndpointsConfig `yaml:"endpoints" mapstructure:"endpoints"`
	CSRF      CSRFConfig      `yaml:"csrf" mapstructure:"csrf"`
	Network   NetworkConfig   `yaml:"network" mapstructure:"network"`
	Tasks     TaskConfig      `yaml:"tasks" mapstructure:"tasks"`
	Events    EventsConfig    `yaml:"events" mapstructure:"events"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

type EndpointsConfig struct {
	Submit        string `yaml:"submit" mapstructure:"submit"`
	Status        string `yaml:"status" mapstructure:"status"`
	CalibrateSync string `yaml:"calibrate_sync" mapstructure:"calibrate_sync"`
}

// CSRFConfig selects where the anti-forgery token comes from. A static Token
// wins over MetaURL.
type CSRFConfig struct {
	Header  string `yaml:"header" mapstructure:"header"`
	Token   string `yaml:"token" mapstructure:"token"`
	MetaURL string `yaml:"meta_url" mapstructure:"meta_url"`
}

type NetworkConfig struct {
	CacheTTL         time.Duration            `yaml:"cache_ttl" mapstructure:"cache_ttl"`
	Timeouts         map[string]time.Duration `yaml:"timeouts" mapstructure:"timeouts"`
	Retries          map[string]int           `yaml:"retries" mapstructure:"retries"`
	BackoffBase      time.Duration            `yaml:"backoff_base" mapstructure:"backoff_base"`
	BackoffMax       time.Duration            `yaml:"backoff_max" mapstructure:"backoff_max"`
	MaxResponseBytes int64                    `yaml:"max_response_bytes" mapstructure:"max_response_bytes"`
	HostSignals      bool                     `yaml:"host_signals" mapstructure:"host_signals"`
	ProbeAddr        string                   `yaml:"probe_addr" mapstructure:"probe_addr"`
	ProbeTimeout     time.Duration            `yaml:"probe_timeout" mapstructure:"probe_timeout"`
	WatchInterval    time.Duration            `yaml:"watch_interval" mapstructure:"watch_interval"`
}

type TaskConfig struct {
	SubmitTimeout   time.Duration `yaml:"submit_timeout" mapstructure:"submit_timeout"`
	SubmitRetries   int           `yaml:"submit_retries" mapstructure:"submit_retries"`
	StatusTimeout   time.Duration `yaml:"status_timeout" mapstructure:"status_timeout"`
	PollInterval    time.Duration `yaml:"poll_interval" mapstructure:"poll_interval"`
	PollMaxDuration time.Duration `yaml:"poll_max_duration" mapstructure:"poll_max_duration"`
	SyncTimeout     time.Duration `yaml:"sync_timeout" mapstructure:"sync_timeout"`
	SyncRetries     int           `yaml:"sync_retries" mapstructure:"sync_retries"`
}

type EventsConfig struct {
	MaxWorkers int `yaml:"max_workers" mapstructure:"max_workers"`
}

type LogConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
	Env   string `yaml:"env" mapstructure:"env"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		BaseURL: "http://127.0.0.1:5000",
		Endpoints: EndpointsConfig{
			Submit:        "/api/calibrate/async",
			Status:        "/api/calibrate/status",
			CalibrateSync: "/api/calibrate",
		},
		CSRF: CSRFConfig{Header: "X-CSRFToken"},
		Network: NetworkConfig{
			CacheTTL: 30 * time.Second,
			Timeouts: map[string]time.Duration{
				"slow-2g": 15 * time.Second,
				"2g":      10 * time.Second,
				"3g":      8 * time.Second,
				"4g":      5 * time.Second,
				"wifi":    5 * time.Second,
				"unknown": 5 * time.Second,
			},
			Retries: map[string]int{
				"slow-2g": 3,
				"2g":      3,
				"3g":      2,
				"4g":      1,
				"wifi":    1,
				"unknown": 1,
			},
			BackoffBase:      time.Second,
			BackoffMax:       10 * time.Second,
			MaxResponseBytes: 10 << 20,
			ProbeTimeout:     3 * time.Second,
			WatchInterval:    5 * time.Second,
		},
		Tasks: TaskConfig{
			SubmitTimeout:   10 * time.Second,
			SubmitRetries:   1,
			StatusTimeout:   5 * time.Second,
			PollInterval:    time.Second,
			PollMaxDuration: 60 * time.Second,
			SyncTimeout:     60 * time.Second,
			SyncRetries:     2,
		},
		Events: EventsConfig{MaxWorkers: 50},
		Log:    LogConfig{Level: "info", Env: "prod"},
	}
}

// Load reads filename over the defaults and applies NOTESDK_* environment
// overrides. An empty filename yields defaults plus environment.
func Load(filename string) (*Config, error) {
	ctx := logtrace.CtxWithOrigin(context.Background(), "config")

	defaults, err := yaml.Marshal(Default())
	if err != nil {
		return nil, errors.Wrap(err, "encode defaults")
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return nil, errors.Wrap(err, "load defaults")
	}

	if filename != "" {
		logtrace.Info(ctx, "Loading configuration", logtrace.Fields{"filename": filename})
		v.SetConfigFile(filename)
		if err := v.MergeInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config file %s", filename)
		}
	} else {
		logtrace.Debug(ctx, "No config file given, using defaults", nil)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logtrace.Debug(ctx, "Configuration loaded", logtrace.Fields{"base_url": cfg.BaseURL})
	return &cfg, nil
}

// Write stores cfg as YAML, creating parent directories.
func Write(filename string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "encode config")
	}
	if dir := filepath.Dir(filename); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "create config dir %s", dir)
		}
	}
	return errors.Wrapf(os.WriteFile(filename, data, 0o644), "write config file %s", filename)
}

// Validate rejects configurations the SDK cannot run with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return errors.New("config: base_url is required")
	}
	if c.Tasks.SubmitTimeout <= 0 || c.Tasks.StatusTimeout <= 0 {
		return errors.New("config: task timeouts must be positive")
	}
	if c.Tasks.PollInterval <= 0 || c.Tasks.PollMaxDuration <= 0 {
		return errors.New("config: poll interval and max duration must be positive")
	}
	if c.Tasks.SubmitRetries < 0 || c.Tasks.SyncRetries < 0 {
		return errors.New("config: retry counts cannot be negative")
	}
	if c.Network.BackoffBase <= 0 || c.Network.BackoffMax < c.Network.BackoffBase {
		return errors.New("config: backoff_max must be at least backoff_base")
	}
	for kind, d := range c.Network.Timeouts {
		if d <= 0 {
			return errors.Errorf("config: timeout for %q must be positive", kind)
		}
	}
	for kind, n := range c.Network.Retries {
		if n < 0 {
			return errors.Errorf("config: retry count for %q cannot be negative", kind)
		}
	}
	return nil
}

// URL joins the base URL and an endpoint path.
func (c Config) URL(path string) string {
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}
