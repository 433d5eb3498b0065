package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	DefaultModel           = "gpt-4o"
	DefaultEngine          = "stream"
	DefaultMaxSteps        = 8
	DefaultTimeout         = 120 * time.Second
	DefaultToolTimeout     = 10 * time.Second
	DefaultToolMaxBytes    = 20 * 1024
	DefaultFifoPath        = "/tmp/cmdfix_fifo"
	DefaultFifoOpenTimeout = 5 * time.Second
	DefaultHistoryLines    = 20
)

// Config holds runtime configuration values.
type Config struct {
	Model           string
	Engine          string
	BaseURL         string
	MaxSteps        int
	Timeout         time.Duration
	ToolTimeout     time.Duration
	ToolMaxBytes    int
	FifoPath        string
	FifoNonBlocking bool
	FifoOpenTimeout time.Duration
	HistoryLines    int
	NoHistory       bool
	Quiet           bool
	Verbose         bool
	LogFile         string
	PersistRuns     bool
}

type rawConfig struct {
	Model           string `mapstructure:"model"`
	Engine          string `mapstructure:"engine"`
	BaseURL         string `mapstructure:"base_url"`
	MaxSteps        int    `mapstructure:"max_steps"`
	Timeout         string `mapstructure:"timeout"`
	ToolTimeout     string `mapstructure:"tool_timeout"`
	ToolMaxBytes    int    `mapstructure:"tool_max_bytes"`
	FifoPath        string `mapstructure:"fifo_path"`
	FifoNonBlocking bool   `mapstructure:"fifo_nonblock"`
	FifoOpenTimeout string `mapstructure:"fifo_open_timeout"`
	HistoryLines    int    `mapstructure:"history_lines"`
	NoHistory       bool   `mapstructure:"no_history"`
	Quiet           bool   `mapstructure:"quiet"`
	Verbose         bool   `mapstructure:"verbose"`
	LogFile         string `mapstructure:"log_file"`
	PersistRuns     bool   `mapstructure:"persist_runs"`
}

// Load resolves configuration from defaults, config files, env, and flags.
func Load(cmd *cobra.Command) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CMDFIX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("model", DefaultModel)
	v.SetDefault("engine", DefaultEngine)
	v.SetDefault("base_url", "")
	v.SetDefault("max_steps", DefaultMaxSteps)
	v.SetDefault("timeout", DefaultTimeout.String())
	v.SetDefault("tool_timeout", DefaultToolTimeout.String())
	v.SetDefault("tool_max_bytes", DefaultToolMaxBytes)
	v.SetDefault("fifo_path", DefaultFifoPath)
	v.SetDefault("fifo_nonblock", true)
	v.SetDefault("fifo_open_timeout", DefaultFifoOpenTimeout.String())
	v.SetDefault("history_lines", DefaultHistoryLines)
	v.SetDefault("no_history", false)
	v.SetDefault("quiet", false)
	v.SetDefault("verbose", false)
	v.SetDefault("log_file", defaultLogFile())
	v.SetDefault("persist_runs", false)

	if cmd != nil {
		_ = v.BindPFlag("model", cmd.Flags().Lookup("model"))
		_ = v.BindPFlag("engine", cmd.Flags().Lookup("engine"))
		_ = v.BindPFlag("base_url", cmd.Flags().Lookup("base-url"))
		_ = v.BindPFlag("max_steps", cmd.Flags().Lookup("max-steps"))
		_ = v.BindPFlag("timeout", cmd.Flags().Lookup("timeout"))
		_ = v.BindPFlag("tool_timeout", cmd.Flags().Lookup("tool-timeout"))
		_ = v.BindPFlag("fifo_path", cmd.Flags().Lookup("fifo-path"))
		_ = v.BindPFlag("fifo_nonblock", cmd.Flags().Lookup("fifo-nonblock"))
		_ = v.BindPFlag("fifo_open_timeout", cmd.Flags().Lookup("fifo-open-timeout"))
		_ = v.BindPFlag("history_lines", cmd.Flags().Lookup("history-lines"))
		_ = v.BindPFlag("no_history", cmd.Flags().Lookup("no-history"))
		_ = v.BindPFlag("quiet", cmd.Flags().Lookup("quiet"))
		_ = v.BindPFlag("verbose", cmd.Flags().Lookup("verbose"))
		_ = v.BindPFlag("log_file", cmd.Flags().Lookup("log-file"))
	}

	if err := loadConfigFile(v); err != nil {
		return Config{}, err
	}

	// Env overrides arrive as strings; decode them into the typed keys.
	var raw rawConfig
	decoder, _ := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		Result:           &raw,
	})
	if err := decoder.Decode(v.AllSettings()); err != nil {
		return Config{}, err
	}

	timeout, err := parseDuration(raw.Timeout, DefaultTimeout, "timeout")
	if err != nil {
		return Config{}, err
	}
	toolTimeout, err := parseDuration(raw.ToolTimeout, DefaultToolTimeout, "tool_timeout")
	if err != nil {
		return Config{}, err
	}
	openTimeout, err := parseDuration(raw.FifoOpenTimeout, DefaultFifoOpenTimeout, "fifo_open_timeout")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Model:           raw.Model,
		Engine:          strings.ToLower(strings.TrimSpace(raw.Engine)),
		BaseURL:         raw.BaseURL,
		MaxSteps:        raw.MaxSteps,
		Timeout:         timeout,
		ToolTimeout:     toolTimeout,
		ToolMaxBytes:    raw.ToolMaxBytes,
		FifoPath:        raw.FifoPath,
		FifoNonBlocking: raw.FifoNonBlocking,
		FifoOpenTimeout: openTimeout,
		HistoryLines:    raw.HistoryLines,
		NoHistory:       raw.NoHistory,
		Quiet:           raw.Quiet,
		Verbose:         raw.Verbose,
		LogFile:         raw.LogFile,
		PersistRuns:     raw.PersistRuns,
	}

	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Engine == "" {
		cfg.Engine = DefaultEngine
	}
	if cfg.Engine != "stream" && cfg.Engine != "twocall" {
		return Config{}, fmt.Errorf("unknown engine %q (want stream or twocall)", cfg.Engine)
	}
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = DefaultMaxSteps
	}
	if cfg.ToolMaxBytes <= 0 {
		cfg.ToolMaxBytes = DefaultToolMaxBytes
	}
	if cfg.FifoPath == "" {
		cfg.FifoPath = DefaultFifoPath
	}
	if cfg.HistoryLines < 0 {
		cfg.HistoryLines = 0
	}

	return cfg, nil
}

func parseDuration(value string, fallback time.Duration, name string) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", name, err)
	}
	if parsed <= 0 {
		return fallback, nil
	}
	return parsed, nil
}

func defaultLogFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".cmdfix.log")
}

func loadConfigFile(v *viper.Viper) error {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil
	}
	base := filepath.Join(configDir, "cmdfix")
	candidates := []string{
		filepath.Join(base, "config.yaml"),
		filepath.Join(base, "config.yml"),
		filepath.Join(base, "config.json"),
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return err
			}
			return nil
		}
	}
	return nil
}
