// Package config loads the sqlbridge CLI configuration from defaults, a
// YAML file, SQLBRIDGE_ environment variables and command-line flags, in
// that order of precedence.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix is the prefix of environment variables that override config.
const EnvPrefix = "SQLBRIDGE_"

// DefaultConfigFile is looked up in the working directory when no
// --config flag is given.
const DefaultConfigFile = "sqlbridge.yaml"

// Output formats for query results.
const (
	FormatTable    = "table"
	FormatJSON     = "json"
	FormatCSV      = "csv"
	FormatMarkdown = "markdown"
)

// Config is the resolved CLI configuration.
type Config struct {
	Database      string        `koanf:"database"`
	Format        string        `koanf:"format"`
	LogLevel      string        `koanf:"log_level"`
	LogFormat     string        `koanf:"log_format"`
	MigrationsDir string        `koanf:"migrations_dir"`
	PoolTimeout   time.Duration `koanf:"pool_timeout"`
	HistoryFile   string        `koanf:"history_file"`
}

var k = koanf.New(".")

func defaults() map[string]any {
	return map[string]any{
		"database":       ":memory:",
		"format":         FormatTable,
		"log_level":      "warn",
		"log_format":     "text",
		"migrations_dir": "migrations",
		"pool_timeout":   "5s",
		"history_file":   "",
	}
}

// Load resolves the configuration. cfgFile may be empty, in which case
// DefaultConfigFile is used if it exists. Only flags the user changed
// override lower layers.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	path := cfgFile
	if path == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			path = DefaultConfigFile
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	if flags != nil {
		err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed {
				return "", nil
			}
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
		}), nil)
		if err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Format = strings.ToLower(cfg.Format)
	if cfg.Format == "md" {
		cfg.Format = FormatMarkdown
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Reset clears every loaded layer. Tests call it between loads.
func Reset() {
	k = koanf.New(".")
}

// Validate checks the enumerated settings.
func (c *Config) Validate() error {
	switch c.Format {
	case FormatTable, FormatJSON, FormatCSV, FormatMarkdown:
	default:
		return fmt.Errorf("unknown output format %q (want table, json, csv or markdown)", c.Format)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q (want text or json)", c.LogFormat)
	}
	return nil
}

// NewLogger builds the slog logger the configuration asks for.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		level = slog.LevelWarn
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(c.LogFormat) == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}
