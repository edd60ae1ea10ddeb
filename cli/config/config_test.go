package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("database", "", "")
	fs.StringP("format", "f", FormatTable, "")
	fs.String("log-level", "warn", "")
	fs.String("migrations-dir", "migrations", "")
	fs.Duration("pool-timeout", 5*time.Second, "")
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestLoadDefaults(t *testing.T) {
	Reset()
	t.Chdir(t.TempDir())

	cfg, err := Load("", testFlags(t))
	require.NoError(t, err)
	assert.Equal(t, ":memory:", cfg.Database)
	assert.Equal(t, FormatTable, cfg.Format)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "migrations", cfg.MigrationsDir)
	assert.Equal(t, 5*time.Second, cfg.PoolTimeout)
}

func TestLoadPrecedence(t *testing.T) {
	Reset()
	dir := t.TempDir()
	t.Chdir(dir)
	yml := "database: from-file.db\nformat: csv\nlog_level: info\nmigrations_dir: db/migrations\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte(yml), 0o644))
	t.Setenv("SQLBRIDGE_FORMAT", "json")
	t.Setenv("SQLBRIDGE_POOL_TIMEOUT", "250ms")

	cfg, err := Load("", testFlags(t, "--database", "from-flag.db"))
	require.NoError(t, err)
	assert.Equal(t, "from-flag.db", cfg.Database)
	assert.Equal(t, FormatJSON, cfg.Format)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "db/migrations", cfg.MigrationsDir)
	assert.Equal(t, 250*time.Millisecond, cfg.PoolTimeout)
}

func TestLoadExplicitFile(t *testing.T) {
	Reset()
	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("format: md\n"), 0o644))

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, FormatMarkdown, cfg.Format)

	Reset()
	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "valid", cfg: Config{Format: FormatCSV, LogLevel: "debug", LogFormat: "json"}},
		{name: "bad format", cfg: Config{Format: "xml", LogLevel: "info", LogFormat: "text"}, wantErr: "unknown output format"},
		{name: "bad level", cfg: Config{Format: FormatTable, LogLevel: "loud", LogFormat: "text"}, wantErr: "unknown log level"},
		{name: "bad log format", cfg: Config{Format: FormatTable, LogLevel: "info", LogFormat: "xml"}, wantErr: "unknown log format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := Config{LogLevel: "info", LogFormat: "json"}
	logger := cfg.NewLogger(&buf)
	logger.Debug("hidden")
	logger.Info("shown", "k", 1)
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
}
