// Package commands holds the sqlbridge subcommands.
package commands

import (
	"context"
	"io"
	"log/slog"

	"github.com/tomyedwab/sqlbridge/adapter"
	"github.com/tomyedwab/sqlbridge/cli/config"
	"github.com/tomyedwab/sqlbridge/dataset"
)

type envKey struct{}

// Env is what the root command resolves before any subcommand runs.
type Env struct {
	Config *config.Config
	Logger *slog.Logger
}

// WithEnv stores env in ctx for the subcommands.
func WithEnv(ctx context.Context, env *Env) context.Context {
	return context.WithValue(ctx, envKey{}, env)
}

// EnvFrom returns the env stored by WithEnv, or an in-memory default with
// logging discarded.
func EnvFrom(ctx context.Context) *Env {
	if env, ok := ctx.Value(envKey{}).(*Env); ok {
		return env
	}
	return &Env{
		Config: &config.Config{
			Database:      ":memory:",
			Format:        config.FormatTable,
			LogLevel:      "warn",
			LogFormat:     "text",
			MigrationsDir: "migrations",
		},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// OpenDataset connects to the configured database.
func (e *Env) OpenDataset(ctx context.Context) (*dataset.Dataset, error) {
	opts, err := adapter.ParseDSN(e.Config.Database)
	if err != nil {
		return nil, err
	}
	return dataset.Open(ctx, dataset.Config{
		Options:     opts,
		PoolTimeout: e.Config.PoolTimeout,
		Logger:      e.Logger,
	})
}
