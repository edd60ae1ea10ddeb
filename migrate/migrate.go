// Package migrate applies goose SQL migrations through the sqlbridge
// driver.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/tomyedwab/sqlbridge/adapter"
	sqlbridge "github.com/tomyedwab/sqlbridge/driver"
)

// Result describes one migration that ran.
type Result struct {
	Version   int64
	Path      string
	Direction string
	Duration  time.Duration
	Empty     bool
}

// Status describes one known migration.
type Status struct {
	Version   int64
	Path      string
	Applied   bool
	AppliedAt time.Time
}

// Migrator runs the migrations found in a filesystem against one database.
type Migrator struct {
	provider *goose.Provider
	logger   *slog.Logger
}

// New returns a migrator over the *.sql files at the root of fsys.
func New(db *sql.DB, fsys fs.FS, logger *slog.Logger) (*Migrator, error) {
	if db == nil {
		return nil, errors.New("database not opened")
	}
	if logger == nil {
		logger = slog.Default()
	}
	p, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return nil, fmt.Errorf("failed to load migrations: %w", err)
	}
	return &Migrator{provider: p, logger: logger.With("component", "migrate")}, nil
}

// Open connects to dsn with the sqlbridge driver and loads the migrations
// in dir. The caller closes the returned database.
func Open(dsn, dir string, logger *slog.Logger) (*Migrator, *sql.DB, error) {
	opts, err := adapter.ParseDSN(dsn)
	if err != nil {
		return nil, nil, err
	}
	db := sqlbridge.OpenDB(opts, nil)
	m, err := New(db, os.DirFS(dir), logger)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return m, db, nil
}

// Up applies every pending migration.
func (m *Migrator) Up(ctx context.Context) ([]Result, error) {
	res, err := m.provider.Up(ctx)
	out := make([]Result, 0, len(res))
	for _, r := range res {
		out = append(out, m.result(r))
	}
	if err != nil {
		return out, fmt.Errorf("failed to run migrations: %w", err)
	}
	return out, nil
}

// Down rolls back the most recently applied migration.
func (m *Migrator) Down(ctx context.Context) (Result, error) {
	res, err := m.provider.Down(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to roll back migration: %w", err)
	}
	return m.result(res), nil
}

// Status lists every migration and whether it has been applied.
func (m *Migrator) Status(ctx context.Context) ([]Status, error) {
	statuses, err := m.provider.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read migration status: %w", err)
	}
	out := make([]Status, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, Status{
			Version:   s.Source.Version,
			Path:      s.Source.Path,
			Applied:   s.State == goose.StateApplied,
			AppliedAt: s.AppliedAt,
		})
	}
	return out, nil
}

// Version returns the highest applied migration version, 0 when none is.
func (m *Migrator) Version(ctx context.Context) (int64, error) {
	return m.provider.GetDBVersion(ctx)
}

func (m *Migrator) result(r *goose.MigrationResult) Result {
	if r == nil || r.Source == nil {
		return Result{}
	}
	out := Result{
		Version:   r.Source.Version,
		Path:      r.Source.Path,
		Direction: r.Direction,
		Duration:  r.Duration,
		Empty:     r.Empty,
	}
	m.logger.Info("migration applied",
		"version", out.Version,
		"direction", out.Direction,
		"duration", out.Duration)
	return out
}
