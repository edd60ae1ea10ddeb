package commands

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/tomyedwab/sqlbridge/migrate"
)

// NewMigrateCommand creates the migrate command and its up, down and
// status subcommands.
func NewMigrateCommand() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back goose SQL migrations",
		Example: `  sqlbridge migrate up --dir db/migrations --database app.db
  sqlbridge migrate status`,
	}
	cmd.PersistentFlags().StringVar(&dir, "dir", "", "Migrations directory (default from config: migrations_dir)")

	open := func(cmd *cobra.Command) (*migrate.Migrator, func(), error) {
		env := EnvFrom(cmd.Context())
		d := dir
		if d == "" {
			d = env.Config.MigrationsDir
		}
		m, db, err := migrate.Open(env.Config.Database, d, env.Logger)
		if err != nil {
			return nil, nil, err
		}
		return m, func() { _ = db.Close() }, nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply every pending migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, closeDB, err := open(cmd)
			if err != nil {
				return err
			}
			defer closeDB()
			results, err := m.Up(cmd.Context())
			for _, r := range results {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "OK   %s (%s)\n", r.Path, r.Duration.Round(time.Millisecond))
			}
			if err != nil {
				return err
			}
			if len(results) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no pending migrations")
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, closeDB, err := open(cmd)
			if err != nil {
				return err
			}
			defer closeDB()
			r, err := m.Down(cmd.Context())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "OK   %s (%s)\n", r.Path, r.Duration.Round(time.Millisecond))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List migrations and whether they are applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, closeDB, err := open(cmd)
			if err != nil {
				return err
			}
			defer closeDB()
			statuses, err := m.Status(cmd.Context())
			if err != nil {
				return err
			}
			t := table.NewWriter()
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"version", "migration", "applied at"})
			for _, s := range statuses {
				applied := "pending"
				if s.Applied {
					applied = s.AppliedAt.Format(time.DateTime)
				}
				t.AppendRow(table.Row{s.Version, s.Path, applied})
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), t.Render())
			return nil
		},
	})

	return cmd
}
