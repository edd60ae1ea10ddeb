package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tomyedwab/sqlbridge/adapter"
	"github.com/tomyedwab/sqlbridge/dataset"
)

// NewTablesCommand creates the tables command.
func NewTablesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List the user tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := EnvFrom(cmd.Context()).OpenDataset(cmd.Context())
			if err != nil {
				return err
			}
			defer d.Close()
			return printTables(cmd.Context(), d, cmd.OutOrStdout())
		},
	}
}

// NewSchemaCommand creates the schema command.
func NewSchemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema <table>",
		Short: "Show the columns of a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env := EnvFrom(cmd.Context())
			d, err := env.OpenDataset(cmd.Context())
			if err != nil {
				return err
			}
			defer d.Close()
			return printSchema(cmd.Context(), d, cmd.OutOrStdout(), env.Config.Format, args[0])
		},
	}
}

func printTables(ctx context.Context, d *dataset.Dataset, w io.Writer) error {
	tables, err := d.Tables(ctx)
	if err != nil {
		return err
	}
	for _, t := range tables {
		if _, err := fmt.Fprintln(w, t); err != nil {
			return err
		}
	}
	return nil
}

func printSchema(ctx context.Context, d *dataset.Dataset, w io.Writer, format, table string) error {
	cols, err := d.Schema(ctx, table)
	if err != nil {
		return err
	}
	if len(cols) == 0 {
		return fmt.Errorf("no such table: %s", table)
	}
	columns := []string{"name", "type", "not_null", "default", "primary_key"}
	rows := make([]adapter.Row, 0, len(cols))
	for _, c := range cols {
		rows = append(rows, adapter.Row{
			Columns: columns,
			Values:  []any{c.Name, c.Type, c.NotNull, c.Default, c.PrimaryKey},
		})
	}
	return renderRows(w, format, columns, rows)
}
