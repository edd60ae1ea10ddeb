package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tomyedwab/sqlbridge/adapter"
	"github.com/tomyedwab/sqlbridge/dataset"
)

// QueryOptions holds options for the query command.
type QueryOptions struct {
	Input string
}

// NewQueryCommand creates the query command.
func NewQueryCommand() *cobra.Command {
	opts := &QueryOptions{}

	cmd := &cobra.Command{
		Use:   "query [SQL]",
		Short: "Run a query and print its rows",
		Long: `Run a SELECT (or any statement returning rows) and render the result.

The SQL comes from the argument, from --input, or from stdin when neither is
given. Declared column types are applied, so dates, booleans and numerics
print as values rather than raw storage.`,
		Example: `  sqlbridge query "SELECT * FROM users" --database app.db
  sqlbridge query -i report.sql --format csv
  echo "SELECT sqlite_version()" | sqlbridge query`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := readSQL(cmd, args, opts.Input)
			if err != nil {
				return err
			}
			env := EnvFrom(cmd.Context())
			d, err := env.OpenDataset(cmd.Context())
			if err != nil {
				return err
			}
			defer d.Close()

			res, err := d.Query(cmd.Context(), query)
			if err != nil {
				return err
			}
			rows, err := adapter.DecodeAll(res)
			if err != nil {
				return err
			}
			return renderRows(cmd.OutOrStdout(), env.Config.Format, columnsOf(res), rows)
		},
	}

	cmd.Flags().StringVarP(&opts.Input, "input", "i", "", "Read SQL from file")
	return cmd
}

// NewExecCommand creates the exec command.
func NewExecCommand() *cobra.Command {
	opts := &QueryOptions{}

	cmd := &cobra.Command{
		Use:   "exec [SQL]",
		Short: "Run an insert, update or schema change",
		Long: `Run a statement whose kind is detected from its leading keyword.

Inserts print the new row id, updates and deletes the number of rows
modified, and schema changes "ok". Statements that return rows are rendered
as with query.`,
		Example: `  sqlbridge exec "CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT)"
  sqlbridge exec "INSERT INTO users (name) VALUES ('ada')"`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stmt, err := readSQL(cmd, args, opts.Input)
			if err != nil {
				return err
			}
			env := EnvFrom(cmd.Context())
			d, err := env.OpenDataset(cmd.Context())
			if err != nil {
				return err
			}
			defer d.Close()
			return runStatement(cmd.Context(), d, cmd.OutOrStdout(), env.Config.Format, stmt)
		},
	}

	cmd.Flags().StringVarP(&opts.Input, "input", "i", "", "Read SQL from file")
	return cmd
}

// runStatement dispatches stmt by its detected kind and prints the outcome.
func runStatement(ctx context.Context, d *dataset.Dataset, w io.Writer, format, stmt string) error {
	res, err := d.Run(ctx, stmt)
	if err != nil {
		return err
	}
	switch res.Kind {
	case adapter.KindQuery:
		rows, err := adapter.DecodeAll(res.Rows)
		if err != nil {
			return err
		}
		return renderRows(w, format, columnsOf(res.Rows), rows)
	case adapter.KindInsert:
		_, err = fmt.Fprintf(w, "last insert id: %d\n", res.LastInsertID)
	case adapter.KindUpdate:
		_, err = fmt.Fprintf(w, "rows modified: %d\n", res.RowsModified)
	default:
		_, err = fmt.Fprintln(w, "ok")
	}
	return err
}

func readSQL(cmd *cobra.Command, args []string, input string) (string, error) {
	var raw string
	switch {
	case len(args) > 0:
		raw = args[0]
	case input != "":
		b, err := os.ReadFile(input)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", input, err)
		}
		raw = string(b)
	default:
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		raw = string(b)
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("no SQL given")
	}
	return raw, nil
}
