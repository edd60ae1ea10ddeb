package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewVersionCommand creates the version command. It reports the engine
// version of the configured database alongside the tool's own.
func NewVersionCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "sqlbridge v%s\n", version)

			d, err := EnvFrom(cmd.Context()).OpenDataset(cmd.Context())
			if err != nil {
				return err
			}
			defer d.Close()
			rows, err := d.Execute(cmd.Context(), "SELECT sqlite_version()")
			if err != nil {
				return err
			}
			if len(rows) > 0 {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "SQLite %v\n", rows[0].Values[0])
			}
			return nil
		},
	}
}
