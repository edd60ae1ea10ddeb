package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/tomyedwab/sqlbridge/cli/config"
	"github.com/tomyedwab/sqlbridge/dataset"
)

const (
	prompt         = "sqlbridge> "
	continuePrompt = "      ...> "
)

// NewShellCommand creates the interactive shell command.
func NewShellCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Start an interactive SQL shell",
		Long: `Start a read-eval-print loop against the configured database.

Statements end with a semicolon and may span lines. Lines starting with a
dot are shell commands; type .help to list them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			env := EnvFrom(ctx)
			d, err := env.OpenDataset(ctx)
			if err != nil {
				return err
			}
			defer d.Close()

			rl, err := readline.NewEx(&readline.Config{
				Prompt:          prompt,
				HistoryFile:     env.Config.HistoryFile,
				AutoComplete:    newTableCompleter(ctx, d),
				InterruptPrompt: "^C",
				EOFPrompt:       ".quit",
				Stdin:           io.NopCloser(cmd.InOrStdin()),
				Stdout:          cmd.OutOrStdout(),
				Stderr:          cmd.ErrOrStderr(),
			})
			if err != nil {
				return fmt.Errorf("failed to initialize shell: %w", err)
			}
			defer func() { _ = rl.Close() }()

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "sqlbridge shell (database: %s)\n", env.Config.Database)
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Type .help for commands, .quit to exit")

			sh := &shell{d: d, out: cmd.OutOrStdout(), errOut: cmd.ErrOrStderr(), format: env.Config.Format}
			for {
				line, err := rl.Readline()
				if errors.Is(err, readline.ErrInterrupt) {
					sh.reset()
					rl.SetPrompt(prompt)
					continue
				}
				if err != nil {
					return nil
				}
				if sh.feed(ctx, line) {
					return nil
				}
				if sh.pending() {
					rl.SetPrompt(continuePrompt)
				} else {
					rl.SetPrompt(prompt)
				}
			}
		},
	}
}

// shell accumulates input lines into statements and runs them.
type shell struct {
	d      *dataset.Dataset
	out    io.Writer
	errOut io.Writer
	format string
	buf    strings.Builder
}

func (s *shell) reset() {
	s.buf.Reset()
}

func (s *shell) pending() bool {
	return s.buf.Len() > 0
}

// feed consumes one input line and reports whether the shell should exit.
func (s *shell) feed(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if !s.pending() && strings.HasPrefix(line, ".") {
		return s.dotCommand(ctx, line)
	}

	s.buf.WriteString(line)
	if !strings.HasSuffix(line, ";") {
		s.buf.WriteString("\n")
		return false
	}
	stmt := strings.TrimSuffix(s.buf.String(), ";")
	s.buf.Reset()

	if err := runStatement(ctx, s.d, s.out, s.format, stmt); err != nil {
		_, _ = fmt.Fprintf(s.errOut, "Error: %v\n", err)
	}
	return false
}

func (s *shell) dotCommand(ctx context.Context, line string) bool {
	parts := strings.Fields(line)
	var err error
	switch strings.ToLower(parts[0]) {
	case ".quit", ".exit":
		return true
	case ".help":
		_, _ = fmt.Fprint(s.out, shellHelp)
	case ".tables":
		err = printTables(ctx, s.d, s.out)
	case ".schema":
		if len(parts) < 2 {
			_, _ = fmt.Fprintln(s.errOut, "Usage: .schema <table>")
			return false
		}
		err = printSchema(ctx, s.d, s.out, s.format, parts[1])
	case ".format":
		if len(parts) < 2 {
			_, _ = fmt.Fprintf(s.out, "%s\n", s.format)
			return false
		}
		switch f := strings.ToLower(parts[1]); f {
		case config.FormatTable, config.FormatJSON, config.FormatCSV, config.FormatMarkdown:
			s.format = f
		default:
			_, _ = fmt.Fprintf(s.errOut, "Unknown format: %s\n", parts[1])
		}
	default:
		_, _ = fmt.Fprintf(s.errOut, "Unknown command: %s (type .help for commands)\n", parts[0])
	}
	if err != nil {
		_, _ = fmt.Fprintf(s.errOut, "Error: %v\n", err)
	}
	return false
}

const shellHelp = `Commands:
  .help            Show this help message
  .tables          List all tables
  .schema <table>  Show the columns of a table
  .format [name]   Show or set the output format (table, json, csv, markdown)
  .quit / .exit    Exit the shell

Statements end with a semicolon (;) and may span lines.
`

func newTableCompleter(ctx context.Context, d *dataset.Dataset) *readline.PrefixCompleter {
	items := []readline.PrefixCompleterInterface{
		readline.PcItem(".help"),
		readline.PcItem(".tables"),
		readline.PcItem(".format"),
		readline.PcItem(".quit"),
	}
	tables, err := d.Tables(ctx)
	if err != nil {
		return readline.NewPrefixCompleter(items...)
	}
	schema := make([]readline.PrefixCompleterInterface, 0, len(tables))
	for _, t := range tables {
		schema = append(schema, readline.PcItem(t))
	}
	items = append(items, readline.PcItem(".schema", schema...))
	return readline.NewPrefixCompleter(items...)
}
