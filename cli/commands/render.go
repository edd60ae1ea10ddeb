package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/tomyedwab/sqlbridge/adapter"
	"github.com/tomyedwab/sqlbridge/cli/config"
)

// renderRows writes rows to w in the given format.
func renderRows(w io.Writer, format string, columns []string, rows []adapter.Row) error {
	switch format {
	case config.FormatJSON:
		return renderJSON(w, columns, rows)
	case config.FormatCSV:
		_, err := fmt.Fprintln(w, newTable(columns, rows, "").RenderCSV())
		return err
	case config.FormatMarkdown:
		_, err := fmt.Fprintln(w, newTable(columns, rows, "NULL").RenderMarkdown())
		return err
	default:
		if len(columns) == 0 {
			_, err := fmt.Fprintln(w, "(0 rows)")
			return err
		}
		t := newTable(columns, rows, "NULL")
		t.SetStyle(table.StyleLight)
		_, err := fmt.Fprintf(w, "%s\n(%d rows)\n", t.Render(), len(rows))
		return err
	}
}

func newTable(columns []string, rows []adapter.Row, null string) table.Writer {
	t := table.NewWriter()
	header := make(table.Row, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	t.AppendHeader(header)
	for _, r := range rows {
		row := make(table.Row, len(r.Values))
		for i, v := range r.Values {
			if v == nil {
				row[i] = null
				continue
			}
			row[i] = formatValue(v)
		}
		t.AppendRow(row)
	}
	return t
}

func renderJSON(w io.Writer, columns []string, rows []adapter.Row) error {
	out := make([]map[string]any, 0, len(rows))
	for _, r := range rows {
		m := make(map[string]any, len(columns))
		for i, c := range r.Columns {
			m[c] = jsonValue(r.Values[i])
		}
		out = append(out, m)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func jsonValue(v any) any {
	switch v.(type) {
	case nil, bool, int64, float64, string:
		return v
	}
	return formatValue(v)
}

// formatValue renders a decoded column value as display text.
func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return fmt.Sprintf("X'%X'", x)
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 && x.Location() == time.UTC {
			return x.Format(time.DateOnly)
		}
		return x.Format(time.RFC3339Nano)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// columnsOf returns the column names of a decoded result, which may have
// no rows.
func columnsOf(res *adapter.ExecutionResult) []string {
	if res == nil {
		return nil
	}
	return res.Columns
}
