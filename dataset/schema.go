package dataset

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/tomyedwab/sqlbridge/adapter"
)

// Column describes one column of a table, as reported by table_info.
type Column struct {
	Name       string
	Type       string
	NotNull    bool
	Default    any
	PrimaryKey bool
}

// Tables lists the user tables, sorted by name.
func (s session) Tables(ctx context.Context) ([]string, error) {
	rows, err := s.Execute(ctx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name")
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(rows))
	for _, r := range rows {
		names = append(names, fmt.Sprint(r.Values[0]))
	}
	return names, nil
}

// Schema returns the columns of table in declaration order. An unknown
// table yields no columns.
func (s session) Schema(ctx context.Context, table string) ([]Column, error) {
	rows, err := s.Execute(ctx, "PRAGMA table_info("+adapter.QuoteString(table)+")")
	if err != nil {
		return nil, err
	}
	cols := make([]Column, 0, len(rows))
	for _, r := range rows {
		m := r.Map()
		col := Column{Default: m["dflt_value"]}
		col.Name, _ = m["name"].(string)
		col.Type, _ = m["type"].(string)
		col.NotNull = truthy(m["notnull"])
		col.PrimaryKey = truthy(m["pk"])
		cols = append(cols, col)
	}
	return cols, nil
}

// SQLiteVersion returns the engine version as an integer: 3.45.1 is 34501.
func (s session) SQLiteVersion(ctx context.Context) (int, error) {
	rows, err := s.Execute(ctx, "SELECT sqlite_version()")
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, fmt.Errorf("sqlbridge: sqlite_version() returned no rows")
	}
	return ParseVersion(fmt.Sprint(rows[0].Values[0]))
}

// ParseVersion turns "major.minor.patch" into major*10000 + minor*100 + patch.
func ParseVersion(v string) (int, error) {
	parts := strings.Split(v, ".")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("sqlbridge: malformed version %q", v)
	}
	n := 0
	for i, mult := range []int{10000, 100, 1} {
		if i >= len(parts) {
			break
		}
		p, err := strconv.Atoi(parts[i])
		if err != nil {
			return 0, fmt.Errorf("sqlbridge: malformed version %q: %w", v, err)
		}
		n += p * mult
	}
	return n, nil
}

func truthy(v any) bool {
	switch x := v.(type) {
	case int64:
		return x != 0
	case bool:
		return x
	}
	return false
}
