package adapter

import (
	"fmt"
	"iter"
)

// ExecutionResult is the snapshot a single bridge call returns.
type ExecutionResult struct {
	Columns []string
	// Types holds the declared type per column, "" where unknown. It is nil
	// when the statement could not be correlated with a source table.
	Types []string
	// EngineTypes is the engine's own declared type per column, "" for
	// expressions. Decode ignores it.
	EngineTypes  []string
	Rows         [][]any
	RowsModified int64
}

// DeclaredType returns the declared type of column i, or "".
func (r *ExecutionResult) DeclaredType(i int) string {
	if i < 0 || i >= len(r.Types) {
		return ""
	}
	return r.Types[i]
}

// Row is one decoded row: values in column order.
type Row struct {
	Columns []string
	Values  []any
}

// Get returns the value of the named column.
func (r Row) Get(column string) (any, bool) {
	for i, c := range r.Columns {
		if c == column {
			return r.Values[i], true
		}
	}
	return nil, false
}

// Map returns the row as a column → value map. Duplicate column names keep
// the last value.
func (r Row) Map() map[string]any {
	m := make(map[string]any, len(r.Columns))
	for i, c := range r.Columns {
		m[c] = r.Values[i]
	}
	return m
}

// Decode yields every row of res with declared-type conversions applied.
// The raw rows are a snapshot, so decoding again starts from the top.
// Iteration stops at the first conversion failure, which is yielded as the
// error.
func Decode(res *ExecutionResult) iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		if res == nil {
			return
		}
		for n, raw := range res.Rows {
			if len(raw) != len(res.Columns) {
				yield(Row{}, fmt.Errorf("sqlbridge: row %d has %d values for %d columns", n, len(raw), len(res.Columns)))
				return
			}
			values := make([]any, len(raw))
			for i, v := range raw {
				conv, err := Convert(v, res.DeclaredType(i))
				if err != nil {
					yield(Row{}, fmt.Errorf("sqlbridge: column %q: %w", res.Columns[i], err))
					return
				}
				values[i] = conv
			}
			if !yield(Row{Columns: res.Columns, Values: values}, nil) {
				return
			}
		}
	}
}

// DecodeAll collects Decode into a slice.
func DecodeAll(res *ExecutionResult) ([]Row, error) {
	var rows []Row
	for row, err := range Decode(res) {
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}
