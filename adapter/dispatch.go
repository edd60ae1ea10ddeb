package adapter

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
)

// Kind selects how the dispatcher runs a statement and what it returns.
type Kind int

const (
	KindQuery  Kind = iota // rows, with declared types when the source table is known
	KindInsert             // last inserted row id
	KindUpdate             // rows modified; DELETE is an update too
	KindDDL                // nothing; clears the prepared cache first
)

func (k Kind) String() string {
	switch k {
	case KindQuery:
		return "query"
	case KindInsert:
		return "insert"
	case KindUpdate:
		return "update"
	case KindDDL:
		return "ddl"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// DetectKind guesses the kind of sql from its leading keyword.
func DetectKind(sql string) Kind {
	switch strings.ToUpper(leadingKeyword(sql)) {
	case "SELECT", "WITH", "PRAGMA", "VALUES", "EXPLAIN":
		return KindQuery
	case "INSERT", "REPLACE":
		return KindInsert
	case "CREATE", "DROP", "ALTER":
		return KindDDL
	default:
		return KindUpdate
	}
}

func leadingKeyword(sql string) string {
	s := sql
	for {
		s = strings.TrimLeftFunc(s, func(r rune) bool { return unicode.IsSpace(r) || r == '(' })
		switch {
		case strings.HasPrefix(s, "--"):
			if i := strings.IndexByte(s, '\n'); i >= 0 {
				s = s[i+1:]
				continue
			}
			return ""
		case strings.HasPrefix(s, "/*"):
			if i := strings.Index(s, "*/"); i >= 0 {
				s = s[i+2:]
				continue
			}
			return ""
		}
		end := strings.IndexFunc(s, func(r rune) bool { return !unicode.IsLetter(r) })
		if end < 0 {
			return s
		}
		return s[:end]
	}
}

// Statement is SQL text, or a prepared statement name whose SQL is
// compiled on first use.
type Statement struct {
	SQL   string
	Name  string
	Args  []any
	Named map[string]any
}

func (st Statement) String() string {
	if st.Name != "" {
		return st.Name
	}
	return st.SQL
}

// Result is what Dispatch returns; which fields are set depends on Kind.
type Result struct {
	Kind         Kind
	Rows         *ExecutionResult
	LastInsertID int64
	RowsModified int64
}

// Dispatch runs st as kind, holding the connection for every bridge call
// the kind needs. Engine failures come back classified.
func (c *Conn) Dispatch(kind Kind, st Statement) (*Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return nil, err
	}

	start := time.Now()
	res, err := c.dispatchLocked(kind, st)
	c.logger.Debug("dispatched statement",
		"kind", kind.String(),
		"sql", st.String(),
		"duration", time.Since(start),
		"error", err)
	return res, err
}

func (c *Conn) dispatchLocked(kind Kind, st Statement) (*Result, error) {
	switch kind {
	case KindQuery:
		rows, err := c.runLocked(st)
		if err != nil {
			return nil, err
		}
		sql, _ := c.sourceSQL(st)
		types, err := c.declaredTypesLocked(sql, rows.Columns)
		if err != nil {
			// Type metadata is best effort; rows pass through undecorated.
			c.logger.Debug("column type lookup failed", "error", err)
		}
		rows.Types = types
		return &Result{Kind: kind, Rows: rows}, nil

	case KindInsert:
		if _, err := c.runLocked(st); err != nil {
			return nil, err
		}
		idRes, err := c.execLocked("SELECT last_insert_rowid()", nil, nil)
		if err != nil {
			return nil, err
		}
		id, err := scalarInt(idRes)
		if err != nil {
			return nil, err
		}
		return &Result{Kind: kind, LastInsertID: id}, nil

	case KindUpdate:
		if _, err := c.runLocked(st); err != nil {
			return nil, err
		}
		n, err := c.rowsModifiedLocked()
		if err != nil {
			return nil, err
		}
		return &Result{Kind: kind, RowsModified: n}, nil

	case KindDDL:
		// Schema changes run uncompiled; compiled statements lock the
		// tables they reference.
		sql, sqlErr := c.sourceSQL(st)
		if err := c.invalidateLocked(); err != nil {
			c.logger.Warn("releasing prepared statements before DDL", "error", err)
		}
		if sqlErr != nil {
			return nil, sqlErr
		}
		if _, err := c.execLocked(sql, st.Args, st.Named); err != nil {
			return nil, err
		}
		return &Result{Kind: kind}, nil
	}
	return nil, newError(ErrKindArgument, fmt.Sprintf("unknown statement kind %v", kind), nil)
}

func (c *Conn) sourceSQL(st Statement) (string, error) {
	if st.Name == "" || st.SQL != "" {
		return st.SQL, nil
	}
	entry, ok := c.prepared[st.Name]
	if !ok {
		return "", &Error{Kind: ErrKindArgument, Message: fmt.Sprintf("prepared statement %q is not cached", st.Name), Cause: ErrUnknownStatement}
	}
	return entry.sql, nil
}

func (c *Conn) runLocked(st Statement) (*ExecutionResult, error) {
	if st.Name == "" {
		return c.execLocked(st.SQL, st.Args, st.Named)
	}
	sql, err := c.sourceSQL(st)
	if err != nil {
		return nil, err
	}
	stmtID, err := c.prepareLocked(st.Name, sql)
	if err != nil {
		return nil, err
	}
	return c.execPreparedLocked(stmtID, st.Args, st.Named)
}

func scalarInt(res *ExecutionResult) (int64, error) {
	if len(res.Rows) == 0 || len(res.Rows[0]) == 0 {
		return 0, errors.New("sqlbridge: scalar query returned no rows")
	}
	switch v := res.Rows[0][0].(type) {
	case int64:
		return v, nil
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("sqlbridge: scalar query returned %T", v)
	}
}

// declaredTypesLocked finds the one catalog table whose backtick-quoted
// name appears in sql and returns the declared type of each column. It
// returns nil when no single table matches.
func (c *Conn) declaredTypesLocked(sql string, columns []string) ([]string, error) {
	if len(columns) == 0 || !strings.Contains(sql, "`") {
		return nil, nil
	}
	tables, err := c.execLocked("SELECT name FROM sqlite_master WHERE type = 'table'", nil, nil)
	if err != nil {
		return nil, err
	}
	var table string
	for _, row := range tables.Rows {
		name, _ := row[0].(string)
		if name == "" || !strings.Contains(sql, "`"+name+"`") {
			continue
		}
		if table != "" {
			return nil, nil
		}
		table = name
	}
	if table == "" {
		return nil, nil
	}

	info, err := c.execLocked("PRAGMA table_info("+QuoteString(table)+")", nil, nil)
	if err != nil {
		return nil, err
	}
	nameIdx, typeIdx := indexOf(info.Columns, "name"), indexOf(info.Columns, "type")
	if nameIdx < 0 || typeIdx < 0 {
		return nil, nil
	}
	declared := make(map[string]string, len(info.Rows))
	for _, row := range info.Rows {
		name, _ := row[nameIdx].(string)
		typ, _ := row[typeIdx].(string)
		declared[name] = typ
	}

	types := make([]string, len(columns))
	found := false
	for i, col := range columns {
		if t, ok := declared[col]; ok {
			types[i] = t
			found = true
		}
	}
	if !found {
		return nil, nil
	}
	return types, nil
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}
