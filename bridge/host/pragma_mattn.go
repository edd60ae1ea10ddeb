//go:build mattn

package host

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"
)

const (
	plainDriverName  = "sqlite3"
	regexpDriverName = "sqlite3_regexp"
)

func init() {
	sql.Register(regexpDriverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("regexp", mattnRegexp, true)
		},
	})
}

// mattnRegexp adapts regexpMatch to go-sqlite3 callbacks, which pass SQL
// NULL as a nil []byte.
func mattnRegexp(pattern, text any) (any, error) {
	return regexpMatch(sqlNull(pattern), sqlNull(text))
}

func sqlNull(v any) any {
	if b, ok := v.([]byte); ok && b == nil {
		return nil
	}
	return v
}

// buildDSN constructs a DSN for github.com/mattn/go-sqlite3.
// mattn uses the syntax: file:path?_foreign_keys=1&_busy_timeout=5000
func buildDSN(cfg Config) string {
	var sb strings.Builder

	if IsMemory(cfg.Path) {
		sb.WriteString("file::memory:")
	} else {
		sb.WriteString("file:")
		sb.WriteString(strings.TrimPrefix(cfg.Path, "file:"))
	}

	params := []string{fmt.Sprintf("_busy_timeout=%d", cfg.BusyTimeout.Milliseconds())}
	if cfg.ForeignKeys {
		params = append(params, "_foreign_keys=1")
	}
	if cfg.ReadOnly {
		if !IsMemory(cfg.Path) {
			params = append(params, "mode=ro")
		}
		params = append(params, "_query_only=1")
	}

	sb.WriteString("?")
	sb.WriteString(strings.Join(params, "&"))
	return sb.String()
}

// openDB picks the driver registration that installs regexp() per
// connection when it is wanted.
func openDB(cfg Config) (*sql.DB, error) {
	name := plainDriverName
	if cfg.Regexp {
		name = regexpDriverName
	}
	return sql.Open(name, buildDSN(cfg))
}
