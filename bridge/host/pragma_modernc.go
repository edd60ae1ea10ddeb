//go:build !mattn && !ncruces

package host

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"
	"sync"

	"modernc.org/sqlite"
)

// buildDSN constructs a DSN for modernc.org/sqlite.
// modernc uses the syntax: file:path?_pragma=name(value)&_pragma=name2(value2)
func buildDSN(cfg Config) string {
	var sb strings.Builder

	if IsMemory(cfg.Path) {
		sb.WriteString("file::memory:")
	} else {
		sb.WriteString("file:")
		sb.WriteString(strings.TrimPrefix(cfg.Path, "file:"))
	}

	params := []string{fmt.Sprintf("_pragma=busy_timeout(%d)", cfg.BusyTimeout.Milliseconds())}
	if cfg.ForeignKeys {
		params = append(params, "_pragma=foreign_keys(1)")
	}
	if cfg.ReadOnly {
		if !IsMemory(cfg.Path) {
			params = append(params, "mode=ro")
		}
		params = append(params, "_pragma=query_only(1)")
	}

	sb.WriteString("?")
	sb.WriteString(strings.Join(params, "&"))
	return sb.String()
}

func openDB(cfg Config) (*sql.DB, error) {
	if cfg.Regexp {
		if err := registerRegexp(); err != nil {
			return nil, fmt.Errorf("register regexp function: %w", err)
		}
	}
	return sql.Open("sqlite", buildDSN(cfg))
}

var regexpOnce struct {
	sync.Once
	err error
}

// registerRegexp installs regexp() for every connection opened afterwards.
// modernc registers functions process-wide, so this happens once.
func registerRegexp() error {
	regexpOnce.Do(func() {
		regexpOnce.err = sqlite.RegisterDeterministicScalarFunction("regexp", 2,
			func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
				return regexpMatch(args[0], args[1])
			})
	})
	return regexpOnce.err
}
