//go:build ncruces && !mattn

package host

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/ncruces/go-sqlite3"
	"github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// wasmMemoryPages caps the SQLite guest's linear memory (64KiB pages).
const wasmMemoryPages = 4096

func init() {
	sqlite3.RuntimeConfig = wazero.NewRuntimeConfig().
		WithMemoryLimitPages(wasmMemoryPages).
		WithCoreFeatures(api.CoreFeaturesV2)
}

// buildDSN constructs a DSN for github.com/ncruces/go-sqlite3.
// ncruces uses the syntax: file:path?_pragma=name(value)&_timefmt=sqlite
// The sqlite time format keeps text that looks like RFC 3339 as text.
func buildDSN(cfg Config) string {
	var sb strings.Builder

	if IsMemory(cfg.Path) {
		sb.WriteString("file::memory:")
	} else {
		sb.WriteString("file:")
		sb.WriteString(strings.TrimPrefix(cfg.Path, "file:"))
	}

	params := []string{
		fmt.Sprintf("_pragma=busy_timeout(%d)", cfg.BusyTimeout.Milliseconds()),
		"_timefmt=sqlite",
	}
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

// openDB runs SQLite compiled to wasm on wazero. regexp() is installed on
// each connection as it opens.
func openDB(cfg Config) (*sql.DB, error) {
	if !cfg.Regexp {
		return driver.Open(buildDSN(cfg))
	}
	return driver.Open(buildDSN(cfg), func(conn *sqlite3.Conn) error {
		return conn.CreateFunction("regexp", 2, sqlite3.DETERMINISTIC|sqlite3.INNOCUOUS, wasmRegexp)
	})
}

func wasmRegexp(ctx sqlite3.Context, arg ...sqlite3.Value) {
	res, err := regexpMatch(wasmValue(arg[0]), wasmValue(arg[1]))
	if err != nil {
		ctx.ResultError(err)
		return
	}
	if n, ok := res.(int64); ok {
		ctx.ResultInt64(n)
		return
	}
	ctx.ResultNull()
}

func wasmValue(v sqlite3.Value) any {
	if v.Type() == sqlite3.NULL {
		return nil
	}
	return v.Text()
}
