package host

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/tomyedwab/sqlbridge/bridge/types"
)

// ErrClosed is reported (as an exception payload) for requests made after close.
var ErrClosed = errors.New("database connection is closed")

// Config holds the options for an engine opened by Open.
type Config struct {
	// Path to the database file. Empty, ":memory:" or a "file::memory:" URI
	// open a private in-memory database.
	Path string

	// ReadOnly opens file databases read-only and sets query_only.
	ReadOnly bool

	// BusyTimeout bounds how long a statement waits on a lock. Default: 5s.
	BusyTimeout time.Duration

	// ForeignKeys enables foreign key enforcement.
	ForeignKeys bool

	// Regexp installs a regexp(pattern, text) function so REGEXP works.
	Regexp bool

	// Logger for operational logging. Uses slog.Default() if nil.
	Logger *slog.Logger
}

func (cfg Config) defaults() Config {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	return cfg
}

// IsMemory reports whether path names an in-memory database.
func IsMemory(path string) bool {
	return path == "" || path == ":memory:" || strings.HasPrefix(path, "file::memory:")
}

type preparedStmt struct {
	stmt *sql.Stmt
	sql  string
}

// SQLHost serves bridge requests against a single SQLite connection.
// Session state such as changes() and last_insert_rowid() lives on that
// connection, so every request runs on the same pinned *sql.Conn.
type SQLHost struct {
	db     *sql.DB
	ownsDB bool
	conn   *sql.Conn
	stmts  map[string]*preparedStmt
	closed bool
	logger *slog.Logger
	mu     sync.Mutex
}

// NewSQLHost creates a new SQLHost instance.
// The provided db must be an active connection to an SQLite database; it is
// managed by the caller and is not closed by the close command.
func NewSQLHost(db *sql.DB) *SQLHost {
	return &SQLHost{
		db:     db,
		stmts:  make(map[string]*preparedStmt),
		logger: slog.Default().With("component", "SQLHost"),
	}
}

// Open opens a dedicated engine for cfg. The returned host owns the
// database and closes it on the close command.
func Open(cfg Config) (*SQLHost, error) {
	cfg = cfg.defaults()

	db, err := openDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", displayPath(cfg.Path), err)
	}
	db.SetMaxOpenConns(1)

	h := NewSQLHost(db)
	h.ownsDB = true
	h.logger = cfg.Logger.With("component", "SQLHost", "path", displayPath(cfg.Path))

	if _, err := h.pinned(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open %s: %w", displayPath(cfg.Path), err)
	}
	h.logger.Debug("engine opened", "readonly", cfg.ReadOnly, "regexp", cfg.Regexp)
	return h, nil
}

func displayPath(path string) string {
	if IsMemory(path) {
		return ":memory:"
	}
	return path
}

// HandleRequest processes a raw request payload and returns a raw response
// payload. Engine failures are reported inside the payload; the returned
// error is only set when no payload could be produced at all.
func (h *SQLHost) HandleRequest(requestPayload []byte) ([]byte, error) {
	var req types.Request
	if err := types.Unmarshal(requestPayload, &req); err != nil {
		return marshalException(fmt.Sprintf("failed to unmarshal request: %v", err), "")
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return marshalException(ErrClosed.Error(), req.Command)
	}

	ctx := context.Background()
	var resp types.Response
	var opErr error

	switch req.Command {
	case types.CommandExec:
		resp, opErr = h.handleExec(ctx, &req)
	case types.CommandGetRowsModified:
		resp, opErr = h.handleGetRowsModified(ctx)
	case types.CommandPrepare:
		resp, opErr = h.handlePrepare(ctx, &req)
	case types.CommandExecPrepared:
		resp, opErr = h.handleExecPrepared(ctx, &req)
	case types.CommandFree:
		resp, opErr = h.handleFree(&req)
	case types.CommandClose:
		resp, opErr = h.handleClose()
	default:
		opErr = fmt.Errorf("unknown command: %s", req.Command)
	}

	if opErr != nil {
		return marshalException(opErr.Error(), h.stackFor(&req))
	}

	resp.Type = types.TypeResult
	payload, err := json.Marshal(resp)
	if err != nil {
		return marshalException(fmt.Sprintf("failed to marshal response: %v", err), h.stackFor(&req))
	}
	return payload, nil
}

func marshalException(msg, stack string) ([]byte, error) {
	resp := types.Response{Type: types.TypeException, Message: msg, Stack: stack}
	payload, err := json.Marshal(resp)
	if err != nil {
		// Can't even marshal the error response; hand back a fixed payload.
		return []byte(`{"type":"exception","message":"critical: failed to marshal error response"}`),
			fmt.Errorf("failed to marshal error response for '%s': %w", msg, err)
	}
	return payload, nil
}

func (h *SQLHost) stackFor(req *types.Request) string {
	switch {
	case req.SQL != "":
		return fmt.Sprintf("at %s (%s)", req.Command, req.SQL)
	case req.StmtID != "":
		if ps, ok := h.stmts[req.StmtID]; ok {
			return fmt.Sprintf("at %s (%s)", req.Command, ps.sql)
		}
		return fmt.Sprintf("at %s (statement %s)", req.Command, req.StmtID)
	default:
		return "at " + req.Command
	}
}

// pinned returns the connection every request runs on, acquiring it on first use.
func (h *SQLHost) pinned(ctx context.Context) (*sql.Conn, error) {
	if h.conn != nil {
		return h.conn, nil
	}
	conn, err := h.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	h.conn = conn
	return conn, nil
}

func bindArgs(req *types.Request) ([]any, error) {
	args := make([]any, 0, len(req.Args)+len(req.Named))
	for _, raw := range req.Args {
		v, err := types.DecodeValue(raw)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}
	for name, raw := range req.Named {
		v, err := types.DecodeValue(raw)
		if err != nil {
			return nil, err
		}
		args = append(args, sql.Named(strings.TrimLeft(name, ":@$"), v))
	}
	return args, nil
}

func (h *SQLHost) handleExec(ctx context.Context, req *types.Request) (types.Response, error) {
	conn, err := h.pinned(ctx)
	if err != nil {
		return types.Response{}, err
	}
	args, err := bindArgs(req)
	if err != nil {
		return types.Response{}, err
	}
	rows, err := conn.QueryContext(ctx, req.SQL, args...)
	if err != nil {
		return types.Response{}, err
	}
	set, err := h.storageRows(ctx, conn, req.SQL, args, rows)
	if err != nil {
		return types.Response{}, err
	}
	return types.Response{Results: []types.ResultSet{set}}, nil
}

func (h *SQLHost) handleGetRowsModified(ctx context.Context) (types.Response, error) {
	conn, err := h.pinned(ctx)
	if err != nil {
		return types.Response{}, err
	}
	var n int64
	if err := conn.QueryRowContext(ctx, "SELECT changes()").Scan(&n); err != nil {
		return types.Response{}, err
	}
	return types.Response{RowsModified: n}, nil
}

func (h *SQLHost) handlePrepare(ctx context.Context, req *types.Request) (types.Response, error) {
	conn, err := h.pinned(ctx)
	if err != nil {
		return types.Response{}, err
	}
	stmt, err := conn.PrepareContext(ctx, req.SQL)
	if err != nil {
		return types.Response{}, err
	}

	stmtID := uuid.NewString()
	h.stmts[stmtID] = &preparedStmt{stmt: stmt, sql: req.SQL}
	return types.Response{StmtID: stmtID}, nil
}

func (h *SQLHost) handleExecPrepared(ctx context.Context, req *types.Request) (types.Response, error) {
	ps, ok := h.stmts[req.StmtID]
	if !ok {
		return types.Response{}, fmt.Errorf("statement not found: %s", req.StmtID)
	}
	args, err := bindArgs(req)
	if err != nil {
		return types.Response{}, err
	}
	conn, err := h.pinned(ctx)
	if err != nil {
		return types.Response{}, err
	}
	rows, err := ps.stmt.QueryContext(ctx, args...)
	if err != nil {
		return types.Response{}, err
	}
	set, err := h.storageRows(ctx, conn, ps.sql, args, rows)
	if err != nil {
		return types.Response{}, err
	}
	return types.Response{Results: []types.ResultSet{set}}, nil
}

func (h *SQLHost) handleFree(req *types.Request) (types.Response, error) {
	ps, ok := h.stmts[req.StmtID]
	if !ok {
		// Freeing an unknown statement is a no-op, like closing twice.
		return types.Response{}, nil
	}
	delete(h.stmts, req.StmtID)
	if err := ps.stmt.Close(); err != nil {
		return types.Response{}, err
	}
	return types.Response{}, nil
}

func (h *SQLHost) handleClose() (types.Response, error) {
	var errs []error
	for id, ps := range h.stmts {
		if err := ps.stmt.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(h.stmts, id)
	}
	if h.conn != nil {
		if err := h.conn.Close(); err != nil {
			errs = append(errs, err)
		}
		h.conn = nil
	}
	if h.ownsDB {
		if err := h.db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	h.closed = true
	h.logger.Debug("engine closed")
	return types.Response{}, errors.Join(errs...)
}

// convertedDeclTypes are the declared types whose cells the Go drivers
// rewrite on the way out: integers and text become time.Time, integers in
// BOOLEAN columns become bool.
var convertedDeclTypes = map[string]bool{
	"DATE":      true,
	"TIME":      true,
	"DATETIME":  true,
	"TIMESTAMP": true,
	"BOOLEAN":   true,
}

// storageRows collects rows, which query produced, as the engine stores
// them. When a column's declared type would make the driver rewrite its
// cells, a read-only query is run again through a wrapper that strips
// the declared types; statements that can't be wrapped are collected as is.
func (h *SQLHost) storageRows(ctx context.Context, conn *sql.Conn, query string, args []any, rows *sql.Rows) (types.ResultSet, error) {
	colTypes, err := rows.ColumnTypes()
	if err != nil {
		_ = rows.Close()
		return types.ResultSet{}, err
	}
	declTypes := make([]string, len(colTypes))
	names := make([]string, len(colTypes))
	converted := false
	for i, ct := range colTypes {
		declTypes[i] = ct.DatabaseTypeName()
		names[i] = ct.Name()
		if convertedDeclTypes[strings.ToUpper(declTypes[i])] {
			converted = true
		}
	}

	if converted {
		// A CTE body only accepts a single SELECT, so this prepare fails
		// for anything that writes and the original rows are kept.
		wrapped, err := conn.PrepareContext(ctx, storageQuery(query, names))
		if err == nil {
			defer wrapped.Close()
			_ = rows.Close()
			if rows, err = wrapped.QueryContext(ctx, args...); err != nil {
				return types.ResultSet{}, err
			}
		} else {
			h.logger.Debug("keeping driver-converted values", "error", err)
		}
	}

	set, err := collectRows(rows)
	if err != nil {
		return types.ResultSet{}, err
	}
	set.Columns = names
	set.DeclTypes = declTypes
	return set, nil
}

// storageQuery wraps query so that every column becomes an expression.
// Unary plus keeps the value and drops the declared type.
func storageQuery(query string, names []string) string {
	var cols, out strings.Builder
	for i, name := range names {
		if i > 0 {
			cols.WriteString(", ")
			out.WriteString(", ")
		}
		fmt.Fprintf(&cols, "c%d", i)
		fmt.Fprintf(&out, `+c%d AS "%s"`, i, strings.ReplaceAll(name, `"`, `""`))
	}
	body := strings.TrimRightFunc(query, func(r rune) bool { return r == ';' || unicode.IsSpace(r) })
	return fmt.Sprintf("WITH sqlbridge_rows(%s) AS (\n%s\n) SELECT %s FROM sqlbridge_rows", cols.String(), body, out.String())
}

func collectRows(rows *sql.Rows) (types.ResultSet, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return types.ResultSet{}, err
	}

	set := types.ResultSet{Columns: columns, Values: [][]any{}}
	scanArgs := make([]any, len(columns))
	scanPtrs := make([]any, len(columns))
	for i := range scanArgs {
		scanPtrs[i] = &scanArgs[i]
	}

	for rows.Next() {
		if err := rows.Scan(scanPtrs...); err != nil {
			return types.ResultSet{}, err
		}
		row, err := processRowValues(scanArgs)
		if err != nil {
			return types.ResultSet{}, err
		}
		set.Values = append(set.Values, row)
	}
	if err := rows.Err(); err != nil {
		return types.ResultSet{}, err
	}
	return set, nil
}

// processRowValues renders cells the way the engine stores them: booleans
// the drivers surface for BOOLEAN columns go back to integers.
func processRowValues(rawRow []any) ([]any, error) {
	processed := make([]any, len(rawRow))
	for i, val := range rawRow {
		if b, ok := val.(bool); ok {
			if b {
				val = int64(1)
			} else {
				val = int64(0)
			}
		}
		enc, err := types.EncodeValue(val)
		if err != nil {
			return nil, err
		}
		processed[i] = enc
	}
	return processed, nil
}
