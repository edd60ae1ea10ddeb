package adapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/tomyedwab/sqlbridge/bridge/types"
)

// Bridge is the synchronous call surface of an embedded engine: one JSON
// request in, one JSON response out.
type Bridge interface {
	HandleRequest(payload []byte) ([]byte, error)
}

// BridgeFunc adapts a plain function to Bridge.
type BridgeFunc func(payload []byte) ([]byte, error)

func (f BridgeFunc) HandleRequest(payload []byte) ([]byte, error) {
	return f(payload)
}

// ErrUnknownStatement is the cause when a prepared statement name is not cached.
var ErrUnknownStatement = errors.New("sqlbridge: prepared statement not found")

type preparedEntry struct {
	stmtID string
	sql    string
}

// Conn is the only owner of one bridge handle and of the prepared
// statements compiled on it. Every call holds the connection lock for its
// whole bridge round trip, so statements run in submission order.
type Conn struct {
	bridge   Bridge
	opts     Options
	encoder  Encoder
	prepared map[string]preparedEntry
	closed   bool
	logger   *slog.Logger
	mu       sync.Mutex
}

// Connect wraps bridge in a connection and applies the per-connection
// pragmas from opts. Failures are ErrKindConnection errors.
func Connect(bridge Bridge, opts Options) (*Conn, error) {
	if bridge == nil {
		return nil, newError(ErrKindConnection, "no bridge to connect to", nil)
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Conn{
		bridge:   bridge,
		opts:     opts,
		encoder:  Encoder{IntegerBooleans: opts.IntegerBooleans},
		prepared: make(map[string]preparedEntry),
		logger:   logger.With("component", "adapter.Conn"),
	}

	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", opts.Timeout),
		fmt.Sprintf("PRAGMA foreign_keys = %d", boolInt(opts.ForeignKeys)),
	}
	if opts.ReadOnly {
		pragmas = append(pragmas, "PRAGMA query_only = 1")
	}
	for _, p := range pragmas {
		if _, err := c.execLocked(p, nil, nil); err != nil {
			_, _ = c.call(types.Request{Command: types.CommandClose})
			return nil, &Error{Kind: ErrKindConnection, Message: "connection setup failed: " + p, Cause: err}
		}
	}
	return c, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Options returns the options the connection was created with.
func (c *Conn) Options() Options {
	return c.opts
}

// Encoder returns the literal encoder configured for this connection.
func (c *Conn) Encoder() Encoder {
	return c.encoder
}

func (c *Conn) checkOpen() error {
	if c.closed {
		return &Error{Kind: ErrKindConnection, Message: "connection is closed", Cause: ErrClosed}
	}
	return nil
}

// call performs one bridge round trip and checks the response discriminant.
func (c *Conn) call(req types.Request) (*types.Response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, newError(ErrKindArgument, "failed to encode request", err)
	}
	out, err := c.bridge.HandleRequest(payload)
	if err != nil {
		return nil, newError(ErrKindConnection, "bridge call failed", err)
	}
	var resp types.Response
	if err := types.Unmarshal(out, &resp); err != nil {
		return nil, newError(ErrKindConnection, "malformed bridge response", err)
	}
	switch resp.Type {
	case types.TypeResult:
		return &resp, nil
	case types.TypeException:
		return nil, Classify(resp.Message, resp.Stack)
	default:
		return nil, newError(ErrKindConnection, fmt.Sprintf("unexpected bridge response type %q", resp.Type), nil)
	}
}

func (c *Conn) encodeArgs(args []any, named map[string]any) ([]any, map[string]any, error) {
	enc, err := types.EncodeValues(c.encoder.Arguments(args))
	if err != nil {
		return nil, nil, newError(ErrKindArgument, err.Error(), nil)
	}
	if len(named) == 0 {
		return enc, nil, nil
	}
	encNamed := make(map[string]any, len(named))
	for k, v := range named {
		ev, err := types.EncodeValue(c.encoder.Argument(v))
		if err != nil {
			return nil, nil, newError(ErrKindArgument, err.Error(), nil)
		}
		encNamed[k] = ev
	}
	return enc, encNamed, nil
}

func toExecutionResult(resp *types.Response) (*ExecutionResult, error) {
	res := &ExecutionResult{RowsModified: resp.RowsModified}
	if len(resp.Results) == 0 {
		return res, nil
	}
	// Multi-statement SQL reports the last statement's rows.
	set := resp.Results[len(resp.Results)-1]
	res.Columns = set.Columns
	res.EngineTypes = set.DeclTypes
	res.Rows = make([][]any, len(set.Values))
	for i, raw := range set.Values {
		row := make([]any, len(raw))
		for j, v := range raw {
			dec, err := types.DecodeValue(v)
			if err != nil {
				return nil, newError(ErrKindConnection, "malformed bridge value", err)
			}
			row[j] = dec
		}
		res.Rows[i] = row
	}
	return res, nil
}

// ExecuteRaw runs sql once and returns the undecoded result.
func (c *Conn) ExecuteRaw(sql string, args ...any) (*ExecutionResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	return c.execLocked(sql, args, nil)
}

func (c *Conn) execLocked(sql string, args []any, named map[string]any) (*ExecutionResult, error) {
	enc, encNamed, err := c.encodeArgs(args, named)
	if err != nil {
		return nil, err
	}
	resp, err := c.call(types.Request{Command: types.CommandExec, SQL: sql, Args: enc, Named: encNamed})
	if err != nil {
		return nil, err
	}
	return toExecutionResult(resp)
}

// RowsModified reports the rows changed by the most recent write statement.
func (c *Conn) RowsModified() (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return 0, err
	}
	return c.rowsModifiedLocked()
}

func (c *Conn) rowsModifiedLocked() (int64, error) {
	resp, err := c.call(types.Request{Command: types.CommandGetRowsModified})
	if err != nil {
		return 0, err
	}
	return resp.RowsModified, nil
}

// Prepare compiles sql under name. Preparing the same name with the same
// SQL again is a no-op; different SQL releases the old statement first.
func (c *Conn) Prepare(name, sql string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return err
	}
	_, err := c.prepareLocked(name, sql)
	return err
}

func (c *Conn) prepareLocked(name, sql string) (string, error) {
	if entry, ok := c.prepared[name]; ok {
		if entry.sql == sql {
			return entry.stmtID, nil
		}
		if err := c.freeLocked(name); err != nil {
			return "", err
		}
	}
	resp, err := c.call(types.Request{Command: types.CommandPrepare, SQL: sql})
	if err != nil {
		return "", err
	}
	c.prepared[name] = preparedEntry{stmtID: resp.StmtID, sql: sql}
	c.logger.Debug("prepared statement", "name", name)
	return resp.StmtID, nil
}

// ExecutePrepared runs the statement cached under name.
func (c *Conn) ExecutePrepared(name string, args ...any) (*ExecutionResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	entry, ok := c.prepared[name]
	if !ok {
		return nil, &Error{Kind: ErrKindArgument, Message: fmt.Sprintf("prepared statement %q is not cached", name), Cause: ErrUnknownStatement}
	}
	return c.execPreparedLocked(entry.stmtID, args, nil)
}

func (c *Conn) execPreparedLocked(stmtID string, args []any, named map[string]any) (*ExecutionResult, error) {
	enc, encNamed, err := c.encodeArgs(args, named)
	if err != nil {
		return nil, err
	}
	resp, err := c.call(types.Request{Command: types.CommandExecPrepared, StmtID: stmtID, Args: enc, Named: encNamed})
	if err != nil {
		return nil, err
	}
	return toExecutionResult(resp)
}

// Free releases the statement cached under name, if any.
func (c *Conn) Free(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return err
	}
	return c.freeLocked(name)
}

func (c *Conn) freeLocked(name string) error {
	entry, ok := c.prepared[name]
	if !ok {
		return nil
	}
	delete(c.prepared, name)
	_, err := c.call(types.Request{Command: types.CommandFree, StmtID: entry.stmtID})
	return err
}

// InvalidateAllPrepared releases every cached statement. The cache is
// empty afterwards even if some releases fail.
func (c *Conn) InvalidateAllPrepared() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return err
	}
	return c.invalidateLocked()
}

func (c *Conn) invalidateLocked() error {
	var errs []error
	for name := range c.prepared {
		if err := c.freeLocked(name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PreparedStatements returns the cached statement names with their SQL.
func (c *Conn) PreparedStatements() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]string, len(c.prepared))
	for name, entry := range c.prepared {
		out[name] = entry.sql
	}
	return out
}

// PreparedNames returns the cached statement names in sorted order.
func (c *Conn) PreparedNames() []string {
	stmts := c.PreparedStatements()
	names := make([]string, 0, len(stmts))
	for name := range stmts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Closed reports whether Disconnect has been called.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Disconnect releases every cached statement and then the engine handle.
// The connection is unusable afterwards even when an error is returned.
func (c *Conn) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return err
	}
	c.closed = true

	errs := []error{c.invalidateLocked()}
	if _, err := c.call(types.Request{Command: types.CommandClose}); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		c.logger.Warn("disconnect finished with errors", "error", err)
		return err
	}
	c.logger.Debug("disconnected")
	return nil
}
