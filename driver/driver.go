package driver

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/tomyedwab/sqlbridge/adapter"
	"github.com/tomyedwab/sqlbridge/bridge"
)

// DriverName is the name the driver registers with database/sql.
const DriverName = "sqlbridge"

func init() {
	sql.Register(DriverName, &Driver{})
	sqlx.BindDriver(DriverName, sqlx.QUESTION)
}

// DialFunc opens the bridge a new connection talks through.
type DialFunc func(opts adapter.Options) (adapter.Bridge, error)

// --- Driver implementation ---

// Driver is the database/sql driver over the bridge.
type Driver struct{}

// Open parses dsn and returns a new connection.
func (d *Driver) Open(dsn string) (driver.Conn, error) {
	c, err := d.OpenConnector(dsn)
	if err != nil {
		return nil, err
	}
	return c.Connect(context.Background())
}

// OpenConnector parses dsn once for every connection the pool opens.
func (d *Driver) OpenConnector(dsn string) (driver.Connector, error) {
	opts, err := adapter.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	return NewConnector(opts, nil), nil
}

// Connector opens connections with fixed options.
type Connector struct {
	opts adapter.Options
	dial DialFunc
}

// NewConnector returns a connector for opts. A nil dial opens an
// in-process engine with bridge.Dial.
func NewConnector(opts adapter.Options, dial DialFunc) *Connector {
	if dial == nil {
		dial = bridge.Dial
	}
	return &Connector{opts: opts, dial: dial}
}

// Connect dials a bridge and wraps it in a driver connection.
func (c *Connector) Connect(ctx context.Context) (driver.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := c.dial(c.opts)
	if err != nil {
		return nil, err
	}
	ac, err := adapter.Connect(b, c.opts)
	if err != nil {
		return nil, err
	}
	return &Conn{conn: ac}, nil
}

// Driver returns the registered driver.
func (c *Connector) Driver() driver.Driver {
	return &Driver{}
}

// OpenDB returns a pool over opts. In-memory databases are private to the
// connection that created them, so their pool holds exactly one connection
// and never recycles it.
func OpenDB(opts adapter.Options, dial DialFunc) *sql.DB {
	db := sql.OpenDB(NewConnector(opts, dial))
	db.SetMaxOpenConns(opts.PoolSize())
	if opts.InMemory() {
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
		db.SetConnMaxIdleTime(0)
	}
	return db
}

// Connect opens a pool for dsn and pings it.
func Connect(dsn string) (*sqlx.DB, error) {
	opts, err := adapter.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	db := sqlx.NewDb(OpenDB(opts, nil), DriverName)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// --- Connection implementation ---

// Conn implements driver.Conn on top of one adapter connection.
type Conn struct {
	conn *adapter.Conn
	tx   *Tx
}

// Adapter exposes the underlying adapter connection, for use with
// (*sql.Conn).Raw.
func (c *Conn) Adapter() *adapter.Conn {
	return c.conn
}

// Prepare returns a statement that is compiled on the engine the first
// time it runs.
func (c *Conn) Prepare(query string) (driver.Stmt, error) {
	return c.PrepareContext(context.Background(), query)
}

// PrepareContext implements driver.ConnPrepareContext.
func (c *Conn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.conn.Closed() {
		return nil, driver.ErrBadConn
	}
	return &Stmt{conn: c, query: query, name: "stmt_" + uuid.NewString()}, nil
}

// Close disconnects from the engine.
func (c *Conn) Close() error {
	if c.conn.Closed() {
		return nil
	}
	return c.conn.Disconnect()
}

// IsValid implements driver.Validator.
func (c *Conn) IsValid() bool {
	return !c.conn.Closed()
}

// Ping implements driver.Pinger.
func (c *Conn) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.conn.Closed() {
		return driver.ErrBadConn
	}
	_, err := c.conn.ExecuteRaw("SELECT 1")
	return err
}

// Begin starts a transaction in the connection's configured mode.
func (c *Conn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// BeginTx implements driver.ConnBeginTx. Only the default and
// serializable isolation levels are accepted; the engine serializes every
// transaction.
func (c *Conn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch sql.IsolationLevel(opts.Isolation) {
	case sql.LevelDefault, sql.LevelSerializable:
	default:
		return nil, fmt.Errorf("sqlbridge: unsupported isolation level %v", sql.IsolationLevel(opts.Isolation))
	}
	if c.tx != nil {
		return nil, errors.New("sqlbridge: transaction already active on this connection")
	}

	mode := strings.ToUpper(c.conn.Options().TransactionMode)
	if _, err := c.conn.ExecuteRaw("BEGIN " + mode); err != nil {
		return nil, err
	}
	c.tx = &Tx{conn: c}
	return c.tx, nil
}

// ExecContext runs query without caching a prepared statement.
func (c *Conn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.exec(adapter.Statement{SQL: query}, args)
}

// QueryContext runs query without caching a prepared statement.
func (c *Conn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.query(adapter.Statement{SQL: query}, args)
}

// CheckNamedValue lets adapter value types through to the encoder and
// defers everything else to the default conversion.
func (c *Conn) CheckNamedValue(nv *driver.NamedValue) error {
	switch nv.Value.(type) {
	case adapter.Date, adapter.TimeOfDay, decimal.Decimal:
		return nil
	}
	return driver.ErrSkip
}

func (c *Conn) exec(st adapter.Statement, args []driver.NamedValue) (driver.Result, error) {
	st.Args, st.Named = splitArgs(args)
	kind := adapter.DetectKind(st.SQL)
	res, err := c.conn.Dispatch(kind, st)
	if err != nil {
		return nil, err
	}
	out := &result{lastInsertID: res.LastInsertID, rowsAffected: res.RowsModified}
	if kind == adapter.KindInsert {
		if out.rowsAffected, err = c.conn.RowsModified(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (c *Conn) query(st adapter.Statement, args []driver.NamedValue) (driver.Rows, error) {
	st.Args, st.Named = splitArgs(args)
	res, err := c.conn.Dispatch(adapter.KindQuery, st)
	if err != nil {
		return nil, err
	}
	set := *res.Rows
	if set.Types == nil {
		set.Types = timeTypes(set.EngineTypes)
	}
	decoded, err := adapter.DecodeAll(&set)
	if err != nil {
		return nil, err
	}
	return &rows{columns: set.Columns, types: set.Types, data: decoded}, nil
}

// timeTypes keeps the date and timestamp entries of the engine's declared
// types, so time columns scan into time.Time without source-table metadata.
func timeTypes(engine []string) []string {
	var out []string
	for i, t := range engine {
		switch adapter.BaseTypeName(t) {
		case "date", "datetime", "timestamp":
			if out == nil {
				out = make([]string, len(engine))
			}
			out[i] = t
		}
	}
	return out
}

func splitArgs(args []driver.NamedValue) ([]any, map[string]any) {
	var positional []any
	var named map[string]any
	for _, a := range args {
		if a.Name == "" {
			positional = append(positional, a.Value)
			continue
		}
		if named == nil {
			named = make(map[string]any)
		}
		named[a.Name] = a.Value
	}
	return positional, named
}

// --- Statement implementation ---

// Stmt is a named statement on the adapter connection's cache.
type Stmt struct {
	conn  *Conn
	query string
	name  string
}

// Close releases the compiled statement, if it was ever compiled.
func (s *Stmt) Close() error {
	if s.conn.conn.Closed() {
		return nil
	}
	return s.conn.conn.Free(s.name)
}

// NumInput returns -1; the engine checks the argument count.
func (s *Stmt) NumInput() int {
	return -1
}

// Exec implements driver.Stmt.
func (s *Stmt) Exec(args []driver.Value) (driver.Result, error) {
	return s.ExecContext(context.Background(), namedValues(args))
}

// Query implements driver.Stmt.
func (s *Stmt) Query(args []driver.Value) (driver.Rows, error) {
	return s.QueryContext(context.Background(), namedValues(args))
}

// ExecContext implements driver.StmtExecContext.
func (s *Stmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.conn.exec(adapter.Statement{SQL: s.query, Name: s.name}, args)
}

// QueryContext implements driver.StmtQueryContext.
func (s *Stmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.conn.query(adapter.Statement{SQL: s.query, Name: s.name}, args)
}

// CheckNamedValue implements driver.NamedValueChecker.
func (s *Stmt) CheckNamedValue(nv *driver.NamedValue) error {
	return s.conn.CheckNamedValue(nv)
}

func namedValues(args []driver.Value) []driver.NamedValue {
	out := make([]driver.NamedValue, len(args))
	for i, v := range args {
		out[i] = driver.NamedValue{Ordinal: i + 1, Value: v}
	}
	return out
}

// --- Transaction implementation ---

// Tx implements driver.Tx with plain COMMIT and ROLLBACK statements.
type Tx struct {
	conn *Conn
	done bool
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	return t.finish("COMMIT")
}

// Rollback aborts the transaction.
func (t *Tx) Rollback() error {
	return t.finish("ROLLBACK")
}

func (t *Tx) finish(stmt string) error {
	if t.done {
		return errors.New("sqlbridge: transaction already committed or rolled back")
	}
	t.done = true
	t.conn.tx = nil
	_, err := t.conn.conn.ExecuteRaw(stmt)
	return err
}

// --- Result implementation ---

type result struct {
	lastInsertID int64
	rowsAffected int64
}

func (r *result) LastInsertId() (int64, error) {
	return r.lastInsertID, nil
}

func (r *result) RowsAffected() (int64, error) {
	return r.rowsAffected, nil
}

// --- Rows implementation ---

// rows holds a fully decoded result snapshot.
type rows struct {
	columns []string
	types   []string
	data    []adapter.Row
	next    int
}

func (r *rows) Columns() []string {
	return r.columns
}

func (r *rows) Close() error {
	r.data = nil
	r.next = 0
	return nil
}

// ColumnTypeDatabaseTypeName implements driver.RowsColumnTypeDatabaseTypeName.
func (r *rows) ColumnTypeDatabaseTypeName(index int) string {
	if index < 0 || index >= len(r.types) {
		return ""
	}
	return strings.ToUpper(adapter.BaseTypeName(r.types[index]))
}

func (r *rows) Next(dest []driver.Value) error {
	if r.next >= len(r.data) {
		return io.EOF
	}
	row := r.data[r.next]
	if len(row.Values) != len(dest) {
		return fmt.Errorf("sqlbridge: column count mismatch. Expected %d, got %d", len(dest), len(row.Values))
	}
	for i, v := range row.Values {
		dest[i] = driverValue(v)
	}
	r.next++
	return nil
}

// driverValue narrows a decoded value to the set database/sql accepts.
func driverValue(v any) driver.Value {
	switch val := v.(type) {
	case adapter.TimeOfDay:
		return val.String()
	case decimal.Decimal:
		return val.String()
	case int:
		return int64(val)
	default:
		return v
	}
}
