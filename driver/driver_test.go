package driver_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomyedwab/sqlbridge/adapter"
	"github.com/tomyedwab/sqlbridge/bridge"
	sqlbridge "github.com/tomyedwab/sqlbridge/driver"
)

func openMemory(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := sqlbridge.Connect(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestExecReportsIDsAndCounts(t *testing.T) {
	db := openMemory(t)
	_, err := db.Exec("CREATE TABLE notes (id INTEGER PRIMARY KEY AUTOINCREMENT, body TEXT)")
	require.NoError(t, err)

	res, err := db.Exec("INSERT INTO notes (body) VALUES (?), (?)", "a", "b")
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	assert.Equal(t, int64(2), id)
	n, err := res.RowsAffected()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	res, err = db.Exec("UPDATE notes SET body = upper(body)")
	require.NoError(t, err)
	n, err = res.RowsAffected()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

type event struct {
	ID    int64           `db:"id"`
	Day   time.Time       `db:"day"`
	Done  bool            `db:"done"`
	Price decimal.Decimal `db:"price"`
	Note  sql.NullString  `db:"note"`
}

func TestScanDecodedColumns(t *testing.T) {
	db := openMemory(t)
	db.MustExec("CREATE TABLE `events` (id INTEGER PRIMARY KEY, day date, done boolean, price numeric(8,2), note text)")
	db.MustExec("INSERT INTO `events` (day, done, price, note) VALUES (2455979, ?, '3.50', NULL)", true)

	var events []event
	require.NoError(t, db.Select(&events, "SELECT * FROM `events`"))
	require.Len(t, events, 1)
	e := events[0]
	assert.Equal(t, time.Date(2012, 2, 21, 0, 0, 0, 0, time.UTC), e.Day)
	assert.True(t, e.Done)
	assert.True(t, decimal.RequireFromString("3.5").Equal(e.Price))
	assert.False(t, e.Note.Valid)

	rows, err := db.Query("SELECT day, price FROM `events`")
	require.NoError(t, err)
	defer rows.Close()
	types, err := rows.ColumnTypes()
	require.NoError(t, err)
	assert.Equal(t, "DATE", types[0].DatabaseTypeName())
	assert.Equal(t, "NUMERIC", types[1].DatabaseTypeName())
}

func TestTimeColumnsScanWithoutBackticks(t *testing.T) {
	db := openMemory(t)
	db.MustExec("CREATE TABLE log (at TIMESTAMP DEFAULT (datetime('now')), day date, n INTEGER)")
	db.MustExec("INSERT INTO log (at, day, n) VALUES ('2012-02-21 12:00:00', 2455979, 2455979)")

	var at, day time.Time
	var n int64
	require.NoError(t, db.QueryRow("SELECT at, day, n FROM log").Scan(&at, &day, &n))
	assert.Equal(t, time.Date(2012, 2, 21, 12, 0, 0, 0, time.UTC), at)
	assert.Equal(t, time.Date(2012, 2, 21, 0, 0, 0, 0, time.UTC), day)
	assert.Equal(t, int64(2455979), n)
}

func TestPreparedStatementSurvivesDDL(t *testing.T) {
	db := openMemory(t)
	db.MustExec("CREATE TABLE kv (k TEXT PRIMARY KEY, v INTEGER)")

	ins, err := db.Preparex("INSERT INTO kv (k, v) VALUES (?, ?)")
	require.NoError(t, err)
	defer ins.Close()

	_, err = ins.Exec("a", 1)
	require.NoError(t, err)

	db.MustExec("CREATE INDEX kv_v ON kv (v)")

	_, err = ins.Exec("b", 2)
	require.NoError(t, err)

	var total int64
	require.NoError(t, db.Get(&total, "SELECT sum(v) FROM kv"))
	assert.Equal(t, int64(3), total)
}

func TestNamedArguments(t *testing.T) {
	db := openMemory(t)
	db.MustExec("CREATE TABLE people (name TEXT, age INTEGER)")

	_, err := db.Exec("INSERT INTO people VALUES (:name, :age)", sql.Named("name", "ada"), sql.Named("age", 36))
	require.NoError(t, err)

	_, err = db.NamedExec("INSERT INTO people VALUES (:name, :age)", map[string]any{"name": "bob", "age": 41})
	require.NoError(t, err)

	var names []string
	require.NoError(t, db.Select(&names, "SELECT name FROM people ORDER BY age"))
	assert.Equal(t, []string{"ada", "bob"}, names)
}

func TestTransactions(t *testing.T) {
	db := openMemory(t)
	db.MustExec("CREATE TABLE t (v INTEGER)")

	tx, err := db.Beginx()
	require.NoError(t, err)
	tx.MustExec("INSERT INTO t VALUES (1)")
	require.NoError(t, tx.Rollback())

	tx, err = db.Beginx()
	require.NoError(t, err)
	tx.MustExec("INSERT INTO t VALUES (2)")
	require.NoError(t, tx.Commit())

	var vals []int64
	require.NoError(t, db.Select(&vals, "SELECT v FROM t"))
	assert.Equal(t, []int64{2}, vals)

	_, err = db.BeginTx(context.Background(), &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	assert.Error(t, err)
}

func TestErrorsKeepTheirKind(t *testing.T) {
	db := openMemory(t)
	db.MustExec("CREATE TABLE u (email TEXT UNIQUE)")
	db.MustExec("INSERT INTO u VALUES ('a@x')")

	_, err := db.Exec("INSERT INTO u VALUES ('a@x')")
	require.Error(t, err)
	assert.True(t, adapter.IsUniqueViolation(err), "%v", err)
}

func TestDSNErrorsSurfaceAtOpen(t *testing.T) {
	_, err := sql.Open(sqlbridge.DriverName, "x.db?bogus=1")
	assert.True(t, adapter.IsArgument(err), "%v", err)
}

func TestMemoryPoolHoldsOneConnection(t *testing.T) {
	db := openMemory(t)
	assert.Equal(t, 1, db.Stats().MaxOpenConnections)

	db.MustExec("CREATE TABLE t (v INTEGER)")
	db.MustExec("INSERT INTO t VALUES (1)")
	var n int
	require.NoError(t, db.Get(&n, "SELECT count(*) FROM t"))
	assert.Equal(t, 1, n)
}

func TestFilePoolSharesData(t *testing.T) {
	opts := adapter.DefaultOptions()
	opts.Database = filepath.Join(t.TempDir(), "pool.db")
	opts.MaxConnections = 3

	db := sqlx.NewDb(sqlbridge.OpenDB(opts, nil), sqlbridge.DriverName)
	defer db.Close()
	assert.Equal(t, 3, db.Stats().MaxOpenConnections)

	db.MustExec("CREATE TABLE t (v INTEGER)")
	conns := make([]*sql.Conn, 2)
	for i := range conns {
		c, err := db.Conn(context.Background())
		require.NoError(t, err)
		conns[i] = c
	}
	_, err := conns[0].ExecContext(context.Background(), "INSERT INTO t VALUES (7)")
	require.NoError(t, err)

	var v int64
	require.NoError(t, conns[1].QueryRowContext(context.Background(), "SELECT v FROM t").Scan(&v))
	assert.Equal(t, int64(7), v)
	for _, c := range conns {
		require.NoError(t, c.Close())
	}
}

func TestCustomDial(t *testing.T) {
	dials := 0
	dial := func(opts adapter.Options) (adapter.Bridge, error) {
		dials++
		return bridge.Dial(opts)
	}
	db := sqlbridge.OpenDB(adapter.DefaultOptions(), dial)
	defer db.Close()

	require.NoError(t, db.Ping())
	require.NoError(t, db.Ping())
	assert.Equal(t, 1, dials)
}

func TestRawAdapterAccess(t *testing.T) {
	db := openMemory(t)
	conn, err := db.Conn(context.Background())
	require.NoError(t, err)
	defer conn.Close()

	err = conn.Raw(func(dc any) error {
		ac := dc.(*sqlbridge.Conn).Adapter()
		return ac.Prepare("one", "SELECT 1")
	})
	require.NoError(t, err)

	err = conn.Raw(func(dc any) error {
		assert.Contains(t, dc.(*sqlbridge.Conn).Adapter().PreparedNames(), "one")
		return nil
	})
	require.NoError(t, err)
}
