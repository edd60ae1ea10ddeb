package host

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomyedwab/sqlbridge/bridge/types"
)

func openTestHost(t *testing.T, cfg Config) *SQLHost {
	t.Helper()
	h, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = h.HandleRequest([]byte(`{"command":"close"}`))
	})
	return h
}

func call(t *testing.T, h *SQLHost, req types.Request) types.Response {
	t.Helper()
	payload, err := json.Marshal(req)
	require.NoError(t, err)
	out, err := h.HandleRequest(payload)
	require.NoError(t, err)
	var resp types.Response
	require.NoError(t, types.Unmarshal(out, &resp))
	return resp
}

func mustExec(t *testing.T, h *SQLHost, sql string, args ...any) types.ResultSet {
	t.Helper()
	enc, err := types.EncodeValues(args)
	require.NoError(t, err)
	resp := call(t, h, types.Request{Command: types.CommandExec, SQL: sql, Args: enc})
	require.False(t, resp.Failed(), "exec %q: %s", sql, resp.Message)
	require.Len(t, resp.Results, 1)
	return resp.Results[0]
}

func TestExecReturnsColumnsAndValues(t *testing.T) {
	h := openTestHost(t, Config{Path: ":memory:"})

	mustExec(t, h, "CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT, price REAL, data BLOB)")
	mustExec(t, h, "INSERT INTO items (name, price, data) VALUES (?, ?, ?)", "apple", 3.0, []byte{1, 2})

	set := mustExec(t, h, "SELECT id, name, price, data FROM items")
	assert.Equal(t, []string{"id", "name", "price", "data"}, set.Columns)
	require.Len(t, set.Values, 1)

	row := make([]any, len(set.Values[0]))
	for i, v := range set.Values[0] {
		dec, err := types.DecodeValue(v)
		require.NoError(t, err)
		row[i] = dec
	}
	assert.Equal(t, []any{int64(1), "apple", 3.0, []byte{1, 2}}, row)
}

func TestEmptyResultKeepsColumns(t *testing.T) {
	h := openTestHost(t, Config{})
	mustExec(t, h, "CREATE TABLE t (a INTEGER, b TEXT)")

	set := mustExec(t, h, "SELECT a, b FROM t")
	assert.Equal(t, []string{"a", "b"}, set.Columns)
	assert.Empty(t, set.Values)
}

func TestRowsModifiedAndLastInsertID(t *testing.T) {
	h := openTestHost(t, Config{Path: ":memory:"})
	mustExec(t, h, "CREATE TABLE t (id INTEGER PRIMARY KEY AUTOINCREMENT, v INTEGER)")
	mustExec(t, h, "INSERT INTO t (v) VALUES (1), (2), (3)")

	set := mustExec(t, h, "SELECT last_insert_rowid()")
	assert.Equal(t, json.Number("3"), set.Values[0][0])

	mustExec(t, h, "UPDATE t SET v = v + 1 WHERE v >= 2")
	resp := call(t, h, types.Request{Command: types.CommandGetRowsModified})
	require.False(t, resp.Failed())
	assert.Equal(t, int64(2), resp.RowsModified)
}

func TestEngineFailureIsException(t *testing.T) {
	h := openTestHost(t, Config{Path: ":memory:"})
	mustExec(t, h, "CREATE TABLE u (k TEXT UNIQUE)")
	mustExec(t, h, "INSERT INTO u VALUES ('a')")

	resp := call(t, h, types.Request{Command: types.CommandExec, SQL: "INSERT INTO u VALUES ('a')"})
	require.True(t, resp.Failed())
	assert.Contains(t, resp.Message, "UNIQUE constraint failed")
	assert.Contains(t, resp.Stack, "INSERT INTO u")
}

func TestUnknownArgumentType(t *testing.T) {
	h := openTestHost(t, Config{Path: ":memory:"})
	resp := call(t, h, types.Request{
		Command: types.CommandExec,
		SQL:     "SELECT ?",
		Args:    []any{map[string]any{"nested": true}},
	})
	require.True(t, resp.Failed())
	assert.Contains(t, resp.Message, "tried to bind a value of an unknown type")
}

func TestPreparedStatements(t *testing.T) {
	h := openTestHost(t, Config{Path: ":memory:"})
	mustExec(t, h, "CREATE TABLE t (v INTEGER)")

	prep := call(t, h, types.Request{Command: types.CommandPrepare, SQL: "INSERT INTO t (v) VALUES (:v)"})
	require.False(t, prep.Failed(), prep.Message)
	require.NotEmpty(t, prep.StmtID)

	for i := 1; i <= 3; i++ {
		resp := call(t, h, types.Request{
			Command: types.CommandExecPrepared,
			StmtID:  prep.StmtID,
			Named:   map[string]any{"v": i},
		})
		require.False(t, resp.Failed(), resp.Message)
	}
	set := mustExec(t, h, "SELECT count(*) FROM t")
	assert.Equal(t, json.Number("3"), set.Values[0][0])

	resp := call(t, h, types.Request{Command: types.CommandFree, StmtID: prep.StmtID})
	require.False(t, resp.Failed())

	resp = call(t, h, types.Request{Command: types.CommandExecPrepared, StmtID: prep.StmtID})
	require.True(t, resp.Failed())
	assert.Contains(t, resp.Message, "statement not found")
}

func TestCloseRejectsLaterRequests(t *testing.T) {
	h, err := Open(Config{Path: ":memory:"})
	require.NoError(t, err)
	call(t, h, types.Request{Command: types.CommandPrepare, SQL: "SELECT 1"})

	resp := call(t, h, types.Request{Command: types.CommandClose})
	require.False(t, resp.Failed(), resp.Message)
	assert.Empty(t, h.stmts)

	resp = call(t, h, types.Request{Command: types.CommandExec, SQL: "SELECT 1"})
	require.True(t, resp.Failed())
	assert.Equal(t, ErrClosed.Error(), resp.Message)
}

func decodeRow(t *testing.T, raw []any) []any {
	t.Helper()
	row := make([]any, len(raw))
	for i, v := range raw {
		dec, err := types.DecodeValue(v)
		require.NoError(t, err)
		row[i] = dec
	}
	return row
}

func TestDeclaredTimeAndBooleanColumnsKeepStorageValues(t *testing.T) {
	h := openTestHost(t, Config{Path: ":memory:"})
	mustExec(t, h, "CREATE TABLE ev (id INTEGER PRIMARY KEY, day date, at datetime, stamp TIMESTAMP, ok BOOLEAN, note TEXT)")
	mustExec(t, h, "INSERT INTO ev (day, at, stamp, ok, note) VALUES (2455979, '2012-02-21 12:00:00', 2455979.5, 2, 'x')")
	mustExec(t, h, "INSERT INTO ev (day, at, stamp, ok, note) VALUES ('2012-02-21', 1329825600, 'not a time', 0, NULL)")

	set := mustExec(t, h, "SELECT day, at, stamp, ok, note FROM ev ORDER BY id;  ")
	assert.Equal(t, []string{"day", "at", "stamp", "ok", "note"}, set.Columns)
	assert.Equal(t, []string{"DATE", "DATETIME", "TIMESTAMP", "BOOLEAN", "TEXT"}, set.DeclTypes)
	require.Len(t, set.Values, 2)
	assert.Equal(t, []any{int64(2455979), "2012-02-21 12:00:00", 2455979.5, int64(2), "x"}, decodeRow(t, set.Values[0]))
	assert.Equal(t, []any{"2012-02-21", int64(1329825600), "not a time", int64(0), nil}, decodeRow(t, set.Values[1]))

	// Prepared statements go through the same path, named bindings included.
	prep := call(t, h, types.Request{Command: types.CommandPrepare, SQL: "SELECT id, day AS d FROM ev WHERE id = :id"})
	require.False(t, prep.Failed(), prep.Message)
	resp := call(t, h, types.Request{Command: types.CommandExecPrepared, StmtID: prep.StmtID, Named: map[string]any{"id": 1}})
	require.False(t, resp.Failed(), resp.Message)
	assert.Equal(t, []string{"id", "d"}, resp.Results[0].Columns)
	assert.Equal(t, []any{int64(1), int64(2455979)}, decodeRow(t, resp.Results[0].Values[0]))
}

func TestWritesWithDeclaredTimeColumnsRunOnce(t *testing.T) {
	h := openTestHost(t, Config{Path: ":memory:"})
	mustExec(t, h, "CREATE TABLE ev (id INTEGER PRIMARY KEY, day date)")
	mustExec(t, h, "INSERT INTO ev (day) VALUES (1)")

	mustExec(t, h, "UPDATE ev SET day = day + 1 RETURNING day")
	set := mustExec(t, h, "SELECT day FROM ev")
	assert.Equal(t, []any{int64(2)}, decodeRow(t, set.Values[0]))
}

func TestStorageQuery(t *testing.T) {
	got := storageQuery("SELECT a, b FROM t -- trailing\n;\n", []string{"a", `we"ird`})
	assert.Equal(t, "WITH sqlbridge_rows(c0, c1) AS (\nSELECT a, b FROM t -- trailing\n) SELECT +c0 AS \"a\", +c1 AS \"we\"\"ird\" FROM sqlbridge_rows", got)
}

func TestRegexpFunction(t *testing.T) {
	h := openTestHost(t, Config{Path: ":memory:", Regexp: true})

	set := mustExec(t, h, "SELECT 'bridge' REGEXP '^br', 'bridge' REGEXP 'x$', NULL REGEXP 'a'")
	assert.Equal(t, []any{json.Number("1"), json.Number("0"), nil}, set.Values[0])
}

func TestReadOnlyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ro.db")
	rw := openTestHost(t, Config{Path: path})
	mustExec(t, rw, "CREATE TABLE t (v INTEGER)")

	ro := openTestHost(t, Config{Path: path, ReadOnly: true})
	mustExec(t, ro, "SELECT * FROM t")
	resp := call(t, ro, types.Request{Command: types.CommandExec, SQL: "INSERT INTO t VALUES (1)"})
	assert.True(t, resp.Failed())
}

func TestUnknownCommand(t *testing.T) {
	h := openTestHost(t, Config{Path: ":memory:"})
	resp := call(t, h, types.Request{Command: "vacuum"})
	require.True(t, resp.Failed())
	assert.Equal(t, "unknown command: vacuum", resp.Message)
}
