package host

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomyedwab/sqlbridge/bridge/types"
)

func TestHostOverMockDB(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	h := NewSQLHost(db)

	mock.ExpectQuery(`SELECT name FROM users`).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("ada").AddRow("grace"))
	resp := call(t, h, types.Request{Command: types.CommandExec, SQL: "SELECT name FROM users"})
	require.False(t, resp.Failed(), resp.Message)
	assert.Equal(t, [][]any{{"ada"}, {"grace"}}, resp.Results[0].Values)

	mock.ExpectQuery(`INSERT INTO users`).
		WillReturnError(errors.New("UNIQUE constraint failed: users.name"))
	resp = call(t, h, types.Request{Command: types.CommandExec, SQL: "INSERT INTO users VALUES ('ada')"})
	require.True(t, resp.Failed())
	assert.Equal(t, "UNIQUE constraint failed: users.name", resp.Message)

	mock.ExpectQuery(`SELECT changes\(\)`).
		WillReturnRows(sqlmock.NewRows([]string{"changes()"}).AddRow(4))
	resp = call(t, h, types.Request{Command: types.CommandGetRowsModified})
	require.False(t, resp.Failed(), resp.Message)
	assert.Equal(t, int64(4), resp.RowsModified)

	// The host does not own db, so close leaves it open.
	resp = call(t, h, types.Request{Command: types.CommandClose})
	require.False(t, resp.Failed(), resp.Message)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHostRereadsDriverConvertedColumns(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	h := NewSQLHost(db)
	dayCol := func() *sqlmock.Rows {
		return sqlmock.NewRowsWithColumnDefinition(sqlmock.NewColumn("day").OfType("DATE", int64(0)))
	}

	mock.ExpectQuery(`SELECT day FROM ev`).WillReturnRows(dayCol().AddRow(int64(-1)))
	mock.ExpectPrepare(`WITH sqlbridge_rows\(c0\) AS \( SELECT day FROM ev \) SELECT \+c0 AS "day" FROM sqlbridge_rows`).
		ExpectQuery().WillReturnRows(sqlmock.NewRows([]string{"day"}).AddRow(int64(2455979)))
	resp := call(t, h, types.Request{Command: types.CommandExec, SQL: "SELECT day FROM ev"})
	require.False(t, resp.Failed(), resp.Message)
	assert.Equal(t, []string{"DATE"}, resp.Results[0].DeclTypes)
	assert.Equal(t, [][]any{{json.Number("2455979")}}, resp.Results[0].Values)

	// Statements the wrapper rejects keep their original rows.
	mock.ExpectQuery(`UPDATE ev`).WillReturnRows(dayCol().AddRow(int64(7)))
	mock.ExpectPrepare(`WITH sqlbridge_rows`).WillReturnError(errors.New(`near "UPDATE": syntax error`))
	resp = call(t, h, types.Request{Command: types.CommandExec, SQL: "UPDATE ev SET day = 7 RETURNING day"})
	require.False(t, resp.Failed(), resp.Message)
	assert.Equal(t, [][]any{{json.Number("7")}}, resp.Results[0].Values)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMalformedPayload(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	out, err := NewSQLHost(db).HandleRequest([]byte("{not json"))
	require.NoError(t, err)
	var resp types.Response
	require.NoError(t, types.Unmarshal(out, &resp))
	assert.True(t, resp.Failed())
	assert.Contains(t, resp.Message, "failed to unmarshal request")
}
