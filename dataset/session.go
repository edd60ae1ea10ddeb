package dataset

import (
	"context"

	"github.com/tomyedwab/sqlbridge/adapter"
)

// session holds the statement API shared by Dataset and Tx. use decides
// which connection a call runs on.
type session struct {
	use        func(ctx context.Context, fn func(*adapter.Conn) error) error
	statements func(name string) (string, error)
	encoder    adapter.Encoder
}

func (s session) dispatch(ctx context.Context, kind adapter.Kind, st adapter.Statement) (*adapter.Result, error) {
	var res *adapter.Result
	err := s.use(ctx, func(c *adapter.Conn) error {
		var err error
		res, err = c.Dispatch(kind, st)
		return err
	})
	return res, err
}

// Query runs sql as a query and returns the undecoded snapshot, for
// callers that decode lazily with adapter.Decode.
func (s session) Query(ctx context.Context, sql string, args ...any) (*adapter.ExecutionResult, error) {
	res, err := s.dispatch(ctx, adapter.KindQuery, adapter.Statement{SQL: sql, Args: args})
	if err != nil {
		return nil, err
	}
	return res.Rows, nil
}

// Execute runs sql as a query and returns its decoded rows.
func (s session) Execute(ctx context.Context, sql string, args ...any) ([]adapter.Row, error) {
	res, err := s.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return adapter.DecodeAll(res)
}

// ExecuteInsert runs an insert and returns the new row's id.
func (s session) ExecuteInsert(ctx context.Context, sql string, args ...any) (int64, error) {
	res, err := s.dispatch(ctx, adapter.KindInsert, adapter.Statement{SQL: sql, Args: args})
	if err != nil {
		return 0, err
	}
	return res.LastInsertID, nil
}

// ExecuteUpdate runs an update or delete and returns the rows modified.
func (s session) ExecuteUpdate(ctx context.Context, sql string, args ...any) (int64, error) {
	res, err := s.dispatch(ctx, adapter.KindUpdate, adapter.Statement{SQL: sql, Args: args})
	if err != nil {
		return 0, err
	}
	return res.RowsModified, nil
}

// ExecuteDDL runs a schema change.
func (s session) ExecuteDDL(ctx context.Context, sql string, args ...any) error {
	_, err := s.dispatch(ctx, adapter.KindDDL, adapter.Statement{SQL: sql, Args: args})
	return err
}

// Run detects the statement kind from its leading keyword and dispatches it.
func (s session) Run(ctx context.Context, sql string, args ...any) (*adapter.Result, error) {
	return s.dispatch(ctx, adapter.DetectKind(sql), adapter.Statement{SQL: sql, Args: args})
}

// Call runs a registered statement with positional arguments.
func (s session) Call(ctx context.Context, name string, args ...any) (*adapter.Result, error) {
	return s.call(ctx, adapter.Statement{Name: name, Args: args})
}

// CallNamed runs a registered statement with named arguments.
func (s session) CallNamed(ctx context.Context, name string, named map[string]any) (*adapter.Result, error) {
	return s.call(ctx, adapter.Statement{Name: name, Named: named})
}

func (s session) call(ctx context.Context, st adapter.Statement) (*adapter.Result, error) {
	sql, err := s.statements(st.Name)
	if err != nil {
		return nil, err
	}
	st.SQL = sql
	return s.dispatch(ctx, adapter.DetectKind(sql), st)
}

// Literal renders v as SQL literal text.
func (s session) Literal(v any) (string, error) {
	return s.encoder.Literal(v)
}
