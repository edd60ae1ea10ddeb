package dataset

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/tomyedwab/sqlbridge/adapter"
)

var errTxDone = errors.New("sqlbridge: transaction already committed or rolled back")

// Tx runs statements on the single connection its transaction began on.
type Tx struct {
	session

	conn *adapter.Conn
	mode string
	done bool
}

func begin(c *adapter.Conn, mode string, parent session) (*Tx, error) {
	if _, err := c.ExecuteRaw("BEGIN " + strings.ToUpper(mode)); err != nil {
		return nil, err
	}
	tx := &Tx{conn: c, mode: mode}
	tx.session = session{use: tx.withConn, statements: parent.statements, encoder: parent.encoder}
	return tx, nil
}

// Mode returns the mode the transaction began with.
func (tx *Tx) Mode() string {
	return tx.mode
}

func (tx *Tx) withConn(ctx context.Context, fn func(*adapter.Conn) error) error {
	if tx.done {
		return errTxDone
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(tx.conn)
}

func (tx *Tx) commit() error {
	tx.done = true
	_, err := tx.conn.ExecuteRaw("COMMIT")
	return err
}

func (tx *Tx) rollback(logger *slog.Logger) {
	tx.done = true
	if _, err := tx.conn.ExecuteRaw("ROLLBACK"); err != nil {
		logger.Warn("rolling back transaction", "error", err)
	}
}
