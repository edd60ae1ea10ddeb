package dataset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tomyedwab/sqlbridge/adapter"
	"github.com/tomyedwab/sqlbridge/bridge"
)

const defaultPoolTimeout = 5 * time.Second

// ErrPoolTimeout is returned when no connection frees up within the pool
// timeout.
var ErrPoolTimeout = errors.New("sqlbridge: timed out waiting for a pooled connection")

// Config holds configuration options for a Dataset.
type Config struct {
	Options     adapter.Options
	Dial        func(adapter.Options) (adapter.Bridge, error) // Optional, defaults to bridge.Dial
	PoolTimeout time.Duration                                  // Optional, defaults to 5s
	Logger      *slog.Logger                                   // Optional, defaults to slog.Default()
}

// Dataset is a pool of adapter connections plus the named statements that
// can be called on any of them.
type Dataset struct {
	session

	opts        adapter.Options
	dial        func(adapter.Options) (adapter.Bridge, error)
	poolTimeout time.Duration
	logger      *slog.Logger

	idle   chan *adapter.Conn
	mu     sync.Mutex
	size   int
	opened int
	closed bool

	stmtMu   sync.RWMutex
	prepared map[string]string
}

// Open validates the options and opens the first connection, so a bad
// database path fails here rather than on first use.
func Open(ctx context.Context, config Config) (*Dataset, error) {
	opts := config.Options
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Logger == nil {
		opts.Logger = logger
	}
	dial := config.Dial
	if dial == nil {
		dial = bridge.Dial
	}
	poolTimeout := config.PoolTimeout
	if poolTimeout == 0 {
		poolTimeout = defaultPoolTimeout
	}

	size := opts.PoolSize()
	d := &Dataset{
		opts:        opts,
		dial:        dial,
		poolTimeout: poolTimeout,
		logger:      logger.With("component", "dataset"),
		idle:        make(chan *adapter.Conn, size),
		size:        size,
		prepared:    make(map[string]string),
	}
	d.session = session{use: d.withConn, statements: d.statement, encoder: adapter.Encoder{IntegerBooleans: opts.IntegerBooleans}}

	c, err := d.acquire(ctx)
	if err != nil {
		return nil, err
	}
	d.release(c)

	d.logger.Info("dataset opened",
		"database", opts.Database,
		"pool_size", size,
		"transaction_mode", opts.TransactionMode)
	return d, nil
}

// Options returns the adapter options the pool connects with.
func (d *Dataset) Options() adapter.Options {
	return d.opts
}

// AllowsRegexp reports whether the REGEXP operator is available.
func (d *Dataset) AllowsRegexp() bool {
	return d.opts.SetupRegexpFunction
}

func (d *Dataset) connect() (*adapter.Conn, error) {
	b, err := d.dial(d.opts)
	if err != nil {
		return nil, err
	}
	return adapter.Connect(b, d.opts)
}

// acquire hands out an idle connection, opens a new one while the pool has
// room, and otherwise waits for a release.
func (d *Dataset) acquire(ctx context.Context) (*adapter.Conn, error) {
	select {
	case c := <-d.idle:
		return c, nil
	default:
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, &adapter.Error{Kind: adapter.ErrKindConnection, Message: "dataset is closed", Cause: adapter.ErrClosed}
	}
	if d.opened < d.size {
		d.opened++
		d.mu.Unlock()
		c, err := d.connect()
		if err != nil {
			d.mu.Lock()
			d.opened--
			d.mu.Unlock()
			return nil, err
		}
		d.logger.Debug("opened pooled connection")
		return c, nil
	}
	d.mu.Unlock()

	d.logger.Debug("waiting for pooled connection", "pool_size", d.size)
	timer := time.NewTimer(d.poolTimeout)
	defer timer.Stop()
	select {
	case c := <-d.idle:
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, ErrPoolTimeout
	}
}

func (d *Dataset) release(c *adapter.Conn) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if c.Closed() {
		d.opened--
		return
	}
	if d.closed {
		if err := c.Disconnect(); err != nil {
			d.logger.Warn("closing released connection", "error", err)
		}
		d.opened--
		return
	}
	d.idle <- c
}

func (d *Dataset) withConn(ctx context.Context, fn func(*adapter.Conn) error) error {
	c, err := d.acquire(ctx)
	if err != nil {
		return err
	}
	defer d.release(c)
	return fn(c)
}

// Prepare registers sql under name. The statement is compiled on each
// connection the first time it is called there.
func (d *Dataset) Prepare(name, sql string) error {
	if name == "" {
		return &adapter.Error{Kind: adapter.ErrKindArgument, Message: "prepared statement name is empty"}
	}
	d.stmtMu.Lock()
	defer d.stmtMu.Unlock()
	d.prepared[name] = sql
	return nil
}

// Prepared returns a copy of the registered statements.
func (d *Dataset) Prepared() map[string]string {
	d.stmtMu.RLock()
	defer d.stmtMu.RUnlock()
	out := make(map[string]string, len(d.prepared))
	for k, v := range d.prepared {
		out[k] = v
	}
	return out
}

func (d *Dataset) statement(name string) (string, error) {
	d.stmtMu.RLock()
	defer d.stmtMu.RUnlock()
	sql, ok := d.prepared[name]
	if !ok {
		return "", &adapter.Error{Kind: adapter.ErrKindArgument, Message: fmt.Sprintf("prepared statement %q is not registered", name), Cause: adapter.ErrUnknownStatement}
	}
	return sql, nil
}

// Transaction runs fn inside BEGIN/COMMIT on one pooled connection. The
// mode defaults to the configured transaction mode. fn's error, or a panic,
// rolls the transaction back.
func (d *Dataset) Transaction(ctx context.Context, fn func(tx *Tx) error, mode ...string) error {
	m := d.opts.TransactionMode
	if len(mode) > 0 {
		m = mode[0]
	}
	if err := adapter.ValidTransactionMode(m); err != nil {
		return err
	}

	return d.withConn(ctx, func(c *adapter.Conn) error {
		tx, err := begin(c, m, d.session)
		if err != nil {
			return err
		}
		defer func() {
			if p := recover(); p != nil {
				tx.rollback(d.logger)
				panic(p)
			}
		}()
		if err := fn(tx); err != nil {
			tx.rollback(d.logger)
			return err
		}
		return tx.commit()
	})
}

// Close disconnects every idle connection. Connections in use are closed
// when they are released.
func (d *Dataset) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	var errs []error
	for {
		select {
		case c := <-d.idle:
			if err := c.Disconnect(); err != nil {
				errs = append(errs, err)
			}
			d.mu.Lock()
			d.opened--
			d.mu.Unlock()
		default:
			d.logger.Info("dataset closed")
			return errors.Join(errs...)
		}
	}
}
