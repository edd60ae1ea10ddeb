package adapter

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/go-viper/mapstructure/v2"
)

// Transaction modes accepted by BEGIN.
const (
	TxDeferred  = "deferred"
	TxImmediate = "immediate"
	TxExclusive = "exclusive"
)

// DefaultTimeout is the busy timeout in milliseconds.
const DefaultTimeout = 5000

// Options configure a connection to the embedded engine.
type Options struct {
	// Database is a file path, or ":memory:"/"" for an in-memory engine.
	Database string `mapstructure:"database"`

	ReadOnly bool `mapstructure:"readonly"`

	// Timeout is the busy timeout in milliseconds.
	Timeout int `mapstructure:"timeout"`

	// SetupRegexpFunction installs a regexp() function so REGEXP works.
	SetupRegexpFunction bool `mapstructure:"setup_regexp_function"`

	// IntegerBooleans encodes booleans as 1/0 instead of 't'/'f'.
	IntegerBooleans bool `mapstructure:"integer_booleans"`

	ForeignKeys bool `mapstructure:"foreign_keys"`

	// TransactionMode is the default BEGIN mode: deferred, immediate or exclusive.
	TransactionMode string `mapstructure:"transaction_mode"`

	// MaxConnections caps the pool. Forced to 1 for in-memory databases.
	MaxConnections int `mapstructure:"max_connections"`

	// Logger for statement logging. Uses slog.Default() if nil.
	Logger *slog.Logger `mapstructure:"-"`
}

// DefaultOptions returns the options used when nothing is specified.
func DefaultOptions() Options {
	return Options{
		Database:        ":memory:",
		Timeout:         DefaultTimeout,
		IntegerBooleans: true,
		ForeignKeys:     true,
		TransactionMode: TxDeferred,
		MaxConnections:  4,
	}
}

// InMemory reports whether the options name a database that cannot be
// shared between connections.
func (o Options) InMemory() bool {
	db := strings.TrimSpace(o.Database)
	return db == "" || db == ":memory:" || strings.HasPrefix(db, "file::memory:")
}

// PoolSize returns the number of connections a pool may open.
func (o Options) PoolSize() int {
	if o.InMemory() || o.MaxConnections < 1 {
		return 1
	}
	return o.MaxConnections
}

// Validate checks option values that the engine would otherwise reject late.
func (o Options) Validate() error {
	if err := ValidTransactionMode(o.TransactionMode); err != nil {
		return err
	}
	if o.Timeout < 0 {
		return newError(ErrKindArgument, fmt.Sprintf("timeout must not be negative, got %d", o.Timeout), nil)
	}
	return nil
}

// ValidTransactionMode returns an argument error unless mode is one of
// deferred, immediate or exclusive. The empty mode means deferred.
func ValidTransactionMode(mode string) error {
	switch strings.ToLower(mode) {
	case "", TxDeferred, TxImmediate, TxExclusive:
		return nil
	}
	return newError(ErrKindArgument,
		fmt.Sprintf("transaction_mode not one of %s, %s, %s: %q", TxDeferred, TxImmediate, TxExclusive, mode), nil)
}

// ParseDSN parses a data source name into Options. Accepted forms:
//
//	:memory:
//	/path/to/file.db?timeout=1000&readonly=true
//	sqlbridge:///path/to/file.db?integer_booleans=false
//	sqlbridge://:memory:?setup_regexp_function=1
func ParseDSN(dsn string) (Options, error) {
	opts := DefaultOptions()

	rest := strings.TrimSpace(dsn)
	rest = strings.TrimPrefix(rest, "sqlbridge://")

	path, rawQuery, _ := strings.Cut(rest, "?")
	if path != "" {
		opts.Database = path
	}

	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return Options{}, newError(ErrKindArgument, fmt.Sprintf("invalid dsn query %q", rawQuery), err)
	}

	input := make(map[string]any, len(values))
	for key, vals := range values {
		input[strings.ToLower(key)] = vals[len(vals)-1]
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           &opts,
	})
	if err != nil {
		return Options{}, err
	}
	if err := dec.Decode(input); err != nil {
		return Options{}, newError(ErrKindArgument, "invalid dsn options", err)
	}

	opts.TransactionMode = strings.ToLower(opts.TransactionMode)
	if err := opts.Validate(); err != nil {
		return Options{}, err
	}
	return opts, nil
}

// DSN renders the options back into the form ParseDSN accepts.
func (o Options) DSN() string {
	q := url.Values{}
	q.Set("readonly", fmt.Sprint(o.ReadOnly))
	q.Set("timeout", fmt.Sprint(o.Timeout))
	q.Set("setup_regexp_function", fmt.Sprint(o.SetupRegexpFunction))
	q.Set("integer_booleans", fmt.Sprint(o.IntegerBooleans))
	q.Set("foreign_keys", fmt.Sprint(o.ForeignKeys))
	q.Set("transaction_mode", o.TransactionMode)
	q.Set("max_connections", fmt.Sprint(o.MaxConnections))
	return "sqlbridge://" + o.Database + "?" + q.Encode()
}
