// Package bridge connects adapter options to an in-process engine host.
package bridge

import (
	"time"

	"github.com/tomyedwab/sqlbridge/adapter"
	"github.com/tomyedwab/sqlbridge/bridge/host"
)

// HostConfig translates adapter options into the host's engine config.
func HostConfig(opts adapter.Options) host.Config {
	return host.Config{
		Path:        opts.Database,
		ReadOnly:    opts.ReadOnly,
		BusyTimeout: time.Duration(opts.Timeout) * time.Millisecond,
		ForeignKeys: opts.ForeignKeys,
		Regexp:      opts.SetupRegexpFunction,
		Logger:      opts.Logger,
	}
}

// Dial opens a fresh engine for opts. Each call to Dial on an in-memory
// database yields an independent, empty database.
func Dial(opts adapter.Options) (adapter.Bridge, error) {
	h, err := host.Open(HostConfig(opts))
	if err != nil {
		return nil, &adapter.Error{Kind: adapter.ErrKindConnection, Message: err.Error(), Cause: err}
	}
	return h, nil
}

// Connect dials a host and wraps it in an adapter connection.
func Connect(opts adapter.Options) (*adapter.Conn, error) {
	b, err := Dial(opts)
	if err != nil {
		return nil, err
	}
	return adapter.Connect(b, opts)
}
