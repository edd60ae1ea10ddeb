// Package driver implements a database/sql/driver over the sqlbridge
// adapter, so code written against database/sql (or sqlx) can use an
// embedded engine that is only reachable through a synchronous
// request/response bridge.
//
// Usage:
//
//  1. Import the driver package. This registers the driver with the name
//     "sqlbridge".
//     import _ "github.com/tomyedwab/sqlbridge/driver"
//
//  2. Open a pool with a DSN. The DSN is a database path, optionally
//     prefixed with "sqlbridge://", followed by query options:
//
//     db, err := sql.Open("sqlbridge", "/var/lib/app.db?timeout=2000&transaction_mode=immediate")
//
//     Or, with sqlx and a ping:
//
//     db, err := driver.Connect(":memory:")
//
//  3. Use the pool as usual. Statements prepared through database/sql are
//     compiled on the engine the first time they run and released when the
//     statement is closed. DDL releases every compiled statement on the
//     connection first; they recompile transparently on next use.
//
// Recognised DSN options are database, readonly, timeout,
// setup_regexp_function, integer_booleans, foreign_keys,
// transaction_mode and max_connections. Unknown options are rejected.
//
// In-memory databases live and die with their connection, so a pool opened
// on ":memory:" is capped at one connection.
//
// Decoded values reach database/sql as driver values: dates and timestamps
// as time.Time, booleans as bool, time-of-day and decimal columns as their
// text form. Date and timestamp columns decode by the engine's declared
// type even when the query carries no backtick-quoted table. Engine errors are *adapter.Error values and work with the
// adapter.Is* predicates.
//
// Implemented Interfaces:
//
// The driver implements driver.Driver, driver.DriverContext,
// driver.Connector, driver.Conn, driver.ConnPrepareContext,
// driver.ConnBeginTx, driver.ExecerContext, driver.QueryerContext,
// driver.Pinger, driver.Validator, driver.NamedValueChecker, driver.Stmt,
// driver.StmtExecContext, driver.StmtQueryContext, driver.Tx,
// driver.Result, driver.Rows and driver.RowsColumnTypeDatabaseTypeName.
//
// Limitations:
//
//   - Bridge calls are synchronous. A context is checked before a call
//     starts but cannot interrupt one in flight.
//   - Isolation levels other than the default and serializable are
//     rejected.
package driver
