package dialect

import (
	"context"
	"log/slog"
)

// Supported dialect names. The name passed to sql.Open must start with
// one of these for the engine to pick the matching grammar.
const (
	SQLite   = "sqlite"
	Postgres = "postgres"
	MySQL    = "mysql"
)

// ExecQuerier wraps the two basic operations a storage connection supports.
// args is expected to be a []any, and v a type that matches the operation
// (*sql.Rows for Query, *sql.Result or nil for Exec).
type ExecQuerier interface {
	// Exec executes a statement that does not return rows.
	Exec(ctx context.Context, query string, args, v any) error
	// Query executes a statement that returns rows.
	Query(ctx context.Context, query string, args, v any) error
}

// Driver is the minimal interface the engine requires from a storage
// adapter. Implementations live in dialect/sql; custom adapters only
// need to satisfy this interface.
type Driver interface {
	ExecQuerier

	// Tx starts and returns a new transaction.
	Tx(ctx context.Context) (Tx, error)

	// Close closes the underlying connection.
	Close() error

	// Dialect returns the dialect name of the driver.
	Dialect() string
}

// Tx is a transaction-scoped driver.
type Tx interface {
	ExecQuerier
	Commit() error
	Rollback() error
}

// DebugDriver is a driver that logs all driver operations through slog.
type DebugDriver struct {
	Driver              // underlying driver.
	log    *slog.Logger // log function. defaults to slog.Default.
}

// Debug gets a driver and an optional logger, and returns
// a new debugged-driver that prints all outgoing operations.
func Debug(d Driver, logger ...*slog.Logger) Driver {
	drv := &DebugDriver{Driver: d, log: slog.Default()}
	if len(logger) == 1 {
		drv.log = logger[0]
	}
	return drv
}

// Exec logs its params and calls the underlying driver Exec method.
func (d *DebugDriver) Exec(ctx context.Context, query string, args, v any) error {
	d.log.LogAttrs(ctx, slog.LevelDebug, "driver.Exec", slog.String("query", query), slog.Any("args", args))
	return d.Driver.Exec(ctx, query, args, v)
}

// Query logs its params and calls the underlying driver Query method.
func (d *DebugDriver) Query(ctx context.Context, query string, args, v any) error {
	d.log.LogAttrs(ctx, slog.LevelDebug, "driver.Query", slog.String("query", query), slog.Any("args", args))
	return d.Driver.Query(ctx, query, args, v)
}

// Tx adds a log-id for the transaction and calls the underlying driver Tx command.
func (d *DebugDriver) Tx(ctx context.Context) (Tx, error) {
	tx, err := d.Driver.Tx(ctx)
	if err != nil {
		return nil, err
	}
	d.log.LogAttrs(ctx, slog.LevelDebug, "driver.Tx", slog.String("op", "begin"))
	return &DebugTx{tx, d.log, ctx}, nil
}

// DebugTx is a transaction implementation that logs all transaction operations.
type DebugTx struct {
	Tx                // underlying transaction.
	log *slog.Logger  // log function. defaults to slog.Default.
	ctx context.Context //nolint:containedctx
}

// Exec logs its params and calls the underlying transaction Exec method.
func (d *DebugTx) Exec(ctx context.Context, query string, args, v any) error {
	d.log.LogAttrs(ctx, slog.LevelDebug, "tx.Exec", slog.String("query", query), slog.Any("args", args))
	return d.Tx.Exec(ctx, query, args, v)
}

// Query logs its params and calls the underlying transaction Query method.
func (d *DebugTx) Query(ctx context.Context, query string, args, v any) error {
	d.log.LogAttrs(ctx, slog.LevelDebug, "tx.Query", slog.String("query", query), slog.Any("args", args))
	return d.Tx.Query(ctx, query, args, v)
}

// Commit logs this step and calls the underlying transaction Commit method.
func (d *DebugTx) Commit() error {
	d.log.LogAttrs(d.ctx, slog.LevelDebug, "tx.Commit")
	return d.Tx.Commit()
}

// Rollback logs this step and calls the underlying transaction Rollback method.
func (d *DebugTx) Rollback() error {
	d.log.LogAttrs(d.ctx, slog.LevelDebug, "tx.Rollback")
	return d.Tx.Rollback()
}
