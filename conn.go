package quarry

import (
	"context"
	"errors"
	"fmt"

	"github.com/quarrydb/quarry/dialect"
	"github.com/quarrydb/quarry/dialect/sql"
)

// txStarter is the subset of dialect.Driver a Conn needs to begin a
// transaction. It is nil on transaction-scoped connections.
type txStarter interface {
	Tx(ctx context.Context) (dialect.Tx, error)
}

// Conn is the storage-adapter handle the engine works through: a dialect
// driver plus the grammar matching its dialect. A Conn is set up once at
// startup and safe for concurrent use to the extent the underlying
// driver is; the engine adds no locking of its own.
type Conn struct {
	drv         dialect.ExecQuerier
	starter     txStarter
	grammar     sql.Grammar
	dialectName string
}

// Open opens a database connection for the given dialect name and DSN
// and returns a Conn rendered by the matching grammar. The dialect name
// doubles as the database/sql driver name.
func Open(dialectName, dsn string) (*Conn, error) {
	drv, err := sql.Open(dialectName, dsn)
	if err != nil {
		return nil, err
	}
	return NewConn(drv)
}

// NewConn wraps an existing dialect driver, picking the grammar from its
// dialect.
func NewConn(drv dialect.Driver) (*Conn, error) {
	g, err := sql.GrammarFor(drv.Dialect())
	if err != nil {
		return nil, err
	}
	return &Conn{drv: drv, starter: drv, grammar: g, dialectName: drv.Dialect()}, nil
}

// Grammar returns the dialect strategy for this connection.
func (c *Conn) Grammar() sql.Grammar { return c.grammar }

// Dialect returns the dialect name of the connection.
func (c *Conn) Dialect() string { return c.dialectName }

// Builder returns a fresh query builder for the given table, rendered by
// this connection's grammar.
func (c *Conn) Builder(table string) *sql.Builder {
	return sql.NewBuilder(c.grammar, table)
}

// Close closes the underlying driver. Transaction-scoped connections
// cannot be closed.
func (c *Conn) Close() error {
	if d, ok := c.drv.(dialect.Driver); ok {
		return d.Close()
	}
	return fmt.Errorf("quarry: cannot close a transaction-scoped connection")
}

// Query runs a SELECT and returns the rows as column-keyed maps.
func (c *Conn) Query(ctx context.Context, query string, args []any) ([]map[string]any, error) {
	rows := &sql.Rows{}
	if err := c.drv.Query(ctx, query, c.grammar.PrepareBindings(args), rows); err != nil {
		return nil, sql.ConvertError(c.dialectName, err)
	}
	out, err := sql.ScanMaps(rows)
	if err != nil {
		return nil, sql.ConvertError(c.dialectName, err)
	}
	return out, nil
}

// Exec runs a write statement and returns the affected row count.
func (c *Conn) Exec(ctx context.Context, query string, args []any) (int64, error) {
	var res sql.Result
	if err := c.drv.Exec(ctx, query, c.grammar.PrepareBindings(args), &res); err != nil {
		return 0, sql.ConvertError(c.dialectName, err)
	}
	return res.RowsAffected()
}

// Insert inserts one row and returns the generated identity when wantID
// is set. Dialects with RETURNING support fetch the key in the insert
// itself; the rest fall back to the driver's last-insert-id.
func (c *Conn) Insert(ctx context.Context, table string, values map[string]any, pk string, wantID bool) (any, error) {
	if wantID && c.grammar.SupportsReturning() {
		query, args := c.grammar.CompileInsert(table, []map[string]any{values}, pk)
		rows, err := c.Query(ctx, query, args)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, nil
		}
		return rows[0][pk], nil
	}
	query, args := c.grammar.CompileInsert(table, []map[string]any{values}, "")
	var res sql.Result
	if err := c.drv.Exec(ctx, query, c.grammar.PrepareBindings(args), &res); err != nil {
		return nil, sql.ConvertError(c.dialectName, err)
	}
	if !wantID {
		return nil, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		// Drivers without last-insert-id support still performed the write.
		return nil, nil
	}
	return id, nil
}

// Transaction runs fn inside a transaction-scoped connection. It commits
// on normal return and rolls back on error or panic, re-raising the
// original failure. A rollback failure is joined to the original error;
// a commit failure surfaces as *TxError.
func (c *Conn) Transaction(ctx context.Context, fn func(tx *Conn) error) (rerr error) {
	if c.starter == nil {
		return ErrTxStarted
	}
	tx, err := c.starter.Tx(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()
	txConn := &Conn{drv: tx, grammar: c.grammar, dialectName: c.dialectName}
	if err := fn(txConn); err != nil {
		if rberr := tx.Rollback(); rberr != nil {
			return errors.Join(err, rberr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return &TxError{Err: err}
	}
	return nil
}
