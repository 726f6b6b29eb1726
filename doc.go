// Package quarry is a database-agnostic active-record engine. Models
// register table mappings, casting rules, relations and capabilities
// once at startup; records carry row state with dirty tracking; queries
// accumulate state through a fluent builder and are rendered by a
// per-dialect grammar only at execution time.
//
// The storage boundary is dialect.Driver, a minimal Exec/Query interface
// with implementations for SQLite, Postgres and MySQL in dialect/sql.
// Everything above it (builder, grammar, relations, lifecycle) performs
// no I/O of its own.
package quarry
