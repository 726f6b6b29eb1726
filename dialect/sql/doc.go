// Package sql provides the database/sql-backed storage adapter of the
// engine, together with the clause model, the fluent query Builder and
// the per-dialect grammars that render builder state into SQL text and
// ordered bindings.
//
// The Builder accumulates query state and performs no I/O. A Grammar is
// a stateless strategy: the same builder state always renders identical
// SQL, and the placeholder order in the compiled SQL matches the
// returned binding list exactly.
package sql
