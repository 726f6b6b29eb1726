// Package dialect defines the storage-adapter boundary of the quarry
// engine: the Driver and Tx interfaces every database adapter implements,
// and the dialect name constants used to select a grammar.
//
// The dialect/sql sub-package provides the database/sql-backed adapter,
// the clause model, the fluent query builder and the per-dialect grammars.
package dialect
