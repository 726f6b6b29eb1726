package sql

// SQLiteGrammar renders SQL for SQLite: double-quoted identifiers, "?"
// placeholders, and a last-insert-id strategy for generated keys.
type SQLiteGrammar struct {
	grammar
}

// NewSQLite returns the SQLite grammar.
func NewSQLite() *SQLiteGrammar {
	return &SQLiteGrammar{grammar{name: "sqlite", quote: `"`}}
}

var _ Grammar = (*SQLiteGrammar)(nil)
