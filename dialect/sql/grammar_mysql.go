package sql

// MySQLGrammar renders SQL for MySQL/MariaDB: backtick-quoted identifiers,
// "?" placeholders, and a last-insert-id strategy for generated keys.
type MySQLGrammar struct {
	grammar
}

// NewMySQL returns the MySQL grammar.
func NewMySQL() *MySQLGrammar {
	return &MySQLGrammar{grammar{name: "mysql", quote: "`"}}
}

// CompileInsert renders an INSERT. MySQL has no DEFAULT VALUES clause;
// the all-defaults form is an empty column and value list.
func (g *MySQLGrammar) CompileInsert(table string, rows []map[string]any, returning string) (string, []any) {
	if emptyInsert(rows) {
		return "INSERT INTO " + g.WrapTable(table) + " () VALUES ()", nil
	}
	return g.compileInsert(table, rows, returning)
}

var _ Grammar = (*MySQLGrammar)(nil)
