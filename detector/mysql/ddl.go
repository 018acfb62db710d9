package mysql

import (
	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/ast"
	_ "github.com/pingcap/tidb/pkg/parser/test_driver" // value expressions in column defaults need a driver
)

// ddlTables returns the schema-qualified tables a statement changes the
// layout of. Statements that change no table layout return nil with ok set.
// ok is false when the statement cannot be parsed or drops a whole schema;
// callers must then assume any table may have changed.
func ddlTables(defaultSchema, query string) (tables []string, ok bool) {
	stmts, _, err := parser.New().Parse(query, "", "")
	if err != nil {
		return nil, false
	}

	add := func(tn *ast.TableName) {
		if tn == nil {
			return
		}
		schema := tn.Schema.O
		if schema == "" {
			schema = defaultSchema
		}
		tables = append(tables, schema+"."+tn.Name.O)
	}

	for _, stmt := range stmts {
		switch s := stmt.(type) {
		case *ast.AlterTableStmt:
			add(s.Table)
			for _, spec := range s.Specs {
				// ALTER TABLE ... RENAME TO moves the layout to a new name.
				if spec.Tp == ast.AlterTableRenameTable {
					add(spec.NewTable)
				}
			}
		case *ast.CreateTableStmt:
			add(s.Table)
		case *ast.DropTableStmt:
			for _, tn := range s.Tables {
				add(tn)
			}
		case *ast.RenameTableStmt:
			for _, t2t := range s.TableToTables {
				add(t2t.OldTable)
				add(t2t.NewTable)
			}
		case *ast.TruncateTableStmt:
			add(s.Table)
		case *ast.CreateIndexStmt:
			add(s.Table)
		case *ast.DropIndexStmt:
			add(s.Table)
		case *ast.DropDatabaseStmt:
			return nil, false
		}
	}
	return tables, true
}
