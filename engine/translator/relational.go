package translator

import (
	"fmt"
	"strings"

	"github.com/omniql-engine/x8ql/engine/ast"
	"github.com/omniql-engine/x8ql/engine/builders/relational"
	"github.com/omniql-engine/x8ql/engine/models"
	"github.com/omniql-engine/x8ql/mapping"
)

// RelationalQuery is a statement against a document table.
type RelationalQuery struct {
	Operation string
	Table     relational.Table
	Statement relational.Statement
	// Setup creates the table and its indexes. It is idempotent.
	Setup []relational.Statement
	// Select is applied by the caller to the decoded documents.
	Select *ast.Select
}

func (r *RelationalQuery) String() string {
	if len(r.Statement.Args) == 0 {
		return r.Statement.SQL
	}
	args := make([]string, len(r.Statement.Args))
	for i, a := range r.Statement.Args {
		args[i] = ast.RenderValue(a)
	}
	return r.Statement.SQL + " -- [" + strings.Join(args, ", ") + "]"
}

// ReturnsRows reports whether the statement is read with Query.
func (r *RelationalQuery) ReturnsRows() bool {
	switch r.Operation {
	case mapping.VerbQuery, mapping.VerbGet, mapping.VerbCount:
		return true
	}
	return false
}

func translateRelational(d relational.Dialect, q *models.Query, opts Options, setup ...string) (*RelationalQuery, error) {
	if q.Collection == "" {
		return nil, fmt.Errorf("%w: missing collection", models.ErrInvalidStatement)
	}
	t := relational.Table{
		Name:  opts.CollectionName(q.Collection),
		Key:   opts.KeyColumn,
		Value: opts.ValueColumn,
	}
	stmt, err := relational.Build(d, t, q)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d.Name(), err)
	}
	out := &RelationalQuery{
		Operation: q.Operation,
		Table:     t,
		Statement: stmt,
		Setup:     []relational.Statement{relational.CreateTable(d, t)},
	}
	for _, s := range setup {
		out.Setup = append(out.Setup, relational.Statement{SQL: s})
	}
	if q.Operation == mapping.VerbQuery || q.Operation == mapping.VerbGet {
		out.Select = q.Select
	}
	return out, nil
}
