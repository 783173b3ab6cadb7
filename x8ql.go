// Package x8ql parses, binds and executes QL statements against in-memory
// collections, SQL databases, MongoDB and Redis.
package x8ql

import (
	"fmt"
	"strings"

	"github.com/omniql-engine/x8ql/engine/ast"
	"github.com/omniql-engine/x8ql/engine/binder"
	"github.com/omniql-engine/x8ql/engine/models"
	"github.com/omniql-engine/x8ql/engine/parser"
	"github.com/omniql-engine/x8ql/mapping"
)

// Prefix marks QL input in mixed native and QL streams.
const Prefix = ":"

// Parse handles QL statements with the : prefix.
// Returns:
//   - op: parsed statement (nil if not QL)
//   - isQL: true if input had the : prefix
//   - error: parsing error (nil if success or not QL)
func Parse(input string) (*ast.Operation, bool, error) {
	if !strings.HasPrefix(input, Prefix) {
		return nil, false, nil
	}
	op, err := parser.ParseStatement(strings.TrimPrefix(input, Prefix))
	if err != nil {
		return nil, true, err
	}
	return op, true, nil
}

// Statement is a parsed and bound statement ready to execute.
type Statement struct {
	// Verb is the statement verb; batch and transact hold Queries in order.
	Verb    string
	Queries []*models.Query
}

// IsMulti reports whether the statement is a BATCH or TRANSACT block.
func (s *Statement) IsMulti() bool {
	return mapping.IsMultiStatement(s.Verb)
}

func (s *Statement) String() string {
	parts := make([]string, len(s.Queries))
	for i, q := range s.Queries {
		parts[i] = q.ToOperation().String()
	}
	if !s.IsMulti() {
		return strings.Join(parts, "; ")
	}
	return strings.ToUpper(s.Verb) + " " + strings.Join(parts, "; ") + " END"
}

// Prepare parses text, binds params and lowers the result. Parses are
// memoized by parser.Default, so preparing the same text twice is cheap.
func Prepare(text string, params map[string]any) (*Statement, error) {
	op, err := parser.ParseStatement(strings.TrimPrefix(text, Prefix))
	if err != nil {
		return nil, err
	}
	return PrepareOperation(op, params)
}

// PrepareOperation binds and lowers an already parsed statement.
func PrepareOperation(op *ast.Operation, params map[string]any) (*Statement, error) {
	if op == nil {
		return nil, fmt.Errorf("%w: empty statement", models.ErrInvalidStatement)
	}
	bound, err := binder.BindOperation(op, params)
	if err != nil {
		return nil, err
	}
	stmt := &Statement{Verb: bound.Name}
	if mapping.IsMultiStatement(bound.Name) {
		if stmt.Queries, err = models.FromStatements(bound); err != nil {
			return nil, err
		}
		return stmt, nil
	}
	q, err := models.FromOperation(bound)
	if err != nil {
		return nil, err
	}
	stmt.Queries = []*models.Query{q}
	return stmt, nil
}
