package models

import (
	"errors"
	"fmt"

	"github.com/omniql-engine/x8ql/engine/accessor"
	"github.com/omniql-engine/x8ql/engine/ast"
	"github.com/omniql-engine/x8ql/mapping"
)

var (
	// ErrInvalidStatement is returned when a statement cannot be lowered
	// into a Query.
	ErrInvalidStatement = errors.New("invalid statement")
	// ErrNotSupported is returned by builders for constructs a backend
	// cannot express.
	ErrNotSupported = errors.New("not supported")
)

// DefaultKeyField is read from a PUT value when the statement has no key.
const DefaultKeyField = "id"

// ============================================================================
// QUERY - Statement lowered for a backend translator
// ============================================================================

// Query is a single statement with every clause resolved. Parameters must
// be bound before a Query is built.
type Query struct {
	Operation  string // query, get, count, put, update, delete
	Collection string

	Select  *ast.Select  // nil selects whole items
	Where   ast.Expr     // nil matches every item
	OrderBy *ast.OrderBy // nil keeps storage order
	Limit   *int64
	Offset  *int64

	Update *ast.Update // UPDATE only
	Value  any         // PUT only
	Key    any         // GET, PUT, DELETE by key
}

// HasKey reports whether the query addresses a single item by key.
func (q *Query) HasKey() bool {
	return q.Key != nil
}

// KeyString renders the key the way backends store it.
func (q *Query) KeyString() string {
	switch k := q.Key.(type) {
	case nil:
		return ""
	case string:
		return k
	default:
		return fmt.Sprint(k)
	}
}

// ============================================================================
// FROM AST
// ============================================================================

// FromOperation lowers a parsed statement. BATCH and TRANSACT are rejected;
// use FromStatements on their nested operations.
func FromOperation(op *ast.Operation) (*Query, error) {
	if op == nil {
		return nil, fmt.Errorf("%w: empty statement", ErrInvalidStatement)
	}
	if mapping.IsMultiStatement(op.Name) {
		return nil, fmt.Errorf("%w: %s holds nested statements", ErrInvalidStatement, op.Name)
	}
	if _, ok := mapping.OperationGroups[op.Name]; !ok {
		return nil, fmt.Errorf("%w: unknown verb %q", ErrInvalidStatement, op.Name)
	}

	q := &Query{Operation: op.Name}
	for key, node := range op.Args {
		if node == nil {
			continue
		}
		if p, ok := node.(*ast.Parameter); ok {
			return nil, fmt.Errorf("%w: %s: unbound parameter %s", ErrInvalidStatement, key, p)
		}
		if err := q.setClause(key, node); err != nil {
			return nil, err
		}
	}

	if err := q.Validate(); err != nil {
		return nil, err
	}
	return q, nil
}

// FromStatements lowers every nested operation of a BATCH or TRANSACT.
func FromStatements(op *ast.Operation) ([]*Query, error) {
	stmts, ok := op.Nested()
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a multi statement", ErrInvalidStatement, op.Name)
	}
	out := make([]*Query, 0, len(stmts.Operations))
	for i, child := range stmts.Operations {
		q, err := FromOperation(child)
		if err != nil {
			return nil, fmt.Errorf("statement %d: %w", i+1, err)
		}
		out = append(out, q)
	}
	return out, nil
}

func (q *Query) setClause(key string, node ast.Node) error {
	switch key {
	case "collection":
		switch n := node.(type) {
		case *ast.Collection:
			q.Collection = n.Name
		case *ast.Literal:
			s, ok := n.Value.(string)
			if !ok {
				return fmt.Errorf("%w: collection must be a name, got %s", ErrInvalidStatement, n)
			}
			q.Collection = s
		default:
			return fmt.Errorf("%w: collection must be a name, got %s", ErrInvalidStatement, node)
		}
	case "select":
		sel, ok := node.(*ast.Select)
		if !ok {
			return fmt.Errorf("%w: select: unexpected %s", ErrInvalidStatement, node)
		}
		q.Select = sel
	case "where":
		expr, ok := node.(ast.Expr)
		if !ok {
			return fmt.Errorf("%w: where: unexpected %s", ErrInvalidStatement, node)
		}
		q.Where = expr
	case "order_by":
		ob, ok := node.(*ast.OrderBy)
		if !ok {
			return fmt.Errorf("%w: order by: unexpected %s", ErrInvalidStatement, node)
		}
		q.OrderBy = ob
	case "set":
		upd, ok := node.(*ast.Update)
		if !ok {
			return fmt.Errorf("%w: set: unexpected %s", ErrInvalidStatement, node)
		}
		q.Update = upd
	case "limit", "offset":
		n, err := count(key, node)
		if err != nil {
			return err
		}
		if key == "limit" {
			q.Limit = n
		} else {
			q.Offset = n
		}
	case "value":
		lit, ok := node.(*ast.Literal)
		if !ok {
			return fmt.Errorf("%w: value must be a literal, got %s", ErrInvalidStatement, node)
		}
		q.Value = lit.Value
	case "key":
		switch n := node.(type) {
		case *ast.Literal:
			q.Key = n.Value
		case *ast.Field:
			// bare identifiers: `get collection users key alice`
			q.Key = n.Path
		default:
			return fmt.Errorf("%w: key must be a literal, got %s", ErrInvalidStatement, node)
		}
	case "search", "rank_by":
		return fmt.Errorf("%w: %s clause", ErrNotSupported, key)
	default:
		return fmt.Errorf("%w: unknown clause %q for %s", ErrInvalidStatement, key, q.Operation)
	}
	return nil
}

func count(key string, node ast.Node) (*int64, error) {
	lit, ok := node.(*ast.Literal)
	if !ok {
		return nil, fmt.Errorf("%w: %s must be a number, got %s", ErrInvalidStatement, key, node)
	}
	n, ok := accessor.ToInt(lit.Value)
	if !ok || n < 0 {
		return nil, fmt.Errorf("%w: %s must be a non-negative integer, got %s", ErrInvalidStatement, key, node)
	}
	v := int64(n)
	return &v, nil
}

// Validate enforces the clauses each verb requires. A PUT without a key
// takes it from the value.
func (q *Query) Validate() error {
	if q.Collection == "" {
		return fmt.Errorf("%w: %s needs a collection", ErrInvalidStatement, q.Operation)
	}
	switch q.Operation {
	case mapping.VerbGet:
		if q.Key == nil {
			return fmt.Errorf("%w: get needs a key", ErrInvalidStatement)
		}
	case mapping.VerbPut:
		if q.Value == nil {
			return fmt.Errorf("%w: put needs a value", ErrInvalidStatement)
		}
		if q.Key == nil {
			key, ok := accessor.Lookup(q.Value, DefaultKeyField)
			if !ok || key == nil {
				return fmt.Errorf("%w: put needs a key or a value with %q", ErrInvalidStatement, DefaultKeyField)
			}
			q.Key = key
		}
	case mapping.VerbUpdate:
		if q.Update == nil || len(q.Update.Operations) == 0 {
			return fmt.Errorf("%w: update needs a set clause", ErrInvalidStatement)
		}
	}
	return nil
}

// ============================================================================
// TO AST
// ============================================================================

// ToOperation rebuilds the statement the query was lowered from.
func (q *Query) ToOperation() *ast.Operation {
	op := &ast.Operation{Name: q.Operation, Args: map[string]ast.Node{}}
	if q.Collection != "" {
		op.Args["collection"] = &ast.Collection{Name: q.Collection}
	}
	if !q.Select.IsEmpty() {
		op.Args["select"] = q.Select
	}
	if q.Where != nil {
		op.Args["where"] = q.Where
	}
	if q.OrderBy != nil && len(q.OrderBy.Terms) > 0 {
		op.Args["order_by"] = q.OrderBy
	}
	if q.Update != nil {
		op.Args["set"] = q.Update
	}
	if q.Limit != nil {
		op.Args["limit"] = &ast.Literal{Value: *q.Limit}
	}
	if q.Offset != nil {
		op.Args["offset"] = &ast.Literal{Value: *q.Offset}
	}
	if q.Value != nil {
		op.Args["value"] = &ast.Literal{Value: q.Value}
	}
	if q.Key != nil && !q.keyFromValue() {
		op.Args["key"] = &ast.Literal{Value: q.Key}
	}
	return op
}

// keyFromValue reports whether a PUT key is the value's own id.
func (q *Query) keyFromValue() bool {
	if q.Operation != mapping.VerbPut {
		return false
	}
	id, ok := accessor.Lookup(q.Value, DefaultKeyField)
	return ok && accessor.Equal(id, q.Key)
}
