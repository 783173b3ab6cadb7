package processor

import (
	"fmt"

	"github.com/omniql-engine/x8ql/engine/accessor"
	"github.com/omniql-engine/x8ql/engine/ast"
)

// ArgsFromOperation collects the query clauses of a parsed statement.
// Parameters must be bound beforehand.
func ArgsFromOperation(op *ast.Operation) (QueryArgs, error) {
	var args QueryArgs
	if op == nil {
		return args, nil
	}
	for key, node := range op.Args {
		if node == nil {
			continue
		}
		if param, ok := node.(*ast.Parameter); ok {
			return QueryArgs{}, fmt.Errorf("%s: %w: unbound parameter %s", key, ErrInvalidArgument, param)
		}
		var err error
		switch key {
		case "select":
			args.Select, err = clause[*ast.Select](key, node)
		case "where":
			args.Where, err = clause[ast.Expr](key, node)
		case "order_by":
			args.OrderBy, err = clause[*ast.OrderBy](key, node)
		case "limit":
			args.Limit, err = count(key, node)
		case "offset":
			args.Offset, err = count(key, node)
		}
		if err != nil {
			return QueryArgs{}, err
		}
	}
	return args, nil
}

func clause[T ast.Node](key string, node ast.Node) (T, error) {
	v, ok := node.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%s: %w: unexpected %s", key, ErrInvalidArgument, node)
	}
	return v, nil
}

func count(key string, node ast.Node) (*int64, error) {
	lit, ok := node.(*ast.Literal)
	if !ok {
		return nil, fmt.Errorf("%s: %w: expected a number, got %s", key, ErrInvalidArgument, node)
	}
	n, ok := accessor.ToInt(lit.Value)
	if !ok || n < 0 {
		return nil, fmt.Errorf("%s: %w: expected a non-negative integer, got %s", key, ErrInvalidArgument, node)
	}
	v := int64(n)
	return &v, nil
}

// QueryText runs a statement such as "query where a > 1 order by a limit 5".
func (p *Processor) QueryText(items []any, statement string) ([]any, error) {
	op, err := p.parser.ParseStatement(statement)
	if err != nil {
		return nil, err
	}
	args, err := ArgsFromOperation(op)
	if err != nil {
		return nil, err
	}
	return p.Query(items, args)
}

// FilterText is Filter with a where clause in QL text.
func (p *Processor) FilterText(items []any, where string) ([]any, error) {
	expr, err := p.parser.ParseWhere(where)
	if err != nil {
		return nil, err
	}
	return p.Filter(items, expr)
}

// CountText is Count with a where clause in QL text.
func (p *Processor) CountText(items []any, where string) (int, error) {
	expr, err := p.parser.ParseWhere(where)
	if err != nil {
		return 0, err
	}
	return p.Count(items, expr)
}

// UpdateText is UpdateItem with a set clause in QL text.
func (p *Processor) UpdateText(item any, set string) (any, error) {
	upd, err := p.parser.ParseUpdate(set)
	if err != nil {
		return nil, err
	}
	return p.UpdateItem(item, upd)
}

// EvalText evaluates an expression in QL text against item.
func (p *Processor) EvalText(item any, expr string) (any, error) {
	e, err := p.parser.ParseWhere(expr)
	if err != nil {
		return nil, err
	}
	return p.Eval(item, e)
}
