// Package binder replaces `@name` parameters in a parsed tree with values.
package binder

import (
	"errors"
	"fmt"

	"github.com/omniql-engine/x8ql/engine/ast"
)

// ErrParameterNotFound is returned when a tree references a parameter that
// is missing from the bound values.
var ErrParameterNotFound = errors.New("parameter not found")

// Bind returns a copy of node with every Parameter replaced by the matching
// entry of params. A value that is itself a node is spliced in as is,
// anything else becomes a Literal. With no params the input is returned
// unchanged.
func Bind(node ast.Node, params map[string]any) (ast.Node, error) {
	if len(params) == 0 || node == nil {
		return node, nil
	}
	b := binder{params: params}
	return b.node(node)
}

// BindExpr is Bind for expression positions.
func BindExpr(expr ast.Expr, params map[string]any) (ast.Expr, error) {
	if len(params) == 0 || expr == nil {
		return expr, nil
	}
	b := binder{params: params}
	return b.expr(expr)
}

// BindOperation is Bind for statements.
func BindOperation(op *ast.Operation, params map[string]any) (*ast.Operation, error) {
	if len(params) == 0 || op == nil {
		return op, nil
	}
	b := binder{params: params}
	return b.operation(op)
}

type binder struct {
	params map[string]any
}

func (b binder) lookup(name string) (ast.Node, error) {
	v, ok := b.params[name]
	if !ok {
		return nil, fmt.Errorf("%w: @%s", ErrParameterNotFound, name)
	}
	if n, ok := v.(ast.Node); ok {
		return ast.Clone(n), nil
	}
	return &ast.Literal{Value: v}, nil
}

func (b binder) node(node ast.Node) (ast.Node, error) {
	switch n := node.(type) {
	case *ast.Parameter:
		return b.lookup(n.Name)
	case ast.Expr:
		return b.expr(n)
	case *ast.Select, *ast.Collection, *ast.OrderBy:
		return ast.Clone(n), nil
	case *ast.Update:
		return b.update(n)
	case *ast.Operation:
		return b.operation(n)
	case *ast.Statements:
		out := &ast.Statements{Operations: make([]*ast.Operation, len(n.Operations))}
		for i, op := range n.Operations {
			bound, err := b.operation(op)
			if err != nil {
				return nil, err
			}
			out.Operations[i] = bound
		}
		return out, nil
	default:
		panic(fmt.Sprintf("binder: unknown node %T", node))
	}
}

func (b binder) expr(expr ast.Expr) (ast.Expr, error) {
	switch e := expr.(type) {
	case *ast.Parameter:
		n, err := b.lookup(e.Name)
		if err != nil {
			return nil, err
		}
		bound, ok := n.(ast.Expr)
		if !ok {
			return nil, fmt.Errorf("parameter @%s: %T cannot be used as an expression", e.Name, n)
		}
		return bound, nil
	case *ast.Literal, *ast.Field, *ast.Ref, *ast.GeoPoint:
		return ast.CloneExpr(e), nil
	case *ast.List:
		items, err := b.exprs(e.Items)
		if err != nil {
			return nil, err
		}
		return &ast.List{Items: items}, nil
	case *ast.Function:
		fn := &ast.Function{Namespace: e.Namespace, Name: e.Name}
		args, err := b.exprs(e.Args)
		if err != nil {
			return nil, err
		}
		fn.Args = args
		if e.NamedArgs != nil {
			fn.NamedArgs = make([]ast.NamedArg, len(e.NamedArgs))
			for i, a := range e.NamedArgs {
				v, err := b.expr(a.Value)
				if err != nil {
					return nil, err
				}
				fn.NamedArgs[i] = ast.NamedArg{Name: a.Name, Value: v}
			}
		}
		return fn, nil
	case *ast.Comparison:
		left, err := b.expr(e.Left)
		if err != nil {
			return nil, err
		}
		right, err := b.expr(e.Right)
		if err != nil {
			return nil, err
		}
		return &ast.Comparison{Left: left, Op: e.Op, Right: right}, nil
	case *ast.And:
		left, right, err := b.pair(e.Left, e.Right)
		if err != nil {
			return nil, err
		}
		return &ast.And{Left: left, Right: right}, nil
	case *ast.Or:
		left, right, err := b.pair(e.Left, e.Right)
		if err != nil {
			return nil, err
		}
		return &ast.Or{Left: left, Right: right}, nil
	case *ast.Not:
		inner, err := b.expr(e.Expr)
		if err != nil {
			return nil, err
		}
		return &ast.Not{Expr: inner}, nil
	default:
		panic(fmt.Sprintf("binder: unknown expression %T", expr))
	}
}

func (b binder) pair(l, r ast.Expr) (ast.Expr, ast.Expr, error) {
	left, err := b.expr(l)
	if err != nil {
		return nil, nil, err
	}
	right, err := b.expr(r)
	if err != nil {
		return nil, nil, err
	}
	return left, right, nil
}

func (b binder) exprs(in []ast.Expr) ([]ast.Expr, error) {
	if in == nil {
		return nil, nil
	}
	out := make([]ast.Expr, len(in))
	for i, e := range in {
		bound, err := b.expr(e)
		if err != nil {
			return nil, err
		}
		out[i] = bound
	}
	return out, nil
}

func (b binder) update(u *ast.Update) (*ast.Update, error) {
	out := &ast.Update{Operations: make([]ast.UpdateOperation, len(u.Operations))}
	for i, op := range u.Operations {
		args, err := b.exprs(op.Args)
		if err != nil {
			return nil, err
		}
		out.Operations[i] = ast.UpdateOperation{Field: op.Field, Op: op.Op, Args: args}
	}
	return out, nil
}

func (b binder) operation(op *ast.Operation) (*ast.Operation, error) {
	out := &ast.Operation{Name: op.Name, Args: make(map[string]ast.Node, len(op.Args))}
	for key, arg := range op.Args {
		if arg == nil {
			out.Args[key] = nil
			continue
		}
		bound, err := b.node(arg)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		out.Args[key] = bound
	}
	return out, nil
}
