package ast

import "fmt"

// Clone returns a deep copy of node. The copy shares nothing mutable with
// the original, literal containers included.
func Clone(node Node) Node {
	if node == nil {
		return nil
	}
	switch n := node.(type) {
	case Expr:
		return CloneExpr(n)
	case *Select:
		if n == nil {
			return (*Select)(nil)
		}
		return &Select{Terms: append([]SelectTerm(nil), n.Terms...)}
	case *Collection:
		c := *n
		return &c
	case *OrderBy:
		return &OrderBy{Terms: append([]OrderByTerm(nil), n.Terms...)}
	case *Update:
		return cloneUpdate(n)
	case *Operation:
		return cloneOperation(n)
	case *Statements:
		ops := make([]*Operation, len(n.Operations))
		for i, op := range n.Operations {
			ops[i] = cloneOperation(op)
		}
		return &Statements{Operations: ops}
	default:
		panic(fmt.Sprintf("ast: clone of unknown node %T", node))
	}
}

// CloneExpr returns a deep copy of an expression.
func CloneExpr(e Expr) Expr {
	if e == nil {
		return nil
	}
	switch n := e.(type) {
	case *Literal:
		return &Literal{Value: copyValue(n.Value)}
	case *List:
		return &List{Items: cloneExprs(n.Items)}
	case *Field:
		f := *n
		return &f
	case *Parameter:
		p := *n
		return &p
	case *Ref:
		r := *n
		return &r
	case *GeoPoint:
		g := *n
		return &g
	case *Function:
		fn := &Function{Namespace: n.Namespace, Name: n.Name, Args: cloneExprs(n.Args)}
		if n.NamedArgs != nil {
			fn.NamedArgs = make([]NamedArg, len(n.NamedArgs))
			for i, a := range n.NamedArgs {
				fn.NamedArgs[i] = NamedArg{Name: a.Name, Value: CloneExpr(a.Value)}
			}
		}
		return fn
	case *Comparison:
		return &Comparison{Left: CloneExpr(n.Left), Op: n.Op, Right: CloneExpr(n.Right)}
	case *And:
		return &And{Left: CloneExpr(n.Left), Right: CloneExpr(n.Right)}
	case *Or:
		return &Or{Left: CloneExpr(n.Left), Right: CloneExpr(n.Right)}
	case *Not:
		return &Not{Expr: CloneExpr(n.Expr)}
	default:
		panic(fmt.Sprintf("ast: clone of unknown expression %T", e))
	}
}

func cloneExprs(exprs []Expr) []Expr {
	if exprs == nil {
		return nil
	}
	out := make([]Expr, len(exprs))
	for i, e := range exprs {
		out[i] = CloneExpr(e)
	}
	return out
}

func cloneUpdate(u *Update) *Update {
	ops := make([]UpdateOperation, len(u.Operations))
	for i, op := range u.Operations {
		ops[i] = UpdateOperation{Field: op.Field, Op: op.Op, Args: cloneExprs(op.Args)}
	}
	return &Update{Operations: ops}
}

func cloneOperation(o *Operation) *Operation {
	if o == nil {
		return nil
	}
	args := make(map[string]Node, len(o.Args))
	for k, v := range o.Args {
		args[k] = Clone(v)
	}
	return &Operation{Name: o.Name, Args: args}
}
