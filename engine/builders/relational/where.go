package relational

import (
	"fmt"

	"github.com/omniql-engine/x8ql/engine/accessor"
	"github.com/omniql-engine/x8ql/engine/ast"
	"github.com/omniql-engine/x8ql/engine/models"
	"github.com/omniql-engine/x8ql/engine/processor"
	"github.com/omniql-engine/x8ql/mapping"
)

// funcArity is the positional arity of the builtins SQL can express.
var funcArity = map[string]int{
	mapping.FuncExists:           0,
	mapping.FuncNotExists:        0,
	mapping.FuncIsDefined:        1,
	mapping.FuncIsNotDefined:     1,
	mapping.FuncIsType:           2,
	mapping.FuncLength:           1,
	mapping.FuncContains:         2,
	mapping.FuncStartsWith:       2,
	mapping.FuncEndsWith:         2,
	mapping.FuncArrayLength:      1,
	mapping.FuncArrayContains:    2,
	mapping.FuncArrayContainsAny: 2,
	mapping.FuncRandom:           0,
	mapping.FuncNow:              0,
}

type compiler struct {
	d      Dialect
	column string
	folder *processor.Processor
}

func newCompiler(d Dialect, t Table) *compiler {
	return &compiler{d: d, column: d.Quote(t.Value), folder: processor.New()}
}

func (c *compiler) path(field string) Path {
	return Path{Column: c.column, Segments: accessor.SplitPath(field)}
}

// Where compiles a condition. The result is never NULL.
func Where(d Dialect, t Table, expr ast.Expr) (Frag, error) {
	return newCompiler(d, t).cond(expr)
}

func (c *compiler) cond(expr ast.Expr) (Frag, error) {
	switch e := expr.(type) {
	case nil:
		return Raw("TRUE"), nil
	case *ast.Literal:
		return boolean(processor.Truthy(e.Value)), nil
	case *ast.And:
		return c.binary(e.Left, "AND", e.Right)
	case *ast.Or:
		return c.binary(e.Left, "OR", e.Right)
	case *ast.Not:
		inner, err := c.cond(e.Expr)
		if err != nil {
			return Frag{}, err
		}
		return F("(NOT %s)", inner), nil
	case *ast.Comparison:
		return c.comparison(e)
	case *ast.Function:
		return c.function(e)
	case *ast.Parameter:
		return Frag{}, fmt.Errorf("%w: unbound parameter %s", models.ErrInvalidStatement, e)
	case *ast.Field, *ast.List, *ast.Ref, *ast.GeoPoint:
		return Frag{}, fmt.Errorf("%w: %s as a condition", models.ErrNotSupported, e)
	default:
		panic(fmt.Sprintf("relational: unknown expression %T", expr))
	}
}

func (c *compiler) binary(left ast.Expr, op string, right ast.Expr) (Frag, error) {
	l, err := c.cond(left)
	if err != nil {
		return Frag{}, err
	}
	r, err := c.cond(right)
	if err != nil {
		return Frag{}, err
	}
	return F("(%s "+op+" %s)", l, r), nil
}

func boolean(b bool) Frag {
	if b {
		return Raw("TRUE")
	}
	return Raw("FALSE")
}

func coalesce(f Frag) Frag {
	return F("COALESCE(%s, FALSE)", f)
}

// constant returns the value of a literal or a list of literals.
func constant(e ast.Expr) (any, bool) {
	switch n := e.(type) {
	case *ast.Literal:
		return n.Value, true
	case *ast.List:
		out := make([]any, len(n.Items))
		for i, it := range n.Items {
			v, ok := constant(it)
			if !ok {
				return nil, false
			}
			out[i] = v
		}
		return out, true
	}
	return nil, false
}

func (c *compiler) comparison(cmp *ast.Comparison) (Frag, error) {
	_, lconst := constant(cmp.Left)
	rv, rconst := constant(cmp.Right)
	if lconst && rconst {
		v, err := c.folder.Eval(nil, cmp)
		if err != nil {
			return Frag{}, err
		}
		return boolean(processor.Truthy(v)), nil
	}
	if lconst {
		rev := cmp.Reversed()
		if rev == nil {
			return Frag{}, fmt.Errorf("%w: constant on the left of %s", models.ErrNotSupported, cmp.Op)
		}
		cmp = rev
		rv, rconst = constant(cmp.Right)
	}
	if !rconst {
		return Frag{}, fmt.Errorf("%w: comparing %s with %s", models.ErrNotSupported, cmp.Left, cmp.Right)
	}

	switch cmp.Op {
	case mapping.OpEQ, mapping.OpLT, mapping.OpLTE, mapping.OpGT, mapping.OpGTE:
		return c.leaf(cmp.Left, cmp.Op, rv)
	case mapping.OpNE:
		eq, err := c.leaf(cmp.Left, mapping.OpEQ, rv)
		if err != nil {
			return Frag{}, err
		}
		return F("(NOT %s)", eq), nil
	case mapping.OpBetween:
		bounds, ok := accessor.Items(rv)
		if !ok || len(bounds) != 2 {
			return Frag{}, fmt.Errorf("%w: between needs two bounds, got %s", models.ErrInvalidStatement, cmp.Right)
		}
		lo, err := c.leaf(cmp.Left, mapping.OpGTE, bounds[0])
		if err != nil {
			return Frag{}, err
		}
		hi, err := c.leaf(cmp.Left, mapping.OpLTE, bounds[1])
		if err != nil {
			return Frag{}, err
		}
		return F("(%s AND %s)", lo, hi), nil
	case mapping.OpIn, mapping.OpNotIn:
		items, ok := accessor.Items(rv)
		if !ok {
			return Frag{}, fmt.Errorf("%w: %s needs a list, got %s", models.ErrInvalidStatement, cmp.Op, cmp.Right)
		}
		in, err := c.anyOf(items, func(v any) (Frag, error) { return c.leaf(cmp.Left, mapping.OpEQ, v) })
		if err != nil {
			return Frag{}, err
		}
		if cmp.Op == mapping.OpNotIn {
			return F("(NOT %s)", in), nil
		}
		return in, nil
	case mapping.OpLike:
		field, ok := cmp.Left.(*ast.Field)
		if !ok {
			return Frag{}, fmt.Errorf("%w: like on %s", models.ErrNotSupported, cmp.Left)
		}
		pattern, ok := rv.(string)
		if !ok {
			return Raw("FALSE"), nil
		}
		return coalesce(c.d.Regexp(c.path(field.Path), "^(?:"+pattern+")")), nil
	}
	return Frag{}, fmt.Errorf("%w: operator %q", models.ErrNotSupported, cmp.Op)
}

func (c *compiler) anyOf(items []any, each func(any) (Frag, error)) (Frag, error) {
	if len(items) == 0 {
		return Raw("FALSE"), nil
	}
	parts := make([]Frag, 0, len(items))
	for _, it := range items {
		f, err := each(it)
		if err != nil {
			return Frag{}, err
		}
		parts = append(parts, f)
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return F("(%s)", Join(parts, " OR ")), nil
}

// leaf compares a field or scalar function with a constant.
func (c *compiler) leaf(left ast.Expr, op string, v any) (Frag, error) {
	vt := valueType(v)
	ordering := op != mapping.OpEQ
	if ordering && vt != mapping.TypeNumber && vt != mapping.TypeString {
		return Raw("FALSE"), nil
	}

	switch l := left.(type) {
	case *ast.Field:
		f, err := c.d.Compare(c.path(l.Path), op, v)
		if err != nil {
			return Frag{}, err
		}
		return coalesce(f), nil
	case *ast.Function:
		expr, typ, err := c.scalar(l)
		if err != nil {
			return Frag{}, err
		}
		if typ != vt {
			return Raw("FALSE"), nil
		}
		return coalesce(F("%s "+op+" %s", expr, scalarArg(v))), nil
	}
	return Frag{}, fmt.Errorf("%w: comparing %s", models.ErrNotSupported, left)
}

func scalarArg(v any) any {
	if f, ok := accessor.ToFloat(v); ok {
		if i, isInt := accessor.ToInt(v); isInt {
			return Arg(int64(i))
		}
		return Arg(f)
	}
	return Arg(v)
}

// scalar renders a value producing builtin and its QL type.
func (c *compiler) scalar(fn *ast.Function) (string, string, error) {
	if err := c.checkCall(fn); err != nil {
		return "", "", err
	}
	switch fn.Name {
	case mapping.FuncLength, mapping.FuncArrayLength:
		field, ok := fn.Args[0].(*ast.Field)
		if !ok {
			return "", "", fmt.Errorf("%w: %s of %s", models.ErrNotSupported, fn.Name, fn.Args[0])
		}
		if fn.Name == mapping.FuncLength {
			return c.d.Length(c.path(field.Path)), mapping.TypeNumber, nil
		}
		return c.d.ArrayLength(c.path(field.Path)), mapping.TypeNumber, nil
	case mapping.FuncRandom:
		return c.d.Random(), mapping.TypeNumber, nil
	case mapping.FuncNow:
		return c.d.Now(), mapping.TypeString, nil
	}
	return "", "", fmt.Errorf("%w: %s as a value", models.ErrNotSupported, fn.Name)
}

func (c *compiler) checkCall(fn *ast.Function) error {
	if !fn.IsBuiltin() {
		return fmt.Errorf("%w: function %s.%s", models.ErrNotSupported, fn.Namespace, fn.Name)
	}
	arity, ok := funcArity[fn.Name]
	if !ok {
		return fmt.Errorf("%w: function %s", models.ErrNotSupported, fn.Name)
	}
	if len(fn.NamedArgs) > 0 || len(fn.Args) != arity {
		return fmt.Errorf("%w: %s takes %d argument(s)", models.ErrInvalidStatement, fn.Name, arity)
	}
	return nil
}

// function renders a builtin used as a condition.
func (c *compiler) function(fn *ast.Function) (Frag, error) {
	if err := c.checkCall(fn); err != nil {
		return Frag{}, err
	}

	switch fn.Name {
	case mapping.FuncExists:
		return Raw("TRUE"), nil
	case mapping.FuncNotExists:
		return Raw("FALSE"), nil
	case mapping.FuncLength, mapping.FuncArrayLength, mapping.FuncRandom, mapping.FuncNow:
		expr, typ, err := c.scalar(fn)
		if err != nil {
			return Frag{}, err
		}
		if typ == mapping.TypeString {
			return Raw("TRUE"), nil
		}
		return coalesce(Raw(expr + " <> 0")), nil
	}

	field, ok := fn.Args[0].(*ast.Field)
	if !ok {
		return Frag{}, fmt.Errorf("%w: %s of %s", models.ErrNotSupported, fn.Name, fn.Args[0])
	}
	p := c.path(field.Path)

	var arg any
	if len(fn.Args) > 1 {
		v, ok := constant(fn.Args[1])
		if !ok {
			return Frag{}, fmt.Errorf("%w: %s with argument %s", models.ErrNotSupported, fn.Name, fn.Args[1])
		}
		arg = v
	}

	switch fn.Name {
	case mapping.FuncIsDefined:
		return Raw(c.d.TypeOf(p) + " IS NOT NULL"), nil
	case mapping.FuncIsNotDefined:
		return Raw(c.d.TypeOf(p) + " IS NULL"), nil
	case mapping.FuncIsType:
		name, ok := arg.(string)
		if !ok || !mapping.IsValueType(name) {
			return Frag{}, fmt.Errorf("%w: is_type expects one of %v, got %s", models.ErrInvalidStatement, mapping.ValueTypes, fn.Args[1])
		}
		return coalesce(Raw(TypeGuard(c.d, c.d.TypeOf(p), name))), nil
	case mapping.FuncContains, mapping.FuncStartsWith, mapping.FuncEndsWith:
		needle, ok := arg.(string)
		if !ok {
			return Raw("FALSE"), nil
		}
		return coalesce(c.d.StringFunc(fn.Name, p, needle)), nil
	case mapping.FuncArrayContains:
		f, err := c.d.ArrayContains(p, arg)
		if err != nil {
			return Frag{}, err
		}
		return coalesce(f), nil
	case mapping.FuncArrayContainsAny:
		candidates, ok := accessor.Items(arg)
		if !ok {
			return Raw("FALSE"), nil
		}
		return c.anyOf(candidates, func(v any) (Frag, error) {
			f, err := c.d.ArrayContains(p, v)
			if err != nil {
				return Frag{}, err
			}
			return coalesce(f), nil
		})
	}
	return Frag{}, fmt.Errorf("%w: function %s", models.ErrNotSupported, fn.Name)
}
