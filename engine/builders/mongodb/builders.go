// Package mongodb lowers QL clauses onto MongoDB filter, sort, projection
// and update documents.
package mongodb

import (
	"fmt"
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/omniql-engine/x8ql/engine/accessor"
	"github.com/omniql-engine/x8ql/engine/ast"
	"github.com/omniql-engine/x8ql/engine/models"
	"github.com/omniql-engine/x8ql/engine/processor"
	"github.com/omniql-engine/x8ql/mapping"
)

// KeyField holds the item key in every stored document.
const KeyField = "_id"

var (
	matchAll  = bson.D{}
	matchNone = bson.D{{Key: KeyField, Value: bson.D{{Key: "$exists", Value: false}}}}
)

// ============================================================================
// PATHS
// ============================================================================

// dotted converts an accessor path into MongoDB dot notation. The last
// element marker has no query language form.
func dotted(path string) (string, error) {
	segs := accessor.SplitPath(path)
	if len(segs) == 0 {
		return "", fmt.Errorf("%w: empty field path", models.ErrInvalidStatement)
	}
	for _, s := range segs {
		if s == accessor.Last {
			return "", fmt.Errorf("%w: %s on MongoDB", models.ErrNotSupported, path)
		}
	}
	return strings.Join(segs, "."), nil
}

// fieldRef is the aggregation expression of a field. Aggregation paths do
// not index lists, so index segments are rejected.
func fieldRef(path string) (string, error) {
	segs := accessor.SplitPath(path)
	for _, s := range segs {
		if s == accessor.Last || isNumeric(s) {
			return "", fmt.Errorf("%w: list index in %s inside an expression", models.ErrNotSupported, path)
		}
	}
	if len(segs) == 0 {
		return "", fmt.Errorf("%w: empty field path", models.ErrInvalidStatement)
	}
	return "$" + strings.Join(segs, "."), nil
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ============================================================================
// FILTER BUILDING
// ============================================================================

type filterBuilder struct {
	folder *processor.Processor
}

// BuildFilter lowers a where clause. A nil clause matches everything.
func BuildFilter(expr ast.Expr) (bson.D, error) {
	b := filterBuilder{folder: processor.New()}
	return b.filter(expr)
}

func (b filterBuilder) filter(expr ast.Expr) (bson.D, error) {
	switch e := expr.(type) {
	case nil:
		return matchAll, nil
	case *ast.Literal:
		if processor.Truthy(e.Value) {
			return matchAll, nil
		}
		return matchNone, nil
	case *ast.And:
		return b.logical("$and", e.Left, e.Right)
	case *ast.Or:
		return b.logical("$or", e.Left, e.Right)
	case *ast.Not:
		inner, err := b.filter(e.Expr)
		if err != nil {
			return nil, err
		}
		return nor(inner), nil
	case *ast.Comparison:
		return b.comparison(e)
	case *ast.Function:
		return b.function(e)
	case *ast.Parameter:
		return nil, fmt.Errorf("%w: unbound parameter %s", models.ErrInvalidStatement, e)
	case *ast.Field, *ast.List, *ast.Ref, *ast.GeoPoint:
		return nil, fmt.Errorf("%w: %s as a condition", models.ErrNotSupported, e)
	default:
		panic(fmt.Sprintf("mongodb: unknown expression %T", expr))
	}
}

func nor(f bson.D) bson.D {
	return bson.D{{Key: "$nor", Value: bson.A{f}}}
}

// logical flattens nested operators of the same kind.
func (b filterBuilder) logical(op string, left, right ast.Expr) (bson.D, error) {
	var parts bson.A
	for _, side := range []ast.Expr{left, right} {
		f, err := b.filter(side)
		if err != nil {
			return nil, err
		}
		if len(f) == 1 && f[0].Key == op {
			parts = append(parts, f[0].Value.(bson.A)...)
			continue
		}
		parts = append(parts, f)
	}
	return bson.D{{Key: op, Value: parts}}, nil
}

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

func (b filterBuilder) comparison(cmp *ast.Comparison) (bson.D, error) {
	_, lconst := constant(cmp.Left)
	rv, rconst := constant(cmp.Right)
	if lconst && rconst {
		v, err := b.folder.Eval(nil, cmp)
		if err != nil {
			return nil, err
		}
		if processor.Truthy(v) {
			return matchAll, nil
		}
		return matchNone, nil
	}
	if lconst {
		rev := cmp.Reversed()
		if rev == nil {
			return nil, fmt.Errorf("%w: constant on the left of %s", models.ErrNotSupported, cmp.Op)
		}
		cmp = rev
		rv, rconst = constant(cmp.Right)
	}
	if !rconst {
		return nil, fmt.Errorf("%w: comparing %s with %s", models.ErrNotSupported, cmp.Left, cmp.Right)
	}

	if fn, ok := cmp.Left.(*ast.Function); ok {
		return b.scalarComparison(fn, cmp.Op, rv)
	}
	field, ok := cmp.Left.(*ast.Field)
	if !ok {
		return nil, fmt.Errorf("%w: comparing %s", models.ErrNotSupported, cmp.Left)
	}
	path, err := dotted(field.Path)
	if err != nil {
		return nil, err
	}
	on := func(op string, v any) bson.D {
		return bson.D{{Key: path, Value: bson.D{{Key: op, Value: v}}}}
	}

	switch cmp.Op {
	case mapping.OpEQ:
		return equals(path, rv), nil
	case mapping.OpNE:
		return nor(equals(path, rv)), nil
	case mapping.OpLT, mapping.OpLTE, mapping.OpGT, mapping.OpGTE:
		native, _ := mapping.NativeOperator("MongoDB", cmp.Op)
		return on(native, rv), nil
	case mapping.OpBetween:
		bounds, ok := accessor.Items(rv)
		if !ok || len(bounds) != 2 {
			return nil, fmt.Errorf("%w: between needs two bounds, got %s", models.ErrInvalidStatement, cmp.Right)
		}
		return bson.D{{Key: path, Value: bson.D{
			{Key: "$gte", Value: bounds[0]},
			{Key: "$lte", Value: bounds[1]},
		}}}, nil
	case mapping.OpIn, mapping.OpNotIn:
		items, ok := accessor.Items(rv)
		if !ok {
			return nil, fmt.Errorf("%w: %s needs a list, got %s", models.ErrInvalidStatement, cmp.Op, cmp.Right)
		}
		in := on("$in", bson.A(items))
		if cmp.Op == mapping.OpNotIn {
			return nor(in), nil
		}
		return in, nil
	case mapping.OpLike:
		pattern, ok := rv.(string)
		if !ok {
			return matchNone, nil
		}
		return on("$regex", "^(?:"+pattern+")"), nil
	}
	return nil, fmt.Errorf("%w: operator %q", models.ErrNotSupported, cmp.Op)
}

// equals matches a present field. {a: null} alone would match missing
// fields too.
func equals(path string, v any) bson.D {
	if v == nil {
		return bson.D{{Key: path, Value: bson.D{
			{Key: "$exists", Value: true},
			{Key: "$eq", Value: nil},
		}}}
	}
	return bson.D{{Key: path, Value: bson.D{{Key: "$eq", Value: v}}}}
}

// scalarComparison compares a value producing builtin through $expr.
func (b filterBuilder) scalarComparison(fn *ast.Function, op string, v any) (bson.D, error) {
	expr, err := scalar(fn)
	if err != nil {
		return nil, err
	}
	var native string
	switch op {
	case mapping.OpEQ, mapping.OpNE, mapping.OpLT, mapping.OpLTE, mapping.OpGT, mapping.OpGTE:
		native, _ = mapping.NativeOperator("MongoDB", op)
	default:
		return nil, fmt.Errorf("%w: %s on %s", models.ErrNotSupported, op, fn.Name)
	}
	want := mapping.TypeNumber
	if fn.Name == mapping.FuncNow {
		want = mapping.TypeString
	}
	if typeOfConstant(v) != want {
		if op == mapping.OpNE {
			return matchAll, nil
		}
		return matchNone, nil
	}
	return bson.D{{Key: "$expr", Value: bson.D{{Key: native, Value: bson.A{expr, v}}}}}, nil
}

func typeOfConstant(v any) string {
	switch v.(type) {
	case string:
		return mapping.TypeString
	}
	if accessor.IsNumber(v) {
		return mapping.TypeNumber
	}
	return ""
}

func scalar(fn *ast.Function) (any, error) {
	if err := checkCall(fn); err != nil {
		return nil, err
	}
	switch fn.Name {
	case mapping.FuncLength, mapping.FuncArrayLength:
		field, ok := fn.Args[0].(*ast.Field)
		if !ok {
			return nil, fmt.Errorf("%w: %s of %s", models.ErrNotSupported, fn.Name, fn.Args[0])
		}
		ref, err := fieldRef(field.Path)
		if err != nil {
			return nil, err
		}
		if fn.Name == mapping.FuncLength {
			return bson.D{{Key: "$cond", Value: bson.A{
				bson.D{{Key: "$eq", Value: bson.A{bson.D{{Key: "$type", Value: ref}}, "string"}}},
				bson.D{{Key: "$strLenCP", Value: ref}},
				0,
			}}}, nil
		}
		return bson.D{{Key: "$cond", Value: bson.A{
			bson.D{{Key: "$isArray", Value: ref}},
			bson.D{{Key: "$size", Value: ref}},
			0,
		}}}, nil
	case mapping.FuncRandom:
		return bson.D{{Key: "$rand", Value: bson.D{}}}, nil
	case mapping.FuncNow:
		return bson.D{{Key: "$concat", Value: bson.A{
			bson.D{{Key: "$dateToString", Value: bson.D{
				{Key: "format", Value: "%Y-%m-%d %H:%M:%S.%L"},
				{Key: "date", Value: "$$NOW"},
				{Key: "timezone", Value: "UTC"},
			}}},
			"000+0000",
		}}}, nil
	}
	return nil, fmt.Errorf("%w: %s as a value", models.ErrNotSupported, fn.Name)
}

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

func checkCall(fn *ast.Function) error {
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

func (b filterBuilder) function(fn *ast.Function) (bson.D, error) {
	if err := checkCall(fn); err != nil {
		return nil, err
	}
	switch fn.Name {
	case mapping.FuncExists:
		return matchAll, nil
	case mapping.FuncNotExists:
		return matchNone, nil
	case mapping.FuncLength, mapping.FuncArrayLength, mapping.FuncRandom:
		expr, err := scalar(fn)
		if err != nil {
			return nil, err
		}
		return bson.D{{Key: "$expr", Value: bson.D{{Key: "$ne", Value: bson.A{expr, 0}}}}}, nil
	case mapping.FuncNow:
		return matchAll, nil
	}

	field, ok := fn.Args[0].(*ast.Field)
	if !ok {
		return nil, fmt.Errorf("%w: %s of %s", models.ErrNotSupported, fn.Name, fn.Args[0])
	}
	path, err := dotted(field.Path)
	if err != nil {
		return nil, err
	}
	var arg any
	if len(fn.Args) > 1 {
		v, ok := constant(fn.Args[1])
		if !ok {
			return nil, fmt.Errorf("%w: %s with argument %s", models.ErrNotSupported, fn.Name, fn.Args[1])
		}
		arg = v
	}
	on := func(op string, v any) bson.D {
		return bson.D{{Key: path, Value: bson.D{{Key: op, Value: v}}}}
	}

	switch fn.Name {
	case mapping.FuncIsDefined:
		return on("$exists", true), nil
	case mapping.FuncIsNotDefined:
		return on("$exists", false), nil
	case mapping.FuncIsType:
		name, ok := arg.(string)
		if !ok || !mapping.IsValueType(name) {
			return nil, fmt.Errorf("%w: is_type expects one of %v, got %s", models.ErrInvalidStatement, mapping.ValueTypes, fn.Args[1])
		}
		names, _ := mapping.NativeTypes("MongoDB", name)
		return on("$type", names), nil
	case mapping.FuncContains, mapping.FuncStartsWith, mapping.FuncEndsWith:
		needle, ok := arg.(string)
		if !ok {
			return matchNone, nil
		}
		pattern := regexp.QuoteMeta(needle)
		switch fn.Name {
		case mapping.FuncStartsWith:
			pattern = "^" + pattern
		case mapping.FuncEndsWith:
			pattern += `\z`
		}
		return on("$regex", pattern), nil
	case mapping.FuncArrayContains:
		return on("$elemMatch", bson.D{{Key: "$eq", Value: arg}}), nil
	case mapping.FuncArrayContainsAny:
		candidates, ok := accessor.Items(arg)
		if !ok || len(candidates) == 0 {
			return matchNone, nil
		}
		return on("$elemMatch", bson.D{{Key: "$in", Value: bson.A(candidates)}}), nil
	}
	return nil, fmt.Errorf("%w: function %s", models.ErrNotSupported, fn.Name)
}

// ============================================================================
// SORT AND PROJECTION
// ============================================================================

// BuildSort returns the sort document and the filter dropping documents
// without a sort field.
func BuildSort(ob *ast.OrderBy) (bson.D, bson.D, error) {
	if ob == nil || len(ob.Terms) == 0 {
		return nil, nil, nil
	}
	sort := make(bson.D, 0, len(ob.Terms))
	var present bson.A
	for _, term := range ob.Terms {
		path, err := dotted(term.Field)
		if err != nil {
			return nil, nil, err
		}
		dir := 1
		if term.OrderDirection() == ast.Desc {
			dir = -1
		}
		sort = append(sort, bson.E{Key: path, Value: dir})
		present = append(present, bson.D{{Key: path, Value: bson.D{{Key: "$exists", Value: true}}}})
	}
	if len(present) == 1 {
		return sort, present[0].(bson.D), nil
	}
	return sort, bson.D{{Key: "$and", Value: present}}, nil
}

// BuildProjection returns a find projection. The key field is always
// excluded.
func BuildProjection(sel *ast.Select) (bson.D, error) {
	proj := bson.D{{Key: KeyField, Value: 0}}
	if sel.IsEmpty() {
		return proj, nil
	}
	for _, term := range sel.Terms {
		if term.Alias == "" || term.Alias == term.Field {
			path, err := dotted(term.Field)
			if err != nil {
				return nil, err
			}
			proj = append(proj, bson.E{Key: path, Value: 1})
			continue
		}
		ref, err := fieldRef(term.Field)
		if err != nil {
			return nil, err
		}
		alias, err := dotted(term.Alias)
		if err != nil {
			return nil, err
		}
		proj = append(proj, bson.E{Key: alias, Value: ref})
	}
	return proj, nil
}

// And combines filters, dropping empty ones.
func And(filters ...bson.D) bson.D {
	var parts bson.A
	for _, f := range filters {
		if len(f) > 0 {
			parts = append(parts, f)
		}
	}
	switch len(parts) {
	case 0:
		return matchAll
	case 1:
		return parts[0].(bson.D)
	}
	return bson.D{{Key: "$and", Value: parts}}
}
