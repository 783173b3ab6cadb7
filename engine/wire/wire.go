// Package wire converts trees to and from protobuf Struct values, for
// shipping parsed statements between processes without reparsing.
//
// Every node is an object tagged with "kind". Literal values map onto JSON
// values, except that numbers which would lose their type are wrapped:
// {"$int": "9007199254740993"}, {"$float": 2}. Object literals are wrapped
// in {"$object": {...}} and byte strings in {"$bytes": "<base64>"}.
package wire

import (
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/omniql-engine/x8ql/engine/accessor"
	"github.com/omniql-engine/x8ql/engine/ast"
)

// ErrMalformed is returned when a value does not describe a tree.
var ErrMalformed = errors.New("malformed wire value")

// Node kinds.
const (
	KindLiteral    = "literal"
	KindList       = "list"
	KindField      = "field"
	KindParameter  = "parameter"
	KindRef        = "ref"
	KindGeoPoint   = "geo_point"
	KindFunction   = "function"
	KindComparison = "comparison"
	KindAnd        = "and"
	KindOr         = "or"
	KindNot        = "not"
	KindSelect     = "select"
	KindCollection = "collection"
	KindOrderBy    = "order_by"
	KindUpdate     = "update"
	KindOperation  = "operation"
	KindStatements = "statements"
)

// maxExactInt is the largest integer a float64 holds exactly.
const maxExactInt = 1 << 53

// MarshalJSON renders node as protojson.
func MarshalJSON(node ast.Node) ([]byte, error) {
	v, err := Encode(node)
	if err != nil {
		return nil, err
	}
	return protojson.Marshal(v)
}

// UnmarshalJSON parses protojson written by MarshalJSON.
func UnmarshalJSON(data []byte) (ast.Node, error) {
	var v structpb.Value
	if err := protojson.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return Decode(&v)
}

// ============================================================================
// ENCODE
// ============================================================================

// Encode converts node into a Struct value. A nil node encodes as null.
func Encode(node ast.Node) (*structpb.Value, error) {
	if node == nil {
		return structpb.NewNullValue(), nil
	}
	fields, err := encodeNode(node)
	if err != nil {
		return nil, err
	}
	return structpb.NewStructValue(&structpb.Struct{Fields: fields}), nil
}

func tagged(kind string, fields map[string]*structpb.Value) map[string]*structpb.Value {
	fields["kind"] = structpb.NewStringValue(kind)
	return fields
}

func encodeNode(node ast.Node) (map[string]*structpb.Value, error) {
	switch n := node.(type) {
	case *ast.Literal:
		v, err := encodeValue(n.Value)
		if err != nil {
			return nil, err
		}
		return tagged(KindLiteral, map[string]*structpb.Value{"value": v}), nil
	case *ast.List:
		items, err := encodeExprs(n.Items)
		if err != nil {
			return nil, err
		}
		return tagged(KindList, map[string]*structpb.Value{"items": items}), nil
	case *ast.Field:
		return tagged(KindField, map[string]*structpb.Value{"path": structpb.NewStringValue(n.Path)}), nil
	case *ast.Parameter:
		return tagged(KindParameter, map[string]*structpb.Value{"name": structpb.NewStringValue(n.Name)}), nil
	case *ast.Ref:
		return tagged(KindRef, map[string]*structpb.Value{"path": structpb.NewStringValue(n.Path)}), nil
	case *ast.GeoPoint:
		return tagged(KindGeoPoint, map[string]*structpb.Value{
			"lat": structpb.NewNumberValue(n.Lat),
			"lon": structpb.NewNumberValue(n.Lon),
		}), nil
	case *ast.Function:
		return encodeFunction(n)
	case *ast.Comparison:
		left, right, err := encodePair(n.Left, n.Right)
		if err != nil {
			return nil, err
		}
		return tagged(KindComparison, map[string]*structpb.Value{
			"op": structpb.NewStringValue(n.Op), "left": left, "right": right,
		}), nil
	case *ast.And:
		left, right, err := encodePair(n.Left, n.Right)
		if err != nil {
			return nil, err
		}
		return tagged(KindAnd, map[string]*structpb.Value{"left": left, "right": right}), nil
	case *ast.Or:
		left, right, err := encodePair(n.Left, n.Right)
		if err != nil {
			return nil, err
		}
		return tagged(KindOr, map[string]*structpb.Value{"left": left, "right": right}), nil
	case *ast.Not:
		inner, err := Encode(n.Expr)
		if err != nil {
			return nil, err
		}
		return tagged(KindNot, map[string]*structpb.Value{"expr": inner}), nil
	case *ast.Select:
		terms := make([]*structpb.Value, len(n.Terms))
		for i, t := range n.Terms {
			terms[i] = object(map[string]*structpb.Value{
				"field": structpb.NewStringValue(t.Field),
				"alias": structpb.NewStringValue(t.Alias),
			})
		}
		return tagged(KindSelect, map[string]*structpb.Value{"terms": structpb.NewListValue(&structpb.ListValue{Values: terms})}), nil
	case *ast.Collection:
		return tagged(KindCollection, map[string]*structpb.Value{"name": structpb.NewStringValue(n.Name)}), nil
	case *ast.OrderBy:
		terms := make([]*structpb.Value, len(n.Terms))
		for i, t := range n.Terms {
			terms[i] = object(map[string]*structpb.Value{
				"field":     structpb.NewStringValue(t.Field),
				"direction": structpb.NewStringValue(t.Direction),
			})
		}
		return tagged(KindOrderBy, map[string]*structpb.Value{"terms": structpb.NewListValue(&structpb.ListValue{Values: terms})}), nil
	case *ast.Update:
		ops := make([]*structpb.Value, len(n.Operations))
		for i, op := range n.Operations {
			args, err := encodeExprs(op.Args)
			if err != nil {
				return nil, err
			}
			ops[i] = object(map[string]*structpb.Value{
				"field": structpb.NewStringValue(op.Field),
				"op":    structpb.NewStringValue(op.Op),
				"args":  args,
			})
		}
		return tagged(KindUpdate, map[string]*structpb.Value{"operations": structpb.NewListValue(&structpb.ListValue{Values: ops})}), nil
	case *ast.Operation:
		args := make(map[string]*structpb.Value, len(n.Args))
		for k, arg := range n.Args {
			v, err := Encode(arg)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			args[k] = v
		}
		return tagged(KindOperation, map[string]*structpb.Value{
			"name": structpb.NewStringValue(n.Name),
			"args": object(args),
		}), nil
	case *ast.Statements:
		ops := make([]*structpb.Value, len(n.Operations))
		for i, op := range n.Operations {
			v, err := Encode(op)
			if err != nil {
				return nil, err
			}
			ops[i] = v
		}
		return tagged(KindStatements, map[string]*structpb.Value{"operations": structpb.NewListValue(&structpb.ListValue{Values: ops})}), nil
	}
	return nil, fmt.Errorf("%w: unknown node %T", ErrMalformed, node)
}

func encodeFunction(n *ast.Function) (map[string]*structpb.Value, error) {
	args, err := encodeExprs(n.Args)
	if err != nil {
		return nil, err
	}
	named := make([]*structpb.Value, len(n.NamedArgs))
	for i, a := range n.NamedArgs {
		v, err := Encode(a.Value)
		if err != nil {
			return nil, err
		}
		named[i] = object(map[string]*structpb.Value{"name": structpb.NewStringValue(a.Name), "value": v})
	}
	return tagged(KindFunction, map[string]*structpb.Value{
		"namespace":  structpb.NewStringValue(n.Namespace),
		"name":       structpb.NewStringValue(n.Name),
		"args":       args,
		"named_args": structpb.NewListValue(&structpb.ListValue{Values: named}),
	}), nil
}

func encodePair(l, r ast.Expr) (*structpb.Value, *structpb.Value, error) {
	left, err := Encode(l)
	if err != nil {
		return nil, nil, err
	}
	right, err := Encode(r)
	if err != nil {
		return nil, nil, err
	}
	return left, right, nil
}

func encodeExprs(exprs []ast.Expr) (*structpb.Value, error) {
	values := make([]*structpb.Value, len(exprs))
	for i, e := range exprs {
		v, err := Encode(e)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return structpb.NewListValue(&structpb.ListValue{Values: values}), nil
}

func object(fields map[string]*structpb.Value) *structpb.Value {
	return structpb.NewStructValue(&structpb.Struct{Fields: fields})
}

func wrap(tag string, v *structpb.Value) *structpb.Value {
	return object(map[string]*structpb.Value{tag: v})
}

// encodeValue converts a literal value.
func encodeValue(v any) (*structpb.Value, error) {
	switch x := v.(type) {
	case nil:
		return structpb.NewNullValue(), nil
	case bool:
		return structpb.NewBoolValue(x), nil
	case string:
		return structpb.NewStringValue(x), nil
	case []byte:
		return wrap("$bytes", structpb.NewStringValue(base64.StdEncoding.EncodeToString(x))), nil
	case float64:
		if x == math.Trunc(x) && !math.IsInf(x, 0) {
			return wrap("$float", structpb.NewNumberValue(x)), nil
		}
		return structpb.NewNumberValue(x), nil
	case float32:
		return encodeValue(float64(x))
	case []any:
		items := make([]*structpb.Value, len(x))
		for i, item := range x {
			iv, err := encodeValue(item)
			if err != nil {
				return nil, err
			}
			items[i] = iv
		}
		return structpb.NewListValue(&structpb.ListValue{Values: items}), nil
	case map[string]any:
		fields := make(map[string]*structpb.Value, len(x))
		for k, item := range x {
			iv, err := encodeValue(item)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			fields[k] = iv
		}
		return wrap("$object", object(fields)), nil
	}
	if n, ok := accessor.ToInt(v); ok && accessor.IsNumber(v) {
		if n > -maxExactInt && n < maxExactInt {
			return structpb.NewNumberValue(float64(n)), nil
		}
		return wrap("$int", structpb.NewStringValue(strconv.Itoa(n))), nil
	}
	return nil, fmt.Errorf("%w: literal of type %T", ErrMalformed, v)
}

// ============================================================================
// DECODE
// ============================================================================

// Decode converts a value written by Encode back into a tree.
func Decode(v *structpb.Value) (ast.Node, error) {
	if v == nil {
		return nil, nil
	}
	if _, isNull := v.GetKind().(*structpb.Value_NullValue); isNull {
		return nil, nil
	}
	s := v.GetStructValue()
	if s == nil {
		return nil, fmt.Errorf("%w: expected an object", ErrMalformed)
	}
	d := decoder{fields: s.GetFields()}
	kind := d.str("kind")

	switch kind {
	case KindLiteral:
		value, err := decodeValue(d.fields["value"])
		if err != nil {
			return nil, err
		}
		return &ast.Literal{Value: value}, d.err
	case KindList:
		items, err := decodeExprs(d.fields["items"])
		return &ast.List{Items: items}, errors.Join(d.err, err)
	case KindField:
		return &ast.Field{Path: d.str("path")}, d.err
	case KindParameter:
		return &ast.Parameter{Name: d.str("name")}, d.err
	case KindRef:
		return &ast.Ref{Path: d.str("path")}, d.err
	case KindGeoPoint:
		return &ast.GeoPoint{Lat: d.num("lat"), Lon: d.num("lon")}, d.err
	case KindFunction:
		return decodeFunction(d)
	case KindComparison:
		left, right, err := decodePair(d.fields)
		if err != nil {
			return nil, err
		}
		return &ast.Comparison{Left: left, Op: d.str("op"), Right: right}, d.err
	case KindAnd, KindOr:
		left, right, err := decodePair(d.fields)
		if err != nil {
			return nil, err
		}
		if kind == KindAnd {
			return &ast.And{Left: left, Right: right}, nil
		}
		return &ast.Or{Left: left, Right: right}, nil
	case KindNot:
		inner, err := decodeExpr(d.fields["expr"])
		if err != nil {
			return nil, err
		}
		return &ast.Not{Expr: inner}, nil
	case KindSelect:
		sel := &ast.Select{}
		for _, t := range d.objects("terms") {
			sel.Terms = append(sel.Terms, ast.SelectTerm{Field: t.str("field"), Alias: t.str("alias")})
			d.collect(t)
		}
		return sel, d.err
	case KindCollection:
		return &ast.Collection{Name: d.str("name")}, d.err
	case KindOrderBy:
		ob := &ast.OrderBy{}
		for _, t := range d.objects("terms") {
			ob.Terms = append(ob.Terms, ast.OrderByTerm{Field: t.str("field"), Direction: t.str("direction")})
			d.collect(t)
		}
		return ob, d.err
	case KindUpdate:
		u := &ast.Update{}
		for _, o := range d.objects("operations") {
			args, err := decodeExprs(o.fields["args"])
			if err != nil {
				return nil, err
			}
			u.Operations = append(u.Operations, ast.UpdateOperation{Field: o.str("field"), Op: o.str("op"), Args: args})
			d.collect(o)
		}
		return u, d.err
	case KindOperation:
		return decodeOperation(d)
	case KindStatements:
		stmts := &ast.Statements{}
		for _, item := range d.list("operations") {
			node, err := Decode(item)
			if err != nil {
				return nil, err
			}
			op, ok := node.(*ast.Operation)
			if !ok {
				return nil, fmt.Errorf("%w: statements hold operations", ErrMalformed)
			}
			stmts.Operations = append(stmts.Operations, op)
		}
		return stmts, d.err
	}
	return nil, fmt.Errorf("%w: unknown kind %q", ErrMalformed, kind)
}

func decodeFunction(d decoder) (ast.Node, error) {
	args, err := decodeExprs(d.fields["args"])
	if err != nil {
		return nil, err
	}
	fn := &ast.Function{Namespace: d.str("namespace"), Name: d.str("name"), Args: args}
	for _, a := range d.objects("named_args") {
		value, err := decodeExpr(a.fields["value"])
		if err != nil {
			return nil, err
		}
		fn.NamedArgs = append(fn.NamedArgs, ast.NamedArg{Name: a.str("name"), Value: value})
		d.collect(a)
	}
	return fn, d.err
}

func decodeOperation(d decoder) (ast.Node, error) {
	op := &ast.Operation{Name: d.str("name"), Args: map[string]ast.Node{}}
	args := d.fields["args"].GetStructValue()
	if args == nil {
		return nil, fmt.Errorf("%w: operation args", ErrMalformed)
	}
	keys := make([]string, 0, len(args.GetFields()))
	for k := range args.GetFields() {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		node, err := Decode(args.GetFields()[k])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		op.Args[k] = node
	}
	return op, d.err
}

func decodeExpr(v *structpb.Value) (ast.Expr, error) {
	node, err := Decode(v)
	if err != nil || node == nil {
		return nil, err
	}
	e, ok := node.(ast.Expr)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not an expression", ErrMalformed, node)
	}
	return e, nil
}

func decodePair(fields map[string]*structpb.Value) (ast.Expr, ast.Expr, error) {
	left, err := decodeExpr(fields["left"])
	if err != nil {
		return nil, nil, err
	}
	right, err := decodeExpr(fields["right"])
	if err != nil {
		return nil, nil, err
	}
	return left, right, nil
}

func decodeExprs(v *structpb.Value) ([]ast.Expr, error) {
	list := v.GetListValue()
	if list == nil {
		return nil, nil
	}
	out := make([]ast.Expr, 0, len(list.GetValues()))
	for _, item := range list.GetValues() {
		e, err := decodeExpr(item)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func decodeValue(v *structpb.Value) (any, error) {
	switch k := v.GetKind().(type) {
	case nil, *structpb.Value_NullValue:
		return nil, nil
	case *structpb.Value_BoolValue:
		return k.BoolValue, nil
	case *structpb.Value_StringValue:
		return k.StringValue, nil
	case *structpb.Value_NumberValue:
		f := k.NumberValue
		if f == math.Trunc(f) && math.Abs(f) < maxExactInt {
			return int64(f), nil
		}
		return f, nil
	case *structpb.Value_ListValue:
		out := make([]any, len(k.ListValue.GetValues()))
		for i, item := range k.ListValue.GetValues() {
			iv, err := decodeValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = iv
		}
		return out, nil
	case *structpb.Value_StructValue:
		return decodeWrapped(k.StructValue.GetFields())
	}
	return nil, fmt.Errorf("%w: literal value", ErrMalformed)
}

func decodeWrapped(fields map[string]*structpb.Value) (any, error) {
	if len(fields) != 1 {
		return nil, fmt.Errorf("%w: wrapped literal", ErrMalformed)
	}
	if v, ok := fields["$int"]; ok {
		n, err := strconv.ParseInt(v.GetStringValue(), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: $int: %v", ErrMalformed, err)
		}
		return n, nil
	}
	if v, ok := fields["$float"]; ok {
		return v.GetNumberValue(), nil
	}
	if v, ok := fields["$bytes"]; ok {
		b, err := base64.StdEncoding.DecodeString(v.GetStringValue())
		if err != nil {
			return nil, fmt.Errorf("%w: $bytes: %v", ErrMalformed, err)
		}
		return b, nil
	}
	if v, ok := fields["$object"]; ok {
		s := v.GetStructValue()
		if s == nil {
			return nil, fmt.Errorf("%w: $object", ErrMalformed)
		}
		out := make(map[string]any, len(s.GetFields()))
		for key, item := range s.GetFields() {
			iv, err := decodeValue(item)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			out[key] = iv
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: unknown wrapped literal", ErrMalformed)
}

// decoder reads typed fields, keeping the first error.
type decoder struct {
	fields map[string]*structpb.Value
	err    error
}

func (d *decoder) fail(format string, args ...any) {
	if d.err == nil {
		d.err = fmt.Errorf("%w: "+format, append([]any{ErrMalformed}, args...)...)
	}
}

func (d *decoder) collect(other decoder) {
	if d.err == nil {
		d.err = other.err
	}
}

func (d *decoder) str(key string) string {
	v, ok := d.fields[key]
	if !ok {
		return ""
	}
	s, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		d.fail("%s must be a string", key)
		return ""
	}
	return s.StringValue
}

func (d *decoder) num(key string) float64 {
	n, ok := d.fields[key].GetKind().(*structpb.Value_NumberValue)
	if !ok {
		d.fail("%s must be a number", key)
		return 0
	}
	return n.NumberValue
}

func (d *decoder) list(key string) []*structpb.Value {
	return d.fields[key].GetListValue().GetValues()
}

func (d *decoder) objects(key string) []decoder {
	var out []decoder
	for _, item := range d.list(key) {
		s := item.GetStructValue()
		if s == nil {
			d.fail("%s items must be objects", key)
			continue
		}
		out = append(out, decoder{fields: s.GetFields()})
	}
	return out
}
