package accessor

import (
	"math"
	"reflect"
	"strings"

	"github.com/ccoveille/go-safecast/v2"

	"github.com/omniql-engine/x8ql/engine/ast"
)

// IsNumber reports whether v is an integer or float. Booleans are not
// numbers.
func IsNumber(v any) bool {
	if v == nil {
		return false
	}
	return isNumberKind(reflect.TypeOf(v).Kind())
}

// numeric is a normalized number: integers stay exact as int64, every
// other number is a float64.
type numeric struct {
	i       int64
	f       float64
	isFloat bool
}

func (n numeric) float() float64 {
	if n.isFloat {
		return n.f
	}
	return float64(n.i)
}

func (n numeric) value() any {
	if n.isFloat {
		return n.f
	}
	return n.i
}

func toNumeric(v any) (numeric, bool) {
	switch x := v.(type) {
	case int64:
		return numeric{i: x}, true
	case int:
		return numeric{i: int64(x)}, true
	case float64:
		return numeric{f: x, isFloat: true}, true
	case nil, bool:
		return numeric{}, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return numeric{i: rv.Int()}, true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		i, err := safecast.Convert[int64](rv.Uint())
		if err != nil {
			return numeric{f: float64(rv.Uint()), isFloat: true}, true
		}
		return numeric{i: i}, true
	case reflect.Float32, reflect.Float64:
		return numeric{f: rv.Float(), isFloat: true}, true
	}
	return numeric{}, false
}

// ToFloat returns v as a float64 when it is a number.
func ToFloat(v any) (float64, bool) {
	n, ok := toNumeric(v)
	if !ok {
		return 0, false
	}
	return n.float(), true
}

// ToInt returns v as an int when it is an integral number.
func ToInt(v any) (int, bool) {
	n, ok := toNumeric(v)
	if !ok {
		return 0, false
	}
	if n.isFloat {
		if n.f != math.Trunc(n.f) {
			return 0, false
		}
		i, err := safecast.Convert[int](n.f)
		return i, err == nil
	}
	i, err := safecast.Convert[int](n.i)
	return i, err == nil
}

// Add sums two numbers. Integer operands yield an int64, anything else a
// float64.
func Add(a, b any) (any, bool) {
	x, ok := toNumeric(a)
	if !ok {
		return nil, false
	}
	y, ok := toNumeric(b)
	if !ok {
		return nil, false
	}
	if !x.isFloat && !y.isFloat {
		return x.i + y.i, true
	}
	return x.float() + y.float(), true
}

// Equal is deep equality where numbers compare by value regardless of
// their Go type.
func Equal(a, b any) bool {
	if x, ok := toNumeric(a); ok {
		y, ok := toNumeric(b)
		if !ok {
			return false
		}
		if !x.isFloat && !y.isFloat {
			return x.i == y.i
		}
		return x.float() == y.float()
	}
	if IsNumber(b) {
		return false
	}

	if as, ok := Items(a); ok {
		bs, ok := Items(b)
		if !ok || len(as) != len(bs) {
			return false
		}
		for i := range as {
			if !Equal(as[i], bs[i]) {
				return false
			}
		}
		return true
	}
	if am, ok := a.(map[string]any); ok {
		bm, ok := b.(map[string]any)
		if !ok || len(am) != len(bm) {
			return false
		}
		for k, av := range am {
			bv, ok := bm[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	}
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if ast.IsUndefined(a) || ast.IsUndefined(b) {
		return ast.IsUndefined(a) && ast.IsUndefined(b)
	}
	return reflect.DeepEqual(a, b)
}

// Compare orders two numbers or two strings. ok is false for any other
// pairing.
func Compare(a, b any) (c int, ok bool) {
	if x, ok := toNumeric(a); ok {
		y, ok := toNumeric(b)
		if !ok {
			return 0, false
		}
		if !x.isFloat && !y.isFloat {
			return cmpOrdered(x.i, y.i), true
		}
		return cmpOrdered(x.float(), y.float()), true
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return strings.Compare(as, bs), true
	}
	return 0, false
}

func cmpOrdered[T int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// IsSequence reports whether v is a list. Strings and byte slices are not.
func IsSequence(v any) bool {
	switch v.(type) {
	case []any:
		return true
	case nil, string, []byte:
		return false
	}
	k := reflect.TypeOf(v).Kind()
	return k == reflect.Slice || k == reflect.Array
}

// Items returns the elements of a sequence.
func Items(v any) ([]any, bool) {
	if s, ok := v.([]any); ok {
		return s, true
	}
	if !IsSequence(v) {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// IsObject reports whether v is a map or record.
func IsObject(v any) bool {
	if v == nil || IsSequence(v) {
		return false
	}
	_, ok := ContainerOf(v)
	return ok
}
