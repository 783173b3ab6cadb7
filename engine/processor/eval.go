package processor

import (
	"fmt"
	"regexp"

	"github.com/omniql-engine/x8ql/engine/accessor"
	"github.com/omniql-engine/x8ql/engine/ast"
	"github.com/omniql-engine/x8ql/mapping"
)

// Eval evaluates expr against item. A nil expression is true.
func (p *Processor) Eval(item any, expr ast.Expr) (any, error) {
	switch e := expr.(type) {
	case nil:
		return true, nil
	case *ast.Literal:
		return e.Value, nil
	case *ast.Field:
		return p.get(item, e.Path), nil
	case *ast.List:
		out := make([]any, len(e.Items))
		for i, it := range e.Items {
			v, err := p.Eval(item, it)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case *ast.Parameter:
		return nil, fmt.Errorf("%w: unbound parameter %s", ErrInvalidArgument, e)
	case *ast.Ref:
		return nil, fmt.Errorf("%w: reference %s cannot be evaluated", ErrUnsupported, e)
	case *ast.GeoPoint:
		return nil, fmt.Errorf("%w: geo point %s cannot be evaluated", ErrUnsupported, e)
	case *ast.Comparison:
		return p.compare(item, e)
	case *ast.Function:
		return p.call(item, e)
	case *ast.And:
		l, r, err := p.both(item, e.Left, e.Right)
		if err != nil {
			return nil, err
		}
		return l && r, nil
	case *ast.Or:
		l, r, err := p.both(item, e.Left, e.Right)
		if err != nil {
			return nil, err
		}
		return l || r, nil
	case *ast.Not:
		v, err := p.Eval(item, e.Expr)
		if err != nil {
			return nil, err
		}
		return !Truthy(v), nil
	default:
		panic(fmt.Sprintf("processor: unknown expression %T", expr))
	}
}

func (p *Processor) both(item any, left, right ast.Expr) (bool, bool, error) {
	l, err := p.Eval(item, left)
	if err != nil {
		return false, false, err
	}
	r, err := p.Eval(item, right)
	if err != nil {
		return false, false, err
	}
	return Truthy(l), Truthy(r), nil
}

func (p *Processor) compare(item any, c *ast.Comparison) (bool, error) {
	l, err := p.Eval(item, c.Left)
	if err != nil {
		return false, err
	}
	r, err := p.Eval(item, c.Right)
	if err != nil {
		return false, err
	}

	switch c.Op {
	case mapping.OpEQ:
		return accessor.Equal(l, r), nil
	case mapping.OpNE:
		return !accessor.Equal(l, r), nil
	case mapping.OpLT, mapping.OpLTE, mapping.OpGT, mapping.OpGTE:
		n, ok := accessor.Compare(l, r)
		if !ok {
			return false, nil
		}
		switch c.Op {
		case mapping.OpLT:
			return n < 0, nil
		case mapping.OpLTE:
			return n <= 0, nil
		case mapping.OpGT:
			return n > 0, nil
		}
		return n >= 0, nil
	case mapping.OpBetween:
		bounds, ok := accessor.Items(r)
		if !ok || len(bounds) != 2 {
			return false, fmt.Errorf("%w: between needs two bounds, got %s", ErrInvalidArgument, c.Right)
		}
		lo, ok := accessor.Compare(l, bounds[0])
		if !ok {
			return false, nil
		}
		hi, ok := accessor.Compare(l, bounds[1])
		if !ok {
			return false, nil
		}
		return lo >= 0 && hi <= 0, nil
	case mapping.OpIn, mapping.OpNotIn:
		list, ok := accessor.Items(r)
		if !ok {
			return false, fmt.Errorf("%w: %s needs a list, got %s", ErrNotSequence, c.Op, c.Right)
		}
		found := false
		for _, v := range list {
			if accessor.Equal(l, v) {
				found = true
				break
			}
		}
		return found == (c.Op == mapping.OpIn), nil
	case mapping.OpLike:
		s, ok := l.(string)
		if !ok {
			return false, nil
		}
		pattern, ok := r.(string)
		if !ok {
			return false, nil
		}
		re, err := p.pattern(pattern)
		if err != nil {
			return false, err
		}
		return re.MatchString(s), nil
	}
	return false, fmt.Errorf("%w: operator %q", ErrUnsupported, c.Op)
}

// pattern compiles a like pattern anchored at the start of the subject.
func (p *Processor) pattern(pattern string) (*regexp.Regexp, error) {
	entry, _ := p.patterns.LoadOrCompute(pattern, func() (patternEntry, bool) {
		re, err := regexp.Compile("^(?:" + pattern + ")")
		if err != nil {
			err = fmt.Errorf("%w: like pattern %q: %v", ErrInvalidArgument, pattern, err)
		}
		return patternEntry{re: re, err: err}, false
	})
	return entry.re, entry.err
}

// Truthy reports whether v counts as true in a condition. Null, undefined,
// false, zero and empty strings, lists and maps are false.
func Truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	}
	if ast.IsUndefined(v) {
		return false
	}
	if f, ok := accessor.ToFloat(v); ok {
		return f != 0
	}
	if items, ok := accessor.Items(v); ok {
		return len(items) > 0
	}
	if c, ok := v.(map[string]any); ok {
		return len(c) > 0
	}
	return true
}

// typeName classifies v with the names accepted by is_type. Undefined has
// no type name.
func typeName(v any) string {
	switch v.(type) {
	case nil:
		return mapping.TypeNull
	case string:
		return mapping.TypeString
	case bool:
		return mapping.TypeBoolean
	}
	switch {
	case ast.IsUndefined(v):
		return ""
	case accessor.IsNumber(v):
		return mapping.TypeNumber
	case accessor.IsSequence(v):
		return mapping.TypeArray
	case accessor.IsObject(v):
		return mapping.TypeObject
	}
	return ""
}
