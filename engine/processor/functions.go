package processor

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/omniql-engine/x8ql/engine/accessor"
	"github.com/omniql-engine/x8ql/engine/ast"
	"github.com/omniql-engine/x8ql/mapping"
)

// NowLayout is the format of the now() function.
const NowLayout = "2006-01-02 15:04:05.000000-0700"

// builtinArity is the number of positional arguments of each evaluated
// builtin. Functions missing here are left to translators.
var builtinArity = map[string]int{
	mapping.FuncExists:              0,
	mapping.FuncNotExists:           0,
	mapping.FuncIsDefined:           1,
	mapping.FuncIsNotDefined:        1,
	mapping.FuncIsType:              2,
	mapping.FuncLength:              1,
	mapping.FuncContains:            2,
	mapping.FuncStartsWith:          2,
	mapping.FuncEndsWith:            2,
	mapping.FuncStartsWithDelimited: 3,
	mapping.FuncArrayLength:         1,
	mapping.FuncArrayContains:       2,
	mapping.FuncArrayContainsAny:    2,
	mapping.FuncRandom:              0,
	mapping.FuncNow:                 0,
}

var valueTypes = map[string]bool{
	mapping.TypeString:  true,
	mapping.TypeNumber:  true,
	mapping.TypeBoolean: true,
	mapping.TypeArray:   true,
	mapping.TypeObject:  true,
	mapping.TypeNull:    true,
}

func (p *Processor) call(item any, fn *ast.Function) (any, error) {
	if !fn.IsBuiltin() {
		return nil, fmt.Errorf("%w: function %s.%s not supported", ErrUnsupported, fn.Namespace, fn.Name)
	}
	arity, ok := builtinArity[fn.Name]
	if !ok {
		return nil, fmt.Errorf("%w: function %s not supported", ErrUnsupported, fn.Name)
	}
	if len(fn.NamedArgs) > 0 {
		return nil, fmt.Errorf("%w: %s takes no named arguments", ErrInvalidArgument, fn.Name)
	}
	if len(fn.Args) != arity {
		return nil, fmt.Errorf("%w: %s takes %d argument(s), got %d", ErrInvalidArgument, fn.Name, arity, len(fn.Args))
	}

	args := make([]any, len(fn.Args))
	for i, a := range fn.Args {
		v, err := p.Eval(item, a)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}

	switch fn.Name {
	case mapping.FuncExists:
		return item != nil && !ast.IsUndefined(item), nil
	case mapping.FuncNotExists:
		return item == nil || ast.IsUndefined(item), nil
	case mapping.FuncIsDefined:
		return !ast.IsUndefined(args[0]), nil
	case mapping.FuncIsNotDefined:
		return ast.IsUndefined(args[0]), nil

	case mapping.FuncIsType:
		want, ok := args[1].(string)
		if !ok || !valueTypes[want] {
			return nil, fmt.Errorf("%w: is_type expects one of string, number, boolean, array, object or null, got %s", ErrInvalidArgument, fn.Args[1])
		}
		return typeName(args[0]) == want, nil

	case mapping.FuncLength:
		s, ok := args[0].(string)
		if !ok {
			return int64(0), nil
		}
		return int64(utf8.RuneCountInString(s)), nil
	case mapping.FuncContains, mapping.FuncStartsWith, mapping.FuncEndsWith:
		s, ok := args[0].(string)
		if !ok {
			return false, nil
		}
		sub, ok := args[1].(string)
		if !ok {
			return false, nil
		}
		switch fn.Name {
		case mapping.FuncContains:
			return strings.Contains(s, sub), nil
		case mapping.FuncEndsWith:
			return strings.HasSuffix(s, sub), nil
		}
		return strings.HasPrefix(s, sub), nil
	case mapping.FuncStartsWithDelimited:
		return startsWithDelimited(fn, args)

	case mapping.FuncArrayLength:
		items, ok := accessor.Items(args[0])
		if !ok {
			return int64(0), nil
		}
		return int64(len(items)), nil
	case mapping.FuncArrayContains:
		items, ok := accessor.Items(args[0])
		if !ok {
			return false, nil
		}
		return containsValue(items, args[1]), nil
	case mapping.FuncArrayContainsAny:
		items, ok := accessor.Items(args[0])
		if !ok {
			return false, nil
		}
		candidates, ok := accessor.Items(args[1])
		if !ok {
			return false, nil
		}
		for _, c := range candidates {
			if containsValue(items, c) {
				return true, nil
			}
		}
		return false, nil

	case mapping.FuncRandom:
		return p.random(), nil
	case mapping.FuncNow:
		return p.now().UTC().Format(NowLayout), nil
	}
	return nil, fmt.Errorf("%w: function %s not supported", ErrUnsupported, fn.Name)
}

func containsValue(items []any, v any) bool {
	for _, it := range items {
		if accessor.Equal(it, v) {
			return true
		}
	}
	return false
}

// startsWithDelimited matches the direct children of a prefix, the way an
// object listing groups keys by a delimiter: s must start with the prefix
// and hold no delimiter after it. A null prefix matches from the root.
func startsWithDelimited(fn *ast.Function, args []any) (any, error) {
	var prefix string
	switch v := args[1].(type) {
	case nil:
	case string:
		prefix = v
	default:
		return nil, fmt.Errorf("%w: starts_with_delimited prefix must be a string or null, got %s", ErrInvalidArgument, fn.Args[1])
	}
	delim, ok := args[2].(string)
	if !ok || delim == "" {
		return nil, fmt.Errorf("%w: starts_with_delimited delimiter must be a non-empty string, got %s", ErrInvalidArgument, fn.Args[2])
	}
	s, ok := args[0].(string)
	if !ok {
		return false, nil
	}
	rest, ok := strings.CutPrefix(s, prefix)
	return ok && !strings.Contains(rest, delim), nil
}
