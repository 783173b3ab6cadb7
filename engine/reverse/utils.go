package reverse

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/omniql-engine/x8ql/engine/ast"
	"github.com/omniql-engine/x8ql/mapping"
)

// ============================================================================
// REVERSE MAPS - Built from mapping at init()
// ============================================================================

// nativeToOperator maps dbType → native comparison operator → QL operator.
var nativeToOperator map[string]map[string]string

func init() {
	nativeToOperator = make(map[string]map[string]string)
	for dbType, ops := range mapping.OperatorMap {
		nativeToOperator[dbType] = make(map[string]string)
		for qlOp, nativeOp := range ops {
			if mapping.IsComparisonOperator(qlOp) {
				nativeToOperator[dbType][strings.ToUpper(nativeOp)] = qlOp
			}
		}
	}
	// SQL spells inequality both ways
	for _, db := range []string{"PostgreSQL", "MySQL", "SQLite"} {
		if ops, ok := nativeToOperator[db]; ok {
			ops["<>"] = mapping.OpNE
		}
	}
}

func operatorFor(native, dbType string) (string, error) {
	if ops, ok := nativeToOperator[dbType]; ok {
		if op, found := ops[strings.ToUpper(native)]; found {
			return op, nil
		}
	}
	return "", fmt.Errorf("%w: operator %s", ErrNotSupported, native)
}

// ============================================================================
// AST HELPERS
// ============================================================================

func field(path string) *ast.Field { return &ast.Field{Path: path} }

func literal(v any) *ast.Literal { return &ast.Literal{Value: v} }

func compare(left ast.Expr, op string, right ast.Expr) ast.Expr {
	return &ast.Comparison{Left: left, Op: op, Right: right}
}

func call(name string, args ...ast.Expr) *ast.Function {
	return &ast.Function{Name: name, Args: args}
}

// join folds exprs left to right with And or Or.
func join(exprs []ast.Expr, or bool) ast.Expr {
	if len(exprs) == 0 {
		return nil
	}
	out := exprs[0]
	for _, e := range exprs[1:] {
		if or {
			out = &ast.Or{Left: out, Right: e}
		} else {
			out = &ast.And{Left: out, Right: e}
		}
	}
	return out
}

// isNull matches SQL IS NULL on documents: the field is absent or null.
func isNull(e ast.Expr, not bool) ast.Expr {
	if not {
		return &ast.And{
			Left:  call(mapping.FuncIsDefined, e),
			Right: compare(e, mapping.OpNE, literal(nil)),
		}
	}
	return &ast.Or{
		Left:  call(mapping.FuncIsNotDefined, e),
		Right: compare(e, mapping.OpEQ, literal(nil)),
	}
}

// builtin maps a native function call onto a builtin, when one exists.
func builtin(name string, args []ast.Expr) (ast.Expr, error) {
	n := strings.ToLower(name)
	switch n {
	case "char_length", "character_length":
		n = mapping.FuncLength
	case "json_array_length", "jsonb_array_length":
		n = mapping.FuncArrayLength
	case "rand":
		n = mapping.FuncRandom
	}
	if !mapping.IsBuiltinFunction(n) || mapping.IsSearchFunction(n) {
		return nil, fmt.Errorf("%w: function %s", ErrNotSupported, name)
	}
	return call(n, args...), nil
}

// numberLiteral parses a numeric token the way the QL lexer types it.
func numberLiteral(s string) (*ast.Literal, error) {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return literal(i), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: number %q", ErrParseError, s)
	}
	return literal(f), nil
}

// ============================================================================
// LIKE PATTERNS
// ============================================================================

// likeToRegex rewrites a SQL LIKE pattern into an RE2 expression. The QL
// like operator anchors at the start only, so the end is anchored here.
func likeToRegex(pattern string, caseInsensitive bool) string {
	var sb strings.Builder
	if caseInsensitive {
		sb.WriteString("(?i)")
	}
	escaped := false
	for _, r := range pattern {
		switch {
		case escaped:
			sb.WriteString(regexpQuote(r))
			escaped = false
		case r == '\\':
			escaped = true
		case r == '%':
			sb.WriteString(".*")
		case r == '_':
			sb.WriteString(".")
		default:
			sb.WriteString(regexpQuote(r))
		}
	}
	if escaped {
		sb.WriteString(`\\`)
	}
	sb.WriteString("$")
	return sb.String()
}

func regexpQuote(r rune) string {
	if strings.ContainsRune(`\.+*?()|[]{}^$`, r) {
		return `\` + string(r)
	}
	return string(r)
}

// like builds `e like regex(pattern)`, negated when not.
func like(e ast.Expr, pattern ast.Expr, caseInsensitive, not bool) (ast.Expr, error) {
	lit, ok := pattern.(*ast.Literal)
	if !ok {
		return nil, fmt.Errorf("%w: LIKE with a non-constant pattern", ErrNotSupported)
	}
	s, ok := lit.Value.(string)
	if !ok {
		return nil, fmt.Errorf("%w: LIKE pattern must be a string", ErrParseError)
	}
	out := compare(e, mapping.OpLike, literal(likeToRegex(s, caseInsensitive)))
	if not {
		return &ast.Not{Expr: out}, nil
	}
	return out, nil
}

func between(e, lo, hi ast.Expr, not bool) ast.Expr {
	out := compare(e, mapping.OpBetween, &ast.List{Items: []ast.Expr{lo, hi}})
	if not {
		return &ast.Not{Expr: out}
	}
	return out
}

func in(e ast.Expr, items []ast.Expr, not bool) ast.Expr {
	op := mapping.OpIn
	if not {
		op = mapping.OpNotIn
	}
	return compare(e, op, &ast.List{Items: items})
}

// parameter names positional placeholders p1, p2, ...
func parameter(n int) *ast.Parameter {
	return &ast.Parameter{Name: "p" + strconv.Itoa(n)}
}
