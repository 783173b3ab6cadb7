package binder

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/omniql-engine/x8ql/engine/ast"
	"github.com/omniql-engine/x8ql/engine/parser"
)

func TestBindReplacesEveryPosition(t *testing.T) {
	op, err := parser.NewCache().ParseStatement(
		`update set a=put(@v), b=increment(@d) where x in (@x1, 2) and not f(@fa, 1) or g(k=@named) and y between @lo and @hi limit @lim`)
	require.NoError(t, err)

	bound, err := BindOperation(op, map[string]any{
		"v": "value", "d": int64(2), "x1": int64(1), "fa": true, "named": "n",
		"lo": 0.5, "hi": int64(9), "lim": int64(10),
	})
	require.NoError(t, err)

	assert.Equal(t, `(x in (1, 2) AND NOT f(true, 1)) OR (g(k="n") AND y between 0.5 AND 9)`, trimOuter(bound.Args["where"].String()))
	assert.Equal(t, `a=put("value"), b=increment(2)`, bound.Args["set"].String())
	assert.Equal(t, &ast.Literal{Value: int64(10)}, bound.Args["limit"])
}

// trimOuter drops the parentheses around a top-level Or for readability.
func trimOuter(s string) string {
	if len(s) > 1 && s[0] == '(' && s[len(s)-1] == ')' {
		return s[1 : len(s)-1]
	}
	return s
}

func TestBindNodeValuesAreSpliced(t *testing.T) {
	where, err := parser.ParseWhere("@cond and b = 1")
	require.NoError(t, err)
	cond, err := parser.ParseWhere("a > 2")
	require.NoError(t, err)

	bound, err := BindExpr(where, map[string]any{"cond": cond})
	require.NoError(t, err)
	assert.Equal(t, "(a > 2 AND b = 1)", bound.String())

	// The spliced value is a copy.
	bound.(*ast.And).Left.(*ast.Comparison).Op = "<"
	assert.Equal(t, ">", cond.(*ast.Comparison).Op)
}

func TestBindMissingParameter(t *testing.T) {
	op, err := parser.ParseStatement("query where a = @missing")
	require.NoError(t, err)

	_, err = BindOperation(op, map[string]any{"other": 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrParameterNotFound))
	assert.Contains(t, err.Error(), "@missing")
}

func TestBindEmptyParamsIsIdentity(t *testing.T) {
	where, err := parser.ParseWhere("a = @p")
	require.NoError(t, err)

	same, err := BindExpr(where, nil)
	require.NoError(t, err)
	assert.Same(t, where, same)

	node, err := Bind(where, map[string]any{})
	require.NoError(t, err)
	assert.Same(t, where, node)
}

func TestBindNeverMutatesInput(t *testing.T) {
	where, err := parser.ParseWhere("a = @p and b in (@p, 3)")
	require.NoError(t, err)
	before := where.String()

	bound, err := BindExpr(where, map[string]any{"p": "x"})
	require.NoError(t, err)
	assert.Equal(t, `(a = "x" AND b in ("x", 3))`, bound.String())
	assert.Equal(t, before, where.String())
}

func TestBindBatch(t *testing.T) {
	op, err := parser.ParseStatement("batch get key @k1; delete key @k2; end")
	require.NoError(t, err)

	bound, err := BindOperation(op, map[string]any{"k1": "a", "k2": "b"})
	require.NoError(t, err)
	stmts, ok := bound.Nested()
	require.True(t, ok)
	assert.Equal(t, &ast.Literal{Value: "a"}, stmts.Operations[0].Args["key"])
	assert.Equal(t, &ast.Literal{Value: "b"}, stmts.Operations[1].Args["key"])
}

func TestBindUnusedParamsIsStructuralIdentity(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		field := rapid.StringMatching(`[a-z]{1,5}`).Draw(t, "field")
		n := rapid.Int64Range(-50, 50).Draw(t, "n")
		where := &ast.Comparison{Left: &ast.Field{Path: field}, Op: "=", Right: &ast.Literal{Value: n}}

		bound, err := BindExpr(where, map[string]any{"unused": n})
		require.NoError(t, err)
		require.Equal(t, where, bound)
		require.NotSame(t, where, bound)
	})
}
