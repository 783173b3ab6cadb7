package parser

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omniql-engine/x8ql/engine/ast"
	"github.com/omniql-engine/x8ql/engine/lexer"
)

func field(path string) *ast.Field { return &ast.Field{Path: path} }

func lit(v any) *ast.Literal { return &ast.Literal{Value: v} }

func cmpOp(l ast.Expr, op string, r ast.Expr) *ast.Comparison {
	return &ast.Comparison{Left: l, Op: op, Right: r}
}

func mustParse(t *testing.T, text, kind string) ast.Node {
	t.Helper()
	node, err := NewCache().Parse(text, kind)
	require.NoError(t, err)
	return node
}

func TestParseStatement(t *testing.T) {
	got := mustParse(t, `query select a, b AS c collection "orders" where $pk = 'pk00' and x in (1, 2) order by $id desc limit 10 offset 3`, KindStatement)

	want := &ast.Operation{Name: "query", Args: map[string]ast.Node{
		"select":     &ast.Select{Terms: []ast.SelectTerm{{Field: "a"}, {Field: "b", Alias: "c"}}},
		"collection": &ast.Collection{Name: "orders"},
		"where": &ast.And{
			Left:  cmpOp(field("$pk"), "=", lit("pk00")),
			Right: cmpOp(field("x"), "in", &ast.List{Items: []ast.Expr{lit(int64(1)), lit(int64(2))}}),
		},
		"order_by": &ast.OrderBy{Terms: []ast.OrderByTerm{{Field: "$id", Direction: ast.Desc}}},
		"limit":    lit(int64(10)),
		"offset":   lit(int64(3)),
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("statement mismatch (-want +got):\n%s", diff)
	}
}

func TestParseStatementKeywordsAnyCase(t *testing.T) {
	got := mustParse(t, `QUERY SELECT * WHERE a = TRUE ORDER BY a ASC RANK BY score(a) SEARCH text_search(q='x')`, KindStatement)
	op := got.(*ast.Operation)

	assert.Equal(t, "query", op.Name)
	assert.Equal(t, &ast.Select{}, op.Args["select"])
	assert.Equal(t, cmpOp(field("a"), "=", lit(true)), op.Args["where"])
	assert.Equal(t, &ast.OrderBy{Terms: []ast.OrderByTerm{{Field: "a", Direction: ast.Asc}}}, op.Args["order_by"])
	assert.Equal(t, &ast.Function{Namespace: "builtin", Name: "score", Args: []ast.Expr{field("a")}}, op.Args["rank_by"])
	assert.Equal(t, &ast.Function{
		Namespace: "builtin",
		Name:      "text_search",
		NamedArgs: []ast.NamedArg{{Name: "q", Value: lit("x")}},
	}, op.Args["search"])
}

func TestParseGenericClauses(t *testing.T) {
	got := mustParse(t, `UPDATE KEY {"id": "k1"} SET a=increment(1) WHERE exists() RETURNING "new"`, KindStatement)
	op := got.(*ast.Operation)

	assert.Equal(t, "update", op.Name)
	assert.Equal(t, lit(map[string]any{"id": "k1"}), op.Args["key"])
	assert.Equal(t, lit("new"), op.Args["returning"])
	assert.Equal(t, &ast.Function{Namespace: "builtin", Name: "exists"}, op.Args["where"])
	assert.Equal(t, &ast.Update{Operations: []ast.UpdateOperation{{Field: "a", Op: "increment", Args: []ast.Expr{lit(int64(1))}}}}, op.Args["set"])
}

func TestParseClauseParameters(t *testing.T) {
	got := mustParse(t, `GET KEY @p1 SELECT @sel ORDER BY @ord SET @upd COLLECTION @coll WHERE @p2`, KindStatement)
	op := got.(*ast.Operation)
	for key, name := range map[string]string{"key": "p1", "select": "sel", "order_by": "ord", "set": "upd", "collection": "coll", "where": "p2"} {
		assert.Equal(t, &ast.Parameter{Name: name}, op.Args[key], key)
	}
}

func TestParseMultiStatement(t *testing.T) {
	got := mustParse(t, `BATCH PUT VALUE {"a": 1} WHERE not_exists(); DELETE KEY @p1; END`, KindStatement)
	op := got.(*ast.Operation)
	require.Equal(t, "batch", op.Name)

	stmts, ok := op.Nested()
	require.True(t, ok)
	require.Len(t, stmts.Operations, 2)
	assert.Equal(t, "put", stmts.Operations[0].Name)
	assert.Equal(t, lit(map[string]any{"a": int64(1)}), stmts.Operations[0].Args["value"])
	assert.Equal(t, "delete", stmts.Operations[1].Name)

	tx := mustParse(t, "transact get key 1; get key 2 end", KindStatement).(*ast.Operation)
	assert.Equal(t, "transact", tx.Name)
	assert.Contains(t, tx.Args, "transaction")
	nested, ok := tx.Nested()
	require.True(t, ok)
	assert.Len(t, nested.Operations, 2)
}

func TestParsePrecedence(t *testing.T) {
	tests := []struct {
		name string
		text string
		want ast.Expr
	}{
		{
			"not over and over or",
			"a = 1 or b = 2 and not c = 3",
			&ast.Or{
				Left: cmpOp(field("a"), "=", lit(int64(1))),
				Right: &ast.And{
					Left:  cmpOp(field("b"), "=", lit(int64(2))),
					Right: &ast.Not{Expr: cmpOp(field("c"), "=", lit(int64(3)))},
				},
			},
		},
		{
			"parentheses",
			"(a = 1 or b = 2) and c",
			&ast.And{
				Left:  &ast.Or{Left: cmpOp(field("a"), "=", lit(int64(1))), Right: cmpOp(field("b"), "=", lit(int64(2)))},
				Right: field("c"),
			},
		},
		{
			"left associative",
			"a and b and c",
			&ast.And{Left: &ast.And{Left: field("a"), Right: field("b")}, Right: field("c")},
		},
		{
			"between consumes its and",
			"x between -1 and 10.5 and y",
			&ast.And{
				Left:  cmpOp(field("x"), "between", &ast.List{Items: []ast.Expr{lit(int64(-1)), lit(10.5)}}),
				Right: field("y"),
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mustParse(t, tt.text, KindWhere)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseComparisons(t *testing.T) {
	tests := []struct {
		text string
		want ast.Expr
	}{
		{"x != 'a'", cmpOp(field("x"), "!=", lit("a"))},
		{"x <= 5", cmpOp(field("x"), "<=", lit(int64(5)))},
		{"x not in ('a', @b)", cmpOp(field("x"), "not in", &ast.List{Items: []ast.Expr{lit("a"), &ast.Parameter{Name: "b"}}})},
		{"x in 5", cmpOp(field("x"), "in", lit(int64(5)))},
		{"x in []", cmpOp(field("x"), "in", lit([]any{}))},
		{"name like '^ab'", cmpOp(field("name"), "like", lit("^ab"))},
		{"arrobj[0].ostr = {{ctx.user}}", cmpOp(field("arrobj[0].ostr"), "=", &ast.Ref{Path: "ctx.user"})},
		{"arrstr[-] = null", cmpOp(field("arrstr[-]"), "=", lit(nil))},
		{"$metadata.int > -800.1", cmpOp(field("$metadata.int"), ">", lit(-800.1))},
		{"tags = [1, [\"a\"], {\"b\": 2.0}]", cmpOp(field("tags"), "=", lit([]any{int64(1), []any{"a"}, map[string]any{"b": 2.0}}))},
		{"length(name) >= 3", cmpOp(&ast.Function{Namespace: "builtin", Name: "length", Args: []ast.Expr{field("name")}}, ">=", lit(int64(3)))},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got := mustParse(t, tt.text, KindWhere)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseFunctions(t *testing.T) {
	got := mustParse(t, `Geo.Near(point=POINT(1.5 2.5), k=3)`, KindSearch)
	assert.Equal(t, &ast.Function{
		Namespace: "geo",
		Name:      "near",
		NamedArgs: []ast.NamedArg{
			{Name: "point", Value: &ast.GeoPoint{Lat: 2.5, Lon: 1.5}},
			{Name: "k", Value: lit(int64(3))},
		},
	}, got)

	got = mustParse(t, `is_type(a, "string")`, KindWhere)
	assert.Equal(t, &ast.Function{Namespace: "builtin", Name: "is_type", Args: []ast.Expr{field("a"), lit("string")}}, got)
}

func TestParseSelectAndOrderBy(t *testing.T) {
	assert.Equal(t, &ast.Select{}, mustParse(t, "*", KindSelect))
	assert.Equal(t,
		&ast.Select{Terms: []ast.SelectTerm{{Field: "a.b", Alias: "x"}, {Field: "c[0]"}}},
		mustParse(t, "a.b as x, c[0]", KindSelect))
	assert.Equal(t,
		&ast.OrderBy{Terms: []ast.OrderByTerm{{Field: "a"}, {Field: "b", Direction: ast.Desc}}},
		mustParse(t, "a, b DESC", KindOrderBy))
	assert.Equal(t, &ast.Collection{Name: "orders.archive"}, mustParse(t, "orders.archive", KindCollection))
	assert.Equal(t, &ast.Parameter{Name: "sel"}, mustParse(t, "@sel", KindSelect))

	_, err := NewCache().ParseSelect("@sel")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unbound parameter")
}

func TestParseUpdate(t *testing.T) {
	got := mustParse(t, `arrstr=move(newarrstr), newobj=put({"int": 90}), tags[-]=insert("c"), n=increment(-10), tmp=delete(), s=APPEND('Universe')`, KindUpdate)
	want := &ast.Update{Operations: []ast.UpdateOperation{
		{Field: "arrstr", Op: "move", Args: []ast.Expr{field("newarrstr")}},
		{Field: "newobj", Op: "put", Args: []ast.Expr{lit(map[string]any{"int": int64(90)})}},
		{Field: "tags[-]", Op: "insert", Args: []ast.Expr{lit("c")}},
		{Field: "n", Op: "increment", Args: []ast.Expr{lit(int64(-10))}},
		{Field: "tmp", Op: "delete"},
		{Field: "s", Op: "append", Args: []ast.Expr{lit("Universe")}},
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestParseEmptyInput(t *testing.T) {
	c := NewCache()
	for _, kind := range []string{KindStatement, KindWhere, KindSelect, KindCollection, KindOrderBy, KindRankBy, KindSearch, KindUpdate} {
		node, err := c.Parse("  \n\t ", kind)
		require.NoError(t, err, kind)
		assert.Nil(t, node, kind)
	}
	where, err := c.ParseWhere("")
	require.NoError(t, err)
	assert.Nil(t, where)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		text string
		kind string
		want string
	}{
		{"a = ", KindWhere, "line 1:5 unexpected end of input, expected operand"},
		{"a = 1 )", KindWhere, "line 1:7 unexpected ) after where"},
		{"x in (1, 2", KindWhere, "line 1:11 expected ',' or ')', got end of input"},
		{"f(1, k=2)", KindWhere, "line 1:6 cannot mix positional and named arguments"},
		{"query\nwhere a = ", KindStatement, "line 2:11 unexpected end of input, expected operand"},
		{"query where a = 1 where b = 2", KindStatement, "line 1:19 duplicate clause 'where'"},
		{"batch get key 1;", KindStatement, "line 1:17 expected 'END' to close BATCH"},
		{"a=incremnt(1)", KindUpdate, "line 1:3 unknown update operation 'incremnt'. Did you mean 'increment'?"},
		{"a=put(1, 2)", KindUpdate, "line 1:3 put takes at most 1 argument(s), got 2"},
		{"x between 1 10", KindWhere, "line 1:13 expected 'AND', got 10"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			_, err := NewCache().Parse(tt.text, tt.kind)
			require.Error(t, err)
			var perr *lexer.ParseError
			require.True(t, errors.As(err, &perr), "want ParseError, got %T", err)
			assert.Equal(t, tt.want, err.Error())
		})
	}
}

func TestParseUnknownKind(t *testing.T) {
	_, err := NewCache().Parse("a = 1", "having")
	require.Error(t, err)
	var perr *lexer.ParseError
	assert.False(t, errors.As(err, &perr))
}
