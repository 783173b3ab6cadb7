package ast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderExpressions(t *testing.T) {
	tests := []struct {
		name string
		expr Expr
		want string
	}{
		{"string literal", &Literal{Value: "a\"b"}, `"a\"b"`},
		{"integral float", &Literal{Value: 3.0}, "3.0"},
		{"int", &Literal{Value: int64(-10)}, "-10"},
		{"null", &Literal{}, "null"},
		{"array", &Literal{Value: []any{int64(1), "x"}}, `[1, "x"]`},
		{"object", &Literal{Value: map[string]any{"b": true, "a": nil}}, `{"a": null, "b": true}`},
		{"parameter", &Parameter{Name: "p1"}, "@p1"},
		{"ref", &Ref{Path: "a.b"}, "{{a.b}}"},
		{"geo point", &GeoPoint{Lat: 1.5, Lon: 2}, "POINT(2.0 1.5)"},
		{
			"between",
			&Comparison{Left: &Field{Path: "x"}, Op: "between", Right: &List{Items: []Expr{&Literal{Value: int64(1)}, &Literal{Value: int64(10)}}}},
			"x between 1 AND 10",
		},
		{
			"not in",
			&Comparison{Left: &Field{Path: "x"}, Op: "not in", Right: &List{Items: []Expr{&Literal{Value: "a"}, &Literal{Value: "b"}}}},
			`x not in ("a", "b")`,
		},
		{
			"and or not",
			&Or{
				Left:  &And{Left: &Field{Path: "a"}, Right: &Field{Path: "b"}},
				Right: &Not{Expr: &Comparison{Left: &Field{Path: "c"}, Op: ">", Right: &Literal{Value: int64(2)}}},
			},
			"((a AND b) OR NOT c > 2)",
		},
		{"builtin function", &Function{Name: "exists"}, "exists()"},
		{
			"namespaced named args",
			&Function{Namespace: "geo", Name: "near", NamedArgs: []NamedArg{{Name: "k", Value: &Literal{Value: int64(3)}}}},
			"geo.near(k=3)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.expr.String())
		})
	}
}

func TestRenderClauses(t *testing.T) {
	assert.Equal(t, "*", (&Select{}).String())
	assert.Equal(t, "a, b AS c", (&Select{Terms: []SelectTerm{{Field: "a"}, {Field: "b", Alias: "c"}}}).String())
	assert.Equal(t, "a asc, b desc", (&OrderBy{Terms: []OrderByTerm{{Field: "a"}, {Field: "b", Direction: Desc}}}).String())
	assert.Equal(t, `orders`, (&Collection{Name: "orders"}).String())
	assert.Equal(t, `"my orders"`, (&Collection{Name: "my orders"}).String())

	u := NewUpdate().Increment("n", int64(-1)).Move("new", "old").Delete("tmp")
	assert.Equal(t, "n=increment(-1), new=move(old), tmp=delete()", u.String())
}

func TestRenderOperation(t *testing.T) {
	op := &Operation{Name: "query", Args: map[string]Node{
		"limit":    &Literal{Value: int64(10)},
		"where":    &Comparison{Left: &Field{Path: "x"}, Op: "=", Right: &Literal{Value: int64(1)}},
		"order_by": &OrderBy{Terms: []OrderByTerm{{Field: "x", Direction: Desc}}},
		"select":   &Select{},
	}}
	assert.Equal(t, "query select * where x = 1 order by x desc limit 10", op.String())

	batch := &Operation{Name: "batch", Args: map[string]Node{
		"batch": &Statements{Operations: []*Operation{{Name: "get", Args: map[string]Node{"key": &Parameter{Name: "k"}}}}},
	}}
	assert.Equal(t, "batch get key @k; end", batch.String())
	nested, ok := batch.Nested()
	require.True(t, ok)
	assert.Len(t, nested.Operations, 1)
}

func TestCloneIsIndependent(t *testing.T) {
	orig := &Comparison{
		Left:  &Field{Path: "tags"},
		Op:    "in",
		Right: &Literal{Value: []any{"a", map[string]any{"k": "v"}}},
	}
	cp := CloneExpr(orig).(*Comparison)
	require.Equal(t, orig, cp)

	cp.Left.(*Field).Path = "other"
	cp.Right.(*Literal).Value.([]any)[1].(map[string]any)["k"] = "changed"

	assert.Equal(t, "tags", orig.Left.(*Field).Path)
	assert.Equal(t, "v", orig.Right.(*Literal).Value.([]any)[1].(map[string]any)["k"])
}

func TestCloneOperation(t *testing.T) {
	op := &Operation{Name: "update", Args: map[string]Node{
		"set": NewUpdate().Put("a", int64(1)),
	}}
	cp := Clone(op).(*Operation)
	cp.Args["set"].(*Update).Operations[0].Field = "z"
	cp.Args["extra"] = &Literal{Value: true}

	assert.Equal(t, "a", op.Args["set"].(*Update).Operations[0].Field)
	assert.NotContains(t, op.Args, "extra")
}

func TestComparisonReversed(t *testing.T) {
	c := &Comparison{Left: &Literal{Value: int64(5)}, Op: "<", Right: &Field{Path: "x"}}
	r := c.Reversed()
	require.NotNil(t, r)
	assert.Equal(t, "x > 5", r.String())
	assert.Nil(t, (&Comparison{Op: "like"}).Reversed())
}

func TestUndefined(t *testing.T) {
	assert.True(t, IsUndefined(Undefined))
	assert.False(t, IsUndefined(nil))
	assert.Equal(t, "undefined", Undefined.(interface{ String() string }).String())
}
