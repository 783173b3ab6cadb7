package processor

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/omniql-engine/x8ql/engine/accessor"
	"github.com/omniql-engine/x8ql/engine/ast"
	"github.com/omniql-engine/x8ql/engine/parser"
)

func where(t testing.TB, text string) ast.Expr {
	t.Helper()
	e, err := parser.ParseWhere(text)
	require.NoError(t, err, text)
	return e
}

func orderBy(t testing.TB, text string) *ast.OrderBy {
	t.Helper()
	o, err := parser.ParseOrderBy(text)
	require.NoError(t, err, text)
	return o
}

func fixed(now time.Time) Option { return WithClock(func() time.Time { return now }) }

func products() []any {
	return []any{
		map[string]any{"id": "p1", "name": "Lamp", "price": int64(30), "tags": []any{"home", "light"}, "stock": map[string]any{"n": int64(4)}},
		map[string]any{"id": "p2", "name": "Desk", "price": 120.5, "tags": []any{"home"}, "stock": map[string]any{"n": int64(0)}},
		map[string]any{"id": "p3", "name": "Pen", "price": int64(2), "tags": []any{}},
		map[string]any{"id": "p4", "name": "Lantern", "price": int64(30), "tags": []any{"outdoor", "light"}, "discontinued": true},
	}
}

func ids(items []any) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i], _ = accessor.Get(it, "id").(string)
	}
	return out
}

func TestFilter(t *testing.T) {
	p := New()
	tests := []struct {
		where string
		want  []string
	}{
		{`price = 30`, []string{"p1", "p4"}},
		{`price = 30.0`, []string{"p1", "p4"}},
		{`price != 30`, []string{"p2", "p3"}},
		{`price > 10 and price <= 120.5`, []string{"p1", "p2", "p4"}},
		{`price < 10 or name = "Desk"`, []string{"p2", "p3"}},
		{`not (price >= 30)`, []string{"p3"}},
		{`name > "L"`, []string{"p1", "p3", "p4"}},
		{`name > 5`, nil},
		{`price between 2 and 30`, []string{"p1", "p3", "p4"}},
		{`id in ("p1", "p3", "zz")`, []string{"p1", "p3"}},
		{`id not in ("p1", "p3")`, []string{"p2", "p4"}},
		{`name like "La"`, []string{"p1", "p4"}},
		{`name like "a"`, nil},
		{`name like "L.*n$"`, []string{"p4"}},
		{`price like "3"`, nil},
		{`stock.n = 0`, []string{"p2"}},
		{`tags[0] = "home"`, []string{"p1", "p2"}},
		{`tags[-] = "light"`, []string{"p1", "p4"}},
		{`discontinued`, []string{"p4"}},
		{`is_defined(stock)`, []string{"p1", "p2"}},
		{`is_not_defined(stock.n)`, []string{"p3", "p4"}},
		{`is_type(price, "number") and is_type(name, "string")`, []string{"p1", "p2", "p3", "p4"}},
		{`is_type(tags, "array") and is_type(stock, "object")`, []string{"p1", "p2"}},
		{`is_type(discontinued, "boolean")`, []string{"p4"}},
		{`length(name) = 3`, []string{"p3"}},
		{`length(price) = 0`, []string{"p1", "p2", "p3", "p4"}},
		{`contains(name, "an")`, []string{"p4"}},
		{`starts_with(name, "L")`, []string{"p1", "p4"}},
		{`ends_with(name, "n")`, []string{"p3", "p4"}},
		{`ends_with(price, "0")`, nil},
		{`array_length(tags) = 2`, []string{"p1", "p4"}},
		{`array_contains(tags, "light")`, []string{"p1", "p4"}},
		{`array_contains_any(tags, ["outdoor", "home"])`, []string{"p1", "p2", "p4"}},
		{`exists()`, []string{"p1", "p2", "p3", "p4"}},
	}
	for _, tt := range tests {
		t.Run(tt.where, func(t *testing.T) {
			got, err := p.Filter(products(), where(t, tt.where))
			require.NoError(t, err)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestFilterNilKeepsAll(t *testing.T) {
	items := products()
	got, err := New().Filter(items, nil)
	require.NoError(t, err)
	assert.Equal(t, items, got)
}

func TestEvalErrors(t *testing.T) {
	p := New()
	tests := []struct {
		expr string
		want error
		msg  string
	}{
		{`x in 5`, ErrNotSequence, ""},
		{`x not in "abc"`, ErrNotSequence, ""},
		{`x between 1 and 2 and y`, nil, ""},
		{`is_type(x, "float")`, ErrInvalidArgument, ""},
		{`is_type(x, 1)`, ErrInvalidArgument, ""},
		{`starts_with_delimited(name, 1, "/")`, ErrInvalidArgument, "prefix must be a string or null"},
		{`starts_with_delimited(name, "x", "")`, ErrInvalidArgument, "delimiter must be a non-empty string"},
		{`starts_with_delimited(name, "x")`, ErrInvalidArgument, "takes 3 argument(s), got 2"},
		{`vector_search(field="v", vector=[1, 2])`, ErrUnsupported, "function vector_search not supported"},
		{`ext.f(1)`, ErrUnsupported, "function ext.f not supported"},
		{`length(a, b)`, ErrInvalidArgument, "length takes 1 argument(s), got 2"},
		{`a = @p`, ErrInvalidArgument, "unbound parameter @p"},
		{`a like "("`, ErrInvalidArgument, ""},
		{`a = {{ref}}`, ErrUnsupported, ""},
	}
	item := map[string]any{"x": int64(1), "y": true, "name": "n", "a": "("}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			_, err := p.Eval(item, where(t, tt.expr))
			if tt.want == nil {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), err.Error())
			if tt.msg != "" {
				assert.Contains(t, err.Error(), tt.msg)
			}
		})
	}
}

func TestStartsWithDelimited(t *testing.T) {
	var items []any
	for _, id := range []string{"abc/1", "data/ab/x", "data/f1", "data/f2", "data/xy/y", "root", "top"} {
		items = append(items, map[string]any{"id": id})
	}
	p := New()
	tests := []struct {
		where string
		want  []string
	}{
		{`starts_with_delimited(id, null, "/")`, []string{"root", "top"}},
		{`starts_with_delimited(id, "data/", "/")`, []string{"data/f1", "data/f2"}},
		{`starts_with_delimited(id, "data", "/")`, nil},
		{`starts_with_delimited(missing, "", "/")`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.where, func(t *testing.T) {
			got, err := p.Filter(items, where(t, tt.where))
			require.NoError(t, err)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestBetweenNeedsTwoBounds(t *testing.T) {
	cmp := &ast.Comparison{
		Left:  &ast.Field{Path: "x"},
		Op:    "between",
		Right: &ast.List{Items: []ast.Expr{&ast.Literal{Value: int64(1)}}},
	}
	_, err := New().Eval(map[string]any{"x": int64(1)}, cmp)
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}

func TestBetween(t *testing.T) {
	p := New()
	item := map[string]any{"x": int64(5)}

	got, err := p.Eval(item, where(t, "x between 1 and 10"))
	require.NoError(t, err)
	assert.Equal(t, true, got)

	got, err = p.Eval(item, where(t, "x between 6 and 10"))
	require.NoError(t, err)
	assert.Equal(t, false, got)

	got, err = p.Eval(item, where(t, `x between "a" and "z"`))
	require.NoError(t, err)
	assert.Equal(t, false, got)
}

func TestEvalNilIsTrue(t *testing.T) {
	v, err := New().Eval(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, true, v)

	v, err = New().Eval(nil, where(t, "exists()"))
	require.NoError(t, err)
	assert.Equal(t, false, v)

	v, err = New().Eval(nil, where(t, "not_exists()"))
	require.NoError(t, err)
	assert.Equal(t, true, v)
}

func TestNowAndRandom(t *testing.T) {
	at := time.Date(2024, 3, 9, 17, 4, 5, 123456000, time.FixedZone("X", 3600))
	p := New(fixed(at), WithRandom(func() float64 { return 0.25 }))

	v, err := p.Eval(nil, where(t, "now()"))
	require.NoError(t, err)
	assert.Equal(t, "2024-03-09 16:04:05.123456+0000", v)

	v, err = p.Eval(nil, where(t, "random()"))
	require.NoError(t, err)
	assert.Equal(t, 0.25, v)

	v, err = New().Eval(nil, where(t, "random()"))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, v.(float64), 0.0)
	assert.Less(t, v.(float64), 1.0)
}

func TestOrder(t *testing.T) {
	p := New()

	got := p.Order(products(), orderBy(t, "price desc, name"))
	assert.Equal(t, []string{"p2", "p1", "p4", "p3"}, ids(got))

	got = p.Order(products(), orderBy(t, "stock.n"))
	assert.Equal(t, []string{"p2", "p1"}, ids(got))

	got = p.Order([]any{map[string]any{"a": int64(1)}, map[string]any{"b": int64(2)}}, orderBy(t, "a asc"))
	assert.Equal(t, []any{map[string]any{"a": int64(1)}}, got)
}

func TestOrderIsStableAcrossTypes(t *testing.T) {
	items := []any{
		map[string]any{"id": "s", "v": "x"},
		map[string]any{"id": "n1", "v": int64(2)},
		map[string]any{"id": "null", "v": nil},
		map[string]any{"id": "n2", "v": 1.5},
		map[string]any{"id": "b", "v": true},
		map[string]any{"id": "n3", "v": int64(2)},
	}
	got := New().Order(items, orderBy(t, "v"))
	assert.Equal(t, []string{"null", "b", "n2", "n1", "n3", "s"}, ids(got))
}

func TestProject(t *testing.T) {
	p := New()
	items := products()

	same, err := p.Project(items, nil)
	require.NoError(t, err)
	assert.Equal(t, items, same)

	same, err = p.Project(items, &ast.Select{})
	require.NoError(t, err)
	assert.Equal(t, items, same)

	sel, err := parser.ParseSelect("name, stock.n AS count, tags[0] AS first")
	require.NoError(t, err)
	got, err := p.Project(items[:3], sel)
	require.NoError(t, err)
	assert.Equal(t, []any{
		map[string]any{"name": "Lamp", "count": int64(4), "first": "home"},
		map[string]any{"name": "Desk", "count": int64(0), "first": "home"},
		map[string]any{"name": "Pen"},
	}, got)

	sel, err = parser.ParseSelect("stock.n")
	require.NoError(t, err)
	got, err = p.Project(items[:1], sel)
	require.NoError(t, err)
	assert.Equal(t, []any{map[string]any{"stock": map[string]any{"n": int64(4)}}}, got)
}

func TestLimit(t *testing.T) {
	p := New()
	items := []any{1, 2, 3, 4, 5}
	n := func(v int64) *int64 { return &v }

	tests := []struct {
		limit, offset *int64
		want          []any
	}{
		{nil, nil, []any{1, 2, 3, 4, 5}},
		{n(2), nil, []any{1, 2}},
		{n(2), n(1), []any{2, 3}},
		{nil, n(3), []any{4, 5}},
		{n(10), n(4), []any{5}},
		{n(1), n(9), []any{}},
		{n(0), nil, []any{}},
	}
	for _, tt := range tests {
		got, err := p.Limit(items, tt.limit, tt.offset)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := p.Limit(items, n(-1), nil)
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}

func TestQuery(t *testing.T) {
	p := New()
	sel, err := parser.ParseSelect("id")
	require.NoError(t, err)
	limit := int64(2)

	got, err := p.Query(products(), QueryArgs{
		Where:   where(t, "array_contains(tags, \"light\") or price < 100"),
		OrderBy: orderBy(t, "price desc, id desc"),
		Select:  sel,
		Limit:   &limit,
	})
	require.NoError(t, err)
	assert.Equal(t, []any{map[string]any{"id": "p4"}, map[string]any{"id": "p1"}}, got)

	got, err = p.QueryText(products(), `query where price >= 30 order by name limit 2 offset 1`)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p4"}, ids(got))
}

func TestUpdateItem(t *testing.T) {
	p := New()
	item := map[string]any{"tags": []any{"a", "b"}}

	got, err := p.UpdateText(item, `tags[-]=insert("c")`)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"tags": []any{"a", "b", "c"}}, got)

	got, err = p.UpdateText(item, `tags[0]=delete()`)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"tags": []any{"b"}}, got)

	assert.Equal(t, map[string]any{"tags": []any{"a", "b"}}, item, "input must not change")

	got, err = p.UpdateText(map[string]any{"a": int64(1)}, "b=move(a)")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"b": int64(1)}, got)

	got, err = p.UpdateText(map[string]any{"n": int64(1), "s": "b"},
		`n=increment(n), s=prepend("a"), s=append("c"), copy=put(s), list=array_union([1, 2]), list=array_union([2, 3]), list=array_remove([1])`)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"n": int64(2), "s": "abc", "copy": "abc", "list": []any{int64(2), int64(3)},
	}, got)
}

func TestUpdateItemErrors(t *testing.T) {
	p := New()

	_, err := p.UpdateText(map[string]any{}, "b=move(a)")
	assert.True(t, errors.Is(err, accessor.ErrSourceNotFound))

	_, err = p.UpdateText(map[string]any{"l": []any{}}, "l[3]=put(1)")
	assert.True(t, errors.Is(err, accessor.ErrIndexOutOfRange))

	_, err = p.UpdateText(map[string]any{}, "a=put(missing)")
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	_, err = p.UpdateItem(map[string]any{}, &ast.Update{Operations: []ast.UpdateOperation{{Field: "a", Op: "put"}}})
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	_, err = p.UpdateText(map[string]any{"tags": []any{map[string]any{}}}, "tags[-].x=put(1)")
	assert.True(t, errors.Is(err, accessor.ErrInvalidPath))
}

type account struct {
	Name  string           `json:"name"`
	Meta  map[string]any   `json:"meta"`
	Quota map[string]int64 `json:"quota"`
	Home  *account         `json:"home"`
}

func TestUpdateRecordWithUnsetFields(t *testing.T) {
	p := New()
	in := &account{Name: "x"}

	got, err := p.UpdateText(in, "meta.k=put(1), quota.disk=increment(5), home.name=put(\"y\")")
	require.NoError(t, err)
	out, ok := got.(*account)
	require.True(t, ok, "%T", got)
	assert.Equal(t, map[string]any{"k": int64(1)}, out.Meta)
	assert.Equal(t, map[string]int64{"disk": 5}, out.Quota)
	require.NotNil(t, out.Home)
	assert.Equal(t, "y", out.Home.Name)

	assert.Nil(t, in.Meta, "input must not change")
}

func TestFieldResolver(t *testing.T) {
	p := New(WithFieldResolver(func(path string) string {
		if strings.HasPrefix(path, "$") {
			return "meta." + path[1:]
		}
		return "value." + path
	}))
	items := []any{
		map[string]any{"value": map[string]any{"a": int64(1)}, "meta": map[string]any{"id": "x"}},
		map[string]any{"value": map[string]any{"a": int64(2)}, "meta": map[string]any{"id": "y"}},
	}

	got, err := p.FilterText(items, `a = 2 and $id = "y"`)
	require.NoError(t, err)
	assert.Equal(t, items[1:], got)

	out, err := p.UpdateText(items[0], "b=put(a)")
	require.NoError(t, err)
	assert.Equal(t, int64(1), accessor.Get(out, "value.b"))

	assert.Equal(t, []string{"value.a", "meta.id"}, p.ExtractFields(where(t, `a = 2 and $id = "y"`)))
}

func TestExtractFields(t *testing.T) {
	p := New()
	assert.Equal(t, []string{"a.b", "c"}, p.ExtractFields(where(t, "a.b=1 and c>2")))
	assert.Equal(t, []string{"tags", "x", "y"},
		p.ExtractFields(where(t, `tags[0] = "a" or (array_contains(tags, x) and not y in (x, 1))`)))
	assert.Empty(t, p.ExtractFields(nil))
}

func TestCountMatchesQuery(t *testing.T) {
	p := New()
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 30).Draw(t, "n")
		items := make([]any, n)
		for i := range items {
			items[i] = map[string]any{"v": rapid.Int64Range(0, 10).Draw(t, "v")}
		}
		threshold := rapid.Int64Range(0, 10).Draw(t, "threshold")
		expr := &ast.Comparison{Left: &ast.Field{Path: "v"}, Op: ">=", Right: &ast.Literal{Value: threshold}}

		count, err := p.Count(items, expr)
		require.NoError(t, err)
		rows, err := p.Query(items, QueryArgs{Where: expr})
		require.NoError(t, err)
		require.Equal(t, len(rows), count)
	})
}

func TestPutIsIdempotent(t *testing.T) {
	p := New()
	rapid.Check(t, func(t *rapid.T) {
		item := map[string]any{"a": rapid.Int64().Draw(t, "a")}
		upd := ast.NewUpdate().Put(rapid.SampledFrom([]string{"a", "b", "c.d"}).Draw(t, "field"), rapid.String().Draw(t, "v"))

		once, err := p.UpdateItem(item, upd)
		require.NoError(t, err)
		twice, err := p.UpdateItem(once, upd)
		require.NoError(t, err)
		require.Equal(t, once, twice)
	})
}

func TestOrderedItemsAreSortedAndComplete(t *testing.T) {
	p := New()
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 20).Draw(t, "n")
		items := make([]any, n)
		defined := 0
		for i := range items {
			if rapid.Bool().Draw(t, "has") {
				items[i] = map[string]any{"k": rapid.Int64Range(-5, 5).Draw(t, "k"), "i": int64(i)}
				defined++
			} else {
				items[i] = map[string]any{"i": int64(i)}
			}
		}
		sorted := p.Order(items, &ast.OrderBy{Terms: []ast.OrderByTerm{{Field: "k"}}})
		require.Len(t, sorted, defined)
		for i := 1; i < len(sorted); i++ {
			prev, cur := sorted[i-1].(map[string]any), sorted[i].(map[string]any)
			require.LessOrEqual(t, prev["k"].(int64), cur["k"].(int64))
			if prev["k"] == cur["k"] {
				require.Less(t, prev["i"].(int64), cur["i"].(int64), "stable")
			}
		}
	})
}
