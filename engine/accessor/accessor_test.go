package accessor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"pgregory.net/rapid"

	"github.com/omniql-engine/x8ql/engine/ast"
	"github.com/omniql-engine/x8ql/mapping"
)

func sample() map[string]any {
	return map[string]any{
		"name": "widget",
		"tags": []any{"a", "b", "c"},
		"meta": map[string]any{
			"sizes": []any{int64(1), int64(2)},
			"owner": map[string]any{"id": "u1"},
		},
		"$metadata": map[string]any{"int": int64(7)},
		"nothing":   nil,
	}
}

func TestGet(t *testing.T) {
	item := sample()
	tests := []struct {
		path string
		want any
	}{
		{"name", "widget"},
		{"tags[0]", "a"},
		{"tags.1", "b"},
		{"tags[-]", "c"},
		{"meta.sizes[1]", int64(2)},
		{"meta.owner.id", "u1"},
		{"$metadata.int", int64(7)},
		{"nothing", nil},
		{"", item},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, Get(item, tt.path))
		})
	}
}

func TestGetUndefined(t *testing.T) {
	item := sample()
	for _, path := range []string{"missing", "tags[3]", "name.x", "meta.sizes.x", "meta.owner.id.deeper"} {
		assert.True(t, ast.IsUndefined(Get(item, path)), path)
	}
	assert.True(t, ast.IsUndefined(Get(map[string]any{"l": []any{}}, "l[-]")))

	v, ok := Lookup(item, "nothing")
	assert.True(t, ok)
	assert.Nil(t, v)
}

func TestSplitPath(t *testing.T) {
	assert.Equal(t, []string{"a", "0", "b", "-"}, SplitPath("a[0].b[-]"))
	assert.Equal(t, []string{"$metadata", "int"}, SplitPath("$metadata.int"))
	assert.Empty(t, SplitPath(""))
	assert.Equal(t, "a.0.b", NormalizePath("a[0].b"))
}

func TestUpdateSequence(t *testing.T) {
	tests := []struct {
		name string
		path string
		op   string
		arg  any
		want []any
	}{
		{"put index", "l[1]", mapping.UpdatePut, "x", []any{"a", "x", "c"}},
		{"put last", "l[-]", mapping.UpdatePut, "x", []any{"a", "b", "x"}},
		{"insert index", "l[0]", mapping.UpdateInsert, "x", []any{"x", "a", "b", "c"}},
		{"insert at len", "l[3]", mapping.UpdateInsert, "x", []any{"a", "b", "c", "x"}},
		{"append", "l[-]", mapping.UpdateInsert, "x", []any{"a", "b", "c", "x"}},
		{"delete index", "l.1", mapping.UpdateDelete, nil, []any{"a", "c"}},
		{"delete last", "l[-]", mapping.UpdateDelete, nil, []any{"a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := map[string]any{"l": []any{"a", "b", "c"}}
			out, err := Update(item, tt.path, tt.op, tt.arg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, Get(out, "l"))
		})
	}
}

func TestUpdateSequenceErrors(t *testing.T) {
	tests := []struct {
		name string
		item map[string]any
		path string
		op   string
		arg  any
		want error
	}{
		{"put out of range", map[string]any{"l": []any{1}}, "l[1]", mapping.UpdatePut, 2, ErrIndexOutOfRange},
		{"insert past len", map[string]any{"l": []any{1}}, "l[2]", mapping.UpdateInsert, 2, ErrIndexOutOfRange},
		{"put last of empty", map[string]any{"l": []any{}}, "l[-]", mapping.UpdatePut, 2, ErrIndexOutOfRange},
		{"delete last of empty", map[string]any{"l": []any{}}, "l[-]", mapping.UpdateDelete, nil, ErrIndexOutOfRange},
		{"increment string", map[string]any{"l": []any{"s"}}, "l[0]", mapping.UpdateIncrement, 1, ErrNotNumeric},
		{"increment last", map[string]any{"l": []any{1}}, "l[-]", mapping.UpdateIncrement, 1, ErrUnsupportedOp},
		{"union on element", map[string]any{"l": []any{1}}, "l[0]", mapping.UpdateArrayUnion, []any{1}, ErrUnsupportedOp},
		{"move element", map[string]any{"l": []any{1}}, "l[0]", mapping.UpdateMove, "x", ErrUnsupportedOp},
		{"last before suffix", map[string]any{"l": []any{map[string]any{}}}, "l[-].x", mapping.UpdatePut, 1, ErrInvalidPath},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Update(tt.item, tt.path, tt.op, tt.arg)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), err.Error())
		})
	}
}

func TestUpdateIncrementElement(t *testing.T) {
	item := map[string]any{"l": []any{int64(1), 2.5}}
	out, err := Update(item, "l[0]", mapping.UpdateIncrement, int64(4))
	require.NoError(t, err)
	out, err = Update(out, "l[1]", mapping.UpdateIncrement, int64(1))
	require.NoError(t, err)
	assert.Equal(t, []any{int64(5), 3.5}, Get(out, "l"))
}

func TestUpdateNamed(t *testing.T) {
	item := map[string]any{
		"n":    int64(1),
		"s":    "mid",
		"tags": []any{"a", "b"},
		"src":  map[string]any{"v": true},
	}

	steps := []struct {
		path, op string
		arg      any
	}{
		{"n", mapping.UpdateIncrement, int64(2)},
		{"fresh", mapping.UpdateIncrement, 0.5},
		{"s", mapping.UpdateAppend, "-end"},
		{"s", mapping.UpdatePrepend, "start-"},
		{"blank", mapping.UpdateAppend, "x"},
		{"tags", mapping.UpdateArrayUnion, []any{"b", "c", "c"}},
		{"tags", mapping.UpdateArrayRemove, []any{"a"}},
		{"src", mapping.UpdateMove, "dst.inner"},
		{"deep.er.key", mapping.UpdatePut, "made"},
		{"gone", mapping.UpdateDelete, nil},
	}
	var out any = item
	for _, s := range steps {
		var err error
		out, err = Update(out, s.path, s.op, s.arg)
		require.NoError(t, err, s.path)
	}

	assert.Equal(t, map[string]any{
		"n":     int64(3),
		"fresh": 0.5,
		"s":     "start-mid-end",
		"blank": "x",
		"tags":  []any{"b", "c"},
		"dst":   map[string]any{"inner": map[string]any{"v": true}},
		"deep":  map[string]any{"er": map[string]any{"key": "made"}},
	}, out)
}

func TestUpdateNamedErrors(t *testing.T) {
	_, err := Update(map[string]any{"n": "x"}, "n", mapping.UpdateIncrement, 1)
	assert.True(t, errors.Is(err, ErrNotNumeric))

	_, err = Update(map[string]any{}, "n", mapping.UpdateIncrement, "1")
	assert.True(t, errors.Is(err, ErrNotNumeric))

	_, err = Update(map[string]any{}, "a", mapping.UpdateMove, "b")
	assert.True(t, errors.Is(err, ErrSourceNotFound))

	_, err = Update(map[string]any{"a": 5}, "a.b", mapping.UpdatePut, 1)
	assert.True(t, errors.Is(err, ErrNotContainer))

	_, err = Update(map[string]any{"a": 5}, "a", mapping.UpdateArrayUnion, []any{1})
	assert.True(t, errors.Is(err, ErrNotSequence))

	_, err = Update(map[string]any{}, "a", "explode", nil)
	assert.True(t, errors.Is(err, ErrUnsupportedOp))
}

func TestUpdateReflectMaps(t *testing.T) {
	doc := bson.M{"count": int32(1), "nested": bson.M{"x": "y"}}
	_, err := Update(doc, "count", mapping.UpdateIncrement, int64(2))
	require.NoError(t, err)
	_, err = Update(doc, "nested.x", mapping.UpdateAppend, "z")
	require.NoError(t, err)

	assert.Equal(t, int64(3), doc["count"])
	assert.Equal(t, "yz", Get(doc, "nested.x"))

	typed := map[string]int{"a": 1}
	_, err = Update(typed, "a", mapping.UpdateIncrement, int64(4))
	require.NoError(t, err)
	assert.Equal(t, 5, typed["a"])

	_, err = Update(typed, "a", mapping.UpdatePut, "nope")
	assert.True(t, errors.Is(err, ErrTypeMismatch))
}

type address struct {
	City string `json:"city"`
}

type person struct {
	Name    string   `json:"name"`
	Age     int      `json:"age"`
	Tags    []string `json:"tags"`
	Home    address  `json:"home"`
	Nick    string
	Skipped string `json:"-"`
}

func TestRecordContainer(t *testing.T) {
	p := &person{Name: "ann", Age: 30, Tags: []string{"x"}, Home: address{City: "Oslo"}, Nick: "a"}

	assert.Equal(t, "ann", Get(p, "name"))
	assert.Equal(t, "Oslo", Get(p, "home.city"))
	assert.Equal(t, "x", Get(p, "tags[0]"))
	assert.Equal(t, "a", Get(p, "Nick"))
	assert.Equal(t, "a", Get(p, "nick"))
	assert.True(t, ast.IsUndefined(Get(p, "Skipped")))
	assert.True(t, ast.IsUndefined(Get(p, "missing")))

	// Records read by value work too.
	assert.Equal(t, 30, Get(*p, "age"))

	var out any = p
	var err error
	for _, s := range []struct {
		path, op string
		arg      any
	}{
		{"age", mapping.UpdateIncrement, int64(1)},
		{"tags[-]", mapping.UpdateInsert, "y"},
		{"home.city", mapping.UpdatePrepend, "Old "},
		{"Nick", mapping.UpdateDelete, nil},
	} {
		out, err = Update(out, s.path, s.op, s.arg)
		require.NoError(t, err, s.path)
	}
	require.Same(t, p, out)

	assert.Equal(t, &person{Name: "ann", Age: 31, Tags: []string{"x", "y"}, Home: address{City: "Old Oslo"}}, p)

	_, err = Update(p, "unknown", mapping.UpdatePut, 1)
	assert.True(t, errors.Is(err, ErrNotContainer))

	_, err = Update(*p, "name", mapping.UpdatePut, "bob")
	assert.True(t, errors.Is(err, ErrNotContainer))
}

func TestRecordsInsideLists(t *testing.T) {
	item := map[string]any{"people": []person{{Name: "a"}, {Name: "b"}}}
	out, err := Update(item, "people[1].age", mapping.UpdatePut, int64(40))
	require.NoError(t, err)
	assert.Equal(t, 40, Get(out, "people[1].age"))
}

func TestRecordsInsideMaps(t *testing.T) {
	item := map[string]any{"addr": address{City: "a"}}
	out, err := Update(item, "addr.city", mapping.UpdatePut, "b")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"addr": address{City: "b"}}, out)

	_, err = Update(item, "addr.zip", mapping.UpdatePut, "1")
	assert.True(t, errors.Is(err, ErrNotContainer))
	assert.Equal(t, address{City: "b"}, item["addr"])

	out, err = Update(map[string]any{"l": []any{address{City: "a"}}}, "l[0].city", mapping.UpdateAppend, "!")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"l": []any{address{City: "a!"}}}, out)
}

type settings struct {
	Meta  map[string]any `json:"meta"`
	Limit map[string]int `json:"limit"`
	Work  *address       `json:"work"`
}

func TestUpdateCreatesNilChildren(t *testing.T) {
	out, err := Update(map[string]any{"m": map[string]any(nil)}, "m.k", mapping.UpdatePut, 1)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"m": map[string]any{"k": 1}}, out)

	out, err = Update(map[string]any{"l": []any{map[string]any(nil)}}, "l[0].k", mapping.UpdatePut, 1)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"l": []any{map[string]any{"k": 1}}}, out)

	s := &settings{}
	for _, u := range []struct {
		path, op string
		arg      any
	}{
		{"meta.a.b", mapping.UpdatePut, "x"},
		{"limit.n", mapping.UpdateIncrement, int64(2)},
		{"work.city", mapping.UpdatePut, "Rome"},
	} {
		_, err = Update(s, u.path, u.op, u.arg)
		require.NoError(t, err, u.path)
	}
	assert.Equal(t, &settings{
		Meta:  map[string]any{"a": map[string]any{"b": "x"}},
		Limit: map[string]int{"n": 2},
		Work:  &address{City: "Rome"},
	}, s)
}

func TestEqualAndCompare(t *testing.T) {
	assert.True(t, Equal(int64(1), 1.0))
	assert.True(t, Equal(int32(3), uint8(3)))
	assert.False(t, Equal(true, int64(1)))
	assert.False(t, Equal(nil, ast.Undefined))
	assert.True(t, Equal([]any{int64(1), "a"}, []any{1.0, "a"}))
	assert.True(t, Equal(map[string]any{"a": []any{int64(1)}}, map[string]any{"a": []any{1.0}}))
	assert.False(t, Equal(map[string]any{"a": 1}, map[string]any{"b": 1}))

	c, ok := Compare(int64(2), 1.5)
	assert.True(t, ok)
	assert.Equal(t, 1, c)
	c, ok = Compare("a", "b")
	assert.True(t, ok)
	assert.Equal(t, -1, c)
	_, ok = Compare("1", int64(1))
	assert.False(t, ok)
	_, ok = Compare(true, false)
	assert.False(t, ok)
}

func TestDeepCopy(t *testing.T) {
	item := sample()
	cp := DeepCopy(item).(map[string]any)
	require.Equal(t, item, cp)

	cp["tags"].([]any)[0] = "changed"
	cp["meta"].(map[string]any)["owner"].(map[string]any)["id"] = "u2"
	assert.Equal(t, "a", Get(item, "tags[0]"))
	assert.Equal(t, "u1", Get(item, "meta.owner.id"))

	p := &person{Name: "n", Tags: []string{"t"}}
	pc := DeepCopy(p).(*person)
	require.Equal(t, p, pc)
	pc.Tags[0] = "u"
	assert.Equal(t, "t", p.Tags[0])
}

func TestArrayUnionNeverDuplicates(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		gen := rapid.SliceOf(rapid.Int64Range(0, 5))
		start := gen.Draw(t, "start")
		add := gen.Draw(t, "add")

		existing := make([]any, 0, len(start))
		for _, v := range start {
			if !contains(existing, v) {
				existing = append(existing, v)
			}
		}
		values := make([]any, len(add))
		for i, v := range add {
			values[i] = v
		}

		out, err := Update(map[string]any{"s": existing}, "s", mapping.UpdateArrayUnion, values)
		require.NoError(t, err)
		got := Get(out, "s").([]any)

		seen := map[int64]bool{}
		for _, v := range got {
			require.False(t, seen[v.(int64)], "duplicate %v in %v", v, got)
			seen[v.(int64)] = true
		}
		for _, v := range add {
			require.True(t, seen[v])
		}
		require.Equal(t, existing, got[:len(existing)])
	})
}

func TestPutThenGet(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		segs := rapid.SliceOfN(rapid.StringMatching(`[a-z]{1,3}`), 1, 4).Draw(t, "segs")
		path := ""
		for i, s := range segs {
			if i > 0 {
				path += "."
			}
			path += s
		}
		v := rapid.Int64().Draw(t, "v")

		out, err := Update(map[string]any{}, path, mapping.UpdatePut, v)
		require.NoError(t, err)
		require.Equal(t, v, Get(out, path))

		again, err := Update(DeepCopy(out), path, mapping.UpdatePut, v)
		require.NoError(t, err)
		require.Equal(t, out, again)
	})
}
