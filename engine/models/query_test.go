package models

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omniql-engine/x8ql/engine/ast"
	"github.com/omniql-engine/x8ql/engine/parser"
)

func lower(t *testing.T, text string) *Query {
	t.Helper()
	op, err := parser.ParseStatement(text)
	require.NoError(t, err, text)
	q, err := FromOperation(op)
	require.NoError(t, err, text)
	return q
}

func TestFromOperation(t *testing.T) {
	q := lower(t, `query select a collection "users" where age > 30 order by age desc limit 5 offset 10`)
	assert.Equal(t, "query", q.Operation)
	assert.Equal(t, "users", q.Collection)
	require.NotNil(t, q.Select)
	require.NotNil(t, q.Where)
	require.NotNil(t, q.OrderBy)
	require.NotNil(t, q.Limit)
	require.NotNil(t, q.Offset)
	assert.Equal(t, int64(5), *q.Limit)
	assert.Equal(t, int64(10), *q.Offset)
	assert.False(t, q.HasKey())
}

func TestFromOperationKeys(t *testing.T) {
	q := lower(t, `get collection "users" key "alice"`)
	assert.Equal(t, "alice", q.KeyString())

	q = lower(t, `delete collection "users" key 7`)
	assert.Equal(t, int64(7), q.Key)
	assert.Equal(t, "7", q.KeyString())
}

func TestPutTakesKeyFromValue(t *testing.T) {
	q := lower(t, `put collection "users" value {"id": "u1", "n": 1}`)
	assert.Equal(t, "u1", q.Key)

	op, err := parser.ParseStatement(`put collection "users" value {"n": 1}`)
	require.NoError(t, err)
	_, err = FromOperation(op)
	assert.ErrorIs(t, err, ErrInvalidStatement)
}

func TestFromOperationErrors(t *testing.T) {
	tests := []struct {
		text string
		want error
	}{
		{`query where a = 1`, ErrInvalidStatement},
		{`get collection "users"`, ErrInvalidStatement},
		{`update collection "users" where a = 1`, ErrInvalidStatement},
		{`frobnicate collection "users"`, ErrInvalidStatement},
		{`query collection "users" limit -1`, ErrInvalidStatement},
		{`query collection "users" where a = @p`, ErrInvalidStatement},
		{`query collection "users" search text_search(q='x')`, ErrNotSupported},
		{`query collection "users" bogus 1`, ErrInvalidStatement},
	}
	for _, tt := range tests {
		op, err := parser.ParseStatement(tt.text)
		require.NoError(t, err, tt.text)
		_, err = FromOperation(op)
		assert.ErrorIs(t, err, tt.want, tt.text)
	}
}

func TestFromStatements(t *testing.T) {
	op, err := parser.ParseStatement(`batch put collection "a" value {"id": 1}; delete collection "a" key 2 end`)
	require.NoError(t, err)
	qs, err := FromStatements(op)
	require.NoError(t, err)
	require.Len(t, qs, 2)
	assert.Equal(t, "put", qs[0].Operation)
	assert.Equal(t, "delete", qs[1].Operation)

	_, err = FromOperation(op)
	assert.ErrorIs(t, err, ErrInvalidStatement)

	bad, err := parser.ParseStatement(`batch put collection "a" value {"id": 1}; get collection "a" end`)
	require.NoError(t, err)
	_, err = FromStatements(bad)
	assert.ErrorContains(t, err, "statement 2")
}

func TestToOperationRoundTrip(t *testing.T) {
	for _, text := range []string{
		`query select a, b as c collection "users" where age > 30 and name like 'a.*' order by age desc limit 5 offset 1`,
		`get collection "users" key "alice"`,
		`count collection "users" where is_defined(email)`,
		`put collection "users" value {"id": "u1", "tags": ["x"]}`,
		`put collection "users" key "k" value {"n": 1}`,
		`update collection "users" set n=increment(1), tmp=delete() where n < 10`,
		`delete collection "users" where n = null`,
	} {
		q := lower(t, text)
		again := lower(t, q.ToOperation().String())
		if diff := cmp.Diff(q, again); diff != "" {
			t.Fatalf("%s: round trip mismatch (-want +got):\n%s", text, diff)
		}
	}
}

func TestToOperationOmitsValueKey(t *testing.T) {
	q := lower(t, `put collection "users" value {"id": "u1"}`)
	op := q.ToOperation()
	assert.NotContains(t, op.Args, "key")
	assert.Equal(t, &ast.Literal{Value: map[string]any{"id": "u1"}}, op.Args["value"])
}
