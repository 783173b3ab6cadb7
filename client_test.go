package x8ql

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/omniql-engine/x8ql/engine/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func run(t *testing.T, c *Client, text string) []map[string]any {
	t.Helper()
	rows, err := c.Execute(context.Background(), text, nil)
	require.NoError(t, err, text)
	return rows
}

func seedUsers(t *testing.T, c *Client) {
	t.Helper()
	run(t, c, `batch
		put collection "users" value {"id": "a", "n": 3, "tags": ["x"]};
		put collection "users" value {"id": "b", "n": 1};
		put collection "users" value {"id": "c", "n": 2};
	end`)
}

func TestParsePrefix(t *testing.T) {
	op, isQL, err := Parse(`:get collection "users" key 1`)
	require.NoError(t, err)
	assert.True(t, isQL)
	assert.Equal(t, "get", op.Name)

	op, isQL, err = Parse("SELECT 1")
	require.NoError(t, err)
	assert.False(t, isQL)
	assert.Nil(t, op)

	_, isQL, err = Parse(":get where")
	assert.True(t, isQL)
	assert.Error(t, err)
}

func TestPrepare(t *testing.T) {
	stmt, err := Prepare(`query collection "users" where n > @min limit @max`, map[string]any{"min": 1, "max": 2})
	require.NoError(t, err)
	require.Len(t, stmt.Queries, 1)
	assert.False(t, stmt.IsMulti())
	require.NotNil(t, stmt.Queries[0].Limit)
	assert.Equal(t, int64(2), *stmt.Queries[0].Limit)

	stmt, err = Prepare(`transact get collection "a" key 1; delete collection "a" key 1 end`, nil)
	require.NoError(t, err)
	assert.True(t, stmt.IsMulti())
	assert.Len(t, stmt.Queries, 2)
	assert.Contains(t, stmt.String(), "TRANSACT ")

	_, err = Prepare(`get collection "a" key @missing`, nil)
	assert.Error(t, err)
	_, err = PrepareOperation(nil, nil)
	assert.ErrorIs(t, err, models.ErrInvalidStatement)
}

func TestMemoryCRUD(t *testing.T) {
	c := NewMemory()
	assert.Equal(t, Memory, c.Database())
	seedUsers(t, c)

	rows := run(t, c, `get collection "users" key "a"`)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(3), rows[0]["n"])

	rows = run(t, c, `query select id collection "users" where n >= 2 order by n`)
	assert.Equal(t, []map[string]any{{"id": "c"}, {"id": "a"}}, rows)

	rows = run(t, c, `count collection "users"`)
	assert.Equal(t, []map[string]any{{CountKey: int64(3)}}, rows)

	rows = run(t, c, `update collection "users" set n=increment(10) where n < 3`)
	assert.Equal(t, []map[string]any{{RowsAffected: int64(2)}}, rows)
	rows = run(t, c, `get collection "users" key "b"`)
	assert.Equal(t, int64(11), rows[0]["n"])

	rows = run(t, c, `delete collection "users" where n = 3`)
	assert.Equal(t, []map[string]any{{RowsAffected: int64(1)}}, rows)
	assert.Empty(t, run(t, c, `get collection "users" key "a"`))
}

func TestMemoryPutReplaces(t *testing.T) {
	c := NewMemory()
	run(t, c, `put collection "users" value {"id": "a", "n": 1}`)
	run(t, c, `put collection "users" value {"id": "a", "m": 2}`)

	rows := run(t, c, `query collection "users"`)
	assert.Equal(t, []map[string]any{{"id": "a", "m": int64(2)}}, rows)
}

func TestMemoryResultsAreCopies(t *testing.T) {
	c := NewMemory()
	run(t, c, `put collection "users" value {"id": "a", "n": 1}`)
	rows := run(t, c, `get collection "users" key "a"`)
	rows[0]["n"] = int64(99)

	rows = run(t, c, `get collection "users" key "a"`)
	assert.Equal(t, int64(1), rows[0]["n"])
}

func TestBatchStopsAtFirstFailure(t *testing.T) {
	c := NewMemory()
	rows, err := c.Execute(context.Background(), `batch
		put collection "users" value {"id": "a"};
		put collection "users" key "z" value 5;
		put collection "users" value {"id": "b"};
	end`, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "statement 2")
	assert.Equal(t, []map[string]any{{RowsAffected: int64(1)}}, rows)

	count := run(t, c, `count collection "users"`)
	assert.Equal(t, int64(1), count[0][CountKey])
}

func TestTransactRollsBack(t *testing.T) {
	c := NewMemory()
	seedUsers(t, c)

	_, err := c.Execute(context.Background(), `transact
		delete collection "users" key "a";
		put collection "users" key "z" value 5
	end`, nil)
	require.Error(t, err)

	count := run(t, c, `count collection "users"`)
	assert.Equal(t, int64(3), count[0][CountKey])

	rows := run(t, c, `transact delete collection "users" key "a"; count collection "users" end`)
	assert.Equal(t, []map[string]any{{RowsAffected: int64(1)}, {CountKey: int64(2)}}, rows)
}

func TestQueryInput(t *testing.T) {
	c := NewMemory()
	seedUsers(t, c)

	rows, err := c.Query(context.Background(), `:count collection "users" where n > 1`)
	require.NoError(t, err)
	assert.Equal(t, int64(2), rows[0][CountKey])

	_, err = c.Query(context.Background(), "SELECT 1")
	assert.ErrorIs(t, err, ErrNotSupported)

	_, err = c.Query(context.Background(), ":count where")
	assert.ErrorContains(t, err, "parse error")
}

func TestMemoryHasNoNativeForm(t *testing.T) {
	stmt, err := Prepare(`get collection "users" key 1`, nil)
	require.NoError(t, err)
	_, err = NewMemory().Translate(stmt.Queries[0])
	assert.ErrorIs(t, err, ErrNotSupported)
}

func TestWrapSQLRejectsDocumentStores(t *testing.T) {
	_, err := WrapSQL(nil, "mongodb")
	assert.ErrorIs(t, err, ErrNotSupported)
	_, err = OpenSQL("redis", "")
	assert.ErrorIs(t, err, ErrNotSupported)
}

func TestSQLite(t *testing.T) {
	db, err := OpenSQLite("file:x8ql_client_test?mode=memory&cache=shared")
	require.NoError(t, err)
	defer db.Close()
	if err := db.Ping(); err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}

	c, err := WrapSQL(db, "sqlite3")
	require.NoError(t, err)
	assert.Equal(t, "SQLite", c.Database())
	seedUsers(t, c)

	rows := run(t, c, `get collection "users" key "b"`)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1), rows[0]["n"])

	rows = run(t, c, `count collection "users"`)
	assert.Equal(t, []map[string]any{{CountKey: int64(3)}}, rows)

	rows = run(t, c, `delete collection "users" key "b"`)
	assert.Equal(t, []map[string]any{{RowsAffected: int64(1)}}, rows)

	rows, err = c.Query(context.Background(), `SELECT COUNT(*) AS n FROM "users"`)
	require.NoError(t, err)
	assert.Equal(t, []map[string]any{{"n": int64(2)}}, rows)
}

func TestSQLiteRegexp(t *testing.T) {
	ok, err := sqliteRegexp("^a.c$", "abc")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = sqliteRegexp("(", "x")
	assert.Error(t, err)
}
