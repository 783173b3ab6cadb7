package reverse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omniql-engine/x8ql/engine/models"
	"github.com/omniql-engine/x8ql/engine/parser"
)

// canonical renders QL text the way ToText renders a recovered Query.
func canonical(t *testing.T, text string) string {
	t.Helper()
	op, err := parser.ParseStatement(text)
	require.NoError(t, err, text)
	q, err := models.FromOperation(op)
	require.NoError(t, err, text)
	return ToText(q)
}

func canonicalWhere(t *testing.T, text string) string {
	t.Helper()
	expr, err := parser.ParseWhere(text)
	require.NoError(t, err, text)
	return expr.String()
}

type reverseCase struct {
	native string
	want   string
}

func runReverseCases(t *testing.T, db string, tests []reverseCase) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.native, func(t *testing.T) {
			q, err := ToQuery(tt.native, db)
			require.NoError(t, err)
			assert.Equal(t, canonical(t, tt.want), ToText(q))
		})
	}
}

func TestPostgreSQLToQuery(t *testing.T) {
	runReverseCases(t, "postgres", []reverseCase{
		{
			"SELECT * FROM users WHERE age > 30 ORDER BY name DESC LIMIT 5 OFFSET 2",
			`query collection "users" where age > 30 order by name desc limit 5 offset 2`,
		},
		{
			"SELECT name, city AS town FROM users",
			`query select name, city as town collection "users"`,
		},
		{
			"SELECT count(*) FROM users WHERE active = true",
			`count collection "users" where active = true`,
		},
		{
			"SELECT * FROM users WHERE id = $1 AND age >= $2",
			`query collection "users" where id = @p1 and age >= @p2`,
		},
		{
			"INSERT INTO users (id, name, age) VALUES ('u1', 'Ann', 30)",
			`put collection "users" value {"id": "u1", "name": "Ann", "age": 30}`,
		},
		{
			"UPDATE users SET visits = visits + 1, status = 'x' WHERE id = 'u1'",
			`update collection "users" set visits=increment(1), status=put("x") where id = "u1"`,
		},
		{
			"UPDATE users SET credit = credit - 2",
			`update collection "users" set credit=increment(-2)`,
		},
		{
			"DELETE FROM users WHERE deleted_at IS NULL",
			`delete collection "users" where is_not_defined(deleted_at) or deleted_at = null`,
		},
	})
}

func TestPostgreSQLToWhere(t *testing.T) {
	tests := []reverseCase{
		{"a IN (1, 2)", "a in (1, 2)"},
		{"a NOT IN ('x')", `a not in ("x")`},
		{"n BETWEEN 1 AND 5", "n between 1 and 5"},
		{"name LIKE 'a%'", `name like "a.*$"`},
		{"name ILIKE 'a_c'", `name like "(?i)a.c$"`},
		{"a = 1 OR b = 2", "a = 1 or b = 2"},
		{"NOT (a = 1)", "not a = 1"},
		{"x IS NOT NULL", "is_defined(x) and x != null"},
	}
	for _, tt := range tests {
		t.Run(tt.native, func(t *testing.T) {
			expr, err := ToWhere(tt.native, "PostgreSQL")
			require.NoError(t, err)
			assert.Equal(t, canonicalWhere(t, tt.want), expr.String())
		})
	}
}

func TestPostgreSQLErrors(t *testing.T) {
	for _, sql := range []string{
		"SELECT * FROM a JOIN b ON a.id = b.id",
		"SELECT * FROM a; SELECT * FROM b",
		"SELECT a, count(*) FROM t GROUP BY a",
		"SELECT * FROM a UNION SELECT * FROM b",
		"CREATE TABLE t (id int)",
	} {
		_, err := ToQuery(sql, "PostgreSQL")
		assert.ErrorIs(t, err, ErrNotSupported, sql)
	}
	_, err := ToQuery("SELEC * FROM", "PostgreSQL")
	assert.ErrorIs(t, err, ErrParseError)
}

func TestMySQLToQuery(t *testing.T) {
	runReverseCases(t, "mysql", []reverseCase{
		{
			"SELECT * FROM users WHERE age > ? AND name = ? ORDER BY age LIMIT 10",
			`query collection "users" where age > @p1 and name = @p2 order by age asc limit 10`,
		},
		{
			"SELECT COUNT(*) FROM users",
			`count collection "users"`,
		},
		{
			"SELECT * FROM users WHERE name LIKE 'a%' LIMIT 3, 5",
			`query collection "users" where name like "a.*$" limit 5 offset 3`,
		},
		{
			"INSERT INTO users (id, n) VALUES ('a', 1)",
			`put collection "users" value {"id": "a", "n": 1}`,
		},
		{
			"UPDATE users SET n = n + 5 WHERE id = 'a'",
			`update collection "users" set n=increment(5) where id = "a"`,
		},
		{
			"DELETE FROM users WHERE n IN (1, 2)",
			`delete collection "users" where n in (1, 2)`,
		},
	})
}

func TestMySQLErrors(t *testing.T) {
	_, err := ToQuery("SELECT * FROM a JOIN b ON a.id = b.id", "MySQL")
	assert.ErrorIs(t, err, ErrNotSupported)
	_, err = ToQuery("SELECT FROM", "MySQL")
	assert.ErrorIs(t, err, ErrParseError)
}

func TestMongoDBToQuery(t *testing.T) {
	runReverseCases(t, "mongodb", []reverseCase{
		{
			`{"find": "users", "filter": {"age": {"$gt": 30}, "tags": {"$in": ["a"]}}, "sort": {"age": -1}, "limit": 5, "skip": 1}`,
			`query collection "users" where age > 30 and tags in ("a") order by age desc limit 5 offset 1`,
		},
		{
			`{"findOne": "users", "filter": {"_id": "u1"}}`,
			`get collection "users" key "u1"`,
		},
		{
			`{"findOne": "users", "filter": {"name": "ann"}}`,
			`query collection "users" where name = "ann" limit 1`,
		},
		{
			`{"countDocuments": "users", "filter": {"$or": [{"a": 1}, {"b": {"$exists": false}}]}}`,
			`count collection "users" where a = 1 or is_not_defined(b)`,
		},
		{
			`{"deleteMany": "users", "filter": {"n": {"$gte": 1, "$lt": 5}}}`,
			`delete collection "users" where n >= 1 and n < 5`,
		},
		{
			`{"replaceOne": "users", "filter": {"_id": "a"}, "replacement": {"_id": "a", "n": 1}}`,
			`put collection "users" key "a" value {"n": 1}`,
		},
	})
}

func TestMongoDBUpdate(t *testing.T) {
	q, err := ToQuery(`{"updateMany": "users", "filter": {"active": true}, "update": {"$inc": {"n": 1}}}`, "MongoDB")
	require.NoError(t, err)
	assert.Equal(t, canonical(t, `update collection "users" set n=increment(1) where active = true`), ToText(q))
}

func TestMongoDBToWhere(t *testing.T) {
	expr, err := ToWhere(`{"$nor": [{"a": 1}]}`, "MongoDB")
	require.NoError(t, err)
	assert.Equal(t, canonicalWhere(t, "not a = 1"), expr.String())

	_, err = ToWhere(`{"$where": "this.a > 1"}`, "MongoDB")
	assert.ErrorIs(t, err, ErrNotSupported)
	_, err = ToWhere(`{not json`, "MongoDB")
	assert.ErrorIs(t, err, ErrParseError)
}

func TestMongoDBErrors(t *testing.T) {
	_, err := ToQuery(`{"aggregate": "users", "pipeline": []}`, "MongoDB")
	assert.ErrorIs(t, err, ErrNotSupported)
	_, err = ToQuery(`{}`, "MongoDB")
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestRedisToQuery(t *testing.T) {
	runReverseCases(t, "redis", []reverseCase{
		{"GET users:42", `get collection "users" key "42"`},
		{"DEL users:42", `delete collection "users" key "42"`},
		{`SET users:a {"n":1}`, `put collection "users" key "a" value {"n": 1}`},
		{"SCAN 0 MATCH users:* COUNT 100\n-- then where n > 1", `query collection "users"`},
	})
}

func TestRedisErrors(t *testing.T) {
	for _, cmd := range []string{"HGETALL users:1", "DEL users:1 users:2", "SCAN 0 MATCH u*:* COUNT 10"} {
		_, err := ToQuery(cmd, "Redis")
		assert.ErrorIs(t, err, ErrNotSupported, cmd)
	}
	_, err := ToQuery("GET nokey", "Redis")
	assert.ErrorIs(t, err, ErrParseError)
	_, err = ToWhere("a = 1", "Redis")
	assert.ErrorIs(t, err, ErrNotSupported)
}

func TestEmptyAndUnknown(t *testing.T) {
	_, err := ToQuery("   ", "PostgreSQL")
	assert.ErrorIs(t, err, ErrEmptyQuery)
	_, err = ToWhere("", "MySQL")
	assert.ErrorIs(t, err, ErrEmptyQuery)
	_, err = ToQuery("SELECT 1", "oracle")
	assert.ErrorIs(t, err, ErrNotSupported)
}

func TestLikeToRegex(t *testing.T) {
	assert.Equal(t, `a\.b.*$`, likeToRegex("a.b%", false))
	assert.Equal(t, `(?i)_x$`, likeToRegex(`\_x`, true))
}
