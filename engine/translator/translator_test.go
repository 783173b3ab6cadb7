package translator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	redisbuilders "github.com/omniql-engine/x8ql/engine/builders/redis"
	"github.com/omniql-engine/x8ql/engine/models"
	"github.com/omniql-engine/x8ql/engine/parser"
)

func lower(t *testing.T, text string) *models.Query {
	t.Helper()
	op, err := parser.ParseStatement(text)
	require.NoError(t, err, text)
	q, err := models.FromOperation(op)
	require.NoError(t, err, text)
	return q
}

func translate(t *testing.T, text, db string) *UniversalQuery {
	t.Helper()
	u, err := Translate(lower(t, text), db, DefaultOptions())
	require.NoError(t, err, text)
	return u
}

func TestTranslateRoutesByDatabase(t *testing.T) {
	for db, want := range map[string]string{
		"postgres": "PostgreSQL",
		"MySQL":    "MySQL",
		"sqlite3":  "SQLite",
		"mongo":    "MongoDB",
		"redis":    "Redis",
	} {
		u := translate(t, `get collection "users" key 1`, db)
		assert.Equal(t, want, u.Database, db)
		assert.NotEmpty(t, u.String(), db)
	}

	_, err := Translate(lower(t, `get collection "users" key 1`), "oracle", DefaultOptions())
	assert.ErrorContains(t, err, "unsupported database type")
	_, err = Translate(nil, "postgres", DefaultOptions())
	assert.ErrorIs(t, err, models.ErrInvalidStatement)
}

func TestCollectionName(t *testing.T) {
	assert.Equal(t, "User", Options{}.CollectionName("User"))
	assert.Equal(t, "app_users", Options{TablePrefix: "app_", Pluralize: true}.CollectionName("User"))
	assert.Equal(t, "people", Options{Pluralize: true}.CollectionName("person"))
}

func TestPostgreSQL(t *testing.T) {
	u := translate(t, `get collection "users" key 1`, "PostgreSQL")
	rq := u.Relational
	require.NotNil(t, rq)
	assert.Equal(t, `SELECT "id", "value" FROM "users" WHERE "id" = $1`, rq.Statement.SQL)
	assert.Equal(t, []any{"1"}, rq.Statement.Args)
	assert.True(t, rq.ReturnsRows())
	require.Len(t, rq.Setup, 2)
	assert.True(t, strings.HasPrefix(rq.Setup[0].SQL, `CREATE TABLE IF NOT EXISTS "users"`))
	assert.Contains(t, rq.Setup[1].SQL, "USING GIN")

	u = translate(t, `put collection "users" value {"id": "u1", "n": 1}`, "PostgreSQL")
	rq = u.Relational
	assert.Equal(t, `INSERT INTO "users" ("id", "value") VALUES ($1, $2::jsonb) ON CONFLICT ("id") DO UPDATE SET "value" = EXCLUDED."value"`, rq.Statement.SQL)
	assert.Equal(t, []any{"u1", `{"id":"u1","n":1}`}, rq.Statement.Args)
	assert.False(t, rq.ReturnsRows())
	assert.Contains(t, rq.String(), ` -- ["u1", `)
}

func TestPostgreSQLQuery(t *testing.T) {
	rq := translate(t, `query select name collection "users" where age > 30 order by age desc limit 5 offset 10`, "PostgreSQL").Relational
	sql := rq.Statement.SQL
	assert.True(t, strings.HasPrefix(sql, `SELECT "id", "value" FROM "users" WHERE `), sql)
	assert.Contains(t, sql, "IS NOT NULL")
	assert.Contains(t, sql, " DESC")
	assert.True(t, strings.HasSuffix(sql, " LIMIT 5 OFFSET 10"), sql)
	assert.Equal(t, strings.Count(sql, "$"), len(rq.Statement.Args))
	require.NotNil(t, rq.Select)
	assert.Equal(t, "name", rq.Select.String())
}

func TestRelationalDialects(t *testing.T) {
	rq := translate(t, `count collection "users" where age >= 18`, "SQLite").Relational
	assert.True(t, strings.HasPrefix(rq.Statement.SQL, `SELECT COUNT(*) FROM "users" WHERE `), rq.Statement.SQL)
	assert.Equal(t, strings.Count(rq.Statement.SQL, "?"), len(rq.Statement.Args))
	assert.Len(t, rq.Setup, 1)

	rq = translate(t, "delete collection \"users\" where a = 1", "MySQL").Relational
	assert.True(t, strings.HasPrefix(rq.Statement.SQL, "DELETE FROM `users` WHERE "), rq.Statement.SQL)

	rq = translate(t, `query collection "users"`, "MySQL").Relational
	assert.Equal(t, "SELECT `id`, `value` FROM `users`", rq.Statement.SQL)
	assert.Empty(t, rq.Statement.Args)
}

func TestRelationalOptions(t *testing.T) {
	opts := Options{TablePrefix: "app_", Pluralize: true, KeyColumn: "k", ValueColumn: "doc"}
	u, err := Translate(lower(t, `get collection "user" key "a"`), "PostgreSQL", opts)
	require.NoError(t, err)
	assert.Equal(t, `SELECT "k", "doc" FROM "app_users" WHERE "k" = $1`, u.Relational.Statement.SQL)
}

func TestMongoDB(t *testing.T) {
	dq := translate(t, `query select name collection "users" where age > 30 order by age desc limit 5 offset 10`, "MongoDB").Document
	require.NotNil(t, dq)
	assert.Equal(t, MongoFind, dq.Command)
	assert.Equal(t, "users", dq.Collection)
	assert.Equal(t, bson.D{{Key: "$and", Value: bson.A{
		bson.D{{Key: "age", Value: bson.D{{Key: "$gt", Value: int64(30)}}}},
		bson.D{{Key: "age", Value: bson.D{{Key: "$exists", Value: true}}}},
	}}}, dq.Filter)
	assert.Equal(t, bson.D{{Key: "age", Value: -1}}, dq.Sort)
	assert.Equal(t, bson.D{{Key: "_id", Value: 0}, {Key: "name", Value: 1}}, dq.Projection)
	require.NotNil(t, dq.Limit)
	require.NotNil(t, dq.Skip)
	assert.Equal(t, int64(5), *dq.Limit)
	assert.Equal(t, int64(10), *dq.Skip)
	assert.True(t, strings.HasPrefix(dq.String(), `{"find":"users","filter":`), dq.String())
}

func TestMongoDBCommands(t *testing.T) {
	dq := translate(t, `get collection "users" key "u1"`, "MongoDB").Document
	assert.Equal(t, MongoFindOne, dq.Command)
	assert.Equal(t, bson.D{{Key: "_id", Value: "u1"}}, dq.Filter)

	dq = translate(t, `count collection "users"`, "MongoDB").Document
	assert.Equal(t, MongoCount, dq.Command)
	assert.Equal(t, bson.D{}, dq.Filter)

	dq = translate(t, `put collection "users" value {"id": 7, "n": 1}`, "MongoDB").Document
	assert.Equal(t, MongoReplaceOne, dq.Command)
	assert.Equal(t, bson.D{{Key: "_id", Value: "7"}}, dq.Filter)
	assert.Equal(t, bson.M{"_id": "7", "id": int64(7), "n": int64(1)}, dq.Replacement)

	dq = translate(t, `update collection "users" set n=increment(1) where n < 3`, "MongoDB").Document
	assert.Equal(t, MongoUpdateMany, dq.Command)
	assert.Equal(t, bson.D{{Key: "$inc", Value: bson.D{{Key: "n", Value: int64(1)}}}}, dq.Update)

	dq = translate(t, `delete collection "users" key "u1" where active = true`, "MongoDB").Document
	assert.Equal(t, MongoDeleteMany, dq.Command)
	assert.Equal(t, "$and", dq.Filter[0].Key)
}

func TestRedis(t *testing.T) {
	kv := translate(t, `get collection "users" key 1`, "Redis").KeyValue
	require.NotNil(t, kv)
	assert.Equal(t, "users:1", kv.Key)
	assert.Equal(t, []redisbuilders.Command{redisbuilders.Get("users:1")}, kv.Commands)
	assert.Equal(t, "GET users:1", kv.String())

	kv = translate(t, `put collection "users" value {"id": "a", "n": 1}`, "Redis").KeyValue
	assert.Equal(t, `{"id":"a","n":1}`, kv.Document)
	assert.Equal(t, `SET users:a {"id":"a","n":1}`, kv.String())

	kv = translate(t, `query collection "users" where n > 1 order by n`, "Redis").KeyValue
	assert.Empty(t, kv.Key)
	assert.Equal(t, "users:*", kv.Pattern)
	assert.NotNil(t, kv.Residual.Where)
	assert.NotNil(t, kv.Residual.OrderBy)
	lines := strings.Split(kv.String(), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "SCAN 0 MATCH users:* COUNT 100", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "-- then where "), lines[1])

	kv = translate(t, `update collection "users" set n=put(2)`, "Redis").KeyValue
	require.NotNil(t, kv.Update)
	assert.Contains(t, kv.String(), "n=put(2)")
}

func TestTranslateErrors(t *testing.T) {
	for _, tt := range []struct{ text, db string }{
		{`query collection "users" where a = b`, "PostgreSQL"},
		{`query collection "users" where a = b`, "MongoDB"},
		{`update collection "users" set s=append("x")`, "MongoDB"},
	} {
		_, err := Translate(lower(t, tt.text), tt.db, DefaultOptions())
		assert.ErrorIs(t, err, models.ErrNotSupported, tt.text)
	}
}
