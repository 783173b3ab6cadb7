package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSQL(t *testing.T) {
	tests := []struct {
		db    string
		query string
		valid bool
	}{
		{"PostgreSQL", `SELECT "id", "value" FROM "users" WHERE "id" = $1`, true},
		{"postgres", `SELECT * FROM users WHERE (value #>> '{"name"}') = 'a' LIMIT 5`, true},
		{"PostgreSQL", "SELEC * FROM users", false},
		{"PostgreSQL", "", false},
		{"MySQL", "SELECT `id`, `value` FROM `users` WHERE `id` = ?", true},
		{"mysql", "SELECT * FROM users WHERE JSON_EXTRACT(value, '$.\"a\"') = 1", true},
		{"MySQL", "SELECT * FROM", false},
		{"MySQL", "  ", false},
		{"SQLite", "SELECT 1", true},
		{"SQLite", "", false},
		{"Redis", "GET users:1", true},
		{"Redis", "SCAN 0 MATCH users:* COUNT 100\n-- then where a > 1", true},
		{"Redis", "SET users:1", false},
		{"Redis", "FLUSHALL", false},
		{"MongoDB", `{"find": "users", "filter": {"age": {"$gt": 30}}}`, true},
		{"MongoDB", `{"explode": "users"}`, false},
		{"MongoDB", `{"find": 1}`, false},
		{"MongoDB", `{"find": `, false},
	}
	for _, tt := range tests {
		err := ValidateSQL(tt.query, tt.db)
		if tt.valid {
			assert.NoError(t, err, "%s: %s", tt.db, tt.query)
		} else {
			assert.Error(t, err, "%s: %s", tt.db, tt.query)
		}
	}
}

func TestValidateUnknownDatabase(t *testing.T) {
	assert.ErrorContains(t, ValidateSQL("SELECT 1", "oracle"), "unsupported database type")
	_, err := ValidateSQLWithDetails("SELECT 1", "oracle")
	assert.Error(t, err)
}

func TestValidateSQLWithDetails(t *testing.T) {
	res, err := ValidateSQLWithDetails("SELECT 1", "PostgreSQL")
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Empty(t, res.Error)

	res, err = ValidateSQLWithDetails(`{"find": }`, "MongoDB")
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Contains(t, res.Error, "invalid extended JSON")
}

func TestValidateMongoDBDocument(t *testing.T) {
	assert.Error(t, ValidateMongoDBDocument(nil))
	assert.NoError(t, ValidateMongoDBDocument(map[string]any{"a": 1}))
}
