// Package reverse converts native queries back into QL. Only the subset
// the QL can express is accepted: single table reads, counts, updates and
// deletes over plain columns.
package reverse

import (
	"errors"
	"fmt"
	"strings"

	"github.com/omniql-engine/x8ql/engine/ast"
	"github.com/omniql-engine/x8ql/engine/models"
	"github.com/omniql-engine/x8ql/mapping"
)

// ============================================================================
// ERRORS
// ============================================================================

var (
	ErrNotSupported = errors.New("feature not supported in QL")
	ErrParseError   = errors.New("failed to parse query")
	ErrEmptyQuery   = errors.New("empty query")
)

// ============================================================================
// MAIN INTERFACE
// ============================================================================

// ToQuery converts a native statement into a Query.
func ToQuery(query string, dbType string) (*models.Query, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	db, ok := mapping.NormalizeDatabase(dbType)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported database %s", ErrNotSupported, dbType)
	}
	switch db {
	case "PostgreSQL":
		return PostgreSQLToQuery(query)
	case "MySQL":
		return MySQLToQuery(query)
	case "MongoDB":
		return MongoDBToQuery(query)
	case "Redis":
		return RedisToQuery(query)
	}
	return nil, fmt.Errorf("%w: unsupported database %s", ErrNotSupported, dbType)
}

// ToWhere converts a native condition into a QL expression: a SQL WHERE
// body for PostgreSQL and MySQL, a filter document for MongoDB.
func ToWhere(condition string, dbType string) (ast.Expr, error) {
	if strings.TrimSpace(condition) == "" {
		return nil, ErrEmptyQuery
	}
	db, ok := mapping.NormalizeDatabase(dbType)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported database %s", ErrNotSupported, dbType)
	}
	switch db {
	case "PostgreSQL":
		return PostgreSQLToWhere(condition)
	case "MySQL":
		return MySQLToWhere(condition)
	case "MongoDB":
		return MongoDBToWhere(condition)
	}
	return nil, fmt.Errorf("%w: conditions for %s", ErrNotSupported, db)
}

// ToText renders a Query as a QL statement.
func ToText(q *models.Query) string {
	return q.ToOperation().String()
}
