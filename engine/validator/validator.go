// Package validator checks native queries for syntax errors before they
// are sent to a backend.
package validator

import (
	"fmt"

	"github.com/omniql-engine/x8ql/mapping"
)

// ValidationResult contains detailed validation info
type ValidationResult struct {
	Valid bool
	Error string
}

func result(err error) *ValidationResult {
	if err != nil {
		return &ValidationResult{Error: err.Error()}
	}
	return &ValidationResult{Valid: true}
}

// ValidateSQL validates a native query or command for dbType.
func ValidateSQL(query string, dbType string) error {
	db, ok := mapping.NormalizeDatabase(dbType)
	if !ok {
		return fmt.Errorf("unsupported database type: %s", dbType)
	}
	switch db {
	case "PostgreSQL":
		return ValidatePostgreSQL(query)
	case "MySQL":
		return ValidateMySQL(query)
	case "SQLite":
		return ValidateSQLite(query)
	case "MongoDB":
		return ValidateMongoDB(query)
	case "Redis":
		return ValidateRedis(query)
	default:
		return fmt.Errorf("unsupported database type: %s", dbType)
	}
}

// ValidateSQLWithDetails returns detailed validation result
func ValidateSQLWithDetails(query string, dbType string) (*ValidationResult, error) {
	db, ok := mapping.NormalizeDatabase(dbType)
	if !ok {
		return nil, fmt.Errorf("unsupported database type: %s", dbType)
	}
	if db == "MongoDB" {
		return ValidateMongoDBWithDetails(query)
	}
	return result(ValidateSQL(query, db)), nil
}
