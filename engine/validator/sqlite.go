package validator

import (
	"fmt"
	"strings"
)

// ValidateSQLite only rejects empty statements. SQLite has no standalone
// parser; syntax errors surface when the statement is prepared.
func ValidateSQLite(query string) error {
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("empty SQLite statement")
	}
	return nil
}
