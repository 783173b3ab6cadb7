package validator

import (
	"fmt"

	pg_query "github.com/pganalyze/pg_query_go/v5"
)

// ValidatePostgreSQL validates PostgreSQL SQL syntax
func ValidatePostgreSQL(query string) error {
	tree, err := pg_query.Parse(query)
	if err != nil {
		return err
	}
	if len(tree.Stmts) == 0 {
		return fmt.Errorf("empty PostgreSQL statement")
	}
	return nil
}
