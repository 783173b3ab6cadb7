package validator

import (
	"fmt"
	"strings"

	"github.com/pingcap/tidb/parser"
	_ "github.com/pingcap/tidb/parser/test_driver"
	"github.com/xwb1989/sqlparser"
)

// ValidateMySQL validates MySQL SQL syntax. sqlparser covers the classic
// grammar; statements it rejects are retried with the TiDB parser, which
// knows the MySQL 8 JSON syntax (MEMBER OF, CAST AS JSON).
func ValidateMySQL(query string) error {
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("empty MySQL statement")
	}
	if _, err := sqlparser.Parse(query); err == nil {
		return nil
	}
	stmts, _, err := parser.New().Parse(query, "", "")
	if err != nil {
		return err
	}
	if len(stmts) == 0 {
		return fmt.Errorf("empty MySQL statement")
	}
	return nil
}
