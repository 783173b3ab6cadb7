package translator

import (
	"github.com/omniql-engine/x8ql/engine/builders/mysql"
	"github.com/omniql-engine/x8ql/engine/models"
)

// TranslateMySQL lowers q onto a MySQL 8 JSON document table.
func TranslateMySQL(q *models.Query, opts Options) (*RelationalQuery, error) {
	return translateRelational(mysql.Dialect{}, q, opts.withDefaults())
}
