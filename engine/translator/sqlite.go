package translator

import (
	"github.com/omniql-engine/x8ql/engine/builders/sqlite"
	"github.com/omniql-engine/x8ql/engine/models"
)

// TranslateSQLite lowers q onto a SQLite JSON text table. Conditions using
// like need a regexp() function on the connection.
func TranslateSQLite(q *models.Query, opts Options) (*RelationalQuery, error) {
	return translateRelational(sqlite.Dialect{}, q, opts.withDefaults())
}
