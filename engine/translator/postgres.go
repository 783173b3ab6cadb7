package translator

import (
	"github.com/omniql-engine/x8ql/engine/builders/postgres"
	"github.com/omniql-engine/x8ql/engine/builders/relational"
	"github.com/omniql-engine/x8ql/engine/models"
)

// TranslatePostgreSQL lowers q onto a JSONB document table. Setup adds a
// GIN index on the document column.
func TranslatePostgreSQL(q *models.Query, opts Options) (*RelationalQuery, error) {
	d := postgres.Dialect{}
	opts = opts.withDefaults()
	t := relational.Table{
		Name:  opts.CollectionName(q.Collection),
		Key:   opts.KeyColumn,
		Value: opts.ValueColumn,
	}
	return translateRelational(d, q, opts, d.CreateIndex(t))
}
