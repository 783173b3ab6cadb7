package postgres

import (
	"fmt"

	"github.com/omniql-engine/x8ql/engine/builders/relational"
)

// ============================================================================
// DDL - document tables
// ============================================================================

func (d Dialect) CreateTable(t relational.Table) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s TEXT PRIMARY KEY, %s JSONB NOT NULL)",
		d.Quote(t.Name), d.Quote(t.Key), d.Quote(t.Value))
}

// CreateIndex returns a GIN index serving containment on the document
// column.
func (d Dialect) CreateIndex(t relational.Table) string {
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s USING GIN (%s jsonb_path_ops)",
		d.Quote(t.Name+"_"+t.Value+"_gin"), d.Quote(t.Name), d.Quote(t.Value))
}
