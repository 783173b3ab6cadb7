package relational

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/omniql-engine/x8ql/engine/accessor"
	"github.com/omniql-engine/x8ql/engine/ast"
	"github.com/omniql-engine/x8ql/engine/models"
	"github.com/omniql-engine/x8ql/mapping"
)

// ============================================================================
// STATEMENTS
// ============================================================================

// Build lowers q into a single statement against t.
func Build(d Dialect, t Table, q *models.Query) (Statement, error) {
	var f Frag
	var err error
	switch q.Operation {
	case mapping.VerbQuery:
		f, err = buildSelect(d, t, q)
	case mapping.VerbGet:
		f = F("SELECT %s FROM %s WHERE %s", columns(d, t), d.Quote(t.Name), keyEquals(d, t, q))
	case mapping.VerbCount:
		f, err = buildCount(d, t, q)
	case mapping.VerbPut:
		f, err = buildPut(d, t, q)
	case mapping.VerbUpdate:
		f, err = buildUpdate(d, t, q)
	case mapping.VerbDelete:
		f, err = buildDelete(d, t, q)
	default:
		return Statement{}, fmt.Errorf("%w: verb %s", models.ErrNotSupported, q.Operation)
	}
	if err != nil {
		return Statement{}, err
	}
	return finish(d, f)
}

// CreateTable returns the DDL of the document table.
func CreateTable(d Dialect, t Table) Statement {
	return Statement{SQL: d.CreateTable(t)}
}

func columns(d Dialect, t Table) string {
	return d.Quote(t.Key) + ", " + d.Quote(t.Value)
}

func keyEquals(d Dialect, t Table, q *models.Query) Frag {
	return F("%s = %s", d.Quote(t.Key), Arg(q.KeyString()))
}

// filter renders the row filter: the key when given, else the where clause.
func filter(d Dialect, t Table, q *models.Query) (Frag, error) {
	if q.HasKey() {
		key := keyEquals(d, t, q)
		if q.Where == nil {
			return key, nil
		}
		where, err := Where(d, t, q.Where)
		if err != nil {
			return Frag{}, err
		}
		return F("%s AND %s", key, where), nil
	}
	return Where(d, t, q.Where)
}

func whereClause(f Frag) Frag {
	if f.SQL == "TRUE" {
		return Frag{}
	}
	return F(" WHERE %s", f)
}

func buildSelect(d Dialect, t Table, q *models.Query) (Frag, error) {
	c := newCompiler(d, t)
	cond, err := filter(d, t, q)
	if err != nil {
		return Frag{}, err
	}

	// rows missing an order field are dropped
	var order []string
	if q.OrderBy != nil {
		conds := []Frag{cond}
		for _, term := range q.OrderBy.Terms {
			p := c.path(term.Field)
			conds = append(conds, Raw(d.TypeOf(p)+" IS NOT NULL"))
			dir := " ASC"
			if term.OrderDirection() == ast.Desc {
				dir = " DESC"
			}
			for _, key := range d.OrderKeys(p) {
				order = append(order, key+dir)
			}
		}
		if cond.SQL == "TRUE" {
			conds = conds[1:]
		}
		cond = Join(conds, " AND ")
	}

	f := F("SELECT %s FROM %s%s", columns(d, t), d.Quote(t.Name), whereClause(cond))
	if len(order) > 0 {
		f.SQL += " ORDER BY " + strings.Join(order, ", ")
	}
	f.SQL += d.Limit(q.Limit, q.Offset)
	return f, nil
}

func buildCount(d Dialect, t Table, q *models.Query) (Frag, error) {
	cond, err := filter(d, t, q)
	if err != nil {
		return Frag{}, err
	}
	return F("SELECT COUNT(*) FROM %s%s", d.Quote(t.Name), whereClause(cond)), nil
}

func buildPut(d Dialect, t Table, q *models.Query) (Frag, error) {
	if !accessor.IsObject(q.Value) {
		return Frag{}, fmt.Errorf("%w: put value must be an object, got %T", models.ErrInvalidStatement, q.Value)
	}
	doc, err := json.Marshal(q.Value)
	if err != nil {
		return Frag{}, fmt.Errorf("%w: put value: %v", models.ErrInvalidStatement, err)
	}
	return d.Upsert(t, q.KeyString(), string(doc)), nil
}

func buildDelete(d Dialect, t Table, q *models.Query) (Frag, error) {
	cond, err := filter(d, t, q)
	if err != nil {
		return Frag{}, err
	}
	return F("DELETE FROM %s%s", d.Quote(t.Name), whereClause(cond)), nil
}
