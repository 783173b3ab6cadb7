// Package sqlite renders document queries for SQLite 3.38 or newer.
// Documents are stored as JSON text. The REGEXP operator needs a regexp()
// function registered on the connection.
package sqlite

import (
	"fmt"
	"strings"

	"github.com/omniql-engine/x8ql/engine/accessor"
	"github.com/omniql-engine/x8ql/engine/builders/relational"
	"github.com/omniql-engine/x8ql/engine/models"
	"github.com/omniql-engine/x8ql/mapping"
)

// Dialect implements relational.Dialect.
type Dialect struct{}

var _ relational.Dialect = Dialect{}

func (Dialect) Name() string { return "SQLite" }

func (Dialect) Placeholder(int) string { return "?" }

func (Dialect) Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// ============================================================================
// PATHS
// ============================================================================

func pathString(segs []string) string {
	var sb strings.Builder
	sb.WriteString("$")
	for _, s := range segs {
		switch {
		case s == accessor.Last:
			sb.WriteString("[#-1]")
		case relational.IsIndex(s):
			sb.WriteString("[" + s + "]")
		default:
			sb.WriteString(`."` + s + `"`)
		}
	}
	return sb.String()
}

func jsonPath(segs []string) string {
	return relational.QuoteString(pathString(segs))
}

// valueAt is the SQL value at p: scalars natively, containers as JSON text.
func valueAt(p relational.Path) string {
	return "json_extract(" + p.Column + ", " + jsonPath(p.Segments) + ")"
}

// jsonAt is the JSON text of the value at p.
func jsonAt(p relational.Path) string {
	if p.IsRoot() {
		return p.Column
	}
	return "(" + p.Column + " -> " + jsonPath(p.Segments) + ")"
}

func typeOf(p relational.Path) string {
	if p.IsRoot() {
		return "json_type(" + p.Column + ")"
	}
	return "json_type(" + p.Column + ", " + jsonPath(p.Segments) + ")"
}

// typedEquals compares a json_type/value pair with a constant.
func typedEquals(d Dialect, typ, value, doc string, v any) (relational.Frag, error) {
	switch x := v.(type) {
	case nil:
		return relational.Raw(typ + " = 'null'"), nil
	case bool:
		if x {
			return relational.Raw(typ + " = 'true'"), nil
		}
		return relational.Raw(typ + " = 'false'"), nil
	case string:
		return relational.F("(%s = 'text' AND %s = %s)", typ, value, relational.Arg(x)), nil
	}
	if accessor.IsNumber(v) {
		return relational.F("(%s AND %s = %s)", relational.TypeGuard(d, typ, mapping.TypeNumber), value, relational.Arg(v)), nil
	}
	arg, err := relational.JSONArg(v)
	if err != nil {
		return relational.Frag{}, err
	}
	kind := mapping.TypeObject
	if accessor.IsSequence(v) {
		kind = mapping.TypeArray
	}
	return relational.F("(%s = '"+kind+"' AND %s = json(%s))", typ, doc, arg), nil
}

// ============================================================================
// CONDITIONS
// ============================================================================

func (Dialect) TypeOf(p relational.Path) string { return typeOf(p) }

func (d Dialect) Compare(p relational.Path, op string, v any) (relational.Frag, error) {
	if op == mapping.OpEQ {
		return typedEquals(d, typeOf(p), valueAt(p), jsonAt(p), v)
	}
	guard := relational.TypeGuard(d, typeOf(p), mapping.TypeNumber)
	if _, ok := v.(string); ok {
		guard = relational.TypeGuard(d, typeOf(p), mapping.TypeString)
	}
	return relational.F("(%s AND %s "+op+" %s)", guard, valueAt(p), relational.Arg(v)), nil
}

func (Dialect) Regexp(p relational.Path, pattern string) relational.Frag {
	return relational.F("(%s = 'text' AND %s REGEXP %s)", typeOf(p), valueAt(p), relational.Arg(pattern))
}

func (Dialect) StringFunc(fn string, p relational.Path, needle string) relational.Frag {
	s := valueAt(p)
	var test relational.Frag
	switch fn {
	case mapping.FuncContains:
		test = relational.F("instr(%s, %s) > 0", s, relational.Arg(needle))
	case mapping.FuncStartsWith:
		test = relational.F("substr(%s, 1, length(%s)) = %s", s, relational.Arg(needle), relational.Arg(needle))
	default:
		test = relational.F("(%s = '' OR substr(%s, -length(%s)) = %s)", relational.Arg(needle), s, relational.Arg(needle), relational.Arg(needle))
	}
	return relational.F("(%s = 'text' AND %s)", typeOf(p), test)
}

func (Dialect) Length(p relational.Path) string {
	return "(CASE WHEN " + typeOf(p) + " = 'text' THEN length(" + valueAt(p) + ") ELSE 0 END)"
}

func (Dialect) ArrayLength(p relational.Path) string {
	return "(CASE WHEN " + typeOf(p) + " = 'array' THEN json_array_length(" + p.Column + ", " + jsonPath(p.Segments) + ") ELSE 0 END)"
}

func (d Dialect) ArrayContains(p relational.Path, v any) (relational.Frag, error) {
	match, err := typedEquals(d, "e.type", "e.value", "e.value", v)
	if err != nil {
		return relational.Frag{}, err
	}
	return relational.F("(%s = 'array' AND EXISTS (SELECT 1 FROM json_each(%s, %s) AS e WHERE %s))",
		typeOf(p), p.Column, jsonPath(p.Segments), match), nil
}

func (Dialect) Random() string { return "(random() / 18446744073709551616.0 + 0.5)" }

func (Dialect) Now() string {
	return "(strftime('%Y-%m-%d %H:%M:%f', 'now') || '000+0000')"
}

func (d Dialect) OrderKeys(p relational.Path) []string {
	// one value key suffices: booleans read as 0 and 1, text sorts BINARY
	return []string{relational.TypeRank(d, typeOf(p)), valueAt(p)}
}

// ============================================================================
// STATEMENTS
// ============================================================================

func (Dialect) Limit(limit, offset *int64) string {
	switch {
	case limit != nil && offset != nil:
		return fmt.Sprintf(" LIMIT %d OFFSET %d", *limit, *offset)
	case limit != nil:
		return fmt.Sprintf(" LIMIT %d", *limit)
	case offset != nil:
		return fmt.Sprintf(" LIMIT -1 OFFSET %d", *offset)
	}
	return ""
}

func (d Dialect) CreateTable(t relational.Table) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s TEXT PRIMARY KEY, %s TEXT NOT NULL CHECK (json_valid(%s)))",
		d.Quote(t.Name), d.Quote(t.Key), d.Quote(t.Value), d.Quote(t.Value))
}

func (d Dialect) Upsert(t relational.Table, key, document string) relational.Frag {
	k, v := d.Quote(t.Key), d.Quote(t.Value)
	return relational.F("INSERT INTO %s (%s, %s) VALUES (%s, json(%s)) ON CONFLICT(%s) DO UPDATE SET %s = excluded.%s",
		d.Quote(t.Name), k, v, relational.Arg(key), relational.Arg(document), k, v, v)
}

// ============================================================================
// UPDATES
// ============================================================================

// elementJSON renders a json_each row back as JSON text.
func elementJSON(alias string) string {
	return "CASE " + alias + ".type WHEN 'text' THEN json_quote(" + alias + ".value)" +
		" WHEN 'true' THEN 'true' WHEN 'false' THEN 'false' WHEN 'null' THEN 'null'" +
		" ELSE " + alias + ".value END"
}

// sameElement matches two json_each rows by value.
func sameElement(a, b string) string {
	return "(" + a + ".value IS " + b + ".value AND (" + a + ".type = " + b + ".type OR (" +
		a + ".type IN ('integer', 'real') AND " + b + ".type IN ('integer', 'real'))))"
}

// aggregate collects rows into JSON array text. Callers wrap the scalar
// subquery in json() since the JSON subtype does not cross it.
func aggregate(alias string) string {
	return "'[' || COALESCE(group_concat(" + elementJSON(alias) + ", ','), '') || ']'"
}

func (Dialect) SetValue(doc relational.Frag, p relational.Path, op string, v any) (relational.Frag, error) {
	path := jsonPath(p.Segments)
	parent, last := relational.SplitLast(p)
	existing := "COALESCE(" + jsonAt(p) + ", '[]')"

	switch op {
	case mapping.UpdateDelete:
		return relational.F("json_remove(%s, %s)", doc, path), nil
	case mapping.UpdateIncrement:
		return relational.F("json_set(%s, %s, COALESCE(%s, 0) + %s)", doc, path, valueAt(p), relational.Arg(v)), nil
	case mapping.UpdateAppend:
		return relational.F("json_set(%s, %s, COALESCE(%s, '') || %s)", doc, path, valueAt(p), relational.Arg(v)), nil
	case mapping.UpdatePrepend:
		return relational.F("json_set(%s, %s, %s || COALESCE(%s, ''))", doc, path, relational.Arg(v), valueAt(p)), nil
	}

	arg, err := relational.JSONArg(v)
	if err != nil {
		return relational.Frag{}, err
	}
	switch op {
	case mapping.UpdatePut:
		return relational.F("json_set(%s, %s, json(%s))", doc, path, arg), nil
	case mapping.UpdateInsert:
		if last == accessor.Last {
			appendPath := relational.QuoteString(pathString(parent.Segments) + "[#]")
			return relational.F("json_insert(%s, %s, json(%s))", doc, appendPath, arg), nil
		}
		if relational.IsIndex(last) {
			return relational.Frag{}, fmt.Errorf("%w: insert at a list index on SQLite", models.ErrNotSupported)
		}
		return relational.F("json_set(%s, %s, json(%s))", doc, path, arg), nil
	case mapping.UpdateArrayUnion:
		return relational.F("json_set(%s, %s, json((SELECT "+aggregate("u")+" FROM ("+
			"SELECT o.type AS type, o.value AS value FROM json_each(%s) AS o "+
			"UNION ALL SELECT n.type, n.value FROM json_each(%s) AS n "+
			"WHERE NOT EXISTS (SELECT 1 FROM json_each(%s) AS x WHERE "+sameElement("x", "n")+")) AS u)))",
			doc, path, existing, arg, existing), nil
	case mapping.UpdateArrayRemove:
		return relational.F("json_set(%s, %s, json((SELECT "+aggregate("e")+" FROM json_each(%s) AS e "+
			"WHERE NOT EXISTS (SELECT 1 FROM json_each(%s) AS r WHERE "+sameElement("r", "e")+"))))",
			doc, path, existing, arg), nil
	}
	return relational.Frag{}, fmt.Errorf("%w: update %s", models.ErrNotSupported, op)
}

func (Dialect) Move(doc relational.Frag, src, dst relational.Path) (relational.Frag, error) {
	return relational.F("json_set(json_remove(%s, %s), %s, json(%s))",
		doc, jsonPath(src.Segments), jsonPath(dst.Segments), jsonAt(src)), nil
}
