// Package mysql renders document queries for MySQL 8. Documents are stored
// in a JSON column.
package mysql

import (
	"fmt"
	"strings"

	"github.com/omniql-engine/x8ql/engine/accessor"
	"github.com/omniql-engine/x8ql/engine/builders/relational"
	"github.com/omniql-engine/x8ql/engine/models"
	"github.com/omniql-engine/x8ql/mapping"
)

// maxRows stands in for a missing LIMIT when an OFFSET is given.
const maxRows = "18446744073709551615"

// Dialect implements relational.Dialect.
type Dialect struct{}

var _ relational.Dialect = Dialect{}

func (Dialect) Name() string { return "MySQL" }

func (Dialect) Placeholder(int) string { return "?" }

func (Dialect) Quote(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

// ============================================================================
// PATHS
// ============================================================================

// stringLiteral quotes s for MySQL, where backslash escapes by default.
func stringLiteral(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// jsonPath renders segments as `$."a"[0]`.
func jsonPath(segs []string) string {
	var sb strings.Builder
	sb.WriteString("$")
	for _, s := range segs {
		switch {
		case s == accessor.Last:
			sb.WriteString("[last]")
		case relational.IsIndex(s):
			sb.WriteString("[" + s + "]")
		default:
			s = strings.ReplaceAll(s, `\`, `\\`)
			sb.WriteString(`."` + strings.ReplaceAll(s, `"`, `\"`) + `"`)
		}
	}
	return stringLiteral(sb.String())
}

func jsonAt(p relational.Path) string {
	if p.IsRoot() {
		return p.Column
	}
	return "JSON_EXTRACT(" + p.Column + ", " + jsonPath(p.Segments) + ")"
}

func textAt(p relational.Path) string {
	return "JSON_UNQUOTE(" + jsonAt(p) + ")"
}

func typeOf(p relational.Path) string {
	return "JSON_TYPE(" + jsonAt(p) + ")"
}

// ============================================================================
// CONDITIONS
// ============================================================================

func (Dialect) TypeOf(p relational.Path) string { return typeOf(p) }

func (d Dialect) Compare(p relational.Path, op string, v any) (relational.Frag, error) {
	arg, err := relational.JSONArg(v)
	if err != nil {
		return relational.Frag{}, err
	}
	if op == mapping.OpEQ {
		return relational.F("%s = CAST(%s AS JSON)", jsonAt(p), arg), nil
	}
	guard := relational.TypeGuard(d, typeOf(p), mapping.TypeNumber)
	if _, ok := v.(string); ok {
		guard = relational.TypeGuard(d, typeOf(p), mapping.TypeString)
	}
	// JSON strings compare with utf8mb4_bin
	return relational.F("(%s AND %s "+op+" CAST(%s AS JSON))", guard, jsonAt(p), arg), nil
}

func (Dialect) Regexp(p relational.Path, pattern string) relational.Frag {
	return relational.F("(%s = 'STRING' AND REGEXP_LIKE(%s, %s, 'c'))", typeOf(p), textAt(p), relational.Arg(pattern))
}

func (Dialect) StringFunc(fn string, p relational.Path, needle string) relational.Frag {
	var test relational.Frag
	switch fn {
	case mapping.FuncContains:
		test = relational.F("INSTR(%s, %s) > 0", textAt(p), relational.Arg(needle))
	case mapping.FuncStartsWith:
		test = relational.F("LEFT(%s, CHAR_LENGTH(%s)) = %s", textAt(p), relational.Arg(needle), relational.Arg(needle))
	default:
		test = relational.F("RIGHT(%s, CHAR_LENGTH(%s)) = %s", textAt(p), relational.Arg(needle), relational.Arg(needle))
	}
	return relational.F("(%s = 'STRING' AND %s)", typeOf(p), test)
}

func (Dialect) Length(p relational.Path) string {
	return "IF(" + typeOf(p) + " = 'STRING', CHAR_LENGTH(" + textAt(p) + "), 0)"
}

func (Dialect) ArrayLength(p relational.Path) string {
	return "IF(" + typeOf(p) + " = 'ARRAY', JSON_LENGTH(" + jsonAt(p) + "), 0)"
}

func (Dialect) ArrayContains(p relational.Path, v any) (relational.Frag, error) {
	arg, err := relational.JSONArg(v)
	if err != nil {
		return relational.Frag{}, err
	}
	return relational.F("(%s = 'ARRAY' AND CAST(%s AS JSON) MEMBER OF (%s))", typeOf(p), arg, jsonAt(p)), nil
}

func (Dialect) Random() string { return "RAND()" }

func (Dialect) Now() string {
	return "CONCAT(DATE_FORMAT(UTC_TIMESTAMP(6), '%Y-%m-%d %H:%i:%s.%f'), '+0000')"
}

func (d Dialect) OrderKeys(p relational.Path) []string {
	t := typeOf(p)
	return []string{
		relational.TypeRank(d, t),
		"IF(" + t + " = 'BOOLEAN', " + jsonAt(p) + " = CAST('true' AS JSON), NULL)",
		"IF(" + relational.TypeGuard(d, t, mapping.TypeNumber) + ", CAST(" + jsonAt(p) + " AS DECIMAL(65,30)), NULL)",
		"IF(" + t + " = 'STRING', CAST(" + textAt(p) + " AS BINARY), NULL)",
	}
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
		return fmt.Sprintf(" LIMIT %s OFFSET %d", maxRows, *offset)
	}
	return ""
}

func (d Dialect) CreateTable(t relational.Table) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s VARCHAR(255) NOT NULL PRIMARY KEY, %s JSON NOT NULL)",
		d.Quote(t.Name), d.Quote(t.Key), d.Quote(t.Value))
}

func (d Dialect) Upsert(t relational.Table, key, document string) relational.Frag {
	k, v := d.Quote(t.Key), d.Quote(t.Value)
	return relational.F("INSERT INTO %s (%s, %s) VALUES (%s, CAST(%s AS JSON)) ON DUPLICATE KEY UPDATE %s = VALUES(%s)",
		d.Quote(t.Name), k, v, relational.Arg(key), relational.Arg(document), v, v)
}

// ============================================================================
// UPDATES
// ============================================================================

func (Dialect) SetValue(doc relational.Frag, p relational.Path, op string, v any) (relational.Frag, error) {
	path := jsonPath(p.Segments)
	parent, last := relational.SplitLast(p)

	switch op {
	case mapping.UpdateDelete:
		return relational.F("JSON_REMOVE(%s, %s)", doc, path), nil
	case mapping.UpdateIncrement:
		return relational.F("JSON_SET(%s, %s, COALESCE(%s, 0) + %s)", doc, path, jsonAt(p), relational.Arg(v)), nil
	case mapping.UpdateAppend:
		return relational.F("JSON_SET(%s, %s, CONCAT(COALESCE(%s, ''), %s))", doc, path, textAt(p), relational.Arg(v)), nil
	case mapping.UpdatePrepend:
		return relational.F("JSON_SET(%s, %s, CONCAT(%s, COALESCE(%s, '')))", doc, path, relational.Arg(v), textAt(p)), nil
	case mapping.UpdateArrayUnion, mapping.UpdateArrayRemove:
		return relational.Frag{}, fmt.Errorf("%w: %s on MySQL", models.ErrNotSupported, op)
	}

	arg, err := relational.JSONArg(v)
	if err != nil {
		return relational.Frag{}, err
	}
	switch op {
	case mapping.UpdatePut:
		return relational.F("JSON_SET(%s, %s, CAST(%s AS JSON))", doc, path, arg), nil
	case mapping.UpdateInsert:
		if last == accessor.Last {
			return relational.F("JSON_ARRAY_APPEND(%s, %s, CAST(%s AS JSON))", doc, jsonPath(parent.Segments), arg), nil
		}
		if relational.IsIndex(last) {
			return relational.F("JSON_ARRAY_INSERT(%s, %s, CAST(%s AS JSON))", doc, path, arg), nil
		}
		return relational.F("JSON_SET(%s, %s, CAST(%s AS JSON))", doc, path, arg), nil
	}
	return relational.Frag{}, fmt.Errorf("%w: update %s", models.ErrNotSupported, op)
}

func (Dialect) Move(doc relational.Frag, src, dst relational.Path) (relational.Frag, error) {
	return relational.F("JSON_SET(JSON_REMOVE(%s, %s), %s, %s)",
		doc, jsonPath(src.Segments), jsonPath(dst.Segments), jsonAt(src)), nil
}
