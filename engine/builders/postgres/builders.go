// Package postgres renders document queries for PostgreSQL. Documents are
// stored in a JSONB column.
package postgres

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/omniql-engine/x8ql/engine/accessor"
	"github.com/omniql-engine/x8ql/engine/builders/relational"
	"github.com/omniql-engine/x8ql/engine/models"
	"github.com/omniql-engine/x8ql/mapping"
)

// Dialect implements relational.Dialect.
type Dialect struct{}

var _ relational.Dialect = Dialect{}

func (Dialect) Name() string { return "PostgreSQL" }

func (Dialect) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

func (Dialect) Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// ============================================================================
// PATHS
// ============================================================================

// pathLiteral renders segments as a text[] literal for #> and jsonb_set.
func pathLiteral(segs []string) string {
	parts := make([]string, len(segs))
	for i, s := range segs {
		if s == accessor.Last {
			s = "-1"
		}
		s = strings.ReplaceAll(s, `\`, `\\`)
		s = strings.ReplaceAll(s, `"`, `\"`)
		parts[i] = `"` + s + `"`
	}
	return relational.QuoteString("{" + strings.Join(parts, ",") + "}")
}

// jsonAt is the jsonb value at p.
func jsonAt(p relational.Path) string {
	if p.IsRoot() {
		return p.Column
	}
	return "(" + p.Column + " #> " + pathLiteral(p.Segments) + ")"
}

// textAt is the value at p as text, unquoted for strings.
func textAt(p relational.Path) string {
	return "(" + p.Column + " #>> " + pathLiteral(p.Segments) + ")"
}

func typeOf(p relational.Path) string {
	return "jsonb_typeof(" + jsonAt(p) + ")"
}

// ============================================================================
// CONDITIONS
// ============================================================================

func (Dialect) TypeOf(p relational.Path) string { return typeOf(p) }

func (d Dialect) Compare(p relational.Path, op string, v any) (relational.Frag, error) {
	if op == mapping.OpEQ {
		arg, err := relational.JSONArg(v)
		if err != nil {
			return relational.Frag{}, err
		}
		return relational.F("%s = %s::jsonb", jsonAt(p), arg), nil
	}
	if _, ok := v.(string); ok {
		// byte order, as the processor compares strings
		return relational.F(`(CASE WHEN %s = 'string' THEN %s COLLATE "C" `+op+` %s END)`,
			typeOf(p), textAt(p), relational.Arg(v)), nil
	}
	arg, err := relational.JSONArg(v)
	if err != nil {
		return relational.Frag{}, err
	}
	return relational.F("(CASE WHEN %s = 'number' THEN %s "+op+" %s::jsonb END)", typeOf(p), jsonAt(p), arg), nil
}

func (Dialect) Regexp(p relational.Path, pattern string) relational.Frag {
	return relational.F("(CASE WHEN %s = 'string' THEN %s ~ %s END)", typeOf(p), textAt(p), relational.Arg(pattern))
}

func (Dialect) StringFunc(fn string, p relational.Path, needle string) relational.Frag {
	var test relational.Frag
	switch fn {
	case mapping.FuncContains:
		test = relational.F("strpos(%s, %s) > 0", textAt(p), relational.Arg(needle))
	case mapping.FuncStartsWith:
		test = relational.F("starts_with(%s, %s)", textAt(p), relational.Arg(needle))
	default:
		test = relational.F("right(%s, char_length(%s)) = %s", textAt(p), relational.Arg(needle), relational.Arg(needle))
	}
	return relational.F("(CASE WHEN %s = 'string' THEN %s END)", typeOf(p), test)
}

func (Dialect) Length(p relational.Path) string {
	return "(CASE WHEN " + typeOf(p) + " = 'string' THEN char_length(" + textAt(p) + ") ELSE 0 END)"
}

func (Dialect) ArrayLength(p relational.Path) string {
	return "(CASE WHEN " + typeOf(p) + " = 'array' THEN jsonb_array_length(" + jsonAt(p) + ") ELSE 0 END)"
}

func (Dialect) ArrayContains(p relational.Path, v any) (relational.Frag, error) {
	arg, err := relational.JSONArg(v)
	if err != nil {
		return relational.Frag{}, err
	}
	return relational.F("(CASE WHEN %s = 'array' THEN EXISTS (SELECT 1 FROM jsonb_array_elements(%s) AS e(v) WHERE e.v = %s::jsonb) END)",
		typeOf(p), jsonAt(p), arg), nil
}

func (Dialect) Random() string { return "random()" }

func (Dialect) Now() string {
	return `(to_char(now() AT TIME ZONE 'UTC', 'YYYY-MM-DD HH24:MI:SS.US') || '+0000')`
}

func (d Dialect) OrderKeys(p relational.Path) []string {
	t := typeOf(p)
	return []string{
		relational.TypeRank(d, t),
		"(CASE WHEN " + t + " = 'boolean' THEN " + textAt(p) + "::boolean END)",
		"(CASE WHEN " + t + " = 'number' THEN " + textAt(p) + "::numeric END)",
		"(CASE WHEN " + t + " = 'string' THEN " + textAt(p) + ` END) COLLATE "C"`,
	}
}

// ============================================================================
// STATEMENTS
// ============================================================================

func (Dialect) Limit(limit, offset *int64) string {
	out := ""
	if limit != nil {
		out += fmt.Sprintf(" LIMIT %d", *limit)
	}
	if offset != nil {
		out += fmt.Sprintf(" OFFSET %d", *offset)
	}
	return out
}

func (d Dialect) Upsert(t relational.Table, key, document string) relational.Frag {
	k, v := d.Quote(t.Key), d.Quote(t.Value)
	return relational.F("INSERT INTO %s (%s, %s) VALUES (%s, %s::jsonb) ON CONFLICT (%s) DO UPDATE SET %s = EXCLUDED.%s",
		d.Quote(t.Name), k, v, relational.Arg(key), relational.Arg(document), k, v, v)
}

// ============================================================================
// UPDATES
// ============================================================================

func (Dialect) SetValue(doc relational.Frag, p relational.Path, op string, v any) (relational.Frag, error) {
	path := pathLiteral(p.Segments)
	_, last := relational.SplitLast(p)

	switch op {
	case mapping.UpdateDelete:
		return relational.F("(%s #- %s)", doc, path), nil
	case mapping.UpdateIncrement:
		return relational.F("jsonb_set(%s, %s, to_jsonb(COALESCE(%s::numeric, 0) + %s::numeric), true)",
			doc, path, textAt(p), relational.Arg(v)), nil
	case mapping.UpdateAppend:
		return relational.F("jsonb_set(%s, %s, to_jsonb(COALESCE(%s, '') || %s::text), true)",
			doc, path, textAt(p), relational.Arg(v)), nil
	case mapping.UpdatePrepend:
		return relational.F("jsonb_set(%s, %s, to_jsonb(%s::text || COALESCE(%s, '')), true)",
			doc, path, relational.Arg(v), textAt(p)), nil
	}

	arg, err := relational.JSONArg(v)
	if err != nil {
		return relational.Frag{}, err
	}
	switch op {
	case mapping.UpdatePut:
		return relational.F("jsonb_set(%s, %s, %s::jsonb, true)", doc, path, arg), nil
	case mapping.UpdateInsert:
		if last == accessor.Last {
			return relational.F("jsonb_insert(%s, %s, %s::jsonb, true)", doc, path, arg), nil
		}
		if relational.IsIndex(last) {
			return relational.F("jsonb_insert(%s, %s, %s::jsonb)", doc, path, arg), nil
		}
		return relational.F("jsonb_set(%s, %s, %s::jsonb, true)", doc, path, arg), nil
	case mapping.UpdateArrayUnion:
		existing := "COALESCE(" + jsonAt(p) + ", '[]'::jsonb)"
		return relational.F("jsonb_set(%s, %s, %s || COALESCE((SELECT jsonb_agg(e.v ORDER BY e.i) FROM jsonb_array_elements(%s::jsonb) WITH ORDINALITY AS e(v, i) WHERE NOT %s @> jsonb_build_array(e.v)), '[]'::jsonb), true)",
			doc, path, existing, arg, existing), nil
	case mapping.UpdateArrayRemove:
		return relational.F("jsonb_set(%s, %s, COALESCE((SELECT jsonb_agg(e.v ORDER BY e.i) FROM jsonb_array_elements(%s) WITH ORDINALITY AS e(v, i) WHERE NOT %s::jsonb @> jsonb_build_array(e.v)), '[]'::jsonb), true)",
			doc, path, jsonAt(p), arg), nil
	}
	return relational.Frag{}, fmt.Errorf("%w: update %s", models.ErrNotSupported, op)
}

func (Dialect) Move(doc relational.Frag, src, dst relational.Path) (relational.Frag, error) {
	return relational.F("jsonb_set(%s #- %s, %s, %s, true)",
		doc, pathLiteral(src.Segments), pathLiteral(dst.Segments), jsonAt(src)), nil
}
