package relational

import (
	"github.com/omniql-engine/x8ql/engine/accessor"
	"github.com/omniql-engine/x8ql/mapping"
)

// Table describes where documents live: one row per item, its key in Key
// and the JSON document in Value.
type Table struct {
	Name  string
	Key   string
	Value string
}

// Path addresses a value inside the document column. Segments are accessor
// segments; accessor.Last addresses the final list element.
type Path struct {
	Column   string // quoted document column
	Segments []string
}

// IsRoot reports whether the path is the whole document.
func (p Path) IsRoot() bool {
	return len(p.Segments) == 0
}

// Dialect renders the backend specific parts of a statement. Conditions
// may evaluate to NULL; the compiler wraps them so callers never see it.
type Dialect interface {
	// Name is the mapping database name.
	Name() string
	Placeholder(n int) string
	Quote(ident string) string

	// TypeOf is the backend type name of the value at p, NULL when missing.
	TypeOf(p Path) string
	// Compare compares the value at p with a constant. op is one of
	// = < <= > >=; ordering is only requested for numbers and strings.
	Compare(p Path, op string, v any) (Frag, error)
	// Regexp matches the string at p against an anchored pattern.
	Regexp(p Path, pattern string) Frag
	// StringFunc renders contains, starts_with or ends_with.
	StringFunc(fn string, p Path, needle string) Frag
	Length(p Path) string
	ArrayLength(p Path) string
	ArrayContains(p Path, v any) (Frag, error)
	Random() string
	Now() string
	// OrderKeys are the ascending sort keys of the value at p.
	OrderKeys(p Path) []string

	// Limit renders LIMIT/OFFSET; both may be nil.
	Limit(limit, offset *int64) string
	CreateTable(t Table) string
	// Upsert writes the document given as JSON text under key.
	Upsert(t Table, key, document string) Frag

	// SetValue applies one update operation to the document doc. Reads of
	// existing values use the stored column.
	SetValue(doc Frag, stored Path, op string, v any) (Frag, error)
	// Move sets dst to the stored value at src and removes src.
	Move(doc Frag, src, dst Path) (Frag, error)
}

// valueType names the QL type of a constant.
func valueType(v any) string {
	switch v.(type) {
	case nil:
		return mapping.TypeNull
	case bool:
		return mapping.TypeBoolean
	case string:
		return mapping.TypeString
	}
	switch {
	case accessor.IsNumber(v):
		return mapping.TypeNumber
	case accessor.IsSequence(v):
		return mapping.TypeArray
	}
	return mapping.TypeObject
}

// TypeGuard renders `expr IN (names...)` for the backend names of
// valueType.
func TypeGuard(d Dialect, expr, valueType string) string {
	names, _ := mapping.NativeTypes(d.Name(), valueType)
	if len(names) == 1 {
		return expr + " = " + QuoteString(names[0])
	}
	quoted := ""
	for i, n := range names {
		if i > 0 {
			quoted += ", "
		}
		quoted += QuoteString(n)
	}
	return expr + " IN (" + quoted + ")"
}

// TypeRank orders backend type names the way the processor orders values:
// null, boolean, number, string, array, object.
func TypeRank(d Dialect, expr string) string {
	sql := "CASE"
	for i, t := range []string{
		mapping.TypeNull, mapping.TypeBoolean, mapping.TypeNumber,
		mapping.TypeString, mapping.TypeArray, mapping.TypeObject,
	} {
		sql += " WHEN " + TypeGuard(d, expr, t) + " THEN " + string(rune('0'+i))
	}
	return sql + " END"
}
