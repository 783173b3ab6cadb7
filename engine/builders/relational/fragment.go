// Package relational lowers QL queries onto SQL tables holding one JSON
// document per row. Backends plug in through a Dialect.
package relational

import (
	"encoding/json"
	"fmt"
	"strings"
)

// marker stands for a bound argument until the statement is numbered.
// Path segments come from QL identifiers and never contain it.
const marker = "\x00"

// Frag is a piece of SQL with the arguments of its markers, in order.
type Frag struct {
	SQL  string
	Args []any
}

// Raw wraps SQL without arguments.
func Raw(sql string) Frag {
	return Frag{SQL: sql}
}

type bound struct{ v any }

// Arg binds v at its position in an F format.
func Arg(v any) any {
	return bound{v: v}
}

// JSONArg binds v encoded as JSON text.
func JSONArg(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return bound{v: string(b)}, nil
}

// F substitutes each %s of format with a part: a Frag, a string of SQL or
// an Arg. Any other verb is copied as is.
func F(format string, parts ...any) Frag {
	var sb strings.Builder
	var args []any
	pieces := strings.Split(format, "%s")
	if len(pieces)-1 != len(parts) {
		panic(fmt.Sprintf("relational: format %q has %d slots for %d parts", format, len(pieces)-1, len(parts)))
	}
	for i, piece := range pieces {
		sb.WriteString(piece)
		if i == len(parts) {
			break
		}
		switch p := parts[i].(type) {
		case Frag:
			sb.WriteString(p.SQL)
			args = append(args, p.Args...)
		case string:
			sb.WriteString(p)
		case bound:
			sb.WriteString(marker)
			args = append(args, p.v)
		default:
			panic(fmt.Sprintf("relational: unexpected part %T", p))
		}
	}
	return Frag{SQL: sb.String(), Args: args}
}

// Join concatenates frags with sep.
func Join(frags []Frag, sep string) Frag {
	var sb strings.Builder
	var args []any
	for i, f := range frags {
		if i > 0 {
			sb.WriteString(sep)
		}
		sb.WriteString(f.SQL)
		args = append(args, f.Args...)
	}
	return Frag{SQL: sb.String(), Args: args}
}

// Statement is a finished SQL statement ready for database/sql.
type Statement struct {
	SQL  string
	Args []any
}

// finish numbers the markers with the dialect placeholders.
func finish(d Dialect, f Frag) (Statement, error) {
	var sb strings.Builder
	n := 0
	for i := 0; i < len(f.SQL); i++ {
		if f.SQL[i] == marker[0] {
			n++
			sb.WriteString(d.Placeholder(n))
			continue
		}
		sb.WriteByte(f.SQL[i])
	}
	if n != len(f.Args) {
		return Statement{}, fmt.Errorf("relational: %d placeholders for %d arguments", n, len(f.Args))
	}
	return Statement{SQL: sb.String(), Args: f.Args}, nil
}

// QuoteString renders s as a single quoted SQL string literal.
func QuoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
