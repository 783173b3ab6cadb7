package ast

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/omniql-engine/x8ql/mapping"
)

// RenderValue formats a Go value the way it is written in QL.
func RenderValue(v any) string {
	var sb strings.Builder
	writeValue(&sb, v)
	return sb.String()
}

func writeValue(sb *strings.Builder, v any) {
	switch val := v.(type) {
	case nil:
		sb.WriteString("null")
	case bool:
		sb.WriteString(strconv.FormatBool(val))
	case string:
		writeQuoted(sb, val)
	case []byte:
		writeQuoted(sb, string(val))
	case int:
		sb.WriteString(strconv.Itoa(val))
	case int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		fmt.Fprintf(sb, "%d", val)
	case float32:
		writeFloat(sb, float64(val))
	case float64:
		writeFloat(sb, val)
	case json.Number:
		sb.WriteString(val.String())
	case []any:
		sb.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				sb.WriteString(", ")
			}
			writeValue(sb, item)
		}
		sb.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			writeQuoted(sb, k)
			sb.WriteString(": ")
			writeValue(sb, val[k])
		}
		sb.WriteByte('}')
	case Node:
		sb.WriteString(val.String())
	default:
		if b, err := json.Marshal(val); err == nil {
			sb.Write(b)
			return
		}
		fmt.Fprint(sb, val)
	}
}

// writeFloat keeps a decimal point so the text reads back as a float.
func writeFloat(sb *strings.Builder, f float64) {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		sb.WriteString("null")
		return
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	sb.WriteString(s)
}

func writeQuoted(sb *strings.Builder, s string) {
	sb.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		case '\n':
			sb.WriteString(`\n`)
		case '\t':
			sb.WriteString(`\t`)
		case '\r':
			sb.WriteString(`\r`)
		default:
			if r < 0x20 {
				fmt.Fprintf(sb, `\u%04x`, r)
				continue
			}
			sb.WriteRune(r)
		}
	}
	sb.WriteByte('"')
}

func joinExprs(exprs []Expr) string {
	parts := make([]string, len(exprs))
	for i, e := range exprs {
		parts[i] = e.String()
	}
	return strings.Join(parts, ", ")
}

// ============================================================================
// NODE RENDERING
// ============================================================================

func (l *Literal) String() string   { return RenderValue(l.Value) }
func (l *List) String() string      { return "(" + joinExprs(l.Items) + ")" }
func (f *Field) String() string     { return f.Path }
func (p *Parameter) String() string { return "@" + p.Name }
func (r *Ref) String() string       { return "{{" + r.Path + "}}" }

func (g *GeoPoint) String() string {
	var sb strings.Builder
	sb.WriteString("POINT(")
	writeFloat(&sb, g.Lon)
	sb.WriteByte(' ')
	writeFloat(&sb, g.Lat)
	sb.WriteByte(')')
	return sb.String()
}

func (f *Function) String() string {
	name := f.Name
	if !f.IsBuiltin() {
		name = f.Namespace + "." + f.Name
	}
	if len(f.NamedArgs) > 0 {
		parts := make([]string, len(f.NamedArgs))
		for i, a := range f.NamedArgs {
			parts[i] = a.Name + "=" + a.Value.String()
		}
		return name + "(" + strings.Join(parts, ", ") + ")"
	}
	return name + "(" + joinExprs(f.Args) + ")"
}

func (c *Comparison) String() string {
	if c.Op == mapping.OpBetween {
		if list, ok := c.Right.(*List); ok && len(list.Items) == 2 {
			return fmt.Sprintf("%s between %s AND %s", c.Left, list.Items[0], list.Items[1])
		}
	}
	return fmt.Sprintf("%s %s %s", c.Left, c.Op, c.Right)
}

func (a *And) String() string { return fmt.Sprintf("(%s AND %s)", a.Left, a.Right) }
func (o *Or) String() string  { return fmt.Sprintf("(%s OR %s)", o.Left, o.Right) }
func (n *Not) String() string { return "NOT " + n.Expr.String() }

func (s *Select) String() string {
	if s.IsEmpty() {
		return "*"
	}
	parts := make([]string, len(s.Terms))
	for i, t := range s.Terms {
		parts[i] = t.String()
	}
	return strings.Join(parts, ", ")
}

func (t SelectTerm) String() string {
	if t.Alias == "" || t.Alias == t.Field {
		return t.Field
	}
	return t.Field + " AS " + t.Alias
}

func (c *Collection) String() string {
	if isPlainIdentifier(c.Name) {
		return c.Name
	}
	return RenderValue(c.Name)
}

func (o *OrderBy) String() string {
	parts := make([]string, len(o.Terms))
	for i, t := range o.Terms {
		parts[i] = t.String()
	}
	return strings.Join(parts, ", ")
}

func (t OrderByTerm) String() string { return t.Field + " " + t.OrderDirection() }

func (u *Update) String() string {
	parts := make([]string, len(u.Operations))
	for i, op := range u.Operations {
		parts[i] = op.String()
	}
	return strings.Join(parts, ", ")
}

func (u UpdateOperation) String() string {
	return u.Field + "=" + u.Op + "(" + joinExprs(u.Args) + ")"
}

// clauseOrder is the order clauses are written back out in.
var clauseOrder = []string{"select", "collection", "set", "search", "where", "order_by", "rank_by"}

func (o *Operation) String() string {
	if stmts, ok := o.Nested(); ok {
		return o.Name + " " + stmts.String()
	}
	var sb strings.Builder
	sb.WriteString(o.Name)
	seen := make(map[string]bool, len(clauseOrder))
	for _, key := range clauseOrder {
		seen[key] = true
		if v, ok := o.Args[key]; ok {
			sb.WriteByte(' ')
			sb.WriteString(strings.ReplaceAll(key, "_", " "))
			sb.WriteByte(' ')
			sb.WriteString(v.String())
		}
	}
	rest := make([]string, 0, len(o.Args))
	for key := range o.Args {
		if !seen[key] {
			rest = append(rest, key)
		}
	}
	sort.Strings(rest)
	for _, key := range rest {
		sb.WriteByte(' ')
		sb.WriteString(key)
		sb.WriteByte(' ')
		sb.WriteString(o.Args[key].String())
	}
	return sb.String()
}

func (s *Statements) String() string {
	var sb strings.Builder
	for _, op := range s.Operations {
		sb.WriteString(op.String())
		sb.WriteString("; ")
	}
	sb.WriteString("end")
	return sb.String()
}

func isPlainIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || r == '$' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
		case i > 0 && (r == '.' || (r >= '0' && r <= '9')):
		default:
			return false
		}
	}
	return true
}
