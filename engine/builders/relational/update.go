package relational

import (
	"fmt"

	"github.com/omniql-engine/x8ql/engine/accessor"
	"github.com/omniql-engine/x8ql/engine/ast"
	"github.com/omniql-engine/x8ql/engine/models"
	"github.com/omniql-engine/x8ql/mapping"
)

// ============================================================================
// UPDATE
// ============================================================================

// Operations in one SET read the stored document, so a later operation does
// not observe the values written by an earlier one.
func buildUpdate(d Dialect, t Table, q *models.Query) (Frag, error) {
	c := newCompiler(d, t)
	cond, err := filter(d, t, q)
	if err != nil {
		return Frag{}, err
	}

	doc := Raw(c.column)
	guards := []Frag{cond}
	for _, op := range q.Update.Operations {
		if want := mapping.UpdateArity[op.Op]; len(op.Args) != want {
			return Frag{}, fmt.Errorf("%w: %s: %s takes %d argument(s), got %d", models.ErrInvalidStatement, op.Field, op.Op, want, len(op.Args))
		}
		dst := c.path(op.Field)
		if dst.IsRoot() {
			return Frag{}, fmt.Errorf("%w: %s needs a field", models.ErrInvalidStatement, op.Op)
		}
		last := dst.Segments[len(dst.Segments)-1]
		if IsIndex(last) && !mapping.ArrayUpdateOperations[op.Op] {
			return Frag{}, fmt.Errorf("%w: %s on list element %s", models.ErrNotSupported, op.Op, op.Field)
		}
		if last == accessor.Last && op.Op == mapping.UpdateIncrement {
			return Frag{}, fmt.Errorf("%w: increment at %s", models.ErrNotSupported, op.Field)
		}

		if op.Op == mapping.UpdateMove {
			src, err := moveSource(op.Args[0])
			if err != nil {
				return Frag{}, fmt.Errorf("%s: %w", op.Field, err)
			}
			if src == op.Field {
				continue
			}
			srcPath := c.path(src)
			doc, err = d.Move(doc, srcPath, dst)
			if err != nil {
				return Frag{}, err
			}
			// rows without the source are left untouched
			guards = append(guards, Raw(d.TypeOf(srcPath)+" IS NOT NULL"))
			continue
		}

		var v any
		if len(op.Args) > 0 {
			var ok bool
			v, ok = constant(op.Args[0])
			if !ok {
				return Frag{}, fmt.Errorf("%w: %s: argument %s", models.ErrNotSupported, op.Field, op.Args[0])
			}
			if v, err = updateValue(op.Op, v); err != nil {
				return Frag{}, fmt.Errorf("%s: %w", op.Field, err)
			}
		}
		doc, err = d.SetValue(doc, dst, op.Op, v)
		if err != nil {
			return Frag{}, fmt.Errorf("%s: %w", op.Field, err)
		}
	}

	if guards[0].SQL == "TRUE" {
		guards = guards[1:]
	}
	where := Frag{}
	if len(guards) > 0 {
		where = F(" WHERE %s", Join(guards, " AND "))
	}
	return F("UPDATE %s SET %s = %s%s", d.Quote(t.Name), d.Quote(t.Value), doc, where), nil
}

func moveSource(arg ast.Expr) (string, error) {
	switch a := arg.(type) {
	case *ast.Field:
		return a.Path, nil
	case *ast.Literal:
		if s, ok := a.Value.(string); ok {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: move needs a field, got %s", models.ErrInvalidStatement, arg)
}

// updateValue checks and normalizes a constant argument.
func updateValue(op string, v any) (any, error) {
	switch op {
	case mapping.UpdateIncrement:
		if !accessor.IsNumber(v) {
			return nil, fmt.Errorf("%w: increment by %v", models.ErrInvalidStatement, v)
		}
	case mapping.UpdateAppend, mapping.UpdatePrepend:
		if _, ok := v.(string); !ok {
			return nil, fmt.Errorf("%w: %s needs a string, got %v", models.ErrInvalidStatement, op, v)
		}
	case mapping.UpdateArrayUnion:
		var out []any
		for _, it := range listOf(v) {
			if !containsEqual(out, it) {
				out = append(out, it)
			}
		}
		if out == nil {
			out = []any{}
		}
		return out, nil
	case mapping.UpdateArrayRemove:
		return listOf(v), nil
	}
	return v, nil
}

func listOf(v any) []any {
	if items, ok := accessor.Items(v); ok {
		return items
	}
	return []any{v}
}

func containsEqual(list []any, v any) bool {
	for _, it := range list {
		if accessor.Equal(it, v) {
			return true
		}
	}
	return false
}

// IsIndex reports whether seg addresses a list element.
func IsIndex(seg string) bool {
	if seg == accessor.Last {
		return true
	}
	if seg == "" {
		return false
	}
	for _, r := range seg {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// SplitLast returns the parent path and final segment of p.
func SplitLast(p Path) (Path, string) {
	n := len(p.Segments)
	return Path{Column: p.Column, Segments: p.Segments[:n-1]}, p.Segments[n-1]
}
