package mongodb

import (
	"fmt"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/omniql-engine/x8ql/engine/accessor"
	"github.com/omniql-engine/x8ql/engine/ast"
	"github.com/omniql-engine/x8ql/engine/models"
	"github.com/omniql-engine/x8ql/mapping"
)

// updateDoc accumulates fields per update operator, in first use order.
type updateDoc struct {
	order  []string
	fields map[string]bson.D
}

func (u *updateDoc) add(operator, path string, v any) {
	if u.fields == nil {
		u.fields = map[string]bson.D{}
	}
	if _, ok := u.fields[operator]; !ok {
		u.order = append(u.order, operator)
	}
	u.fields[operator] = append(u.fields[operator], bson.E{Key: path, Value: v})
}

func (u *updateDoc) document() bson.D {
	out := make(bson.D, 0, len(u.order))
	for _, op := range u.order {
		out = append(out, bson.E{Key: op, Value: u.fields[op]})
	}
	return out
}

// BuildUpdate lowers a set clause onto an update document.
func BuildUpdate(update *ast.Update) (bson.D, error) {
	if update == nil || len(update.Operations) == 0 {
		return nil, fmt.Errorf("%w: update without operations", models.ErrInvalidStatement)
	}
	var doc updateDoc
	for _, op := range update.Operations {
		if err := addOperation(&doc, op); err != nil {
			return nil, err
		}
	}
	return doc.document(), nil
}

func addOperation(doc *updateDoc, op ast.UpdateOperation) error {
	arity, ok := mapping.UpdateArity[op.Op]
	if !ok {
		return fmt.Errorf("%w: unknown update operation %q", models.ErrInvalidStatement, op.Op)
	}
	if len(op.Args) != arity {
		return fmt.Errorf("%w: %s takes %d argument(s)", models.ErrInvalidStatement, op.Op, arity)
	}
	segs := accessor.SplitPath(op.Field)
	if len(segs) == 0 {
		return fmt.Errorf("%w: update of the whole document", models.ErrInvalidStatement)
	}
	last := segs[len(segs)-1]
	parent := segs[:len(segs)-1]
	if (last == accessor.Last || isNumeric(last)) && !mapping.ArrayUpdateOperations[op.Op] {
		return fmt.Errorf("%w: %s at a list index", models.ErrNotSupported, op.Op)
	}

	if op.Op == mapping.UpdateMove {
		src, err := moveSource(op.Args[0])
		if err != nil {
			return err
		}
		if accessor.NormalizePath(src) == accessor.NormalizePath(op.Field) {
			return nil
		}
		from, err := fieldName(src)
		if err != nil {
			return err
		}
		to, err := fieldName(op.Field)
		if err != nil {
			return err
		}
		doc.add("$rename", from, to)
		return nil
	}

	var v any
	if arity == 1 {
		c, ok := constant(op.Args[0])
		if !ok {
			return fmt.Errorf("%w: %s with argument %s", models.ErrNotSupported, op.Op, op.Args[0])
		}
		v = c
	}

	switch op.Op {
	case mapping.UpdateDelete:
		switch {
		case last == accessor.Last:
			return popFrom(doc, parent, 1)
		case last == "0":
			return popFrom(doc, parent, -1)
		case isNumeric(last):
			return fmt.Errorf("%w: delete at a list index on MongoDB", models.ErrNotSupported)
		}
		path, err := dotted(op.Field)
		if err != nil {
			return err
		}
		doc.add("$unset", path, "")
	case mapping.UpdateInsert:
		if last == accessor.Last || isNumeric(last) {
			each := bson.D{{Key: "$each", Value: bson.A{v}}}
			if last != accessor.Last {
				n, _ := strconv.Atoi(last)
				each = append(each, bson.E{Key: "$position", Value: n})
			}
			return pushTo(doc, parent, each)
		}
		return setAt(doc, op.Field, v)
	case mapping.UpdatePut:
		return setAt(doc, op.Field, v)
	case mapping.UpdateIncrement:
		if !accessor.IsNumber(v) {
			return fmt.Errorf("%w: increment by %s", models.ErrInvalidStatement, op.Args[0])
		}
		path, err := dotted(op.Field)
		if err != nil {
			return err
		}
		doc.add("$inc", path, v)
	case mapping.UpdateArrayUnion:
		path, err := dotted(op.Field)
		if err != nil {
			return err
		}
		doc.add("$addToSet", path, bson.D{{Key: "$each", Value: listOf(v)}})
	case mapping.UpdateArrayRemove:
		path, err := dotted(op.Field)
		if err != nil {
			return err
		}
		doc.add("$pullAll", path, listOf(v))
	case mapping.UpdateAppend, mapping.UpdatePrepend:
		// needs a pipeline update, which cannot mix with operator updates
		return fmt.Errorf("%w: %s on MongoDB", models.ErrNotSupported, op.Op)
	default:
		return fmt.Errorf("%w: update %s", models.ErrNotSupported, op.Op)
	}
	return nil
}

func setAt(doc *updateDoc, field string, v any) error {
	path, err := dotted(field)
	if err != nil {
		return err
	}
	doc.add("$set", path, v)
	return nil
}

func popFrom(doc *updateDoc, parent []string, end int) error {
	if len(parent) == 0 {
		return fmt.Errorf("%w: list index at the document root", models.ErrInvalidStatement)
	}
	path, err := dotted(joinSegments(parent))
	if err != nil {
		return err
	}
	doc.add("$pop", path, end)
	return nil
}

func pushTo(doc *updateDoc, parent []string, each bson.D) error {
	if len(parent) == 0 {
		return fmt.Errorf("%w: list index at the document root", models.ErrInvalidStatement)
	}
	path, err := dotted(joinSegments(parent))
	if err != nil {
		return err
	}
	doc.add("$push", path, each)
	return nil
}

func joinSegments(segs []string) string {
	return strings.Join(segs, ".")
}

// fieldName is a dotted path without list indexes, as $rename requires.
func fieldName(path string) (string, error) {
	ref, err := fieldRef(path)
	if err != nil {
		return "", err
	}
	return ref[1:], nil
}

func moveSource(e ast.Expr) (string, error) {
	switch n := e.(type) {
	case *ast.Field:
		return n.Path, nil
	case *ast.Literal:
		if s, ok := n.Value.(string); ok {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: move needs a field path, got %s", models.ErrInvalidStatement, e)
}

func listOf(v any) bson.A {
	if items, ok := accessor.Items(v); ok {
		return bson.A(items)
	}
	return bson.A{v}
}
