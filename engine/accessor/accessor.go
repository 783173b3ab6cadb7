// Package accessor reads and updates values inside nested items by path.
//
// A path is a dotted sequence of segments. Brackets are accepted as an
// alternative spelling for numeric segments, so "tags[0]" and "tags.0"
// address the same element. The segment "-" names the last element of a
// list when reading and the position past the end when inserting.
package accessor

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/omniql-engine/x8ql/engine/ast"
	"github.com/omniql-engine/x8ql/mapping"
)

var (
	ErrIndexOutOfRange = errors.New("index out of range")
	ErrNotNumeric      = errors.New("value is not numeric")
	ErrUnsupportedOp   = errors.New("unsupported update operation")
	ErrSourceNotFound  = errors.New("move source not found")
	ErrNotContainer    = errors.New("value is not a container")
	ErrNotSequence     = errors.New("value is not a list")
	ErrTypeMismatch    = errors.New("type mismatch")
	ErrInvalidPath     = errors.New("invalid path")
)

// Last is the segment addressing the end of a list.
const Last = "-"

// NormalizePath rewrites bracketed indexes into dotted segments.
func NormalizePath(path string) string {
	if !strings.ContainsAny(path, "[]") {
		return path
	}
	r := strings.NewReplacer("[", ".", "]", "")
	return strings.TrimPrefix(r.Replace(path), ".")
}

// SplitPath returns the segments of path. Empty segments are dropped.
func SplitPath(path string) []string {
	parts := strings.Split(NormalizePath(path), ".")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Get returns the value at path, or ast.Undefined when any segment fails to
// resolve.
func Get(item any, path string) any {
	v, ok := Lookup(item, path)
	if !ok {
		return ast.Undefined
	}
	return v
}

// Lookup is Get with an explicit found flag.
func Lookup(item any, path string) (any, bool) {
	cur := item
	for _, seg := range SplitPath(path) {
		next, ok := step(cur, seg)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

func step(cur any, seg string) (any, bool) {
	if IsSequence(cur) {
		rv := reflect.ValueOf(cur)
		idx, ok := readIndex(seg, rv.Len())
		if !ok {
			return nil, false
		}
		return rv.Index(idx).Interface(), true
	}
	c, ok := ContainerOf(cur)
	if !ok {
		return nil, false
	}
	return c.Get(seg)
}

// readIndex resolves seg against a list of length n for reading.
func readIndex(seg string, n int) (int, bool) {
	if seg == Last {
		return n - 1, n > 0
	}
	i, ok := parseIndex(seg)
	if !ok || i >= n {
		return 0, false
	}
	return i, true
}

func parseIndex(seg string) (int, bool) {
	if seg == "" || seg[0] == '+' || seg[0] == '-' {
		return 0, false
	}
	i, err := strconv.Atoi(seg)
	return i, err == nil
}

func isIndexSegment(seg string) bool {
	if seg == Last {
		return true
	}
	_, ok := parseIndex(seg)
	return ok
}

// Update applies op at path and returns the updated item. Maps and record
// pointers are modified in place; lists may be reallocated, which is why the
// result must be used instead of item.
//
// For OpMove the value is the destination path.
func Update(item any, path, op string, value any) (any, error) {
	if !mapping.IsUpdateOperation(op) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedOp, op)
	}
	segs := SplitPath(path)
	if len(segs) == 0 {
		return nil, fmt.Errorf("%w: empty path", ErrNotContainer)
	}
	if op == mapping.UpdateMove {
		return move(item, path, segs, value)
	}
	return apply(item, segs, op, value)
}

func move(item any, path string, segs []string, value any) (any, error) {
	dest, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("%w: move destination must be a path, got %T", ErrTypeMismatch, value)
	}
	parent, ok := Lookup(item, strings.Join(segs[:len(segs)-1], "."))
	if ok && IsSequence(parent) && isIndexSegment(segs[len(segs)-1]) {
		return nil, fmt.Errorf("%w: %s on list element", ErrUnsupportedOp, mapping.UpdateMove)
	}
	src, ok := Lookup(item, path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, path)
	}
	out, err := Update(item, dest, mapping.UpdatePut, src)
	if err != nil {
		return nil, err
	}
	if NormalizePath(dest) == NormalizePath(path) {
		return out, nil
	}
	return Update(out, path, mapping.UpdateDelete, nil)
}

func apply(cur any, segs []string, op string, value any) (any, error) {
	seg, last := segs[0], len(segs) == 1

	if IsSequence(cur) && isIndexSegment(seg) {
		if last {
			return sequenceTerminal(cur, seg, op, value)
		}
		if seg == Last {
			return nil, fmt.Errorf("%w: - can be used only as a suffix in field path", ErrInvalidPath)
		}
		rv := sliceValue(cur)
		idx, ok := readIndex(seg, rv.Len())
		if !ok {
			return nil, fmt.Errorf("%w: %s of %d", ErrIndexOutOfRange, seg, rv.Len())
		}
		el := rv.Index(idx)
		if el.Kind() == reflect.Struct && el.CanAddr() {
			// Records inside a list are updated through their address.
			if _, err := apply(el.Addr().Interface(), segs[1:], op, value); err != nil {
				return nil, err
			}
			return rv.Interface(), nil
		}
		if ev := reflect.ValueOf(el.Interface()); ev.Kind() == reflect.Struct {
			cp, err := applyToCopy(ev, segs[1:], op, value)
			if err != nil {
				return nil, err
			}
			el.Set(cp)
			return rv.Interface(), nil
		}
		child, err := apply(allocNil(el.Interface()), segs[1:], op, value)
		if err != nil {
			return nil, err
		}
		v, err := convertTo(child, rv.Type().Elem())
		if err != nil {
			return nil, err
		}
		rv.Index(idx).Set(v)
		return rv.Interface(), nil
	}

	c, ok := ContainerOf(cur)
	if !ok {
		return nil, fmt.Errorf("%w: cannot address %q in %T", ErrNotContainer, seg, cur)
	}
	if last {
		return cur, namedTerminal(c, seg, op, value)
	}

	var child any
	var exists bool
	if r, ok := c.(refGetter); ok {
		child, exists = r.ref(seg)
	} else {
		child, exists = c.Get(seg)
	}
	if !exists || child == nil {
		child = map[string]any{}
	}

	if rv := reflect.ValueOf(child); rv.Kind() == reflect.Struct {
		cp, err := applyToCopy(rv, segs[1:], op, value)
		if err != nil {
			return nil, err
		}
		return cur, c.Set(seg, cp.Interface())
	}

	child, err := apply(allocNil(child), segs[1:], op, value)
	if err != nil {
		return nil, err
	}
	return cur, c.Set(seg, child)
}

// applyToCopy updates a record held by value through an addressable copy,
// which the caller stores back.
func applyToCopy(rv reflect.Value, segs []string, op string, value any) (reflect.Value, error) {
	cp := reflect.New(rv.Type()).Elem()
	cp.Set(rv)
	if _, err := apply(cp.Addr().Interface(), segs, op, value); err != nil {
		return reflect.Value{}, err
	}
	return cp, nil
}

// allocNil replaces a nil map or nil record pointer with an empty value of
// the same type, so writes below it have somewhere to land.
func allocNil(v any) any {
	rv := reflect.ValueOf(v)
	switch {
	case rv.Kind() == reflect.Map && rv.IsNil():
		return reflect.MakeMap(rv.Type()).Interface()
	case rv.Kind() == reflect.Pointer && rv.IsNil() && rv.Type().Elem().Kind() == reflect.Struct:
		return reflect.New(rv.Type().Elem()).Interface()
	}
	return v
}

func sequenceTerminal(cur any, seg, op string, value any) (any, error) {
	rv := sliceValue(cur)
	n := rv.Len()
	elem := rv.Type().Elem()

	idx := n
	if seg != Last {
		idx, _ = parseIndex(seg)
	}

	switch op {
	case mapping.UpdatePut:
		if seg == Last {
			idx = n - 1
		}
		if idx < 0 || idx >= n {
			return nil, fmt.Errorf("%w: %s of %d", ErrIndexOutOfRange, seg, n)
		}
		v, err := convertTo(value, elem)
		if err != nil {
			return nil, err
		}
		rv.Index(idx).Set(v)
		return rv.Interface(), nil

	case mapping.UpdateInsert:
		if idx > n {
			return nil, fmt.Errorf("%w: %s of %d", ErrIndexOutOfRange, seg, n)
		}
		v, err := convertTo(value, elem)
		if err != nil {
			return nil, err
		}
		out := reflect.MakeSlice(rv.Type(), 0, n+1)
		out = reflect.AppendSlice(out, rv.Slice(0, idx))
		out = reflect.Append(out, v)
		out = reflect.AppendSlice(out, rv.Slice(idx, n))
		return out.Interface(), nil

	case mapping.UpdateDelete:
		if seg == Last {
			idx = n - 1
		}
		if idx < 0 || idx >= n {
			return nil, fmt.Errorf("%w: %s of %d", ErrIndexOutOfRange, seg, n)
		}
		out := reflect.MakeSlice(rv.Type(), 0, n-1)
		out = reflect.AppendSlice(out, rv.Slice(0, idx))
		out = reflect.AppendSlice(out, rv.Slice(idx+1, n))
		return out.Interface(), nil

	case mapping.UpdateIncrement:
		if seg == Last {
			return nil, fmt.Errorf("%w: %s at %q", ErrUnsupportedOp, op, Last)
		}
		if idx >= n {
			return nil, fmt.Errorf("%w: %s of %d", ErrIndexOutOfRange, seg, n)
		}
		sum, err := increment(rv.Index(idx).Interface(), value)
		if err != nil {
			return nil, err
		}
		v, err := convertTo(sum, elem)
		if err != nil {
			return nil, err
		}
		rv.Index(idx).Set(v)
		return rv.Interface(), nil
	}
	return nil, fmt.Errorf("%w: %s on list element", ErrUnsupportedOp, op)
}

// sliceValue returns cur as a reflect slice. Arrays have a fixed length and
// are copied into a slice.
func sliceValue(cur any) reflect.Value {
	rv := reflect.ValueOf(cur)
	if rv.Kind() == reflect.Array {
		s := reflect.MakeSlice(reflect.SliceOf(rv.Type().Elem()), rv.Len(), rv.Len())
		reflect.Copy(s, rv)
		return s
	}
	return rv
}

func namedTerminal(c Container, key, op string, value any) error {
	switch op {
	case mapping.UpdatePut, mapping.UpdateInsert:
		return c.Set(key, value)

	case mapping.UpdateDelete:
		return c.Delete(key)

	case mapping.UpdateIncrement:
		existing, _ := c.Get(key)
		sum, err := increment(existing, value)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		return c.Set(key, sum)

	case mapping.UpdateArrayUnion:
		existing, err := existingList(c, key)
		if err != nil {
			return err
		}
		for _, v := range asList(value) {
			if !contains(existing, v) {
				existing = append(existing, v)
			}
		}
		return c.Set(key, existing)

	case mapping.UpdateArrayRemove:
		existing, err := existingList(c, key)
		if err != nil {
			return err
		}
		remove := asList(value)
		kept := make([]any, 0, len(existing))
		for _, v := range existing {
			if !contains(remove, v) {
				kept = append(kept, v)
			}
		}
		return c.Set(key, kept)

	case mapping.UpdateAppend, mapping.UpdatePrepend:
		existing, _ := c.Get(key)
		var s string
		switch e := existing.(type) {
		case nil:
		case string:
			s = e
		default:
			return fmt.Errorf("%w: %s on %T", ErrTypeMismatch, op, existing)
		}
		add, ok := value.(string)
		if !ok {
			return fmt.Errorf("%w: %s expects a string, got %T", ErrTypeMismatch, op, value)
		}
		if op == mapping.UpdateAppend {
			return c.Set(key, s+add)
		}
		return c.Set(key, add+s)
	}
	return fmt.Errorf("%w: %s", ErrUnsupportedOp, op)
}

// increment adds delta to existing, treating a missing value as zero.
func increment(existing, delta any) (any, error) {
	if !IsNumber(delta) {
		return nil, fmt.Errorf("%w: delta %v", ErrNotNumeric, delta)
	}
	if existing == nil {
		existing = int64(0)
	}
	sum, ok := Add(existing, delta)
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrNotNumeric, existing)
	}
	return sum, nil
}

func existingList(c Container, key string) ([]any, error) {
	existing, _ := c.Get(key)
	if existing == nil {
		return []any{}, nil
	}
	items, ok := Items(existing)
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrNotSequence)
	}
	return append([]any(nil), items...), nil
}

func asList(v any) []any {
	if items, ok := Items(v); ok {
		return items
	}
	return []any{v}
}

func contains(list []any, v any) bool {
	for _, x := range list {
		if Equal(x, v) {
			return true
		}
	}
	return false
}
