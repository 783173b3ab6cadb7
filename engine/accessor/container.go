package accessor

import (
	"fmt"
	"reflect"
	"strings"
)

// Container is a value addressed by named path segments. Maps and
// structured records both satisfy it; traversal depends only on this
// interface.
type Container interface {
	// Get returns the child stored under key.
	Get(key string) (any, bool)
	// Set stores value under key, creating the key when the container allows.
	Set(key string, value any) error
	// Delete removes key. Records cannot drop fields and reset them instead.
	Delete(key string) error
}

// refGetter is implemented by containers whose children can be handed out
// by reference, so nested writes land in place.
type refGetter interface {
	ref(key string) (any, bool)
}

// ContainerOf wraps v when it is a map with string keys or a pointer to a
// struct. Struct values held by value are readable but not writable.
func ContainerOf(v any) (Container, bool) {
	switch m := v.(type) {
	case map[string]any:
		return plainMap(m), true
	case Container:
		return m, true
	case nil:
		return nil, false
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String || rv.IsNil() {
			return nil, false
		}
		return reflectMap{rv: rv}, true
	case reflect.Struct:
		return record{rv: rv}, true
	}
	return nil, false
}

// ============================================================================
// MAP-BACKED
// ============================================================================

type plainMap map[string]any

func (m plainMap) Get(key string) (any, bool) {
	v, ok := m[key]
	return v, ok
}

func (m plainMap) Set(key string, value any) error {
	m[key] = value
	return nil
}

func (m plainMap) Delete(key string) error {
	delete(m, key)
	return nil
}

type reflectMap struct {
	rv reflect.Value
}

func (m reflectMap) key(key string) reflect.Value {
	return reflect.ValueOf(key).Convert(m.rv.Type().Key())
}

func (m reflectMap) Get(key string) (any, bool) {
	v := m.rv.MapIndex(m.key(key))
	if !v.IsValid() {
		return nil, false
	}
	return v.Interface(), true
}

func (m reflectMap) Set(key string, value any) error {
	v, err := convertTo(value, m.rv.Type().Elem())
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	m.rv.SetMapIndex(m.key(key), v)
	return nil
}

func (m reflectMap) Delete(key string) error {
	m.rv.SetMapIndex(m.key(key), reflect.Value{})
	return nil
}

// ============================================================================
// RECORD-BACKED
// ============================================================================

type record struct {
	rv reflect.Value
}

// field finds the exported field named key, by json tag first, then by
// Go name, then case-insensitively.
func (r record) field(key string) (reflect.Value, bool) {
	t := r.rv.Type()
	fold := -1
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		if tag, ok := sf.Tag.Lookup("json"); ok {
			name, _, _ := strings.Cut(tag, ",")
			if name == "-" {
				continue
			}
			if name == key {
				return r.rv.Field(i), true
			}
			if name != "" {
				continue
			}
		}
		if sf.Name == key {
			return r.rv.Field(i), true
		}
		if fold < 0 && strings.EqualFold(sf.Name, key) {
			fold = i
		}
	}
	if fold >= 0 {
		return r.rv.Field(fold), true
	}
	return reflect.Value{}, false
}

func (r record) Get(key string) (any, bool) {
	f, ok := r.field(key)
	if !ok {
		return nil, false
	}
	return f.Interface(), true
}

func (r record) ref(key string) (any, bool) {
	f, ok := r.field(key)
	if !ok {
		return nil, false
	}
	if f.Kind() == reflect.Struct && f.CanAddr() {
		return f.Addr().Interface(), true
	}
	return f.Interface(), true
}

func (r record) Set(key string, value any) error {
	f, ok := r.field(key)
	if !ok {
		return fmt.Errorf("%w: record %s has no field %q", ErrNotContainer, r.rv.Type(), key)
	}
	if !f.CanSet() {
		return fmt.Errorf("%w: record %s is not addressable", ErrNotContainer, r.rv.Type())
	}
	// A pointer to a nested record written back into its own field.
	if pv := reflect.ValueOf(value); f.Kind() == reflect.Struct && pv.Kind() == reflect.Pointer && pv.Type().Elem() == f.Type() {
		if !pv.IsNil() {
			f.Set(pv.Elem())
		}
		return nil
	}
	v, err := convertTo(value, f.Type())
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	f.Set(v)
	return nil
}

func (r record) Delete(key string) error {
	f, ok := r.field(key)
	if !ok {
		return nil
	}
	if !f.CanSet() {
		return fmt.Errorf("%w: record %s is not addressable", ErrNotContainer, r.rv.Type())
	}
	f.Set(reflect.Zero(f.Type()))
	return nil
}

// convertTo adapts value to t: nil becomes the zero value, numbers convert
// between kinds when they fit.
func convertTo(value any, t reflect.Type) (reflect.Value, error) {
	if value == nil {
		return reflect.Zero(t), nil
	}
	v := reflect.ValueOf(value)
	if v.Type().AssignableTo(t) {
		return v, nil
	}
	if isNumberKind(v.Kind()) && isNumberKind(t.Kind()) {
		out := v.Convert(t)
		if !out.Convert(v.Type()).Equal(v) {
			return reflect.Value{}, fmt.Errorf("%w: %v does not fit %s", ErrTypeMismatch, value, t)
		}
		return out, nil
	}
	if v.Kind() == reflect.String && t.Kind() == reflect.String {
		return v.Convert(t), nil
	}
	if v.Kind() == reflect.Slice && t.Kind() == reflect.Slice {
		out := reflect.MakeSlice(t, v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			item, err := convertTo(v.Index(i).Interface(), t.Elem())
			if err != nil {
				return reflect.Value{}, err
			}
			out.Index(i).Set(item)
		}
		return out, nil
	}
	return reflect.Value{}, fmt.Errorf("%w: cannot store %T as %s", ErrTypeMismatch, value, t)
}

func isNumberKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
