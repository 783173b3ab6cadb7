package accessor

import (
	"bytes"
	"encoding/json"
	"strings"
)

// DecodeJSON decodes data keeping integers as int64 and everything else
// numeric as float64, the way the parser reads literals.
func DecodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return NormalizeJSON(v), nil
}

// NormalizeJSON replaces json.Number values in place.
func NormalizeJSON(v any) any {
	switch val := v.(type) {
	case json.Number:
		s := val.String()
		if !strings.ContainsAny(s, ".eE") {
			if i, err := val.Int64(); err == nil {
				return i
			}
		}
		f, _ := val.Float64()
		return f
	case []any:
		for i, item := range val {
			val[i] = NormalizeJSON(item)
		}
		return val
	case map[string]any:
		for k, item := range val {
			val[k] = NormalizeJSON(item)
		}
		return val
	default:
		return v
	}
}
