package mongodb

import (
	"strconv"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Plain converts decoded BSON into the values the processor works with:
// int64 or float64 numbers, []any arrays and map[string]any documents.
func Plain(v any) any {
	switch x := v.(type) {
	case int32:
		return int64(x)
	case float32:
		return float64(x)
	case primitive.Decimal128:
		s := x.String()
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
		return s
	case bson.A:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = Plain(item)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(x))
		for _, e := range x {
			out[e.Key] = Plain(e.Value)
		}
		return out
	case bson.M:
		out := make(map[string]any, len(x))
		for k, item := range x {
			out[k] = Plain(item)
		}
		return out
	case primitive.Null, primitive.Undefined:
		return nil
	}
	return v
}

// Document returns a stored document without its _id.
func Document(doc bson.M) map[string]any {
	out := Plain(doc).(map[string]any)
	delete(out, KeyField)
	return out
}
