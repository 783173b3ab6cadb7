package mapping

// Value type names accepted by is_type().
const (
	TypeString  = "string"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
	TypeArray   = "array"
	TypeObject  = "object"
	TypeNull    = "null"
)

// ValueTypes lists every is_type() name in a stable order.
var ValueTypes = []string{TypeString, TypeNumber, TypeBoolean, TypeArray, TypeObject, TypeNull}

// TypeMap - backend spelling of each value type
// Usage: TypeMap["PostgreSQL"]["boolean"] returns "boolean" (JSONB_TYPEOF result)
var TypeMap = map[string]map[string][]string{
	"PostgreSQL": {
		TypeString:  {"string"},
		TypeNumber:  {"number"},
		TypeBoolean: {"boolean"},
		TypeArray:   {"array"},
		TypeObject:  {"object"},
		TypeNull:    {"null"},
	},
	"MySQL": {
		TypeString:  {"STRING"},
		TypeNumber:  {"INTEGER", "DOUBLE", "DECIMAL", "UNSIGNED INTEGER"},
		TypeBoolean: {"BOOLEAN"},
		TypeArray:   {"ARRAY"},
		TypeObject:  {"OBJECT"},
		TypeNull:    {"NULL"},
	},
	"SQLite": {
		TypeString:  {"text"},
		TypeNumber:  {"integer", "real"},
		TypeBoolean: {"true", "false"},
		TypeArray:   {"array"},
		TypeObject:  {"object"},
		TypeNull:    {"null"},
	},
	"MongoDB": {
		TypeString:  {"string"},
		TypeNumber:  {"double", "int", "long", "decimal"},
		TypeBoolean: {"bool"},
		TypeArray:   {"array"},
		TypeObject:  {"object"},
		TypeNull:    {"null"},
	},
}

// IsValueType checks if name is an is_type() type name
func IsValueType(name string) bool {
	for _, t := range ValueTypes {
		if t == name {
			return true
		}
	}
	return false
}

// NativeTypes returns the backend type names matching a value type.
func NativeTypes(dbType, valueType string) ([]string, bool) {
	types, ok := TypeMap[dbType]
	if !ok {
		return nil, false
	}
	names, ok := types[valueType]
	return names, ok
}
