package mapping

// NamespaceBuiltin is the namespace of functions written without a prefix.
const NamespaceBuiltin = "builtin"

// Builtin function names.
const (
	FuncExists              = "exists"
	FuncNotExists           = "not_exists"
	FuncIsDefined           = "is_defined"
	FuncIsNotDefined        = "is_not_defined"
	FuncIsType              = "is_type"
	FuncLength              = "length"
	FuncContains            = "contains"
	FuncStartsWith          = "starts_with"
	FuncEndsWith            = "ends_with"
	FuncArrayLength         = "array_length"
	FuncArrayContains       = "array_contains"
	FuncArrayContainsAny    = "array_contains_any"
	FuncStartsWithDelimited = "starts_with_delimited"
	FuncRandom              = "random"
	FuncNow                 = "now"

	FuncVectorSearch       = "vector_search"
	FuncSparseVectorSearch = "sparse_vector_search"
	FuncHybridVectorSearch = "hybrid_vector_search"
	FuncTextSearch         = "text_search"
	FuncHybridTextSearch   = "hybrid_text_search"
	FuncGeoSearchDistance  = "geo_search_distance"
	FuncGeoSearchPolygon   = "geo_search_polygon"
	FuncGeoSearchBBox      = "geo_search_bbox"
)

// BuiltinFunctions maps every builtin name to its category:
// GENERIC functions are evaluated in memory, SEARCH functions are opaque
// calls left to a backend.
var BuiltinFunctions = map[string]string{
	FuncExists:              "GENERIC",
	FuncNotExists:           "GENERIC",
	FuncIsDefined:           "GENERIC",
	FuncIsNotDefined:        "GENERIC",
	FuncIsType:              "GENERIC",
	FuncLength:              "GENERIC",
	FuncContains:            "GENERIC",
	FuncStartsWith:          "GENERIC",
	FuncEndsWith:            "GENERIC",
	FuncArrayLength:         "GENERIC",
	FuncArrayContains:       "GENERIC",
	FuncArrayContainsAny:    "GENERIC",
	FuncStartsWithDelimited: "GENERIC",
	FuncRandom:              "GENERIC",
	FuncNow:                 "GENERIC",

	FuncVectorSearch:       "SEARCH",
	FuncSparseVectorSearch: "SEARCH",
	FuncHybridVectorSearch: "SEARCH",
	FuncTextSearch:         "SEARCH",
	FuncHybridTextSearch:   "SEARCH",
	FuncGeoSearchDistance:  "SEARCH",
	FuncGeoSearchPolygon:   "SEARCH",
	FuncGeoSearchBBox:      "SEARCH",
}

// IsBuiltinFunction checks if name is a builtin function name
func IsBuiltinFunction(name string) bool {
	_, ok := BuiltinFunctions[name]
	return ok
}

// IsSearchFunction reports whether name is an opaque search call.
func IsSearchFunction(name string) bool {
	return BuiltinFunctions[name] == "SEARCH"
}
