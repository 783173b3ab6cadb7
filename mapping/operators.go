package mapping

import "strings"

// Comparison operators as written in QL and stored in the AST.
const (
	OpLT      = "<"
	OpLTE     = "<="
	OpGT      = ">"
	OpGTE     = ">="
	OpEQ      = "="
	OpNE      = "!="
	OpIn      = "in"
	OpNotIn   = "not in"
	OpBetween = "between"
	OpLike    = "like"
)

// ComparisonOperators lists every comparison operator in a stable order.
var ComparisonOperators = []string{OpLT, OpLTE, OpGT, OpGTE, OpEQ, OpNE, OpIn, OpNotIn, OpBetween, OpLike}

// OperatorCategories groups operators by the shape of their right operand
var OperatorCategories = map[string]string{
	OpLT:      "ORDERING",
	OpLTE:     "ORDERING",
	OpGT:      "ORDERING",
	OpGTE:     "ORDERING",
	OpEQ:      "EQUALITY",
	OpNE:      "EQUALITY",
	OpIn:      "MEMBERSHIP",
	OpNotIn:   "MEMBERSHIP",
	OpBetween: "RANGE",
	OpLike:    "PATTERN",
}

// ReversedOperators swaps operand order: `a < b` is `b > a`.
var ReversedOperators = map[string]string{
	OpLT:  OpGT,
	OpGT:  OpLT,
	OpLTE: OpGTE,
	OpGTE: OpLTE,
}

// OperatorMap - Runtime mapping for translators
// Usage: OperatorMap["MongoDB"]["="] returns "$eq"
var OperatorMap = map[string]map[string]string{
	"PostgreSQL": {
		OpLT:    "<",
		OpLTE:   "<=",
		OpGT:    ">",
		OpGTE:   ">=",
		OpEQ:    "=",
		OpNE:    "!=",
		OpIn:    "IN",
		OpNotIn: "NOT IN",
		// `~` is a POSIX regex match; the pattern gets a leading anchor.
		OpLike:    "~",
		OpBetween: "BETWEEN",
		"AND":     "AND",
		"OR":      "OR",
		"NOT":     "NOT",
	},
	"MySQL": {
		OpLT:      "<",
		OpLTE:     "<=",
		OpGT:      ">",
		OpGTE:     ">=",
		OpEQ:      "=",
		OpNE:      "!=",
		OpIn:      "IN",
		OpNotIn:   "NOT IN",
		OpLike:    "REGEXP",
		OpBetween: "BETWEEN",
		"AND":     "AND",
		"OR":      "OR",
		"NOT":     "NOT",
	},
	"SQLite": {
		OpLT:      "<",
		OpLTE:     "<=",
		OpGT:      ">",
		OpGTE:     ">=",
		OpEQ:      "=",
		OpNE:      "!=",
		OpIn:      "IN",
		OpNotIn:   "NOT IN",
		OpLike:    "REGEXP",
		OpBetween: "BETWEEN",
		"AND":     "AND",
		"OR":      "OR",
		"NOT":     "NOT",
	},
	"MongoDB": {
		OpLT:    "$lt",
		OpLTE:   "$lte",
		OpGT:    "$gt",
		OpGTE:   "$gte",
		OpEQ:    "$eq",
		OpNE:    "$ne",
		OpIn:    "$in",
		OpNotIn: "$nin",
		OpLike:  "$regex",
		"AND":   "$and",
		"OR":    "$or",
		"NOT":   "$nor",
	},
}

// ============================================================================
// HELPER FUNCTIONS
// ============================================================================

// IsComparisonOperator checks if op (any case) is a QL comparison operator
func IsComparisonOperator(op string) bool {
	_, ok := OperatorCategories[strings.ToLower(op)]
	return ok
}

// GetOperatorCategory returns the category of op, or "" when unknown
func GetOperatorCategory(op string) string {
	return OperatorCategories[strings.ToLower(op)]
}

// ReverseOperator returns the operator that keeps the meaning when the
// operands are swapped. Symmetric operators are returned unchanged.
func ReverseOperator(op string) string {
	if rev, ok := ReversedOperators[op]; ok {
		return rev
	}
	return op
}

// NativeOperator looks up the backend spelling of op.
func NativeOperator(dbType, op string) (string, bool) {
	ops, ok := OperatorMap[dbType]
	if !ok {
		return "", false
	}
	native, ok := ops[op]
	return native, ok
}
