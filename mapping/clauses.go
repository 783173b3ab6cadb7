package mapping

// ============================================================================
// ENTRY KINDS
// ============================================================================

// Entry kinds accepted by the parser. Each one selects the AST root produced.
const (
	KindStatement  = "statement"
	KindWhere      = "where"
	KindSelect     = "select"
	KindCollection = "collection"
	KindOrderBy    = "order_by"
	KindRankBy     = "rank_by"
	KindSearch     = "search"
	KindUpdate     = "update"
)

// EntryKinds lists every parse target in a stable order.
var EntryKinds = []string{
	KindStatement,
	KindWhere,
	KindSelect,
	KindCollection,
	KindOrderBy,
	KindRankBy,
	KindSearch,
	KindUpdate,
}

// IsEntryKind checks if kind names a parse target
func IsEntryKind(kind string) bool {
	for _, k := range EntryKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// ============================================================================
// STATEMENT CLAUSES
// ============================================================================

// ClauseDefinition defines how a statement clause is read
type ClauseDefinition struct {
	Keyword string // Leading keyword(s) as written, upper case ("ORDER BY")
	Key     string // Argument key in the resulting Operation
	Kind    string // Entry kind used to parse the clause body
}

// QueryClauses defines the clauses with a dedicated grammar. Any other
// `<name> <operand>` pair in a statement is a generic clause.
var QueryClauses = map[string]ClauseDefinition{
	"SELECT": {
		Keyword: "SELECT",
		Key:     "select",
		Kind:    KindSelect,
	},
	"COLLECTION": {
		Keyword: "COLLECTION",
		Key:     "collection",
		Kind:    KindCollection,
	},
	"SET": {
		Keyword: "SET",
		Key:     "set",
		Kind:    KindUpdate,
	},
	"SEARCH": {
		Keyword: "SEARCH",
		Key:     "search",
		Kind:    KindSearch,
	},
	"WHERE": {
		Keyword: "WHERE",
		Key:     "where",
		Kind:    KindWhere,
	},
	"ORDER BY": {
		Keyword: "ORDER BY",
		Key:     "order_by",
		Kind:    KindOrderBy,
	},
	"RANK BY": {
		Keyword: "RANK BY",
		Key:     "rank_by",
		Kind:    KindRankBy,
	},
}

// ParsableArgs maps statement argument keys whose string values are QL text
// onto the entry kind used to parse them.
var ParsableArgs = map[string]string{
	"statement":  KindStatement,
	"select":     KindSelect,
	"collection": KindCollection,
	"set":        KindUpdate,
	"search":     KindSearch,
	"where":      KindWhere,
	"order_by":   KindOrderBy,
}

// ============================================================================
// HELPER FUNCTIONS
// ============================================================================

// ClausesByKey - reverse mapping built from QueryClauses
var ClausesByKey map[string]ClauseDefinition

func init() {
	ClausesByKey = make(map[string]ClauseDefinition, len(QueryClauses))
	for _, def := range QueryClauses {
		ClausesByKey[def.Key] = def
	}
}

// IsClause checks if keyword (upper case) starts a dedicated clause
func IsClause(keyword string) bool {
	_, ok := QueryClauses[keyword]
	return ok
}
