package mapping

// ============================================================================
// STATEMENT VERBS
// ============================================================================

// Verbs executed by the Client and lowered by translators. Verbs are
// caller-defined strings; only these have a built-in meaning.
const (
	VerbQuery    = "query"
	VerbGet      = "get"
	VerbCount    = "count"
	VerbPut      = "put"
	VerbUpdate   = "update"
	VerbDelete   = "delete"
	VerbBatch    = "batch"
	VerbTransact = "transact"
)

// OperationGroups maps each known verb to its group
var OperationGroups = map[string]string{
	VerbQuery:    "READ",
	VerbGet:      "READ",
	VerbCount:    "READ",
	VerbPut:      "WRITE",
	VerbUpdate:   "WRITE",
	VerbDelete:   "WRITE",
	VerbBatch:    "MULTI",
	VerbTransact: "MULTI",
}

// MultiStatementArgs names the argument holding the nested statements of a
// multi-statement verb.
var MultiStatementArgs = map[string]string{
	VerbBatch:    "batch",
	VerbTransact: "transaction",
}

// IsMultiStatement checks if verb opens a BATCH/TRANSACT block
func IsMultiStatement(verb string) bool {
	_, ok := MultiStatementArgs[verb]
	return ok
}

// ============================================================================
// UPDATE OPERATIONS
// ============================================================================

// Update operations accepted in a SET clause.
const (
	UpdatePut         = "put"
	UpdateInsert      = "insert"
	UpdateDelete      = "delete"
	UpdateIncrement   = "increment"
	UpdateMove        = "move"
	UpdateArrayUnion  = "array_union"
	UpdateArrayRemove = "array_remove"
	UpdateAppend      = "append"
	UpdatePrepend     = "prepend"
)

// UpdateOperations lists every update operation in a stable order.
var UpdateOperations = []string{
	UpdatePut,
	UpdateInsert,
	UpdateDelete,
	UpdateIncrement,
	UpdateMove,
	UpdateArrayUnion,
	UpdateArrayRemove,
	UpdateAppend,
	UpdatePrepend,
}

// UpdateArity is the number of positional arguments each operation takes.
var UpdateArity = map[string]int{
	UpdatePut:         1,
	UpdateInsert:      1,
	UpdateDelete:      0,
	UpdateIncrement:   1,
	UpdateMove:        1,
	UpdateArrayUnion:  1,
	UpdateArrayRemove: 1,
	UpdateAppend:      1,
	UpdatePrepend:     1,
}

// ArrayUpdateOperations are valid on a numeric or `-` path segment.
var ArrayUpdateOperations = map[string]bool{
	UpdatePut:       true,
	UpdateInsert:    true,
	UpdateDelete:    true,
	UpdateIncrement: true,
}

// IsUpdateOperation checks if op is a known update operation
func IsUpdateOperation(op string) bool {
	_, ok := UpdateArity[op]
	return ok
}
