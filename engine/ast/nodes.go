package ast

import "github.com/omniql-engine/x8ql/mapping"

// Node is the interface all AST nodes implement. The set of nodes is closed:
// the marker method is unexported so only this package can add kinds.
type Node interface {
	node()
	String() string
}

// Expr is a node allowed in value and condition positions
type Expr interface {
	Node
	expr()
}

// ============================================================================
// VALUE NODES
// ============================================================================

// Literal holds a constant: nil, bool, int64, float64, string, []byte,
// []any or map[string]any. Callers may also wrap any other Go value.
type Literal struct {
	Value any
}

// List is a parenthesized sequence of expressions, as in `x in (a, b)`.
type List struct {
	Items []Expr
}

// Field is a path into the current item: `a.b[0]`, `tags[-]`.
type Field struct {
	Path string
}

// Parameter is a named placeholder `@name` resolved by the binder.
type Parameter struct {
	Name string
}

// Ref is an opaque indirection `{{path}}`. It is never resolved here.
type Ref struct {
	Path string
}

// GeoPoint is a coordinate value passed to geo search functions.
type GeoPoint struct {
	Lat float64
	Lon float64
}

// NamedArg is one `name=value` function argument.
type NamedArg struct {
	Name  string
	Value Expr
}

// Function is a call `ns.name(args)`. Args and NamedArgs are mutually
// exclusive.
type Function struct {
	Namespace string
	Name      string
	Args      []Expr
	NamedArgs []NamedArg
}

// ============================================================================
// CONDITION NODES
// ============================================================================

// Comparison is `Left Op Right`. For `between` Right is a two item List,
// for `in` and `not in` it is a List (or any expression evaluating to a sequence).
type Comparison struct {
	Left  Expr
	Op    string
	Right Expr
}

// And is a conjunction
type And struct {
	Left  Expr
	Right Expr
}

// Or is a disjunction
type Or struct {
	Left  Expr
	Right Expr
}

// Not is a negation
type Not struct {
	Expr Expr
}

// ============================================================================
// CLAUSE NODES
// ============================================================================

// SelectTerm projects Field under Alias. An empty Alias means the field path.
type SelectTerm struct {
	Field string
	Alias string
}

// Select is a projection. No terms means the identity projection.
type Select struct {
	Terms []SelectTerm
}

// Collection names the target collection of a statement.
type Collection struct {
	Name string
}

// Sort directions.
const (
	Asc  = "asc"
	Desc = "desc"
)

// OrderByTerm sorts by Field. An empty Direction means ascending.
type OrderByTerm struct {
	Field     string
	Direction string
}

// OrderBy is an ordered list of sort keys.
type OrderBy struct {
	Terms []OrderByTerm
}

// UpdateOperation applies Op to Field with Args, as in `count=increment(1)`.
type UpdateOperation struct {
	Field string
	Op    string
	Args  []Expr
}

// Update is an ordered list of update operations.
type Update struct {
	Operations []UpdateOperation
}

// ============================================================================
// STATEMENT NODES
// ============================================================================

// Operation is a parsed statement: a verb plus its clauses keyed by name.
type Operation struct {
	Name string
	Args map[string]Node
}

// Statements is the body of a BATCH or TRANSACT block.
type Statements struct {
	Operations []*Operation
}

func (*Literal) node()    {}
func (*List) node()       {}
func (*Field) node()      {}
func (*Parameter) node()  {}
func (*Ref) node()        {}
func (*GeoPoint) node()   {}
func (*Function) node()   {}
func (*Comparison) node() {}
func (*And) node()        {}
func (*Or) node()         {}
func (*Not) node()        {}
func (*Select) node()     {}
func (*Collection) node() {}
func (*OrderBy) node()    {}
func (*Update) node()     {}
func (*Operation) node()  {}
func (*Statements) node() {}

func (*Literal) expr()    {}
func (*List) expr()       {}
func (*Field) expr()      {}
func (*Parameter) expr()  {}
func (*Ref) expr()        {}
func (*GeoPoint) expr()   {}
func (*Function) expr()   {}
func (*Comparison) expr() {}
func (*And) expr()        {}
func (*Or) expr()         {}
func (*Not) expr()        {}

// ============================================================================
// HELPERS
// ============================================================================

// IsBuiltin reports whether the function lives in the builtin namespace.
func (f *Function) IsBuiltin() bool {
	return f.Namespace == "" || f.Namespace == mapping.NamespaceBuiltin
}

// Reversed returns the comparison with its operands swapped, or nil when
// the operator has no mirrored form.
func (c *Comparison) Reversed() *Comparison {
	switch c.Op {
	case mapping.OpLT, mapping.OpLTE, mapping.OpGT, mapping.OpGTE, mapping.OpEQ, mapping.OpNE:
		return &Comparison{Left: c.Right, Op: mapping.ReverseOperator(c.Op), Right: c.Left}
	}
	return nil
}

// OrderDirection returns the normalized direction of the term.
func (t OrderByTerm) OrderDirection() string {
	if t.Direction == Desc {
		return Desc
	}
	return Asc
}

// Name returns the key the projected value is stored under.
func (t SelectTerm) Name() string {
	if t.Alias != "" {
		return t.Alias
	}
	return t.Field
}

// IsEmpty reports whether the select is the identity projection.
func (s *Select) IsEmpty() bool {
	return s == nil || len(s.Terms) == 0
}

// Arg returns the clause stored under key.
func (o *Operation) Arg(key string) (Node, bool) {
	if o == nil || o.Args == nil {
		return nil, false
	}
	n, ok := o.Args[key]
	return n, ok
}

// WithArg returns a shallow copy of the operation with key set to value.
func (o *Operation) WithArg(key string, value Node) *Operation {
	args := make(map[string]Node, len(o.Args)+1)
	for k, v := range o.Args {
		args[k] = v
	}
	args[key] = value
	return &Operation{Name: o.Name, Args: args}
}

// Nested returns the statements of a BATCH or TRANSACT operation.
func (o *Operation) Nested() (*Statements, bool) {
	key, ok := mapping.MultiStatementArgs[o.Name]
	if !ok {
		return nil, false
	}
	n, ok := o.Arg(key)
	if !ok {
		return nil, false
	}
	stmts, ok := n.(*Statements)
	return stmts, ok
}

// ValueOf wraps a Go value as an expression. Expressions are returned as is.
func ValueOf(v any) Expr {
	if e, ok := v.(Expr); ok {
		return e
	}
	return &Literal{Value: v}
}

// NewUpdate starts an empty update for the fluent builder methods.
func NewUpdate() *Update {
	return &Update{}
}

func (u *Update) add(field, op string, args ...Expr) *Update {
	u.Operations = append(u.Operations, UpdateOperation{Field: field, Op: op, Args: args})
	return u
}

// Put sets field to value
func (u *Update) Put(field string, value any) *Update {
	return u.add(field, mapping.UpdatePut, ValueOf(value))
}

// Insert sets field, or inserts into a sequence at a numeric or `-` segment
func (u *Update) Insert(field string, value any) *Update {
	return u.add(field, mapping.UpdateInsert, ValueOf(value))
}

// Delete removes field
func (u *Update) Delete(field string) *Update {
	return u.add(field, mapping.UpdateDelete)
}

// Increment adds delta to field
func (u *Update) Increment(field string, delta any) *Update {
	return u.add(field, mapping.UpdateIncrement, ValueOf(delta))
}

// Move sets field to the value at source and removes source
func (u *Update) Move(field, source string) *Update {
	return u.add(field, mapping.UpdateMove, &Field{Path: source})
}

// ArrayUnion appends the absent items of values to field
func (u *Update) ArrayUnion(field string, values any) *Update {
	return u.add(field, mapping.UpdateArrayUnion, ValueOf(values))
}

// ArrayRemove drops every item of values from field
func (u *Update) ArrayRemove(field string, values any) *Update {
	return u.add(field, mapping.UpdateArrayRemove, ValueOf(values))
}

// Append concatenates value after the string at field
func (u *Update) Append(field string, value any) *Update {
	return u.add(field, mapping.UpdateAppend, ValueOf(value))
}

// Prepend concatenates value before the string at field
func (u *Update) Prepend(field string, value any) *Update {
	return u.add(field, mapping.UpdatePrepend, ValueOf(value))
}
