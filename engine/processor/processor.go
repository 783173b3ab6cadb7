// Package processor evaluates parsed queries against in-memory items.
//
// It is the reference semantics for every backend translator: filter,
// order, project, limit and update behave here exactly as a translated
// query is expected to behave in a database.
package processor

import (
	"cmp"
	"errors"
	"fmt"
	"math/rand/v2"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/ccoveille/go-safecast/v2"
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/omniql-engine/x8ql/engine/accessor"
	"github.com/omniql-engine/x8ql/engine/ast"
	"github.com/omniql-engine/x8ql/engine/parser"
	log "github.com/omniql-engine/x8ql/internal/logging"
	"github.com/omniql-engine/x8ql/mapping"
)

var (
	ErrNotSequence     = errors.New("operand is not a list")
	ErrUnsupported     = errors.New("unsupported")
	ErrInvalidArgument = errors.New("invalid argument")
)

// FieldResolver rewrites a field path before it is read or written.
type FieldResolver func(path string) string

// Option configures a Processor.
type Option func(*Processor)

// WithFieldResolver installs a path rewrite used for every field access.
func WithFieldResolver(r FieldResolver) Option {
	return func(p *Processor) { p.resolve = r }
}

// WithClock sets the time source of the now() function.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

// WithRandom sets the source of the random() function. It must return
// values in [0, 1).
func WithRandom(r func() float64) Option {
	return func(p *Processor) { p.random = r }
}

// WithParser sets the cache used by the text variants.
func WithParser(c *parser.Cache) Option {
	return func(p *Processor) { p.parser = c }
}

// Processor runs queries over items. It holds no per-query state and is
// safe for concurrent use.
type Processor struct {
	resolve FieldResolver
	now     func() time.Time
	random  func() float64
	parser  *parser.Cache

	patterns *xsync.Map[string, patternEntry]
}

type patternEntry struct {
	re  *regexp.Regexp
	err error
}

// New returns a processor with the given options applied.
func New(opts ...Option) *Processor {
	p := &Processor{
		now:      time.Now,
		random:   rand.Float64,
		parser:   parser.Default,
		patterns: xsync.NewMap[string, patternEntry](),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// QueryArgs bundles the clauses of a query. Nil fields are absent.
type QueryArgs struct {
	Select  *ast.Select
	Where   ast.Expr
	OrderBy *ast.OrderBy
	Limit   *int64
	Offset  *int64
}

func (p *Processor) path(path string) string {
	if p.resolve == nil {
		return path
	}
	return p.resolve(path)
}

func (p *Processor) get(item any, path string) any {
	return accessor.Get(item, p.path(path))
}

// Query filters, orders, projects and limits items, in that order.
func (p *Processor) Query(items []any, args QueryArgs) ([]any, error) {
	out, err := p.Filter(items, args.Where)
	if err != nil {
		return nil, err
	}
	out = p.Order(out, args.OrderBy)
	out, err = p.Project(out, args.Select)
	if err != nil {
		return nil, err
	}
	out, err = p.Limit(out, args.Limit, args.Offset)
	if err != nil {
		return nil, err
	}
	log.Debug().Int("items", len(items)).Int("results", len(out)).Msg("processed query")
	return out, nil
}

// Filter keeps the items where matches. A nil where keeps everything.
func (p *Processor) Filter(items []any, where ast.Expr) ([]any, error) {
	if where == nil {
		return items, nil
	}
	out := make([]any, 0, len(items))
	for _, item := range items {
		ok, err := p.FilterItem(item, where)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, item)
		}
	}
	return out, nil
}

// FilterItem reports whether item satisfies where.
func (p *Processor) FilterItem(item any, where ast.Expr) (bool, error) {
	v, err := p.Eval(item, where)
	if err != nil {
		return false, err
	}
	return Truthy(v), nil
}

// Count returns the number of items matching where.
func (p *Processor) Count(items []any, where ast.Expr) (int, error) {
	out, err := p.Filter(items, where)
	if err != nil {
		return 0, err
	}
	return len(out), nil
}

// Order drops the items missing any ordering field, then stable sorts the
// rest by the term values.
func (p *Processor) Order(items []any, orderBy *ast.OrderBy) []any {
	if orderBy == nil || len(orderBy.Terms) == 0 {
		return items
	}
	type keyed struct {
		item any
		keys []any
	}
	rows := make([]keyed, 0, len(items))
next:
	for _, item := range items {
		keys := make([]any, len(orderBy.Terms))
		for i, term := range orderBy.Terms {
			v := p.get(item, term.Field)
			if ast.IsUndefined(v) {
				continue next
			}
			keys[i] = v
		}
		rows = append(rows, keyed{item: item, keys: keys})
	}

	slices.SortStableFunc(rows, func(a, b keyed) int {
		for i, term := range orderBy.Terms {
			c := orderCompare(a.keys[i], b.keys[i])
			if term.OrderDirection() == ast.Desc {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return 0
	})

	out := make([]any, len(rows))
	for i, r := range rows {
		out[i] = r.item
	}
	return out
}

// orderCompare sorts values of the same type naturally and values of
// different types by a fixed type rank.
func orderCompare(a, b any) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		return cmp.Compare(ra, rb)
	}
	if c, ok := accessor.Compare(a, b); ok {
		return c
	}
	if x, ok := a.(bool); ok {
		y := b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		}
		return 1
	}
	return 0
}

func typeRank(v any) int {
	switch typeName(v) {
	case mapping.TypeNull:
		return 0
	case mapping.TypeBoolean:
		return 1
	case mapping.TypeNumber:
		return 2
	case mapping.TypeString:
		return 3
	case mapping.TypeArray:
		return 4
	case mapping.TypeObject:
		return 5
	}
	return 6
}

// Project builds a new map per item holding the selected fields under their
// names. Undefined fields are omitted. An empty select returns items as is.
func (p *Processor) Project(items []any, sel *ast.Select) ([]any, error) {
	if sel.IsEmpty() {
		return items, nil
	}
	out := make([]any, len(items))
	for i, item := range items {
		var row any = map[string]any{}
		for _, term := range sel.Terms {
			v := p.get(item, term.Field)
			if ast.IsUndefined(v) {
				continue
			}
			var err error
			row, err = accessor.Update(row, term.Name(), mapping.UpdatePut, accessor.DeepCopy(v))
			if err != nil {
				return nil, fmt.Errorf("select %s: %w", term.Name(), err)
			}
		}
		out[i] = row
	}
	return out, nil
}

// Limit returns items[offset : offset+limit]. A nil limit runs to the end and
// a nil offset starts at zero.
func (p *Processor) Limit(items []any, limit, offset *int64) ([]any, error) {
	start, end := 0, len(items)
	if offset != nil {
		off, err := safecast.Convert[int](*offset)
		if err != nil || off < 0 {
			return nil, fmt.Errorf("%w: offset %d", ErrInvalidArgument, *offset)
		}
		start = min(off, end)
	}
	if limit != nil {
		n, err := safecast.Convert[int](*limit)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: limit %d", ErrInvalidArgument, *limit)
		}
		end = min(start+n, end)
	}
	return items[start:end], nil
}

// UpdateItem returns a copy of item with every operation applied in order.
// The input is never modified.
func (p *Processor) UpdateItem(item any, update *ast.Update) (any, error) {
	out := accessor.DeepCopy(item)
	if update == nil {
		return out, nil
	}
	for _, op := range update.Operations {
		var err error
		out, err = p.applyUpdate(out, op)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op.Field, err)
		}
	}
	return out, nil
}

func (p *Processor) applyUpdate(item any, op ast.UpdateOperation) (any, error) {
	arity, ok := mapping.UpdateArity[op.Op]
	if !ok {
		return nil, fmt.Errorf("%w: %s", accessor.ErrUnsupportedOp, op.Op)
	}
	if len(op.Args) != arity {
		return nil, fmt.Errorf("%w: %s takes %d argument(s), got %d", ErrInvalidArgument, op.Op, arity, len(op.Args))
	}
	field := p.path(op.Field)

	switch op.Op {
	case mapping.UpdateDelete:
		return accessor.Update(item, field, op.Op, nil)
	case mapping.UpdateMove:
		var src string
		switch a := op.Args[0].(type) {
		case *ast.Field:
			src = a.Path
		case *ast.Literal:
			s, ok := a.Value.(string)
			if !ok {
				return nil, fmt.Errorf("%w: move source must be a path, got %s", ErrInvalidArgument, a)
			}
			src = s
		default:
			return nil, fmt.Errorf("%w: move source must be a path, got %s", ErrInvalidArgument, a)
		}
		return accessor.Update(item, p.path(src), op.Op, field)
	}

	value, err := p.Eval(item, op.Args[0])
	if err != nil {
		return nil, err
	}
	if ast.IsUndefined(value) {
		return nil, fmt.Errorf("%w: %s resolves to no value", ErrInvalidArgument, op.Args[0])
	}
	return accessor.Update(item, field, op.Op, accessor.DeepCopy(value))
}

// ExtractFields lists the distinct top level field paths referenced by
// expr, in the order they first appear. Index suffixes are dropped, so
// "tags[0]" contributes "tags".
func (p *Processor) ExtractFields(expr ast.Expr) []string {
	var out []string
	seen := map[string]bool{}
	var walk func(e ast.Expr)
	walk = func(e ast.Expr) {
		switch n := e.(type) {
		case nil:
		case *ast.Field:
			path, _, _ := strings.Cut(p.path(n.Path), "[")
			if !seen[path] {
				seen[path] = true
				out = append(out, path)
			}
		case *ast.Comparison:
			walk(n.Left)
			walk(n.Right)
		case *ast.And:
			walk(n.Left)
			walk(n.Right)
		case *ast.Or:
			walk(n.Left)
			walk(n.Right)
		case *ast.Not:
			walk(n.Expr)
		case *ast.List:
			for _, item := range n.Items {
				walk(item)
			}
		case *ast.Function:
			for _, a := range n.Args {
				walk(a)
			}
			for _, a := range n.NamedArgs {
				walk(a.Value)
			}
		case *ast.Literal, *ast.Parameter, *ast.Ref, *ast.GeoPoint:
		default:
			panic(fmt.Sprintf("processor: unknown expression %T", e))
		}
	}
	walk(expr)
	return out
}
