package parser

import (
	"fmt"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/omniql-engine/x8ql/engine/ast"
	log "github.com/omniql-engine/x8ql/internal/logging"
)

type cacheKey struct {
	text string
	kind string
}

type cacheEntry struct {
	node ast.Node
	err  error
}

// Cache memoizes parses by (text, kind). Entries are never invalidated:
// QL text is immutable, so a result stays valid for the life of the cache.
// Every hit returns a deep copy, so callers may bind or edit the tree freely.
// A Cache is safe for concurrent use.
type Cache struct {
	entries *xsync.Map[cacheKey, cacheEntry]
	hits    atomic.Int64
	misses  atomic.Int64
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{entries: xsync.NewMap[cacheKey, cacheEntry]()}
}

// Parse returns the tree for text parsed as kind, parsing at most once per
// distinct pair. Syntax errors are cached too.
func (c *Cache) Parse(text, kind string) (ast.Node, error) {
	key := cacheKey{text: text, kind: kind}
	computed := false
	entry, _ := c.entries.LoadOrCompute(key, func() (cacheEntry, bool) {
		computed = true
		node, err := parse(text, kind)
		return cacheEntry{node: node, err: err}, false
	})
	if computed {
		c.misses.Add(1)
		log.Debug().Str("kind", kind).Int("length", len(text)).Bool("error", entry.err != nil).Msg("parse cache miss")
	} else {
		c.hits.Add(1)
	}
	if entry.err != nil {
		return nil, entry.err
	}
	if entry.node == nil {
		return nil, nil
	}
	return ast.Clone(entry.node), nil
}

// CacheStats is a snapshot of cache counters.
type CacheStats struct {
	Entries int
	Hits    int64
	Misses  int64
}

// Stats returns the current counters.
func (c *Cache) Stats() CacheStats {
	return CacheStats{
		Entries: c.entries.Size(),
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}
}

// =============================================================================
// TYPED ENTRY POINTS
// =============================================================================

// ParseStatement parses a full statement.
func (c *Cache) ParseStatement(text string) (*ast.Operation, error) {
	node, err := c.Parse(text, KindStatement)
	if err != nil || node == nil {
		return nil, err
	}
	return node.(*ast.Operation), nil
}

// ParseWhere parses a filter expression.
func (c *Cache) ParseWhere(text string) (ast.Expr, error) {
	return c.parseExpr(text, KindWhere)
}

// ParseSearch parses a search expression.
func (c *Cache) ParseSearch(text string) (ast.Expr, error) {
	return c.parseExpr(text, KindSearch)
}

// ParseRankBy parses a ranking expression.
func (c *Cache) ParseRankBy(text string) (ast.Expr, error) {
	return c.parseExpr(text, KindRankBy)
}

func (c *Cache) parseExpr(text, kind string) (ast.Expr, error) {
	node, err := c.Parse(text, kind)
	if err != nil || node == nil {
		return nil, err
	}
	return node.(ast.Expr), nil
}

// ParseSelect parses a projection. A bare parameter is an error here; use
// Parse to accept one.
func (c *Cache) ParseSelect(text string) (*ast.Select, error) {
	node, err := c.Parse(text, KindSelect)
	if err != nil || node == nil {
		return nil, err
	}
	return expectNode[*ast.Select](node, KindSelect)
}

// ParseCollection parses a collection name.
func (c *Cache) ParseCollection(text string) (*ast.Collection, error) {
	node, err := c.Parse(text, KindCollection)
	if err != nil || node == nil {
		return nil, err
	}
	return expectNode[*ast.Collection](node, KindCollection)
}

// ParseOrderBy parses sort keys.
func (c *Cache) ParseOrderBy(text string) (*ast.OrderBy, error) {
	node, err := c.Parse(text, KindOrderBy)
	if err != nil || node == nil {
		return nil, err
	}
	return expectNode[*ast.OrderBy](node, KindOrderBy)
}

// ParseUpdate parses update operations.
func (c *Cache) ParseUpdate(text string) (*ast.Update, error) {
	node, err := c.Parse(text, KindUpdate)
	if err != nil || node == nil {
		return nil, err
	}
	return expectNode[*ast.Update](node, KindUpdate)
}

func expectNode[T ast.Node](node ast.Node, kind string) (T, error) {
	typed, ok := node.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%s: expected a %s clause, got %s", node, kind, describe(node))
	}
	return typed, nil
}

func describe(node ast.Node) string {
	if _, ok := node.(*ast.Parameter); ok {
		return "an unbound parameter"
	}
	return fmt.Sprintf("%T", node)
}

// =============================================================================
// DEFAULT CACHE
// =============================================================================

// Default is the process-wide cache behind the package-level helpers.
var Default = NewCache()

// Parse parses text as kind through the default cache.
func Parse(text, kind string) (ast.Node, error) { return Default.Parse(text, kind) }

// ParseStatement parses a statement through the default cache.
func ParseStatement(text string) (*ast.Operation, error) { return Default.ParseStatement(text) }

// ParseWhere parses a filter through the default cache.
func ParseWhere(text string) (ast.Expr, error) { return Default.ParseWhere(text) }

// ParseSearch parses a search expression through the default cache.
func ParseSearch(text string) (ast.Expr, error) { return Default.ParseSearch(text) }

// ParseRankBy parses a ranking expression through the default cache.
func ParseRankBy(text string) (ast.Expr, error) { return Default.ParseRankBy(text) }

// ParseSelect parses a projection through the default cache.
func ParseSelect(text string) (*ast.Select, error) { return Default.ParseSelect(text) }

// ParseCollection parses a collection name through the default cache.
func ParseCollection(text string) (*ast.Collection, error) { return Default.ParseCollection(text) }

// ParseOrderBy parses sort keys through the default cache.
func ParseOrderBy(text string) (*ast.OrderBy, error) { return Default.ParseOrderBy(text) }

// ParseUpdate parses update operations through the default cache.
func ParseUpdate(text string) (*ast.Update, error) { return Default.ParseUpdate(text) }
