// Package redis maps collections onto Redis string keys holding JSON
// documents. Redis has no query language, so conditions stay residual and
// are evaluated by the processor after a key scan.
package redis

import (
	"strings"

	"github.com/omniql-engine/x8ql/engine/ast"
)

// Separator joins the collection and the item key.
const Separator = ":"

// ScanCount is the COUNT hint passed to SCAN.
const ScanCount = 100

// Command is one Redis command with its arguments.
type Command struct {
	Name string
	Args []any
}

// Strings returns the command as rendered words.
func (c Command) Strings() []string {
	out := make([]string, 0, len(c.Args)+1)
	out = append(out, c.Name)
	for _, a := range c.Args {
		if s, ok := a.(string); ok {
			out = append(out, s)
			continue
		}
		out = append(out, ast.RenderValue(a))
	}
	return out
}

func (c Command) String() string {
	return strings.Join(c.Strings(), " ")
}

// ============================================================================
// KEYS
// ============================================================================

// Key returns the Redis key of an item.
func Key(collection, key string) string {
	return collection + Separator + key
}

// Pattern returns the SCAN pattern matching every item of a collection.
func Pattern(collection string) string {
	return escapeGlob(collection) + Separator + "*"
}

// ItemKey strips the collection prefix from a Redis key.
func ItemKey(collection, redisKey string) (string, bool) {
	return strings.CutPrefix(redisKey, collection+Separator)
}

func escapeGlob(s string) string {
	if !strings.ContainsAny(s, `*?[]\`) {
		return s
	}
	var sb strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// ============================================================================
// COMMANDS
// ============================================================================

func Get(key string) Command { return Command{Name: "GET", Args: []any{key}} }

func Set(key, document string) Command { return Command{Name: "SET", Args: []any{key, document}} }

func Del(keys ...string) Command {
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	return Command{Name: "DEL", Args: args}
}

func Scan(pattern string) Command {
	return Command{Name: "SCAN", Args: []any{int64(0), "MATCH", pattern, "COUNT", int64(ScanCount)}}
}
