package translator

import (
	"fmt"
	"strings"

	"github.com/omniql-engine/x8ql/engine/ast"
	redisbuilders "github.com/omniql-engine/x8ql/engine/builders/redis"
	"github.com/omniql-engine/x8ql/engine/models"
	"github.com/omniql-engine/x8ql/engine/processor"
	"github.com/omniql-engine/x8ql/mapping"
)

// KeyValueQuery is a Redis plan. Items addressed by key are read with GET;
// everything else scans Pattern and filters with Residual.
type KeyValueQuery struct {
	Operation  string
	Collection string
	// Key is the Redis key of a single item, empty for scans.
	Key      string
	Pattern  string
	Document string // PUT only
	Residual processor.QueryArgs
	Update   *ast.Update // UPDATE only
	// Commands lists the commands issued before residual evaluation.
	Commands []redisbuilders.Command
}

func (k *KeyValueQuery) String() string {
	lines := make([]string, 0, len(k.Commands)+1)
	for _, c := range k.Commands {
		lines = append(lines, c.String())
	}
	var residual []string
	if k.Residual.Where != nil {
		residual = append(residual, "where "+k.Residual.Where.String())
	}
	if k.Residual.OrderBy != nil {
		residual = append(residual, k.Residual.OrderBy.String())
	}
	if !k.Residual.Select.IsEmpty() {
		residual = append(residual, k.Residual.Select.String())
	}
	if k.Update != nil {
		residual = append(residual, k.Update.String())
	}
	if len(residual) > 0 {
		lines = append(lines, "-- then "+strings.Join(residual, " "))
	}
	return strings.Join(lines, "\n")
}

// TranslateRedis lowers q onto a Redis plan.
func TranslateRedis(q *models.Query, opts Options) (*KeyValueQuery, error) {
	if q.Collection == "" {
		return nil, fmt.Errorf("%w: missing collection", models.ErrInvalidStatement)
	}
	collection := opts.CollectionName(q.Collection)
	out := &KeyValueQuery{
		Operation:  q.Operation,
		Collection: collection,
		Pattern:    redisbuilders.Pattern(collection),
		Residual: processor.QueryArgs{
			Select:  q.Select,
			Where:   q.Where,
			OrderBy: q.OrderBy,
			Limit:   q.Limit,
			Offset:  q.Offset,
		},
	}
	if q.HasKey() {
		out.Key = redisbuilders.Key(collection, q.KeyString())
	}

	switch q.Operation {
	case mapping.VerbGet:
		out.Commands = []redisbuilders.Command{redisbuilders.Get(out.Key)}
	case mapping.VerbPut:
		doc, err := redisbuilders.Encode(q.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrInvalidStatement, err)
		}
		out.Document = doc
		out.Commands = []redisbuilders.Command{redisbuilders.Set(out.Key, doc)}
	case mapping.VerbUpdate:
		out.Update = q.Update
		out.Commands = readCommands(out)
	case mapping.VerbQuery, mapping.VerbCount, mapping.VerbDelete:
		out.Commands = readCommands(out)
	default:
		return nil, fmt.Errorf("%w: verb %s", models.ErrNotSupported, q.Operation)
	}
	return out, nil
}

func readCommands(k *KeyValueQuery) []redisbuilders.Command {
	if k.Key != "" {
		return []redisbuilders.Command{redisbuilders.Get(k.Key)}
	}
	return []redisbuilders.Command{redisbuilders.Scan(k.Pattern)}
}
