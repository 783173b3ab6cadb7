package redis

import (
	"encoding/json"
	"fmt"

	"github.com/omniql-engine/x8ql/engine/accessor"
	"github.com/omniql-engine/x8ql/engine/ast"
	"github.com/omniql-engine/x8ql/engine/processor"
)

// Encode renders a document as stored in Redis.
func Encode(doc any) (string, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}
	return string(data), nil
}

// Decode parses a stored document.
func Decode(raw string) (any, error) {
	doc, err := accessor.DecodeJSON([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}

// Document is a decoded value with the Redis key it was read from.
type Document struct {
	Key   string
	Value any
}

// DecodeAll decodes raw values read with MGET. Nil entries are keys that
// vanished between SCAN and MGET.
func DecodeAll(keys []string, raws []any) ([]Document, error) {
	if len(keys) != len(raws) {
		return nil, fmt.Errorf("decode documents: %d keys, %d values", len(keys), len(raws))
	}
	out := make([]Document, 0, len(raws))
	for i, raw := range raws {
		s, ok := raw.(string)
		if !ok {
			continue
		}
		doc, err := Decode(s)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", keys[i], err)
		}
		out = append(out, Document{Key: keys[i], Value: doc})
	}
	return out, nil
}

// Matching returns the documents satisfying the residual query arguments.
// Order, projection and paging are applied after filtering.
func Matching(p *processor.Processor, docs []Document, args processor.QueryArgs) ([]any, error) {
	items := make([]any, len(docs))
	for i, d := range docs {
		items[i] = d.Value
	}
	return p.Query(items, args)
}

// MatchingKeys returns the Redis keys whose documents satisfy the
// condition, in scan order.
func MatchingKeys(p *processor.Processor, docs []Document, where ast.Expr) ([]string, error) {
	var keys []string
	for _, d := range docs {
		ok, err := p.FilterItem(d.Value, where)
		if err != nil {
			return nil, err
		}
		if ok {
			keys = append(keys, d.Key)
		}
	}
	return keys, nil
}
