package x8ql

import (
	"fmt"
	"sync"

	"github.com/omniql-engine/x8ql/engine/accessor"
	"github.com/omniql-engine/x8ql/engine/models"
	"github.com/omniql-engine/x8ql/engine/processor"
	"github.com/omniql-engine/x8ql/mapping"
)

// memoryCollection keeps items in insertion order.
type memoryCollection struct {
	keys  []string
	items map[string]any
}

func (m *memoryCollection) put(key string, item any) {
	if _, ok := m.items[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.items[key] = item
}

func (m *memoryCollection) remove(drop map[string]bool) {
	kept := m.keys[:0]
	for _, k := range m.keys {
		if drop[k] {
			delete(m.items, k)
			continue
		}
		kept = append(kept, k)
	}
	m.keys = kept
}

func (m *memoryCollection) clone() *memoryCollection {
	out := &memoryCollection{keys: append([]string(nil), m.keys...), items: make(map[string]any, len(m.items))}
	for k, v := range m.items {
		out.items[k] = accessor.DeepCopy(v)
	}
	return out
}

type memoryStore struct {
	mu          sync.Mutex
	collections map[string]*memoryCollection
}

func newMemoryStore() *memoryStore {
	return &memoryStore{collections: map[string]*memoryCollection{}}
}

func (s *memoryStore) collection(name string) *memoryCollection {
	c, ok := s.collections[name]
	if !ok {
		c = &memoryCollection{items: map[string]any{}}
		s.collections[name] = c
	}
	return c
}

func (s *memoryStore) snapshot() map[string]*memoryCollection {
	out := make(map[string]*memoryCollection, len(s.collections))
	for name, c := range s.collections {
		out[name] = c.clone()
	}
	return out
}

// ============================================
// MEMORY IMPLEMENTATION (caller holds mem.mu)
// ============================================

func (c *Client) execMemory(q *models.Query) ([]map[string]any, error) {
	coll := c.mem.collection(c.opts.CollectionName(q.Collection))

	switch q.Operation {
	case mapping.VerbPut:
		if !accessor.IsObject(q.Value) {
			return nil, fmt.Errorf("%w: put value must be an object, got %T", models.ErrInvalidStatement, q.Value)
		}
		doc, err := normalizeDocument(q.Value)
		if err != nil {
			return nil, err
		}
		coll.put(q.KeyString(), doc)
		return affected(1), nil
	case mapping.VerbQuery, mapping.VerbGet:
		items, err := c.proc.Query(candidates(coll, q), processor.QueryArgs{
			Select:  q.Select,
			Where:   q.Where,
			OrderBy: q.OrderBy,
			Limit:   q.Limit,
			Offset:  q.Offset,
		})
		if err != nil {
			return nil, err
		}
		return toRows(accessor.DeepCopy(items).([]any)), nil
	case mapping.VerbCount:
		n, err := c.proc.Count(candidates(coll, q), q.Where)
		if err != nil {
			return nil, err
		}
		return counted(int64(n)), nil
	case mapping.VerbUpdate, mapping.VerbDelete:
		keys, err := c.matchingKeys(coll, q)
		if err != nil {
			return nil, err
		}
		if q.Operation == mapping.VerbDelete {
			drop := make(map[string]bool, len(keys))
			for _, k := range keys {
				drop[k] = true
			}
			coll.remove(drop)
			return affected(int64(len(keys))), nil
		}
		// compute every update before storing any
		next := make([]any, len(keys))
		for i, k := range keys {
			if next[i], err = c.proc.UpdateItem(coll.items[k], q.Update); err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
		}
		for i, k := range keys {
			coll.items[k] = next[i]
		}
		return affected(int64(len(keys))), nil
	}
	return nil, fmt.Errorf("%w: verb %s", ErrNotSupported, q.Operation)
}

// candidates returns the items a query may touch, in insertion order.
func candidates(coll *memoryCollection, q *models.Query) []any {
	if q.HasKey() {
		if item, ok := coll.items[q.KeyString()]; ok {
			return []any{item}
		}
		return nil
	}
	out := make([]any, len(coll.keys))
	for i, k := range coll.keys {
		out[i] = coll.items[k]
	}
	return out
}

func (c *Client) matchingKeys(coll *memoryCollection, q *models.Query) ([]string, error) {
	keys := coll.keys
	if q.HasKey() {
		if _, ok := coll.items[q.KeyString()]; !ok {
			return nil, nil
		}
		keys = []string{q.KeyString()}
	}
	var out []string
	for _, k := range keys {
		ok, err := c.proc.FilterItem(coll.items[k], q.Where)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, k)
		}
	}
	return out, nil
}

func (c *Client) transactMemory(queries []*models.Query) ([]map[string]any, error) {
	c.mem.mu.Lock()
	defer c.mem.mu.Unlock()

	saved := c.mem.snapshot()
	var out []map[string]any
	for i, q := range queries {
		rows, err := c.execMemory(q)
		if err != nil {
			c.mem.collections = saved
			return nil, fmt.Errorf("statement %d: %w", i+1, err)
		}
		out = append(out, rows...)
	}
	return out, nil
}
