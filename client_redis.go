package x8ql

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	redisbuilders "github.com/omniql-engine/x8ql/engine/builders/redis"
	"github.com/omniql-engine/x8ql/engine/processor"
	"github.com/omniql-engine/x8ql/engine/translator"
	"github.com/omniql-engine/x8ql/mapping"
)

// mgetChunk bounds the keys read per MGET.
const mgetChunk = 500

// ============================================
// REDIS IMPLEMENTATION
// ============================================

func (c *Client) execRedis(ctx context.Context, kv *translator.KeyValueQuery) ([]map[string]any, error) {
	switch kv.Operation {
	case mapping.VerbPut:
		if err := c.redisDB.Set(ctx, kv.Key, kv.Document, 0).Err(); err != nil {
			return nil, fmt.Errorf("set error: %w", err)
		}
		return affected(1), nil
	case mapping.VerbGet, mapping.VerbQuery:
		docs, err := c.redisLoad(ctx, c.redisDB, kv)
		if err != nil {
			return nil, err
		}
		items, err := redisbuilders.Matching(c.proc, docs, kv.Residual)
		if err != nil {
			return nil, err
		}
		return toRows(items), nil
	case mapping.VerbCount:
		docs, err := c.redisLoad(ctx, c.redisDB, kv)
		if err != nil {
			return nil, err
		}
		keys, err := redisbuilders.MatchingKeys(c.proc, docs, kv.Residual.Where)
		if err != nil {
			return nil, err
		}
		return counted(int64(len(keys))), nil
	case mapping.VerbDelete:
		docs, err := c.redisLoad(ctx, c.redisDB, kv)
		if err != nil {
			return nil, err
		}
		keys, err := redisbuilders.MatchingKeys(c.proc, docs, kv.Residual.Where)
		if err != nil || len(keys) == 0 {
			return affected(0), err
		}
		n, err := c.redisDB.Del(ctx, keys...).Result()
		if err != nil {
			return nil, fmt.Errorf("del error: %w", err)
		}
		return affected(n), nil
	case mapping.VerbUpdate:
		return c.redisUpdate(ctx, kv)
	}
	return nil, fmt.Errorf("%w: Redis %s", ErrNotSupported, kv.Operation)
}

// redisLoad reads the documents a plan addresses: one key, or every key
// matching the collection pattern.
func (c *Client) redisLoad(ctx context.Context, rdb redis.Cmdable, kv *translator.KeyValueQuery) ([]redisbuilders.Document, error) {
	if kv.Key != "" {
		raw, err := rdb.Get(ctx, kv.Key).Result()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("get error: %w", err)
		}
		return redisbuilders.DecodeAll([]string{kv.Key}, []any{raw})
	}

	keys, err := c.redisScan(ctx, rdb, kv.Pattern)
	if err != nil {
		return nil, err
	}
	var docs []redisbuilders.Document
	for start := 0; start < len(keys); start += mgetChunk {
		chunk := keys[start:min(start+mgetChunk, len(keys))]
		raws, err := rdb.MGet(ctx, chunk...).Result()
		if err != nil {
			return nil, fmt.Errorf("mget error: %w", err)
		}
		decoded, err := redisbuilders.DecodeAll(chunk, raws)
		if err != nil {
			return nil, err
		}
		docs = append(docs, decoded...)
	}
	return docs, nil
}

func (c *Client) redisScan(ctx context.Context, rdb redis.Cmdable, pattern string) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	seen := make(map[string]bool)
	for {
		page, next, err := rdb.Scan(ctx, cursor, pattern, redisbuilders.ScanCount).Result()
		if err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		// SCAN may return a key more than once
		for _, k := range page {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}

// redisUpdate rewrites every matching document under WATCH, retrying
// when another writer touched one of them first.
func (c *Client) redisUpdate(ctx context.Context, kv *translator.KeyValueQuery) ([]map[string]any, error) {
	docs, err := c.redisLoad(ctx, c.redisDB, kv)
	if err != nil {
		return nil, err
	}
	keys, err := redisbuilders.MatchingKeys(c.proc, docs, kv.Residual.Where)
	if err != nil || len(keys) == 0 {
		return affected(0), err
	}

	const attempts = 3
	var updated int64
	for attempt := 0; attempt < attempts; attempt++ {
		err = c.redisDB.Watch(ctx, func(tx *redis.Tx) error {
			updated = 0
			raws, err := tx.MGet(ctx, keys...).Result()
			if err != nil {
				return err
			}
			current, err := redisbuilders.DecodeAll(keys, raws)
			if err != nil {
				return err
			}
			writes, err := applyUpdate(c.proc, current, kv)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				for key, doc := range writes {
					pipe.Set(ctx, key, doc, redis.KeepTTL)
				}
				return nil
			})
			updated = int64(len(writes))
			return err
		}, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("update error: %w", err)
	}
	return affected(updated), nil
}

// applyUpdate re-checks the condition on the watched values and returns
// the encoded documents to write.
func applyUpdate(p *processor.Processor, docs []redisbuilders.Document, kv *translator.KeyValueQuery) (map[string]string, error) {
	writes := make(map[string]string, len(docs))
	for _, d := range docs {
		ok, err := p.FilterItem(d.Value, kv.Residual.Where)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		next, err := p.UpdateItem(d.Value, kv.Update)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.Key, err)
		}
		encoded, err := redisbuilders.Encode(next)
		if err != nil {
			return nil, err
		}
		writes[d.Key] = encoded
	}
	return writes, nil
}
