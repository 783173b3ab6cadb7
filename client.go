package x8ql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/puzpuzpuz/xsync/v4"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/omniql-engine/x8ql/engine/accessor"
	"github.com/omniql-engine/x8ql/engine/models"
	"github.com/omniql-engine/x8ql/engine/processor"
	"github.com/omniql-engine/x8ql/engine/translator"
	log "github.com/omniql-engine/x8ql/internal/logging"
	"github.com/omniql-engine/x8ql/mapping"
)

// Memory is the database name of the in-process backend.
const Memory = "memory"

// Result row keys of write and count statements.
const (
	RowsAffected = "rows_affected"
	CountKey     = "count"
)

// ErrNotSupported is returned for statements a backend cannot execute.
var ErrNotSupported = models.ErrNotSupported

// ============================================
// CLIENT STRUCT
// ============================================

// Client executes statements against one backend. It is safe for
// concurrent use when the wrapped connection is.
type Client struct {
	dbType  string
	opts    translator.Options
	proc    *processor.Processor
	sqlDB   *sql.DB
	mongoDB *mongo.Database
	redisDB *redis.Client
	mem     *memoryStore
	// ready holds the relational tables whose setup already ran.
	ready *xsync.Map[string, bool]
}

// Option configures a Client.
type Option func(*Client)

// WithOptions sets how collections map onto tables, collections and keys.
func WithOptions(opts translator.Options) Option {
	return func(c *Client) { c.opts = opts }
}

// WithProcessor replaces the processor used for residual filtering,
// projection and in-memory updates.
func WithProcessor(p *processor.Processor) Option {
	return func(c *Client) { c.proc = p }
}

func newClient(dbType string, opts []Option) *Client {
	c := &Client{
		dbType: dbType,
		opts:   translator.DefaultOptions(),
		proc:   processor.New(),
		ready:  xsync.NewMap[string, bool](),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// ============================================
// CONSTRUCTORS
// ============================================

// NewMemory returns a client over empty in-process collections.
func NewMemory(opts ...Option) *Client {
	c := newClient(Memory, opts)
	c.mem = newMemoryStore()
	return c
}

// WrapSQL wraps a PostgreSQL, MySQL or SQLite connection. Tables are
// created on first use.
func WrapSQL(db *sql.DB, dbType string, opts ...Option) (*Client, error) {
	name, ok := mapping.NormalizeDatabase(dbType)
	if !ok || !mapping.IsRelational(name) {
		return nil, fmt.Errorf("%w: %s is not a SQL database", ErrNotSupported, dbType)
	}
	c := newClient(name, opts)
	c.sqlDB = db
	return c, nil
}

// WrapMongo wraps a MongoDB database.
func WrapMongo(db *mongo.Database, opts ...Option) *Client {
	c := newClient("MongoDB", opts)
	c.mongoDB = db
	return c
}

// WrapRedis wraps a Redis client.
func WrapRedis(rdb *redis.Client, opts ...Option) *Client {
	c := newClient("Redis", opts)
	c.redisDB = rdb
	return c
}

// Database returns the backend name: a mapping database name or Memory.
func (c *Client) Database() string {
	return c.dbType
}

// ============================================
// EXECUTION
// ============================================

// Execute prepares text with params and runs it.
func (c *Client) Execute(ctx context.Context, text string, params map[string]any) ([]map[string]any, error) {
	stmt, err := Prepare(text, params)
	if err != nil {
		return nil, err
	}
	return c.Run(ctx, stmt)
}

// Query runs QL input with the : prefix, and native SQL otherwise.
func (c *Client) Query(ctx context.Context, input string) ([]map[string]any, error) {
	op, isQL, err := Parse(input)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	if isQL {
		stmt, err := PrepareOperation(op, nil)
		if err != nil {
			return nil, err
		}
		return c.Run(ctx, stmt)
	}
	if c.sqlDB == nil {
		return nil, fmt.Errorf("%w: native %s queries, use QL syntax", ErrNotSupported, c.dbType)
	}
	rows, err := c.sqlDB.QueryContext(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()
	return rowsToMaps(rows)
}

// Run executes a prepared statement. A batch runs its statements in order
// and stops at the first failure; a transact applies all of them or none.
func (c *Client) Run(ctx context.Context, stmt *Statement) ([]map[string]any, error) {
	if stmt.Verb == mapping.VerbTransact {
		return c.transact(ctx, stmt.Queries)
	}
	var out []map[string]any
	for i, q := range stmt.Queries {
		rows, err := c.exec(ctx, q, c.sqlDB)
		if err != nil {
			if stmt.IsMulti() {
				return out, fmt.Errorf("statement %d: %w", i+1, err)
			}
			return nil, err
		}
		out = append(out, rows...)
	}
	return out, nil
}

// Translate returns the native form of q for this backend.
func (c *Client) Translate(q *models.Query) (*translator.UniversalQuery, error) {
	if c.dbType == Memory {
		return nil, fmt.Errorf("%w: memory statements have no native form", ErrNotSupported)
	}
	return translator.Translate(q, c.dbType, c.opts)
}

func (c *Client) exec(ctx context.Context, q *models.Query, runner sqlRunner) ([]map[string]any, error) {
	log.Debug().Str("database", c.dbType).Str("operation", q.Operation).Str("collection", q.Collection).Msg("executing")
	if c.dbType == Memory {
		c.mem.mu.Lock()
		defer c.mem.mu.Unlock()
		return c.execMemory(q)
	}
	native, err := c.Translate(q)
	if err != nil {
		return nil, err
	}
	switch {
	case native.Relational != nil:
		return c.execSQL(ctx, native.Relational, runner)
	case native.Document != nil:
		return c.execMongo(ctx, native.Document)
	case native.KeyValue != nil:
		return c.execRedis(ctx, native.KeyValue)
	}
	return nil, fmt.Errorf("%w: %s", ErrNotSupported, c.dbType)
}

func (c *Client) transact(ctx context.Context, queries []*models.Query) ([]map[string]any, error) {
	switch {
	case c.mem != nil:
		return c.transactMemory(queries)
	case c.sqlDB != nil:
		return c.transactSQL(ctx, queries)
	case c.mongoDB != nil:
		return c.transactMongo(ctx, queries)
	}
	return nil, fmt.Errorf("%w: transact on %s", ErrNotSupported, c.dbType)
}

// ============================================
// HELPERS
// ============================================

func affected(n int64) []map[string]any {
	return []map[string]any{{RowsAffected: n}}
}

func counted(n int64) []map[string]any {
	return []map[string]any{{CountKey: n}}
}

// toRows turns processed items into result rows. Items that are not
// objects are returned under "value".
func toRows(items []any) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
			continue
		}
		out = append(out, map[string]any{"value": item})
	}
	return out
}

// normalizeDocument round trips v through JSON so every backend stores
// the same value shapes.
func normalizeDocument(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: document: %v", models.ErrInvalidStatement, err)
	}
	return accessor.DecodeJSON(data)
}

func rowsToMaps(rows *sql.Rows) ([]map[string]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var results []map[string]any
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		results = append(results, row)
	}
	return results, rows.Err()
}

// joinErrors keeps the primary error in front of a rollback failure.
func joinErrors(primary, secondary error) error {
	if secondary == nil || errors.Is(secondary, sql.ErrTxDone) {
		return primary
	}
	return fmt.Errorf("%w (rollback: %s)", primary, strings.TrimSpace(secondary.Error()))
}
