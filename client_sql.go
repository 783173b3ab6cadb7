package x8ql

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/omniql-engine/x8ql/engine/accessor"
	"github.com/omniql-engine/x8ql/engine/models"
	"github.com/omniql-engine/x8ql/engine/translator"
	log "github.com/omniql-engine/x8ql/internal/logging"
	"github.com/omniql-engine/x8ql/mapping"
)

// sqlRunner is satisfied by *sql.DB and *sql.Tx.
type sqlRunner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// ============================================
// SQL IMPLEMENTATION (PostgreSQL, MySQL, SQLite)
// ============================================

func (c *Client) execSQL(ctx context.Context, rq *translator.RelationalQuery, db sqlRunner) ([]map[string]any, error) {
	if err := c.setupTable(ctx, rq, db); err != nil {
		return nil, err
	}
	stmt := rq.Statement
	log.Debug().Str("sql", stmt.SQL).Int("args", len(stmt.Args)).Msg("sql statement")

	if !rq.ReturnsRows() {
		res, err := db.ExecContext(ctx, stmt.SQL, stmt.Args...)
		if err != nil {
			return nil, fmt.Errorf("exec error: %w", err)
		}
		if rq.Operation == mapping.VerbPut {
			// MySQL reports 2 for an upsert that replaced a row
			return affected(1), nil
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("rows affected: %w", err)
		}
		return affected(n), nil
	}

	rows, err := db.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	if rq.Operation == mapping.VerbCount {
		var n int64
		if rows.Next() {
			if err := rows.Scan(&n); err != nil {
				return nil, err
			}
		}
		return counted(n), rows.Err()
	}

	docs, err := scanDocuments(rows)
	if err != nil {
		return nil, err
	}
	items, err := c.proc.Project(docs, rq.Select)
	if err != nil {
		return nil, err
	}
	return toRows(items), nil
}

// setupTable runs the idempotent DDL of a table once per client.
func (c *Client) setupTable(ctx context.Context, rq *translator.RelationalQuery, db sqlRunner) error {
	if ok, _ := c.ready.Load(rq.Table.Name); ok {
		return nil
	}
	for _, s := range rq.Setup {
		if _, err := db.ExecContext(ctx, s.SQL, s.Args...); err != nil {
			return fmt.Errorf("setup %s: %w", rq.Table.Name, err)
		}
	}
	c.ready.Store(rq.Table.Name, true)
	return nil
}

// scanDocuments reads (key, document) rows.
func scanDocuments(rows *sql.Rows) ([]any, error) {
	var docs []any
	for rows.Next() {
		var (
			key string
			raw []byte
		)
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, err
		}
		doc, err := accessor.DecodeJSON(raw)
		if err != nil {
			return nil, fmt.Errorf("row %s: %w", key, err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (c *Client) transactSQL(ctx context.Context, queries []*models.Query) (out []map[string]any, err error) {
	// setup runs outside the transaction: MySQL commits implicitly on DDL
	for _, q := range queries {
		native, terr := c.Translate(q)
		if terr != nil {
			return nil, terr
		}
		if err := c.setupTable(ctx, native.Relational, c.sqlDB); err != nil {
			return nil, err
		}
	}

	tx, err := c.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			err = joinErrors(err, tx.Rollback())
		}
	}()

	for i, q := range queries {
		rows, err := c.exec(ctx, q, tx)
		if err != nil {
			return nil, fmt.Errorf("statement %d: %w", i+1, err)
		}
		out = append(out, rows...)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return out, nil
}
