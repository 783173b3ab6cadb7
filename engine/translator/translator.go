// Package translator lowers statements onto native queries for every
// supported backend.
package translator

import (
	"fmt"
	"strings"

	"github.com/jinzhu/inflection"

	"github.com/omniql-engine/x8ql/engine/models"
	"github.com/omniql-engine/x8ql/internal/logging"
	"github.com/omniql-engine/x8ql/mapping"
)

// ErrNotSupported is returned for constructs a backend cannot express.
var ErrNotSupported = models.ErrNotSupported

// Options controls how collections map onto backend objects.
type Options struct {
	// TablePrefix is prepended to every table, collection and key space.
	TablePrefix string
	// Pluralize lowercases and pluralizes collection names: user -> users.
	Pluralize bool
	// KeyColumn and ValueColumn name the columns of relational tables.
	KeyColumn   string
	ValueColumn string
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() Options {
	return Options{KeyColumn: "id", ValueColumn: "value"}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.KeyColumn == "" {
		o.KeyColumn = d.KeyColumn
	}
	if o.ValueColumn == "" {
		o.ValueColumn = d.ValueColumn
	}
	return o
}

// CollectionName returns the backend name of a collection.
func (o Options) CollectionName(collection string) string {
	if o.Pluralize {
		collection = inflection.Plural(strings.ToLower(collection))
	}
	return o.TablePrefix + collection
}

// UniversalQuery holds the native form of one statement. Exactly one of
// the backend fields is set.
type UniversalQuery struct {
	Database   string
	Relational *RelationalQuery
	Document   *DocumentQuery
	KeyValue   *KeyValueQuery
}

// String renders the native query for display.
func (u *UniversalQuery) String() string {
	switch {
	case u.Relational != nil:
		return u.Relational.String()
	case u.Document != nil:
		return u.Document.String()
	case u.KeyValue != nil:
		return u.KeyValue.String()
	}
	return ""
}

// Translate routes the query to the translator of dbType. Database names
// are matched case insensitively and through mapping.DatabaseAliases.
func Translate(q *models.Query, dbType string, opts Options) (*UniversalQuery, error) {
	db, ok := mapping.NormalizeDatabase(dbType)
	if !ok {
		return nil, fmt.Errorf("unsupported database type: %s (supported: %v)", dbType, mapping.SupportedDatabases)
	}
	if q == nil {
		return nil, fmt.Errorf("%w: nil query", models.ErrInvalidStatement)
	}
	opts = opts.withDefaults()

	out := &UniversalQuery{Database: db}
	var err error
	switch db {
	case "PostgreSQL":
		out.Relational, err = TranslatePostgreSQL(q, opts)
	case "MySQL":
		out.Relational, err = TranslateMySQL(q, opts)
	case "SQLite":
		out.Relational, err = TranslateSQLite(q, opts)
	case "MongoDB":
		out.Document, err = TranslateMongoDB(q, opts)
	case "Redis":
		out.KeyValue, err = TranslateRedis(q, opts)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", dbType)
	}
	if err != nil {
		logging.Debug().Err(err).Str("database", db).Str("operation", q.Operation).Msg("translate failed")
		return nil, err
	}
	logging.Debug().Str("database", db).Str("operation", q.Operation).Str("collection", q.Collection).Msg("translated")
	return out, nil
}
