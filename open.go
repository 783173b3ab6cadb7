package x8ql

import (
	"database/sql"
	"fmt"
	"regexp"
	"sync"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/omniql-engine/x8ql/mapping"
)

// SQLiteDriver is the database/sql driver registered by OpenSQLite. It is
// go-sqlite3 with a regexp() function, so REGEXP works.
const SQLiteDriver = "sqlite3_x8ql"

var registerSQLite sync.Once

// patterns caches compiled REGEXP patterns across connections.
var patterns = xsync.NewMap[string, *regexp.Regexp]()

func sqliteRegexp(pattern, s string) (bool, error) {
	re, ok := patterns.Load(pattern)
	if !ok {
		var err error
		if re, err = regexp.Compile(pattern); err != nil {
			return false, err
		}
		patterns.Store(pattern, re)
	}
	return re.MatchString(s), nil
}

// OpenSQLite opens a SQLite database with REGEXP support. Use
// "file::memory:?cache=shared" for a shared in-memory database.
func OpenSQLite(dsn string) (*sql.DB, error) {
	registerSQLite.Do(func() {
		sql.Register(SQLiteDriver, &sqlite3.SQLiteDriver{
			ConnectHook: func(conn *sqlite3.SQLiteConn) error {
				return conn.RegisterFunc("regexp", sqliteRegexp, true)
			},
		})
	})
	return sql.Open(SQLiteDriver, dsn)
}

// OpenSQL opens a connection for a relational database name or alias.
func OpenSQL(dbType, dsn string) (*sql.DB, error) {
	name, ok := mapping.NormalizeDatabase(dbType)
	if !ok || !mapping.IsRelational(name) {
		return nil, fmt.Errorf("%w: %s is not a SQL database", ErrNotSupported, dbType)
	}
	switch name {
	case "PostgreSQL":
		return sql.Open("postgres", dsn)
	case "MySQL":
		return sql.Open("mysql", dsn)
	}
	return OpenSQLite(dsn)
}
