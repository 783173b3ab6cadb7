package mapping

import "strings"

// SupportedDatabases lists all backends a statement can be lowered to.
// Callers must use these exact names as the database type.
var SupportedDatabases = []string{
	"PostgreSQL",
	"MySQL",
	"SQLite",
	"MongoDB",
	"Redis",
}

// DatabaseAliases maps loose spellings found in config files onto canonical names.
var DatabaseAliases = map[string]string{
	"postgres":   "PostgreSQL",
	"postgresql": "PostgreSQL",
	"pg":         "PostgreSQL",
	"mysql":      "MySQL",
	"sqlite":     "SQLite",
	"sqlite3":    "SQLite",
	"mongo":      "MongoDB",
	"mongodb":    "MongoDB",
	"redis":      "Redis",
}

// RelationalDatabases are the backends reached through database/sql.
var RelationalDatabases = map[string]bool{
	"PostgreSQL": true,
	"MySQL":      true,
	"SQLite":     true,
}

// IsSupportedDatabase checks if a database type is supported
func IsSupportedDatabase(dbType string) bool {
	for _, db := range SupportedDatabases {
		if db == dbType {
			return true
		}
	}
	return false
}

// NormalizeDatabase resolves an alias or canonical name. The second result
// is false when the name is unknown.
func NormalizeDatabase(name string) (string, bool) {
	if IsSupportedDatabase(name) {
		return name, true
	}
	canonical, ok := DatabaseAliases[strings.ToLower(strings.TrimSpace(name))]
	return canonical, ok
}

// IsRelational reports whether dbType is a SQL backend.
func IsRelational(dbType string) bool {
	return RelationalDatabases[dbType]
}
