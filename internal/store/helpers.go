package store

import "strings"

// DetectDSNType reports whether a DSN refers to a PostgreSQL server or a
// SQLite file. Anything that is not recognizably Postgres is treated as a
// file path.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}
