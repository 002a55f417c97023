package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect selects the SQL flavour of the relational backend
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// ParseDialect validates a configured driver name
func ParseDialect(driver string) (Dialect, error) {
	switch Dialect(driver) {
	case DialectPostgres, DialectSQLite:
		return Dialect(driver), nil
	}
	return "", fmt.Errorf("unsupported database driver %q", driver)
}

// NewDB opens a connection pool, verifies it and applies the schema
func NewDB(ctx context.Context, dialect Dialect, dsn string) (*sql.DB, error) {
	if dialect == DialectSQLite {
		dsn = sqliteDSN(dsn)
	}

	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if dialect == DialectSQLite {
		// a single connection keeps in-memory databases shared and
		// serializes writers
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: failed to ping database: %v", ErrUnavailable, err)
	}

	if _, err := db.ExecContext(ctx, schemaFor(dialect)); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return db, nil
}

// sqliteDSN turns on foreign key enforcement for every pooled connection
// unless the DSN already sets it
func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "foreign_keys") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)"
}
