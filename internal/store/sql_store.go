package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/Kayo-b/voto-db/internal/model"
)

// zeroTime marks summary rows that have never been fully synced
var zeroTime = time.Time{}

// SQLStore is the relational backend for entities and the cache ledger
type SQLStore struct {
	db          *sql.DB
	dialect     Dialect
	placeholder sq.PlaceholderFormat
	now         func() time.Time
}

// NewSQLStore creates a SQLStore over an already migrated database
func NewSQLStore(db *sql.DB, dialect Dialect, opts ...Option) *SQLStore {
	o := buildOptions(opts)

	var placeholder sq.PlaceholderFormat = sq.Dollar
	if dialect == DialectSQLite {
		placeholder = sq.Question
	}

	return &SQLStore{
		db:          db,
		dialect:     dialect,
		placeholder: placeholder,
		now:         o.now,
	}
}

// Name identifies the backend
func (s *SQLStore) Name() string {
	return BackendSQL + "/" + string(s.dialect)
}

// Ping checks the database connection
func (s *SQLStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Close releases the connection pool
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Counts returns the number of rows per entity table
func (s *SQLStore) Counts(ctx context.Context) (model.StoreCounts, error) {
	var c model.StoreCounts
	q := s.builder().Select(
		"(SELECT COUNT(*) FROM legislatures)",
		"(SELECT COUNT(*) FROM parties)",
		"(SELECT COUNT(*) FROM deputies)",
		"(SELECT COUNT(*) FROM bills)",
		"(SELECT COUNT(*) FROM bills WHERE monitored = TRUE)",
		"(SELECT COUNT(*) FROM voting_sessions)",
		"(SELECT COUNT(*) FROM votes)",
		"(SELECT COUNT(*) FROM deputy_statistics)",
	)
	err := s.queryRow(ctx, q,
		&c.Legislatures,
		&c.Parties,
		&c.Deputies,
		&c.Bills,
		&c.Monitored,
		&c.Sessions,
		&c.Votes,
		&c.Statistics,
	)
	if err != nil {
		return c, fmt.Errorf("failed to count entities: %w", err)
	}
	return c, nil
}

func (s *SQLStore) builder() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(s.placeholder)
}

func (s *SQLStore) timestamp() time.Time {
	return s.now().UTC()
}

func (s *SQLStore) exec(ctx context.Context, b sq.Sqlizer) (sql.Result, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr(err)
	}
	return res, nil
}

func (s *SQLStore) queryRow(ctx context.Context, b sq.Sqlizer, dest ...any) error {
	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}
	return wrapErr(s.db.QueryRowContext(ctx, query, args...).Scan(dest...))
}

func (s *SQLStore) query(ctx context.Context, b sq.Sqlizer) (*sql.Rows, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr(err)
	}
	return rows, nil
}

// wrapErr maps driver errors onto the store sentinels
func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", ErrConflict, pqErr.Message)
		case "23503":
			return fmt.Errorf("%w: %s", ErrIntegrity, pqErr.Message)
		}
		return err
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%w: %s", ErrConflict, liteErr.Error())
		case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
			return fmt.Errorf("%w: %s", ErrIntegrity, liteErr.Error())
		}
	}

	return err
}
