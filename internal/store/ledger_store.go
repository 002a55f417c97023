package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/Kayo-b/voto-db/internal/model"
)

// IsFresh reports whether key has an unexpired ledger entry
func (s *SQLStore) IsFresh(ctx context.Context, key string) (bool, error) {
	q := s.builder().Select("expires_at").
		From("cache_ledger").
		Where(sq.Eq{"cache_key": key})

	var expiresAt time.Time
	err := s.queryRow(ctx, q, &expiresAt)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check cache key %s: %w", key, err)
	}

	return s.now().Before(expiresAt), nil
}

// MarkFresh inserts or overwrites the entry for key with a new expiry
func (s *SQLStore) MarkFresh(ctx context.Context, key, category string, ttl time.Duration) error {
	now := s.timestamp()
	q := s.builder().Insert("cache_ledger").
		Columns("cache_key", "category", "expires_at", "created_at").
		Values(key, category, now.Add(ttl), now).
		Suffix(`ON CONFLICT (cache_key) DO UPDATE SET
			category = excluded.category,
			expires_at = excluded.expires_at,
			created_at = excluded.created_at`)

	if _, err := s.exec(ctx, q); err != nil {
		return fmt.Errorf("failed to mark cache key %s: %w", key, err)
	}
	return nil
}

// Invalidate removes the entry for key
func (s *SQLStore) Invalidate(ctx context.Context, key string) error {
	if _, err := s.exec(ctx, s.builder().Delete("cache_ledger").Where(sq.Eq{"cache_key": key})); err != nil {
		return fmt.Errorf("failed to invalidate cache key %s: %w", key, err)
	}
	return nil
}

// SweepExpired deletes expired entries and returns how many were removed
func (s *SQLStore) SweepExpired(ctx context.Context) (int64, error) {
	q := s.builder().Delete("cache_ledger").Where(sq.LtOrEq{"expires_at": s.timestamp()})

	res, err := s.exec(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep cache ledger: %w", err)
	}
	return res.RowsAffected()
}

// LedgerStats counts entries per category and how many have expired
func (s *SQLStore) LedgerStats(ctx context.Context) (model.LedgerStats, error) {
	stats := model.LedgerStats{ByCategory: make(map[string]int)}

	q := s.builder().Select("category", "COUNT(*)").
		Column(sq.Expr("COALESCE(SUM(CASE WHEN expires_at <= ? THEN 1 ELSE 0 END), 0)", s.timestamp())).
		From("cache_ledger").
		GroupBy("category").
		OrderBy("category")

	rows, err := s.query(ctx, q)
	if err != nil {
		return stats, fmt.Errorf("failed to read cache ledger stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			category       string
			total, expired int
		)
		if err := rows.Scan(&category, &total, &expired); err != nil {
			return stats, fmt.Errorf("failed to scan cache ledger stats: %w", err)
		}
		stats.ByCategory[category] = total
		stats.Total += total
		stats.Expired += expired
	}

	return stats, rows.Err()
}
