package store

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/Kayo-b/voto-db/internal/model"
)

var billColumns = []string{
	"id",
	"upstream_id",
	"code",
	"title",
	"summary",
	"type",
	"number",
	"year",
	"uri",
	"relevance",
	"monitored",
	"created_at",
	"updated_at",
}

// CreateBill inserts a new bill; an existing code is a conflict
func (s *SQLStore) CreateBill(ctx context.Context, b *model.Bill) error {
	now := s.timestamp()
	if b.Relevance == "" {
		b.Relevance = model.RelevanceLow
	}

	q := s.builder().Insert("bills").
		Columns("upstream_id", "code", "title", "summary", "type", "number", "year",
			"uri", "relevance", "monitored", "created_at", "updated_at").
		Values(b.UpstreamID, b.Code, b.Title, b.Summary, b.Type, b.Number, b.Year,
			b.URI, string(b.Relevance), b.Monitored, now, now).
		Suffix("RETURNING id")

	if err := s.queryRow(ctx, q, &b.ID); err != nil {
		return fmt.Errorf("failed to create bill %s: %w", b.Code, err)
	}
	b.CreatedAt = now
	b.UpdatedAt = now
	return nil
}

// PromoteBill turns a discovered bill into a monitored one, applying the
// curated title and relevance. A bill that is already monitored is a conflict.
func (s *SQLStore) PromoteBill(ctx context.Context, b *model.Bill) error {
	now := s.timestamp()
	q := s.builder().Update("bills").
		Set("title", b.Title).
		Set("relevance", string(b.Relevance)).
		Set("monitored", true).
		Set("updated_at", now).
		Where(sq.Eq{"code": b.Code, "monitored": false}).
		Suffix("RETURNING id, upstream_id, summary, type, number, year, uri, created_at")

	err := s.queryRow(ctx, q, &b.ID, &b.UpstreamID, &b.Summary, &b.Type, &b.Number, &b.Year, &b.URI, &b.CreatedAt)
	if errors.Is(err, ErrNotFound) {
		if _, getErr := s.GetBillByCode(ctx, b.Code); getErr == nil {
			return fmt.Errorf("%w: bill %s is already monitored", ErrConflict, b.Code)
		}
		return err
	}
	if err != nil {
		return fmt.Errorf("failed to promote bill %s: %w", b.Code, err)
	}

	b.Monitored = true
	b.UpdatedAt = now
	return nil
}

// UpsertBill inserts or refreshes the upstream fields of a bill. Curated
// fields (title, relevance, monitored) are only written on insert and are
// read back into b.
func (s *SQLStore) UpsertBill(ctx context.Context, b *model.Bill) error {
	now := s.timestamp()
	if b.Relevance == "" {
		b.Relevance = model.RelevanceLow
	}

	q := s.builder().Insert("bills").
		Columns("upstream_id", "code", "title", "summary", "type", "number", "year",
			"uri", "relevance", "monitored", "created_at", "updated_at").
		Values(b.UpstreamID, b.Code, b.Title, b.Summary, b.Type, b.Number, b.Year,
			b.URI, string(b.Relevance), b.Monitored, now, now).
		Suffix(`ON CONFLICT (code) DO UPDATE SET
			upstream_id = excluded.upstream_id,
			summary = excluded.summary,
			type = excluded.type,
			number = excluded.number,
			year = excluded.year,
			uri = excluded.uri,
			updated_at = excluded.updated_at
		RETURNING id, title, relevance, monitored, created_at`)

	var relevance string
	if err := s.queryRow(ctx, q, &b.ID, &b.Title, &relevance, &b.Monitored, &b.CreatedAt); err != nil {
		return fmt.Errorf("failed to upsert bill %s: %w", b.Code, err)
	}
	b.Relevance = model.Relevance(relevance)
	b.UpdatedAt = now
	return nil
}

// GetBill retrieves a bill by local id
func (s *SQLStore) GetBill(ctx context.Context, id int64) (*model.Bill, error) {
	return s.getBill(ctx, sq.Eq{"id": id})
}

// GetBillByCode retrieves a bill by its natural code
func (s *SQLStore) GetBillByCode(ctx context.Context, code string) (*model.Bill, error) {
	return s.getBill(ctx, sq.Eq{"code": code})
}

func (s *SQLStore) getBill(ctx context.Context, where sq.Eq) (*model.Bill, error) {
	q := s.builder().Select(billColumns...).From("bills").Where(where)

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	b, err := scanBill(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get bill: %w", err)
	}
	return b, nil
}

// QueryBills returns bills matching the filter ordered by code
func (s *SQLStore) QueryBills(ctx context.Context, f BillFilter) ([]model.Bill, error) {
	q := s.builder().Select(billColumns...).From("bills").OrderBy("code")

	if f.Type != "" {
		q = q.Where(sq.Eq{"type": f.Type})
	}
	if f.Year > 0 {
		q = q.Where(sq.Eq{"year": f.Year})
	}
	if f.Relevance != "" {
		q = q.Where(sq.Eq{"relevance": string(f.Relevance)})
	}
	if f.MonitoredOnly {
		q = q.Where(sq.Eq{"monitored": true})
	}
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}

	rows, err := s.query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to query bills: %w", err)
	}
	defer rows.Close()

	var bills []model.Bill
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bill: %w", err)
		}
		bills = append(bills, *b)
	}

	return bills, rows.Err()
}

// DeleteBill removes a bill together with the sessions and votes no other
// bill links to. Shared sessions move to another linked bill first.
func (s *SQLStore) DeleteBill(ctx context.Context, id int64) error {
	handover := s.builder().Update("voting_sessions").
		Set("bill_id", sq.Expr(`(SELECT MIN(bs.bill_id) FROM bill_sessions bs
			WHERE bs.session_id = voting_sessions.id AND bs.bill_id <> ?)`, id)).
		Where(sq.Eq{"bill_id": id}).
		Where(sq.Expr(`EXISTS (SELECT 1 FROM bill_sessions bs
			WHERE bs.session_id = voting_sessions.id AND bs.bill_id <> ?)`, id))
	if _, err := s.exec(ctx, handover); err != nil {
		return fmt.Errorf("failed to hand over sessions of bill %d: %w", id, err)
	}

	res, err := s.exec(ctx, s.builder().Delete("bills").Where(sq.Eq{"id": id}))
	if err != nil {
		return fmt.Errorf("failed to delete bill %d: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete bill %d: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanBill(row rowScanner) (*model.Bill, error) {
	var (
		b         model.Bill
		relevance string
	)
	err := row.Scan(
		&b.ID,
		&b.UpstreamID,
		&b.Code,
		&b.Title,
		&b.Summary,
		&b.Type,
		&b.Number,
		&b.Year,
		&b.URI,
		&relevance,
		&b.Monitored,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, wrapErr(err)
	}
	b.Relevance = model.Relevance(relevance)
	return &b, nil
}
