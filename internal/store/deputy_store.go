package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/Kayo-b/voto-db/internal/model"
)

var deputyColumns = []string{
	"d.id",
	"d.legal_name",
	"d.parliamentary_name",
	"d.state",
	"d.photo_url",
	"d.email",
	"d.status",
	"d.uri",
	"d.party_id",
	"p.abbreviation",
	"d.legislature_id",
	"d.created_at",
	"d.updated_at",
}

// EnsureLegislature inserts a legislative period unless it already exists
func (s *SQLStore) EnsureLegislature(ctx context.Context, l *model.LegislativePeriod) error {
	now := s.timestamp()
	q := s.builder().Insert("legislatures").
		Columns("id", "start_date", "end_date", "created_at").
		Values(l.ID, l.Start.UTC(), l.End.UTC(), now).
		Suffix("ON CONFLICT (id) DO NOTHING")

	if _, err := s.exec(ctx, q); err != nil {
		return fmt.Errorf("failed to ensure legislature %d: %w", l.ID, err)
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
	return nil
}

// GetLegislature retrieves a legislative period by number
func (s *SQLStore) GetLegislature(ctx context.Context, id int) (*model.LegislativePeriod, error) {
	q := s.builder().Select("id", "start_date", "end_date", "created_at").
		From("legislatures").
		Where(sq.Eq{"id": id})

	var l model.LegislativePeriod
	if err := s.queryRow(ctx, q, &l.ID, &l.Start, &l.End, &l.CreatedAt); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get legislature %d: %w", id, err)
	}
	return &l, nil
}

// UpsertParty inserts or updates a party by abbreviation. Blank names and
// URIs never overwrite known ones.
func (s *SQLStore) UpsertParty(ctx context.Context, p *model.Party) error {
	now := s.timestamp()
	q := s.builder().Insert("parties").
		Columns("abbreviation", "name", "uri", "created_at", "updated_at").
		Values(p.Abbreviation, p.Name, p.URI, now, now).
		Suffix(`ON CONFLICT (abbreviation) DO UPDATE SET
			name = CASE WHEN excluded.name <> '' THEN excluded.name ELSE parties.name END,
			uri = CASE WHEN excluded.uri <> '' THEN excluded.uri ELSE parties.uri END,
			updated_at = excluded.updated_at
		RETURNING id, name, created_at`)

	if err := s.queryRow(ctx, q, &p.ID, &p.Name, &p.CreatedAt); err != nil {
		return fmt.Errorf("failed to upsert party %s: %w", p.Abbreviation, err)
	}
	p.UpdatedAt = now
	return nil
}

// UpsertDeputy inserts or updates a full deputy profile and bumps updated_at
func (s *SQLStore) UpsertDeputy(ctx context.Context, d *model.Deputy) error {
	now := s.timestamp()
	q := s.builder().Insert("deputies").
		Columns("id", "legal_name", "parliamentary_name", "state", "photo_url",
			"email", "status", "uri", "party_id", "legislature_id", "created_at", "updated_at").
		Values(d.ID, d.LegalName, d.ParliamentaryName, d.State, d.PhotoURL,
			d.Email, d.Status, d.URI, d.PartyID, d.LegislatureID, now, now).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			legal_name = excluded.legal_name,
			parliamentary_name = excluded.parliamentary_name,
			state = excluded.state,
			photo_url = excluded.photo_url,
			email = excluded.email,
			status = excluded.status,
			uri = excluded.uri,
			party_id = excluded.party_id,
			legislature_id = excluded.legislature_id,
			updated_at = excluded.updated_at
		RETURNING created_at`)

	if err := s.queryRow(ctx, q, &d.CreatedAt); err != nil {
		return fmt.Errorf("failed to upsert deputy %d: %w", d.ID, err)
	}
	d.UpdatedAt = now
	return nil
}

// EnsureDeputy inserts a summary row with a zero updated_at
func (s *SQLStore) EnsureDeputy(ctx context.Context, d *model.Deputy) error {
	now := s.timestamp()
	q := s.builder().Insert("deputies").
		Columns("id", "legal_name", "parliamentary_name", "state", "photo_url",
			"email", "status", "uri", "party_id", "legislature_id", "created_at", "updated_at").
		Values(d.ID, d.LegalName, d.ParliamentaryName, d.State, d.PhotoURL,
			d.Email, d.Status, d.URI, d.PartyID, d.LegislatureID, now, zeroTime).
		Suffix("ON CONFLICT (id) DO NOTHING")

	if _, err := s.exec(ctx, q); err != nil {
		return fmt.Errorf("failed to ensure deputy %d: %w", d.ID, err)
	}
	return nil
}

// GetDeputy retrieves a deputy by upstream id
func (s *SQLStore) GetDeputy(ctx context.Context, id int64) (*model.Deputy, error) {
	q := s.builder().Select(deputyColumns...).
		From("deputies d").
		Join("parties p ON p.id = d.party_id").
		Where(sq.Eq{"d.id": id})

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	d, err := scanDeputy(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get deputy %d: %w", id, err)
	}
	return d, nil
}

// QueryDeputies returns deputies matching the filter ordered by name
func (s *SQLStore) QueryDeputies(ctx context.Context, f DeputyFilter) ([]model.Deputy, error) {
	q := s.builder().Select(deputyColumns...).
		From("deputies d").
		Join("parties p ON p.id = d.party_id").
		OrderBy("d.parliamentary_name", "d.id")

	if f.Name != "" {
		pattern := "%" + strings.ToLower(f.Name) + "%"
		q = q.Where(sq.Or{
			sq.Like{"LOWER(d.parliamentary_name)": pattern},
			sq.Like{"LOWER(d.legal_name)": pattern},
		})
	}
	if f.Party != "" {
		q = q.Where(sq.Eq{"p.abbreviation": strings.ToUpper(f.Party)})
	}
	if f.State != "" {
		q = q.Where(sq.Eq{"d.state": strings.ToUpper(f.State)})
	}
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}

	rows, err := s.query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to query deputies: %w", err)
	}
	defer rows.Close()

	var deputies []model.Deputy
	for rows.Next() {
		d, err := scanDeputy(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deputy: %w", err)
		}
		deputies = append(deputies, *d)
	}

	return deputies, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDeputy(row rowScanner) (*model.Deputy, error) {
	var d model.Deputy
	err := row.Scan(
		&d.ID,
		&d.LegalName,
		&d.ParliamentaryName,
		&d.State,
		&d.PhotoURL,
		&d.Email,
		&d.Status,
		&d.URI,
		&d.PartyID,
		&d.PartyAbbreviation,
		&d.LegislatureID,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrapErr(err)
	}
	return &d, nil
}
