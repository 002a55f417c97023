package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/Kayo-b/voto-db/internal/model"
)

var sessionColumns = []string{
	"s.id",
	"s.upstream_id",
	"s.bill_id",
	"s.occurred_at",
	"s.description",
	"s.organ",
	"s.outcome",
	"s.kind",
	"s.created_at",
	"s.updated_at",
}

// UpsertSession inserts or updates a voting session by upstream id and
// links it to vs.BillID. The first writer stays the primary bill shown in
// listings; every later bill that lists the session gets its own link.
func (s *SQLStore) UpsertSession(ctx context.Context, vs *model.VotingSession) error {
	now := s.timestamp()
	q := s.builder().Insert("voting_sessions").
		Columns("upstream_id", "bill_id", "occurred_at", "description", "organ",
			"outcome", "kind", "created_at", "updated_at").
		Values(vs.UpstreamID, vs.BillID, vs.OccurredAt.UTC(), vs.Description, vs.Organ,
			string(vs.Outcome), string(vs.Kind), now, now).
		Suffix(`ON CONFLICT (upstream_id) DO UPDATE SET
			occurred_at = excluded.occurred_at,
			description = excluded.description,
			organ = excluded.organ,
			outcome = excluded.outcome,
			kind = excluded.kind,
			updated_at = excluded.updated_at
		RETURNING id, created_at`)

	if err := s.queryRow(ctx, q, &vs.ID, &vs.CreatedAt); err != nil {
		return fmt.Errorf("failed to upsert voting session %s: %w", vs.UpstreamID, err)
	}
	vs.UpdatedAt = now

	link := s.builder().Insert("bill_sessions").
		Columns("bill_id", "session_id").
		Values(vs.BillID, vs.ID).
		Suffix("ON CONFLICT DO NOTHING")
	if _, err := s.exec(ctx, link); err != nil {
		return fmt.Errorf("failed to link voting session %s to bill %d: %w", vs.UpstreamID, vs.BillID, err)
	}
	return nil
}

// ListSessions returns the sessions linked to a bill, most recent first
func (s *SQLStore) ListSessions(ctx context.Context, billID int64) ([]model.VotingSession, error) {
	cols := append([]string{}, sessionColumns...)
	cols[2] = "bs.bill_id"

	q := s.builder().Select(cols...).
		From("voting_sessions s").
		Join("bill_sessions bs ON bs.session_id = s.id").
		Where(sq.Eq{"bs.bill_id": billID}).
		OrderBy("s.occurred_at DESC", "s.id")

	rows, err := s.query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions for bill %d: %w", billID, err)
	}
	defer rows.Close()

	var sessions []model.VotingSession
	for rows.Next() {
		var vs model.VotingSession
		if err := scanSession(rows, &vs); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, vs)
	}

	return sessions, rows.Err()
}

// RecentSessions lists sessions since a point in time with their bill and
// number of recorded votes
func (s *SQLStore) RecentSessions(ctx context.Context, f RecentFilter) ([]model.SessionSummary, error) {
	cols := append([]string{}, sessionColumns...)
	cols = append(cols,
		"b.code",
		"b.title",
		"(SELECT COUNT(*) FROM votes v WHERE v.session_id = s.id)",
	)

	q := s.builder().Select(cols...).
		From("voting_sessions s").
		Join("bills b ON b.id = s.bill_id").
		Where(sq.GtOrEq{"s.occurred_at": f.Since.UTC()}).
		OrderBy("s.occurred_at DESC", "s.id")

	if f.Kind != "" {
		q = q.Where(sq.Eq{"s.kind": string(f.Kind)})
	}
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}

	rows, err := s.query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent sessions: %w", err)
	}
	defer rows.Close()

	var summaries []model.SessionSummary
	for rows.Next() {
		var sum model.SessionSummary
		if err := scanSession(rows, &sum.Session, &sum.BillCode, &sum.BillTitle, &sum.VotesCount); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		summaries = append(summaries, sum)
	}

	return summaries, rows.Err()
}

// UpsertVote records a deputy's vote, overwriting a previous value for the
// same session. updated_at only moves when the value changes.
func (s *SQLStore) UpsertVote(ctx context.Context, v *model.Vote) error {
	now := s.timestamp()
	q := s.builder().Insert("votes").
		Columns("deputy_id", "session_id", "value", "created_at", "updated_at").
		Values(v.DeputyID, v.SessionID, string(v.Value), now, now).
		Suffix(`ON CONFLICT (deputy_id, session_id) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
		WHERE votes.value <> excluded.value
		RETURNING id, created_at, updated_at`)

	err := s.queryRow(ctx, q, &v.ID, &v.CreatedAt, &v.UpdatedAt)
	if errors.Is(err, ErrNotFound) {
		// unchanged row
		sel := s.builder().Select("id", "created_at", "updated_at").
			From("votes").
			Where(sq.Eq{"deputy_id": v.DeputyID, "session_id": v.SessionID})
		err = s.queryRow(ctx, sel, &v.ID, &v.CreatedAt, &v.UpdatedAt)
	}
	if err != nil {
		return fmt.Errorf("failed to upsert vote of deputy %d in session %d: %w", v.DeputyID, v.SessionID, err)
	}
	return nil
}

// ListVotes returns the votes recorded in a session
func (s *SQLStore) ListVotes(ctx context.Context, sessionID int64) ([]model.Vote, error) {
	q := s.builder().Select("id", "deputy_id", "session_id", "value", "created_at", "updated_at").
		From("votes").
		Where(sq.Eq{"session_id": sessionID}).
		OrderBy("deputy_id")

	rows, err := s.query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to list votes for session %d: %w", sessionID, err)
	}
	defer rows.Close()

	var votes []model.Vote
	for rows.Next() {
		var (
			v     model.Vote
			value string
		)
		if err := rows.Scan(&v.ID, &v.DeputyID, &v.SessionID, &value, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan vote: %w", err)
		}
		v.Value = model.VoteValue(value)
		votes = append(votes, v)
	}

	return votes, rows.Err()
}

// DeputyVotes returns a deputy's voting history, most recent first
func (s *SQLStore) DeputyVotes(ctx context.Context, deputyID int64, limit int) ([]model.VoteRecord, error) {
	q := s.builder().Select(
		"s.upstream_id",
		"s.occurred_at",
		"s.description",
		"s.organ",
		"s.kind",
		"s.outcome",
		"b.code",
		"b.title",
		"v.value",
	).
		From("votes v").
		Join("voting_sessions s ON s.id = v.session_id").
		Join("bills b ON b.id = s.bill_id").
		Where(sq.Eq{"v.deputy_id": deputyID}).
		OrderBy("s.occurred_at DESC", "s.id")

	if limit > 0 {
		q = q.Limit(uint64(limit))
	}

	rows, err := s.query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to list votes of deputy %d: %w", deputyID, err)
	}
	defer rows.Close()

	var records []model.VoteRecord
	for rows.Next() {
		var (
			r                    model.VoteRecord
			kind, outcome, value string
		)
		err := rows.Scan(
			&r.SessionUpstreamID,
			&r.OccurredAt,
			&r.Description,
			&r.Organ,
			&kind,
			&outcome,
			&r.BillCode,
			&r.BillTitle,
			&value,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan vote record: %w", err)
		}
		r.Kind = model.SessionKind(kind)
		r.Outcome = model.Outcome(outcome)
		r.Value = model.VoteValue(value)
		records = append(records, r)
	}

	return records, rows.Err()
}

// LatestVoteChange returns when any of the deputy's votes last changed,
// or the zero time when none are stored
func (s *SQLStore) LatestVoteChange(ctx context.Context, deputyID int64) (time.Time, error) {
	q := s.builder().Select("updated_at").
		From("votes").
		Where(sq.Eq{"deputy_id": deputyID}).
		OrderBy("updated_at DESC").
		Limit(1)

	var t time.Time
	err := s.queryRow(ctx, q, &t)
	if errors.Is(err, ErrNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get latest vote change of deputy %d: %w", deputyID, err)
	}
	return t, nil
}

func scanSession(row rowScanner, vs *model.VotingSession, extra ...any) error {
	var outcome, kind string
	dest := []any{
		&vs.ID,
		&vs.UpstreamID,
		&vs.BillID,
		&vs.OccurredAt,
		&vs.Description,
		&vs.Organ,
		&outcome,
		&kind,
		&vs.CreatedAt,
		&vs.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return wrapErr(err)
	}
	vs.Outcome = model.Outcome(outcome)
	vs.Kind = model.SessionKind(kind)
	return nil
}
