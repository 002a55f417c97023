package store

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/bytedance/sonic"

	"github.com/Kayo-b/voto-db/internal/model"
)

// GetStatistics retrieves the cached statistics of a deputy
func (s *SQLStore) GetStatistics(ctx context.Context, deputyID int64) (*model.DeputyStatistics, error) {
	q := s.builder().Select(
		"id", "deputy_id", "total_analyzed", "favorable", "contrary", "abstentions",
		"obstructions", "absences", "attendance", "bills_analyzed", "bills_attempted",
		"success_rate", "include_all", "history", "computed_at",
	).
		From("deputy_statistics").
		Where(sq.Eq{"deputy_id": deputyID})

	var (
		st      model.DeputyStatistics
		history string
	)
	err := s.queryRow(ctx, q,
		&st.ID,
		&st.DeputyID,
		&st.TotalAnalyzed,
		&st.Favorable,
		&st.Contrary,
		&st.Abstentions,
		&st.Obstructions,
		&st.Absences,
		&st.Attendance,
		&st.BillsAnalyzed,
		&st.BillsAttempted,
		&st.SuccessRate,
		&st.IncludeAll,
		&history,
		&st.ComputedAt,
	)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get statistics of deputy %d: %w", deputyID, err)
	}

	if err := sonic.UnmarshalString(history, &st.History); err != nil {
		return nil, fmt.Errorf("failed to decode history of deputy %d: %w", deputyID, err)
	}
	return &st, nil
}

// UpsertStatistics replaces the statistics row of a deputy
func (s *SQLStore) UpsertStatistics(ctx context.Context, st *model.DeputyStatistics) error {
	history, err := sonic.MarshalString(st.History)
	if err != nil {
		return fmt.Errorf("failed to encode history of deputy %d: %w", st.DeputyID, err)
	}
	if st.ComputedAt.IsZero() {
		st.ComputedAt = s.timestamp()
	}

	q := s.builder().Insert("deputy_statistics").
		Columns("deputy_id", "total_analyzed", "favorable", "contrary", "abstentions",
			"obstructions", "absences", "attendance", "bills_analyzed", "bills_attempted",
			"success_rate", "include_all", "history", "computed_at").
		Values(st.DeputyID, st.TotalAnalyzed, st.Favorable, st.Contrary, st.Abstentions,
			st.Obstructions, st.Absences, st.Attendance, st.BillsAnalyzed, st.BillsAttempted,
			st.SuccessRate, st.IncludeAll, history, st.ComputedAt.UTC()).
		Suffix(`ON CONFLICT (deputy_id) DO UPDATE SET
			total_analyzed = excluded.total_analyzed,
			favorable = excluded.favorable,
			contrary = excluded.contrary,
			abstentions = excluded.abstentions,
			obstructions = excluded.obstructions,
			absences = excluded.absences,
			attendance = excluded.attendance,
			bills_analyzed = excluded.bills_analyzed,
			bills_attempted = excluded.bills_attempted,
			success_rate = excluded.success_rate,
			include_all = excluded.include_all,
			history = excluded.history,
			computed_at = excluded.computed_at
		RETURNING id`)

	if err := s.queryRow(ctx, q, &st.ID); err != nil {
		return fmt.Errorf("failed to upsert statistics of deputy %d: %w", st.DeputyID, err)
	}
	return nil
}

// ClearStatistics drops every stored statistics row
func (s *SQLStore) ClearStatistics(ctx context.Context) error {
	if _, err := s.exec(ctx, s.builder().Delete("deputy_statistics")); err != nil {
		return fmt.Errorf("failed to clear statistics: %w", err)
	}
	return nil
}
