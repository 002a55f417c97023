package store

import (
	"context"
	"time"

	"github.com/Kayo-b/voto-db/internal/model"
)

// Passthrough is the no-cache backend: every lookup is absent and entity
// writes are discarded. Curated bill writes fail with ErrUnavailable since
// they would otherwise be silently lost.
type Passthrough struct{}

// NewPassthrough creates the no-cache backend
func NewPassthrough() *Passthrough {
	return &Passthrough{}
}

func (Passthrough) Name() string                   { return BackendPassthrough }
func (Passthrough) Ping(ctx context.Context) error { return nil }
func (Passthrough) Close() error                   { return nil }

func (Passthrough) EnsureLegislature(ctx context.Context, l *model.LegislativePeriod) error {
	return nil
}

func (Passthrough) GetLegislature(ctx context.Context, id int) (*model.LegislativePeriod, error) {
	return nil, ErrNotFound
}

func (Passthrough) UpsertParty(ctx context.Context, p *model.Party) error { return nil }

func (Passthrough) UpsertDeputy(ctx context.Context, d *model.Deputy) error { return nil }

func (Passthrough) EnsureDeputy(ctx context.Context, d *model.Deputy) error { return nil }

func (Passthrough) GetDeputy(ctx context.Context, id int64) (*model.Deputy, error) {
	return nil, ErrNotFound
}

func (Passthrough) QueryDeputies(ctx context.Context, f DeputyFilter) ([]model.Deputy, error) {
	return nil, nil
}

func (Passthrough) CreateBill(ctx context.Context, b *model.Bill) error { return ErrUnavailable }

func (Passthrough) PromoteBill(ctx context.Context, b *model.Bill) error { return ErrUnavailable }

func (Passthrough) UpsertBill(ctx context.Context, b *model.Bill) error { return nil }

func (Passthrough) GetBill(ctx context.Context, id int64) (*model.Bill, error) {
	return nil, ErrNotFound
}

func (Passthrough) GetBillByCode(ctx context.Context, code string) (*model.Bill, error) {
	return nil, ErrNotFound
}

func (Passthrough) QueryBills(ctx context.Context, f BillFilter) ([]model.Bill, error) {
	return nil, nil
}

func (Passthrough) DeleteBill(ctx context.Context, id int64) error { return ErrUnavailable }

func (Passthrough) UpsertSession(ctx context.Context, s *model.VotingSession) error { return nil }

func (Passthrough) ListSessions(ctx context.Context, billID int64) ([]model.VotingSession, error) {
	return nil, nil
}

func (Passthrough) RecentSessions(ctx context.Context, f RecentFilter) ([]model.SessionSummary, error) {
	return nil, nil
}

func (Passthrough) UpsertVote(ctx context.Context, v *model.Vote) error { return nil }

func (Passthrough) ListVotes(ctx context.Context, sessionID int64) ([]model.Vote, error) {
	return nil, nil
}

func (Passthrough) DeputyVotes(ctx context.Context, deputyID int64, limit int) ([]model.VoteRecord, error) {
	return nil, nil
}

func (Passthrough) LatestVoteChange(ctx context.Context, deputyID int64) (time.Time, error) {
	return time.Time{}, nil
}

func (Passthrough) GetStatistics(ctx context.Context, deputyID int64) (*model.DeputyStatistics, error) {
	return nil, ErrNotFound
}

func (Passthrough) UpsertStatistics(ctx context.Context, st *model.DeputyStatistics) error {
	return nil
}

func (Passthrough) ClearStatistics(ctx context.Context) error { return nil }

func (Passthrough) Counts(ctx context.Context) (model.StoreCounts, error) {
	return model.StoreCounts{}, nil
}

func (Passthrough) IsFresh(ctx context.Context, key string) (bool, error) { return false, nil }

func (Passthrough) MarkFresh(ctx context.Context, key, category string, ttl time.Duration) error {
	return nil
}

func (Passthrough) Invalidate(ctx context.Context, key string) error { return nil }

func (Passthrough) SweepExpired(ctx context.Context) (int64, error) { return 0, nil }

func (Passthrough) LedgerStats(ctx context.Context) (model.LedgerStats, error) {
	return model.LedgerStats{ByCategory: map[string]int{}}, nil
}

var (
	_ Backend = (*SQLStore)(nil)
	_ Backend = (*FileStore)(nil)
	_ Backend = (*Passthrough)(nil)
)
