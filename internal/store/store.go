package store

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/Kayo-b/voto-db/internal/model"
)

var (
	// ErrNotFound is returned when an entity does not exist
	ErrNotFound = errors.New("entity not found")
	// ErrConflict is returned when a natural key is already taken
	ErrConflict = errors.New("entity already exists")
	// ErrIntegrity is returned when a child row references a missing parent
	ErrIntegrity = errors.New("referenced parent does not exist")
	// ErrUnavailable is returned when the backend cannot persist curated data
	ErrUnavailable = errors.New("store unavailable")
)

// Backend names accepted by configuration
const (
	BackendSQL         = "sql"
	BackendFile        = "file"
	BackendPassthrough = "passthrough"
)

// DeputyFilter narrows a deputy query
type DeputyFilter struct {
	Name  string
	Party string
	State string
	Limit int
}

// BillFilter narrows a bill query
type BillFilter struct {
	Type          string
	Year          int
	Relevance     model.Relevance
	MonitoredOnly bool
	Limit         int
}

// RecentFilter narrows the recent voting sessions listing
type RecentFilter struct {
	Since time.Time
	Kind  model.SessionKind
	Limit int
}

// EntityStore persists the domain entities with upsert semantics.
// Gets return ErrNotFound on absence; child writes with a missing parent
// return ErrIntegrity.
type EntityStore interface {
	EnsureLegislature(ctx context.Context, l *model.LegislativePeriod) error
	GetLegislature(ctx context.Context, id int) (*model.LegislativePeriod, error)
	UpsertParty(ctx context.Context, p *model.Party) error

	UpsertDeputy(ctx context.Context, d *model.Deputy) error
	// EnsureDeputy inserts a summary row that is stale until the full
	// profile is upserted. Existing rows are left untouched.
	EnsureDeputy(ctx context.Context, d *model.Deputy) error
	GetDeputy(ctx context.Context, id int64) (*model.Deputy, error)
	QueryDeputies(ctx context.Context, f DeputyFilter) ([]model.Deputy, error)

	CreateBill(ctx context.Context, b *model.Bill) error
	PromoteBill(ctx context.Context, b *model.Bill) error
	UpsertBill(ctx context.Context, b *model.Bill) error
	GetBill(ctx context.Context, id int64) (*model.Bill, error)
	GetBillByCode(ctx context.Context, code string) (*model.Bill, error)
	QueryBills(ctx context.Context, f BillFilter) ([]model.Bill, error)
	DeleteBill(ctx context.Context, id int64) error

	UpsertSession(ctx context.Context, s *model.VotingSession) error
	ListSessions(ctx context.Context, billID int64) ([]model.VotingSession, error)
	RecentSessions(ctx context.Context, f RecentFilter) ([]model.SessionSummary, error)

	UpsertVote(ctx context.Context, v *model.Vote) error
	ListVotes(ctx context.Context, sessionID int64) ([]model.Vote, error)
	DeputyVotes(ctx context.Context, deputyID int64, limit int) ([]model.VoteRecord, error)
	LatestVoteChange(ctx context.Context, deputyID int64) (time.Time, error)

	GetStatistics(ctx context.Context, deputyID int64) (*model.DeputyStatistics, error)
	UpsertStatistics(ctx context.Context, st *model.DeputyStatistics) error
	// ClearStatistics drops every stored statistics row
	ClearStatistics(ctx context.Context) error

	Counts(ctx context.Context) (model.StoreCounts, error)
}

// Ledger tracks freshness of collection queries
type Ledger interface {
	IsFresh(ctx context.Context, key string) (bool, error)
	MarkFresh(ctx context.Context, key, category string, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
	SweepExpired(ctx context.Context) (int64, error)
	LedgerStats(ctx context.Context) (model.LedgerStats, error)
}

// Backend is a complete storage implementation selected at startup
type Backend interface {
	EntityStore
	Ledger
	Name() string
	Ping(ctx context.Context) error
	Close() error
}

// Option configures a backend
type Option func(*options)

type options struct {
	now        func() time.Time
	logger     *zap.Logger
	flushEvery time.Duration
}

// WithClock overrides the clock used for timestamps and expiry checks
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithLogger sets the logger used for background work
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithFlushInterval sets how often a file store writes pending changes.
// Non-positive values keep the default.
func WithFlushInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.flushEvery = d
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		now:        time.Now,
		logger:     zap.NewNop(),
		flushEvery: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
