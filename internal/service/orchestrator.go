package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/Kayo-b/voto-db/internal/model"
	"github.com/Kayo-b/voto-db/internal/store"
)

// Ledger categories
const (
	categoryDeputies = "deputados"
	categorySessions = "votacoes"
	categoryRecent   = "recentes"
)

const degradedWarning = "upstream unavailable, serving stored data that may be outdated"

// Upstream is the read-only source of truth the orchestrator syncs from
type Upstream interface {
	FetchDeputy(ctx context.Context, id int64) (*model.Deputy, error)
	SearchDeputies(ctx context.Context, q model.DeputyQuery) ([]model.Deputy, error)
	FetchLegislature(ctx context.Context, id int) (*model.LegislativePeriod, error)
	FindBill(ctx context.Context, billType string, number, year int) (*model.Bill, error)
	FetchBillSessions(ctx context.Context, billUpstreamID int64) ([]model.VotingSession, error)
	FetchSessionVotes(ctx context.Context, sessionID string) ([]model.Ballot, error)
	FetchSession(ctx context.Context, sessionID string) (*model.SessionDetail, error)
	FetchRecentSessions(ctx context.Context, from, to time.Time) ([]model.VotingSession, error)
}

// TTLConfig holds freshness windows per resource
type TTLConfig struct {
	Deputy      time.Duration
	Bill        time.Duration
	Search      time.Duration
	Sessions    time.Duration
	RecentVotes time.Duration
}

// OrchestratorConfig controls the sync layer
type OrchestratorConfig struct {
	TTL               TTLConfig
	FetchTimeout      time.Duration
	Concurrency       int
	RecentMaxSessions int
	Debug             bool
}

// DefaultOrchestratorConfig returns the production defaults
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		TTL: TTLConfig{
			Deputy:      24 * time.Hour,
			Bill:        24 * time.Hour,
			Search:      24 * time.Hour,
			Sessions:    24 * time.Hour,
			RecentVotes: 15 * time.Minute,
		},
		FetchTimeout:      2 * time.Minute,
		Concurrency:       4,
		RecentMaxSessions: 40,
	}
}

// Result carries resolved data with its provenance
type Result[T any] struct {
	Data      T
	FromCache bool
	Degraded  bool
	Warning   string
}

// Orchestrator decides, per resource, whether stored data can be served or
// must be fetched upstream and persisted first
type Orchestrator struct {
	backend    store.Backend
	upstream   Upstream
	cfg        OrchestratorConfig
	logger     *zap.Logger
	metrics    *Metrics
	group      singleflight.Group
	now        func() time.Time
	persisting bool
}

// OrchestratorOption configures an Orchestrator
type OrchestratorOption func(*Orchestrator)

// WithClock overrides the clock used for freshness checks
func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// NewOrchestrator creates a new Orchestrator
func NewOrchestrator(backend store.Backend, upstream Upstream, cfg OrchestratorConfig, logger *zap.Logger, metrics *Metrics, opts ...OrchestratorOption) *Orchestrator {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultOrchestratorConfig().FetchTimeout
	}

	o := &Orchestrator{
		backend:    backend,
		upstream:   upstream,
		cfg:        cfg,
		logger:     logger.Named("orchestrator"),
		metrics:    metrics,
		now:        time.Now,
		persisting: backend.Name() != store.BackendPassthrough,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// resolution describes how to look up, judge and refetch one resource
type resolution[T any] struct {
	resource string
	key      string
	// lookup returns the stored copy and whether one exists
	lookup func(ctx context.Context) (T, bool, error)
	fresh  func(ctx context.Context, stored T) (bool, error)
	fetch  func(ctx context.Context) (T, error)
}

type flightResult[T any] struct {
	data   T
	cached bool
}

// resolve runs the absent/fresh/stale/refreshing state machine for one key
func resolve[T any](ctx context.Context, o *Orchestrator, force bool, r resolution[T]) (Result[T], error) {
	stored, found := lookupStored(ctx, o, r)

	if !force && isFresh(ctx, o, r, stored) {
		o.metrics.cacheLookup(r.resource, "hit")
		return Result[T]{Data: stored, FromCache: true}, nil
	}

	fr, shared, err := flight(ctx, o, r, force)
	if err == nil && force && fr.cached {
		// joined a flight that was satisfied from the store; a forced
		// request always goes upstream
		fr, shared, err = flight(ctx, o, r, true)
	}
	if shared {
		o.metrics.sharedFetch(r.resource)
	}

	if err != nil {
		if ctx.Err() != nil {
			return Result[T]{}, ctx.Err()
		}
		if found {
			o.metrics.cacheLookup(r.resource, "degraded")
			o.logger.Warn("serving stale data after upstream failure",
				zap.String("key", r.key),
				zap.Error(err),
			)
			return Result[T]{Data: stored, FromCache: true, Degraded: true, Warning: degradedWarning}, nil
		}
		o.metrics.cacheLookup(r.resource, "error")
		return Result[T]{}, err
	}

	switch {
	case fr.cached:
		o.metrics.cacheLookup(r.resource, "hit")
	case found:
		o.metrics.cacheLookup(r.resource, "stale")
	default:
		o.metrics.cacheLookup(r.resource, "miss")
	}
	return Result[T]{Data: fr.data, FromCache: fr.cached}, nil
}

// flight runs the fetch for r.key at most once at a time. The fetch is
// detached from the caller's context so that a cancelled caller stops
// waiting while the fetch still commits.
func flight[T any](ctx context.Context, o *Orchestrator, r resolution[T], force bool) (flightResult[T], bool, error) {
	ch := o.group.DoChan(r.key, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.FetchTimeout)
		defer cancel()

		if !force {
			if stored, _ := lookupStored(fctx, o, r); isFresh(fctx, o, r, stored) {
				return flightResult[T]{data: stored, cached: true}, nil
			}
		}

		data, err := r.fetch(fctx)
		if err != nil {
			return nil, err
		}
		return flightResult[T]{data: data}, nil
	})

	select {
	case <-ctx.Done():
		return flightResult[T]{}, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return flightResult[T]{}, res.Shared, res.Err
		}
		return res.Val.(flightResult[T]), res.Shared, nil
	}
}

// lookupStored treats a failing store as an absent copy
func lookupStored[T any](ctx context.Context, o *Orchestrator, r resolution[T]) (T, bool) {
	stored, found, err := r.lookup(ctx)
	if err != nil {
		o.logger.Warn("store lookup failed, treating as absent",
			zap.String("key", r.key),
			zap.Error(err),
		)
		var zero T
		return zero, false
	}
	return stored, found
}

func isFresh[T any](ctx context.Context, o *Orchestrator, r resolution[T], stored T) bool {
	fresh, err := r.fresh(ctx, stored)
	if err != nil {
		o.logger.Warn("freshness check failed, treating as stale",
			zap.String("key", r.key),
			zap.Error(err),
		)
		return false
	}
	return fresh
}

// GetDeputy returns a deputy's full profile
func (o *Orchestrator) GetDeputy(ctx context.Context, id int64, force bool) (Result[model.Deputy], error) {
	return resolve(ctx, o, force, resolution[model.Deputy]{
		resource: "deputado",
		key:      fmt.Sprintf("deputado:%d", id),
		lookup: func(ctx context.Context) (model.Deputy, bool, error) {
			d, err := o.backend.GetDeputy(ctx, id)
			if errors.Is(err, store.ErrNotFound) {
				return model.Deputy{}, false, nil
			}
			if err != nil {
				return model.Deputy{}, false, err
			}
			return *d, true, nil
		},
		fresh: func(_ context.Context, d model.Deputy) (bool, error) {
			return o.withinTTL(d.UpdatedAt, o.cfg.TTL.Deputy), nil
		},
		fetch: func(ctx context.Context) (model.Deputy, error) {
			d, err := o.upstream.FetchDeputy(ctx, id)
			if err != nil {
				return model.Deputy{}, err
			}
			persisted, _ := o.persistDeputies(ctx, []model.Deputy{*d}, true)
			return persisted[0], nil
		},
	})
}

// SearchKey is the ledger key of a deputy search
func SearchKey(f store.DeputyFilter) string {
	return fmt.Sprintf("deputados:busca:%s|%s|%s",
		foldText(f.Name),
		strings.ToUpper(strings.TrimSpace(f.Party)),
		strings.ToUpper(strings.TrimSpace(f.State)),
	)
}

// SearchDeputies returns deputies matching the filter
func (o *Orchestrator) SearchDeputies(ctx context.Context, f store.DeputyFilter, force bool) (Result[[]model.Deputy], error) {
	key := SearchKey(f)
	return resolve(ctx, o, force, resolution[[]model.Deputy]{
		resource: "deputados",
		key:      key,
		lookup: func(ctx context.Context) ([]model.Deputy, bool, error) {
			deputies, err := o.backend.QueryDeputies(ctx, f)
			if err != nil {
				return nil, false, err
			}
			return deputies, len(deputies) > 0, nil
		},
		fresh: func(ctx context.Context, _ []model.Deputy) (bool, error) {
			return o.backend.IsFresh(ctx, key)
		},
		fetch: func(ctx context.Context) ([]model.Deputy, error) {
			found, err := o.upstream.SearchDeputies(ctx, model.DeputyQuery{
				Name:  f.Name,
				Party: f.Party,
				State: f.State,
			})
			if err != nil {
				return nil, err
			}

			persisted, ok := o.persistDeputies(ctx, found, false)
			if ok {
				o.markFresh(ctx, key, categoryDeputies, o.cfg.TTL.Search)
			}

			sort.SliceStable(persisted, func(i, j int) bool {
				return persisted[i].ParliamentaryName < persisted[j].ParliamentaryName
			})
			if f.Limit > 0 && len(persisted) > f.Limit {
				persisted = persisted[:f.Limit]
			}
			return persisted, nil
		},
	})
}

// GetBill returns a bill by its "TYPE NUMBER/YEAR" code
func (o *Orchestrator) GetBill(ctx context.Context, code string, force bool) (Result[model.Bill], error) {
	billType, number, year, err := ParseBillCode(code)
	if err != nil {
		return Result[model.Bill]{}, err
	}
	code = model.BillCode(billType, number, year)

	return resolve(ctx, o, force, resolution[model.Bill]{
		resource: "proposicao",
		key:      "proposicao:" + code,
		lookup: func(ctx context.Context) (model.Bill, bool, error) {
			b, err := o.backend.GetBillByCode(ctx, code)
			if errors.Is(err, store.ErrNotFound) {
				return model.Bill{}, false, nil
			}
			if err != nil {
				return model.Bill{}, false, err
			}
			return *b, true, nil
		},
		fresh: func(_ context.Context, b model.Bill) (bool, error) {
			return o.withinTTL(b.UpdatedAt, o.cfg.TTL.Bill), nil
		},
		fetch: func(ctx context.Context) (model.Bill, error) {
			b, err := o.upstream.FindBill(ctx, billType, number, year)
			if err != nil {
				return model.Bill{}, err
			}
			if o.persisting {
				o.writeOK(o.backend.UpsertBill(ctx, b), "bill", zap.String("code", b.Code))
			}
			return *b, nil
		},
	})
}

// SessionsKey is the ledger key of a bill's voting sessions
func SessionsKey(code string) string {
	return "votacoes:proposicao:" + code
}

// BillSessions returns a bill's voting sessions with their votes, most
// recent first
func (o *Orchestrator) BillSessions(ctx context.Context, bill model.Bill, force bool) (Result[[]model.SessionVotes], error) {
	key := SessionsKey(bill.Code)
	return resolve(ctx, o, force, resolution[[]model.SessionVotes]{
		resource: "votacoes",
		key:      key,
		lookup: func(ctx context.Context) ([]model.SessionVotes, bool, error) {
			if bill.ID == 0 {
				return nil, false, nil
			}
			sessions, err := o.backend.ListSessions(ctx, bill.ID)
			if err != nil {
				return nil, false, err
			}
			out := make([]model.SessionVotes, 0, len(sessions))
			for _, s := range sessions {
				votes, err := o.backend.ListVotes(ctx, s.ID)
				if err != nil {
					return nil, false, err
				}
				out = append(out, model.SessionVotes{Session: s, Votes: votes})
			}
			return out, len(out) > 0, nil
		},
		fresh: func(ctx context.Context, _ []model.SessionVotes) (bool, error) {
			return o.backend.IsFresh(ctx, key)
		},
		fetch: func(ctx context.Context) ([]model.SessionVotes, error) {
			fetched, err := o.fetchSessions(ctx, bill)
			if err != nil {
				return nil, err
			}
			return o.persistSessions(ctx, bill, fetched), nil
		},
	})
}

// fetchedSession is an upstream session with its ballots, not yet persisted
type fetchedSession struct {
	session model.VotingSession
	ballots []model.Ballot
}

// fetchSessions reads a bill's sessions and their ballots from upstream
func (o *Orchestrator) fetchSessions(ctx context.Context, bill model.Bill) ([]fetchedSession, error) {
	if bill.UpstreamID == 0 {
		return nil, NewRejectedError(422, "bill %s has no upstream identifier", bill.Code)
	}

	sessions, err := o.upstream.FetchBillSessions(ctx, bill.UpstreamID)
	if err != nil {
		return nil, err
	}

	fetched := make([]fetchedSession, len(sessions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Concurrency)
	for i, s := range sessions {
		g.Go(func() error {
			ballots, err := o.upstream.FetchSessionVotes(gctx, s.UpstreamID)
			if err != nil {
				return fmt.Errorf("votes of session %s: %w", s.UpstreamID, err)
			}
			fetched[i] = fetchedSession{session: s, ballots: ballots}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(fetched, func(i, j int) bool {
		return fetched[i].session.OccurredAt.After(fetched[j].session.OccurredAt)
	})
	return fetched, nil
}

// persistSessions writes fetched sessions under bill and marks the
// collection fresh when every write succeeded
func (o *Orchestrator) persistSessions(ctx context.Context, bill model.Bill, fetched []fetchedSession) []model.SessionVotes {
	out := make([]model.SessionVotes, 0, len(fetched))
	complete := true
	for _, fs := range fetched {
		sv, ok := o.persistSessionVotes(ctx, bill, fs)
		complete = complete && ok
		out = append(out, sv)
	}
	if complete {
		o.markFresh(ctx, SessionsKey(bill.Code), categorySessions, o.cfg.TTL.Sessions)
	}
	return out
}

// persistSessionVotes writes a session and its votes, parents first
func (o *Orchestrator) persistSessionVotes(ctx context.Context, bill model.Bill, fs fetchedSession) (model.SessionVotes, bool) {
	session := fs.session
	session.BillID = bill.ID

	deputies := make([]model.Deputy, len(fs.ballots))
	for i, b := range fs.ballots {
		deputies[i] = b.Deputy
	}
	persisted, ok := o.persistDeputies(ctx, deputies, false)

	if o.persisting {
		if !o.writeOK(o.backend.UpsertSession(ctx, &session), "session", zap.String("session", session.UpstreamID)) {
			ok = false
		}
	}

	votes := make([]model.Vote, 0, len(fs.ballots))
	for i, b := range fs.ballots {
		v := model.Vote{
			DeputyID:  persisted[i].ID,
			SessionID: session.ID,
			Value:     b.Value,
		}
		if o.persisting && session.ID != 0 {
			if !o.writeOK(o.backend.UpsertVote(ctx, &v), "vote",
				zap.String("session", session.UpstreamID),
				zap.Int64("deputy", v.DeputyID),
			) {
				ok = false
			}
		}
		votes = append(votes, v)
	}
	return model.SessionVotes{Session: session, Votes: votes}, ok
}

// persistDeputies writes legislatures and parties before the deputies that
// reference them. full selects a profile upsert over a summary insert.
func (o *Orchestrator) persistDeputies(ctx context.Context, deputies []model.Deputy, full bool) ([]model.Deputy, bool) {
	out := make([]model.Deputy, len(deputies))
	copy(out, deputies)
	if !o.persisting || len(out) == 0 {
		return out, true
	}

	ok := true
	legislatures := make(map[int]bool)
	parties := make(map[string]int64)
	for i := range out {
		d := &out[i]
		if d.LegislatureID != 0 && !legislatures[d.LegislatureID] {
			legislatures[d.LegislatureID] = o.ensureLegislature(ctx, d.LegislatureID)
		}

		partyID, seen := parties[d.PartyAbbreviation]
		if !seen {
			p := model.Party{Abbreviation: d.PartyAbbreviation, URI: d.PartyURI}
			if o.writeOK(o.backend.UpsertParty(ctx, &p), "party", zap.String("party", p.Abbreviation)) {
				partyID = p.ID
			}
			parties[d.PartyAbbreviation] = partyID
		}
		d.PartyID = partyID

		var err error
		if full {
			err = o.backend.UpsertDeputy(ctx, d)
		} else {
			err = o.backend.EnsureDeputy(ctx, d)
		}
		if !o.writeOK(err, "deputy", zap.Int64("deputy", d.ID)) {
			ok = false
		}
	}
	return out, ok
}

// ensureLegislature stores a legislature the first time it is referenced
func (o *Orchestrator) ensureLegislature(ctx context.Context, id int) bool {
	if _, err := o.backend.GetLegislature(ctx, id); err == nil {
		return true
	}

	l, err := o.upstream.FetchLegislature(ctx, id)
	if err != nil {
		o.logger.Warn("legislature lookup failed, storing without dates",
			zap.Int("legislature", id),
			zap.Error(err),
		)
		l = &model.LegislativePeriod{ID: id}
	}
	return o.writeOK(o.backend.EnsureLegislature(ctx, l), "legislature", zap.Int("legislature", id))
}

// RecentVotes lists voting sessions held in the last days, optionally of
// one kind
func (o *Orchestrator) RecentVotes(ctx context.Context, days int, kind model.SessionKind, force bool) (Result[[]model.SessionSummary], error) {
	if days < 1 {
		days = 1
	}
	key := fmt.Sprintf("votacoes:recentes:%d", days)

	res, err := resolve(ctx, o, force, resolution[[]model.SessionSummary]{
		resource: "recentes",
		key:      key,
		lookup: func(ctx context.Context) ([]model.SessionSummary, bool, error) {
			summaries, err := o.backend.RecentSessions(ctx, store.RecentFilter{
				Since: o.now().AddDate(0, 0, -days),
				Limit: o.cfg.RecentMaxSessions,
			})
			if err != nil {
				return nil, false, err
			}
			return summaries, len(summaries) > 0, nil
		},
		fresh: func(ctx context.Context, _ []model.SessionSummary) (bool, error) {
			return o.backend.IsFresh(ctx, key)
		},
		fetch: func(ctx context.Context) ([]model.SessionSummary, error) {
			return o.fetchRecent(ctx, key, days)
		},
	})
	if err != nil {
		return res, err
	}

	if kind != "" {
		filtered := make([]model.SessionSummary, 0, len(res.Data))
		for _, s := range res.Data {
			if s.Session.Kind == kind {
				filtered = append(filtered, s)
			}
		}
		res.Data = filtered
	}
	return res, nil
}

func (o *Orchestrator) fetchRecent(ctx context.Context, key string, days int) ([]model.SessionSummary, error) {
	now := o.now()
	sessions, err := o.upstream.FetchRecentSessions(ctx, now.AddDate(0, 0, -days), now)
	if err != nil {
		return nil, err
	}
	if o.cfg.RecentMaxSessions > 0 && len(sessions) > o.cfg.RecentMaxSessions {
		sessions = sessions[:o.cfg.RecentMaxSessions]
	}

	summaries := make([]*model.SessionSummary, len(sessions))
	errs := make([]error, len(sessions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Concurrency)
	for i, s := range sessions {
		g.Go(func() error {
			summaries[i], errs[i] = o.fetchRecentSession(gctx, s.UpstreamID)
			return nil
		})
	}
	_ = g.Wait()

	out := make([]model.SessionSummary, 0, len(sessions))
	var firstErr error
	for i, err := range errs {
		if err != nil {
			o.logger.Warn("skipping recent session",
				zap.String("session", sessions[i].UpstreamID),
				zap.Error(err),
			)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if summaries[i] != nil {
			out = append(out, *summaries[i])
		}
	}
	if firstErr != nil && len(out) == 0 {
		return nil, firstErr
	}
	if firstErr == nil {
		o.markFresh(ctx, key, categoryRecent, o.cfg.TTL.RecentVotes)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Session.OccurredAt.After(out[j].Session.OccurredAt)
	})
	return out, nil
}

// fetchRecentSession resolves a session's bill, stores the bill as
// discovered, then stores the session and its votes. Sessions that affect
// no bill yield nil.
func (o *Orchestrator) fetchRecentSession(ctx context.Context, sessionID string) (*model.SessionSummary, error) {
	detail, err := o.upstream.FetchSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(detail.Bills) == 0 {
		o.logger.Debug("session affects no bill", zap.String("session", sessionID))
		return nil, nil
	}

	bill := detail.Bills[0]
	if o.persisting {
		if !o.writeOK(o.backend.UpsertBill(ctx, &bill), "bill", zap.String("code", bill.Code)) {
			return nil, fmt.Errorf("storing bill %s failed", bill.Code)
		}
	}

	ballots, err := o.upstream.FetchSessionVotes(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	sv, _ := o.persistSessionVotes(ctx, bill, fetchedSession{session: detail.Session, ballots: ballots})

	title := bill.Title
	if title == "" {
		title = bill.Summary
	}
	return &model.SessionSummary{
		Session:    sv.Session,
		BillCode:   bill.Code,
		BillTitle:  title,
		VotesCount: len(sv.Votes),
	}, nil
}

// DeputyVotes returns a deputy's stored voting history, resolving the
// deputy first
func (o *Orchestrator) DeputyVotes(ctx context.Context, id int64, limit int) (Result[[]model.VoteRecord], error) {
	dep, err := o.GetDeputy(ctx, id, false)
	if err != nil {
		return Result[[]model.VoteRecord]{}, err
	}

	records, err := o.backend.DeputyVotes(ctx, id, limit)
	if err != nil {
		return Result[[]model.VoteRecord]{}, err
	}
	return Result[[]model.VoteRecord]{
		Data:      records,
		FromCache: true,
		Degraded:  dep.Degraded,
		Warning:   dep.Warning,
	}, nil
}

func (o *Orchestrator) withinTTL(updated time.Time, ttl time.Duration) bool {
	return !updated.IsZero() && o.now().Sub(updated) < ttl
}

func (o *Orchestrator) markFresh(ctx context.Context, key, category string, ttl time.Duration) {
	if err := o.backend.MarkFresh(ctx, key, category, ttl); err != nil {
		o.logger.Warn("failed to mark ledger entry", zap.String("key", key), zap.Error(err))
	}
}

// writeOK reports whether a store write succeeded. Integrity violations
// abort in debug builds and are logged and skipped otherwise.
func (o *Orchestrator) writeOK(err error, entity string, fields ...zap.Field) bool {
	if err == nil {
		return true
	}
	fields = append(fields, zap.String("entity", entity), zap.Error(err))
	if errors.Is(err, store.ErrIntegrity) {
		if o.cfg.Debug {
			panic(fmt.Sprintf("integrity violation writing %s: %v", entity, err))
		}
		o.logger.Error("integrity violation, row skipped", fields...)
		return false
	}
	o.logger.Error("store write failed", fields...)
	return false
}
