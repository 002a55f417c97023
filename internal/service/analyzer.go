package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Kayo-b/voto-db/internal/model"
	"github.com/Kayo-b/voto-db/internal/store"
)

// plenaryOrgan is the organ code of the Chamber's plenary
const plenaryOrgan = "PLEN"

// principalMarkers identify the decisive vote of a bill's procedure
var principalMarkers = []string{"texto-base", "texto base", "substitutivo global", "redacao final"}

// Analyzer derives voting statistics for a deputy over the monitored bills
type Analyzer struct {
	orch    *Orchestrator
	backend store.Backend
	logger  *zap.Logger
	metrics *Metrics
}

// NewAnalyzer creates a new Analyzer
func NewAnalyzer(orch *Orchestrator, backend store.Backend, logger *zap.Logger, metrics *Metrics) *Analyzer {
	return &Analyzer{
		orch:    orch,
		backend: backend,
		logger:  logger.Named("analyzer"),
		metrics: metrics,
	}
}

// billAnalysis is the resolved input for one bill
type billAnalysis struct {
	bill     model.Bill
	sessions []model.SessionVotes
	degraded bool
	err      error
}

// Analyze computes the deputy's statistics over monitored bills, only the
// high relevance ones unless includeAll is set. A stored result is reused
// while no vote of the deputy changed after it was computed.
func (a *Analyzer) Analyze(ctx context.Context, deputyID int64, includeAll, force bool) (Result[model.DeputyStatistics], error) {
	dep, err := a.orch.GetDeputy(ctx, deputyID, false)
	if err != nil {
		a.metrics.analysis("failed")
		return Result[model.DeputyStatistics]{}, err
	}

	if !force {
		if cached, ok := a.cached(ctx, deputyID, includeAll); ok {
			a.metrics.analysis("cached")
			return Result[model.DeputyStatistics]{
				Data:      *cached,
				FromCache: true,
				Degraded:  dep.Degraded,
				Warning:   dep.Warning,
			}, nil
		}
	}

	filter := store.BillFilter{MonitoredOnly: true}
	if !includeAll {
		filter.Relevance = model.RelevanceHigh
	}
	bills, err := a.backend.QueryBills(ctx, filter)
	if err != nil {
		a.metrics.analysis("failed")
		return Result[model.DeputyStatistics]{}, fmt.Errorf("failed to list monitored bills: %w", err)
	}

	inputs := make([]billAnalysis, len(bills))
	g := new(errgroup.Group)
	g.SetLimit(a.orch.cfg.Concurrency)
	for i, bill := range bills {
		g.Go(func() error {
			res, err := a.orch.BillSessions(ctx, bill, false)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				a.logger.Warn("bill could not be resolved",
					zap.String("code", bill.Code),
					zap.Error(err),
				)
				inputs[i] = billAnalysis{bill: bill, err: err}
				return nil
			}
			inputs[i] = billAnalysis{bill: bill, sessions: res.Data, degraded: res.Degraded}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		a.metrics.analysis("failed")
		return Result[model.DeputyStatistics]{}, err
	}

	st := computeStatistics(deputyID, inputs)
	st.IncludeAll = includeAll
	st.ComputedAt = a.orch.now().UTC()

	if err := a.backend.UpsertStatistics(ctx, &st); err != nil && !errors.Is(err, store.ErrUnavailable) {
		a.logger.Warn("failed to store statistics", zap.Int64("deputy", deputyID), zap.Error(err))
	}

	degraded := dep.Degraded
	for _, in := range inputs {
		degraded = degraded || in.degraded
	}

	a.metrics.analysis("computed")
	a.logger.Info("deputy analyzed",
		zap.Int64("deputy", deputyID),
		zap.Int("attempted", st.BillsAttempted),
		zap.Int("analyzed", st.BillsAnalyzed),
	)

	res := Result[model.DeputyStatistics]{Data: st, Degraded: degraded}
	if degraded {
		res.Warning = degradedWarning
	}
	return res, nil
}

// cached returns stored statistics that are still valid for the request
func (a *Analyzer) cached(ctx context.Context, deputyID int64, includeAll bool) (*model.DeputyStatistics, bool) {
	st, err := a.backend.GetStatistics(ctx, deputyID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			a.logger.Warn("failed to read stored statistics", zap.Int64("deputy", deputyID), zap.Error(err))
		}
		return nil, false
	}
	if st.IncludeAll != includeAll {
		return nil, false
	}

	latest, err := a.backend.LatestVoteChange(ctx, deputyID)
	if err != nil || latest.After(st.ComputedAt) {
		return nil, false
	}
	return st, true
}

// AnalyzeBill breaks down the principal session of a stored bill by vote
// value and by party
func (a *Analyzer) AnalyzeBill(ctx context.Context, billID int64, force bool) (Result[model.BillAnalysis], error) {
	bill, err := a.backend.GetBill(ctx, billID)
	if err != nil {
		return Result[model.BillAnalysis]{}, err
	}

	res, err := a.orch.BillSessions(ctx, *bill, force)
	if err != nil {
		return Result[model.BillAnalysis]{}, err
	}

	principal, ok := principalSession(res.Data)
	if !ok {
		return Result[model.BillAnalysis]{}, NewRejectedError(422, "bill %s has no nominal votes", bill.Code)
	}

	deputies, err := a.backend.QueryDeputies(ctx, store.DeputyFilter{})
	if err != nil {
		return Result[model.BillAnalysis]{}, fmt.Errorf("failed to list deputies: %w", err)
	}
	parties := make(map[int64]string, len(deputies))
	for _, d := range deputies {
		parties[d.ID] = d.PartyAbbreviation
	}

	out := model.BillAnalysis{
		Bill:          *bill,
		Principal:     principal.Session,
		TotalSessions: len(res.Data),
	}
	for _, s := range res.Data {
		if s.Nominal() {
			out.NominalSessions++
		}
	}

	byParty := make(map[string]*model.PartyTally)
	for _, v := range principal.Votes {
		out.Distribution.Add(v.Value)

		party := parties[v.DeputyID]
		if party == "" {
			party = model.NoPartyAbbreviation
		}
		pt, ok := byParty[party]
		if !ok {
			pt = &model.PartyTally{Party: party}
			byParty[party] = pt
		}
		pt.Add(v.Value)
	}

	out.ByParty = make([]model.PartyTally, 0, len(byParty))
	for _, pt := range byParty {
		out.ByParty = append(out.ByParty, *pt)
	}
	sort.Slice(out.ByParty, func(i, j int) bool {
		if out.ByParty[i].Total != out.ByParty[j].Total {
			return out.ByParty[i].Total > out.ByParty[j].Total
		}
		return out.ByParty[i].Party < out.ByParty[j].Party
	})

	return Result[model.BillAnalysis]{
		Data:      out,
		FromCache: res.FromCache,
		Degraded:  res.Degraded,
		Warning:   res.Warning,
	}, nil
}

// computeStatistics classifies the deputy's vote in the principal session of
// every bill. Bills without nominal sessions are left out entirely; bills
// that failed to resolve count as attempted only.
func computeStatistics(deputyID int64, inputs []billAnalysis) model.DeputyStatistics {
	st := model.DeputyStatistics{DeputyID: deputyID, History: []model.BillOutcome{}}

	for _, in := range inputs {
		if in.err != nil {
			st.BillsAttempted++
			continue
		}

		principal, ok := principalSession(in.sessions)
		if !ok {
			continue
		}
		st.BillsAttempted++
		st.BillsAnalyzed++
		st.TotalAnalyzed++

		value := model.VoteAbsent
		for _, v := range principal.Votes {
			if v.DeputyID == deputyID {
				value = v.Value
				break
			}
		}

		switch value {
		case model.VoteYes:
			st.Favorable++
		case model.VoteNo:
			st.Contrary++
		case model.VoteAbstain:
			st.Abstentions++
		case model.VoteObstruction:
			st.Obstructions++
		case model.VoteOther:
			// present without a position
		default:
			st.Absences++
		}

		title := in.bill.Title
		if title == "" {
			title = in.bill.Summary
		}
		st.History = append(st.History, model.BillOutcome{
			BillCode:    in.bill.Code,
			BillTitle:   title,
			Relevance:   in.bill.Relevance,
			SessionID:   principal.Session.UpstreamID,
			OccurredAt:  principal.Session.OccurredAt,
			Description: principal.Session.Description,
			Value:       value,
		})
	}

	if st.BillsAnalyzed > 0 {
		present := decimal.NewFromInt(int64(st.BillsAnalyzed - st.Absences))
		st.Attendance = present.Mul(decimal.NewFromInt(100)).
			Div(decimal.NewFromInt(int64(st.BillsAnalyzed))).
			Round(1).InexactFloat64()
	}
	if st.BillsAttempted > 0 {
		st.SuccessRate = decimal.NewFromInt(int64(st.BillsAnalyzed)).
			Div(decimal.NewFromInt(int64(st.BillsAttempted))).
			Round(4).InexactFloat64()
	}

	sort.SliceStable(st.History, func(i, j int) bool {
		return st.History[i].OccurredAt.After(st.History[j].OccurredAt)
	})
	return st
}

// principalSession picks the decisive nominal session of a bill: plenary
// votes first, then votes on the base text, substitute or final wording,
// then the most recent, then the lowest upstream id.
func principalSession(sessions []model.SessionVotes) (model.SessionVotes, bool) {
	nominal := make([]model.SessionVotes, 0, len(sessions))
	for _, s := range sessions {
		if s.Nominal() {
			nominal = append(nominal, s)
		}
	}
	if len(nominal) == 0 {
		return model.SessionVotes{}, false
	}

	sort.SliceStable(nominal, func(i, j int) bool {
		a, b := nominal[i].Session, nominal[j].Session
		if pa, pb := a.Organ == plenaryOrgan, b.Organ == plenaryOrgan; pa != pb {
			return pa
		}
		if ma, mb := hasPrincipalMarker(a.Description), hasPrincipalMarker(b.Description); ma != mb {
			return ma
		}
		if !a.OccurredAt.Equal(b.OccurredAt) {
			return a.OccurredAt.After(b.OccurredAt)
		}
		return a.UpstreamID < b.UpstreamID
	})
	return nominal[0], true
}

func hasPrincipalMarker(description string) bool {
	folded := foldText(description)
	for _, marker := range principalMarkers {
		if strings.Contains(folded, marker) {
			return true
		}
	}
	return false
}
