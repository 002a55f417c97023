package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/Kayo-b/voto-db/internal/model"
	"github.com/Kayo-b/voto-db/internal/store"
)

var billCodePattern = regexp.MustCompile(`^([A-Za-z]{2,6})\s*(\d{1,6})\s*/\s*(\d{4})$`)

// ParseBillCode splits a code such as "PL 6787/2016" into its parts
func ParseBillCode(code string) (string, int, int, error) {
	m := billCodePattern.FindStringSubmatch(strings.TrimSpace(code))
	if m == nil {
		return "", 0, 0, NewRejectedError(400, "invalid bill code %q, expected a code like \"PL 1234/2024\"", code)
	}
	number, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	return strings.ToUpper(m[1]), number, year, nil
}

// AddBillRequest is a curation request for a new monitored bill
type AddBillRequest struct {
	Code      string `json:"codigo" yaml:"codigo" validate:"required,max=32"`
	Title     string `json:"titulo" yaml:"titulo" validate:"max=500"`
	Relevance string `json:"relevancia" yaml:"relevancia" validate:"omitempty,oneof=alta média media baixa"`
}

// Validation is the outcome of checking a bill against upstream
type Validation struct {
	Bill            model.Bill `json:"proposicao"`
	TotalSessions   int        `json:"total_votacoes"`
	NominalSessions int        `json:"votacoes_nominais"`

	sessions []fetchedSession
}

// BillCurator manages the set of monitored bills
type BillCurator struct {
	orch     *Orchestrator
	backend  store.Backend
	logger   *zap.Logger
	validate *validator.Validate
}

// NewBillCurator creates a new BillCurator
func NewBillCurator(orch *Orchestrator, backend store.Backend, logger *zap.Logger) *BillCurator {
	return &BillCurator{
		orch:     orch,
		backend:  backend,
		logger:   logger.Named("curator"),
		validate: validator.New(),
	}
}

// Validate checks that a bill exists upstream and has at least one nominal
// vote. Nothing is written.
func (c *BillCurator) Validate(ctx context.Context, code string) (*Validation, error) {
	billType, number, year, err := ParseBillCode(code)
	if err != nil {
		return nil, err
	}

	bill, err := c.orch.upstream.FindBill(ctx, billType, number, year)
	if err != nil {
		return nil, err
	}

	sessions, err := c.orch.fetchSessions(ctx, *bill)
	if err != nil {
		return nil, err
	}

	v := &Validation{Bill: *bill, TotalSessions: len(sessions), sessions: sessions}
	for _, s := range sessions {
		if len(s.ballots) > 0 {
			v.NominalSessions++
		}
	}
	if v.NominalSessions == 0 {
		return nil, NewRejectedError(422, "bill %s has no nominal votes", bill.Code)
	}
	return v, nil
}

// Add validates a bill and stores it as monitored together with its
// sessions and votes
func (c *BillCurator) Add(ctx context.Context, req AddBillRequest) (*model.Bill, error) {
	if err := c.validate.Struct(req); err != nil {
		return nil, NewRejectedError(400, "invalid request: %v", err)
	}

	billType, number, year, err := ParseBillCode(req.Code)
	if err != nil {
		return nil, err
	}
	code := model.BillCode(billType, number, year)

	relevance := model.RelevanceMedium
	if req.Relevance != "" {
		relevance, _ = model.ParseRelevance(req.Relevance)
	}

	existing, err := c.backend.GetBillByCode(ctx, code)
	switch {
	case err == nil && existing.Monitored:
		return nil, fmt.Errorf("bill %s is already monitored: %w", code, store.ErrConflict)
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return nil, err
	}

	v, err := c.Validate(ctx, code)
	if err != nil {
		return nil, err
	}

	bill := v.Bill
	bill.Title = strings.TrimSpace(req.Title)
	if bill.Title == "" {
		bill.Title = bill.Code
	}
	bill.Relevance = relevance
	bill.Monitored = true

	if existing != nil {
		err = c.backend.PromoteBill(ctx, &bill)
	} else {
		err = c.backend.CreateBill(ctx, &bill)
	}
	if err != nil {
		return nil, err
	}

	c.orch.persistSessions(ctx, bill, v.sessions)
	c.clearStatistics(ctx)
	c.logger.Info("bill added",
		zap.String("code", bill.Code),
		zap.String("relevance", string(bill.Relevance)),
		zap.Int("sessions", v.TotalSessions),
		zap.Int("nominal", v.NominalSessions),
	)
	return &bill, nil
}

// Remove deletes a monitored bill with its sessions and votes
func (c *BillCurator) Remove(ctx context.Context, id int64) error {
	bill, err := c.backend.GetBill(ctx, id)
	if err != nil {
		return err
	}
	if err := c.backend.DeleteBill(ctx, id); err != nil {
		return err
	}
	if err := c.backend.Invalidate(ctx, SessionsKey(bill.Code)); err != nil {
		c.logger.Warn("failed to invalidate sessions entry", zap.String("code", bill.Code), zap.Error(err))
	}
	c.clearStatistics(ctx)
	c.logger.Info("bill removed", zap.String("code", bill.Code))
	return nil
}

// clearStatistics drops stored analyses, which all depend on the monitored
// set
func (c *BillCurator) clearStatistics(ctx context.Context) {
	if err := c.backend.ClearStatistics(ctx); err != nil {
		c.logger.Warn("failed to clear deputy statistics", zap.Error(err))
	}
}

// ListMonitored returns the curated bills
func (c *BillCurator) ListMonitored(ctx context.Context, f store.BillFilter) ([]model.Bill, error) {
	f.MonitoredOnly = true
	return c.backend.QueryBills(ctx, f)
}

// seedFile is the YAML layout of a curated bills list
type seedFile struct {
	Bills []AddBillRequest `yaml:"proposicoes"`
}

// SeedStats tracks a seed import
type SeedStats struct {
	Total    int
	Added    int
	Skipped  int
	Rejected int
	Failed   int
}

// ImportSeed adds every bill listed in a YAML seed file. Bills already
// monitored are skipped.
func (c *BillCurator) ImportSeed(ctx context.Context, path string) (*SeedStats, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var seed seedFile
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}

	stats := &SeedStats{Total: len(seed.Bills)}
	for idx, req := range seed.Bills {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		c.logger.Info(fmt.Sprintf("[%d/%d] adding %s", idx+1, stats.Total, req.Code))
		_, err := c.Add(ctx, req)
		switch {
		case err == nil:
			stats.Added++
		case errors.Is(err, store.ErrConflict):
			stats.Skipped++
		case IsRejected(err):
			stats.Rejected++
			c.logger.Warn("bill rejected", zap.String("code", req.Code), zap.Error(err))
		default:
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			stats.Failed++
			c.logger.Error("bill import failed", zap.String("code", req.Code), zap.Error(err))
		}
	}
	return stats, nil
}
