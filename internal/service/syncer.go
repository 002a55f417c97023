package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Kayo-b/voto-db/internal/store"
)

// SyncStats tracks a sync run
type SyncStats struct {
	RunID          string
	Total          int
	Refreshed      int
	Degraded       int
	Failed         int
	RecentSessions int
	Swept          int64
	Duration       time.Duration
}

// Syncer refreshes every monitored bill and the recent votes ahead of
// requests
type Syncer struct {
	orch    *Orchestrator
	backend store.Backend
	logger  *zap.Logger
}

// NewSyncer creates a new Syncer
func NewSyncer(orch *Orchestrator, backend store.Backend, logger *zap.Logger) *Syncer {
	return &Syncer{
		orch:    orch,
		backend: backend,
		logger:  logger.Named("sync"),
	}
}

// Run force-refreshes the recent votes window and each monitored bill's
// sessions, then sweeps expired ledger entries
func (s *Syncer) Run(ctx context.Context, days int) (*SyncStats, error) {
	start := time.Now()
	stats := &SyncStats{RunID: uuid.NewString()}
	log := s.logger.With(zap.String("run", stats.RunID))

	log.Info("refreshing recent votes", zap.Int("days", days))
	recent, err := s.orch.RecentVotes(ctx, days, "", true)
	switch {
	case err != nil && ctx.Err() != nil:
		return stats, ctx.Err()
	case err != nil:
		log.Error("failed to refresh recent votes", zap.Error(err))
	default:
		stats.RecentSessions = len(recent.Data)
	}

	bills, err := s.backend.QueryBills(ctx, store.BillFilter{MonitoredOnly: true})
	if err != nil {
		return stats, fmt.Errorf("failed to list monitored bills: %w", err)
	}
	stats.Total = len(bills)
	log.Info(fmt.Sprintf("found %d monitored bills", stats.Total))

	for idx, bill := range bills {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		progress := fmt.Sprintf("[%d/%d]", idx+1, stats.Total)
		log.Info(fmt.Sprintf("%s refreshing %s", progress, bill.Code))

		res, err := s.orch.BillSessions(ctx, bill, true)
		if err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			log.Error("failed to refresh bill", zap.String("code", bill.Code), zap.Error(err))
			stats.Failed++
			continue
		}
		if res.Degraded {
			stats.Degraded++
			continue
		}
		stats.Refreshed++
	}

	swept, err := s.backend.SweepExpired(ctx)
	if err != nil {
		log.Warn("failed to sweep cache ledger", zap.Error(err))
	}
	stats.Swept = swept
	stats.Duration = time.Since(start)
	return stats, nil
}

// PrintSummary logs the sync statistics
func (s *Syncer) PrintSummary(stats *SyncStats) {
	s.logger.Info("=== Sync Summary ===")
	s.logger.Info(fmt.Sprintf("Run:             %s", stats.RunID))
	s.logger.Info(fmt.Sprintf("Monitored bills: %d", stats.Total))
	s.logger.Info(fmt.Sprintf("Refreshed:       %d", stats.Refreshed))
	s.logger.Info(fmt.Sprintf("Degraded:        %d", stats.Degraded))
	s.logger.Info(fmt.Sprintf("Failed:          %d", stats.Failed))
	s.logger.Info(fmt.Sprintf("Recent sessions: %d", stats.RecentSessions))
	s.logger.Info(fmt.Sprintf("Expired entries: %d", stats.Swept))
	s.logger.Info(fmt.Sprintf("Duration:        %s", stats.Duration.Round(time.Millisecond)))

	if stats.Total > 0 {
		rate := float64(stats.Refreshed) / float64(stats.Total) * 100
		s.logger.Info(fmt.Sprintf("Success rate:    %.1f%%", rate))
	}
}
