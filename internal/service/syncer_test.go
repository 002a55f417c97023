package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Kayo-b/voto-db/internal/model"
)

func TestSyncRefreshesMonitoredBills(t *testing.T) {
	env := newTestEnv(t)
	seedFiveBills(t, env)
	env.fake.addRecent(plenarySession("3001-1", "2024-05-09T20:00:00"))
	ctx := context.Background()

	syncer := NewSyncer(env.orch, env.backend, zap.NewNop())
	stats, err := syncer.Run(ctx, 7)
	require.NoError(t, err)

	assert.NotEmpty(t, stats.RunID)
	assert.Equal(t, 5, stats.Total)
	assert.Equal(t, 4, stats.Refreshed)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.RecentSessions)
	assert.Equal(t, 1, env.fake.hitCount("/proposicoes/3001/votacoes"))

	// a second run always goes upstream again
	_, err = syncer.Run(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 2, env.fake.hitCount("/proposicoes/3001/votacoes"))
	assert.Equal(t, 2, env.fake.hitCount("/votacoes"))

	counts, err := env.backend.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, counts.Monitored)
	assert.Equal(t, 4, counts.Sessions)

	syncer.PrintSummary(stats)
}

func TestMetricsServiceReportsCounts(t *testing.T) {
	env := newTestEnv(t)
	seedFiveBills(t, env)
	ctx := context.Background()

	bill, err := env.backend.GetBillByCode(ctx, "PL 1/2023")
	require.NoError(t, err)
	_, err = env.orch.BillSessions(ctx, *bill, false)
	require.NoError(t, err)

	svc := NewMetricsService(env.backend)
	m, err := svc.Calculate(ctx)
	require.NoError(t, err)
	assert.Equal(t, "file", m.Backend)
	assert.Equal(t, 5, m.Counts.Bills)
	assert.Equal(t, 1, m.Counts.Sessions)
	assert.Equal(t, 2, m.Counts.Votes)
	assert.Equal(t, 1, m.Ledger.ByCategory[categorySessions])

	require.NoError(t, svc.Invalidate(ctx, SessionsKey(model.BillCode("PL", 1, 2023))))
	m, err = svc.Calculate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, m.Ledger.Total)
	assert.NoError(t, svc.Health(ctx))
}
