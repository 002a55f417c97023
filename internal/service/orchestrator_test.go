package service

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kayo-b/voto-db/internal/model"
	"github.com/Kayo-b/voto-db/internal/store"
)

const deputyPath = "/deputados/178864"

func TestGetDeputyMissThenHit(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env *testEnv) {
		env.fake.addDeputy(178864, "Ana Souza", "PSD", "PB")
		ctx := context.Background()

		first, err := env.orch.GetDeputy(ctx, 178864, false)
		require.NoError(t, err)
		assert.False(t, first.FromCache)
		assert.False(t, first.Degraded)
		assert.Equal(t, "Ana Souza", first.Data.ParliamentaryName)
		assert.Equal(t, 1, env.fake.hitCount(deputyPath))

		second, err := env.orch.GetDeputy(ctx, 178864, false)
		require.NoError(t, err)
		assert.True(t, second.FromCache)
		assert.Equal(t, "Ana Souza", second.Data.ParliamentaryName)
		assert.Equal(t, "PSD", second.Data.PartyAbbreviation)
		assert.Equal(t, 1, env.fake.hitCount(deputyPath))

		_, err = env.backend.GetLegislature(ctx, 57)
		assert.NoError(t, err)

		assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.cacheLookups.WithLabelValues("deputado", "miss")))
		assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.cacheLookups.WithLabelValues("deputado", "hit")))
	})
}

func TestGetDeputyRefetchesWhenStale(t *testing.T) {
	env := newTestEnv(t)
	env.fake.addDeputy(178864, "Ana Souza", "PSD", "PB")
	ctx := context.Background()

	_, err := env.orch.GetDeputy(ctx, 178864, false)
	require.NoError(t, err)

	env.clock.Advance(23 * time.Hour)
	res, err := env.orch.GetDeputy(ctx, 178864, false)
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.Equal(t, 1, env.fake.hitCount(deputyPath))

	env.clock.Advance(2 * time.Hour)
	res, err = env.orch.GetDeputy(ctx, 178864, false)
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.Equal(t, 2, env.fake.hitCount(deputyPath))
}

func TestForceRefreshAlwaysFetches(t *testing.T) {
	env := newTestEnv(t)
	env.fake.addDeputy(178864, "Ana Souza", "PSD", "PB")
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		res, err := env.orch.GetDeputy(ctx, 178864, true)
		require.NoError(t, err)
		assert.False(t, res.FromCache)
		assert.Equal(t, i, env.fake.hitCount(deputyPath))
	}
}

func TestStaleCopyServedWhenUpstreamFails(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env *testEnv) {
		env.fake.addDeputy(178864, "Ana Souza", "PSD", "PB")
		ctx := context.Background()

		_, err := env.orch.GetDeputy(ctx, 178864, false)
		require.NoError(t, err)

		env.clock.Advance(48 * time.Hour)
		env.fake.setStatus(deputyPath, http.StatusServiceUnavailable)

		res, err := env.orch.GetDeputy(ctx, 178864, false)
		require.NoError(t, err)
		assert.True(t, res.FromCache)
		assert.True(t, res.Degraded)
		assert.NotEmpty(t, res.Warning)
		assert.Equal(t, "Ana Souza", res.Data.ParliamentaryName)
	})
}

func TestAbsentEntityFailsWhenUpstreamFails(t *testing.T) {
	env := newTestEnv(t)
	env.fake.addDeputy(178864, "Ana Souza", "PSD", "PB")
	env.fake.setStatus(deputyPath, http.StatusServiceUnavailable)

	_, err := env.orch.GetDeputy(context.Background(), 178864, false)
	require.Error(t, err)
	assert.True(t, IsTransient(err))

	_, err = env.backend.GetDeputy(context.Background(), 178864)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUnknownDeputyIsNotFound(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.orch.GetDeputy(context.Background(), 42, false)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestConcurrentRequestsShareOneFetch(t *testing.T) {
	env := newTestEnv(t)
	env.fake.addDeputy(178864, "Ana Souza", "PSD", "PB")
	release := env.fake.hold(deputyPath)
	defer release()

	const callers = 10
	var wg sync.WaitGroup
	results := make([]Result[model.Deputy], callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = env.orch.GetDeputy(context.Background(), 178864, false)
		}()
	}

	require.Eventually(t, func() bool {
		return env.fake.hitCount(deputyPath) == 1
	}, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	release()
	wg.Wait()

	assert.Equal(t, 1, env.fake.hitCount(deputyPath))
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "Ana Souza", results[i].Data.ParliamentaryName)
	}
}

func TestCancelledCallerDoesNotAbortFetch(t *testing.T) {
	env := newTestEnv(t)
	env.fake.addDeputy(178864, "Ana Souza", "PSD", "PB")
	release := env.fake.hold(deputyPath)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := env.orch.GetDeputy(ctx, 178864, false)
		done <- err
	}()

	require.Eventually(t, func() bool {
		return env.fake.hitCount(deputyPath) == 1
	}, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled caller did not return")
	}

	release()
	require.Eventually(t, func() bool {
		_, err := env.backend.GetDeputy(context.Background(), 178864)
		return err == nil
	}, 2*time.Second, 5*time.Millisecond)

	res, err := env.orch.GetDeputy(context.Background(), 178864, false)
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.Equal(t, 1, env.fake.hitCount(deputyPath))
}

func TestSearchDeputiesUsesLedger(t *testing.T) {
	env := newTestEnv(t)
	env.fake.addDeputy(1, "Ana Souza", "PSD", "PB")
	env.fake.addDeputy(2, "Bruno Lima", "PT", "SP")
	ctx := context.Background()
	filter := store.DeputyFilter{Name: "a"}

	first, err := env.orch.SearchDeputies(ctx, filter, false)
	require.NoError(t, err)
	assert.False(t, first.FromCache)
	require.Len(t, first.Data, 2)

	second, err := env.orch.SearchDeputies(ctx, filter, false)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Len(t, second.Data, 2)
	assert.Equal(t, 1, env.fake.hitCount("/deputados"))

	// summary rows never count as a fresh profile
	res, err := env.orch.GetDeputy(ctx, 1, false)
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.Equal(t, "Ana Souza de Oliveira", res.Data.LegalName)
}

func TestBillSessionsPersistParentsFirst(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env *testEnv) {
		env.fake.addDeputy(1, "Ana Souza", "PSD", "PB")
		env.fake.addDeputy(2, "Bruno Lima", "PT", "SP")
		env.fake.addBill(2122076, "PL", 6787, 2016, sessionFixture{
			id:          "2122076-100",
			description: "Aprovado o texto-base",
			registered:  "2017-04-26T21:40:12",
			approved:    intPtr(1),
			ballots:     []ballotFixture{{1, "Sim"}, {2, "Não"}},
		})
		ctx := context.Background()

		bill := &model.Bill{UpstreamID: 2122076, Code: "PL 6787/2016", Type: "PL", Number: 6787, Year: 2016, Relevance: model.RelevanceHigh, Monitored: true}
		require.NoError(t, env.backend.CreateBill(ctx, bill))

		res, err := env.orch.BillSessions(ctx, *bill, false)
		require.NoError(t, err)
		assert.False(t, res.FromCache)
		require.Len(t, res.Data, 1)
		assert.Len(t, res.Data[0].Votes, 2)

		stored, err := env.backend.ListSessions(ctx, bill.ID)
		require.NoError(t, err)
		require.Len(t, stored, 1)
		votes, err := env.backend.ListVotes(ctx, stored[0].ID)
		require.NoError(t, err)
		assert.Len(t, votes, 2)

		again, err := env.orch.BillSessions(ctx, *bill, false)
		require.NoError(t, err)
		assert.True(t, again.FromCache)
		assert.Len(t, again.Data[0].Votes, 2)
		assert.Equal(t, 1, env.fake.hitCount("/proposicoes/2122076/votacoes"))
	})
}

func TestRecentVotesDiscoversBills(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env *testEnv) {
		env.fake.addDeputy(1, "Ana Souza", "PSD", "PB")
		nominal := sessionFixture{
			id:          "2400001-50",
			description: "Aprovada a redação final",
			registered:  "2024-05-08T18:00:00",
			ballots:     []ballotFixture{{1, "Sim"}},
		}
		urgency := sessionFixture{
			id:          "2400002-10",
			description: "Aprovado o requerimento de urgência",
			registered:  "2024-05-09T15:30:00",
			ballots:     []ballotFixture{{1, "Não"}},
		}
		env.fake.addBill(2400001, "PL", 100, 2024, nominal)
		env.fake.addBill(2400002, "PLP", 7, 2024, urgency)
		env.fake.addRecent(urgency)
		env.fake.addRecent(nominal)
		ctx := context.Background()

		res, err := env.orch.RecentVotes(ctx, 7, "", false)
		require.NoError(t, err)
		assert.False(t, res.FromCache)
		require.Len(t, res.Data, 2)
		assert.Equal(t, "PLP 7/2024", res.Data[0].BillCode)
		assert.Equal(t, model.KindUrgency, res.Data[0].Session.Kind)
		assert.Equal(t, 1, res.Data[1].VotesCount)

		discovered, err := env.backend.GetBillByCode(ctx, "PL 100/2024")
		require.NoError(t, err)
		assert.False(t, discovered.Monitored)
		assert.Equal(t, model.RelevanceLow, discovered.Relevance)

		cached, err := env.orch.RecentVotes(ctx, 7, model.KindNominal, false)
		require.NoError(t, err)
		assert.True(t, cached.FromCache)
		require.Len(t, cached.Data, 1)
		assert.Equal(t, "PL 100/2024", cached.Data[0].BillCode)
		assert.Equal(t, 1, env.fake.hitCount("/votacoes"))
	})
}

func TestSessionSharedWithDiscoveredBillStaysReachable(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env *testEnv) {
		env.fake.addDeputy(analyzedDeputy, "Ana Souza", "PSD", "PB")
		shared := plenarySession("9001-1", "2024-05-08T18:00:00", ballotFixture{analyzedDeputy, "Sim"})
		env.fake.addBill(5051, "PL", 51, 2024, shared)
		env.fake.addBill(5050, "PL", 50, 2024, shared)
		env.fake.addRecent(shared)
		ctx := context.Background()

		_, err := env.orch.RecentVotes(ctx, 7, "", false)
		require.NoError(t, err)
		discovered, err := env.backend.GetBillByCode(ctx, "PL 50/2024")
		require.NoError(t, err)
		assert.False(t, discovered.Monitored)

		bill, err := env.curator.Add(ctx, AddBillRequest{Code: "PL 51/2024", Relevance: "alta"})
		require.NoError(t, err)

		cached, err := env.orch.BillSessions(ctx, *bill, false)
		require.NoError(t, err)
		assert.True(t, cached.FromCache)
		require.Len(t, cached.Data, 1)
		assert.Equal(t, bill.ID, cached.Data[0].Session.BillID)
		assert.Len(t, cached.Data[0].Votes, 1)

		forced, err := env.orch.BillSessions(ctx, *bill, true)
		require.NoError(t, err)
		assert.Len(t, forced.Data, 1)

		res, err := env.analyzer.Analyze(ctx, analyzedDeputy, false, true)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Data.BillsAttempted)
		assert.Equal(t, 1, res.Data.BillsAnalyzed)
		assert.Equal(t, 1, res.Data.Favorable)
	})
}

func TestDeputyVotesResolvesDeputyFirst(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env *testEnv) {
		env.fake.addDeputy(1, "Ana Souza", "PSD", "PB")
		env.fake.addBill(2122076, "PL", 6787, 2016, sessionFixture{
			id:          "2122076-100",
			description: "Aprovado o texto-base",
			registered:  "2017-04-26T21:40:12",
			ballots:     []ballotFixture{{1, "Sim"}},
		})
		ctx := context.Background()

		bill := &model.Bill{UpstreamID: 2122076, Code: "PL 6787/2016", Type: "PL", Number: 6787, Year: 2016, Monitored: true}
		require.NoError(t, env.backend.CreateBill(ctx, bill))
		_, err := env.orch.BillSessions(ctx, *bill, false)
		require.NoError(t, err)

		res, err := env.orch.DeputyVotes(ctx, 1, 10)
		require.NoError(t, err)
		require.Len(t, res.Data, 1)
		assert.Equal(t, model.VoteYes, res.Data[0].Value)
		assert.Equal(t, "PL 6787/2016", res.Data[0].BillCode)
		assert.Equal(t, 1, env.fake.hitCount("/deputados/1"))
	})
}

func TestPassthroughAlwaysFetches(t *testing.T) {
	env := newTestEnvWith(t, newTestClock(), store.NewPassthrough())
	env.fake.addDeputy(178864, "Ana Souza", "PSD", "PB")
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		res, err := env.orch.GetDeputy(ctx, 178864, false)
		require.NoError(t, err)
		assert.False(t, res.FromCache)
		assert.Equal(t, "Ana Souza", res.Data.ParliamentaryName)
		assert.Equal(t, i, env.fake.hitCount(deputyPath))
	}
	assert.Equal(t, 0, env.fake.hitCount("/legislaturas/57"))
}
