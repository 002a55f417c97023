package handlers_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Kayo-b/voto-db/internal/handlers"
	"github.com/Kayo-b/voto-db/internal/model"
	"github.com/Kayo-b/voto-db/internal/service"
	"github.com/Kayo-b/voto-db/internal/store"
)

// stubUpstream answers from fixed fixtures
type stubUpstream struct {
	mu       sync.Mutex
	calls    map[string]int
	down     bool
	deputies map[int64]model.Deputy
	bills    map[string]model.Bill
	sessions map[int64][]model.VotingSession
	ballots  map[string][]model.Ballot
}

func newStubUpstream() *stubUpstream {
	dep := model.Deputy{
		ID:                178864,
		LegalName:         "Ana Souza de Oliveira",
		ParliamentaryName: "Ana Souza",
		State:             "PB",
		PartyAbbreviation: "PSD",
		LegislatureID:     57,
	}
	return &stubUpstream{
		calls:    make(map[string]int),
		deputies: map[int64]model.Deputy{dep.ID: dep},
		bills: map[string]model.Bill{
			"PL 6787/2016": {UpstreamID: 2122076, Code: "PL 6787/2016", Type: "PL", Number: 6787, Year: 2016, Summary: "Altera a CLT"},
			"PL 9999/2099": {UpstreamID: 2500000, Code: "PL 9999/2099", Type: "PL", Number: 9999, Year: 2099},
		},
		sessions: map[int64][]model.VotingSession{
			2122076: {{UpstreamID: "2122076-100", Organ: "PLEN", Description: "Aprovado o texto-base", Kind: model.KindNominal, Outcome: model.OutcomeApproved, OccurredAt: time.Date(2017, 4, 26, 21, 0, 0, 0, time.UTC)}},
			2500000: {{UpstreamID: "2500000-1", Organ: "PLEN", Description: "Votação simbólica", Kind: model.KindNominal, OccurredAt: time.Date(2099, 3, 1, 12, 0, 0, 0, time.UTC)}},
		},
		ballots: map[string][]model.Ballot{
			"2122076-100": {{Deputy: dep, Value: model.VoteYes}},
		},
	}
}

func (s *stubUpstream) record(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[name]++
	if s.down {
		return service.NewTransientError(name, io.ErrUnexpectedEOF)
	}
	return nil
}

func (s *stubUpstream) setDown(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = down
}

func (s *stubUpstream) FetchDeputy(ctx context.Context, id int64) (*model.Deputy, error) {
	if err := s.record("deputy"); err != nil {
		return nil, err
	}
	d, ok := s.deputies[id]
	if !ok {
		return nil, service.NewRejectedError(http.StatusNotFound, "deputy %d not found upstream", id)
	}
	return &d, nil
}

func (s *stubUpstream) SearchDeputies(ctx context.Context, q model.DeputyQuery) ([]model.Deputy, error) {
	if err := s.record("search"); err != nil {
		return nil, err
	}
	var out []model.Deputy
	for _, d := range s.deputies {
		if strings.Contains(strings.ToLower(d.ParliamentaryName), strings.ToLower(q.Name)) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *stubUpstream) FetchLegislature(ctx context.Context, id int) (*model.LegislativePeriod, error) {
	return &model.LegislativePeriod{ID: id}, nil
}

func (s *stubUpstream) FindBill(ctx context.Context, billType string, number, year int) (*model.Bill, error) {
	if err := s.record("bill"); err != nil {
		return nil, err
	}
	code := model.BillCode(billType, number, year)
	b, ok := s.bills[code]
	if !ok {
		return nil, service.NewRejectedError(http.StatusNotFound, "bill %s not found upstream", code)
	}
	return &b, nil
}

func (s *stubUpstream) FetchBillSessions(ctx context.Context, billUpstreamID int64) ([]model.VotingSession, error) {
	if err := s.record("sessions"); err != nil {
		return nil, err
	}
	return s.sessions[billUpstreamID], nil
}

func (s *stubUpstream) FetchSessionVotes(ctx context.Context, sessionID string) ([]model.Ballot, error) {
	if err := s.record("votes"); err != nil {
		return nil, err
	}
	return s.ballots[sessionID], nil
}

func (s *stubUpstream) FetchSession(ctx context.Context, sessionID string) (*model.SessionDetail, error) {
	return nil, service.NewRejectedError(http.StatusNotFound, "session %s not found upstream", sessionID)
}

func (s *stubUpstream) FetchRecentSessions(ctx context.Context, from, to time.Time) ([]model.VotingSession, error) {
	if err := s.record("recent"); err != nil {
		return nil, err
	}
	return nil, nil
}

type testServer struct {
	app      *fiber.App
	upstream *stubUpstream
	backend  store.Backend
	now      time.Time
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		upstream: newStubUpstream(),
		now:      time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return ts.now }

	backend, err := store.NewFileStore("", store.WithClock(clock))
	require.NoError(t, err)
	ts.backend = backend

	logger := zap.NewNop()
	reg := prometheus.NewRegistry()
	metrics := service.NewMetrics(reg)
	orch := service.NewOrchestrator(backend, ts.upstream, service.DefaultOrchestratorConfig(), logger, metrics, service.WithClock(clock))

	ts.app = handlers.NewApp(handlers.Deps{
		Backend:      backend,
		Orchestrator: orch,
		Curator:      service.NewBillCurator(orch, backend, logger),
		Analyzer:     service.NewAnalyzer(orch, backend, logger, metrics),
		System:       service.NewMetricsService(backend),
		Registry:     reg,
		Logger:       logger,
	})
	return ts
}

type envelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	FromCache bool            `json:"fromCache"`
	Degraded  bool            `json:"degraded"`
	Warning   string          `json:"warning"`
	Error     *struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

func (ts *testServer) do(t *testing.T, method, target, body string) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := ts.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &env))
	}
	return resp.StatusCode, env
}

func TestGetDeputyServesFromCacheOnSecondCall(t *testing.T) {
	ts := newTestServer(t)

	status, env := ts.do(t, http.MethodGet, "/api/deputados/178864", "")
	require.Equal(t, http.StatusOK, status)
	assert.True(t, env.Success)
	assert.False(t, env.FromCache)

	var dep model.Deputy
	require.NoError(t, json.Unmarshal(env.Data, &dep))
	assert.Equal(t, "Ana Souza", dep.ParliamentaryName)

	status, env = ts.do(t, http.MethodGet, "/api/deputados/178864", "")
	require.Equal(t, http.StatusOK, status)
	assert.True(t, env.FromCache)
	assert.Equal(t, 1, ts.upstream.calls["deputy"])

	_, env = ts.do(t, http.MethodGet, "/api/deputados/178864?force=true", "")
	assert.False(t, env.FromCache)
	assert.Equal(t, 2, ts.upstream.calls["deputy"])
}

func TestGetDeputyDegradedAndNoData(t *testing.T) {
	ts := newTestServer(t)

	status, _ := ts.do(t, http.MethodGet, "/api/deputados/178864", "")
	require.Equal(t, http.StatusOK, status)

	ts.now = ts.now.Add(48 * time.Hour)
	ts.upstream.setDown(true)

	status, env := ts.do(t, http.MethodGet, "/api/deputados/178864", "")
	require.Equal(t, http.StatusOK, status)
	assert.True(t, env.Degraded)
	assert.NotEmpty(t, env.Warning)

	status, env = ts.do(t, http.MethodGet, "/api/deputados/1", "")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, handlers.KindNoData, env.Error.Kind)
}

func TestUnknownDeputyIsNotFound(t *testing.T) {
	ts := newTestServer(t)

	status, env := ts.do(t, http.MethodGet, "/api/deputados/1", "")
	assert.Equal(t, http.StatusNotFound, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, handlers.KindNoData, env.Error.Kind)

	status, env = ts.do(t, http.MethodGet, "/api/deputados/abc", "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, handlers.KindRejected, env.Error.Kind)
}

func TestAddBillLifecycle(t *testing.T) {
	ts := newTestServer(t)
	body := `{"codigo":"PL 6787/2016","titulo":"Reforma Trabalhista","relevancia":"alta"}`

	status, env := ts.do(t, http.MethodPost, "/api/proposicoes", body)
	require.Equal(t, http.StatusCreated, status)
	var bill model.Bill
	require.NoError(t, json.Unmarshal(env.Data, &bill))
	assert.True(t, bill.Monitored)

	status, env = ts.do(t, http.MethodPost, "/api/proposicoes", body)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, handlers.KindConflict, env.Error.Kind)

	status, env = ts.do(t, http.MethodGet, "/api/proposicoes?relevancia=alta", "")
	require.Equal(t, http.StatusOK, status)
	var bills []model.Bill
	require.NoError(t, json.Unmarshal(env.Data, &bills))
	assert.Len(t, bills, 1)

	status, env = ts.do(t, http.MethodGet, "/api/deputados/178864/analise", "")
	require.Equal(t, http.StatusOK, status)
	var st model.DeputyStatistics
	require.NoError(t, json.Unmarshal(env.Data, &st))
	assert.Equal(t, 1, st.Favorable)
	assert.Equal(t, 1.0, st.SuccessRate)

	status, _ = ts.do(t, http.MethodDelete, "/api/proposicoes/"+strconv.FormatInt(bill.ID, 10), "")
	assert.Equal(t, http.StatusOK, status)

	status, _ = ts.do(t, http.MethodDelete, "/api/proposicoes/"+strconv.FormatInt(bill.ID, 10), "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestBillAnalysisEndpoint(t *testing.T) {
	ts := newTestServer(t)

	status, env := ts.do(t, http.MethodPost, "/api/proposicoes", `{"codigo":"PL 6787/2016","relevancia":"alta"}`)
	require.Equal(t, http.StatusCreated, status)
	var bill model.Bill
	require.NoError(t, json.Unmarshal(env.Data, &bill))
	target := "/api/proposicoes/" + strconv.FormatInt(bill.ID, 10) + "/analise"

	status, env = ts.do(t, http.MethodGet, target, "")
	require.Equal(t, http.StatusOK, status)
	assert.True(t, env.FromCache)
	var analysis model.BillAnalysis
	require.NoError(t, json.Unmarshal(env.Data, &analysis))
	assert.Equal(t, "2122076-100", analysis.Principal.UpstreamID)
	assert.Equal(t, model.VoteTally{Yes: 1, Total: 1}, analysis.Distribution)
	require.Len(t, analysis.ByParty, 1)
	assert.Equal(t, "PSD", analysis.ByParty[0].Party)

	_, env = ts.do(t, http.MethodGet, target+"?force=true", "")
	assert.False(t, env.FromCache)
	assert.Equal(t, 2, ts.upstream.calls["sessions"])

	status, env = ts.do(t, http.MethodGet, "/api/proposicoes/999/analise", "")
	assert.Equal(t, http.StatusNotFound, status)
	require.NotNil(t, env.Error)

	status, env = ts.do(t, http.MethodGet, "/api/proposicoes/abc/analise", "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, handlers.KindRejected, env.Error.Kind)
}

func TestAddBillRejections(t *testing.T) {
	ts := newTestServer(t)

	status, env := ts.do(t, http.MethodPost, "/api/proposicoes", `{"codigo":"PL 9999/2099","relevancia":"alta"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, handlers.KindRejected, env.Error.Kind)

	status, env = ts.do(t, http.MethodPost, "/api/proposicoes", `{"codigo":"não é código"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, handlers.KindRejected, env.Error.Kind)

	status, env = ts.do(t, http.MethodGet, "/api/proposicoes/validar?codigo=PL%201/1900", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, handlers.KindNoData, env.Error.Kind)
}

func TestRecentVotesValidatesQuery(t *testing.T) {
	ts := newTestServer(t)

	status, env := ts.do(t, http.MethodGet, "/api/votacoes/recentes?dias=500", "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, handlers.KindRejected, env.Error.Kind)

	status, env = ts.do(t, http.MethodGet, "/api/votacoes/recentes?tipo=urgencia", "")
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, env.Success)
}

func TestCacheEndpoints(t *testing.T) {
	ts := newTestServer(t)

	status, _ := ts.do(t, http.MethodGet, "/api/deputados?nome=ana", "")
	require.Equal(t, http.StatusOK, status)

	status, env := ts.do(t, http.MethodGet, "/api/cache/stats", "")
	require.Equal(t, http.StatusOK, status)
	var m service.SystemMetrics
	require.NoError(t, json.Unmarshal(env.Data, &m))
	assert.Equal(t, 1, m.Ledger.Total)
	assert.Equal(t, 1, m.Counts.Deputies)

	key := service.SearchKey(store.DeputyFilter{Name: "ana"})
	status, _ = ts.do(t, http.MethodDelete, "/api/cache/"+url.PathEscape(key), "")
	require.Equal(t, http.StatusOK, status)

	_, env = ts.do(t, http.MethodGet, "/api/deputados?nome=ana", "")
	assert.False(t, env.FromCache)
	assert.Equal(t, 2, ts.upstream.calls["search"])

	status, _ = ts.do(t, http.MethodPost, "/api/cache/limpar", "")
	assert.Equal(t, http.StatusOK, status)

	status, env = ts.do(t, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, env.Success)
}

func TestStatusPageAndMetrics(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodGet, "/api/deputados/178864", "")

	resp, err := ts.app.Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
	require.NoError(t, err)
	page, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(page), "voto-db")
	assert.Contains(t, string(page), "Deputados")

	resp, err = ts.app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	exposition, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(exposition), `votodb_cache_lookups_total{outcome="miss",resource="deputado"} 1`)
}
