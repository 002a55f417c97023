package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Kayo-b/voto-db/internal/store"
)

// fakeCamara serves canned Câmara API payloads and counts hits per path
type fakeCamara struct {
	mu       sync.Mutex
	routes   map[string]any
	hits     map[string]int
	status   map[string]int
	failures map[string]int
	gates    map[string]chan struct{}
	deputies map[int64]map[string]any
	bills    []map[string]any
	recent   []map[string]any
}

type ballotFixture struct {
	deputyID int64
	vote     string
}

type sessionFixture struct {
	id          string
	organ       string
	description string
	registered  string
	approved    *int
	ballots     []ballotFixture
}

func newFakeCamara(t *testing.T) (*fakeCamara, *httptest.Server) {
	t.Helper()
	f := &fakeCamara{
		routes:   make(map[string]any),
		hits:     make(map[string]int),
		status:   make(map[string]int),
		failures: make(map[string]int),
		gates:    make(map[string]chan struct{}),
		deputies: make(map[int64]map[string]any),
	}
	f.routes["/legislaturas/57"] = map[string]any{
		"id":         57,
		"dataInicio": "2023-02-01",
		"dataFim":    "2027-01-31",
	}
	f.routes["/proposicoes"] = []map[string]any{}
	f.routes["/deputados"] = []map[string]any{}
	f.routes["/votacoes"] = []map[string]any{}

	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeCamara) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	f.mu.Lock()
	f.hits[path]++
	payload, ok := f.routes[path]
	status := f.status[path]
	if f.failures[path] > 0 {
		f.failures[path]--
		status = http.StatusServiceUnavailable
	}
	gate := f.gates[path]
	var body []byte
	if ok {
		body, _ = json.Marshal(map[string]any{"dados": payload, "links": []any{}})
	}
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if status != 0 {
		w.WriteHeader(status)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

func (f *fakeCamara) hitCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[path]
}

func (f *fakeCamara) setStatus(path string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status[path] = status
}

func (f *fakeCamara) failTimes(path string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[path] = n
}

// hold blocks requests to path until the returned release is called
func (f *fakeCamara) hold(path string) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	gate := make(chan struct{})
	f.gates[path] = gate
	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.gates, path)
			f.mu.Unlock()
			close(gate)
		})
	}
}

func (f *fakeCamara) deputySummary(id int64) map[string]any {
	return f.deputies[id]
}

func (f *fakeCamara) addDeputy(id int64, name, party, state string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	summary := map[string]any{
		"id":            id,
		"uri":           fmt.Sprintf("https://dadosabertos.camara.leg.br/api/v2/deputados/%d", id),
		"nome":          name,
		"siglaPartido":  party,
		"uriPartido":    "https://dadosabertos.camara.leg.br/api/v2/partidos/" + party,
		"siglaUf":       state,
		"idLegislatura": 57,
		"urlFoto":       fmt.Sprintf("https://www.camara.leg.br/internet/deputado/bandep/%d.jpg", id),
		"email":         fmt.Sprintf("dep.%d@camara.leg.br", id),
	}
	f.deputies[id] = summary

	status := map[string]any{"nomeEleitoral": name, "situacao": "Exercício"}
	for k, v := range summary {
		status[k] = v
	}
	f.routes[fmt.Sprintf("/deputados/%d", id)] = map[string]any{
		"id":           id,
		"uri":          summary["uri"],
		"nomeCivil":    name + " de Oliveira",
		"ultimoStatus": status,
	}

	list := f.routes["/deputados"].([]map[string]any)
	f.routes["/deputados"] = append(list, summary)
}

// addBill registers a bill with its sessions and their ballots
func (f *fakeCamara) addBill(upstreamID int64, billType string, number, year int, sessions ...sessionFixture) {
	f.mu.Lock()
	defer f.mu.Unlock()

	bill := map[string]any{
		"id":        upstreamID,
		"uri":       fmt.Sprintf("https://dadosabertos.camara.leg.br/api/v2/proposicoes/%d", upstreamID),
		"siglaTipo": billType,
		"numero":    number,
		"ano":       year,
		"ementa":    fmt.Sprintf("Ementa da proposição %s %d/%d", billType, number, year),
	}
	f.bills = append(f.bills, bill)
	f.routes["/proposicoes"] = f.bills

	list := make([]map[string]any, 0, len(sessions))
	for _, s := range sessions {
		payload := f.sessionPayload(s)
		list = append(list, payload)

		detail := make(map[string]any, len(payload)+1)
		for k, v := range payload {
			detail[k] = v
		}
		detail["proposicoesAfetadas"] = []map[string]any{bill}
		f.routes["/votacoes/"+s.id] = detail
		f.setBallotsLocked(s.id, s.ballots)
	}
	f.routes[fmt.Sprintf("/proposicoes/%d/votacoes", upstreamID)] = list
}

func (f *fakeCamara) sessionPayload(s sessionFixture) map[string]any {
	organ := s.organ
	if organ == "" {
		organ = "PLEN"
	}
	payload := map[string]any{
		"id":               s.id,
		"data":             s.registered[:10],
		"dataHoraRegistro": s.registered,
		"siglaOrgao":       organ,
		"descricao":        s.description,
	}
	if s.approved != nil {
		payload["aprovacao"] = *s.approved
	}
	return payload
}

func (f *fakeCamara) setBallots(sessionID string, ballots []ballotFixture) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setBallotsLocked(sessionID, ballots)
}

func (f *fakeCamara) setBallotsLocked(sessionID string, ballots []ballotFixture) {
	votes := make([]map[string]any, 0, len(ballots))
	for _, b := range ballots {
		votes = append(votes, map[string]any{
			"tipoVoto":  b.vote,
			"deputado_": f.deputySummary(b.deputyID),
		})
	}
	f.routes["/votacoes/"+sessionID+"/votos"] = votes
}

// addRecent lists a session in the recent sessions endpoint
func (f *fakeCamara) addRecent(s sessionFixture) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recent = append(f.recent, f.sessionPayload(s))
	f.routes["/votacoes"] = f.recent
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// testEnv wires the sync layer against a fake upstream and an in-memory store
type testEnv struct {
	fake     *fakeCamara
	clock    *testClock
	backend  store.Backend
	client   *CamaraClient
	metrics  *Metrics
	orch     *Orchestrator
	curator  *BillCurator
	analyzer *Analyzer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clk := newTestClock()
	backend, err := store.NewFileStore("", store.WithClock(clk.Now))
	require.NoError(t, err)
	return newTestEnvWith(t, clk, backend)
}

// forEachBackend runs fn against the file store and an in-memory sqlite store
func forEachBackend(t *testing.T, fn func(t *testing.T, env *testEnv)) {
	t.Run("file", func(t *testing.T) {
		fn(t, newTestEnv(t))
	})
	t.Run("sqlite", func(t *testing.T) {
		clk := newTestClock()
		db, err := store.NewDB(context.Background(), store.DialectSQLite, "file::memory:")
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })
		fn(t, newTestEnvWith(t, clk, store.NewSQLStore(db, store.DialectSQLite, store.WithClock(clk.Now))))
	})
}

func newTestEnvWith(t *testing.T, clk *testClock, backend store.Backend) *testEnv {
	t.Helper()
	fake, srv := newFakeCamara(t)

	logger := zap.NewNop()
	metrics := NewMetrics(prometheus.NewRegistry())

	cfg := DefaultClientConfig()
	cfg.BaseURL = srv.URL
	cfg.Timeout = 5 * time.Second
	cfg.MaxAttempts = 3
	cfg.InitialBackoff = time.Millisecond
	client := NewCamaraClient(cfg, logger, metrics)

	orchCfg := DefaultOrchestratorConfig()
	orchCfg.FetchTimeout = 10 * time.Second
	orchCfg.Debug = true
	orch := NewOrchestrator(backend, client, orchCfg, logger, metrics, WithClock(clk.Now))

	return &testEnv{
		fake:     fake,
		clock:    clk,
		backend:  backend,
		client:   client,
		metrics:  metrics,
		orch:     orch,
		curator:  NewBillCurator(orch, backend, logger),
		analyzer: NewAnalyzer(orch, backend, logger, metrics),
	}
}

func intPtr(v int) *int {
	return &v
}
