package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/Kayo-b/voto-db/internal/model"
)

// DefaultBaseURL is the Câmara dos Deputados open data API
const DefaultBaseURL = "https://dadosabertos.camara.leg.br/api/v2"

// ClientConfig controls the upstream client
type ClientConfig struct {
	BaseURL        string
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	PageSize       int
	MaxPages       int
}

// DefaultClientConfig returns the defaults observed to work against the
// Câmara API, which often needs a few attempts to answer
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL:        DefaultBaseURL,
		Timeout:        20 * time.Second,
		MaxAttempts:    4,
		InitialBackoff: 300 * time.Millisecond,
		PageSize:       100,
		MaxPages:       10,
	}
}

// CamaraClient handles communication with the Câmara API
type CamaraClient struct {
	client  *http.Client
	cfg     ClientConfig
	logger  *zap.Logger
	metrics *Metrics
}

// NewCamaraClient creates a new Câmara API client
func NewCamaraClient(cfg ClientConfig, logger *zap.Logger, metrics *Metrics) *CamaraClient {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 1
	}
	return &CamaraClient{
		client:  &http.Client{Timeout: cfg.Timeout},
		cfg:     cfg,
		logger:  logger.Named("camara"),
		metrics: metrics,
	}
}

// envelope is the common {dados, links} response shape
type envelope struct {
	Dados json.RawMessage `json:"dados"`
	Links []struct {
		Rel  string `json:"rel"`
		Href string `json:"href"`
	} `json:"links"`
}

func (e *envelope) next() string {
	for _, l := range e.Links {
		if l.Rel == "next" {
			return l.Href
		}
	}
	return ""
}

// deputyJSON is a deputy as listed in searches and vote lists
type deputyJSON struct {
	ID            int64  `json:"id"`
	URI           string `json:"uri"`
	Nome          string `json:"nome"`
	SiglaPartido  string `json:"siglaPartido"`
	URIPartido    string `json:"uriPartido"`
	SiglaUF       string `json:"siglaUf"`
	IDLegislatura int    `json:"idLegislatura"`
	URLFoto       string `json:"urlFoto"`
	Email         string `json:"email"`
}

// deputyDetailJSON is the /deputados/{id} payload
type deputyDetailJSON struct {
	ID           int64  `json:"id"`
	URI          string `json:"uri"`
	NomeCivil    string `json:"nomeCivil"`
	UltimoStatus struct {
		deputyJSON
		NomeEleitoral string `json:"nomeEleitoral"`
		Situacao      string `json:"situacao"`
	} `json:"ultimoStatus"`
}

type legislatureJSON struct {
	ID         int    `json:"id"`
	DataInicio string `json:"dataInicio"`
	DataFim    string `json:"dataFim"`
}

type billJSON struct {
	ID        int64  `json:"id"`
	URI       string `json:"uri"`
	SiglaTipo string `json:"siglaTipo"`
	Numero    int    `json:"numero"`
	Ano       int    `json:"ano"`
	Ementa    string `json:"ementa"`
}

type sessionJSON struct {
	ID                  string     `json:"id"`
	Data                string     `json:"data"`
	DataHoraRegistro    string     `json:"dataHoraRegistro"`
	SiglaOrgao          string     `json:"siglaOrgao"`
	Descricao           string     `json:"descricao"`
	Aprovacao           *int       `json:"aprovacao"`
	ProposicoesAfetadas []billJSON `json:"proposicoesAfetadas"`
}

type ballotJSON struct {
	TipoVoto string     `json:"tipoVoto"`
	Deputado deputyJSON `json:"deputado_"`
}

// FetchDeputy retrieves the full profile of a deputy
func (c *CamaraClient) FetchDeputy(ctx context.Context, id int64) (*model.Deputy, error) {
	env, err := c.fetch(ctx, "/deputados/{id}", fmt.Sprintf("/deputados/%d", id), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch deputy %d: %w", id, err)
	}

	var resp deputyDetailJSON
	if err := sonic.Unmarshal(env.Dados, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse deputy %d: %w", id, err)
	}

	d := convertDeputy(resp.UltimoStatus.deputyJSON)
	d.ID = resp.ID
	d.URI = resp.URI
	d.LegalName = resp.NomeCivil
	d.Status = resp.UltimoStatus.Situacao
	if d.ParliamentaryName == "" {
		d.ParliamentaryName = resp.UltimoStatus.NomeEleitoral
	}
	return &d, nil
}

// SearchDeputies lists deputies matching name, party and state
func (c *CamaraClient) SearchDeputies(ctx context.Context, q model.DeputyQuery) ([]model.Deputy, error) {
	params := url.Values{}
	if q.Name != "" {
		params.Set("nome", q.Name)
	}
	if q.Party != "" {
		params.Set("siglaPartido", q.Party)
	}
	if q.State != "" {
		params.Set("siglaUf", q.State)
	}
	params.Set("ordem", "ASC")
	params.Set("ordenarPor", "nome")

	items, err := fetchList[deputyJSON](ctx, c, "/deputados", "/deputados", params, true)
	if err != nil {
		return nil, fmt.Errorf("failed to search deputies: %w", err)
	}

	deputies := make([]model.Deputy, len(items))
	for i, item := range items {
		deputies[i] = convertDeputy(item)
	}
	return deputies, nil
}

// FetchLegislature retrieves the dates of a legislative period
func (c *CamaraClient) FetchLegislature(ctx context.Context, id int) (*model.LegislativePeriod, error) {
	env, err := c.fetch(ctx, "/legislaturas/{id}", fmt.Sprintf("/legislaturas/%d", id), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch legislature %d: %w", id, err)
	}

	var resp legislatureJSON
	if err := sonic.Unmarshal(env.Dados, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse legislature %d: %w", id, err)
	}

	return &model.LegislativePeriod{
		ID:    id,
		Start: parseUpstreamTime(resp.DataInicio),
		End:   parseUpstreamTime(resp.DataFim),
	}, nil
}

// FindBill resolves a bill by type, number and year. The API has no direct
// code lookup, so the filtered list is searched for an exact match.
func (c *CamaraClient) FindBill(ctx context.Context, billType string, number, year int) (*model.Bill, error) {
	params := url.Values{}
	params.Set("siglaTipo", billType)
	params.Set("numero", strconv.Itoa(number))
	params.Set("ano", strconv.Itoa(year))

	items, err := fetchList[billJSON](ctx, c, "/proposicoes", "/proposicoes", params, true)
	if err != nil {
		return nil, fmt.Errorf("failed to search bill %s: %w", model.BillCode(billType, number, year), err)
	}

	for _, item := range items {
		if item.SiglaTipo == billType && item.Numero == number && item.Ano == year {
			b := convertBill(item)
			return &b, nil
		}
	}

	return nil, NewRejectedError(http.StatusNotFound, "bill %s not found upstream", model.BillCode(billType, number, year))
}

// FetchBillSessions lists the voting sessions of a bill
func (c *CamaraClient) FetchBillSessions(ctx context.Context, billUpstreamID int64) ([]model.VotingSession, error) {
	path := fmt.Sprintf("/proposicoes/%d/votacoes", billUpstreamID)
	items, err := fetchList[sessionJSON](ctx, c, "/proposicoes/{id}/votacoes", path, url.Values{}, false)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sessions of bill %d: %w", billUpstreamID, err)
	}

	sessions := make([]model.VotingSession, len(items))
	for i, item := range items {
		sessions[i] = convertSession(item)
	}
	return sessions, nil
}

// FetchSessionVotes lists the individual votes of a session. Symbolic
// sessions return an empty list.
func (c *CamaraClient) FetchSessionVotes(ctx context.Context, sessionID string) ([]model.Ballot, error) {
	path := fmt.Sprintf("/votacoes/%s/votos", url.PathEscape(sessionID))
	items, err := fetchList[ballotJSON](ctx, c, "/votacoes/{id}/votos", path, url.Values{}, false)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch votes of session %s: %w", sessionID, err)
	}

	ballots := make([]model.Ballot, 0, len(items))
	for _, item := range items {
		if item.Deputado.ID == 0 {
			continue
		}
		ballots = append(ballots, model.Ballot{
			Deputy: convertDeputy(item.Deputado),
			Value:  convertVoteValue(item.TipoVoto),
		})
	}
	return ballots, nil
}

// FetchSession retrieves a session with the bills it affected
func (c *CamaraClient) FetchSession(ctx context.Context, sessionID string) (*model.SessionDetail, error) {
	path := fmt.Sprintf("/votacoes/%s", url.PathEscape(sessionID))
	env, err := c.fetch(ctx, "/votacoes/{id}", path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch session %s: %w", sessionID, err)
	}

	var resp sessionJSON
	if err := sonic.Unmarshal(env.Dados, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse session %s: %w", sessionID, err)
	}

	detail := &model.SessionDetail{Session: convertSession(resp)}
	for _, b := range resp.ProposicoesAfetadas {
		detail.Bills = append(detail.Bills, convertBill(b))
	}
	return detail, nil
}

// FetchRecentSessions lists sessions registered between two dates, newest first
func (c *CamaraClient) FetchRecentSessions(ctx context.Context, from, to time.Time) ([]model.VotingSession, error) {
	params := url.Values{}
	params.Set("dataInicio", from.Format("2006-01-02"))
	params.Set("dataFim", to.Format("2006-01-02"))
	params.Set("ordem", "DESC")
	params.Set("ordenarPor", "dataHoraRegistro")

	items, err := fetchList[sessionJSON](ctx, c, "/votacoes", "/votacoes", params, true)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch recent sessions: %w", err)
	}

	sessions := make([]model.VotingSession, len(items))
	for i, item := range items {
		sessions[i] = convertSession(item)
	}
	return sessions, nil
}

// fetchList decodes the dados array of an endpoint, following next links
// when the endpoint is paged
func fetchList[T any](ctx context.Context, c *CamaraClient, label, path string, params url.Values, paged bool) ([]T, error) {
	if paged {
		params.Set("itens", strconv.Itoa(c.cfg.PageSize))
		params.Set("pagina", "1")
	}

	next := c.url(path, params)
	var out []T
	for page := 0; next != "" && page < c.cfg.MaxPages; page++ {
		env, err := c.fetchURL(ctx, label, next)
		if err != nil {
			return nil, err
		}

		var items []T
		if len(env.Dados) > 0 {
			if err := sonic.Unmarshal(env.Dados, &items); err != nil {
				return nil, fmt.Errorf("failed to parse %s response: %w", label, err)
			}
		}
		out = append(out, items...)

		if !paged {
			break
		}
		next = env.next()
	}
	return out, nil
}

func (c *CamaraClient) url(path string, params url.Values) string {
	u := c.cfg.BaseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

func (c *CamaraClient) fetch(ctx context.Context, label, path string, params url.Values) (*envelope, error) {
	return c.fetchURL(ctx, label, c.url(path, params))
}

// fetchURL performs a GET with bounded exponential backoff. Transient
// failures are retried; rejections return immediately.
func (c *CamaraClient) fetchURL(ctx context.Context, label, target string) (*envelope, error) {
	var env envelope

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return NewTransientError(label, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return NewTransientError(label, err)
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return NewTransientError(label, fmt.Errorf("unexpected status code: %d", resp.StatusCode))
		case resp.StatusCode == http.StatusNotFound:
			return backoff.Permanent(NewRejectedError(http.StatusNotFound, "%s not found upstream", label))
		case resp.StatusCode >= 400:
			return backoff.Permanent(NewRejectedError(resp.StatusCode, "upstream rejected %s with status %d", label, resp.StatusCode))
		}

		env = envelope{}
		if err := sonic.Unmarshal(body, &env); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to parse %s response: %w", label, err))
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.cfg.InitialBackoff
	policy.MaxInterval = 5 * time.Second

	notify := func(err error, wait time.Duration) {
		c.metrics.upstreamRetry(label)
		c.logger.Warn("retrying upstream request",
			zap.String("endpoint", label),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	err := backoff.RetryNotify(op,
		backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.cfg.MaxAttempts-1)), ctx),
		notify,
	)
	c.metrics.upstreamRequest(label, err)
	if err != nil {
		return nil, err
	}
	return &env, nil
}
