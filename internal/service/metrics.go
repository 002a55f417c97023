package service

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Kayo-b/voto-db/internal/model"
	"github.com/Kayo-b/voto-db/internal/store"
)

// Metrics holds the Prometheus collectors of the sync layer. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	cacheLookups     *prometheus.CounterVec
	upstreamRequests *prometheus.CounterVec
	upstreamRetries  *prometheus.CounterVec
	sharedFetches    *prometheus.CounterVec
	analyses         *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "votodb",
			Name:      "cache_lookups_total",
			Help:      "Resource resolutions by outcome (hit, miss, stale, degraded, error).",
		}, []string{"resource", "outcome"}),
		upstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "votodb",
			Name:      "upstream_requests_total",
			Help:      "Upstream API requests after retries, by endpoint and result.",
		}, []string{"endpoint", "result"}),
		upstreamRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "votodb",
			Name:      "upstream_retries_total",
			Help:      "Upstream API retries by endpoint.",
		}, []string{"endpoint"}),
		sharedFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "votodb",
			Name:      "shared_fetches_total",
			Help:      "Resolutions that joined a fetch already in flight.",
		}, []string{"resource"}),
		analyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "votodb",
			Name:      "analyses_total",
			Help:      "Deputy analyses by result (computed, cached, failed).",
		}, []string{"result"}),
	}

	reg.MustRegister(m.cacheLookups, m.upstreamRequests, m.upstreamRetries, m.sharedFetches, m.analyses)
	return m
}

func (m *Metrics) cacheLookup(resource, outcome string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(resource, outcome).Inc()
}

func (m *Metrics) upstreamRequest(endpoint string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	switch {
	case err == nil:
	case IsRejected(err):
		result = "rejected"
	default:
		result = "failed"
	}
	m.upstreamRequests.WithLabelValues(endpoint, result).Inc()
}

func (m *Metrics) upstreamRetry(endpoint string) {
	if m == nil {
		return
	}
	m.upstreamRetries.WithLabelValues(endpoint).Inc()
}

func (m *Metrics) sharedFetch(resource string) {
	if m == nil {
		return
	}
	m.sharedFetches.WithLabelValues(resource).Inc()
}

func (m *Metrics) analysis(result string) {
	if m == nil {
		return
	}
	m.analyses.WithLabelValues(result).Inc()
}

// MetricsService reports what the store and cache ledger currently hold
type MetricsService struct {
	backend store.Backend
}

// NewMetricsService creates a new MetricsService
func NewMetricsService(backend store.Backend) *MetricsService {
	return &MetricsService{backend: backend}
}

// SystemMetrics represents the current state of the local cache
type SystemMetrics struct {
	Backend string            `json:"backend"`
	Counts  model.StoreCounts `json:"entidades"`
	Ledger  model.LedgerStats `json:"cache"`
}

// Calculate gathers entity counts and ledger statistics
func (m *MetricsService) Calculate(ctx context.Context) (*SystemMetrics, error) {
	counts, err := m.backend.Counts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count entities: %w", err)
	}

	ledger, err := m.backend.LedgerStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read cache ledger: %w", err)
	}

	return &SystemMetrics{
		Backend: m.backend.Name(),
		Counts:  counts,
		Ledger:  ledger,
	}, nil
}

// Health pings the backend
func (m *MetricsService) Health(ctx context.Context) error {
	return m.backend.Ping(ctx)
}

// Sweep removes expired cache ledger entries
func (m *MetricsService) Sweep(ctx context.Context) (int64, error) {
	return m.backend.SweepExpired(ctx)
}

// Invalidate forces the next read of key to miss
func (m *MetricsService) Invalidate(ctx context.Context, key string) error {
	return m.backend.Invalidate(ctx, key)
}
