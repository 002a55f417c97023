package model

import "time"

// CacheEntry tracks freshness of a collection query
type CacheEntry struct {
	Key       string    `json:"chave"`
	Category  string    `json:"tipo"`
	ExpiresAt time.Time `json:"expira_em"`
	CreatedAt time.Time `json:"criado_em"`
}

// LedgerStats summarizes the cache ledger
type LedgerStats struct {
	Total      int            `json:"total"`
	Expired    int            `json:"expiradas"`
	ByCategory map[string]int `json:"por_tipo"`
}

// StoreCounts holds row counts per entity table
type StoreCounts struct {
	Legislatures int `json:"legislaturas"`
	Parties      int `json:"partidos"`
	Deputies     int `json:"deputados"`
	Bills        int `json:"proposicoes"`
	Monitored    int `json:"proposicoes_monitoradas"`
	Sessions     int `json:"votacoes"`
	Votes        int `json:"votos"`
	Statistics   int `json:"estatisticas"`
}
