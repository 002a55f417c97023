package model

import (
	"fmt"
	"time"
)

// Relevance is the operator-curated importance tier of a bill
type Relevance string

const (
	RelevanceHigh   Relevance = "alta"
	RelevanceMedium Relevance = "média"
	RelevanceLow    Relevance = "baixa"
)

// ParseRelevance accepts the tier with or without accents
func ParseRelevance(s string) (Relevance, bool) {
	switch s {
	case "alta":
		return RelevanceHigh, true
	case "média", "media":
		return RelevanceMedium, true
	case "baixa":
		return RelevanceLow, true
	}
	return "", false
}

// Bill represents a legislative proposal (proposição)
type Bill struct {
	ID         int64     `json:"id"`
	UpstreamID int64     `json:"id_camara"`
	Code       string    `json:"codigo"`
	Title      string    `json:"titulo"`
	Summary    string    `json:"ementa"`
	Type       string    `json:"tipo"`
	Number     int       `json:"numero"`
	Year       int       `json:"ano"`
	URI        string    `json:"uri,omitempty"`
	Relevance  Relevance `json:"relevancia"`
	Monitored  bool      `json:"monitorada"`
	CreatedAt  time.Time `json:"criado_em"`
	UpdatedAt  time.Time `json:"atualizado_em"`
}

// BillCode formats the natural code of a bill, e.g. "PL 6787/2016"
func BillCode(billType string, number, year int) string {
	return fmt.Sprintf("%s %d/%d", billType, number, year)
}
