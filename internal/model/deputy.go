package model

import "time"

// NoPartyAbbreviation is the placeholder party for deputies without one
const NoPartyAbbreviation = "S/P"

// LegislativePeriod represents a legislatura, keyed by its upstream number
type LegislativePeriod struct {
	ID        int       `json:"id"`
	Start     time.Time `json:"inicio"`
	End       time.Time `json:"fim"`
	CreatedAt time.Time `json:"criado_em"`
}

// Party represents a political party
type Party struct {
	ID           int64     `json:"id"`
	Abbreviation string    `json:"sigla"`
	Name         string    `json:"nome"`
	URI          string    `json:"uri,omitempty"`
	CreatedAt    time.Time `json:"criado_em"`
	UpdatedAt    time.Time `json:"atualizado_em"`
}

// Deputy represents a federal deputy, keyed by the upstream id
type Deputy struct {
	ID                int64     `json:"id"`
	LegalName         string    `json:"nome_civil,omitempty"`
	ParliamentaryName string    `json:"nome"`
	State             string    `json:"sigla_uf"`
	PhotoURL          string    `json:"url_foto,omitempty"`
	Email             string    `json:"email,omitempty"`
	Status            string    `json:"situacao,omitempty"`
	URI               string    `json:"uri,omitempty"`
	PartyID           int64     `json:"partido_id"`
	PartyAbbreviation string    `json:"sigla_partido"`
	PartyURI          string    `json:"uri_partido,omitempty"`
	LegislatureID     int       `json:"id_legislatura"`
	CreatedAt         time.Time `json:"criado_em"`
	UpdatedAt         time.Time `json:"atualizado_em"`
}

// DeputyQuery holds the upstream search parameters for deputies
type DeputyQuery struct {
	Name  string
	Party string
	State string
}
