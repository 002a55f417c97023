package model

import "time"

// VoteValue is the closed set of recorded vote choices
type VoteValue string

const (
	VoteYes         VoteValue = "Sim"
	VoteNo          VoteValue = "Não"
	VoteAbstain     VoteValue = "Abstenção"
	VoteObstruction VoteValue = "Obstrução"
	VoteAbsent      VoteValue = "Ausente"
	// VoteOther is a recorded row without a position, such as "Artigo 17"
	// for the presiding officer. It counts as present.
	VoteOther VoteValue = "Outro"
)

// Outcome is the result of a voting session
type Outcome string

const (
	OutcomeApproved Outcome = "aprovada"
	OutcomeRejected Outcome = "rejeitada"
	OutcomePending  Outcome = "pendente"
)

// SessionKind distinguishes urgency requests from ordinary nominal votes
type SessionKind string

const (
	KindNominal SessionKind = "nominal"
	KindUrgency SessionKind = "urgencia"
)

// VotingSession represents one recorded vote event on a bill
type VotingSession struct {
	ID          int64       `json:"id"`
	UpstreamID  string      `json:"id_camara"`
	BillID      int64       `json:"proposicao_id"`
	OccurredAt  time.Time   `json:"data"`
	Description string      `json:"descricao"`
	Organ       string      `json:"orgao"`
	Outcome     Outcome     `json:"resultado"`
	Kind        SessionKind `json:"tipo"`
	CreatedAt   time.Time   `json:"criado_em"`
	UpdatedAt   time.Time   `json:"atualizado_em"`
}

// Vote is a single deputy's choice in a session
type Vote struct {
	ID        int64     `json:"id"`
	DeputyID  int64     `json:"deputado_id"`
	SessionID int64     `json:"votacao_id"`
	Value     VoteValue `json:"voto"`
	CreatedAt time.Time `json:"criado_em"`
	UpdatedAt time.Time `json:"atualizado_em"`
}

// Ballot is a vote as reported upstream, carrying the voter's summary
type Ballot struct {
	Deputy Deputy
	Value  VoteValue
}

// SessionVotes groups a session with its recorded votes
type SessionVotes struct {
	Session VotingSession `json:"votacao"`
	Votes   []Vote        `json:"votos"`
}

// Nominal reports whether individual votes were recorded
func (s SessionVotes) Nominal() bool {
	return len(s.Votes) > 0
}

// SessionDetail is an upstream session with the bills it affected
type SessionDetail struct {
	Session VotingSession
	Bills   []Bill
}

// SessionSummary is a recent-votes listing row
type SessionSummary struct {
	Session    VotingSession `json:"votacao"`
	BillCode   string        `json:"proposicao_codigo"`
	BillTitle  string        `json:"proposicao_titulo"`
	VotesCount int           `json:"total_votos"`
}

// VoteRecord is one entry of a deputy's voting history
type VoteRecord struct {
	SessionUpstreamID string      `json:"votacao_id"`
	OccurredAt        time.Time   `json:"data"`
	Description       string      `json:"descricao"`
	Organ             string      `json:"orgao"`
	Kind              SessionKind `json:"tipo"`
	Outcome           Outcome     `json:"resultado"`
	BillCode          string      `json:"proposicao_codigo"`
	BillTitle         string      `json:"proposicao_titulo"`
	Value             VoteValue   `json:"voto"`
}
