package model

import "time"

// DeputyStatistics is the derived voting profile of a deputy
type DeputyStatistics struct {
	ID             int64         `json:"id"`
	DeputyID       int64         `json:"deputado_id"`
	TotalAnalyzed  int           `json:"total_votacoes_analisadas"`
	Favorable      int           `json:"votos_favoraveis"`
	Contrary       int           `json:"votos_contrarios"`
	Abstentions    int           `json:"abstencoes"`
	Obstructions   int           `json:"obstrucoes"`
	Absences       int           `json:"ausencias"`
	Attendance     float64       `json:"presenca_percentual"`
	BillsAnalyzed  int           `json:"proposicoes_analisadas"`
	BillsAttempted int           `json:"proposicoes_tentadas"`
	SuccessRate    float64       `json:"taxa_sucesso"`
	IncludeAll     bool          `json:"incluir_todas"`
	History        []BillOutcome `json:"historico_votacoes"`
	ComputedAt     time.Time     `json:"analisado_em"`
}

// BillOutcome is the deputy's position on one analyzed bill
type BillOutcome struct {
	BillCode    string    `json:"proposicao"`
	BillTitle   string    `json:"titulo"`
	Relevance   Relevance `json:"relevancia"`
	SessionID   string    `json:"votacao_id"`
	OccurredAt  time.Time `json:"data"`
	Description string    `json:"descricao"`
	Value       VoteValue `json:"voto"`
}

// VoteTally counts votes by value
type VoteTally struct {
	Yes         int `json:"sim"`
	No          int `json:"nao"`
	Abstain     int `json:"abstencao"`
	Obstruction int `json:"obstrucao"`
	Absent      int `json:"ausente"`
	Other       int `json:"outros"`
	Total       int `json:"total"`
}

// Add counts one vote
func (t *VoteTally) Add(v VoteValue) {
	t.Total++
	switch v {
	case VoteYes:
		t.Yes++
	case VoteNo:
		t.No++
	case VoteAbstain:
		t.Abstain++
	case VoteObstruction:
		t.Obstruction++
	case VoteAbsent:
		t.Absent++
	default:
		t.Other++
	}
}

// PartyTally is the vote count of one party
type PartyTally struct {
	Party string `json:"partido"`
	VoteTally
}

// BillAnalysis breaks down the principal session of a bill
type BillAnalysis struct {
	Bill            Bill          `json:"proposicao"`
	Principal       VotingSession `json:"votacao_principal"`
	TotalSessions   int           `json:"total_votacoes"`
	NominalSessions int           `json:"votacoes_nominais"`
	Distribution    VoteTally     `json:"distribuicao_votos"`
	ByParty         []PartyTally  `json:"por_partido"`
}
