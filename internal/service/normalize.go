package service

import (
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/Kayo-b/voto-db/internal/model"
)

var upstreamTimeLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// parseUpstreamTime parses the API's zone-less timestamps as UTC; an
// unparseable value yields the zero time
func parseUpstreamTime(s string) time.Time {
	for _, layout := range upstreamTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t
		}
	}
	return time.Time{}
}

func convertDeputy(d deputyJSON) model.Deputy {
	party := strings.ToUpper(strings.TrimSpace(d.SiglaPartido))
	if party == "" {
		party = model.NoPartyAbbreviation
	}
	return model.Deputy{
		ID:                d.ID,
		ParliamentaryName: strings.TrimSpace(d.Nome),
		State:             strings.ToUpper(d.SiglaUF),
		PhotoURL:          d.URLFoto,
		Email:             d.Email,
		URI:               d.URI,
		PartyAbbreviation: party,
		PartyURI:          d.URIPartido,
		LegislatureID:     d.IDLegislatura,
	}
}

func convertBill(b billJSON) model.Bill {
	billType := strings.ToUpper(strings.TrimSpace(b.SiglaTipo))
	return model.Bill{
		UpstreamID: b.ID,
		Code:       model.BillCode(billType, b.Numero, b.Ano),
		Summary:    strings.TrimSpace(b.Ementa),
		Type:       billType,
		Number:     b.Numero,
		Year:       b.Ano,
		URI:        b.URI,
	}
}

func convertSession(s sessionJSON) model.VotingSession {
	occurred := parseUpstreamTime(s.DataHoraRegistro)
	if occurred.IsZero() {
		occurred = parseUpstreamTime(s.Data)
	}

	outcome := model.OutcomePending
	if s.Aprovacao != nil {
		outcome = model.OutcomeRejected
		if *s.Aprovacao == 1 {
			outcome = model.OutcomeApproved
		}
	}

	return model.VotingSession{
		UpstreamID:  s.ID,
		OccurredAt:  occurred,
		Description: strings.TrimSpace(s.Descricao),
		Organ:       strings.ToUpper(s.SiglaOrgao),
		Outcome:     outcome,
		Kind:        classifySession(s.Descricao),
	}
}

func convertVoteValue(tipoVoto string) model.VoteValue {
	switch foldText(tipoVoto) {
	case "sim":
		return model.VoteYes
	case "nao":
		return model.VoteNo
	case "abstencao":
		return model.VoteAbstain
	case "obstrucao":
		return model.VoteObstruction
	case "ausente":
		return model.VoteAbsent
	}
	return model.VoteOther
}

// classifySession marks urgency requests apart from ordinary nominal votes
func classifySession(description string) model.SessionKind {
	if strings.Contains(foldText(description), "urgencia") {
		return model.KindUrgency
	}
	return model.KindNominal
}

// foldText lowercases and strips accents for keyword matching
func foldText(s string) string {
	var b strings.Builder
	for _, r := range norm.NFD.String(strings.ToLower(strings.TrimSpace(s))) {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
