package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/Kayo-b/voto-db/internal/service"
	"github.com/Kayo-b/voto-db/internal/store"
)

type deputySearchQuery struct {
	Name  string `query:"nome" validate:"max=100"`
	Party string `query:"partido" validate:"max=20"`
	State string `query:"uf" validate:"omitempty,len=2,alpha"`
	Limit int    `query:"limit" validate:"gte=0,lte=1000"`
	Force bool   `query:"force"`
}

// SearchDeputiesHandler lists deputies by name, party and state
func SearchDeputiesHandler(orch *service.Orchestrator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var q deputySearchQuery
		if err := parseQuery(c, &q); err != nil {
			return fail(c, err)
		}

		res, err := orch.SearchDeputies(c.UserContext(), store.DeputyFilter{
			Name:  q.Name,
			Party: q.Party,
			State: q.State,
			Limit: q.Limit,
		}, q.Force)
		if err != nil {
			return fail(c, err)
		}
		return respond(c, res)
	}
}

type forceQuery struct {
	Force bool `query:"force"`
}

// DeputyHandler returns a deputy's full profile
func DeputyHandler(orch *service.Orchestrator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := paramID(c)
		if err != nil {
			return fail(c, err)
		}
		var q forceQuery
		if err := parseQuery(c, &q); err != nil {
			return fail(c, err)
		}

		res, err := orch.GetDeputy(c.UserContext(), id, q.Force)
		if err != nil {
			return fail(c, err)
		}
		return respond(c, res)
	}
}

type deputyVotesQuery struct {
	Limit int `query:"limit" validate:"gte=0,lte=500"`
}

// DeputyVotesHandler returns the stored voting history of a deputy
func DeputyVotesHandler(orch *service.Orchestrator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := paramID(c)
		if err != nil {
			return fail(c, err)
		}
		q := deputyVotesQuery{Limit: 50}
		if err := parseQuery(c, &q); err != nil {
			return fail(c, err)
		}

		res, err := orch.DeputyVotes(c.UserContext(), id, q.Limit)
		if err != nil {
			return fail(c, err)
		}
		return respond(c, res)
	}
}

type analysisQuery struct {
	IncludeAll bool `query:"incluir_todas"`
	Force      bool `query:"force"`
}

// DeputyAnalysisHandler returns the deputy's voting statistics
func DeputyAnalysisHandler(analyzer *service.Analyzer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := paramID(c)
		if err != nil {
			return fail(c, err)
		}
		var q analysisQuery
		if err := parseQuery(c, &q); err != nil {
			return fail(c, err)
		}

		res, err := analyzer.Analyze(c.UserContext(), id, q.IncludeAll, q.Force)
		if err != nil {
			return fail(c, err)
		}
		return respond(c, res)
	}
}
