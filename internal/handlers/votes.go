package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/Kayo-b/voto-db/internal/model"
	"github.com/Kayo-b/voto-db/internal/service"
)

type recentVotesQuery struct {
	Days  int    `query:"dias" validate:"gte=1,lte=90"`
	Kind  string `query:"tipo" validate:"omitempty,oneof=nominais urgencia todas"`
	Force bool   `query:"force"`
}

var sessionKinds = map[string]model.SessionKind{
	"nominais": model.KindNominal,
	"urgencia": model.KindUrgency,
	"todas":    "",
}

// RecentVotesHandler lists sessions voted in the last days
func RecentVotesHandler(orch *service.Orchestrator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		q := recentVotesQuery{Days: 7}
		if err := parseQuery(c, &q); err != nil {
			return fail(c, err)
		}

		res, err := orch.RecentVotes(c.UserContext(), q.Days, sessionKinds[q.Kind], q.Force)
		if err != nil {
			return fail(c, err)
		}
		return respond(c, res)
	}
}
