package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/Kayo-b/voto-db/internal/model"
	"github.com/Kayo-b/voto-db/internal/service"
	"github.com/Kayo-b/voto-db/internal/store"
)

type billListQuery struct {
	Type      string `query:"tipo" validate:"omitempty,alpha,max=6"`
	Year      int    `query:"ano" validate:"omitempty,gte=1900,lte=2100"`
	Relevance string `query:"relevancia" validate:"omitempty,oneof=alta média media baixa"`
}

// BillsHandler lists the monitored bills
func BillsHandler(curator *service.BillCurator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var q billListQuery
		if err := parseQuery(c, &q); err != nil {
			return fail(c, err)
		}

		f := store.BillFilter{Type: strings.ToUpper(q.Type), Year: q.Year}
		if q.Relevance != "" {
			f.Relevance, _ = model.ParseRelevance(q.Relevance)
		}

		bills, err := curator.ListMonitored(c.UserContext(), f)
		if err != nil {
			return fail(c, err)
		}
		return respond(c, service.Result[[]model.Bill]{Data: bills, FromCache: true})
	}
}

type billLookupQuery struct {
	Type   string `query:"tipo" validate:"required,alpha,max=6"`
	Number int    `query:"numero" validate:"required,gt=0"`
	Year   int    `query:"ano" validate:"required,gte=1900,lte=2100"`
	Force  bool   `query:"force"`
}

// FindBillHandler resolves a bill by type, number and year
func FindBillHandler(orch *service.Orchestrator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var q billLookupQuery
		if err := parseQuery(c, &q); err != nil {
			return fail(c, err)
		}

		code := model.BillCode(strings.ToUpper(q.Type), q.Number, q.Year)
		res, err := orch.GetBill(c.UserContext(), code, q.Force)
		if err != nil {
			return fail(c, err)
		}
		return respond(c, res)
	}
}

type billCodeQuery struct {
	Code string `query:"codigo" validate:"required,max=32"`
}

// ValidateBillHandler checks a bill upstream without storing it
func ValidateBillHandler(curator *service.BillCurator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var q billCodeQuery
		if err := parseQuery(c, &q); err != nil {
			return fail(c, err)
		}

		v, err := curator.Validate(c.UserContext(), q.Code)
		if err != nil {
			return fail(c, err)
		}
		return ok(c, fiber.StatusOK, v)
	}
}

// AddBillHandler adds a bill to the monitored set
func AddBillHandler(curator *service.BillCurator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req service.AddBillRequest
		if err := c.BodyParser(&req); err != nil {
			return fail(c, service.NewRejectedError(http.StatusBadRequest, "invalid body: %v", err))
		}

		bill, err := curator.Add(c.UserContext(), req)
		if err != nil {
			return fail(c, err)
		}
		return ok(c, fiber.StatusCreated, bill)
	}
}

// RemoveBillHandler deletes a monitored bill
func RemoveBillHandler(curator *service.BillCurator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := paramID(c)
		if err != nil {
			return fail(c, err)
		}

		if err := curator.Remove(c.UserContext(), id); err != nil {
			return fail(c, err)
		}
		return ok(c, fiber.StatusOK, fiber.Map{"removida": id})
	}
}

// BillSessionsHandler returns a stored bill's sessions with their votes
func BillSessionsHandler(orch *service.Orchestrator, backend store.Backend) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := paramID(c)
		if err != nil {
			return fail(c, err)
		}
		var q forceQuery
		if err := parseQuery(c, &q); err != nil {
			return fail(c, err)
		}

		bill, err := backend.GetBill(c.UserContext(), id)
		if err != nil {
			return fail(c, err)
		}

		res, err := orch.BillSessions(c.UserContext(), *bill, q.Force)
		if err != nil {
			return fail(c, err)
		}
		return respond(c, res)
	}
}

// BillAnalysisHandler breaks down the principal vote of a stored bill
func BillAnalysisHandler(analyzer *service.Analyzer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := paramID(c)
		if err != nil {
			return fail(c, err)
		}
		var q forceQuery
		if err := parseQuery(c, &q); err != nil {
			return fail(c, err)
		}

		res, err := analyzer.AnalyzeBill(c.UserContext(), id, q.Force)
		if err != nil {
			return fail(c, err)
		}
		return respond(c, res)
	}
}
