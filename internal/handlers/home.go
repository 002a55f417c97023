package handlers

import (
	"github.com/a-h/templ"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"go.uber.org/zap"

	"github.com/Kayo-b/voto-db/internal/model"
	"github.com/Kayo-b/voto-db/internal/service"
	"github.com/Kayo-b/voto-db/internal/store"
	"github.com/Kayo-b/voto-db/internal/templates"
)

// HomeHandler renders the status page with store counts and the high
// relevance bills
func HomeHandler(system *service.MetricsService, curator *service.BillCurator, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()

		data := templates.StatusData{Healthy: system.Health(ctx) == nil}

		// Try to load counts from the store
		m, err := system.Calculate(ctx)
		if err != nil {
			logger.Warn("failed to load store metrics", zap.Error(err))
		} else {
			data.Backend = m.Backend
			data.Counts = m.Counts
			data.Ledger = m.Ledger
			data.HasData = m.Counts.Deputies > 0 || m.Counts.Bills > 0
		}

		if data.HasData {
			bills, err := curator.ListMonitored(ctx, store.BillFilter{Relevance: model.RelevanceHigh})
			if err != nil {
				logger.Warn("failed to list monitored bills", zap.Error(err))
			} else {
				data.Monitored = bills
			}
		}

		page := templates.Status(data)
		handler := adaptor.HTTPHandler(templ.Handler(page))

		return handler(c)
	}
}
