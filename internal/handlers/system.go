package handlers

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Kayo-b/voto-db/internal/service"
)

// HealthHandler reports whether the store answers
func HealthHandler(system *service.MetricsService, backendName string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 3*time.Second)
		defer cancel()

		status := "ok"
		code := fiber.StatusOK
		if err := system.Health(ctx); err != nil {
			status = "degraded"
			code = fiber.StatusServiceUnavailable
		}
		return c.Status(code).JSON(Envelope{
			Success: code == fiber.StatusOK,
			Data: fiber.Map{
				"status":  status,
				"backend": backendName,
			},
		})
	}
}

// CacheStatsHandler returns ledger statistics and entity counts
func CacheStatsHandler(system *service.MetricsService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		m, err := system.Calculate(c.UserContext())
		if err != nil {
			return fail(c, err)
		}
		return ok(c, fiber.StatusOK, m)
	}
}

// SweepHandler deletes expired ledger entries
func SweepHandler(system *service.MetricsService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		removed, err := system.Sweep(c.UserContext())
		if err != nil {
			return fail(c, err)
		}
		return ok(c, fiber.StatusOK, fiber.Map{"removidas": removed})
	}
}

// InvalidateHandler forces the next read of a ledger key to refetch
func InvalidateHandler(system *service.MetricsService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key, err := url.PathUnescape(c.Params("key"))
		if err != nil || key == "" {
			return fail(c, service.NewRejectedError(http.StatusBadRequest, "invalid cache key"))
		}

		if err := system.Invalidate(c.UserContext(), key); err != nil {
			return fail(c, err)
		}
		return ok(c, fiber.StatusOK, fiber.Map{"invalidada": key})
	}
}

// MetricsHandler exposes the Prometheus registry
func MetricsHandler(reg *prometheus.Registry) fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
}
