package handlers

import (
	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/Kayo-b/voto-db/internal/service"
	"github.com/Kayo-b/voto-db/internal/store"
)

// Deps are the services the HTTP API is built on
type Deps struct {
	Backend      store.Backend
	Orchestrator *service.Orchestrator
	Curator      *service.BillCurator
	Analyzer     *service.Analyzer
	System       *service.MetricsService
	Registry     *prometheus.Registry
	Logger       *zap.Logger
	AccessLog    bool
}

// NewApp builds the fiber application with every route registered
func NewApp(d Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "voto-db",
		JSONEncoder:  sonic.Marshal,
		JSONDecoder:  sonic.Unmarshal,
		ErrorHandler: ErrorHandler,
	})

	app.Use(recover.New())
	if d.AccessLog {
		app.Use(logger.New())
	}

	// Routes
	app.Get("/", HomeHandler(d.System, d.Curator, d.Logger))
	app.Get("/metrics", MetricsHandler(d.Registry))

	api := app.Group("/api")

	// Deputy routes
	api.Get("/deputados", SearchDeputiesHandler(d.Orchestrator))
	api.Get("/deputados/:id", DeputyHandler(d.Orchestrator))
	api.Get("/deputados/:id/votacoes", DeputyVotesHandler(d.Orchestrator))
	api.Get("/deputados/:id/analise", DeputyAnalysisHandler(d.Analyzer))

	// Bill routes
	api.Get("/proposicoes", BillsHandler(d.Curator))
	api.Get("/proposicoes/buscar", FindBillHandler(d.Orchestrator))
	api.Get("/proposicoes/validar", ValidateBillHandler(d.Curator))
	api.Post("/proposicoes", AddBillHandler(d.Curator))
	api.Get("/proposicoes/:id/votacoes", BillSessionsHandler(d.Orchestrator, d.Backend))
	api.Get("/proposicoes/:id/analise", BillAnalysisHandler(d.Analyzer))
	api.Delete("/proposicoes/:id", RemoveBillHandler(d.Curator))

	// Vote routes
	api.Get("/votacoes/recentes", RecentVotesHandler(d.Orchestrator))

	// System routes
	api.Get("/health", HealthHandler(d.System, d.Backend.Name()))
	api.Get("/cache/stats", CacheStatsHandler(d.System))
	api.Post("/cache/limpar", SweepHandler(d.System))
	api.Delete("/cache/:key", InvalidateHandler(d.System))

	return app
}
