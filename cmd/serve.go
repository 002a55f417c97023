package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/Kayo-b/voto-db/internal/handlers"
)

var accessLog bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the voto-db HTTP API",
	Long: `Start the HTTP API that serves deputies, bills, votes and deputy analyses.

Examples:
  # Serve on the default port with the configured store
  voto-db serve

  # Serve from a local JSON file store without a database
  voto-db serve --backend file --port 3000`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()

		a, err := newApp(ctx)
		if err != nil {
			log.Fatal("failed to start", zap.Error(err))
		}
		defer a.Close()

		app := handlers.NewApp(handlers.Deps{
			Backend:      a.backend,
			Orchestrator: a.orch,
			Curator:      a.curator,
			Analyzer:     a.analyzer,
			System:       a.system,
			Registry:     a.registry,
			Logger:       log,
			AccessLog:    accessLog,
		})

		go func() {
			<-ctx.Done()
			if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
				log.Error("failed to shut down server", zap.Error(err))
			}
		}()

		log.Info("starting server",
			zap.String("port", cfg.Port),
			zap.String("backend", a.backend.Name()))
		if err := app.Listen(":" + cfg.Port); err != nil && ctx.Err() == nil {
			log.Fatal("failed to start server", zap.Error(err))
		}
		if ctx.Err() == context.Canceled {
			log.Info("server stopped")
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("port", "p", "8080", "Port to run the server on")
	serveCmd.Flags().BoolVar(&accessLog, "access-log", true, "Log every HTTP request")
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}
