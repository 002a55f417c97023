package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/Kayo-b/voto-db/internal/config"
	"github.com/Kayo-b/voto-db/internal/logger"
	"github.com/Kayo-b/voto-db/internal/service"
	"github.com/Kayo-b/voto-db/internal/store"
)

var (
	cfgFile string
	cfg     *config.Config
	log     *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "voto-db",
	Short: "Local cache and analysis of Câmara dos Deputados votes",
	Long: `voto-db keeps a local copy of deputies, bills and nominal votes from the
Câmara dos Deputados open data API and derives per-deputy voting statistics
over a curated set of monitored bills.

Data is served from the local store while fresh and refetched upstream when
stale. If the upstream API is down, stale data is served as degraded.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(viper.GetViper())
		if err != nil {
			return err
		}
		cfg = loaded

		l, err := logger.New(cfg.LogLevel, cfg.Debug)
		if err != nil {
			return err
		}
		log = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (YAML, JSON or TOML)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("debug", false, "Development logging and strict integrity checks")
	rootCmd.PersistentFlags().String("backend", store.BackendSQL, "Storage backend (sql, file, passthrough)")

	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("store.backend", rootCmd.PersistentFlags().Lookup("backend"))
}

func initConfig() {
	if err := config.Init(viper.GetViper(), cfgFile); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app holds the services shared by every command
type app struct {
	backend  store.Backend
	registry *prometheus.Registry
	metrics  *service.Metrics
	orch     *service.Orchestrator
	curator  *service.BillCurator
	analyzer *service.Analyzer
	system   *service.MetricsService
}

// newApp opens the configured backend and wires the services on top of it
func newApp(ctx context.Context) (*app, error) {
	backend, err := store.Open(ctx, cfg.Store, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := service.NewMetrics(reg)

	client := service.NewCamaraClient(cfg.Upstream, log, metrics)
	orch := service.NewOrchestrator(backend, client, cfg.Sync, log, metrics)

	return &app{
		backend:  backend,
		registry: reg,
		metrics:  metrics,
		orch:     orch,
		curator:  service.NewBillCurator(orch, backend, log),
		analyzer: service.NewAnalyzer(orch, backend, log, metrics),
		system:   service.NewMetricsService(backend),
	}, nil
}

func (a *app) Close() {
	if err := a.backend.Close(); err != nil {
		log.Warn("failed to close store", zap.Error(err))
	}
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			log.Info("received interrupt signal, shutting down...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, cancel
}
