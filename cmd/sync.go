package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Kayo-b/voto-db/internal/service"
)

var syncDays int

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Refresh monitored bills and recent votes from the Câmara API",
	Long: `Sync forces a refresh of every monitored bill's voting sessions and of the
recent votes window, then sweeps expired cache entries.

Run it from cron to keep the local store warm. Bills that fail upstream keep
their stored data and are reported in the summary.

Examples:
  # Refresh monitored bills and the last 7 days of votes
  voto-db sync

  # Use a 30 day window for recent votes
  voto-db sync --days 30`,
	Run: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().IntVarP(&syncDays, "days", "d", 7, "Recent votes window in days (1-90)")
}

func runSync(cmd *cobra.Command, args []string) {
	if syncDays < 1 || syncDays > 90 {
		log.Fatal("--days must be between 1 and 90", zap.Int("days", syncDays))
	}

	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		log.Fatal("failed to start", zap.Error(err))
	}
	defer a.Close()

	syncer := service.NewSyncer(a.orch, a.backend, log)

	log.Info("starting sync", zap.Int("days", syncDays), zap.String("backend", a.backend.Name()))
	stats, err := syncer.Run(ctx, syncDays)
	if err != nil {
		if ctx.Err() != nil {
			log.Warn("sync cancelled")
			if stats != nil {
				syncer.PrintSummary(stats)
			}
			a.Close()
			os.Exit(1)
		}
		log.Fatal("sync failed", zap.Error(err))
	}
	syncer.PrintSummary(stats)

	if stats.Failed > 0 {
		a.Close()
		os.Exit(1)
	}
}
