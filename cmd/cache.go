package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the cache ledger",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show stored entity counts and cache ledger statistics",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()

		a, err := newApp(ctx)
		if err != nil {
			log.Fatal("failed to start", zap.Error(err))
		}
		defer a.Close()

		m, err := a.system.Calculate(ctx)
		if err != nil {
			a.Close()
			log.Fatal("failed to read stats", zap.Error(err))
		}

		log.Info("=== Store ===")
		log.Info(fmt.Sprintf("Backend:       %s", m.Backend))
		log.Info(fmt.Sprintf("Deputies:      %d", m.Counts.Deputies))
		log.Info(fmt.Sprintf("Parties:       %d", m.Counts.Parties))
		log.Info(fmt.Sprintf("Bills:         %d (%d monitored)", m.Counts.Bills, m.Counts.Monitored))
		log.Info(fmt.Sprintf("Sessions:      %d", m.Counts.Sessions))
		log.Info(fmt.Sprintf("Votes:         %d", m.Counts.Votes))
		log.Info(fmt.Sprintf("Statistics:    %d", m.Counts.Statistics))
		log.Info("=== Cache ledger ===")
		log.Info(fmt.Sprintf("Entries:       %d (%d expired)", m.Ledger.Total, m.Ledger.Expired))

		categories := make([]string, 0, len(m.Ledger.ByCategory))
		for cat := range m.Ledger.ByCategory {
			categories = append(categories, cat)
		}
		sort.Strings(categories)
		for _, cat := range categories {
			log.Info(fmt.Sprintf("  %-12s %d", cat, m.Ledger.ByCategory[cat]))
		}
	},
}

var cacheSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete expired cache ledger entries",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()

		a, err := newApp(ctx)
		if err != nil {
			log.Fatal("failed to start", zap.Error(err))
		}
		defer a.Close()

		removed, err := a.system.Sweep(ctx)
		if err != nil {
			a.Close()
			log.Fatal("failed to sweep cache ledger", zap.Error(err))
		}
		log.Info("cache ledger swept", zap.Int64("removed", removed))
	},
}

var cacheInvalidateCmd = &cobra.Command{
	Use:   "invalidate KEY",
	Short: "Force the next read of a cache key to go upstream",
	Long: `Invalidate removes one ledger entry. Keys look like:

  votacoes:proposicao:PL 6787/2016
  votacoes:recentes:7
  deputados:busca:silva|PT|SP`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()

		a, err := newApp(ctx)
		if err != nil {
			log.Fatal("failed to start", zap.Error(err))
		}
		defer a.Close()

		if err := a.system.Invalidate(ctx, args[0]); err != nil {
			a.Close()
			log.Fatal("failed to invalidate key", zap.String("key", args[0]), zap.Error(err))
		}
		log.Info("cache key invalidated", zap.String("key", args[0]))
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheStatsCmd, cacheSweepCmd, cacheInvalidateCmd)
}
