package cmd

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Kayo-b/voto-db/internal/model"
	"github.com/Kayo-b/voto-db/internal/service"
	"github.com/Kayo-b/voto-db/internal/store"
)

var (
	billTitle     string
	billRelevance string
	billListLevel string
)

var billsCmd = &cobra.Command{
	Use:   "bills",
	Short: "Manage the monitored bills",
}

var billsAddCmd = &cobra.Command{
	Use:   "add CODE",
	Short: "Validate a bill upstream and start monitoring it",
	Long: `Add validates a bill against the Câmara API and stores it with its voting
sessions. Bills without any nominal vote are rejected.

Examples:
  voto-db bills add "PL 6787/2016" --title "Reforma Trabalhista" --relevance alta`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()

		a, err := newApp(ctx)
		if err != nil {
			log.Fatal("failed to start", zap.Error(err))
		}
		defer a.Close()

		bill, err := a.curator.Add(ctx, service.AddBillRequest{
			Code:      args[0],
			Title:     billTitle,
			Relevance: billRelevance,
		})
		if err != nil {
			a.Close()
			log.Fatal("failed to add bill", zap.String("code", args[0]), zap.Error(err))
		}
		log.Info("bill added",
			zap.Int64("id", bill.ID),
			zap.String("code", bill.Code),
			zap.String("relevance", string(bill.Relevance)))
	},
}

var billsRemoveCmd = &cobra.Command{
	Use:   "remove ID",
	Short: "Stop monitoring a bill and delete its sessions and votes",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			log.Fatal("invalid bill id", zap.String("id", args[0]))
		}

		ctx, cancel := signalContext()
		defer cancel()

		a, err := newApp(ctx)
		if err != nil {
			log.Fatal("failed to start", zap.Error(err))
		}
		defer a.Close()

		if err := a.curator.Remove(ctx, id); err != nil {
			a.Close()
			log.Fatal("failed to remove bill", zap.Int64("id", id), zap.Error(err))
		}
		log.Info("bill removed", zap.Int64("id", id))
	},
}

var billsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the monitored bills",
	Run: func(cmd *cobra.Command, args []string) {
		f := store.BillFilter{}
		if billListLevel != "" {
			rel, ok := model.ParseRelevance(billListLevel)
			if !ok {
				log.Fatal("invalid relevance", zap.String("relevance", billListLevel))
			}
			f.Relevance = rel
		}

		ctx, cancel := signalContext()
		defer cancel()

		a, err := newApp(ctx)
		if err != nil {
			log.Fatal("failed to start", zap.Error(err))
		}
		defer a.Close()

		bills, err := a.curator.ListMonitored(ctx, f)
		if err != nil {
			a.Close()
			log.Fatal("failed to list bills", zap.Error(err))
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCÓDIGO\tRELEVÂNCIA\tTÍTULO")
		for _, b := range bills {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", b.ID, b.Code, b.Relevance, b.Title)
		}
		w.Flush()
	},
}

var billsImportCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Add every bill listed in a YAML seed file",
	Long: `Import reads a YAML file with a "proposicoes" list and adds each bill.
Bills already monitored are skipped.

Example file:
  proposicoes:
    - codigo: PL 6787/2016
      titulo: Reforma Trabalhista
      relevancia: alta`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()

		a, err := newApp(ctx)
		if err != nil {
			log.Fatal("failed to start", zap.Error(err))
		}
		defer a.Close()

		stats, err := a.curator.ImportSeed(ctx, args[0])
		if err != nil {
			a.Close()
			log.Fatal("import failed", zap.Error(err))
		}

		log.Info("=== Import Summary ===")
		log.Info(fmt.Sprintf("Total:    %d", stats.Total))
		log.Info(fmt.Sprintf("Added:    %d", stats.Added))
		log.Info(fmt.Sprintf("Skipped:  %d", stats.Skipped))
		log.Info(fmt.Sprintf("Rejected: %d", stats.Rejected))
		log.Info(fmt.Sprintf("Failed:   %d", stats.Failed))

		if stats.Failed > 0 {
			a.Close()
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(billsCmd)
	billsCmd.AddCommand(billsAddCmd, billsRemoveCmd, billsListCmd, billsImportCmd)

	billsAddCmd.Flags().StringVarP(&billTitle, "title", "t", "", "Display title (defaults to the code)")
	billsAddCmd.Flags().StringVarP(&billRelevance, "relevance", "r", "média", "Relevance tier (alta, média, baixa)")
	billsListCmd.Flags().StringVarP(&billListLevel, "relevance", "r", "", "Only list bills of this relevance tier")
}
