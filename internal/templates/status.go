package templates

import (
	"sort"

	"github.com/Kayo-b/voto-db/internal/model"
)

// StatusData is what the status page shows
type StatusData struct {
	Backend   string
	Healthy   bool
	Counts    model.StoreCounts
	Ledger    model.LedgerStats
	Monitored []model.Bill
	HasData   bool
}

func healthLabel(healthy bool) string {
	if healthy {
		return "ok"
	}
	return "indisponível"
}

func ledgerCategories(stats model.LedgerStats) []string {
	categories := make([]string, 0, len(stats.ByCategory))
	for cat := range stats.ByCategory {
		categories = append(categories, cat)
	}
	sort.Strings(categories)
	return categories
}
