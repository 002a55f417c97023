package templates

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kayo-b/voto-db/internal/model"
)

func TestStatusRendersCountsAndBills(t *testing.T) {
	data := StatusData{
		Backend: "sql/sqlite",
		Healthy: true,
		HasData: true,
		Counts:  model.StoreCounts{Deputies: 513, Bills: 3, Monitored: 2, Votes: 1026},
		Ledger: model.LedgerStats{
			Total:      3,
			Expired:    1,
			ByCategory: map[string]int{"votacoes": 2, "deputados": 1},
		},
		Monitored: []model.Bill{
			{Code: "PL 6787/2016", Title: "Reforma <Trabalhista>", Relevance: model.RelevanceHigh},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, Status(data).Render(context.Background(), &buf))
	html := buf.String()

	assert.Contains(t, html, "<strong>sql/sqlite</strong> (ok)")
	assert.Contains(t, html, "<td>513</td>")
	assert.Contains(t, html, "<td>3 (2 monitoradas)</td>")
	assert.Contains(t, html, "Reforma &lt;Trabalhista&gt;")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("deputados: 1")), bytes.Index(buf.Bytes(), []byte("votacoes: 2")))
}

func TestStatusWithoutData(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Status(StatusData{Backend: "passthrough"}).Render(context.Background(), &buf))

	assert.Contains(t, buf.String(), "(indisponível)")
	assert.Contains(t, buf.String(), "Nenhum dado armazenado ainda.")
	assert.NotContains(t, buf.String(), "<table>")
}
