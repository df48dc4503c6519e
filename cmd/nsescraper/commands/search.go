package commands

import (
	"strings"

	"nsemarket-backend/internal/search"
	"nsemarket-backend/internal/store"
	"nsemarket-backend/lib/util/serviceutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var searchLimit int

func init() {
	searchCmd.Flags().IntVar(&searchLimit, "limit", 10, "The maximum number of results.")
	rootCmd.AddCommand(searchCmd)
}

var searchCmd = &cobra.Command{
	Use:   "search <query...>",
	Short: "Searches the latest snapshots by ticker, company name, sector or industry.",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			serviceutil.Fatal("failed to open store", err)
		}
		defer st.Close()

		snapshots, err := st.LatestSnapshots(ctx)
		if err != nil {
			serviceutil.Fatal("failed to read snapshots", err)
		}
		index, err := search.New(snapshots)
		if err != nil {
			serviceutil.Fatal("failed to build index", err)
		}
		defer index.Close()

		hits, err := index.Search(strings.Join(args, " "), searchLimit)
		if err != nil {
			serviceutil.Fatal("search failed", err)
		}

		t := newTable()
		t.AppendHeader(table.Row{"Ticker", "Company", "Sector", "Industry", "Price", "Score"})
		for _, hit := range hits {
			t.AppendRow(table.Row{
				hit.Symbol,
				hit.Name,
				hit.Sector,
				hit.Industry,
				formatFloat(hit.Price),
				formatDecimal(hit.Score),
			})
		}
		t.Render()
	},
}
