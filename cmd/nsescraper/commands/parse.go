package commands

import (
	"fmt"
	"os"

	"nsemarket-backend/internal/components/chrono"
	"nsemarket-backend/internal/scrapers/stockanalysis"
	"nsemarket-backend/lib/util/serviceutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(parseCmd)
}

var parseCmd = &cobra.Command{
	Use:   "parse <page.html>",
	Short: "Parses a saved listing page and prints what would be scraped from it.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		body, err := os.ReadFile(args[0])
		if err != nil {
			serviceutil.Fatal("failed to read page", err)
		}
		clock, err := chrono.NewStandardImpl(cfg.Timezone)
		if err != nil {
			serviceutil.Fatal("failed to load timezone", err)
		}

		spider := stockanalysis.NewSpider(cfg.ScreenerAPIBase, newTel())
		outcome := spider.ParsePage(string(body), clock.Now())

		fmt.Printf("tier: %s\n", outcome.Tier)

		t := newTable()
		t.AppendHeader(table.Row{"Symbol", "View", "Rank", "Company", "Price", "Change", "Metrics"})
		for _, f := range outcome.Fragments {
			t.AppendRow(table.Row{
				f.Symbol,
				f.View,
				formatInt(f.Rank),
				f.CompanyName,
				formatFloat(f.StockPrice),
				formatFloat(f.StockChange),
				len(f.Metrics),
			})
		}
		t.Render()

		if len(outcome.Requests) > 0 {
			requests := newTable()
			requests.AppendHeader(table.Row{"View", "Request"})
			for _, req := range outcome.Requests {
				requests.AppendRow(table.Row{req.View, req.URL})
			}
			requests.Render()
		}
	},
}
