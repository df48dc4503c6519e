package commands

import (
	"errors"
	"fmt"
	"strings"

	"nsemarket-backend/internal/store"
	"nsemarket-backend/lib/textutil"
	"nsemarket-backend/lib/util/serviceutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var latestThreshold float64

func init() {
	latestCmd.Flags().Float64Var(&latestThreshold, "threshold", 0, "Report whether the price is at or above this value.")
	rootCmd.AddCommand(latestCmd)
}

var latestCmd = &cobra.Command{
	Use:   "latest <ticker> [--threshold <price>]",
	Short: "Prints the latest stored quote of a ticker.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			serviceutil.Fatal("failed to open store", err)
		}
		defer st.Close()

		quote, err := st.LatestQuote(ctx, args[0])
		if errors.Is(err, store.ErrNotFound) {
			tickers, err := st.Tickers(ctx)
			if err != nil {
				serviceutil.Fatal("failed to list tickers", err)
			}
			var suggestions []string
			for _, match := range textutil.ClosestMatches(args[0], tickers, 3, 0.7) {
				suggestions = append(suggestions, match.Value)
			}
			if len(suggestions) > 0 {
				serviceutil.Fatal(
					fmt.Sprintf("unknown ticker %s, did you mean %s?", args[0], strings.Join(suggestions, ", ")),
					store.ErrNotFound,
				)
			}
			serviceutil.Fatal(fmt.Sprintf("unknown ticker %s", args[0]), store.ErrNotFound)
		}
		if err != nil {
			serviceutil.Fatal("failed to read quote", err)
		}

		t := newTable()
		t.AppendHeader(table.Row{"Ticker", "Company", "Price", "Change", "Scraped at"})
		t.AppendRow(table.Row{
			quote.TickerSymbol,
			quote.CompanyName,
			formatFloat(quote.StockPrice),
			formatFloat(quote.StockChange),
			quote.ScrapedAt.Format("2006-01-02 15:04 MST"),
		})
		t.Render()

		if cmd.Flags().Changed("threshold") {
			if !quote.StockPrice.Valid {
				fmt.Println("no price recorded, threshold not evaluated")
				return
			}
			met := quote.StockPrice.Float64 >= latestThreshold
			fmt.Printf("threshold %.2f met: %t\n", latestThreshold, met)
		}
	},
}
