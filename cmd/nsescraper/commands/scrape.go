package commands

import (
	"nsemarket-backend/internal/components/chrono"
	"nsemarket-backend/internal/store"
	"nsemarket-backend/lib/util/serviceutil"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(scrapeCmd)
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Scrapes the listing once and writes the results to the configured store.",
	Run: func(cmd *cobra.Command, args []string) {
		clock, err := chrono.NewStandardImpl(cfg.Timezone)
		if err != nil {
			serviceutil.Fatal("failed to load timezone", err)
		}
		st, err := store.Open(cmd.Context(), cfg.Store)
		if err != nil {
			serviceutil.Fatal("failed to open store", err)
		}
		defer st.Close()

		_, err = scrapeOnce(cmd.Context(), cfg, st, clock, newTel())
		if err != nil {
			serviceutil.Fatal("scrape failed", err)
		}
	},
}
