package commands

import (
	"nsemarket-backend/internal/store"
	"nsemarket-backend/lib/util/serviceutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var runsLimit int

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "The number of runs to show.")
	rootCmd.AddCommand(runsCmd)
}

var runsCmd = &cobra.Command{
	Use:   "runs [--limit <n>]",
	Short: "Lists the most recent scraping runs.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			serviceutil.Fatal("failed to open store", err)
		}
		defer st.Close()

		runs, err := st.Runs(ctx, runsLimit)
		if err != nil {
			serviceutil.Fatal("failed to list runs", err)
		}

		t := newTable()
		t.AppendHeader(table.Row{"Started", "Tier", "Fragments", "Records", "Requests", "Failures", "Seconds", "Error"})
		for _, run := range runs {
			t.AppendRow(table.Row{
				run.StartedAt.Format("2006-01-02 15:04:05"),
				run.Tier,
				run.Fragments,
				run.Records,
				run.Requests,
				run.Failures,
				formatDecimal(run.FinishedAt.Sub(run.StartedAt).Seconds()),
				run.Error,
			})
		}
		t.Render()
	},
}
