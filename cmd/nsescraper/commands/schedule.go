package commands

import (
	"log/slog"

	"nsemarket-backend/internal/components/chrono"
	"nsemarket-backend/internal/store"
	libtelemetry "nsemarket-backend/lib/telemetry"
	"nsemarket-backend/lib/util/serviceutil"

	"github.com/spf13/cobra"
)

var scheduleNow bool

func init() {
	scheduleCmd.Flags().BoolVar(&scheduleNow, "now", false, "Also run a scrape immediately on start.")
	rootCmd.AddCommand(scheduleCmd)
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule [--now]",
	Short: "Scrapes the listing on the configured cron schedule until interrupted.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		tel := newTel()

		clock, err := chrono.NewStandardImpl(cfg.Timezone)
		if err != nil {
			serviceutil.Fatal("failed to load timezone", err)
		}
		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			serviceutil.Fatal("failed to open store", err)
		}
		defer st.Close()

		libtelemetry.InstrumentPerfStats(ctx)

		job := func() {
			_, err := scrapeOnce(ctx, cfg, st, clock, tel)
			if err != nil {
				slog.Error("scheduled scrape failed", "err", err)
			}
		}

		cron := chrono.NewStandardCron(clock, tel)
		err = cron.Cron(cfg.Schedule, job)
		if err != nil {
			serviceutil.Fatal("invalid schedule", err)
		}
		slog.Info("scheduled scraping", "schedule", cfg.Schedule, "timezone", clock.Location().String())

		if scheduleNow {
			job()
		}

		<-ctx.Done()
		slog.Info("waiting for running scrapes to finish")
		<-cron.Stop().Done()
	},
}
