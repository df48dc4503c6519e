package commands

import (
	"nsemarket-backend/internal/api"
	"nsemarket-backend/internal/store"
	"nsemarket-backend/lib/util/serviceutil"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serves the stored snapshots over http.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			serviceutil.Fatal("failed to open store", err)
		}
		defer st.Close()

		handler := api.NewHandler(api.Options{
			Store:          st,
			Tel:            newTel(),
			AccessToken:    cfg.Serve.AccessToken,
			AllowedOrigins: cfg.Serve.AllowedOrigins,
		})
		err = serviceutil.StartHttpServer(ctx, cfg.Serve.Port, handler)
		if err != nil {
			serviceutil.Fatal("http server failed", err)
		}
	},
}
