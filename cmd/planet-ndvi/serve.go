package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/forest-guardian/planet-ndvi/internal/api"
	"github.com/forest-guardian/planet-ndvi/internal/timeseries"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

func newServeCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the persisted time series over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig(opts)

			var series timeseries.Store = csvStore(cfg)
			if cfg.PostgresCfg.DBname != "" {
				db, err := timeseries.ConnectPostgres(cfg.PostgresCfg)
				if err != nil {
					return err
				}
				defer db.Close()
				series = timeseries.NewPostgresStore(db)
			}

			if !opts.verbose {
				gin.SetMode(gin.ReleaseMode)
			}
			router := api.NewRouter(api.NewTimeSeriesHandler(series, cfg.AOIs))
			server := &http.Server{Addr: ":" + cfg.APIPort, Handler: router}

			go func() {
				<-cmd.Context().Done()
				shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				server.Shutdown(shutdown)
			}()

			slog.Info("Starting time-series API", "port", cfg.APIPort)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
}
