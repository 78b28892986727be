package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	bannercolor "github.com/fatih/color"
	"github.com/forest-guardian/planet-ndvi/internal/delivery"
	"github.com/forest-guardian/planet-ndvi/internal/notification"
	"github.com/forest-guardian/planet-ndvi/internal/objectstore"
	"github.com/forest-guardian/planet-ndvi/internal/planet"
	"github.com/forest-guardian/planet-ndvi/internal/properties"
	"github.com/forest-guardian/planet-ndvi/internal/runlock"
	"github.com/forest-guardian/planet-ndvi/internal/store"
	"github.com/forest-guardian/planet-ndvi/internal/timeseries"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// closers collects cleanup for optional backends.
type closers []func() error

func (c closers) Close() {
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i](); err != nil {
			slog.Warn("failed to close backend", "error", err)
		}
	}
}

func csvStore(cfg *properties.Config) timeseries.CSVStore {
	return timeseries.CSVStore{Path: func(aoi string) string {
		return store.New(cfg.RootPath, aoi).TimeSeriesCSV()
	}}
}

// services wires the backends that are configured. Optional backends that
// fail to connect are logged and left out.
func services(ctx context.Context, cfg *properties.Config, runID string, withProvider bool) (delivery.Services, closers, error) {
	var svc delivery.Services
	var cleanup closers

	if withProvider {
		client, err := planet.NewClient(ctx, cfg.Planet)
		if err != nil {
			return svc, cleanup, err
		}
		svc.Provider, svc.Searcher = client, client
	}

	svc.Stores = []timeseries.Store{csvStore(cfg)}
	if cfg.PostgresCfg.DBname != "" {
		db, err := timeseries.ConnectPostgres(cfg.PostgresCfg)
		if err != nil {
			slog.Error("Postgres time-series store disabled", "error", err)
		} else {
			pg := timeseries.NewPostgresStore(db)
			if err := pg.Migrate(ctx); err != nil {
				slog.Error("failed to migrate time-series table", "error", err)
			}
			svc.Stores = append(svc.Stores, pg)
			cleanup = append(cleanup, db.Close)
		}
	}

	if cfg.MinioCfg.MinioURL != "" {
		objects, err := objectstore.NewClient(ctx, cfg.MinioCfg)
		if err != nil {
			slog.Error("object storage disabled", "error", err)
		} else {
			svc.Objects = objects
			svc.Hooks = append(svc.Hooks, objectstore.SceneUploader{Client: objects})
		}
	}

	if cfg.RedisCfg.Host != "" {
		rdb, err := runlock.NewRedisClient(cfg.RedisCfg)
		if err != nil {
			slog.Error("AOI run lock disabled", "error", err)
		} else {
			svc.Locker = rdb.Locker(12 * time.Hour)
			cleanup = append(cleanup, rdb.Close)
		}
	}

	if cfg.RabbitMQURL != "" {
		conn, err := notification.ConnectRabbitMQ(cfg.RabbitMQURL)
		if err != nil {
			slog.Error("scene events disabled", "error", err)
		} else {
			publisher := notification.NewScenePublisher(conn, runID)
			svc.Hooks = append(svc.Hooks, publisher)
			cleanup = append(cleanup, func() error {
				slog.Info("Scene events", "metrics", publisher.Metrics())
				return conn.Close()
			})
		}
	}

	svc.Notifier = notification.Discord{
		ErrorURL:   properties.DiscordErrorNotificationUrl(),
		SuccessURL: properties.DiscordSuccessNotificationUrl(),
	}
	return svc, cleanup, nil
}

func printResult(result delivery.Result) {
	title := strings.ToUpper(result.AOI)
	if result.Err != nil {
		bannercolor.Red("%s: %v", title, result.Err)
	}
	if len(result.Summary.Scenes) > 0 {
		text := notification.SummaryText(result.Summary)
		if len(result.Summary.Failures()) > 0 {
			bannercolor.Yellow("%s: %s", title, text)
		} else {
			bannercolor.Green("%s: %s", title, text)
		}
	}
	for _, skip := range result.Skips {
		bannercolor.Yellow("%s: %s left out of the time series: %s", title, skip.Scene, skip.Reason)
	}
	if result.Err == nil {
		bannercolor.Green("%s: %d time-series points", title, len(result.Records))
	}
}

func requireAOIs(cfg *properties.Config) error {
	if len(cfg.AOIs) == 0 {
		return errors.New("no AOIs given: use --aoi or PL_AOIS")
	}
	return nil
}

func newRunCommand(opts *options) *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Search, clip, download and process scenes, then update the time series",
		RunE: func(cmd *cobra.Command, args []string) error {
			printBanner()
			cfg := loadConfig(opts)
			if err := requireAOIs(cfg); err != nil {
				return err
			}

			runID := uuid.NewString()
			svc, cleanup, err := services(cmd.Context(), cfg, runID, true)
			defer cleanup.Close()
			if err != nil {
				return err
			}

			runner := delivery.NewRunner(cfg, svc)
			runner.RunID = runID
			runner.Quiet = opts.quiet
			runner.RefreshSearch = refresh
			for _, result := range runner.Run(cmd.Context(), cfg.AOIs) {
				printResult(result)
			}
			if err := cmd.Context().Err(); err != nil {
				return fmt.Errorf("run interrupted: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "ignore today's cached search results")
	return cmd
}

func newAggregateCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "aggregate",
		Short: "Rebuild the NDVI time series from scenes already downloaded",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig(opts)
			if err := requireAOIs(cfg); err != nil {
				return err
			}
			svc, cleanup, err := services(cmd.Context(), cfg, uuid.NewString(), false)
			defer cleanup.Close()
			if err != nil {
				return err
			}

			runner := delivery.NewRunner(cfg, svc)
			runner.Quiet = opts.quiet
			for _, name := range cfg.AOIs {
				printResult(runner.AggregateAOI(cmd.Context(), name))
			}
			return cmd.Context().Err()
		},
	}
}

func newAnimateCommand(opts *options) *cobra.Command {
	var delay int
	cmd := &cobra.Command{
		Use:   "animate",
		Short: "Render the persisted NDVI rasters of each AOI into a GIF",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig(opts)
			if err := requireAOIs(cfg); err != nil {
				return err
			}
			runner := delivery.NewRunner(cfg, delivery.Services{})
			for _, name := range cfg.AOIs {
				path, err := runner.AnimateAOI(name, delay)
				if err != nil {
					bannercolor.Red("%s: %v", strings.ToUpper(name), err)
					continue
				}
				bannercolor.Green("%s: animation written to %s", strings.ToUpper(name), path)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&delay, "delay", 50, "frame delay in hundredths of a second")
	return cmd
}

func newPurgeCommand(opts *options) *cobra.Command {
	var maxAge time.Duration
	var subdirectory, substring string
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete uploaded objects older than a given age",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig(opts)
			if cfg.MinioCfg.MinioURL == "" {
				return errors.New("object storage is not configured: set MINIO_ENDPOINT")
			}
			objects, err := objectstore.NewClient(cmd.Context(), cfg.MinioCfg)
			if err != nil {
				return err
			}
			deleted, err := objects.PurgeOlderThan(cmd.Context(), maxAge, subdirectory, substring)
			for _, key := range deleted {
				fmt.Println(key)
			}
			if err != nil {
				return err
			}
			bannercolor.Green("%d objects deleted", len(deleted))
			return nil
		},
	}
	cmd.Flags().DurationVar(&maxAge, "max-age", 30*24*time.Hour, "delete objects older than this")
	cmd.Flags().StringVar(&subdirectory, "dir", "", "only objects under this prefix")
	cmd.Flags().StringVar(&substring, "match", "", "only objects whose key contains this")
	return cmd
}
