package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/common-nighthawk/go-figure"
	bannercolor "github.com/fatih/color"
	"github.com/forest-guardian/planet-ndvi/internal/properties"
	"github.com/forest-guardian/planet-ndvi/internal/raster"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type options struct {
	root    string
	aoiPath string
	aois    []string
	workers int
	quiet   bool
	verbose bool
}

func printBanner() {
	figure1 := figure.NewFigure("Planet", "isometric1", true)
	figure2 := figure.NewFigure("NDVI", "isometric1", true)
	bannercolor.Cyan(figure1.String())
	bannercolor.Cyan(figure2.String())
	fmt.Println()
}

// loadConfig reads .env and the environment, then applies flag overrides.
func loadConfig(opts *options) *properties.Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("Error loading .env file", "error", err)
	}
	cfg := properties.New()
	if opts.root != "" {
		cfg.RootPath = opts.root
	}
	if opts.aoiPath != "" {
		cfg.AOIPath = opts.aoiPath
	}
	if len(opts.aois) > 0 {
		cfg.AOIs = opts.aois
	}
	if opts.workers > 0 {
		cfg.Pipeline.MaxWorkers = opts.workers
	}
	return cfg
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "planet-ndvi",
		Short:         "Clip, download and compute NDVI time series from Planet scenes",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if opts.verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
			raster.Init()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.root, "root", "", "artifact root directory (ROOT_PATH)")
	flags.StringVar(&opts.aoiPath, "aoi-path", "", "directory holding <aoi>.geojson files (AOI_PATH)")
	flags.StringSliceVar(&opts.aois, "aoi", nil, "AOI names to process (PL_AOIS)")
	flags.IntVar(&opts.workers, "workers", 0, "scenes processed concurrently (MAX_WORKERS)")
	flags.BoolVarP(&opts.quiet, "quiet", "q", false, "hide progress bars")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newAOICommand(opts),
		newRunCommand(opts),
		newAggregateCommand(opts),
		newAnimateCommand(opts),
		newPurgeCommand(opts),
		newServeCommand(opts),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		bannercolor.Red("Error: %v", err)
		os.Exit(1)
	}
}
