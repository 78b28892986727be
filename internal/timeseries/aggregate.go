package timeseries

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/forest-guardian/planet-ndvi/internal/archive"
	"github.com/forest-guardian/planet-ndvi/internal/index"
	"github.com/forest-guardian/planet-ndvi/internal/quality"
	"github.com/forest-guardian/planet-ndvi/internal/raster"
	"github.com/forest-guardian/planet-ndvi/internal/store"
	"github.com/schollz/progressbar/v3"
)

// Skip records a scene left out of the series and why.
type Skip struct {
	Scene  string
	Reason string
}

// Aggregator recomputes per-scene NDVI statistics from the persisted,
// unrejected scenes of one AOI, clipping each analytic raster to the AOI
// cutline.
type Aggregator struct {
	Layout  store.Layout
	Clipper raster.Clipper
	Gate    quality.Gate
	Quiet   bool
}

// Aggregate returns one record per usable scene in scene id order.
// Per-scene problems become skips; only an unreadable arrays directory or a
// cancelled context is an error.
func (a Aggregator) Aggregate(ctx context.Context) ([]Record, []Skip, error) {
	scenes, err := a.Layout.PersistedScenes()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list scenes for %s: %w", a.Layout.AOI, err)
	}

	bar := progressbar.Default(int64(len(scenes)), "Calculating NDVI time series")
	if a.Quiet {
		bar = progressbar.DefaultSilent(int64(len(scenes)))
	}
	defer bar.Close()

	var records []Record
	var skips []Skip
	for _, scene := range scenes {
		if err := ctx.Err(); err != nil {
			return records, skips, err
		}
		record, err := a.scene(ctx, scene)
		bar.Add(1)
		if err != nil {
			slog.Warn("Skipping scene in time series", "aoi", a.Layout.AOI, "scene", scene, "reason", err)
			skips = append(skips, Skip{Scene: scene, Reason: err.Error()})
			continue
		}
		records = append(records, record)
	}
	return records, skips, nil
}

func (a Aggregator) scene(ctx context.Context, scene string) (Record, error) {
	manifest, err := archive.Load(a.Layout.SceneDir(scene))
	if err != nil {
		return Record{}, err
	}
	if !manifest.Valid() {
		return Record{}, fmt.Errorf("no analytic raster or metadata in %s", manifest.Dir)
	}

	timestamp, err := ParseTimestamp(manifest.Analytic)
	if err != nil {
		return Record{}, err
	}

	image, _, err := raster.ReadImage(manifest.AnalyticPath(), manifest.MetadataPath())
	if err != nil {
		return Record{}, err
	}
	result, err := a.Gate.Check(image...)
	if err != nil {
		return Record{}, err
	}
	if !result.Accepted {
		return Record{}, fmt.Errorf("failed quality check: %.0f%% blank", result.BlankFraction*100)
	}

	clipped, err := a.Clipper.Clip(ctx, manifest.AnalyticPath())
	if err != nil {
		return Record{}, err
	}
	defer os.Remove(clipped)

	bands, _, err := raster.Decode(clipped, manifest.MetadataPath(), raster.Red, raster.NIR)
	if err != nil {
		return Record{}, err
	}
	ndvi, err := index.NDVI(bands[raster.Red], bands[raster.NIR])
	if err != nil {
		return Record{}, err
	}
	mean, sd := index.MeanStd(ndvi)
	return Record{Timestamp: timestamp, Mean: mean, SD: sd}, nil
}
