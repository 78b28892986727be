// Package delivery runs the whole NDVI workflow for configured AOIs: search,
// scene pipeline, time-series aggregation and publication.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/forest-guardian/planet-ndvi/internal/aoi"
	"github.com/forest-guardian/planet-ndvi/internal/cache"
	"github.com/forest-guardian/planet-ndvi/internal/objectstore"
	"github.com/forest-guardian/planet-ndvi/internal/pipeline"
	"github.com/forest-guardian/planet-ndvi/internal/planet"
	"github.com/forest-guardian/planet-ndvi/internal/properties"
	"github.com/forest-guardian/planet-ndvi/internal/quality"
	"github.com/forest-guardian/planet-ndvi/internal/raster"
	"github.com/forest-guardian/planet-ndvi/internal/render"
	"github.com/forest-guardian/planet-ndvi/internal/runlock"
	"github.com/forest-guardian/planet-ndvi/internal/store"
	"github.com/forest-guardian/planet-ndvi/internal/timeseries"
	"github.com/google/uuid"
	"github.com/paulmach/orb"
)

type Searcher interface {
	Search(ctx context.Context, r planet.SearchRequest) ([]planet.Scene, error)
}

type Notifier interface {
	SendRunSummary(summary pipeline.Summary) error
	SendError(message string) error
	SendSuccess(message string) error
}

// Services are the collaborators of a run. Everything except Provider and
// Searcher is optional.
type Services struct {
	Provider pipeline.Provider
	Searcher Searcher
	// Stores receive the merged series. The first one is authoritative.
	Stores   []timeseries.Store
	Objects  *objectstore.Client
	Locker   *runlock.Locker
	Hooks    []pipeline.Hook
	Notifier Notifier
}

type Runner struct {
	// RunID tags every AOI pipeline started by this runner.
	RunID    string
	Cfg      *properties.Config
	Services Services
	CacheTTL time.Duration
	// RefreshSearch drops today's cached search results before searching.
	RefreshSearch bool
	Quiet         bool
	now           func() time.Time
}

func NewRunner(cfg *properties.Config, services Services) *Runner {
	return &Runner{RunID: uuid.NewString(), Cfg: cfg, Services: services, CacheTTL: 6 * time.Hour, now: time.Now}
}

// Result is the outcome for one AOI. Err is set when the AOI could not be
// set up or its series could not be saved; scene failures are in Summary.
type Result struct {
	AOI     string
	Summary pipeline.Summary
	Records []timeseries.Record
	Skips   []timeseries.Skip
	Err     error
}

// Run processes the AOIs one after the other. A failing AOI does not stop
// the others.
func (r *Runner) Run(ctx context.Context, names []string) []Result {
	results := make([]Result, 0, len(names))
	for _, name := range names {
		if ctx.Err() != nil {
			results = append(results, Result{AOI: name, Err: ctx.Err()})
			continue
		}
		result := r.RunAOI(ctx, name)
		if result.Err != nil {
			slog.Error("AOI run failed", "aoi", name, "error", result.Err)
		}
		r.report(result)
		results = append(results, result)
	}
	return results
}

// report sends the per-AOI outcome to the notifier.
func (r *Runner) report(result Result) {
	if r.Services.Notifier == nil {
		return
	}
	var err error
	if result.Err != nil {
		err = r.Services.Notifier.SendError(fmt.Sprintf("AOI %s failed: %v", result.AOI, result.Err))
	} else {
		err = r.Services.Notifier.SendSuccess(fmt.Sprintf("AOI %s: %d time-series points, %d skipped", result.AOI, len(result.Records), len(result.Skips)))
	}
	if err != nil {
		slog.Warn("failed to send AOI outcome", "aoi", result.AOI, "error", err)
	}
}

func (r *Runner) layout(name string) store.Layout {
	return store.New(r.Cfg.RootPath, name)
}

// LoadAOI reads <AOIPath>/<name>.geojson.
func (r *Runner) LoadAOI(name string) (aoi.Definition, error) {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return aoi.Definition{}, fmt.Errorf("invalid AOI name %q", name)
	}
	return aoi.Load(filepath.Join(r.Cfg.AOIPath, name+".geojson"))
}

// CreateAOI writes <AOIPath>/<name>.geojson for a rectangular extent given in
// srcEPSG, grown by buffer, and the cutline of the new AOI.
func (r *Runner) CreateAOI(name string, bound orb.Bound, buffer float64, srcEPSG int) (aoi.Definition, error) {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return aoi.Definition{}, fmt.Errorf("invalid AOI name %q", name)
	}
	if bound.Min[0] >= bound.Max[0] || bound.Min[1] >= bound.Max[1] {
		return aoi.Definition{}, fmt.Errorf("empty bounds for AOI %s", name)
	}
	def, err := aoi.FromBounds(name, bound, buffer, srcEPSG)
	if err != nil {
		return aoi.Definition{}, err
	}
	if err := def.WriteCutline(filepath.Join(r.Cfg.AOIPath, name+".geojson")); err != nil {
		return aoi.Definition{}, err
	}
	layout := r.layout(name)
	if err := layout.EnsureDirs(); err != nil {
		return aoi.Definition{}, err
	}
	if err := def.WriteCutline(layout.Cutline()); err != nil {
		return aoi.Definition{}, err
	}
	slog.Info("AOI created", "aoi", name, "epsg", srcEPSG, "buffer", buffer)
	return def, nil
}

// prepare loads the AOI, creates its tree and writes the cutline in the
// AOI's own CRS. The returned definition is in WGS84.
func (r *Runner) prepare(name string) (aoi.Definition, store.Layout, error) {
	layout := r.layout(name)
	def, err := r.LoadAOI(name)
	if err != nil {
		return aoi.Definition{}, layout, err
	}
	if err := layout.EnsureDirs(); err != nil {
		return aoi.Definition{}, layout, err
	}
	if err := def.WriteCutline(layout.Cutline()); err != nil {
		return aoi.Definition{}, layout, fmt.Errorf("failed to write cutline for %s: %w", name, err)
	}
	wgs84, err := def.Reproject(4326)
	if err != nil {
		return aoi.Definition{}, layout, err
	}
	return wgs84, layout, nil
}

func (r *Runner) RunAOI(ctx context.Context, name string) Result {
	result := Result{AOI: name}
	if r.Services.Provider == nil || r.Services.Searcher == nil {
		result.Err = errors.New("no imagery provider configured")
		return result
	}

	qp, err := r.qualityPolicy()
	if err != nil {
		result.Err = err
		return result
	}
	def, layout, err := r.prepare(name)
	if err != nil {
		result.Err = err
		return result
	}

	if r.Services.Locker != nil {
		lock, err := r.Services.Locker.Acquire(ctx, name)
		if err != nil {
			result.Err = err
			return result
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
				slog.Warn("failed to release AOI lock", "aoi", name, "error", err)
			}
		}()
	}

	scenes, err := r.search(ctx, layout, def)
	if err != nil {
		result.Err = err
		return result
	}

	policy := planet.PollPolicy{
		Interval:   r.Cfg.Pipeline.PollInterval,
		Timeout:    r.Cfg.Pipeline.PollTimeout,
		Multiplier: 1,
	}
	p, err := pipeline.New(pipeline.RunContext{
		RunID:          r.RunID,
		Provider:       r.Services.Provider,
		AOI:            def,
		Layout:         layout,
		ClipPoll:       policy,
		ActivationPoll: planet.PollPolicy{Interval: 10 * time.Second, Timeout: 30 * time.Minute, Multiplier: 1.5, MaxInterval: time.Minute},
		Activate:       true,
		Quality:        qp,
		MaxWorkers:     r.Cfg.Pipeline.MaxWorkers,
		Hooks:          r.Services.Hooks,
		Quiet:          r.Quiet,
	})
	if err != nil {
		result.Err = err
		return result
	}
	result.Summary = p.Run(ctx, scenes)
	r.notify(result.Summary)

	series, err := r.aggregate(ctx, layout)
	result.Records, result.Skips = series.Records, series.Skips
	if err != nil {
		result.Err = err
	}
	return result
}

// AggregateAOI rebuilds the series of an AOI from the scenes already on
// disk, without contacting the provider.
func (r *Runner) AggregateAOI(ctx context.Context, name string) Result {
	result := Result{AOI: name}
	if _, layout, err := r.prepare(name); err != nil {
		result.Err = err
	} else {
		series, err := r.aggregate(ctx, layout)
		result.Records, result.Skips, result.Err = series.Records, series.Skips, err
	}
	return result
}

func (r *Runner) qualityPolicy() (pipeline.QualityPolicy, error) {
	stage, err := pipeline.ParseQualityStage(r.Cfg.Pipeline.QualityStage)
	if err != nil {
		return pipeline.QualityPolicy{}, err
	}
	return pipeline.QualityPolicy{
		Threshold:      r.Cfg.Pipeline.QualityThreshold,
		Stage:          stage,
		DeleteRejected: r.Cfg.Pipeline.DeleteRejected,
	}, nil
}

// search returns the scenes of the configured window, cached per AOI and day.
func (r *Runner) search(ctx context.Context, layout store.Layout, def aoi.Definition) ([]planet.Scene, error) {
	end := r.now().UTC()
	start := end.AddDate(0, 0, -r.Cfg.Planet.WindowDays)
	request := planet.SearchRequest{
		Name:     layout.AOI,
		AOI:      def.Polygon,
		Start:    start,
		End:      end,
		MaxCloud: r.Cfg.Planet.MaxCloud,
	}

	sceneCache := cache.NewFileCache[[]planet.Scene](layout.CacheDir(), r.CacheTTL)
	key := sceneCache.GenerateKey("search", layout.AOI, r.Cfg.Planet.ItemType, start.Format(time.DateOnly), end.Format(time.DateOnly), request.MaxCloud)
	if r.RefreshSearch {
		if err := sceneCache.Delete(key); err != nil {
			slog.Warn("failed to drop cached search results", "aoi", layout.AOI, "error", err)
		}
	}
	if scenes, ok := sceneCache.Get(key); ok {
		slog.Info("Using cached search results", "aoi", layout.AOI, "scenes", len(scenes))
		return scenes, nil
	}

	scenes, err := r.Services.Searcher.Search(ctx, request)
	if err != nil {
		return nil, err
	}
	if err := sceneCache.Set(key, scenes); err != nil {
		slog.Warn("failed to cache search results", "aoi", layout.AOI, "error", err)
	}
	slog.Info("Scenes found", "aoi", layout.AOI, "scenes", len(scenes), "from", start.Format(time.DateOnly), "to", end.Format(time.DateOnly))
	return scenes, nil
}

func (r *Runner) notify(summary pipeline.Summary) {
	if r.Services.Notifier == nil {
		return
	}
	if err := r.Services.Notifier.SendRunSummary(summary); err != nil {
		slog.Warn("failed to send run summary", "aoi", summary.AOI, "error", err)
	}
}

type aggregation struct {
	Records []timeseries.Record
	Skips   []timeseries.Skip
}

// aggregate recomputes the AOI statistics, merges them into every store,
// draws the chart and uploads the series outputs.
func (r *Runner) aggregate(ctx context.Context, layout store.Layout) (aggregation, error) {
	policy, err := timeseries.ParseMergePolicy(r.Cfg.Pipeline.MergePolicy)
	if err != nil {
		return aggregation{}, err
	}
	aggregator := timeseries.Aggregator{
		Layout:  layout,
		Clipper: raster.Clipper{Cutline: layout.Cutline()},
		Gate:    quality.NewGate(r.Cfg.Pipeline.QualityThreshold),
		Quiet:   r.Quiet,
	}
	fresh, skips, err := aggregator.Aggregate(ctx)
	if err != nil {
		return aggregation{Skips: skips}, err
	}

	stores := r.Services.Stores
	if len(stores) == 0 {
		stores = []timeseries.Store{timeseries.CSVStore{Path: func(string) string { return layout.TimeSeriesCSV() }}}
	}
	merged, err := timeseries.Update(ctx, stores[0], layout.AOI, fresh, policy)
	if err != nil {
		return aggregation{Skips: skips}, fmt.Errorf("failed to save time series for %s: %w", layout.AOI, err)
	}
	for _, mirror := range stores[1:] {
		if _, err := timeseries.Update(ctx, mirror, layout.AOI, fresh, policy); err != nil {
			slog.Error("failed to update time series mirror", "aoi", layout.AOI, "error", err)
		}
	}
	out := aggregation{Records: merged, Skips: skips}

	if len(merged) == 0 {
		return out, nil
	}
	if err := render.SaveTimeSeries(layout.TimeSeriesPNG(), merged, "NDVI "+strings.ToUpper(layout.AOI)); err != nil {
		slog.Error("failed to draw time series", "aoi", layout.AOI, "error", err)
		return out, nil
	}
	if r.Services.Objects != nil {
		if err := r.Services.Objects.UploadFiles(ctx, objectstore.SeriesKeys(layout)); err != nil {
			slog.Error("failed to upload time series", "aoi", layout.AOI, "error", err)
		}
	}
	return out, nil
}
