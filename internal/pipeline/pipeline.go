package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"time"

	"github.com/forest-guardian/planet-ndvi/internal/archive"
	"github.com/forest-guardian/planet-ndvi/internal/index"
	"github.com/forest-guardian/planet-ndvi/internal/planet"
	"github.com/forest-guardian/planet-ndvi/internal/quality"
	"github.com/forest-guardian/planet-ndvi/internal/raster"
	"github.com/forest-guardian/planet-ndvi/internal/render"
	"github.com/gammazero/workerpool"
	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
)

// Pipeline drives scenes of one AOI from clip request to persisted NDVI.
type Pipeline struct {
	rc   RunContext
	gate quality.Gate
}

// New validates the run context and creates the AOI artifact tree.
func New(rc RunContext) (*Pipeline, error) {
	if err := rc.validate(); err != nil {
		return nil, fmt.Errorf("invalid run context: %w", err)
	}
	if rc.RunID == "" {
		rc.RunID = uuid.NewString()
	}
	if rc.MaxWorkers < 1 {
		rc.MaxWorkers = 1
	}
	if err := rc.Layout.EnsureDirs(); err != nil {
		return nil, err
	}
	return &Pipeline{rc: rc, gate: rc.gate()}, nil
}

// Run processes scenes in order, or with up to MaxWorkers scenes in flight.
// A scene's failure never stops the batch. Once ctx is done no new scene
// starts; scenes not started are reported as failed with the context error.
func (p *Pipeline) Run(ctx context.Context, scenes []planet.Scene) Summary {
	summary := Summary{
		RunID:   p.rc.RunID,
		AOI:     p.rc.Layout.AOI,
		Scenes:  make([]Scene, len(scenes)),
		Started: time.Now(),
	}

	bar := progressbar.Default(int64(len(scenes)), "Processing scenes for "+p.rc.Layout.AOI)
	if p.rc.Quiet {
		bar = progressbar.DefaultSilent(int64(len(scenes)))
	}
	defer bar.Close()

	process := func(i int) {
		summary.Scenes[i] = p.process(ctx, scenes[i], i, len(scenes))
		bar.Add(1)
	}

	if p.rc.MaxWorkers == 1 {
		for i := range scenes {
			process(i)
		}
	} else {
		wp := workerpool.New(p.rc.MaxWorkers)
		for i := range scenes {
			i := i
			wp.Submit(func() { process(i) })
		}
		wp.StopWait()
	}

	summary.Finished = time.Now()
	return summary
}

func (p *Pipeline) process(ctx context.Context, s planet.Scene, i, n int) (scene Scene) {
	scene = Scene{Scene: s, Status: Discovered}
	logger := slog.With("aoi", p.rc.Layout.AOI, "scene", s.ID, "run", p.rc.RunID)

	if err := ctx.Err(); err != nil {
		scene.Status, scene.Err = Failed, err
		return scene
	}
	if p.rc.Layout.Completed(s.ID) || p.rc.Layout.Rejected(s.ID) {
		scene.Status = Skipped
		return scene
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Scene processing panicked", "panic", r, "stack", string(debug.Stack()))
			scene.Reached = scene.Status
			scene.Status = Failed
			scene.Err = fmt.Errorf("panic: %v", r)
		}
	}()

	logger.Info("Processing scene", "acquired", s.Acquired.Format(time.RFC3339), "position", i+1, "total", n)
	if err := p.advance(ctx, &scene); err != nil {
		logger.Error("Failed to process scene", "state", scene.Status.String(), "error", err)
		scene.Reached = scene.Status
		scene.Status = Failed
		scene.Err = err
	}
	return scene
}

// advance moves the scene through the state machine, leaving Status at the
// last state entered.
func (p *Pipeline) advance(ctx context.Context, scene *Scene) error {
	layout := p.rc.Layout

	if activator, ok := p.rc.Provider.(Activator); ok && p.rc.Activate {
		ref, err := activator.Asset(ctx, scene.Scene)
		if err != nil {
			return err
		}
		if _, err := activator.Activate(ctx, ref, p.rc.ActivationPoll); err != nil {
			return err
		}
	}

	scene.Status = Clipping
	job, err := p.rc.Provider.SubmitClip(ctx, scene.ID, p.rc.AOI.Polygon)
	if err != nil {
		return err
	}
	ref, err := p.rc.Provider.PollClip(ctx, job, p.rc.ClipPoll)
	if err != nil {
		return err
	}

	scene.Status = ClipReady
	if _, err := p.rc.Provider.Download(ctx, ref, layout.SceneArchive(scene.ID)); err != nil {
		return err
	}
	manifest, err := archive.Extract(layout.SceneArchive(scene.ID), layout.SceneDir(scene.ID))
	if err != nil {
		return err
	}

	scene.Status = Downloaded
	bands, info, err := raster.Decode(manifest.AnalyticPath(), manifest.MetadataPath(), raster.AllBands...)
	if err != nil {
		return err
	}
	image := raster.Visual(bands)

	scene.Status = Decoded
	if p.rc.Quality.Stage == BeforePersist {
		accepted, err := p.check(scene, image)
		if err != nil || !accepted {
			return err
		}
	}

	ndvi, err := index.NDVI(bands[raster.Red], bands[raster.NIR])
	if err != nil {
		return err
	}
	if err := p.persist(scene, info, image, ndvi); err != nil {
		return err
	}

	if p.rc.Quality.Stage == AfterPersist {
		accepted, err := p.check(scene, image)
		if err != nil || !accepted {
			return err
		}
	}
	scene.Status = Persisted

	for _, hook := range p.rc.Hooks {
		if err := hook.SceneProcessed(ctx, layout, *scene); err != nil {
			slog.Warn("Scene hook failed", "hook", hook.Name(), "scene", scene.ID, "error", err)
		}
	}
	return nil
}

// check runs the quality gate. A rejected scene ends in Rejected and is
// either deleted or flagged so later runs skip it.
func (p *Pipeline) check(scene *Scene, image []raster.Band) (bool, error) {
	result, err := p.gate.Check(image...)
	if err != nil {
		return false, err
	}
	scene.BlankFraction = result.BlankFraction
	if result.Accepted {
		scene.Status = QualityChecked
		return true, nil
	}

	scene.Status = Rejected
	scene.Artifacts = nil
	slog.Warn("Scene failed quality check", "aoi", p.rc.Layout.AOI, "scene", scene.ID, "blank_fraction", result.BlankFraction)
	if p.rc.Quality.DeleteRejected {
		return false, p.rc.Layout.RemoveScene(scene.ID)
	}
	return false, os.WriteFile(p.rc.Layout.RejectionMarker(scene.ID), []byte(fmt.Sprintf("%f\n", result.BlankFraction)), 0644)
}

// persist writes the scene artifacts. The NDVI array goes last: its presence
// marks the scene complete.
func (p *Pipeline) persist(scene *Scene, info raster.GeoInfo, image []raster.Band, ndvi raster.Band) error {
	layout := p.rc.Layout
	if err := raster.WriteFloat(layout.ImageArray(scene.ID), info, image...); err != nil {
		return err
	}
	if err := render.SaveRGB(layout.ImagePNG(scene.ID), image, scene.ID); err != nil {
		return err
	}
	if err := render.SaveNDVI(layout.NDVIPNG(scene.ID), ndvi, scene.ID); err != nil {
		return err
	}
	if err := raster.WriteFloat(layout.NDVIArray(scene.ID), info, ndvi); err != nil {
		return err
	}
	scene.Artifacts = []string{
		layout.ImageArray(scene.ID),
		layout.ImagePNG(scene.ID),
		layout.NDVIPNG(scene.ID),
		layout.NDVIArray(scene.ID),
	}
	return nil
}
