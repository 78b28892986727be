package pipeline

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/forest-guardian/planet-ndvi/internal/aoi"
	"github.com/forest-guardian/planet-ndvi/internal/planet"
	"github.com/forest-guardian/planet-ndvi/internal/raster"
	"github.com/forest-guardian/planet-ndvi/internal/raster/rastertest"
	"github.com/forest-guardian/planet-ndvi/internal/store"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var coefficients = []string{"0.01", "0.012", "0.011", "0.009"}

// fakeProvider serves clip archives from memory.
type fakeProvider struct {
	mu        sync.Mutex
	archives  map[string][]byte
	failures  map[string]error
	panics    map[string]bool
	calls     map[string][]string
	pollDelay time.Duration
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		archives: map[string][]byte{},
		failures: map[string]error{},
		panics:   map[string]bool{},
		calls:    map[string][]string{},
	}
}

func (f *fakeProvider) record(method, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[method] = append(f.calls[method], id)
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, ids := range f.calls {
		n += len(ids)
	}
	return n
}

func (f *fakeProvider) SubmitClip(ctx context.Context, sceneID string, aoi orb.Geometry) (planet.ClipJob, error) {
	f.record("submit", sceneID)
	if f.panics[sceneID] {
		panic("provider exploded")
	}
	return planet.ClipJob{SceneID: sceneID, SelfURL: "/clips/" + sceneID, State: planet.ClipSucceeded}, nil
}

func (f *fakeProvider) PollClip(ctx context.Context, job planet.ClipJob, policy planet.PollPolicy) (string, error) {
	f.record("poll", job.SceneID)
	if f.pollDelay > 0 {
		time.Sleep(f.pollDelay)
	}
	return "/download/" + job.SceneID, nil
}

func (f *fakeProvider) Download(ctx context.Context, ref, path string) (int64, error) {
	id := filepath.Base(ref)
	f.record("download", id)
	if err := f.failures[id]; err != nil {
		return 0, err
	}
	data := f.archives[id]
	return int64(len(data)), os.WriteFile(path, data, 0644)
}

// sceneArchive builds a clip archive holding a 2x2 analytic raster.
func sceneArchive(t *testing.T, id string, red, nir uint16) []byte {
	t.Helper()
	dir := t.TempDir()
	tiff, meta := rastertest.WriteScene(t, dir, id, 2, 2, coefficients,
		rastertest.Fill(4, 100), rastertest.Fill(4, 150), rastertest.Fill(4, red), rastertest.Fill(4, nir))

	zipPath := filepath.Join(dir, "clip.zip")
	file, err := os.Create(zipPath)
	require.NoError(t, err)
	w := zip.NewWriter(file)
	for _, path := range []string{tiff, meta} {
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		entry, err := w.Create(filepath.Base(path))
		require.NoError(t, err)
		_, err = entry.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	require.NoError(t, file.Close())

	data, err := os.ReadFile(zipPath)
	require.NoError(t, err)
	return data
}

func testAOI() aoi.Definition {
	return aoi.Definition{
		Name:    "lake",
		Polygon: orb.Polygon{{{-117.1, 32.7}, {-117.0, 32.7}, {-117.0, 32.8}, {-117.1, 32.8}, {-117.1, 32.7}}},
		CRS:     aoi.DefaultCRS,
	}
}

func newRunContext(t *testing.T, provider Provider) RunContext {
	return RunContext{
		RunID:    "test",
		Provider: provider,
		AOI:      testAOI(),
		Layout:   store.New(t.TempDir(), "lake"),
		ClipPoll: planet.PollPolicy{Interval: time.Hour, Timeout: time.Minute},
		Quality:  QualityPolicy{Threshold: 0.25},
		Quiet:    true,
	}
}

func scenes(ids ...string) []planet.Scene {
	out := make([]planet.Scene, len(ids))
	for i, id := range ids {
		out[i] = planet.Scene{ID: id, Acquired: time.Date(2017, 5, 19+i, 18, 0, 0, 0, time.UTC)}
	}
	return out
}

var sceneIDs = []string{"20170519_184131_0e19", "20170520_183000_1001", "20170521_182000_1002"}

func TestRun_DownloadFailureIsIsolated(t *testing.T) {
	provider := newFakeProvider()
	for _, id := range sceneIDs {
		provider.archives[id] = sceneArchive(t, id, 2000, 3000)
	}
	provider.failures[sceneIDs[1]] = &planet.DownloadError{URL: "/download/" + sceneIDs[1], Err: errors.New("connection reset")}
	rc := newRunContext(t, provider)
	p, err := New(rc)
	require.NoError(t, err)

	summary := p.Run(context.Background(), scenes(sceneIDs...))

	require.Len(t, summary.Scenes, 3)
	assert.Equal(t, Persisted, summary.Scenes[0].Status)
	assert.Equal(t, Failed, summary.Scenes[1].Status)
	assert.Equal(t, Persisted, summary.Scenes[2].Status)
	assert.True(t, rc.Layout.Completed(sceneIDs[0]))
	assert.False(t, rc.Layout.Completed(sceneIDs[1]))
	assert.True(t, rc.Layout.Completed(sceneIDs[2]))
	assert.Equal(t, 2, summary.Processed())

	failures := summary.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, sceneIDs[1], failures[0].SceneID)
	assert.Equal(t, ClipReady, failures[0].State)
	var downloadErr *planet.DownloadError
	assert.True(t, errors.As(failures[0].Err, &downloadErr))
}

func TestRun_PersistsNDVI(t *testing.T) {
	provider := newFakeProvider()
	provider.archives[sceneIDs[0]] = sceneArchive(t, sceneIDs[0], 2000, 3000)
	rc := newRunContext(t, provider)
	p, err := New(rc)
	require.NoError(t, err)

	summary := p.Run(context.Background(), scenes(sceneIDs[0]))

	require.Equal(t, Persisted, summary.Scenes[0].Status, "error: %v", summary.Scenes[0].Err)
	bands, info, err := raster.ReadBands(rc.Layout.NDVIArray(sceneIDs[0]), 1)
	require.NoError(t, err)
	assert.InDelta(t, 5.0/49.0, bands[1].Data[0], 1e-9)
	assert.Equal(t, rastertest.Transform, info.Transform)
	assert.FileExists(t, rc.Layout.ImagePNG(sceneIDs[0]))
	assert.FileExists(t, rc.Layout.NDVIPNG(sceneIDs[0]))
	assert.FileExists(t, rc.Layout.ImageArray(sceneIDs[0]))
	assert.NoFileExists(t, rc.Layout.SceneArchive(sceneIDs[0]))
	assert.Len(t, summary.Scenes[0].Artifacts, 4)
}

func TestRun_SkipsCompletedScenes(t *testing.T) {
	provider := newFakeProvider()
	rc := newRunContext(t, provider)
	p, err := New(rc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(rc.Layout.NDVIArray(sceneIDs[0]), []byte("done"), 0644))

	summary := p.Run(context.Background(), scenes(sceneIDs[0]))

	assert.Equal(t, Skipped, summary.Scenes[0].Status)
	assert.Equal(t, 1, summary.Skipped())
	assert.Zero(t, provider.callCount())
}

func TestRun_RerunIsNoOp(t *testing.T) {
	provider := newFakeProvider()
	provider.archives[sceneIDs[0]] = sceneArchive(t, sceneIDs[0], 2000, 3000)
	rc := newRunContext(t, provider)
	p, err := New(rc)
	require.NoError(t, err)

	first := p.Run(context.Background(), scenes(sceneIDs[0]))
	calls := provider.callCount()
	second := p.Run(context.Background(), scenes(sceneIDs[0]))

	assert.Equal(t, Persisted, first.Scenes[0].Status)
	assert.Equal(t, Skipped, second.Scenes[0].Status)
	assert.Equal(t, calls, provider.callCount())
}

func TestRun_HalfProcessedSceneIsRetried(t *testing.T) {
	provider := newFakeProvider()
	provider.archives[sceneIDs[0]] = sceneArchive(t, sceneIDs[0], 2000, 3000)
	rc := newRunContext(t, provider)
	p, err := New(rc)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(rc.Layout.SceneDir(sceneIDs[0]), 0755))

	summary := p.Run(context.Background(), scenes(sceneIDs[0]))

	assert.Equal(t, Persisted, summary.Scenes[0].Status)
}

func TestRun_QualityRejection(t *testing.T) {
	cases := map[string]struct {
		policy       QualityPolicy
		keepsDir     bool
		keepsMarker  bool
		skippedAfter bool
	}{
		"before persist, kept":    {QualityPolicy{Threshold: 0.25}, true, false, true},
		"before persist, deleted": {QualityPolicy{Threshold: 0.25, DeleteRejected: true}, false, false, false},
		"after persist, kept":     {QualityPolicy{Threshold: 0.25, Stage: AfterPersist}, true, true, true},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			provider := newFakeProvider()
			provider.archives[sceneIDs[0]] = sceneArchive(t, sceneIDs[0], 0, 0)
			rc := newRunContext(t, provider)
			rc.Quality = tc.policy
			p, err := New(rc)
			require.NoError(t, err)

			summary := p.Run(context.Background(), scenes(sceneIDs[0]))

			require.Equal(t, Rejected, summary.Scenes[0].Status, "error: %v", summary.Scenes[0].Err)
			assert.Empty(t, summary.Failures())
			assert.InDelta(t, 1.0/3.0, summary.Scenes[0].BlankFraction, 1e-9)
			if tc.keepsDir {
				assert.DirExists(t, rc.Layout.SceneDir(sceneIDs[0]))
			} else {
				assert.NoDirExists(t, rc.Layout.SceneDir(sceneIDs[0]))
			}
			assert.Equal(t, tc.keepsMarker, rc.Layout.Completed(sceneIDs[0]))

			again := p.Run(context.Background(), scenes(sceneIDs[0]))
			assert.Equal(t, tc.skippedAfter, again.Scenes[0].Status == Skipped)
		})
	}
}

func TestRun_PanicIsRecorded(t *testing.T) {
	provider := newFakeProvider()
	provider.panics[sceneIDs[0]] = true
	provider.archives[sceneIDs[1]] = sceneArchive(t, sceneIDs[1], 2000, 3000)
	p, err := New(newRunContext(t, provider))
	require.NoError(t, err)

	summary := p.Run(context.Background(), scenes(sceneIDs[0], sceneIDs[1]))

	assert.Equal(t, Failed, summary.Scenes[0].Status)
	assert.Equal(t, Clipping, summary.Scenes[0].Reached)
	assert.Contains(t, summary.Scenes[0].Err.Error(), "provider exploded")
	assert.Equal(t, Persisted, summary.Scenes[1].Status)
}

func TestRun_WorkersKeepInputOrder(t *testing.T) {
	provider := newFakeProvider()
	provider.pollDelay = 10 * time.Millisecond
	for _, id := range sceneIDs {
		provider.archives[id] = sceneArchive(t, id, 2000, 3000)
	}
	rc := newRunContext(t, provider)
	rc.MaxWorkers = 3
	p, err := New(rc)
	require.NoError(t, err)

	summary := p.Run(context.Background(), scenes(sceneIDs...))

	require.Len(t, summary.Scenes, 3)
	for i, id := range sceneIDs {
		assert.Equal(t, id, summary.Scenes[i].ID)
		assert.Equal(t, Persisted, summary.Scenes[i].Status, "scene %s: %v", id, summary.Scenes[i].Err)
	}
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	provider := newFakeProvider()
	p, err := New(newRunContext(t, provider))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary := p.Run(ctx, scenes(sceneIDs...))

	assert.Zero(t, provider.callCount())
	require.Len(t, summary.Failures(), 3)
	assert.ErrorIs(t, summary.Failures()[0].Err, context.Canceled)
}

type recordingHook struct {
	mu     sync.Mutex
	scenes []string
	err    error
}

func (h *recordingHook) Name() string { return "recording" }

func (h *recordingHook) SceneProcessed(ctx context.Context, layout store.Layout, scene Scene) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.scenes = append(h.scenes, scene.ID)
	return h.err
}

func TestRun_HooksSeePersistedScenesOnly(t *testing.T) {
	provider := newFakeProvider()
	provider.archives[sceneIDs[0]] = sceneArchive(t, sceneIDs[0], 2000, 3000)
	provider.archives[sceneIDs[1]] = sceneArchive(t, sceneIDs[1], 0, 0)
	hook := &recordingHook{err: fmt.Errorf("upload failed")}
	rc := newRunContext(t, provider)
	rc.Hooks = []Hook{hook}
	p, err := New(rc)
	require.NoError(t, err)

	summary := p.Run(context.Background(), scenes(sceneIDs[0], sceneIDs[1]))

	assert.Equal(t, Persisted, summary.Scenes[0].Status)
	assert.Equal(t, Rejected, summary.Scenes[1].Status)
	assert.Equal(t, []string{sceneIDs[0]}, hook.scenes)
}

func TestNew_Validates(t *testing.T) {
	_, err := New(RunContext{Quality: QualityPolicy{Threshold: 2}})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no provider")
	assert.Contains(t, err.Error(), "threshold")
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "clip-ready", ClipReady.String())
	assert.Equal(t, "unknown", State(99).String())
}
