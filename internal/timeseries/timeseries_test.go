package timeseries

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/forest-guardian/planet-ndvi/internal/aoi"
	"github.com/forest-guardian/planet-ndvi/internal/quality"
	"github.com/forest-guardian/planet-ndvi/internal/raster"
	"github.com/forest-guardian/planet-ndvi/internal/raster/rastertest"
	"github.com/forest-guardian/planet-ndvi/internal/store"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	t0 = time.Date(2017, 5, 19, 18, 41, 31, 0, time.UTC)
	t1 = time.Date(2017, 6, 2, 18, 30, 0, 0, time.UTC)
	t2 = time.Date(2017, 6, 20, 18, 0, 5, 0, time.UTC)
)

func TestParseTimestamp(t *testing.T) {
	ts, err := ParseTimestamp("data/x/20170519_184131_0e19_3B_AnalyticMS_clip.tif")

	require.NoError(t, err)
	assert.Equal(t, t0, ts)

	_, err = ParseTimestamp("scene_3B_AnalyticMS_clip.tif")
	assert.Error(t, err)
	_, err = ParseTimestamp("short.tif")
	assert.Error(t, err)
}

func TestMerge_IdempotentForIdenticalReprocessing(t *testing.T) {
	series := []Record{{t1, 0.3, 0.05}, {t0, 0.2, 0.01}, {t2, math.NaN(), math.NaN()}}

	merged := Merge(series, series, MergeExact)

	require.Len(t, merged, 3)
	assert.Equal(t, t0, merged[0].Timestamp)
	assert.Equal(t, t1, merged[1].Timestamp)
	assert.True(t, math.IsNaN(merged[2].Mean))

	again := Merge(merged, series, MergeExact)
	assert.Len(t, again, 3)
}

func TestMerge_ExactKeepsDifferingStatistics(t *testing.T) {
	merged := Merge([]Record{{t0, 0.2, 0.01}}, []Record{{t0, 0.21, 0.01}}, MergeExact)

	assert.Len(t, merged, 2)
}

func TestMerge_UpsertReplacesByTimestamp(t *testing.T) {
	merged := Merge(
		[]Record{{t0, 0.2, 0.01}, {t1, 0.3, 0.02}},
		[]Record{{t0, 0.25, 0.03}, {t2, 0.4, 0.04}},
		MergeUpsert,
	)

	assert.Equal(t, []Record{{t0, 0.25, 0.03}, {t1, 0.3, 0.02}, {t2, 0.4, 0.04}}, merged)
}

func TestParseMergePolicy(t *testing.T) {
	p, err := ParseMergePolicy("")
	require.NoError(t, err)
	assert.Equal(t, MergeExact, p)

	p, err = ParseMergePolicy("UPSERT")
	require.NoError(t, err)
	assert.Equal(t, MergeUpsert, p)

	_, err = ParseMergePolicy("latest")
	assert.Error(t, err)
}

func TestCSVStore_Update(t *testing.T) {
	layout := store.New(t.TempDir(), "lake")
	csvStore := CSVStore{Path: func(name string) string { return store.New(layout.Root, name).TimeSeriesCSV() }}
	ctx := context.Background()

	empty, err := csvStore.Load(ctx, "lake")
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = Update(ctx, csvStore, "lake", []Record{{t1, 0.3, 0.02}}, MergeExact)
	require.NoError(t, err)
	merged, err := Update(ctx, csvStore, "lake", []Record{{t0, 0.2, 0.01}, {t1, 0.3, 0.02}}, MergeExact)
	require.NoError(t, err)

	assert.Equal(t, []Record{{t0, 0.2, 0.01}, {t1, 0.3, 0.02}}, merged)
	loaded, err := csvStore.Load(ctx, "lake")
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.True(t, loaded[0].Timestamp.Equal(t0))
	assert.Equal(t, 0.3, loaded[1].Mean)
	assert.NoFileExists(t, layout.TimeSeriesCSV()+".tmp")
}

func writeCutline(t *testing.T, layout store.Layout, rows, cols int) raster.Clipper {
	t.Helper()
	x0, y0 := rastertest.Transform[0], rastertest.Transform[3]
	x1 := x0 + rastertest.Transform[1]*float64(cols)
	y1 := y0 + rastertest.Transform[5]*float64(rows)
	def := aoi.Definition{
		Name:    layout.AOI,
		Polygon: orb.Polygon{{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}, {x0, y0}}},
		CRS:     "EPSG:32611",
	}
	require.NoError(t, def.WriteCutline(layout.Cutline()))
	return raster.Clipper{Cutline: layout.Cutline()}
}

func markPersisted(t *testing.T, layout store.Layout, ids ...string) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, os.WriteFile(layout.NDVIArray(id), []byte("x"), 0644))
	}
}

func TestAggregator(t *testing.T) {
	layout := store.New(t.TempDir(), "lake")
	require.NoError(t, layout.EnsureDirs())
	coeffs := []string{"0.01", "0.012", "0.011", "0.009"}

	rastertest.WriteScene(t, layout.SceneDir("20170519_184131_0e19"), "20170519_184131_0e19", 4, 4, coeffs,
		rastertest.Fill(16, 100), rastertest.Fill(16, 100), rastertest.Fill(16, 2000), rastertest.Fill(16, 3000))
	rastertest.WriteScene(t, layout.SceneDir("20170602_183000_1001"), "20170602_183000_1001", 4, 4, coeffs,
		rastertest.Fill(16, 0), rastertest.Fill(16, 0), rastertest.Fill(16, 0), rastertest.Fill(16, 0))
	rastertest.WriteScene(t, layout.SceneDir("renamed"), "renamed", 4, 4, coeffs,
		rastertest.Fill(16, 1), rastertest.Fill(16, 1), rastertest.Fill(16, 1), rastertest.Fill(16, 1))
	markPersisted(t, layout, "20170519_184131_0e19", "20170602_183000_1001", "renamed")

	aggregator := Aggregator{
		Layout:  layout,
		Clipper: writeCutline(t, layout, 4, 4),
		Gate:    quality.NewGate(quality.DefaultThreshold),
		Quiet:   true,
	}

	records, skips, err := aggregator.Aggregate(context.Background())

	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, t0, records[0].Timestamp)
	assert.InDelta(t, 5.0/49.0, records[0].Mean, 1e-9)
	assert.InDelta(t, 0, records[0].SD, 1e-9)
	require.Len(t, skips, 2)
	assert.Equal(t, "20170602_183000_1001", skips[0].Scene)
	assert.Contains(t, skips[0].Reason, "quality")
	assert.Equal(t, "renamed", skips[1].Scene)

	leftovers, err := filepath.Glob(filepath.Join(layout.SceneDir("20170519_184131_0e19"), "*_cut_*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestAggregator_CancelledContext(t *testing.T) {
	layout := store.New(t.TempDir(), "lake")
	require.NoError(t, layout.EnsureDirs())
	require.NoError(t, os.MkdirAll(layout.SceneDir("a"), 0755))
	markPersisted(t, layout, "a")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := Aggregator{Layout: layout, Quiet: true}.Aggregate(ctx)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestAggregator_OnlyPersistedScenes(t *testing.T) {
	layout := store.New(t.TempDir(), "lake")
	require.NoError(t, layout.EnsureDirs())
	coeffs := []string{"0.01", "0.012", "0.011", "0.009"}
	for _, id := range []string{"20170519_184131_0e19", "20170602_183000_1001", "20170620_180005_2002"} {
		rastertest.WriteScene(t, layout.SceneDir(id), id, 4, 4, coeffs,
			rastertest.Fill(16, 100), rastertest.Fill(16, 100), rastertest.Fill(16, 2000), rastertest.Fill(16, 3000))
	}
	// the second scene was rejected after persisting, the third never finished
	markPersisted(t, layout, "20170519_184131_0e19", "20170602_183000_1001")
	require.NoError(t, os.WriteFile(layout.RejectionMarker("20170602_183000_1001"), nil, 0644))

	aggregator := Aggregator{
		Layout:  layout,
		Clipper: writeCutline(t, layout, 4, 4),
		Gate:    quality.NewGate(quality.DefaultThreshold),
		Quiet:   true,
	}

	records, skips, err := aggregator.Aggregate(context.Background())

	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, t0, records[0].Timestamp)
	assert.Empty(t, skips)
}
