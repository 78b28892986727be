package render

import (
	"image/gif"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/forest-guardian/planet-ndvi/internal/raster"
	"github.com/forest-guardian/planet-ndvi/internal/timeseries"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ndviBand(rows, cols int, values ...float64) raster.Band {
	b := raster.NewBand(0, rows, cols)
	copy(b.Data, values)
	return b
}

func TestMidpointNorm(t *testing.T) {
	assert.Equal(t, 0.0, NDVINorm.Apply(-1))
	assert.Equal(t, 0.0, NDVINorm.Apply(NDVIMin))
	assert.InDelta(t, 0.5, NDVINorm.Apply(NDVIMid), 1e-12)
	assert.Equal(t, 1.0, NDVINorm.Apply(NDVIMax))
	assert.Equal(t, 1.0, NDVINorm.Apply(1))
	assert.InDelta(t, 0.25, NDVINorm.Apply((NDVIMin+NDVIMid)/2), 1e-12)
	assert.True(t, math.IsNaN(NDVINorm.Apply(math.NaN())))
}

func TestNDVIColor(t *testing.T) {
	assert.Equal(t, rdYlGn[0], NDVIColor(-0.9))
	assert.Equal(t, rdYlGn[5], NDVIColor(NDVIMid))
	assert.Equal(t, rdYlGn[10], NDVIColor(0.9))
	assert.Equal(t, uint8(0), NDVIColor(math.NaN()).A)
}

func TestSaveNDVI(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ndvi.png")

	err := SaveNDVI(path, ndviBand(2, 2, -0.2, 0.1, math.NaN(), 0.7), "scene")

	require.NoError(t, err)
	assert.FileExists(t, path)
}

func TestRGBImage(t *testing.T) {
	r := raster.Band{Index: raster.Red, Rows: 1, Cols: 2, Data: []float64{10, 0}}
	g := raster.Band{Index: raster.Green, Rows: 1, Cols: 2, Data: []float64{5, 0}}
	b := raster.Band{Index: raster.Blue, Rows: 1, Cols: 2, Data: []float64{0, 0}}

	img, err := RGBImage([]raster.Band{r, g, b}, "scene")

	require.NoError(t, err)
	scale := upscale(2)
	c := img.At(0, titleHeight)
	cr, cg, cb, ca := c.RGBA()
	assert.Equal(t, uint32(0xffff), cr)
	assert.Equal(t, uint32(0xffff), cg)
	assert.Equal(t, uint32(0), cb)
	assert.Equal(t, uint32(0xffff), ca)
	_, _, _, blankAlpha := img.At(scale, titleHeight).RGBA()
	assert.Equal(t, uint32(0xffff), blankAlpha, "blank pixels show the white background")

	_, err = RGBImage([]raster.Band{r, g}, "scene")
	assert.Error(t, err)
}

func TestSaveTimeSeries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ts.png")
	records := []timeseries.Record{
		{Timestamp: time.Date(2017, 5, 19, 0, 0, 0, 0, time.UTC), Mean: 0.2, SD: 0.05},
		{Timestamp: time.Date(2017, 6, 2, 0, 0, 0, 0, time.UTC), Mean: 0.35, SD: 0.02},
		{Timestamp: time.Date(2017, 6, 9, 0, 0, 0, 0, time.UTC), Mean: math.NaN(), SD: math.NaN()},
	}

	require.NoError(t, SaveTimeSeries(path, records, "lake"))
	assert.FileExists(t, path)

	err := SaveTimeSeries(path, records[2:], "lake")
	assert.Error(t, err)
}

func TestAnimate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ndvi.gif")
	frames := []Frame{
		{Label: "05/19/2017 18:41", NDVI: ndviBand(2, 2, 0.1, 0.2, 0.3, 0.4)},
		{Label: "06/02/2017 18:30", NDVI: ndviBand(3, 3, 0.5, 0.5, 0.5, 0.5, math.NaN(), 0.5, 0.5, 0.5, 0.5)},
	}

	require.NoError(t, Animate(path, frames, 50))

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()
	anim, err := gif.DecodeAll(file)
	require.NoError(t, err)
	assert.Len(t, anim.Image, 2)
	assert.Equal(t, []int{50, 50}, anim.Delay)
	assert.Equal(t, anim.Image[0].Bounds(), anim.Image[1].Bounds())
}

func TestAnimate_NoFrames(t *testing.T) {
	assert.Error(t, Animate(filepath.Join(t.TempDir(), "x.gif"), nil, 50))
}
