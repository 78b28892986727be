package index

import (
	"fmt"
	"math"

	"github.com/forest-guardian/planet-ndvi/internal/raster"
)

type ShapeMismatchError struct {
	Red, NIR [2]int
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("red band is %dx%d but near-infrared band is %dx%d", e.Red[0], e.Red[1], e.NIR[0], e.NIR[1])
}

// NDVI computes (nir-red)/(nir+red) per pixel. Pixels where the denominator is
// zero are NaN.
func NDVI(red, nir raster.Band) (raster.Band, error) {
	if !red.SameShape(nir) || red.Len() != nir.Len() {
		return raster.Band{}, &ShapeMismatchError{
			Red: [2]int{red.Rows, red.Cols},
			NIR: [2]int{nir.Rows, nir.Cols},
		}
	}

	ndvi := raster.NewBand(0, red.Rows, red.Cols)
	for i := range ndvi.Data {
		r, n := red.Data[i], nir.Data[i]
		denominator := n + r
		if denominator == 0 {
			ndvi.Data[i] = math.NaN()
			continue
		}
		ndvi.Data[i] = (n - r) / denominator
	}
	return ndvi, nil
}

// MeanStd returns the mean and population standard deviation of the non-NaN
// values. Both are NaN when no value is usable.
func MeanStd(b raster.Band) (float64, float64) {
	var sum float64
	n := 0
	for _, v := range b.Data {
		if math.IsNaN(v) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return math.NaN(), math.NaN()
	}
	mean := sum / float64(n)

	var sq float64
	for _, v := range b.Data {
		if math.IsNaN(v) {
			continue
		}
		d := v - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(n))
}
