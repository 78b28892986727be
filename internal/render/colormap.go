package render

import (
	"image/color"
	"math"
)

// NDVI display range and the value mapped to the middle of the colormap.
const (
	NDVIMin = -0.25
	NDVIMax = 0.75
	NDVIMid = 0.1
)

// rdYlGn holds the ColorBrewer RdYlGn control points.
var rdYlGn = []color.RGBA{
	{165, 0, 38, 255},
	{215, 48, 39, 255},
	{244, 109, 67, 255},
	{253, 174, 97, 255},
	{254, 224, 139, 255},
	{255, 255, 191, 255},
	{217, 239, 139, 255},
	{166, 217, 106, 255},
	{102, 189, 99, 255},
	{26, 152, 80, 255},
	{0, 104, 55, 255},
}

// MidpointNorm maps value piecewise linearly so that min, mid and max land on
// 0, 0.5 and 1. Values outside the range are clamped; NaN stays NaN.
type MidpointNorm struct {
	Min, Mid, Max float64
}

var NDVINorm = MidpointNorm{Min: NDVIMin, Mid: NDVIMid, Max: NDVIMax}

func (n MidpointNorm) Apply(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return v
	case v <= n.Min:
		return 0
	case v >= n.Max:
		return 1
	case v <= n.Mid:
		return 0.5 * (v - n.Min) / (n.Mid - n.Min)
	default:
		return 0.5 + 0.5*(v-n.Mid)/(n.Max-n.Mid)
	}
}

// RdYlGn returns the colormap color at t in [0, 1].
func RdYlGn(t float64) color.RGBA {
	if t <= 0 {
		return rdYlGn[0]
	}
	if t >= 1 {
		return rdYlGn[len(rdYlGn)-1]
	}
	pos := t * float64(len(rdYlGn)-1)
	i := int(pos)
	frac := pos - float64(i)
	a, b := rdYlGn[i], rdYlGn[i+1]
	lerp := func(x, y uint8) uint8 {
		return uint8(math.Round(float64(x) + frac*(float64(y)-float64(x))))
	}
	return color.RGBA{lerp(a.R, b.R), lerp(a.G, b.G), lerp(a.B, b.B), 255}
}

// NDVIColor colors one NDVI value. NaN is transparent.
func NDVIColor(v float64) color.RGBA {
	if math.IsNaN(v) {
		return color.RGBA{}
	}
	return RdYlGn(NDVINorm.Apply(v))
}
