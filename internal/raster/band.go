package raster

import "math"

const (
	Blue  = 1
	Green = 2
	Red   = 3
	NIR   = 4
)

// Band is a row-major 2-D array of pixel values tagged with its band index.
type Band struct {
	Index int
	Rows  int
	Cols  int
	Data  []float64
}

func NewBand(index, rows, cols int) Band {
	return Band{Index: index, Rows: rows, Cols: cols, Data: make([]float64, rows*cols)}
}

func (b Band) Len() int {
	return len(b.Data)
}

func (b Band) SameShape(other Band) bool {
	return b.Rows == other.Rows && b.Cols == other.Cols
}

// Scale returns a copy of the band with every value multiplied by factor.
func (b Band) Scale(factor float64) Band {
	out := NewBand(b.Index, b.Rows, b.Cols)
	for i, v := range b.Data {
		out.Data[i] = v * factor
	}
	return out
}

// Range returns the minimum and maximum non-NaN values.
func (b Band) Range() (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range b.Data {
		if math.IsNaN(v) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}
