package render

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/fogleman/gg"
	"github.com/forest-guardian/planet-ndvi/internal/timeseries"
)

const (
	chartWidth  = 1100
	chartHeight = 850
	marginLeft  = 90.0
	marginRight = 40.0
	marginTop   = 60.0
	marginBase  = 80.0
)

// TimeSeriesChart plots mean NDVI per acquisition with ±2·sd error bars.
// Records with a NaN mean are left out.
func TimeSeriesChart(records []timeseries.Record, title string) (*gg.Context, error) {
	var points []timeseries.Record
	for _, r := range records {
		if !math.IsNaN(r.Mean) {
			points = append(points, r)
		}
	}
	if len(points) == 0 {
		return nil, errors.New("no records to plot")
	}

	t0, t1 := points[0].Timestamp, points[0].Timestamp
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, p := range points {
		if p.Timestamp.Before(t0) {
			t0 = p.Timestamp
		}
		if p.Timestamp.After(t1) {
			t1 = p.Timestamp
		}
		sd := p.SD
		if math.IsNaN(sd) {
			sd = 0
		}
		lo = math.Min(lo, p.Mean-2*sd)
		hi = math.Max(hi, p.Mean+2*sd)
	}
	if !t1.After(t0) {
		t0, t1 = t0.Add(-12*time.Hour), t1.Add(12*time.Hour)
	}
	pad := (hi - lo) * 0.1
	if pad == 0 {
		pad = 0.05
	}
	lo, hi = lo-pad, hi+pad

	plotW := chartWidth - marginLeft - marginRight
	plotH := chartHeight - marginTop - marginBase
	xOf := func(t time.Time) float64 {
		return marginLeft + plotW*float64(t.Sub(t0))/float64(t1.Sub(t0))
	}
	yOf := func(v float64) float64 {
		return marginTop + plotH*(hi-v)/(hi-lo)
	}

	dc := gg.NewContext(chartWidth, chartHeight)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	// grid and tick labels
	dc.SetLineWidth(1)
	for i := 0; i <= 5; i++ {
		v := lo + (hi-lo)*float64(i)/5
		y := yOf(v)
		dc.SetRGB(0.75, 0.75, 0.75)
		dc.SetDash(2, 3)
		dc.DrawLine(marginLeft, y, marginLeft+plotW, y)
		dc.Stroke()
		dc.SetDash()
		dc.SetRGB(0, 0, 0)
		dc.DrawStringAnchored(fmt.Sprintf("%.2f", v), marginLeft-10, y, 1, 0.5)

		tick := t0.Add(time.Duration(float64(t1.Sub(t0)) * float64(i) / 5))
		x := xOf(tick)
		dc.SetRGB(0.75, 0.75, 0.75)
		dc.SetDash(2, 3)
		dc.DrawLine(x, marginTop, x, marginTop+plotH)
		dc.Stroke()
		dc.SetDash()
		dc.SetRGB(0, 0, 0)
		dc.DrawStringAnchored(tick.Format("2006-01-02"), x, marginTop+plotH+18, 0.5, 0.5)
	}
	dc.SetRGB(0, 0, 0)
	dc.DrawRectangle(marginLeft, marginTop, plotW, plotH)
	dc.Stroke()

	dc.SetRGB(0.85, 0.1, 0.1)
	dc.SetLineWidth(1.5)
	for _, p := range points {
		x, y := xOf(p.Timestamp), yOf(p.Mean)
		if !math.IsNaN(p.SD) && p.SD > 0 {
			top, bottom := yOf(p.Mean+2*p.SD), yOf(p.Mean-2*p.SD)
			dc.DrawLine(x, top, x, bottom)
			dc.DrawLine(x-3, top, x+3, top)
			dc.DrawLine(x-3, bottom, x+3, bottom)
			dc.Stroke()
		}
		dc.DrawRectangle(x-4, y-4, 8, 8)
		dc.Fill()
	}

	dc.SetRGB(0, 0, 0)
	dc.DrawStringAnchored(strings.ToUpper(title), chartWidth/2, marginTop/2, 0.5, 0.5)
	dc.Push()
	dc.RotateAbout(-math.Pi/2, 25, marginTop+plotH/2)
	dc.DrawStringAnchored("NDVI", 25, marginTop+plotH/2, 0.5, 0.5)
	dc.Pop()
	return dc, nil
}

func SaveTimeSeries(path string, records []timeseries.Record, title string) error {
	dc, err := TimeSeriesChart(records, title)
	if err != nil {
		return err
	}
	if err := dc.SavePNG(path); err != nil {
		return fmt.Errorf("failed to save image: %w", err)
	}
	return nil
}
