package render

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/fogleman/gg"
	"github.com/forest-guardian/planet-ndvi/internal/raster"
)

const (
	minWidth    = 400
	titleHeight = 30
	barHeight   = 50
)

func upscale(cols int) int {
	if cols <= 0 || cols >= minWidth {
		return 1
	}
	return (minWidth + cols - 1) / cols
}

// rasterImage draws each sample as a scale×scale block.
func rasterImage(rows, cols, scale int, pixel func(i int) color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, cols*scale, rows*scale))
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			c := pixel(y*cols + x)
			for dy := 0; dy < scale; dy++ {
				for dx := 0; dx < scale; dx++ {
					img.SetRGBA(x*scale+dx, y*scale+dy, c)
				}
			}
		}
	}
	return img
}

// NDVIImage renders the NDVI raster with a title and a horizontal colorbar.
func NDVIImage(ndvi raster.Band, title string) image.Image {
	scale := upscale(ndvi.Cols)
	body := rasterImage(ndvi.Rows, ndvi.Cols, scale, func(i int) color.RGBA {
		return NDVIColor(ndvi.Data[i])
	})

	width := body.Bounds().Dx()
	dc := gg.NewContext(width, titleHeight+body.Bounds().Dy()+barHeight)
	dc.SetRGB(1, 1, 1)
	dc.Clear()
	dc.DrawImage(body, 0, titleHeight)

	dc.SetRGB(0, 0, 0)
	dc.DrawStringAnchored(title, float64(width)/2, titleHeight/2, 0.5, 0.5)
	drawColorbar(dc, width, titleHeight+body.Bounds().Dy())
	return dc.Image()
}

func drawColorbar(dc *gg.Context, width, top int) {
	left, right := float64(width)/4, float64(width)*3/4
	y := float64(top) + 8
	h := 12.0
	steps := 128
	step := (right - left) / float64(steps)
	for i := 0; i < steps; i++ {
		c := RdYlGn((float64(i) + 0.5) / float64(steps))
		dc.SetRGBA255(int(c.R), int(c.G), int(c.B), 255)
		dc.DrawRectangle(left+float64(i)*step, y, step+0.5, h)
		dc.Fill()
	}
	dc.SetRGB(0, 0, 0)
	dc.DrawRectangle(left, y, right-left, h)
	dc.Stroke()

	for _, v := range []float64{NDVIMin, NDVIMid, NDVIMax} {
		x := left + NDVINorm.Apply(v)*(right-left)
		dc.DrawStringAnchored(fmt.Sprintf("%.2f", v), x, y+h+10, 0.5, 0.5)
	}
	dc.DrawStringAnchored("NDVI", float64(width)/2, y+h+26, 0.5, 0.5)
}

// SaveNDVI writes the rendered NDVI raster as PNG.
func SaveNDVI(path string, ndvi raster.Band, title string) error {
	if err := gg.SavePNG(path, NDVIImage(ndvi, title)); err != nil {
		return fmt.Errorf("failed to save image: %w", err)
	}
	return nil
}

// RGBImage renders calibrated red, green and blue channels, each stretched
// by its own maximum. Pixels blank in every channel are transparent.
func RGBImage(channels []raster.Band, title string) (image.Image, error) {
	if len(channels) != 3 {
		return nil, fmt.Errorf("expected 3 channels, got %d", len(channels))
	}
	for _, c := range channels[1:] {
		if !c.SameShape(channels[0]) {
			return nil, fmt.Errorf("channel %d shape %dx%d differs from %dx%d", c.Index, c.Rows, c.Cols, channels[0].Rows, channels[0].Cols)
		}
	}

	var max [3]float64
	for i, c := range channels {
		_, max[i] = c.Range()
		if math.IsNaN(max[i]) || max[i] <= 0 {
			max[i] = 1
		}
	}

	rows, cols := channels[0].Rows, channels[0].Cols
	scale := upscale(cols)
	body := rasterImage(rows, cols, scale, func(i int) color.RGBA {
		var px [3]uint8
		blank := true
		for k, c := range channels {
			v := c.Data[i]
			if math.IsNaN(v) || v <= 0 {
				continue
			}
			blank = false
			px[k] = uint8(math.Round(255 * math.Min(v/max[k], 1)))
		}
		if blank {
			return color.RGBA{}
		}
		return color.RGBA{px[0], px[1], px[2], 255}
	})

	width := body.Bounds().Dx()
	dc := gg.NewContext(width, titleHeight+body.Bounds().Dy())
	dc.SetRGB(1, 1, 1)
	dc.Clear()
	dc.DrawImage(body, 0, titleHeight)
	dc.SetRGB(0, 0, 0)
	dc.DrawStringAnchored(title, float64(width)/2, titleHeight/2, 0.5, 0.5)
	return dc.Image(), nil
}

func SaveRGB(path string, channels []raster.Band, title string) error {
	img, err := RGBImage(channels, title)
	if err != nil {
		return err
	}
	if err := gg.SavePNG(path, img); err != nil {
		return fmt.Errorf("failed to save image: %w", err)
	}
	return nil
}
