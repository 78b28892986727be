package render

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"os"

	"github.com/forest-guardian/planet-ndvi/internal/raster"
)

// Frame is one NDVI raster of an animation.
type Frame struct {
	Label string
	NDVI  raster.Band
}

// ndviPalette holds the colormap plus white, black and transparent.
func ndviPalette() color.Palette {
	p := color.Palette{color.RGBA{}, color.White, color.Black}
	for i := 0; i < 253; i++ {
		p = append(p, RdYlGn(float64(i)/252))
	}
	return p
}

// Animate renders the frames in order into a looping GIF. Frames of
// different sizes are placed top-left on a canvas fitting the largest.
func Animate(path string, frames []Frame, delay int) error {
	if len(frames) == 0 {
		return errors.New("no frames to animate")
	}

	rendered := make([]image.Image, len(frames))
	var width, height int
	for i, f := range frames {
		rendered[i] = NDVIImage(f.NDVI, f.Label)
		b := rendered[i].Bounds()
		width = max(width, b.Dx())
		height = max(height, b.Dy())
	}

	palette := ndviPalette()
	anim := &gif.GIF{LoopCount: 0}
	for _, img := range rendered {
		frame := image.NewPaletted(image.Rect(0, 0, width, height), palette)
		draw.Draw(frame, frame.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
		draw.Draw(frame, img.Bounds(), img, img.Bounds().Min, draw.Over)
		anim.Image = append(anim.Image, frame)
		anim.Delay = append(anim.Delay, delay)
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create animation: %w", err)
	}
	if err := gif.EncodeAll(file, anim); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to encode animation: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}
