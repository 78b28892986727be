package raster

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Clipper crops rasters to a cutline with a GDAL warp.
type Clipper struct {
	// Cutline is a vector file (GeoJSON or shapefile) holding the AOI boundary.
	Cutline string
}

// Clip writes a new raster next to srcPath cropped to the cutline, pixels
// outside the boundary set to NaN. The caller owns the returned file.
func (c Clipper) Clip(ctx context.Context, srcPath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if c.Cutline == "" {
		return "", &ClipFailedError{Source: srcPath, Err: fmt.Errorf("no cutline configured")}
	}

	ds, err := openQuiet(srcPath)
	if err != nil {
		return "", &ClipFailedError{Source: srcPath, Err: err}
	}
	defer ds.Close()

	dstPath, err := clipPath(srcPath)
	if err != nil {
		return "", &ClipFailedError{Source: srcPath, Err: err}
	}

	switches := []string{
		"-of", "GTiff",
		"-cutline", c.Cutline,
		"-crop_to_cutline",
		"-ot", "Float64",
		"-dstnodata", "nan",
	}
	out, err := ds.Warp(dstPath, switches)
	if err != nil {
		os.Remove(dstPath)
		return "", &ClipFailedError{Source: srcPath, Err: err}
	}
	if err := out.Close(); err != nil {
		os.Remove(dstPath)
		return "", &ClipFailedError{Source: srcPath, Err: err}
	}
	return dstPath, nil
}

func clipPath(srcPath string) (string, error) {
	base := strings.TrimSuffix(filepath.Base(srcPath), filepath.Ext(srcPath))
	tmp, err := os.CreateTemp(filepath.Dir(srcPath), base+"_cut_*.tif")
	if err != nil {
		return "", err
	}
	name := tmp.Name()
	tmp.Close()
	if err := os.Remove(name); err != nil {
		return "", err
	}
	return name, nil
}
