package raster

import (
	"fmt"
	"math"
	"os"
	"sync"

	"github.com/airbusgeo/godal"
)

var registerOnce sync.Once

// Init registers the GDAL drivers. It is safe to call more than once.
func Init() {
	registerOnce.Do(godal.RegisterAll)
}

// GeoInfo carries the georeferencing preserved from a source raster.
type GeoInfo struct {
	Transform  [6]float64
	Projection string
	Rows       int
	Cols       int
	Bands      int
}

func openQuiet(path string) (*godal.Dataset, error) {
	Init()
	return godal.Open(path, godal.ErrLogger(func(ec godal.ErrorCategory, code int, msg string) error {
		if ec == godal.CE_Warning {
			return nil
		}
		return fmt.Errorf("gdal error %d: %s", code, msg)
	}))
}

func geoInfo(ds *godal.Dataset) (GeoInfo, error) {
	structure := ds.Structure()
	info := GeoInfo{
		Projection: ds.Projection(),
		Rows:       structure.SizeY,
		Cols:       structure.SizeX,
		Bands:      structure.NBands,
	}
	transform, err := ds.GeoTransform()
	if err != nil {
		return info, fmt.Errorf("failed to get GeoTransform: %w", err)
	}
	info.Transform = transform
	return info, nil
}

// ReadBands reads the given 1-based band indices as float64 without calibration.
func ReadBands(path string, indices ...int) (map[int]Band, GeoInfo, error) {
	ds, err := openQuiet(path)
	if err != nil {
		return nil, GeoInfo{}, fmt.Errorf("failed to open TIFF file: %w", err)
	}
	defer ds.Close()

	info, err := geoInfo(ds)
	if err != nil {
		return nil, info, err
	}

	bands := ds.Bands()
	out := make(map[int]Band, len(indices))
	for _, index := range indices {
		if index < 1 || index > len(bands) {
			return nil, info, &MissingBandError{Band: index, Source: path}
		}
		band := NewBand(index, info.Rows, info.Cols)
		if err := bands[index-1].Read(0, 0, band.Data, info.Cols, info.Rows); err != nil {
			return nil, info, fmt.Errorf("failed to read data for band %d: %w", index, err)
		}
		out[index] = band
	}
	return out, info, nil
}

// WriteFloat writes the bands as a Float64 GeoTIFF with NaN as no-data. The
// file only appears at path once it is complete.
func WriteFloat(path string, info GeoInfo, bands ...Band) error {
	if len(bands) == 0 {
		return fmt.Errorf("no bands to write to %s", path)
	}
	Init()

	rows, cols := bands[0].Rows, bands[0].Cols
	tmpPath := path + ".partial"
	ds, err := godal.Create(godal.GTiff, tmpPath, len(bands), godal.Float64, cols, rows)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	if err := writeDataset(ds, info, bands); err != nil {
		ds.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := ds.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to flush %s: %w", path, err)
	}
	return os.Rename(tmpPath, path)
}

func writeDataset(ds *godal.Dataset, info GeoInfo, bands []Band) error {
	if info.Transform != ([6]float64{}) {
		if err := ds.SetGeoTransform(info.Transform); err != nil {
			return err
		}
	}
	if info.Projection != "" {
		if err := ds.SetProjection(info.Projection); err != nil {
			return err
		}
	}
	for i, b := range ds.Bands() {
		src := bands[i]
		if !src.SameShape(bands[0]) {
			return fmt.Errorf("band %d shape %dx%d differs from %dx%d", src.Index, src.Rows, src.Cols, bands[0].Rows, bands[0].Cols)
		}
		if err := b.SetNoData(math.NaN()); err != nil {
			return err
		}
		if err := b.Write(0, 0, src.Data, src.Cols, src.Rows); err != nil {
			return err
		}
	}
	return nil
}
