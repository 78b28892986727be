// Package rastertest builds analytic scene fixtures for tests.
package rastertest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/airbusgeo/godal"
	"github.com/forest-guardian/planet-ndvi/internal/raster"
)

// UTM zone 11N origin used by every fixture.
var Transform = [6]float64{500000, 3, 0, 4200000, 0, -3}

// WriteAnalytic writes a UInt16 GeoTIFF with one band per entry of bands, each
// holding rows*cols values in row-major order.
func WriteAnalytic(t testing.TB, path string, rows, cols int, bands ...[]uint16) {
	t.Helper()
	raster.Init()

	ds, err := godal.Create(godal.GTiff, path, len(bands), godal.UInt16, cols, rows)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	if err := ds.SetGeoTransform(Transform); err != nil {
		t.Fatalf("set geotransform: %v", err)
	}
	sr, err := godal.NewSpatialRefFromEPSG(32611)
	if err != nil {
		t.Fatalf("spatial ref: %v", err)
	}
	defer sr.Close()
	if err := ds.SetSpatialRef(sr); err != nil {
		t.Fatalf("set spatial ref: %v", err)
	}
	for i, b := range ds.Bands() {
		if err := b.Write(0, 0, bands[i], cols, rows); err != nil {
			t.Fatalf("write band %d: %v", i+1, err)
		}
	}
	if err := ds.Close(); err != nil {
		t.Fatalf("close %s: %v", path, err)
	}
}

// Fill returns n copies of v.
func Fill(n int, v uint16) []uint16 {
	out := make([]uint16, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// MetadataXML renders an analytic metadata document with one
// bandSpecificMetadata element per coefficient, in band order.
func MetadataXML(coefficients ...string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<ps:EarthObservation xmlns:ps="http://schemas.planet.com/ps/v1/planet_product_metadata_geocorrected_level" xmlns:gml="http://www.opengis.net/gml">
  <gml:resultOf>
    <ps:EarthObservationResult>
`)
	for i, c := range coefficients {
		fmt.Fprintf(&b, `      <ps:bandSpecificMetadata>
        <ps:bandNumber>%d</ps:bandNumber>
        <ps:radiometricScaleFactor>0.01</ps:radiometricScaleFactor>
        <ps:reflectanceCoefficient>%s</ps:reflectanceCoefficient>
      </ps:bandSpecificMetadata>
`, i+1, c)
	}
	b.WriteString(`    </ps:EarthObservationResult>
  </gml:resultOf>
</ps:EarthObservation>
`)
	return b.String()
}

// WriteScene writes <dir>/<name>_3B_AnalyticMS_clip.tif and
// <dir>/<name>_3B_AnalyticMS_metadata_clip.xml and returns both paths.
func WriteScene(t testing.TB, dir, name string, rows, cols int, coefficients []string, bands ...[]uint16) (string, string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	tiff := filepath.Join(dir, name+"_3B_AnalyticMS_clip.tif")
	meta := filepath.Join(dir, name+"_3B_AnalyticMS_metadata_clip.xml")
	WriteAnalytic(t, tiff, rows, cols, bands...)
	if err := os.WriteFile(meta, []byte(MetadataXML(coefficients...)), 0644); err != nil {
		t.Fatalf("write metadata: %v", err)
	}
	return tiff, meta
}
