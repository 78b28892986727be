package aoi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

const DefaultCRS = "EPSG:4326"

// Definition is the boundary of one area of interest.
type Definition struct {
	Name    string
	Polygon orb.Polygon
	CRS     string
}

type crsMember struct {
	CRS *struct {
		Properties struct {
			Name string `json:"name"`
		} `json:"properties"`
	} `json:"crs"`
}

// Load reads an AOI from a GeoJSON file holding a FeatureCollection, a
// Feature or a bare geometry. The AOI is named after the file.
func Load(path string) (Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, fmt.Errorf("failed to read AOI %s: %w", path, err)
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	def, err := Parse(name, data)
	if err != nil {
		return Definition{}, fmt.Errorf("failed to load AOI %s: %w", path, err)
	}
	return def, nil
}

func Parse(name string, data []byte) (Definition, error) {
	var header struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &header); err != nil {
		return Definition{}, err
	}

	var g orb.Geometry
	switch header.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return Definition{}, err
		}
		if len(fc.Features) == 0 {
			return Definition{}, errors.New("feature collection has no features")
		}
		if len(fc.Features) > 1 {
			slog.Warn("AOI has more than one feature, using the first", "aoi", name, "features", len(fc.Features))
		}
		g = fc.Features[0].Geometry
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return Definition{}, err
		}
		g = f.Geometry
	default:
		geom, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return Definition{}, err
		}
		g = geom.Coordinates
	}

	polygon, err := toPolygon(g)
	if err != nil {
		return Definition{}, err
	}

	def := Definition{Name: name, Polygon: polygon, CRS: DefaultCRS}
	var member crsMember
	if err := json.Unmarshal(data, &member); err == nil && member.CRS != nil && member.CRS.Properties.Name != "" {
		def.CRS = member.CRS.Properties.Name
	}
	return def, nil
}

func toPolygon(g orb.Geometry) (orb.Polygon, error) {
	switch v := g.(type) {
	case orb.Polygon:
		if len(v) == 0 || len(v[0]) < 4 {
			return nil, errors.New("polygon ring needs at least four points")
		}
		return v, nil
	case orb.MultiPolygon:
		if len(v) == 0 {
			return nil, errors.New("empty multipolygon")
		}
		return toPolygon(v[0])
	case orb.Bound:
		return v.ToPolygon(), nil
	case nil:
		return nil, errors.New("missing geometry")
	}
	return nil, fmt.Errorf("unsupported AOI geometry %s", g.GeoJSONType())
}

// EPSG returns the numeric code of the definition's CRS.
func (d Definition) EPSG() (int, error) {
	return ParseEPSG(d.CRS)
}

// ParseEPSG accepts "EPSG:4326", "urn:ogc:def:crs:EPSG::32611" and the
// GeoJSON default "urn:ogc:def:crs:OGC:1.3:CRS84".
func ParseEPSG(crs string) (int, error) {
	upper := strings.ToUpper(strings.TrimSpace(crs))
	if upper == "" || strings.HasSuffix(upper, "CRS84") {
		return 4326, nil
	}
	i := strings.LastIndex(upper, ":")
	if i < 0 || !strings.Contains(upper, "EPSG") {
		return 0, fmt.Errorf("unsupported CRS %q", crs)
	}
	code, err := strconv.Atoi(upper[i+1:])
	if err != nil {
		return 0, fmt.Errorf("unsupported CRS %q: %w", crs, err)
	}
	return code, nil
}

// Centroid returns the area centroid of the AOI in its own CRS.
func (d Definition) Centroid() (orb.Point, error) {
	centroid, area := planar.CentroidArea(d.Polygon)
	if area <= 0 {
		return orb.Point{}, errors.New("error getting centroid")
	}
	return centroid, nil
}

// Bound is the bounding box of the AOI in its own CRS.
func (d Definition) Bound() orb.Bound {
	return d.Polygon.Bound()
}

// GeoJSON encodes the AOI as a FeatureCollection carrying a named crs
// member when the CRS is not WGS84.
func (d Definition) GeoJSON() ([]byte, error) {
	fc := geojson.NewFeatureCollection()
	feature := geojson.NewFeature(d.Polygon)
	feature.Properties["name"] = d.Name
	fc.Append(feature)

	data, err := json.Marshal(fc)
	if err != nil {
		return nil, err
	}
	code, err := d.EPSG()
	if err != nil || code == 4326 {
		return data, err
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	doc["crs"] = map[string]interface{}{
		"type":       "name",
		"properties": map[string]string{"name": fmt.Sprintf("urn:ogc:def:crs:EPSG::%d", code)},
	}
	return json.Marshal(doc)
}

// WriteCutline writes the AOI as a GeoJSON file usable as a GDAL cutline.
func (d Definition) WriteCutline(path string) error {
	data, err := d.GeoJSON()
	if err != nil {
		return fmt.Errorf("failed to encode cutline for %s: %w", d.Name, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
