package aoi

import (
	"fmt"

	"github.com/airbusgeo/godal"
	"github.com/paulmach/orb"
)

// Reproject returns a copy of the definition with its polygon transformed to
// the given EPSG code.
func (d Definition) Reproject(epsg int) (Definition, error) {
	src, err := d.EPSG()
	if err != nil {
		return Definition{}, err
	}
	out := Definition{Name: d.Name, CRS: fmt.Sprintf("EPSG:%d", epsg)}
	if src == epsg {
		out.Polygon = d.Polygon.Clone()
		return out, nil
	}

	polygon, err := transformPolygon(d.Polygon, src, epsg)
	if err != nil {
		return Definition{}, fmt.Errorf("failed to reproject AOI %s: %w", d.Name, err)
	}
	out.Polygon = polygon
	return out, nil
}

func transformPolygon(p orb.Polygon, srcEPSG, dstEPSG int) (orb.Polygon, error) {
	srcSR, err := godal.NewSpatialRefFromEPSG(srcEPSG)
	if err != nil {
		return nil, err
	}
	defer srcSR.Close()
	dstSR, err := godal.NewSpatialRefFromEPSG(dstEPSG)
	if err != nil {
		return nil, err
	}
	defer dstSR.Close()
	tr, err := godal.NewTransform(srcSR, dstSR)
	if err != nil {
		return nil, err
	}
	defer tr.Close()

	out := make(orb.Polygon, len(p))
	for i, ring := range p {
		xs := make([]float64, len(ring))
		ys := make([]float64, len(ring))
		for j, pt := range ring {
			xs[j], ys[j] = pt[0], pt[1]
		}
		if err := tr.TransformEx(xs, ys, nil, nil); err != nil {
			return nil, fmt.Errorf("transform error: %w", err)
		}
		out[i] = make(orb.Ring, len(ring))
		for j := range ring {
			out[i][j] = orb.Point{xs[j], ys[j]}
		}
	}
	return out, nil
}

// FromBounds builds a WGS84 AOI from a projected extent grown by buffer on
// every side.
func FromBounds(name string, bound orb.Bound, buffer float64, srcEPSG int) (Definition, error) {
	minX, minY := bound.Min[0]-buffer, bound.Min[1]-buffer
	maxX, maxY := bound.Max[0]+buffer, bound.Max[1]+buffer
	ring := orb.Ring{{maxX, maxY}, {maxX, minY}, {minX, minY}, {minX, maxY}, {maxX, maxY}}

	def := Definition{Name: name, Polygon: orb.Polygon{ring}, CRS: fmt.Sprintf("EPSG:%d", srcEPSG)}
	return def.Reproject(4326)
}
