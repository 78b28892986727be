package planet

import (
	"context"
	"fmt"
	"time"

	"github.com/paulmach/orb/geojson"
)

const searchPath = "data/v1/quick-search"

// maxSearchPages guards against a provider returning a _next loop.
const maxSearchPages = 100

func buildSearchRequest(r SearchRequest) searchRequest {
	filters := []interface{}{
		objectFilter{
			Type:      "DateRangeFilter",
			FieldName: "acquired",
			Config: dateConfig{
				GTE: r.Start.UTC().Format(time.RFC3339),
				LTE: r.End.UTC().Format(time.RFC3339),
			},
		},
		objectFilter{
			Type:      "RangeFilter",
			FieldName: "cloud_cover",
			Config:    rangeConfig{GTE: 0, LTE: r.MaxCloud},
		},
	}
	if r.AOI != nil {
		filters = append(filters, objectFilter{
			Type:      "GeometryFilter",
			FieldName: "geometry",
			Config:    geojson.NewGeometry(r.AOI),
		})
	}

	return searchRequest{
		Name:      r.Name,
		ItemTypes: r.ItemTypes,
		Interval:  "year",
		Filter:    filter{Type: "AndFilter", Config: filters},
	}
}

// Search returns the scenes matching the request in provider order.
func (c *Client) Search(ctx context.Context, r SearchRequest) ([]Scene, error) {
	if len(r.ItemTypes) == 0 {
		r.ItemTypes = []string{c.ItemType}
	}

	var page searchPage
	if err := c.sendJSON(ctx, "POST", searchPath, buildSearchRequest(r), &page); err != nil {
		return nil, fmt.Errorf("failed to search scenes for %s: %w", r.Name, err)
	}

	var scenes []Scene
	for pages := 1; ; pages++ {
		for i, f := range page.Features {
			scene, err := parseFeature(f, c.resolve(searchPath), len(scenes)+i)
			if err != nil {
				return nil, err
			}
			scenes = append(scenes, scene)
		}
		if page.Links.Next == "" || pages >= maxSearchPages {
			break
		}
		next := page.Links.Next
		page = searchPage{}
		if err := c.sendJSON(ctx, "GET", next, nil, &page); err != nil {
			return nil, fmt.Errorf("failed to fetch search page %d for %s: %w", pages+1, r.Name, err)
		}
	}
	return scenes, nil
}

func parseFeature(f searchFeature, source string, position int) (Scene, error) {
	field := func(name string) error {
		return &MalformedResponseError{URL: source, Field: fmt.Sprintf("features[%d].%s", position, name)}
	}

	if f.ID == nil || *f.ID == "" {
		return Scene{}, field("id")
	}
	if f.Properties == nil || f.Properties.Acquired == nil {
		return Scene{}, field("properties.acquired")
	}
	if f.Links.Assets == "" {
		return Scene{}, field("_links.assets")
	}

	acquired, err := time.Parse(time.RFC3339Nano, *f.Properties.Acquired)
	if err != nil {
		return Scene{}, &MalformedResponseError{URL: source, Field: fmt.Sprintf("features[%d].properties.acquired", position), Err: err}
	}

	scene := Scene{
		ID:        *f.ID,
		ItemType:  f.Properties.ItemType,
		Acquired:  acquired.UTC(),
		AssetsURL: f.Links.Assets,
	}
	if f.Properties.CloudCover != nil {
		scene.CloudCover = *f.Properties.CloudCover
	}
	if len(f.Geometry) > 0 && string(f.Geometry) != "null" {
		g, err := geojson.UnmarshalGeometry(f.Geometry)
		if err != nil {
			return Scene{}, &MalformedResponseError{URL: source, Field: fmt.Sprintf("features[%d].geometry", position), Err: err}
		}
		scene.Footprint = g.Coordinates
	}
	return scene, nil
}
