package planet

import (
	"encoding/json"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

const (
	ClipSucceeded = "succeeded"
	ClipFailed    = "failed"

	AssetActive = "active"
)

// Scene is a search hit validated at the client boundary.
type Scene struct {
	ID         string
	ItemType   string
	Acquired   time.Time
	CloudCover float64
	Footprint  orb.Geometry
	AssetsURL  string
}

type sceneJSON struct {
	ID         string            `json:"id"`
	ItemType   string            `json:"item_type,omitempty"`
	Acquired   time.Time         `json:"acquired"`
	CloudCover float64           `json:"cloud_cover"`
	Footprint  *geojson.Geometry `json:"geometry,omitempty"`
	AssetsURL  string            `json:"assets"`
}

func (s Scene) MarshalJSON() ([]byte, error) {
	out := sceneJSON{ID: s.ID, ItemType: s.ItemType, Acquired: s.Acquired, CloudCover: s.CloudCover, AssetsURL: s.AssetsURL}
	if s.Footprint != nil {
		out.Footprint = geojson.NewGeometry(s.Footprint)
	}
	return json.Marshal(out)
}

func (s *Scene) UnmarshalJSON(data []byte) error {
	var in sceneJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*s = Scene{ID: in.ID, ItemType: in.ItemType, Acquired: in.Acquired, CloudCover: in.CloudCover, AssetsURL: in.AssetsURL}
	if in.Footprint != nil {
		s.Footprint = in.Footprint.Coordinates
	}
	return nil
}

// AssetReference points at one downloadable asset of a scene.
type AssetReference struct {
	Type        string
	Status      string
	SelfURL     string
	ActivateURL string
	Location    string
}

type ClipJob struct {
	SceneID string
	SelfURL string
	State   string
}

// ClipJobStatus is one observation of a clip job.
type ClipJobStatus struct {
	State   string
	Results []string
}

// SearchRequest is a quick-search over one AOI and time window.
type SearchRequest struct {
	Name      string
	ItemTypes []string
	AOI       orb.Geometry
	Start     time.Time
	End       time.Time
	MaxCloud  float64
}

type searchRequest struct {
	Name      string   `json:"name,omitempty"`
	ItemTypes []string `json:"item_types"`
	Interval  string   `json:"interval,omitempty"`
	Filter    filter   `json:"filter"`
}

type filter struct {
	Type   string        `json:"type"`
	Config []interface{} `json:"config"`
}

type objectFilter struct {
	Type      string      `json:"type"`
	FieldName string      `json:"field_name"`
	Config    interface{} `json:"config"`
}

type dateConfig struct {
	GTE string `json:"gte,omitempty"`
	LTE string `json:"lte,omitempty"`
}

type rangeConfig struct {
	GTE float64 `json:"gte"`
	LTE float64 `json:"lte"`
}

type searchPage struct {
	Links struct {
		Next string `json:"_next"`
	} `json:"_links"`
	Features []searchFeature `json:"features"`
}

type searchFeature struct {
	ID    *string `json:"id"`
	Links struct {
		Assets string `json:"assets"`
	} `json:"_links"`
	Properties *struct {
		Acquired   *string  `json:"acquired"`
		CloudCover *float64 `json:"cloud_cover"`
		ItemType   string   `json:"item_type"`
	} `json:"properties"`
	Geometry json.RawMessage `json:"geometry"`
}

type asset struct {
	Links struct {
		Self     string `json:"_self"`
		Activate string `json:"activate"`
		Type     string `json:"type"`
	} `json:"_links"`
	Status   string `json:"status"`
	Type     string `json:"type"`
	Location string `json:"location,omitempty"`
}

type clipRequest struct {
	AOI     interface{}  `json:"aoi"`
	Targets []clipTarget `json:"targets"`
}

type clipTarget struct {
	ItemID    string `json:"item_id"`
	ItemType  string `json:"item_type"`
	AssetType string `json:"asset_type"`
}

type clipResponse struct {
	Links *struct {
		Self    string   `json:"_self"`
		Results []string `json:"results"`
	} `json:"_links"`
	State *string `json:"state"`
}
