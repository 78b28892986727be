package objectstore

import (
	"context"
	"path"
	"path/filepath"
	"strings"

	"github.com/forest-guardian/planet-ndvi/internal/pipeline"
	"github.com/forest-guardian/planet-ndvi/internal/store"
)

// SceneUploader publishes the rendered PNGs of every persisted scene under
// <aoi>/img/.
type SceneUploader struct {
	Client *Client
}

func (u SceneUploader) Name() string { return "object-store upload" }

func (u SceneUploader) SceneProcessed(ctx context.Context, layout store.Layout, scene pipeline.Scene) error {
	keys := map[string]string{}
	for _, artifact := range scene.Artifacts {
		if !strings.HasSuffix(artifact, ".png") {
			continue
		}
		keys[artifact] = path.Join(layout.AOI, store.ImagesDir, filepath.Base(artifact))
	}
	return u.Client.UploadFiles(ctx, keys)
}

// SeriesKeys maps an AOI's time-series outputs to their object keys.
func SeriesKeys(layout store.Layout) map[string]string {
	return map[string]string{
		layout.TimeSeriesCSV(): path.Join(layout.AOI, store.SeriesDir, filepath.Base(layout.TimeSeriesCSV())),
		layout.TimeSeriesPNG(): path.Join(layout.AOI, store.SeriesDir, filepath.Base(layout.TimeSeriesPNG())),
	}
}
