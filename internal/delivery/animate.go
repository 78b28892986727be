package delivery

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/forest-guardian/planet-ndvi/internal/raster"
	"github.com/forest-guardian/planet-ndvi/internal/render"
	"github.com/forest-guardian/planet-ndvi/internal/timeseries"
	"github.com/forest-guardian/planet-ndvi/internal/utils"
)

// AnimateAOI renders every persisted NDVI raster of the AOI into one GIF,
// ordered by acquisition time, and returns its path. Rejected scenes are
// left out.
func (r *Runner) AnimateAOI(name string, delay int) (string, error) {
	layout := r.layout(name)
	ids, err := layout.PersistedScenes()
	if err != nil {
		return "", err
	}

	frames := map[time.Time]render.Frame{}
	for _, id := range ids {
		acquired, err := timeseries.ParseTimestamp(id)
		if err != nil {
			slog.Warn("Skipping scene without timestamp", "aoi", name, "scene", id)
			continue
		}
		bands, _, err := raster.ReadBands(layout.NDVIArray(id), 1)
		if err != nil {
			slog.Warn("Skipping unreadable NDVI raster", "aoi", name, "scene", id, "error", err)
			continue
		}
		frames[acquired] = render.Frame{Label: acquired.Format("2006-01-02 15:04"), NDVI: bands[1]}
	}
	if len(frames) == 0 {
		return "", fmt.Errorf("no NDVI rasters to animate for %s", name)
	}

	ordered := make([]render.Frame, 0, len(frames))
	for _, t := range utils.GetSortedKeys(frames, true) {
		ordered = append(ordered, frames[t])
	}
	if err := render.Animate(layout.Animation(), ordered, delay); err != nil {
		return "", err
	}
	slog.Info("Animation written", "aoi", name, "frames", len(ordered), "path", layout.Animation())
	return layout.Animation(), nil
}
