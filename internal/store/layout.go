package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	DataDir   = "data"
	ArraysDir = "arrays"
	ImagesDir = "img"
	SeriesDir = "ts"
	GifDir    = "gif"
)

// Layout is the artifact tree of one AOI under the results root:
//
//	<root>/<aoi>/data/<scene>/       extracted clip
//	<root>/<aoi>/arrays/ndvi_<scene>.tif
//	<root>/<aoi>/img/ndvi_<scene>.png
//	<root>/<aoi>/ts/timeseries.csv
//	<root>/<aoi>/gif/ndvi_<aoi>.gif
type Layout struct {
	Root string
	AOI  string
}

func New(root, aoi string) Layout {
	return Layout{Root: root, AOI: aoi}
}

func (l Layout) Dir() string { return filepath.Join(l.Root, l.AOI) }

func (l Layout) path(parts ...string) string {
	return filepath.Join(append([]string{l.Dir()}, parts...)...)
}

// EnsureDirs creates the AOI tree if it is missing.
func (l Layout) EnsureDirs() error {
	for _, dir := range []string{DataDir, ArraysDir, ImagesDir, SeriesDir, GifDir} {
		if err := os.MkdirAll(l.path(dir), 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", l.path(dir), err)
		}
	}
	return nil
}

func (l Layout) SceneArchive(id string) string { return l.path(DataDir, id+".zip") }

func (l Layout) SceneDir(id string) string { return l.path(DataDir, id) }

func (l Layout) ImageArray(id string) string { return l.path(ArraysDir, "img_"+id+".tif") }

// NDVIArray is the scene's completion marker.
func (l Layout) NDVIArray(id string) string { return l.path(ArraysDir, "ndvi_"+id+".tif") }

func (l Layout) ImagePNG(id string) string { return l.path(ImagesDir, "img_"+id+".png") }

func (l Layout) NDVIPNG(id string) string { return l.path(ImagesDir, "ndvi_"+id+".png") }

func (l Layout) Cutline() string { return l.path(DataDir, l.AOI+"_cutline.geojson") }

func (l Layout) TimeSeriesCSV() string { return l.path(SeriesDir, "timeseries.csv") }

func (l Layout) TimeSeriesPNG() string { return l.path(SeriesDir, "ndvi_ts_"+l.AOI+".png") }

func (l Layout) Animation() string { return l.path(GifDir, "ndvi_"+l.AOI+".gif") }

func (l Layout) CacheDir() string { return l.path(DataDir, ".cache") }

// Completed reports whether the scene's final artifact exists. A bare scene
// directory is not enough: a run may have stopped halfway through it.
func (l Layout) Completed(id string) bool {
	info, err := os.Stat(l.NDVIArray(id))
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}

// RejectionMarker flags a scene that failed the quality gate but was kept on
// disk, so later runs do not fetch it again.
func (l Layout) RejectionMarker(id string) string { return l.path(DataDir, id, ".rejected") }

func (l Layout) Rejected(id string) bool {
	_, err := os.Stat(l.RejectionMarker(id))
	return err == nil
}

// RemoveScene deletes everything a scene left behind.
func (l Layout) RemoveScene(id string) error {
	paths := []string{l.SceneArchive(id), l.SceneDir(id), l.ImageArray(id), l.NDVIArray(id), l.ImagePNG(id), l.NDVIPNG(id)}
	for _, p := range paths {
		if err := os.RemoveAll(p); err != nil {
			return fmt.Errorf("failed to remove %s: %w", p, err)
		}
	}
	return nil
}

// CompletedScenes lists the scene ids that have an NDVI array.
func (l Layout) CompletedScenes() ([]string, error) {
	entries, err := os.ReadDir(l.path(ArraysDir))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "ndvi_") || filepath.Ext(name) != ".tif" {
			continue
		}
		ids = append(ids, strings.TrimSuffix(strings.TrimPrefix(name, "ndvi_"), ".tif"))
	}
	sort.Strings(ids)
	return ids, nil
}

// PersistedScenes lists the completed scenes that were not rejected by the
// quality gate.
func (l Layout) PersistedScenes() ([]string, error) {
	ids, err := l.CompletedScenes()
	if err != nil {
		return nil, err
	}
	var kept []string
	for _, id := range ids {
		if !l.Rejected(id) {
			kept = append(kept, id)
		}
	}
	return kept, nil
}
