package archive

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ManifestFile is the name under which a scene manifest is persisted in the
// scene directory.
const ManifestFile = "scene.json"

// providerManifest is the manifest.json Planet ships inside clip archives.
const providerManifest = "manifest.json"

// Manifest lists the extracted files of one scene by role. Paths are
// relative to Dir.
type Manifest struct {
	Dir      string   `json:"-"`
	Analytic string   `json:"analytic"`
	Metadata string   `json:"metadata"`
	UDM      string   `json:"udm,omitempty"`
	Files    []string `json:"files"`
}

func (m Manifest) AnalyticPath() string { return filepath.Join(m.Dir, m.Analytic) }

func (m Manifest) MetadataPath() string { return filepath.Join(m.Dir, m.Metadata) }

// Valid reports whether both files needed for decoding are known.
func (m Manifest) Valid() bool {
	return m.Analytic != "" && m.Metadata != ""
}

type plManifest struct {
	Files []struct {
		Path        string            `json:"path"`
		MediaType   string            `json:"media_type"`
		Annotations map[string]string `json:"annotations"`
	} `json:"files"`
}

// classify assigns a role to a file by its asset annotation, falling back to
// Planet's file naming.
func classify(m *Manifest, path, assetType string) {
	base := strings.ToLower(filepath.Base(path))
	switch {
	case assetType == "analytic" || assetType == "analytic_sr":
		m.Analytic = path
	case assetType == "analytic_xml":
		m.Metadata = path
	case strings.HasPrefix(assetType, "udm"):
		m.UDM = path
	case assetType != "":
	case strings.HasSuffix(base, ".xml") && strings.Contains(base, "metadata"):
		if m.Metadata == "" {
			m.Metadata = path
		}
	case strings.Contains(base, "udm") && strings.HasSuffix(base, ".tif"):
		if m.UDM == "" {
			m.UDM = path
		}
	case strings.HasSuffix(base, ".tif") && strings.Contains(base, "analytic"):
		if m.Analytic == "" {
			m.Analytic = path
		}
	}
}

// Describe builds the manifest of an extracted scene directory. Planet's
// manifest.json is used when present, otherwise files are classified by name.
func Describe(dir string) (Manifest, error) {
	m := Manifest{Dir: dir}
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if rel == ManifestFile {
			return nil
		}
		m.Files = append(m.Files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return Manifest{}, fmt.Errorf("failed to list scene directory %s: %w", dir, err)
	}
	sort.Strings(m.Files)

	if data, err := os.ReadFile(filepath.Join(dir, providerManifest)); err == nil {
		var pm plManifest
		if err := json.Unmarshal(data, &pm); err == nil {
			for _, f := range pm.Files {
				if f.Annotations["planet/asset_type"] == "" {
					continue
				}
				classify(&m, filepath.FromSlash(f.Path), f.Annotations["planet/asset_type"])
			}
		}
	}
	for _, f := range m.Files {
		classify(&m, filepath.FromSlash(f), "")
	}
	return m, nil
}

// Save writes the manifest to dir/scene.json.
func (m Manifest) Save() error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	return os.WriteFile(filepath.Join(m.Dir, ManifestFile), data, 0644)
}

// Load reads a persisted manifest, describing the directory when none was
// saved.
func Load(dir string) (Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if os.IsNotExist(err) {
		return Describe(dir)
	}
	if err != nil {
		return Manifest{}, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("failed to parse manifest in %s: %w", dir, err)
	}
	m.Dir = dir
	return m, nil
}
