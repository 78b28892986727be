package timeseries

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/forest-guardian/planet-ndvi/internal/utils"
)

// TimestampLayout is the acquisition token Planet puts at the start of
// scene file names, e.g. 20170519_184131_0e19_3B_AnalyticMS_clip.tif.
const TimestampLayout = "20060102_150405"

// Record is one aggregated acquisition.
type Record struct {
	Timestamp time.Time `csv:"timestamp" db:"acquired"`
	Mean      float64   `csv:"m" db:"mean"`
	SD        float64   `csv:"sd" db:"sd"`
}

// ParseTimestamp reads the acquisition time from the first 15 characters of
// a scene file name.
func ParseTimestamp(name string) (time.Time, error) {
	base := filepath.Base(name)
	if len(base) < len(TimestampLayout) {
		return time.Time{}, fmt.Errorf("file name %q has no acquisition timestamp", name)
	}
	t, err := time.Parse(TimestampLayout, base[:len(TimestampLayout)])
	if err != nil {
		return time.Time{}, fmt.Errorf("file name %q has no acquisition timestamp: %w", name, err)
	}
	return t.UTC(), nil
}

type MergePolicy string

const (
	// MergeExact appends and drops only rows identical in timestamp and
	// statistics.
	MergeExact MergePolicy = "exact"
	// MergeUpsert keeps one row per timestamp, the later one winning.
	MergeUpsert MergePolicy = "upsert"
)

func ParseMergePolicy(s string) (MergePolicy, error) {
	switch MergePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", MergeExact:
		return MergeExact, nil
	case MergeUpsert:
		return MergeUpsert, nil
	}
	return "", fmt.Errorf("unknown merge policy %q", s)
}

func sameFloat(a, b float64) bool {
	return a == b || (math.IsNaN(a) && math.IsNaN(b))
}

func (r Record) equal(other Record) bool {
	return r.Timestamp.Equal(other.Timestamp) && sameFloat(r.Mean, other.Mean) && sameFloat(r.SD, other.SD)
}

// Merge combines a previously persisted series with fresh records and
// returns the result sorted by timestamp.
func Merge(prior, fresh []Record, policy MergePolicy) []Record {
	all := make([]Record, 0, len(prior)+len(fresh))
	all = append(all, prior...)
	all = append(all, fresh...)

	var out []Record
	switch policy {
	case MergeUpsert:
		position := make(map[int64]int, len(all))
		for _, r := range all {
			key := r.Timestamp.UnixNano()
			if i, ok := position[key]; ok {
				out[i] = r
				continue
			}
			position[key] = len(out)
			out = append(out, r)
		}
	default:
		for _, r := range all {
			duplicate := false
			for _, kept := range out {
				if kept.equal(r) {
					duplicate = true
					break
				}
			}
			if !duplicate {
				out = append(out, r)
			}
		}
	}

	utils.SortByTime(out, func(r Record) time.Time { return r.Timestamp })
	return out
}
