package raster

import "fmt"

// MetadataParseError is returned when a metadata sidecar cannot provide
// reflectance coefficients.
type MetadataParseError struct {
	Path   string
	Reason string
	Err    error
}

func (e *MetadataParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to parse metadata %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("failed to parse metadata %s: %s", e.Path, e.Reason)
}

func (e *MetadataParseError) Unwrap() error { return e.Err }

// MissingBandError reports a band index with no coefficient or no raster band.
type MissingBandError struct {
	Band   int
	Source string
}

func (e *MissingBandError) Error() string {
	return fmt.Sprintf("band %d missing from %s", e.Band, e.Source)
}

type ClipFailedError struct {
	Source string
	Err    error
}

func (e *ClipFailedError) Error() string {
	return fmt.Sprintf("failed to clip %s: %v", e.Source, e.Err)
}

func (e *ClipFailedError) Unwrap() error { return e.Err }
