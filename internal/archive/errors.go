package archive

import "fmt"

// ExtractionError reports an archive that could not be unpacked or does not
// contain the files a scene needs.
type ExtractionError struct {
	Archive string
	Reason  string
	Err     error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to extract %s: %s: %v", e.Archive, e.Reason, e.Err)
	}
	return fmt.Sprintf("failed to extract %s: %s", e.Archive, e.Reason)
}

func (e *ExtractionError) Unwrap() error { return e.Err }
