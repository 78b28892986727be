package planet

import (
	"errors"
	"fmt"
)

// ErrPollTimeout is returned when a poll policy runs out of time or attempts.
var ErrPollTimeout = errors.New("planet: polling timed out")

// RemoteConnectionError reports a request that could not be completed after
// all retries.
type RemoteConnectionError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *RemoteConnectionError) Error() string {
	return fmt.Sprintf("failed to request %s after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

func (e *RemoteConnectionError) Unwrap() error { return e.Err }

// MalformedResponseError reports a provider response missing an expected key
// or carrying an unexpected value.
type MalformedResponseError struct {
	URL   string
	Field string
	Err   error
}

func (e *MalformedResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed response from %s: %s: %v", e.URL, e.Field, e.Err)
	}
	return fmt.Sprintf("malformed response from %s: missing %s", e.URL, e.Field)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// StatusError is an unexpected non-retryable HTTP status.
type StatusError struct {
	URL    string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s: %s", e.Status, e.URL, e.Body)
}

type DownloadError struct {
	URL string
	Err error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("failed to download %s: %v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// ClipJobFailedError is returned when the remote reports a terminal clip state.
type ClipJobFailedError struct {
	SceneID string
	State   string
}

func (e *ClipJobFailedError) Error() string {
	return fmt.Sprintf("clip job for scene %s ended in state %q", e.SceneID, e.State)
}

var ErrPermissionDenied = errors.New("planet: user does not have permissions to download asset")
