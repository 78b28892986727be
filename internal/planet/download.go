package planet

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
)

// Download streams ref to path. The file only appears once fully written.
func (c *Client) Download(ctx context.Context, ref, path string) (int64, error) {
	response, err := c.do(ctx, "GET", ref, nil)
	if err != nil {
		return 0, &DownloadError{URL: c.resolve(ref), Err: err}
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return 0, &DownloadError{URL: c.resolve(ref), Err: fmt.Errorf("status %d", response.StatusCode)}
	}

	tmpPath := path + ".part"
	file, err := os.Create(tmpPath)
	if err != nil {
		return 0, &DownloadError{URL: c.resolve(ref), Err: err}
	}

	written, err := io.Copy(file, response.Body)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpPath)
		return written, &DownloadError{URL: c.resolve(ref), Err: err}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return written, &DownloadError{URL: c.resolve(ref), Err: err}
	}
	return written, nil
}
