package acquire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

const (
	// downloadUserAgent identifies the pipeline to artifact hosts.
	downloadUserAgent = "clip2gif-packager/1.0"

	// maxRedirects caps redirect chains; release hosts usually bounce once or twice.
	maxRedirects = 10
)

var errTooManyRedirects = errors.New("too many redirects")

// Downloader fetches remote archives with a bounded per-attempt timeout and
// a fixed number of retries, so a single unreachable source cannot stall the
// pipeline indefinitely.
type Downloader struct {
	client  *http.Client
	retries int
}

// NewDownloader creates a downloader. The timeout bounds one URL attempt
// end to end (connect plus read).
func NewDownloader(timeout time.Duration, retries int) *Downloader {
	return &Downloader{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return errTooManyRedirects
				}

				return nil
			},
		},
		retries: retries,
	}
}

// Fetch downloads a URL to destPath, retrying with exponential backoff.
// The file is written to a temporary sibling and renamed into place so a
// partially transferred archive never looks complete.
func (d *Downloader) Fetch(ctx context.Context, url, destPath string) error {
	var lastErr error

	for attempt := 0; attempt <= d.retries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if attempt > 0 {
			// 1s, 2s, 4s between attempts.
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if err := d.fetchOnce(ctx, url, destPath); err != nil {
			lastErr = err
			continue
		}

		return nil
	}

	return fmt.Errorf("download failed after %d attempts: %w", d.retries+1, lastErr)
}

// fetchOnce performs a single download attempt.
func (d *Downloader) fetchOnce(ctx context.Context, url, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", downloadUserAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s for %s", resp.Status, url)
	}

	if err = os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("create destination dir: %w", err)
	}

	tmpPath := destPath + ".tmp"

	tmpFile, err := os.Create(filepath.Clean(tmpPath))
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	renamed := false

	defer func() {
		_ = tmpFile.Close()

		if !renamed {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err = io.Copy(tmpFile, resp.Body); err != nil {
		return fmt.Errorf("copy response body: %w", err)
	}

	if err = tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err = os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}

	renamed = true

	return nil
}
