// Package fetcher picks up export files from remote sources (HTTP, FTP) and
// parses the container formats they arrive in (CSV, XLSX, ZIP bundles).
package fetcher

import (
	"context"
	"io"
)

// Fetcher defines the interface for downloading remote export files.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL and writes it to the given path. Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}
