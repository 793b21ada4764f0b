package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// Downloader defines the interface for streaming media downloads
type Downloader interface {
	DownloadFile(ctx context.Context, url, destPath string) error
	DownloadBytes(ctx context.Context, url string) ([]byte, error)
}

// HTTPStatusError is returned for non-2xx download responses so callers can
// tell permanent upstream rejections from transient failures.
type HTTPStatusError struct {
	Code int
	URL  string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.URL)
}

// DownloadClient streams media files to local scratch storage
type DownloadClient struct {
	httpClient *http.Client
	userAgent  string
}

// NewDownloadClient creates a new download client
func NewDownloadClient() *DownloadClient {
	return &DownloadClient{
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		userAgent: "tunevault/1.0",
	}
}

// DownloadFile streams a URL directly to destPath, truncating any previous
// content so a failed earlier attempt cannot leak into this one
func (c *DownloadClient) DownloadFile(ctx context.Context, url, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &HTTPStatusError{Code: resp.StatusCode, URL: url}
	}

	file, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = io.Copy(file, resp.Body)
	return err
}

// DownloadBytes fetches a URL into memory. Use for small files like cover art;
// audio goes through DownloadFile.
func (c *DownloadClient) DownloadBytes(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPStatusError{Code: resp.StatusCode, URL: url}
	}

	return io.ReadAll(resp.Body)
}
