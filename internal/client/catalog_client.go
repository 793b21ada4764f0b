package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/tunevault/api/internal/config"
	"github.com/tunevault/api/internal/model"
)

// ErrTrackUnavailable marks a permanent media-resolution failure: the track is
// delisted or not entitled in the requested region (403/404 upstream). Callers
// must not retry.
var ErrTrackUnavailable = errors.New("track unavailable")

// CatalogClient defines the interface for catalog provider operations
type CatalogClient interface {
	ResolveAlbum(ctx context.Context, albumID, region string) (*model.AlbumInfo, error)
	ResolveTrackMediaURL(ctx context.Context, trackID int64, quality, region string) (*model.MediaURL, error)
}

// apiError carries the upstream HTTP status so callers can classify failures
type apiError struct {
	status int
	body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("catalog API error (status %d): %s", e.status, e.body)
}

// HTTPCatalogClient implements CatalogClient against one provider endpoint.
// The primary and secondary providers speak the same wire protocol and differ
// only in base URL and token.
type HTTPCatalogClient struct {
	httpClient *http.Client
	baseURL    string
	token      string
	name       string
}

// NewCatalogClients builds one client per configured provider
func NewCatalogClients(cfg *config.CatalogConfig) map[model.CatalogSource]CatalogClient {
	timeout := time.Duration(cfg.Timeout) * time.Second
	clients := make(map[model.CatalogSource]CatalogClient)
	if cfg.PrimaryURL != "" {
		clients[model.SourcePrimary] = &HTTPCatalogClient{
			httpClient: &http.Client{Timeout: timeout},
			baseURL:    cfg.PrimaryURL,
			token:      cfg.PrimaryToken,
			name:       "primary",
		}
	}
	if cfg.SecondaryURL != "" {
		clients[model.SourceSecondary] = &HTTPCatalogClient{
			httpClient: &http.Client{Timeout: timeout},
			baseURL:    cfg.SecondaryURL,
			token:      cfg.SecondaryToken,
			name:       "secondary",
		}
	}
	return clients
}

// ResolveAlbum fetches album metadata including the ordered track list
func (c *HTTPCatalogClient) ResolveAlbum(ctx context.Context, albumID, region string) (*model.AlbumInfo, error) {
	endpoint := fmt.Sprintf("/v1/album/%s?region=%s", url.PathEscape(albumID), url.QueryEscape(region))
	var album model.AlbumInfo
	if err := c.get(ctx, endpoint, &album); err != nil {
		return nil, err
	}
	return &album, nil
}

// ResolveTrackMediaURL obtains a short-lived signed media URL for one track.
// A 403 or 404 from the provider is permanent and mapped to ErrTrackUnavailable.
func (c *HTTPCatalogClient) ResolveTrackMediaURL(ctx context.Context, trackID int64, quality, region string) (*model.MediaURL, error) {
	endpoint := fmt.Sprintf("/v1/track/%d/stream?quality=%s&region=%s",
		trackID, url.QueryEscape(quality), url.QueryEscape(region))

	var media model.MediaURL
	if err := c.get(ctx, endpoint, &media); err != nil {
		var ae *apiError
		if errors.As(err, &ae) && (ae.status == http.StatusForbidden || ae.status == http.StatusNotFound) {
			return nil, fmt.Errorf("track %d: %w", trackID, ErrTrackUnavailable)
		}
		return nil, err
	}
	return &media, nil
}

// get sends a GET request and parses the JSON response
func (c *HTTPCatalogClient) get(ctx context.Context, endpoint string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(req, result)
}

// doRequest executes an HTTP request and parses the response
func (c *HTTPCatalogClient) doRequest(req *http.Request, result interface{}) error {
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	log.Printf("[Catalog %s] → %s %s", c.name, req.Method, req.URL.Path)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[Catalog %s] ✗ %s %s request failed: %v", c.name, req.Method, req.URL.Path, err)
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	log.Printf("[Catalog %s] ← %d %s %s", c.name, resp.StatusCode, req.Method, req.URL.Path)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &apiError{status: resp.StatusCode, body: string(respBody)}
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return nil
}

// IsConfigured returns true if the client has valid configuration
func (c *HTTPCatalogClient) IsConfigured() bool {
	return c.baseURL != ""
}
