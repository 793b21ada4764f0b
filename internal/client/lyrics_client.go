package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/tunevault/api/internal/model"
)

// LyricsQuery identifies a track for lyrics lookup
type LyricsQuery struct {
	Title    string
	Artist   string
	Album    string
	Duration int // seconds, 0 when unknown
}

// LyricsProvider defines one source in the lyrics lookup chain. A provider
// returns (nil, nil) when it has no lyrics for the track; errors are reserved
// for transport failures.
type LyricsProvider interface {
	Name() string
	Fetch(ctx context.Context, q LyricsQuery) (*model.Lyrics, error)
}

// LrclibClient queries the lrclib open lyrics database: an exact signature
// match first, then a fuzzy search fallback. Both calls share one 8s budget.
type LrclibClient struct {
	httpClient *http.Client
	baseURL    string
}

const lrclibBudget = 8 * time.Second

// NewLrclibClient creates a client for the open lyrics database
func NewLrclibClient(baseURL string) *LrclibClient {
	return &LrclibClient{
		httpClient: &http.Client{Timeout: lrclibBudget},
		baseURL:    baseURL,
	}
}

func (c *LrclibClient) Name() string { return "lrclib" }

type lrclibRecord struct {
	TrackName    string `json:"trackName"`
	ArtistName   string `json:"artistName"`
	PlainLyrics  string `json:"plainLyrics"`
	SyncedLyrics string `json:"syncedLyrics"`
}

func (r *lrclibRecord) toLyrics() *model.Lyrics {
	if r.SyncedLyrics != "" {
		return &model.Lyrics{Text: r.SyncedLyrics, Synced: true, Source: "lrclib"}
	}
	if r.PlainLyrics != "" {
		return &model.Lyrics{Text: r.PlainLyrics, Synced: false, Source: "lrclib"}
	}
	return nil
}

// Fetch tries an exact lookup by artist+title+album+duration, then falls back
// to a fuzzy search when the exact signature has no record
func (c *LrclibClient) Fetch(ctx context.Context, q LyricsQuery) (*model.Lyrics, error) {
	ctx, cancel := context.WithTimeout(ctx, lrclibBudget)
	defer cancel()

	params := url.Values{}
	params.Set("track_name", q.Title)
	params.Set("artist_name", q.Artist)
	if q.Album != "" {
		params.Set("album_name", q.Album)
	}
	if q.Duration > 0 {
		params.Set("duration", fmt.Sprintf("%d", q.Duration))
	}

	var record lrclibRecord
	found, err := c.get(ctx, "/api/get?"+params.Encode(), &record)
	if err != nil {
		return nil, err
	}
	if found {
		if ly := record.toLyrics(); ly != nil {
			return ly, nil
		}
	}

	// Fuzzy search fallback
	search := url.Values{}
	search.Set("q", q.Artist+" "+q.Title)
	var records []lrclibRecord
	found, err = c.get(ctx, "/api/search?"+search.Encode(), &records)
	if err != nil || !found {
		return nil, err
	}
	for i := range records {
		if ly := records[i].toLyrics(); ly != nil {
			return ly, nil
		}
	}
	return nil, nil
}

// get returns found=false on a 404 without error
func (c *LrclibClient) get(ctx context.Context, endpoint string, result interface{}) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return false, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("lrclib request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("lrclib error (status %d)", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(body, result); err != nil {
		return false, fmt.Errorf("failed to unmarshal lrclib response: %w", err)
	}
	return true, nil
}

// AggregatorClient queries a lyrics aggregator service through a list of
// mirror endpoints, tried in sequence until one responds. The source filter
// narrows which upstream sources the aggregator may answer from.
type AggregatorClient struct {
	httpClient *http.Client
	mirrors    []string
	source     string
	name       string
}

// NewAggregatorClient creates an aggregator provider with the given source filter
func NewAggregatorClient(mirrors []string, source, name string, timeout time.Duration) *AggregatorClient {
	return &AggregatorClient{
		httpClient: &http.Client{Timeout: timeout},
		mirrors:    mirrors,
		source:     source,
		name:       name,
	}
}

func (c *AggregatorClient) Name() string { return c.name }

type aggregatorRequest struct {
	Title    string `json:"title"`
	Artist   string `json:"artist"`
	Album    string `json:"album,omitempty"`
	Duration int    `json:"duration,omitempty"`
	Source   string `json:"source,omitempty"`
}

type aggregatorResponse struct {
	Lyrics *string `json:"lyrics"`
	Synced bool    `json:"synced"`
	Source string  `json:"source"`
	Error  string  `json:"error,omitempty"`
}

// Fetch posts the query to each mirror in turn and returns the first answer
func (c *AggregatorClient) Fetch(ctx context.Context, q LyricsQuery) (*model.Lyrics, error) {
	reqBody, err := json.Marshal(aggregatorRequest{
		Title:    q.Title,
		Artist:   q.Artist,
		Album:    q.Album,
		Duration: q.Duration,
		Source:   c.source,
	})
	if err != nil {
		return nil, err
	}

	var lastErr error
	for _, mirror := range c.mirrors {
		result, err := c.post(ctx, mirror, reqBody)
		if err != nil {
			log.Printf("[Lyrics %s] mirror %s failed: %v", c.name, mirror, err)
			lastErr = err
			continue
		}
		if result.Error != "" || result.Lyrics == nil || *result.Lyrics == "" {
			return nil, nil
		}
		return &model.Lyrics{Text: *result.Lyrics, Synced: result.Synced, Source: result.Source}, nil
	}
	return nil, lastErr
}

func (c *AggregatorClient) post(ctx context.Context, mirror string, body []byte) (*aggregatorResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, mirror+"/v1/lyrics", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("aggregator error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var result aggregatorResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal aggregator response: %w", err)
	}
	return &result, nil
}
