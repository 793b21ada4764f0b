package model

// TrackInfo is one track's catalog metadata. Immutable once fetched for a job run.
type TrackInfo struct {
	ID         int64  `json:"id"`
	Title      string `json:"title"`
	Version    string `json:"version,omitempty"` // e.g. "Remastered 2011"
	TrackNum   int    `json:"trackNumber"`
	DiscNum    int    `json:"discNumber"`
	Duration   int    `json:"duration"` // seconds
	ISRC       string `json:"isrc,omitempty"`
	Streamable bool   `json:"streamable"`
	Performer  string `json:"performer,omitempty"`
}

// DisplayTitle returns the title with the version suffix, when present.
func (t *TrackInfo) DisplayTitle() string {
	if t.Version == "" {
		return t.Title
	}
	return t.Title + " (" + t.Version + ")"
}

// AlbumInfo is album-level catalog metadata. Immutable once fetched.
type AlbumInfo struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Artist      string      `json:"artist"`
	Genre       string      `json:"genre,omitempty"`
	Label       string      `json:"label,omitempty"`
	ReleaseDate string      `json:"releaseDate,omitempty"` // YYYY-MM-DD
	TrackTotal  int         `json:"trackTotal"`
	DiscTotal   int         `json:"discTotal"`
	UPC         string      `json:"upc,omitempty"`
	Copyright   string      `json:"copyright,omitempty"`
	CoverURL    string      `json:"coverUrl,omitempty"`
	CoverURLHi  string      `json:"coverUrlHi,omitempty"`
	Tracks      []TrackInfo `json:"tracks"`
}

// Year returns the four-digit release year, or empty when unknown.
func (a *AlbumInfo) Year() string {
	if len(a.ReleaseDate) >= 4 {
		return a.ReleaseDate[:4]
	}
	return ""
}

// BestCoverURL returns the highest-resolution cover art URL available.
func (a *AlbumInfo) BestCoverURL() string {
	if a.CoverURLHi != "" {
		return a.CoverURLHi
	}
	return a.CoverURL
}

// MediaURL is a short-lived signed URL for one track's audio stream.
type MediaURL struct {
	URL      string `json:"url"`
	MimeType string `json:"mimeType"`
}

// TrackOutput is the result of processing one track: the produced file paths,
// primary audio file first, optional lyrics sidecar after.
type TrackOutput struct {
	TrackID int64
	Paths   []string
}

// Lyrics is the best-effort result of a lyrics lookup.
type Lyrics struct {
	Text   string `json:"lyrics"`
	Synced bool   `json:"synced"`
	Source string `json:"source,omitempty"`
}
