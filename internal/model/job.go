package model

import "time"

// Job represents one user download request and its lifecycle state.
type Job struct {
	ID   string  `json:"id"`
	Type JobType `json:"type"`

	// Target
	AlbumID string        `json:"albumId"`
	TrackID int64         `json:"trackId,omitempty"` // narrows an album job to one track
	Source  CatalogSource `json:"source"`
	Region  string        `json:"region"`

	// Desired output
	Format          AudioFormat `json:"format"`
	Bitrate         int         `json:"bitrate,omitempty"` // kbps, lossy targets only
	TrackTemplate   string      `json:"trackTemplate,omitempty"`
	ArchiveTemplate string      `json:"archiveTemplate,omitempty"`
	LyricsMode      LyricsMode  `json:"lyricsMode,omitempty"`

	// Lifecycle
	Status      JobStatus `json:"status"`
	Progress    int       `json:"progress"`
	Description string    `json:"description,omitempty"`
	Error       string    `json:"error,omitempty"`

	// Result
	FileName    string `json:"fileName,omitempty"`
	FileSize    int64  `json:"fileSize,omitempty"`
	DownloadURL string `json:"downloadUrl,omitempty"`

	// Ownership; empty UserID marks a guest job, exempt from quota accounting.
	UserID string `json:"userId,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IsGuest reports whether the job has no owning user.
func (j *Job) IsGuest() bool {
	return j.UserID == ""
}

// DownloadJobPayload is the asynq task payload for a download job.
// The job record itself is the source of truth; the payload only points at it.
type DownloadJobPayload struct {
	JobID string `json:"jobId"`
}
