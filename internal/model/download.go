package model

import "time"

// DownloadStartRequest is the submission DTO for a new download job
type DownloadStartRequest struct {
	Type            JobType       `json:"type" validate:"required,oneof=album track"`
	AlbumID         string        `json:"albumId" validate:"required,min=1"`
	TrackID         int64         `json:"trackId,omitempty" validate:"omitempty,gt=0"`
	Source          CatalogSource `json:"source" validate:"omitempty,oneof=primary secondary"`
	Region          string        `json:"region" validate:"omitempty,len=2"`
	Format          AudioFormat   `json:"format" validate:"required,oneof=flac mp3 m4a ogg wav"`
	Bitrate         int           `json:"bitrate,omitempty" validate:"omitempty,min=64,max=320"`
	TrackTemplate   string        `json:"trackTemplate,omitempty" validate:"omitempty,max=200"`
	ArchiveTemplate string        `json:"archiveTemplate,omitempty" validate:"omitempty,max=200"`
	LyricsMode      LyricsMode    `json:"lyricsMode,omitempty" validate:"omitempty,oneof=embed sidecar off"`
}

// DownloadStartResponse confirms a queued job
type DownloadStartResponse struct {
	JobID     string    `json:"jobId"`
	Status    JobStatus `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// DownloadStatusResponse reports job lifecycle state
type DownloadStatusResponse struct {
	JobID       string    `json:"jobId"`
	Status      JobStatus `json:"status"`
	Progress    int       `json:"progress"`
	Description string    `json:"description,omitempty"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// DownloadResultResponse carries the final artifact details
type DownloadResultResponse struct {
	JobID       string `json:"jobId"`
	FileName    string `json:"fileName,omitempty"`
	FileSize    int64  `json:"fileSize,omitempty"`
	DownloadURL string `json:"downloadUrl,omitempty"`
}

// DownloadCancelResponse confirms a cancellation request
type DownloadCancelResponse struct {
	Success bool      `json:"success"`
	JobID   string    `json:"jobId"`
	Status  JobStatus `json:"status"`
}
