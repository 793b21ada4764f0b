package model

// Job types
type JobType string

const (
	JobTypeAlbum JobType = "album"
	JobTypeTrack JobType = "track"
)

// Job status
type JobStatus string

const (
	JobStatusPending     JobStatus = "pending"
	JobStatusProcessing  JobStatus = "processing"
	JobStatusDownloading JobStatus = "downloading"
	JobStatusCompleted   JobStatus = "completed"
	JobStatusFailed      JobStatus = "failed"
	JobStatusCancelled   JobStatus = "cancelled"
)

// Terminal reports whether a job in this status will never change again.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// Catalog providers
type CatalogSource string

const (
	SourcePrimary   CatalogSource = "primary"
	SourceSecondary CatalogSource = "secondary"
)

// Target audio formats
type AudioFormat string

const (
	FormatFLAC AudioFormat = "flac"
	FormatMP3  AudioFormat = "mp3"
	FormatM4A  AudioFormat = "m4a"
	FormatOGG  AudioFormat = "ogg"
	FormatWAV  AudioFormat = "wav"
)

var ValidFormats = []AudioFormat{FormatFLAC, FormatMP3, FormatM4A, FormatOGG, FormatWAV}

// Lossless reports whether the format stores audio without lossy encoding.
func (f AudioFormat) Lossless() bool {
	return f == FormatFLAC || f == FormatWAV
}

// Ext returns the file extension for the format, including the dot.
func (f AudioFormat) Ext() string {
	return "." + string(f)
}

// MIMEType returns the content type used when uploading files of this format.
func (f AudioFormat) MIMEType() string {
	switch f {
	case FormatFLAC:
		return "audio/flac"
	case FormatMP3:
		return "audio/mpeg"
	case FormatM4A:
		return "audio/mp4"
	case FormatOGG:
		return "audio/ogg"
	case FormatWAV:
		return "audio/wav"
	default:
		return "application/octet-stream"
	}
}

// Lyrics handling modes
type LyricsMode string

const (
	LyricsModeEmbed   LyricsMode = "embed"
	LyricsModeSidecar LyricsMode = "sidecar"
	LyricsModeOff     LyricsMode = "off"
)
