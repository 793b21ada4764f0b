package audio

import "github.com/tunevault/api/internal/model"

// CoverMode selects how cover art reaches the output container.
type CoverMode int

const (
	// CoverSinglePass attaches the picture stream in the same pass as the
	// audio transcode.
	CoverSinglePass CoverMode = iota

	// CoverTwoPass transcodes audio-only to an intermediate file first, then
	// remuxes intermediate + cover into the final container. Required where
	// single-pass attachment corrupts the stream.
	CoverTwoPass

	// CoverSkip leaves cover art out entirely.
	CoverSkip
)

// containerStrategy describes per-container embedding behavior. Adding a new
// output container is a row here, not new logic.
type containerStrategy struct {
	Cover       CoverMode
	EmbedLyrics bool   // container tolerates literal line breaks in tags
	Encoder     string // ffmpeg encoder name
}

var strategies = map[model.AudioFormat]containerStrategy{
	model.FormatFLAC: {Cover: CoverSinglePass, EmbedLyrics: true, Encoder: "flac"},
	model.FormatMP3:  {Cover: CoverSinglePass, EmbedLyrics: true, Encoder: "libmp3lame"},
	model.FormatM4A:  {Cover: CoverTwoPass, EmbedLyrics: false, Encoder: "aac"},
	model.FormatOGG:  {Cover: CoverTwoPass, EmbedLyrics: false, Encoder: "libvorbis"},
	model.FormatWAV:  {Cover: CoverSkip, EmbedLyrics: false, Encoder: "pcm_s16le"},
}

// SupportsLyricTags reports whether the container carries lyrics in its own
// tags. Callers fall back to a sidecar file for the rest.
func SupportsLyricTags(f model.AudioFormat) bool {
	return strategyFor(f).EmbedLyrics
}

// strategyFor returns the embedding strategy for a format, defaulting to the
// most conservative behavior for unknown containers.
func strategyFor(f model.AudioFormat) containerStrategy {
	if s, ok := strategies[f]; ok {
		return s
	}
	return containerStrategy{Cover: CoverSkip, EmbedLyrics: false, Encoder: "copy"}
}
