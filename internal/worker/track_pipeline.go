package worker

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tunevault/api/internal/audio"
	"github.com/tunevault/api/internal/client"
	"github.com/tunevault/api/internal/model"
	"github.com/tunevault/api/internal/naming"
	"github.com/tunevault/api/internal/service"
)

// trackPipeline processes a single track end to end: resolve the media URL,
// download the raw stream, look up lyrics and produce the tagged output file.
type trackPipeline struct {
	catalog    client.CatalogClient
	downloader client.Downloader
	embedder   *audio.Embedder
	lyrics     service.LyricsResolver
	maxRetries int
	retryBase  time.Duration
}

// process produces the finished file(s) for one track under scratchDir.
// Returned paths are the output audio file plus an optional lyrics sidecar.
func (p *trackPipeline) process(ctx context.Context, job *model.Job, album *model.AlbumInfo, track *model.TrackInfo, coverArt []byte, scratchDir string) (*model.TrackOutput, error) {
	rawPath, err := p.fetchTrack(ctx, job, track, scratchDir)
	if err != nil {
		return nil, err
	}
	defer os.Remove(rawPath)

	var lyrics *model.Lyrics
	if job.LyricsMode != model.LyricsModeOff && p.lyrics != nil {
		lyrics = p.lyrics.Resolve(ctx, lyricsQueryFor(album, track))
	}

	baseName := naming.Render(job.TrackTemplate, naming.TrackData(album, track))
	outPath := filepath.Join(scratchDir, baseName+job.Format.Ext())

	embedReq := &audio.EmbedRequest{
		InputPath:  rawPath,
		OutputPath: outPath,
		Format:     job.Format,
		Bitrate:    job.Bitrate,
		Album:      album,
		Track:      track,
		CoverArt:   coverArt,
	}
	if job.LyricsMode == model.LyricsModeEmbed {
		embedReq.Lyrics = lyrics
	}

	if err := p.embedder.Embed(ctx, embedReq); err != nil {
		// Tagging is best effort: ship the raw stream rather than lose the track
		log.Printf("Embed failed for track %d, keeping raw file: %v", track.ID, err)
		fallback := filepath.Join(scratchDir, baseName+filepath.Ext(rawPath))
		if renameErr := os.Rename(rawPath, fallback); renameErr != nil {
			return nil, fmt.Errorf("embed failed and raw file could not be kept: %w", err)
		}
		outPath = fallback
	}

	output := &model.TrackOutput{TrackID: track.ID, Paths: []string{outPath}}

	// Sidecar mode always writes the file; embed mode falls back to one when
	// the target container has no lyric tag to carry the text
	wantSidecar := job.LyricsMode == model.LyricsModeSidecar ||
		(job.LyricsMode == model.LyricsModeEmbed && !audio.SupportsLyricTags(job.Format))
	if wantSidecar && lyrics != nil && lyrics.Text != "" {
		ext := ".txt"
		if lyrics.Synced {
			ext = ".lrc"
		}
		sidecarPath := filepath.Join(scratchDir, baseName+ext)
		if err := os.WriteFile(sidecarPath, []byte(lyrics.Text), 0o644); err != nil {
			log.Printf("Failed to write lyrics sidecar for track %d: %v", track.ID, err)
		} else {
			output.Paths = append(output.Paths, sidecarPath)
		}
	}

	return output, nil
}

// fetchTrack resolves the signed media URL and downloads the stream as one
// retried unit, since the URL expires quickly. A zero-byte file counts as a
// failed attempt; an unavailable track stops immediately.
func (p *trackPipeline) fetchTrack(ctx context.Context, job *model.Job, track *model.TrackInfo, scratchDir string) (string, error) {
	var rawPath string

	err := withRetry(ctx, p.maxRetries, p.retryBase, func(ctx context.Context) error {
		media, err := p.catalog.ResolveTrackMediaURL(ctx, track.ID, qualityFor(job.Format), job.Region)
		if err != nil {
			return err
		}

		rawPath = filepath.Join(scratchDir, fmt.Sprintf("%d%s", track.ID, extFromMIME(media.MimeType)))
		if err := p.downloader.DownloadFile(ctx, media.URL, rawPath); err != nil {
			os.Remove(rawPath)
			return err
		}

		info, err := os.Stat(rawPath)
		if err != nil {
			return err
		}
		if info.Size() == 0 {
			os.Remove(rawPath)
			return errEmptyDownload
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("track %d (%s): %w", track.ID, track.Title, err)
	}
	return rawPath, nil
}

func lyricsQueryFor(album *model.AlbumInfo, track *model.TrackInfo) client.LyricsQuery {
	artist := track.Performer
	if artist == "" {
		artist = album.Artist
	}
	return client.LyricsQuery{
		Title:    track.Title,
		Artist:   artist,
		Album:    album.Title,
		Duration: track.Duration,
	}
}

// qualityFor maps the target format to the catalog quality tier: lossless
// targets need a lossless source, lossy targets get the best lossy stream.
func qualityFor(f model.AudioFormat) string {
	if f.Lossless() {
		return "lossless"
	}
	return "high"
}

func extFromMIME(mimeType string) string {
	switch strings.ToLower(strings.TrimSpace(strings.Split(mimeType, ";")[0])) {
	case "audio/flac", "audio/x-flac":
		return ".flac"
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/mp4", "audio/x-m4a", "audio/m4a":
		return ".m4a"
	case "audio/ogg", "application/ogg":
		return ".ogg"
	case "audio/wav", "audio/x-wav", "audio/wave":
		return ".wav"
	default:
		return ".bin"
	}
}
