// Package audio turns a raw downloaded stream into a finished, tagged output
// file: transcode or copy-remux, metadata import, cover art attachment and
// lyrics embedding, with per-container strategies.
package audio

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/tunevault/api/internal/client"
	"github.com/tunevault/api/internal/model"
)

// EmbedRequest describes one track's embedding job.
type EmbedRequest struct {
	InputPath  string
	OutputPath string // final path, extension matches Format
	Format     model.AudioFormat
	Bitrate    int // kbps, 0 = encoder default; lossy targets only
	Album      *model.AlbumInfo
	Track      *model.TrackInfo
	CoverArt   []byte        // JPEG bytes, nil to skip
	Lyrics     *model.Lyrics // nil to skip
}

// Embedder orchestrates the codec tool passes for one track.
type Embedder struct {
	transcoder client.Transcoder
}

// NewEmbedder creates an embedder driving the given codec tool.
func NewEmbedder(transcoder client.Transcoder) *Embedder {
	return &Embedder{transcoder: transcoder}
}

// Embed produces the finished output file for one track. The fast copy+tag
// path is taken when source and target codec match and the target is
// lossless-compatible; otherwise the audio stream is re-encoded. Cover art
// follows the container strategy, including the mandatory two-pass split for
// containers where single-pass attachment corrupts the stream.
func (e *Embedder) Embed(ctx context.Context, req *EmbedRequest) error {
	strategy := strategyFor(req.Format)

	sourceFormat := formatFromExt(req.InputPath)
	copyStream := sourceFormat == req.Format && req.Format.Lossless()

	scratch := filepath.Dir(req.OutputPath)
	metaPath := filepath.Join(scratch, fmt.Sprintf(".%d.ffmeta", req.Track.ID))
	if err := writeFFMetadata(metaPath, req.Album, req.Track); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}
	defer os.Remove(metaPath)

	var coverPath string
	if req.CoverArt != nil && strategy.Cover != CoverSkip {
		coverPath = filepath.Join(scratch, fmt.Sprintf(".%d.cover.jpg", req.Track.ID))
		if err := os.WriteFile(coverPath, req.CoverArt, 0644); err != nil {
			return fmt.Errorf("failed to write cover art: %w", err)
		}
		defer os.Remove(coverPath)
	}

	switch {
	case coverPath != "" && strategy.Cover == CoverTwoPass:
		if err := e.twoPass(ctx, req, strategy, copyStream, metaPath, coverPath); err != nil {
			return err
		}
	default:
		if err := e.singlePass(ctx, req, strategy, copyStream, metaPath, coverPath); err != nil {
			return err
		}
	}

	return e.embedLyrics(req, strategy)
}

// singlePass runs one invocation: audio (+ optional cover) + metadata → output.
func (e *Embedder) singlePass(ctx context.Context, req *EmbedRequest, strategy containerStrategy, copyStream bool, metaPath, coverPath string) error {
	args := []string{"-i", req.InputPath, "-i", metaPath}
	if coverPath != "" {
		args = append(args, "-i", coverPath)
	}
	args = append(args, "-map", "0:a", "-map_metadata", "1")
	if coverPath != "" {
		args = append(args, "-map", "2:v", "-c:v", "copy", "-disposition:v:0", "attached_pic")
		if req.Format == model.FormatMP3 {
			args = append(args, "-id3v2_version", "3")
		}
	}
	args = append(args, codecArgs(req, strategy, copyStream)...)
	args = append(args, req.OutputPath)

	return e.transcoder.Run(ctx, args...)
}

// twoPass transcodes audio-only to an intermediate file, then remuxes
// intermediate + cover art into the final container. Attaching the picture in
// the transcode pass corrupts output on these containers.
func (e *Embedder) twoPass(ctx context.Context, req *EmbedRequest, strategy containerStrategy, copyStream bool, metaPath, coverPath string) error {
	intermediate := req.OutputPath + ".pass1" + req.Format.Ext()
	defer os.Remove(intermediate)

	args := []string{"-i", req.InputPath, "-i", metaPath, "-map", "0:a", "-map_metadata", "1"}
	args = append(args, codecArgs(req, strategy, copyStream)...)
	args = append(args, intermediate)
	if err := e.transcoder.Run(ctx, args...); err != nil {
		return err
	}

	remux := []string{
		"-i", intermediate, "-i", coverPath,
		"-map", "0", "-map", "1",
		"-c", "copy", "-disposition:v:0", "attached_pic",
		req.OutputPath,
	}
	return e.transcoder.Run(ctx, remux...)
}

// embedLyrics writes lyrics through a tag writer that preserves literal line
// breaks. Containers whose tags this corrupts are skipped silently; the
// pipeline falls back to a sidecar file for those.
func (e *Embedder) embedLyrics(req *EmbedRequest, strategy containerStrategy) error {
	if req.Lyrics == nil || req.Lyrics.Text == "" || !strategy.EmbedLyrics {
		return nil
	}

	switch req.Format {
	case model.FormatMP3:
		if err := embedMP3Lyrics(req.OutputPath, req.Lyrics); err != nil {
			log.Printf("[Embedder] lyrics tag failed for %s: %v", filepath.Base(req.OutputPath), err)
		}
	case model.FormatFLAC:
		// FLAC vorbis comments tolerate line breaks; written by a dedicated
		// remux so the audio stream is untouched.
		if err := e.flacLyricsPass(req); err != nil {
			log.Printf("[Embedder] lyrics tag failed for %s: %v", filepath.Base(req.OutputPath), err)
		}
	}
	return nil
}

func (e *Embedder) flacLyricsPass(req *EmbedRequest) error {
	tagged := req.OutputPath + ".lyr" + req.Format.Ext()
	args := []string{
		"-i", req.OutputPath,
		"-map", "0", "-c", "copy",
		"-metadata", "LYRICS=" + req.Lyrics.Text,
		tagged,
	}
	if err := e.transcoder.Run(context.Background(), args...); err != nil {
		os.Remove(tagged)
		return err
	}
	return os.Rename(tagged, req.OutputPath)
}

// codecArgs returns the encoder arguments for the audio stream.
func codecArgs(req *EmbedRequest, strategy containerStrategy, copyStream bool) []string {
	if copyStream {
		return []string{"-c:a", "copy"}
	}
	args := []string{"-c:a", strategy.Encoder}
	if req.Bitrate > 0 && !req.Format.Lossless() {
		args = append(args, "-b:a", fmt.Sprintf("%dk", req.Bitrate))
	}
	return args
}

// formatFromExt infers the source container from the file extension.
func formatFromExt(path string) model.AudioFormat {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	switch ext {
	case "mp4", "aac":
		return model.FormatM4A
	case "oga", "opus":
		return model.FormatOGG
	default:
		return model.AudioFormat(ext)
	}
}
