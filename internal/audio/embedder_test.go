package audio

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tunevault/api/internal/model"
)

// fakeTranscoder records invocations and creates the output file (last arg)
// so follow-up passes find it on disk.
type fakeTranscoder struct {
	calls [][]string
	err   error
}

func (f *fakeTranscoder) Run(ctx context.Context, args ...string) error {
	f.calls = append(f.calls, args)
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(args[len(args)-1], []byte("audio"), 0o644)
}

func hasSubsequence(args []string, want ...string) bool {
	for i := 0; i+len(want) <= len(args); i++ {
		match := true
		for j := range want {
			if args[i+j] != want[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func testAlbum() *model.AlbumInfo {
	return &model.AlbumInfo{
		ID:         "alb-1",
		Title:      "Kind of Blue",
		Artist:     "Miles Davis",
		Genre:      "Jazz",
		TrackTotal: 5,
		DiscTotal:  1,
	}
}

func testTrack() *model.TrackInfo {
	return &model.TrackInfo{ID: 101, Title: "So What", TrackNum: 1, DiscNum: 1}
}

func embedRequest(t *testing.T, format model.AudioFormat, sourceExt string) (*EmbedRequest, string) {
	t.Helper()
	dir := t.TempDir()
	input := filepath.Join(dir, "101"+sourceExt)
	if err := os.WriteFile(input, []byte("raw"), 0o644); err != nil {
		t.Fatal(err)
	}
	return &EmbedRequest{
		InputPath:  input,
		OutputPath: filepath.Join(dir, "01 - So What"+format.Ext()),
		Format:     format,
		Album:      testAlbum(),
		Track:      testTrack(),
	}, dir
}

func TestEmbedCopiesMatchingLosslessStream(t *testing.T) {
	ft := &fakeTranscoder{}
	e := NewEmbedder(ft)

	req, _ := embedRequest(t, model.FormatFLAC, ".flac")
	if err := e.Embed(context.Background(), req); err != nil {
		t.Fatalf("Embed() error: %v", err)
	}

	if len(ft.calls) != 1 {
		t.Fatalf("got %d transcoder calls, want 1", len(ft.calls))
	}
	if !hasSubsequence(ft.calls[0], "-c:a", "copy") {
		t.Errorf("matching flac source should be stream-copied, args: %v", ft.calls[0])
	}
}

func TestEmbedTranscodesAcrossFormats(t *testing.T) {
	ft := &fakeTranscoder{}
	e := NewEmbedder(ft)

	req, _ := embedRequest(t, model.FormatMP3, ".flac")
	req.Bitrate = 320
	if err := e.Embed(context.Background(), req); err != nil {
		t.Fatalf("Embed() error: %v", err)
	}

	args := ft.calls[0]
	if !hasSubsequence(args, "-c:a", "libmp3lame") {
		t.Errorf("mp3 target should use libmp3lame, args: %v", args)
	}
	if !hasSubsequence(args, "-b:a", "320k") {
		t.Errorf("bitrate should be passed through, args: %v", args)
	}
}

func TestEmbedSinglePassCover(t *testing.T) {
	ft := &fakeTranscoder{}
	e := NewEmbedder(ft)

	req, _ := embedRequest(t, model.FormatFLAC, ".flac")
	req.CoverArt = []byte("jpeg")
	if err := e.Embed(context.Background(), req); err != nil {
		t.Fatalf("Embed() error: %v", err)
	}

	if len(ft.calls) != 1 {
		t.Fatalf("flac cover should attach in one pass, got %d calls", len(ft.calls))
	}
	if !hasSubsequence(ft.calls[0], "-disposition:v:0", "attached_pic") {
		t.Errorf("cover stream not marked attached_pic, args: %v", ft.calls[0])
	}
}

func TestEmbedTwoPassCover(t *testing.T) {
	ft := &fakeTranscoder{}
	e := NewEmbedder(ft)

	req, _ := embedRequest(t, model.FormatM4A, ".flac")
	req.CoverArt = []byte("jpeg")
	if err := e.Embed(context.Background(), req); err != nil {
		t.Fatalf("Embed() error: %v", err)
	}

	if len(ft.calls) != 2 {
		t.Fatalf("m4a cover requires two passes, got %d calls", len(ft.calls))
	}
	// Pass 1 is audio-only; the cover may not appear before the remux
	for _, a := range ft.calls[0] {
		if strings.HasSuffix(a, ".cover.jpg") {
			t.Errorf("cover attached during transcode pass, args: %v", ft.calls[0])
		}
	}
	if !hasSubsequence(ft.calls[1], "-c", "copy", "-disposition:v:0", "attached_pic") {
		t.Errorf("remux pass should copy and attach, args: %v", ft.calls[1])
	}
}

func TestEmbedWavSkipsCover(t *testing.T) {
	ft := &fakeTranscoder{}
	e := NewEmbedder(ft)

	req, _ := embedRequest(t, model.FormatWAV, ".flac")
	req.CoverArt = []byte("jpeg")
	if err := e.Embed(context.Background(), req); err != nil {
		t.Fatalf("Embed() error: %v", err)
	}

	for _, call := range ft.calls {
		for _, a := range call {
			if strings.HasSuffix(a, ".cover.jpg") {
				t.Errorf("wav output must not reference cover art, args: %v", call)
			}
		}
	}
}

func TestEmbedFlacLyricsUseSeparatePass(t *testing.T) {
	ft := &fakeTranscoder{}
	e := NewEmbedder(ft)

	req, _ := embedRequest(t, model.FormatFLAC, ".flac")
	req.Lyrics = &model.Lyrics{Text: "line one\nline two"}
	if err := e.Embed(context.Background(), req); err != nil {
		t.Fatalf("Embed() error: %v", err)
	}

	if len(ft.calls) != 2 {
		t.Fatalf("flac lyrics need a dedicated pass, got %d calls", len(ft.calls))
	}
	if !hasSubsequence(ft.calls[1], "-metadata", "LYRICS=line one\nline two") {
		t.Errorf("lyrics metadata missing, args: %v", ft.calls[1])
	}
	if !hasSubsequence(ft.calls[1], "-c", "copy") {
		t.Errorf("lyrics pass must not re-encode, args: %v", ft.calls[1])
	}
}

func TestStrategyForUnknownFormatIsConservative(t *testing.T) {
	s := strategyFor(model.AudioFormat("aiff"))
	if s.Cover != CoverSkip || s.EmbedLyrics {
		t.Errorf("unknown format should skip cover and lyrics, got %+v", s)
	}
}
