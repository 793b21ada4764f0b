package service

import (
	"context"
	"errors"
	"testing"

	"github.com/tunevault/api/internal/client"
	"github.com/tunevault/api/internal/model"
)

type fakeProvider struct {
	name   string
	lyrics *model.Lyrics
	err    error
	calls  int
	gotQ   client.LyricsQuery
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Fetch(ctx context.Context, q client.LyricsQuery) (*model.Lyrics, error) {
	f.calls++
	f.gotQ = q
	return f.lyrics, f.err
}

func TestResolveWalksChainInOrder(t *testing.T) {
	miss := &fakeProvider{name: "first"}
	hit := &fakeProvider{name: "second", lyrics: &model.Lyrics{Text: "some words", Source: "second"}}
	never := &fakeProvider{name: "third"}

	svc := NewLyricsService([]client.LyricsProvider{miss, hit, never}, 8)

	got := svc.Resolve(context.Background(), client.LyricsQuery{Title: "Song", Artist: "Band"})
	if got == nil || got.Source != "second" {
		t.Fatalf("Resolve() = %+v, want hit from second provider", got)
	}
	if miss.calls != 1 || hit.calls != 1 {
		t.Errorf("calls = %d/%d, want 1/1", miss.calls, hit.calls)
	}
	if never.calls != 0 {
		t.Errorf("third provider called %d times after a hit", never.calls)
	}
}

func TestResolveTreatsProviderErrorAsMiss(t *testing.T) {
	flaky := &fakeProvider{name: "flaky", err: errors.New("upstream 500")}
	hit := &fakeProvider{name: "backup", lyrics: &model.Lyrics{Text: "words"}}

	svc := NewLyricsService([]client.LyricsProvider{flaky, hit}, 8)

	if got := svc.Resolve(context.Background(), client.LyricsQuery{Title: "Song", Artist: "Band"}); got == nil {
		t.Fatal("Resolve() = nil, want fallback past failing provider")
	}
}

func TestResolveReturnsNilOnFullMiss(t *testing.T) {
	svc := NewLyricsService([]client.LyricsProvider{&fakeProvider{name: "only"}}, 8)

	if got := svc.Resolve(context.Background(), client.LyricsQuery{Title: "Obscure", Artist: "Nobody"}); got != nil {
		t.Errorf("Resolve() = %+v, want nil for full miss", got)
	}
}

func TestResolveCachesHitsAndMisses(t *testing.T) {
	hit := &fakeProvider{name: "p", lyrics: &model.Lyrics{Text: "words"}}
	svc := NewLyricsService([]client.LyricsProvider{hit}, 8)

	q := client.LyricsQuery{Title: "Song", Artist: "Band"}
	svc.Resolve(context.Background(), q)
	svc.Resolve(context.Background(), q)
	if hit.calls != 1 {
		t.Errorf("provider called %d times, want 1 (cached)", hit.calls)
	}

	miss := &fakeProvider{name: "m"}
	svc = NewLyricsService([]client.LyricsProvider{miss}, 8)
	q = client.LyricsQuery{Title: "Gone", Artist: "Band"}
	svc.Resolve(context.Background(), q)
	svc.Resolve(context.Background(), q)
	if miss.calls != 1 {
		t.Errorf("provider called %d times for repeated miss, want 1", miss.calls)
	}
}

func TestResolveNormalizesQuery(t *testing.T) {
	p := &fakeProvider{name: "p"}
	svc := NewLyricsService([]client.LyricsProvider{p}, 8)

	svc.Resolve(context.Background(), client.LyricsQuery{
		Title:  "Song Title (feat. Someone) [Live]",
		Artist: "Band",
		Album:  "Album - 2011 Remastered Edition",
	})

	if p.gotQ.Title != "Song Title" {
		t.Errorf("title normalized to %q", p.gotQ.Title)
	}
	if p.gotQ.Album != "Album" {
		t.Errorf("album normalized to %q", p.gotQ.Album)
	}
}

func TestResolveNormalizesSyncedLyrics(t *testing.T) {
	p := &fakeProvider{name: "p", lyrics: &model.Lyrics{
		Text:   "[ar:Band]\n[00:12.34] first line\n[01:02.5]second line\nno timestamp here",
		Synced: true,
	}}
	svc := NewLyricsService([]client.LyricsProvider{p}, 8)

	got := svc.Resolve(context.Background(), client.LyricsQuery{Title: "Song", Artist: "Band"})
	if got == nil {
		t.Fatal("Resolve() = nil")
	}
	want := "[00:12.34]first line\n[01:02.50]second line"
	if got.Text != want {
		t.Errorf("normalized lyrics = %q, want %q", got.Text, want)
	}
}

func TestStripNoise(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Plain Title", "Plain Title"},
		{"Title (feat. Guest)", "Title"},
		{"Title (ft. Guest)", "Title"},
		{"Title [Explicit]", "Title"},
		{"Title - 2009 Remaster", "Title"},
		{"Title (Remastered 2015)", "Title"},
		{"Album (Deluxe Edition)", "Album"},
	}

	for _, tt := range tests {
		if got := stripNoise(tt.in); got != tt.want {
			t.Errorf("stripNoise(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLyricsCacheEvictsOldest(t *testing.T) {
	c := newLyricsCache(2)
	c.put("a", &model.Lyrics{Text: "a"})
	c.put("b", &model.Lyrics{Text: "b"})
	c.put("c", &model.Lyrics{Text: "c"})

	if _, ok := c.get("a"); ok {
		t.Error("oldest entry should have been evicted")
	}
	if _, ok := c.get("b"); !ok {
		t.Error("entry b should still be cached")
	}
	if _, ok := c.get("c"); !ok {
		t.Error("entry c should still be cached")
	}
}
