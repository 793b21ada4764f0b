package service

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/tunevault/api/internal/client"
	"github.com/tunevault/api/internal/model"
)

// LyricsResolver finds lyrics for a track, or nil when none exist
type LyricsResolver interface {
	Resolve(ctx context.Context, q client.LyricsQuery) *model.Lyrics
}

// LyricsService queries a chain of providers in order and caches results
// per job run. A miss across the whole chain is not an error; tracks
// simply ship without lyrics.
type LyricsService struct {
	providers []client.LyricsProvider
	cache     *lyricsCache
}

func NewLyricsService(providers []client.LyricsProvider, cacheSize int) *LyricsService {
	return &LyricsService{
		providers: providers,
		cache:     newLyricsCache(cacheSize),
	}
}

// Resolve walks the provider chain with a cleaned-up query. Provider
// errors are logged and treated as misses so a flaky source never sinks
// the chain.
func (s *LyricsService) Resolve(ctx context.Context, q client.LyricsQuery) *model.Lyrics {
	q.Title = stripNoise(q.Title)
	q.Artist = stripNoise(q.Artist)
	q.Album = stripNoise(q.Album)

	key := cacheKey(q)
	if lyrics, ok := s.cache.get(key); ok {
		return lyrics
	}

	for _, p := range s.providers {
		if ctx.Err() != nil {
			return nil
		}

		lyrics, err := p.Fetch(ctx, q)
		if err != nil {
			log.Printf("[Lyrics %s] lookup failed for %q by %q: %v", p.Name(), q.Title, q.Artist, err)
			continue
		}
		if lyrics == nil {
			continue
		}

		if lyrics.Synced {
			lyrics.Text = normalizeLRC(lyrics.Text)
			if lyrics.Text == "" {
				continue
			}
		}

		s.cache.put(key, lyrics)
		return lyrics
	}

	// Cache the miss too so repeated tracks on an album don't re-query
	s.cache.put(key, nil)
	return nil
}

var (
	featRe     = regexp.MustCompile(`(?i)\s*[(\[](?:feat|ft|featuring)\.?[^)\]]*[)\]]`)
	bracketRe  = regexp.MustCompile(`\s*\[[^\]]*\]`)
	remasterRe = regexp.MustCompile(`(?i)\s*[-(]\s*(?:\d{4}\s+)?(?:remaster(?:ed)?|deluxe|expanded|anniversary|bonus)[^)]*\)?\s*$`)
)

// stripNoise removes featuring credits, bracketed annotations and
// remaster suffixes that hurt provider matching
func stripNoise(s string) string {
	s = featRe.ReplaceAllString(s, "")
	s = bracketRe.ReplaceAllString(s, "")
	s = remasterRe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

var lrcLineRe = regexp.MustCompile(`^\[(\d+):(\d+(?:\.\d+)?)\]\s?(.*)$`)

// normalizeLRC rewrites timed lines to a uniform [mm:ss.cc] form and
// drops metadata tags and untimed lines. Returns "" when no timed line
// survives, so callers can fall back to treating the text as plain.
func normalizeLRC(text string) string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		m := lrcLineRe.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		min, _ := strconv.Atoi(m[1])
		sec, _ := strconv.ParseFloat(m[2], 64)
		min += int(sec) / 60
		sec = sec - float64(int(sec)/60*60)
		out = append(out, fmt.Sprintf("[%02d:%05.2f]%s", min, sec, m[3]))
	}
	return strings.Join(out, "\n")
}

func cacheKey(q client.LyricsQuery) string {
	return strings.ToLower(q.Artist) + "\x00" + strings.ToLower(q.Title) + "\x00" + strings.ToLower(q.Album)
}

// lyricsCache is a bounded FIFO cache. Misses are cached as nil entries.
type lyricsCache struct {
	mu      sync.Mutex
	max     int
	entries map[string]*model.Lyrics
	order   []string
}

func newLyricsCache(max int) *lyricsCache {
	if max <= 0 {
		max = 128
	}
	return &lyricsCache{
		max:     max,
		entries: make(map[string]*model.Lyrics),
	}
}

func (c *lyricsCache) get(key string) (*model.Lyrics, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	lyrics, ok := c.entries[key]
	return lyrics, ok
}

func (c *lyricsCache) put(key string, lyrics *model.Lyrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; ok {
		c.entries[key] = lyrics
		return
	}
	if len(c.order) >= c.max {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[key] = lyrics
	c.order = append(c.order, key)
}
