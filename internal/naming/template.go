// Package naming renders user-configurable file name templates and makes the
// results safe to use as file and folder names.
package naming

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tunevault/api/internal/model"
)

var (
	placeholderRe = regexp.MustCompile(`\{[a-zA-Z]+\}`)
	invalidChars  = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
)

// TemplateData holds the values substituted into a naming template.
type TemplateData struct {
	Artist  string
	Name    string
	Album   string
	Year    string
	Track   int
	Disc    int
	Genre   string
	Version string
}

// TrackData builds template data for one track of an album.
func TrackData(album *model.AlbumInfo, track *model.TrackInfo) TemplateData {
	artist := track.Performer
	if artist == "" {
		artist = album.Artist
	}
	return TemplateData{
		Artist:  artist,
		Name:    track.DisplayTitle(),
		Album:   album.Title,
		Year:    album.Year(),
		Track:   track.TrackNum,
		Disc:    track.DiscNum,
		Genre:   album.Genre,
		Version: track.Version,
	}
}

// AlbumData builds template data from album-level fields only.
func AlbumData(album *model.AlbumInfo) TemplateData {
	return TemplateData{
		Artist: album.Artist,
		Name:   album.Title,
		Album:  album.Title,
		Year:   album.Year(),
		Genre:  album.Genre,
	}
}

// Render substitutes placeholders in tmpl and sanitizes the result for use as
// a file name. Placeholders are case-insensitive; unrecognized ones are left
// verbatim. Track and disc numbers are zero-padded to two digits.
func Render(tmpl string, data TemplateData) string {
	out := placeholderRe.ReplaceAllStringFunc(tmpl, func(ph string) string {
		key := strings.ToLower(ph[1 : len(ph)-1])
		switch key {
		case "artist", "artists":
			return data.Artist
		case "name":
			return data.Name
		case "album":
			return data.Album
		case "year":
			return data.Year
		case "track":
			return fmt.Sprintf("%02d", data.Track)
		case "disc":
			return fmt.Sprintf("%02d", data.Disc)
		case "genre":
			return data.Genre
		case "version":
			return data.Version
		default:
			return ph
		}
	})
	return Sanitize(out)
}

// Sanitize replaces characters that are invalid in file names with underscores
// and trims trailing dots and whitespace.
func Sanitize(name string) string {
	name = invalidChars.ReplaceAllString(name, "_")
	return strings.TrimRight(name, ". \t")
}
