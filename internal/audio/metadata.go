package audio

import (
	"fmt"
	"os"
	"strings"

	"github.com/tunevault/api/internal/model"
)

// ffmetaEscaper escapes the characters reserved by the ffmetadata format.
// Unescaped '=', ';', '#', '\' or newlines corrupt the metadata file.
var ffmetaEscaper = strings.NewReplacer(
	`\`, `\\`,
	`=`, `\=`,
	`;`, `\;`,
	`#`, `\#`,
	"\n", `\`+"\n",
)

func escapeFFMeta(s string) string {
	return ffmetaEscaper.Replace(s)
}

// writeFFMetadata writes an ffmetadata v1 file carrying the full tag set for
// one track so a single transcode pass can import it.
func writeFFMetadata(path string, album *model.AlbumInfo, track *model.TrackInfo) error {
	var b strings.Builder
	b.WriteString(";FFMETADATA1\n")

	write := func(key, value string) {
		if value == "" {
			return
		}
		b.WriteString(key)
		b.WriteString("=")
		b.WriteString(escapeFFMeta(value))
		b.WriteString("\n")
	}

	artist := track.Performer
	if artist == "" {
		artist = album.Artist
	}

	write("title", track.DisplayTitle())
	write("artist", artist)
	write("album_artist", album.Artist)
	write("album", album.Title)
	write("genre", album.Genre)
	write("date", album.ReleaseDate)
	if track.TrackNum > 0 {
		write("track", fmt.Sprintf("%d/%d", track.TrackNum, album.TrackTotal))
	}
	if track.DiscNum > 0 {
		write("disc", fmt.Sprintf("%d/%d", track.DiscNum, album.DiscTotal))
	}
	write("publisher", album.Label)
	write("copyright", album.Copyright)
	write("TSRC", track.ISRC)
	write("barcode", album.UPC)

	return os.WriteFile(path, []byte(b.String()), 0644)
}
