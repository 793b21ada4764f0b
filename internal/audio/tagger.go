package audio

import (
	"github.com/bogem/id3v2"
	"github.com/tunevault/api/internal/model"
)

// embedMP3Lyrics writes a USLT frame to an MP3 file. The frame stores the
// lyrics text verbatim, line breaks included, which the ffmetadata path
// cannot do.
func embedMP3Lyrics(path string, lyrics *model.Lyrics) error {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return err
	}
	defer tag.Close()

	tag.AddUnsynchronisedLyricsFrame(id3v2.UnsynchronisedLyricsFrame{
		Encoding:          id3v2.EncodingUTF8,
		Language:          "eng",
		ContentDescriptor: "",
		Lyrics:            lyrics.Text,
	})

	return tag.Save()
}
