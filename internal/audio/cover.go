package audio

import (
	"bytes"
	"image"
	"image/jpeg"
	_ "image/png" // PNG decoder registration

	"golang.org/x/image/draw"
)

// coverMaxDim bounds embedded cover art; larger art bloats every track.
const coverMaxDim = 1200

// PrepareCover normalizes downloaded cover art for embedding: decode, scale
// down to fit coverMaxDim preserving aspect ratio, re-encode as JPEG.
func PrepareCover(data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	if width > coverMaxDim || height > coverMaxDim {
		ratio := float64(width) / float64(height)
		if ratio > 1 {
			width = coverMaxDim
			height = int(float64(coverMaxDim) / ratio)
		} else {
			height = coverMaxDim
			width = int(float64(coverMaxDim) * ratio)
		}
		dst := image.NewRGBA(image.Rect(0, 0, width, height))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
		img = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
