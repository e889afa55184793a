package img

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"

	"github.com/disintegration/imaging"
	"golang.org/x/image/tiff"

	"github.com/tendant/synothumb/internal/process"
)

// Bytes of filler per 8x8 block tried when finishing a cut-off scan. Zero
// bits always decode as the shortest Huffman code, so 32 bytes covers the
// standard tables and 256 covers any table (64 symbols of at most 16 code
// bits plus 16 value bits).
var truncationFill = []int64{32, 256}

var eoi = []byte{0xFF, 0xD9}

// decodeImage decodes data without applying any orientation. A JPEG whose
// entropy-coded data was cut off is finished with zero filler so the part
// that made it to disk is kept and the rest is filled in. Anything else
// that fails to decode is an error.
func decodeImage(data []byte) (image.Image, error) {
	src, err := imaging.Decode(bytes.NewReader(data))
	if err == nil {
		return src, nil
	}

	if isTruncatedJPEG(data) {
		if repaired, retryErr := decodeTruncatedJPEG(data); retryErr == nil {
			return repaired, nil
		}
	}

	return nil, fmt.Errorf("%w: %w", process.ErrDecode, err)
}

// decodeRaw decodes the TIFF stream produced by the raw decoder.
func decodeRaw(stream []byte) (image.Image, error) {
	src, err := tiff.Decode(bytes.NewReader(stream))
	if err != nil {
		return nil, fmt.Errorf("%w: raw stream: %w", process.ErrDecode, err)
	}
	return src, nil
}

func isJPEG(data []byte) bool {
	return len(data) > 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF
}

func isTruncatedJPEG(data []byte) bool {
	return isJPEG(data) && !bytes.HasSuffix(data, eoi)
}

// decodeTruncatedJPEG streams data followed by zero filler and an EOI
// marker. The filler is sized from the frame header, so a header that was
// itself cut off cannot be repaired. Streams with restart intervals are
// rejected by the decoder because the filler carries no RST markers.
func decodeTruncatedJPEG(data []byte) (image.Image, error) {
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	components := int64(4)
	switch cfg.ColorModel {
	case color.GrayModel:
		components = 1
	case color.YCbCrModel:
		components = 3
	}
	// Upper bound on blocks per scan for any sampling factors up to 4x4.
	blocks := (int64(cfg.Width)/8 + 4) * (int64(cfg.Height)/8 + 4) * components

	for _, perBlock := range truncationFill {
		r := io.MultiReader(
			bytes.NewReader(data),
			io.LimitReader(zeroReader{}, blocks*perBlock),
			bytes.NewReader(eoi),
		)
		var src image.Image
		if src, err = imaging.Decode(r); err == nil {
			return src, nil
		}
	}
	return nil, err
}

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}
