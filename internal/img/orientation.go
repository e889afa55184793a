package img

import (
	"fmt"
	"image"
	"io"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"

	"github.com/tendant/synothumb/internal/process"
)

// ReadOrientation returns the EXIF orientation (tag 274) found in r.
//
// A stream with no EXIF block at all is an error wrapping
// process.ErrMetadata. A block without the orientation tag yields 0.
func ReadOrientation(r io.Reader) (int, error) {
	x, err := exif.Decode(r)
	if err != nil && (x == nil || exif.IsCriticalError(err)) {
		return 0, fmt.Errorf("%w: no exif data: %v", process.ErrMetadata, err)
	}

	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 0, nil
	}
	v, err := tag.Int(0)
	if err != nil {
		return 0, nil
	}
	return v, nil
}

// Orient applies the rotation for orientations 3, 6 and 8. Mirrored
// orientations (2, 4, 5, 7) and unknown values are returned unchanged.
func Orient(src image.Image, orientation int) image.Image {
	switch orientation {
	case 3:
		return imaging.Rotate180(src)
	case 6:
		return imaging.Rotate270(src)
	case 8:
		return imaging.Rotate90(src)
	default:
		return src
	}
}
