// internal/img/thumb.go
package img

import (
	"fmt"
	"image"
	"image/color"
	"path/filepath"

	"github.com/disintegration/imaging"

	"github.com/tendant/synothumb/internal/config"
	"github.com/tendant/synothumb/internal/process"
)

type ThumbnailOutput struct {
	Name   string
	Path   string
	Width  int
	Height int
}

// Cascade shrinks src into each tier in order and writes every step into
// dir. Each tier is derived from the previous tier's buffer, not from src.
// Images already inside a tier's box are not upscaled. The last buffer is
// returned so callers can keep shrinking it.
func Cascade(src image.Image, dir string, tiers []config.Tier, opts ...imaging.EncodeOption) (image.Image, []ThumbnailOutput, error) {
	current := src
	outputs := make([]ThumbnailOutput, 0, len(tiers))

	for _, tier := range tiers {
		current = imaging.Fit(current, tier.Width, tier.Height, imaging.Lanczos)

		dstPath := filepath.Join(dir, tier.FileName)
		if err := imaging.Save(current, dstPath, opts...); err != nil {
			return nil, outputs, fmt.Errorf("save %s: %w: %w", tier.Name, process.ErrIO, err)
		}

		b := current.Bounds()
		outputs = append(outputs, ThumbnailOutput{
			Name:   tier.Name,
			Path:   dstPath,
			Width:  b.Dx(),
			Height: b.Dy(),
		})
	}

	return current, outputs, nil
}

// ComposePreview fits src into the tier box and centers it on a black
// canvas of exactly the tier's size.
func ComposePreview(src image.Image, tier config.Tier) *image.NRGBA {
	fitted := imaging.Fit(src, tier.Width, tier.Height, imaging.Lanczos)
	canvas := imaging.New(tier.Width, tier.Height, color.Black)
	return imaging.Paste(canvas, fitted, PreviewOffset(fitted.Bounds().Size(), tier))
}

// PreviewOffset is the top-left placement of an image of the given size on
// the tier canvas. It never goes negative, so oversized images are anchored
// at the origin rather than cropped from the left or top.
func PreviewOffset(size image.Point, tier config.Tier) image.Point {
	return image.Pt(max((tier.Width-size.X)/2, 0), max((tier.Height-size.Y)/2, 0))
}
