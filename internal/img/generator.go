package img

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"

	"github.com/tendant/synothumb/internal/config"
	"github.com/tendant/synothumb/internal/converters"
	"github.com/tendant/synothumb/internal/process"
	"github.com/tendant/synothumb/internal/sidecar"
)

// Generator turns one source file into its sidecar artifacts.
// Implementations hold no per-file state and are safe for concurrent use.
type Generator interface {
	// Process never returns an error; failures are reported in the Result.
	Process(ctx context.Context, srcPath string) process.Result

	// Layout returns where the artifacts for srcPath live
	Layout(srcPath string) sidecar.Layout

	// Name returns the pipeline name for logging
	Name() string
}

// GetGenerator returns the pipeline that handles path, chosen by its
// lower-cased extension.
func GetGenerator(cfg config.Config, runner converters.Runner, logger *slog.Logger, path string) (Generator, error) {
	ext := strings.ToLower(filepath.Ext(path))

	switch {
	case cfg.ImageExtensions[ext]:
		return NewImageGenerator(cfg, runner, logger), nil
	case cfg.VideoExtensions[ext]:
		return NewVideoGenerator(cfg, runner, logger), nil
	default:
		return nil, fmt.Errorf("unsupported file type: %q", ext)
	}
}

// ImageGenerator writes the five-tier cascade plus the padded preview for
// still images, decoding camera raw files through dcraw first.
type ImageGenerator struct {
	cfg    config.Config
	raw    *converters.DcrawConverter
	logger *slog.Logger
}

func NewImageGenerator(cfg config.Config, runner converters.Runner, logger *slog.Logger) *ImageGenerator {
	if logger == nil {
		logger = slog.Default()
	}
	return &ImageGenerator{
		cfg:    cfg,
		raw:    converters.NewDcrawConverter(cfg.RawDecoder, runner),
		logger: logger,
	}
}

// Name implements Generator.Name
func (g *ImageGenerator) Name() string {
	return "image"
}

// Layout returns the sidecar layout for an image. The largest tier is the
// completion marker.
func (g *ImageGenerator) Layout(srcPath string) sidecar.Layout {
	return sidecar.Locate(srcPath, g.cfg.SidecarDir, g.cfg.ImageTiers[0].FileName, g.cfg.ImageOutputs())
}

// Process implements Generator.Process for images
func (g *ImageGenerator) Process(ctx context.Context, srcPath string) process.Result {
	start := time.Now()
	res := g.process(ctx, srcPath)
	res.Duration = time.Since(start)
	return res
}

func (g *ImageGenerator) process(ctx context.Context, srcPath string) process.Result {
	layout := g.Layout(srcPath)
	if layout.Done() {
		g.logger.Debug("already converted", "path", srcPath)
		return process.Skipped(g.Name(), srcPath, "thumbnails already exist")
	}

	g.logger.Info("processing image", "path", srcPath)

	if err := layout.Ensure(); err != nil {
		return g.fail(srcPath, "create sidecar", fmt.Errorf("%w: %w", process.ErrIO, err))
	}

	data, err := os.ReadFile(srcPath)
	if err != nil {
		return g.fail(srcPath, "read source", fmt.Errorf("%w: %w", process.ErrIO, err))
	}

	src, err := g.decode(ctx, srcPath, data)
	if err != nil {
		return g.fail(srcPath, "decode", err)
	}

	orientation, err := ReadOrientation(bytes.NewReader(data))
	if err != nil {
		return g.fail(srcPath, "read metadata", err)
	}
	src = Orient(src, orientation)

	quality := imaging.JPEGQuality(g.cfg.JPEGQuality)
	last, _, err := Cascade(src, layout.Dir, g.cfg.ImageTiers, quality)
	if err != nil {
		return g.fail(srcPath, "write tiers", err)
	}

	preview := ComposePreview(last, g.cfg.PreviewTier)
	if err := imaging.Save(preview, layout.Path(g.cfg.PreviewTier.FileName), quality); err != nil {
		return g.fail(srcPath, "write preview", fmt.Errorf("%w: %w", process.ErrIO, err))
	}

	return process.OK(g.Name(), srcPath)
}

func (g *ImageGenerator) decode(ctx context.Context, srcPath string, data []byte) (image.Image, error) {
	if strings.ToLower(filepath.Ext(srcPath)) != g.cfg.RawExtension {
		return decodeImage(data)
	}

	stream, err := g.raw.Decode(ctx, srcPath)
	if err != nil {
		return nil, err
	}
	return decodeRaw(stream)
}

func (g *ImageGenerator) fail(srcPath, step string, err error) process.Result {
	g.logger.Error("image conversion failed", "path", srcPath, "step", step, "err", err)
	return process.Failed(g.Name(), srcPath, fmt.Errorf("%s: %w", step, err))
}
