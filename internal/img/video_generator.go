package img

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"github.com/tendant/synothumb/internal/config"
	"github.com/tendant/synothumb/internal/converters"
	"github.com/tendant/synothumb/internal/process"
	"github.com/tendant/synothumb/internal/sidecar"
)

// VideoGenerator writes the flv preview and the poster tiers for a video.
// The flv container is the completion marker.
type VideoGenerator struct {
	cfg         config.Config
	transcoders []converters.Transcoder
	logger      *slog.Logger
}

// NewVideoGenerator creates a video pipeline that tries the configured
// transcoders in order.
func NewVideoGenerator(cfg config.Config, runner converters.Runner, logger *slog.Logger) *VideoGenerator {
	if logger == nil {
		logger = slog.Default()
	}
	return &VideoGenerator{
		cfg:         cfg,
		transcoders: converters.DefaultTranscoders(runner, cfg.Transcoders),
		logger:      logger,
	}
}

// Name implements Generator.Name
func (g *VideoGenerator) Name() string {
	return "video"
}

func (g *VideoGenerator) Layout(srcPath string) sidecar.Layout {
	return sidecar.Locate(srcPath, g.cfg.SidecarDir, g.cfg.FilmName, g.cfg.VideoOutputs())
}

// Process implements Generator.Process for videos
func (g *VideoGenerator) Process(ctx context.Context, srcPath string) process.Result {
	start := time.Now()
	res := g.process(ctx, srcPath)
	res.Duration = time.Since(start)
	return res
}

func (g *VideoGenerator) process(ctx context.Context, srcPath string) process.Result {
	layout := g.Layout(srcPath)
	if layout.Done() {
		g.logger.Debug("already converted", "path", srcPath)
		return process.Skipped(g.Name(), srcPath, "preview already exists")
	}

	g.logger.Info("processing video", "path", srcPath)

	if err := layout.Ensure(); err != nil {
		return g.fail(srcPath, "create sidecar", fmt.Errorf("%w: %w", process.ErrIO, err))
	}

	tc, err := converters.SelectTranscoder(g.transcoders)
	if err != nil {
		g.logger.Warn("preview conversion not done", "path", srcPath, "transcoders", g.cfg.Transcoders)
		return process.Failed(g.Name(), srcPath, fmt.Errorf("select transcoder: %w", err))
	}

	if err := tc.Transcode(ctx, srcPath, layout.Marker); err != nil {
		// A partial container would make the next run skip this file.
		if rmErr := os.Remove(layout.Marker); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			g.logger.Warn("remove partial preview", "path", layout.Marker, "err", rmErr)
		}
		return g.fail(srcPath, "transcode", err)
	}

	// Probed again: the tool may have gone away while transcoding.
	tc, err = converters.SelectTranscoder(g.transcoders)
	if err != nil {
		return g.fail(srcPath, "select transcoder", err)
	}

	framePath := g.scratchPath(srcPath)
	defer os.Remove(framePath)

	if err := tc.ExtractFrame(ctx, srcPath, framePath, g.cfg.FrameOffset); err != nil {
		return g.fail(srcPath, "extract frame", err)
	}

	frame, err := imaging.Open(framePath)
	if err != nil {
		return g.fail(srcPath, "open frame", fmt.Errorf("%w: %w", process.ErrDecode, err))
	}

	if _, _, err := Cascade(frame, layout.Dir, g.cfg.PosterTiers); err != nil {
		return g.fail(srcPath, "write posters", err)
	}

	return process.OK(g.Name(), srcPath)
}

// scratchPath is unique per call so concurrent workers never share a frame.
func (g *VideoGenerator) scratchPath(srcPath string) string {
	base := filepath.Base(srcPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(g.cfg.ScratchDir, uuid.NewString()+"-"+stem+".jpg")
}

func (g *VideoGenerator) fail(srcPath, step string, err error) process.Result {
	g.logger.Error("video conversion failed", "path", srcPath, "step", step, "err", err)
	return process.Failed(g.Name(), srcPath, fmt.Errorf("%s: %w", step, err))
}
