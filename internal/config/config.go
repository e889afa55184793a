// internal/config/config.go
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Tier is one named output size. Width and Height are the bounding box the
// image is shrunk into; FileName is the fixed name inside the sidecar dir.
type Tier struct {
	Name     string
	Width    int
	Height   int
	FileName string
}

const (
	SidecarDirName = "@eaDir"
	FilmName       = "SYNOPHOTO:FILM.flv"
	RawExtension   = ".cr2"
)

var (
	TierXL      = Tier{Name: "XL", Width: 1280, Height: 1280, FileName: "SYNOPHOTO_THUMB_XL.jpg"}
	TierL       = Tier{Name: "L", Width: 800, Height: 800, FileName: "SYNOPHOTO_THUMB_L.jpg"}
	TierB       = Tier{Name: "B", Width: 640, Height: 640, FileName: "SYNOPHOTO_THUMB_B.jpg"}
	TierM       = Tier{Name: "M", Width: 320, Height: 320, FileName: "SYNOPHOTO_THUMB_M.jpg"}
	TierS       = Tier{Name: "S", Width: 160, Height: 160, FileName: "SYNOPHOTO_THUMB_S.jpg"}
	TierPreview = Tier{Name: "Preview", Width: 120, Height: 160, FileName: "SYNOPHOTO_THUMB_PREVIEW.jpg"}
)

type Config struct {
	SidecarDir string

	// ImageTiers are applied in order, each one from the previous tier's buffer.
	ImageTiers  []Tier
	PreviewTier Tier
	PosterTiers []Tier
	FilmName    string
	JPEGQuality int

	ImageExtensions map[string]bool
	VideoExtensions map[string]bool
	RawExtension    string
	IgnoredNames    map[string]bool

	RawDecoder    string
	Transcoders   []string
	FrameOffset   time.Duration
	ScratchDir    string
	Workers       int
	LogLevel      slog.Level
	NATSURL       string
	ResultSubject string
	JobSubject    string
	WorkerQueue   string
	MetricsFile   string
}

// Default returns the fixed table used by every run. Only the environment
// driven fields are overridden by Load.
func Default() Config {
	return Config{
		SidecarDir:  SidecarDirName,
		ImageTiers:  []Tier{TierXL, TierL, TierB, TierM, TierS},
		PreviewTier: TierPreview,
		PosterTiers: []Tier{TierXL, TierM},
		FilmName:    FilmName,
		JPEGQuality: 90,
		ImageExtensions: map[string]bool{
			".jpg": true, ".jpeg": true, ".png": true,
			".tif": true, ".bmp": true, RawExtension: true,
		},
		VideoExtensions: map[string]bool{
			".mov": true, ".m4v": true, ".mp4": true, ".avi": true, ".mts": true,
		},
		RawExtension: RawExtension,
		IgnoredNames: map[string]bool{
			".DS_Store": true, ".apdisk": true, "Thumbs.db": true,
		},
		RawDecoder:    "dcraw",
		Transcoders:   []string{"ffmpeg", "avconv"},
		FrameOffset:   3 * time.Second,
		ScratchDir:    os.TempDir(),
		ResultSubject: "synothumb.file.done",
		JobSubject:    "synothumb.jobs",
		WorkerQueue:   "synothumb-workers",
		LogLevel:      slog.LevelInfo,
	}
}

// ImageOutputs lists the file names an image sidecar ends up holding.
func (c Config) ImageOutputs() []string {
	names := make([]string, 0, len(c.ImageTiers)+1)
	for _, t := range c.ImageTiers {
		names = append(names, t.FileName)
	}
	return append(names, c.PreviewTier.FileName)
}

// VideoOutputs lists the file names a video sidecar ends up holding.
func (c Config) VideoOutputs() []string {
	names := []string{c.FilmName}
	for _, t := range c.PosterTiers {
		names = append(names, t.FileName)
	}
	return names
}

func Load() (Config, error) {
	cfg := Default()

	if v := getenv("SYNOTHUMB_WORKERS", ""); v != "" {
		n, err := parsePositiveInt(v, "SYNOTHUMB_WORKERS")
		if err != nil {
			return Config{}, err
		}
		cfg.Workers = n
	}

	cfg.ScratchDir = getenv("SYNOTHUMB_SCRATCH_DIR", cfg.ScratchDir)
	cfg.NATSURL = getenv("NATS_URL", "")
	cfg.ResultSubject = getenv("SYNOTHUMB_SUBJECT", cfg.ResultSubject)
	cfg.JobSubject = getenv("SYNOTHUMB_JOB_SUBJECT", cfg.JobSubject)
	cfg.WorkerQueue = getenv("SYNOTHUMB_QUEUE", cfg.WorkerQueue)
	cfg.MetricsFile = getenv("METRICS_FILE", "")

	level, err := parseLevel(getenv("LOG_LEVEL", "info"))
	if err != nil {
		return Config{}, err
	}
	cfg.LogLevel = level

	return cfg, nil
}

func parseLevel(value string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q", value)
	}
}

func parsePositiveInt(value string, name string) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("%s must be greater than zero (got %d)", name, v)
	}
	return v, nil
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}
