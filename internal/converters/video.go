package converters

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tendant/synothumb/internal/process"
)

// ErrNoTranscoder is returned when none of the known transcoders is installed.
var ErrNoTranscoder = fmt.Errorf("no ffmpeg-compatible transcoder found: %w", process.ErrCapability)

// Transcoder produces the preview container and the poster frame for a video.
type Transcoder interface {
	Name() string
	Available() bool
	Transcode(ctx context.Context, input, output string) error
	ExtractFrame(ctx context.Context, input, output string, at time.Duration) error
}

// FFmpegConverter drives ffmpeg or any binary with the same argument
// grammar (avconv).
type FFmpegConverter struct {
	binary string
	runner Runner
}

// NewFFmpegConverter creates a converter for the given binary name.
func NewFFmpegConverter(binary string, runner Runner) *FFmpegConverter {
	return &FFmpegConverter{binary: binary, runner: runner}
}

// DefaultTranscoders returns one converter per name, in preference order.
func DefaultTranscoders(runner Runner, names []string) []Transcoder {
	list := make([]Transcoder, 0, len(names))
	for _, n := range names {
		list = append(list, NewFFmpegConverter(n, runner))
	}
	return list
}

// SelectTranscoder returns the first available transcoder. Availability is
// probed on every call.
func SelectTranscoder(candidates []Transcoder) (Transcoder, error) {
	for _, c := range candidates {
		if c.Available() {
			return c, nil
		}
	}
	return nil, ErrNoTranscoder
}

// Name returns the converter name
func (f *FFmpegConverter) Name() string {
	return f.binary
}

// Available probes for the binary.
func (f *FFmpegConverter) Available() bool {
	return f.runner.Probe(f.binary)
}

// Transcode writes a small flv preview: 44.1kHz stereo audio, 12 fps,
// 320x180 frame, fixed quality scale.
func (f *FFmpegConverter) Transcode(ctx context.Context, input, output string) error {
	args := []string{
		"-loglevel", "panic",
		"-i", input,
		"-y",
		"-ar", "44100",
		"-r", "12",
		"-ac", "2",
		"-f", "flv",
		"-qscale", "5",
		"-s", "320x180",
		"-aspect", "320:180",
		output,
	}
	if _, err := f.runner.Run(ctx, f.binary, args...); err != nil {
		return fmt.Errorf("transcode with %s: %w", f.binary, err)
	}
	return nil
}

// ExtractFrame writes exactly one still frame taken at the given offset.
func (f *FFmpegConverter) ExtractFrame(ctx context.Context, input, output string, at time.Duration) error {
	args := []string{
		"-loglevel", "panic",
		"-i", input,
		"-y",
		"-an",
		"-ss", FormatTimestamp(at),
		"-r", "1",
		"-vframes", "1",
		output,
	}
	if _, err := f.runner.Run(ctx, f.binary, args...); err != nil {
		return fmt.Errorf("extract frame with %s: %w", f.binary, err)
	}
	return nil
}

// FormatTimestamp renders d as HH:MM:SS, truncating sub-second precision.
func FormatTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total/60)%60, total%60)
}

// InspectVideo returns metadata about a video file using ffprobe.
func InspectVideo(ctx context.Context, runner Runner, input string) (*FileInfo, error) {
	if !runner.Probe("ffprobe") {
		return nil, errors.New("ffprobe not found in PATH")
	}
	output, err := runner.Run(ctx, "ffprobe",
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,duration",
		"-show_entries", "format=size",
		"-of", "default=noprint_wrappers=1",
		input,
	)
	if err != nil {
		return nil, fmt.Errorf("ffprobe: %w", err)
	}
	return parseProbeOutput(string(output)), nil
}

func parseProbeOutput(output string) *FileInfo {
	info := &FileInfo{}

	for _, line := range strings.Split(output, "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			continue
		}

		switch key {
		case "width":
			if w, err := strconv.Atoi(value); err == nil {
				info.Width = w
			}
		case "height":
			if h, err := strconv.Atoi(value); err == nil {
				info.Height = h
			}
		case "duration":
			if d, err := strconv.ParseFloat(value, 64); err == nil {
				info.Duration = d
			}
		case "size":
			if s, err := strconv.ParseInt(value, 10, 64); err == nil {
				info.Size = s
			}
		}
	}

	return info
}
