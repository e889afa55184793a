// cmd/thumb-one runs the image or video pipeline on a single file, which is
// handy for checking a problem file without walking a whole library.
//
// Usage:
//
//	./thumb-one -input /volume1/photo/2019/IMG_0001.CR2
//	./thumb-one -input clip.mov -probe   # show tools and metadata only
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/tendant/synothumb/internal/config"
	"github.com/tendant/synothumb/internal/converters"
	"github.com/tendant/synothumb/internal/img"
	"github.com/tendant/synothumb/internal/process"
)

func main() {
	input := flag.String("input", "", "Input file path (required)")
	probe := flag.Bool("probe", false, "Show available tools and file metadata only (don't convert)")
	verbose := flag.Bool("v", false, "Verbose output")

	flag.Parse()

	if *input == "" {
		fmt.Println("Error: -input flag is required")
		flag.Usage()
		os.Exit(1)
	}

	if _, err := os.Stat(*input); os.IsNotExist(err) {
		log.Fatalf("Input file not found: %s", *input)
	}

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}
	if *verbose {
		cfg.LogLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))

	runner := converters.ExecRunner{}
	gen, err := img.GetGenerator(cfg, runner, logger, *input)
	if err != nil {
		log.Fatalf("%v\n\nSupported extensions:\n%s", err, formatSupportedTypes(cfg))
	}

	ctx := context.Background()

	if *probe {
		printProbe(ctx, cfg, runner, gen, *input)
		return
	}

	fmt.Printf("Running %s pipeline on %s\n", gen.Name(), *input)
	res := gen.Process(ctx, *input)

	fmt.Println(strings.Repeat("-", 40))
	fmt.Printf("Status: %s\n", res.Status)
	if res.Reason != "" {
		fmt.Printf("Reason: %s\n", res.Reason)
	}
	if t := res.FailureType(); t != "" {
		fmt.Printf("Failure type: %s\n", t)
	}
	fmt.Printf("Time: %v\n", res.Duration.Round(time.Millisecond))

	layout := gen.Layout(*input)
	fmt.Printf("Sidecar: %s\n", layout.Dir)
	for _, p := range layout.Outputs {
		info, err := os.Stat(p)
		if err != nil {
			fmt.Printf("  - %s (missing)\n", p)
			continue
		}
		fmt.Printf("  - %s (%s)\n", p, formatBytes(info.Size()))
	}

	if res.Status == process.StatusFailed {
		os.Exit(1)
	}
}

func printProbe(ctx context.Context, cfg config.Config, runner converters.Runner, gen img.Generator, input string) {
	fmt.Println("External tools:")
	tools := append([]string{cfg.RawDecoder, "ffprobe"}, cfg.Transcoders...)
	for _, name := range tools {
		state := "missing"
		if runner.Probe(name) {
			state = "available"
		}
		fmt.Printf("  %-8s %s\n", name, state)
	}

	fmt.Println("\nFile metadata:")
	fmt.Println(strings.Repeat("-", 40))

	layout := gen.Layout(input)
	fmt.Printf("Pipeline: %s\n", gen.Name())
	fmt.Printf("Sidecar: %s (done: %t)\n", layout.Dir, layout.Done())

	switch gen.Name() {
	case "video":
		if !runner.Probe("ffprobe") {
			return
		}
		info, err := converters.InspectVideo(ctx, runner, input)
		if err != nil {
			fmt.Printf("Probe failed: %v\n", err)
			return
		}
		printFileInfo(info)
	default:
		data, err := os.ReadFile(input)
		if err != nil {
			fmt.Printf("Read failed: %v\n", err)
			return
		}
		orientation, err := img.ReadOrientation(bytes.NewReader(data))
		if err != nil {
			fmt.Printf("Orientation: %v\n", err)
		} else {
			fmt.Printf("Orientation: %d\n", orientation)
		}
		printFileInfo(&converters.FileInfo{Size: int64(len(data))})
	}
}

// printFileInfo prints file metadata in a readable format
func printFileInfo(info *converters.FileInfo) {
	if info.Width > 0 && info.Height > 0 {
		fmt.Printf("Dimensions: %dx%d pixels\n", info.Width, info.Height)
	}

	if info.Duration > 0 {
		fmt.Printf("Duration: %.2f seconds (%s)\n", info.Duration, formatDuration(info.Duration))
	}

	if info.Size > 0 {
		fmt.Printf("File Size: %s (%.2f MB)\n", formatBytes(info.Size), float64(info.Size)/(1024*1024))
	}
}

// formatBytes formats bytes into human-readable format
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// formatDuration formats seconds into MM:SS format
func formatDuration(seconds float64) string {
	mins := int(seconds) / 60
	secs := int(seconds) % 60
	return fmt.Sprintf("%02d:%02d", mins, secs)
}

func formatSupportedTypes(cfg config.Config) string {
	var b strings.Builder
	for _, set := range []map[string]bool{cfg.ImageExtensions, cfg.VideoExtensions} {
		for _, ext := range slices.Sorted(maps.Keys(set)) {
			fmt.Fprintf(&b, "  • %s\n", ext)
		}
	}
	return b.String()
}
