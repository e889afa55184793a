package img

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/color"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"sync"
	"testing"

	"github.com/disintegration/imaging"
	"golang.org/x/image/tiff"

	"github.com/tendant/synothumb/internal/config"
	"github.com/tendant/synothumb/internal/process"
	"github.com/tendant/synothumb/pkg/schema"
)

// toolRunner stands in for dcraw and ffmpeg/avconv. Transcodes and frame
// grabs write their output file the way the real tools do.
type toolRunner struct {
	mu           sync.Mutex
	available    map[string]bool
	calls        []string
	rawOut       []byte
	transcodeErr error
	frameErr     error
	frameW       int
	frameH       int
}

func (r *toolRunner) Probe(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.available[name]
}

func (r *toolRunner) setAvailable(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.available == nil {
		r.available = map[string]bool{}
	}
	r.available[name] = true
}

func (r *toolRunner) invoked() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *toolRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	r.mu.Lock()
	r.calls = append(r.calls, name)
	r.mu.Unlock()

	out := args[len(args)-1]
	switch {
	case name == "dcraw":
		return r.rawOut, nil
	case slices.Contains(args, "flv"):
		if err := os.WriteFile(out, []byte("FLV\x01partial"), 0o644); err != nil {
			return nil, err
		}
		return nil, r.transcodeErr
	case slices.Contains(args, "-vframes"):
		if r.frameErr != nil {
			return nil, r.frameErr
		}
		return nil, imaging.Save(imaging.New(r.frameW, r.frameH, color.NRGBA{G: 180, A: 255}), out)
	}
	return nil, fmt.Errorf("unexpected invocation of %s %v", name, args)
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.ScratchDir = t.TempDir()
	return cfg
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sidecarNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read sidecar: %v", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func TestGetGenerator(t *testing.T) {
	cfg := config.Default()
	tests := []struct {
		path        string
		wantGen     string
		shouldError bool
	}{
		{"a/photo.jpg", "image", false},
		{"a/PHOTO.JPEG", "image", false},
		{"a/scan.png", "image", false},
		{"a/IMG_0001.CR2", "image", false},
		{"a/clip.MOV", "video", false},
		{"a/clip.mts", "video", false},
		{"a/notes.txt", "", true},
		{"a/noext", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			gen, err := GetGenerator(cfg, &toolRunner{}, discardLogger(), tt.path)
			if tt.shouldError {
				if err == nil {
					t.Errorf("expected error for %s, got nil", tt.path)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if gen.Name() != tt.wantGen {
				t.Errorf("GetGenerator(%s) = %s, want %s", tt.path, gen.Name(), tt.wantGen)
			}
		})
	}
}

func TestImageGeneratorRotatesAndWritesAllTiers(t *testing.T) {
	cfg := testConfig(t)
	root := t.TempDir()
	src := filepath.Join(root, "photo.jpg")
	writeJPEG(t, src, splitImage(400, 200), exifTIFF(0x0112, 6))

	gen := NewImageGenerator(cfg, &toolRunner{}, discardLogger())
	res := gen.Process(context.Background(), src)
	if res.Status != process.StatusOK {
		t.Fatalf("expected ok, got %s: %s", res.Status, res.Reason)
	}

	sidecar := filepath.Join(root, "@eaDir", "photo.jpg")
	want := cfg.ImageOutputs()
	sort.Strings(want)
	if got := sidecarNames(t, sidecar); !slices.Equal(got, want) {
		t.Fatalf("sidecar contents = %v, want %v", got, want)
	}

	xl, err := imaging.Open(filepath.Join(sidecar, config.TierXL.FileName))
	if err != nil {
		t.Fatalf("open XL: %v", err)
	}
	if xl.Bounds().Dx() != 200 || xl.Bounds().Dy() != 400 {
		t.Fatalf("XL should be rotated to 200x400, got %v", xl.Bounds())
	}
	if r, _, b, _ := xl.At(100, 20).RGBA(); r <= b {
		t.Fatalf("left half should end up on top, got %v", xl.At(100, 20))
	}

	preview, err := imaging.Open(filepath.Join(sidecar, config.TierPreview.FileName))
	if err != nil {
		t.Fatalf("open preview: %v", err)
	}
	if preview.Bounds().Dx() != 120 || preview.Bounds().Dy() != 160 {
		t.Fatalf("preview must be 120x160, got %v", preview.Bounds())
	}

	if _, err := os.Stat(filepath.Join(root, "@eaDir", "photo.jpg", "@eaDir")); !os.IsNotExist(err) {
		t.Fatalf("no nested sidecar expected, stat err = %v", err)
	}
}

func TestImageGeneratorWithoutOrientationTag(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "plain.jpg")
	writeJPEG(t, src, splitImage(400, 200), exifTIFF(0x0100, 400))

	gen := NewImageGenerator(testConfig(t), &toolRunner{}, discardLogger())
	if res := gen.Process(context.Background(), src); res.Status != process.StatusOK {
		t.Fatalf("expected ok, got %s: %s", res.Status, res.Reason)
	}

	xl, err := imaging.Open(filepath.Join(root, "@eaDir", "plain.jpg", config.TierXL.FileName))
	if err != nil {
		t.Fatalf("open XL: %v", err)
	}
	if xl.Bounds().Dx() != 400 || xl.Bounds().Dy() != 200 {
		t.Fatalf("image should not be rotated, got %v", xl.Bounds())
	}
}

func TestImageGeneratorRequiresExif(t *testing.T) {
	root := t.TempDir()
	jpg := filepath.Join(root, "noexif.jpg")
	writeJPEG(t, jpg, splitImage(40, 20), nil)
	pngPath := filepath.Join(root, "scan.png")
	createTestImage(t, pngPath, 40, 20)

	gen := NewImageGenerator(testConfig(t), &toolRunner{}, discardLogger())
	for _, src := range []string{jpg, pngPath} {
		res := gen.Process(context.Background(), src)
		if res.Status != process.StatusFailed {
			t.Fatalf("%s: expected failure, got %s", src, res.Status)
		}
		if res.FailureType() != schema.FailureTypeMetadata {
			t.Fatalf("%s: expected metadata failure, got %s (%v)", src, res.FailureType(), res.Err)
		}
		if gen.Layout(src).Done() {
			t.Fatalf("%s: no XL tier may be written", src)
		}
	}
}

func TestImageGeneratorIsIdempotent(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "photo.jpg")
	writeJPEG(t, src, splitImage(300, 200), exifTIFF(0x0112, 1))

	gen := NewImageGenerator(testConfig(t), &toolRunner{}, discardLogger())
	if res := gen.Process(context.Background(), src); res.Status != process.StatusOK {
		t.Fatalf("first run: %s: %s", res.Status, res.Reason)
	}

	layout := gen.Layout(src)
	before := make(map[string][]byte)
	for _, p := range layout.Outputs {
		data, err := os.ReadFile(p)
		if err != nil {
			t.Fatalf("read %s: %v", p, err)
		}
		before[p] = data
	}

	res := gen.Process(context.Background(), src)
	if res.Status != process.StatusSkipped {
		t.Fatalf("second run should skip, got %s", res.Status)
	}
	for p, data := range before {
		after, err := os.ReadFile(p)
		if err != nil {
			t.Fatalf("read %s: %v", p, err)
		}
		if !bytes.Equal(data, after) {
			t.Fatalf("%s changed on second run", p)
		}
	}
}

func TestImageGeneratorUndecodable(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "broken.jpg")
	if err := os.WriteFile(src, []byte("this is not a jpeg"), 0o644); err != nil {
		t.Fatal(err)
	}

	gen := NewImageGenerator(testConfig(t), &toolRunner{}, discardLogger())
	res := gen.Process(context.Background(), src)
	if res.Status != process.StatusFailed || res.FailureType() != schema.FailureTypeDecode {
		t.Fatalf("expected decode failure, got %s/%s", res.Status, res.FailureType())
	}
}

func TestImageGeneratorTruncatedJPEG(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "cutoff.jpg")
	data := jpegBytes(t, texturedImage(800, 600), exifTIFF(0x0112, 1))
	if err := os.WriteFile(src, truncateScan(t, data, 0.6), 0o644); err != nil {
		t.Fatal(err)
	}

	gen := NewImageGenerator(testConfig(t), &toolRunner{}, discardLogger())
	res := gen.Process(context.Background(), src)
	if res.Status != process.StatusOK {
		t.Fatalf("expected ok, got %s: %v", res.Status, res.Err)
	}

	xl, err := imaging.Open(filepath.Join(root, "@eaDir", "cutoff.jpg", config.TierXL.FileName))
	if err != nil {
		t.Fatalf("open XL: %v", err)
	}
	if xl.Bounds().Dx() != 800 || xl.Bounds().Dy() != 600 {
		t.Fatalf("unexpected XL size %v", xl.Bounds())
	}
	if got := len(sidecarNames(t, gen.Layout(src).Dir)); got != 6 {
		t.Fatalf("expected 6 sidecar files, got %d", got)
	}
}

func TestImageGeneratorSidecarBlocked(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "photo.jpg")
	writeJPEG(t, src, splitImage(40, 20), exifTIFF(0x0112, 1))
	if err := os.WriteFile(filepath.Join(root, "@eaDir"), []byte("file in the way"), 0o644); err != nil {
		t.Fatal(err)
	}

	gen := NewImageGenerator(testConfig(t), &toolRunner{}, discardLogger())
	res := gen.Process(context.Background(), src)
	if res.Status != process.StatusFailed || res.FailureType() != schema.FailureTypeIO {
		t.Fatalf("expected i/o failure, got %s/%s", res.Status, res.FailureType())
	}
}

func TestImageGeneratorRawFile(t *testing.T) {
	var stream bytes.Buffer
	if err := tiff.Encode(&stream, splitImage(300, 100), nil); err != nil {
		t.Fatalf("encode tiff: %v", err)
	}
	runner := &toolRunner{available: map[string]bool{"dcraw": true}, rawOut: stream.Bytes()}

	root := t.TempDir()
	src := filepath.Join(root, "IMG_0001.CR2")
	if err := os.WriteFile(src, exifTIFF(0x0112, 6), 0o644); err != nil {
		t.Fatal(err)
	}

	gen := NewImageGenerator(testConfig(t), runner, discardLogger())
	res := gen.Process(context.Background(), src)
	if res.Status != process.StatusOK {
		t.Fatalf("expected ok, got %s: %s", res.Status, res.Reason)
	}
	if calls := runner.invoked(); len(calls) != 1 || calls[0] != "dcraw" {
		t.Fatalf("expected one dcraw call, got %v", calls)
	}

	xl, err := imaging.Open(gen.Layout(src).Marker)
	if err != nil {
		t.Fatalf("open XL: %v", err)
	}
	if xl.Bounds().Dx() != 100 || xl.Bounds().Dy() != 300 {
		t.Fatalf("raw image should be rotated to 100x300, got %v", xl.Bounds())
	}
}

func TestImageGeneratorRawWithoutDecoder(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "IMG_0002.cr2")
	if err := os.WriteFile(src, exifTIFF(0x0112, 1), 0o644); err != nil {
		t.Fatal(err)
	}

	gen := NewImageGenerator(testConfig(t), &toolRunner{}, discardLogger())
	res := gen.Process(context.Background(), src)
	if res.Status != process.StatusFailed || res.FailureType() != schema.FailureTypeCapability {
		t.Fatalf("expected capability failure, got %s/%s", res.Status, res.FailureType())
	}
}

func TestVideoGeneratorWritesPreviewAndPosters(t *testing.T) {
	cfg := testConfig(t)
	runner := &toolRunner{available: map[string]bool{"ffmpeg": true}, frameW: 640, frameH: 360}
	root := t.TempDir()
	src := filepath.Join(root, "clip.mov")
	if err := os.WriteFile(src, []byte("moov"), 0o644); err != nil {
		t.Fatal(err)
	}

	gen := NewVideoGenerator(cfg, runner, discardLogger())
	res := gen.Process(context.Background(), src)
	if res.Status != process.StatusOK {
		t.Fatalf("expected ok, got %s: %s", res.Status, res.Reason)
	}

	sidecar := filepath.Join(root, "@eaDir", "clip.mov")
	want := cfg.VideoOutputs()
	sort.Strings(want)
	if got := sidecarNames(t, sidecar); !slices.Equal(got, want) {
		t.Fatalf("sidecar contents = %v, want %v", got, want)
	}

	xl, err := imaging.Open(filepath.Join(sidecar, config.TierXL.FileName))
	if err != nil {
		t.Fatalf("open XL poster: %v", err)
	}
	if xl.Bounds().Dx() != 640 || xl.Bounds().Dy() != 360 {
		t.Fatalf("XL poster should keep 640x360, got %v", xl.Bounds())
	}
	m, err := imaging.Open(filepath.Join(sidecar, config.TierM.FileName))
	if err != nil {
		t.Fatalf("open M poster: %v", err)
	}
	if m.Bounds().Dx() != 320 || m.Bounds().Dy() != 180 {
		t.Fatalf("M poster should be 320x180, got %v", m.Bounds())
	}

	if leftovers := sidecarNames(t, cfg.ScratchDir); len(leftovers) != 0 {
		t.Fatalf("scratch frame not cleaned up: %v", leftovers)
	}

	if again := gen.Process(context.Background(), src); again.Status != process.StatusSkipped {
		t.Fatalf("second run should skip, got %s", again.Status)
	}
}

func TestVideoGeneratorWithoutTranscoderRetriesLater(t *testing.T) {
	runner := &toolRunner{frameW: 320, frameH: 180}
	root := t.TempDir()
	src := filepath.Join(root, "clip.mp4")
	if err := os.WriteFile(src, []byte("moov"), 0o644); err != nil {
		t.Fatal(err)
	}

	gen := NewVideoGenerator(testConfig(t), runner, discardLogger())
	res := gen.Process(context.Background(), src)
	if res.Status != process.StatusFailed || res.FailureType() != schema.FailureTypeCapability {
		t.Fatalf("expected capability failure, got %s/%s", res.Status, res.FailureType())
	}
	if gen.Layout(src).Done() {
		t.Fatal("marker must not exist without a transcoder")
	}
	if calls := runner.invoked(); len(calls) != 0 {
		t.Fatalf("no tool should run, got %v", calls)
	}

	runner.setAvailable("avconv")
	res = gen.Process(context.Background(), src)
	if res.Status != process.StatusOK {
		t.Fatalf("expected ok once avconv appears, got %s: %s", res.Status, res.Reason)
	}
	for _, name := range runner.invoked() {
		if name != "avconv" {
			t.Fatalf("expected only avconv calls, got %v", runner.invoked())
		}
	}
}

func TestVideoGeneratorTranscodeFailureRemovesMarker(t *testing.T) {
	runner := &toolRunner{
		available:    map[string]bool{"ffmpeg": true},
		transcodeErr: fmt.Errorf("ffmpeg: %w: exit status 1", process.ErrSubprocess),
	}
	root := t.TempDir()
	src := filepath.Join(root, "clip.avi")
	if err := os.WriteFile(src, []byte("RIFF"), 0o644); err != nil {
		t.Fatal(err)
	}

	gen := NewVideoGenerator(testConfig(t), runner, discardLogger())
	res := gen.Process(context.Background(), src)
	if res.Status != process.StatusFailed || res.FailureType() != schema.FailureTypeSubprocess {
		t.Fatalf("expected subprocess failure, got %s/%s", res.Status, res.FailureType())
	}
	if _, err := os.Stat(gen.Layout(src).Marker); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("partial container must be removed, stat err = %v", err)
	}
}

func TestVideoGeneratorFrameFailureKeepsContainer(t *testing.T) {
	runner := &toolRunner{
		available: map[string]bool{"ffmpeg": true},
		frameErr:  fmt.Errorf("ffmpeg: %w: exit status 1", process.ErrSubprocess),
	}
	root := t.TempDir()
	src := filepath.Join(root, "short.m4v")
	if err := os.WriteFile(src, []byte("moov"), 0o644); err != nil {
		t.Fatal(err)
	}

	gen := NewVideoGenerator(testConfig(t), runner, discardLogger())
	res := gen.Process(context.Background(), src)
	if res.Status != process.StatusFailed {
		t.Fatalf("expected failure, got %s", res.Status)
	}
	if !gen.Layout(src).Done() {
		t.Fatal("container is the completion marker and stays in place")
	}
	if again := gen.Process(context.Background(), src); again.Status != process.StatusSkipped {
		t.Fatalf("second run should skip, got %s", again.Status)
	}
}

func TestVideoGeneratorSkipsExistingMarker(t *testing.T) {
	runner := &toolRunner{available: map[string]bool{"ffmpeg": true}}
	root := t.TempDir()
	src := filepath.Join(root, "done.mov")

	gen := NewVideoGenerator(testConfig(t), runner, discardLogger())
	layout := gen.Layout(src)
	if err := layout.Ensure(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(layout.Marker, []byte("FLV"), 0o644); err != nil {
		t.Fatal(err)
	}

	res := gen.Process(context.Background(), src)
	if res.Status != process.StatusSkipped {
		t.Fatalf("expected skip, got %s", res.Status)
	}
	if calls := runner.invoked(); len(calls) != 0 {
		t.Fatalf("no tool should run, got %v", calls)
	}
}
