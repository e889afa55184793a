// Package converters wraps the external decoders and transcoders the
// pipelines shell out to (dcraw, ffmpeg, avconv).
package converters

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"strings"

	"github.com/tendant/synothumb/internal/process"
)

// Runner is the gateway to external binaries.
type Runner interface {
	// Probe reports whether the named binary can be launched at all.
	Probe(name string) bool

	// Run invokes the binary and returns its standard output.
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// FileInfo contains metadata about a media file
type FileInfo struct {
	Width    int     // Width in pixels
	Height   int     // Height in pixels
	Duration float64 // Duration in seconds (videos)
	Size     int64   // File size in bytes
}

// ExecRunner runs binaries found on PATH.
type ExecRunner struct{}

// Probe starts the binary with no arguments and all standard streams bound
// to the null device. Only "not found" means unavailable; a usage error or
// non-zero exit still proves the binary exists.
func (ExecRunner) Probe(name string) bool {
	err := exec.Command(name).Run()
	if err == nil {
		return true
	}
	return !errors.Is(err, exec.ErrNotFound) && !errors.Is(err, fs.ErrNotExist)
}

// Run passes args straight to the binary (no shell), so paths containing
// spaces or quotes need no escaping.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s: %w: %w\nOutput: %s", name, process.ErrSubprocess, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}
