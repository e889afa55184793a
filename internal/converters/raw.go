package converters

import (
	"context"
	"fmt"

	"github.com/tendant/synothumb/internal/process"
)

// DcrawConverter decodes camera raw files with dcraw.
type DcrawConverter struct {
	binary string
	runner Runner
}

// NewDcrawConverter creates a raw decoder using the given binary name.
func NewDcrawConverter(binary string, runner Runner) *DcrawConverter {
	return &DcrawConverter{binary: binary, runner: runner}
}

// Name returns the converter name
func (d *DcrawConverter) Name() string {
	return d.binary
}

// Decode renders the raw file and returns the encoded image from stdout.
//
// -c: write to stdout
// -b 8: brightness
// -q 0: bilinear interpolation
// -w: camera white balance
// -H 5: rebuild highlights
// -T: TIFF instead of PPM, so the stream is decodable in-process
// -t 0: leave the sensor orientation alone; EXIF rotation is applied later
func (d *DcrawConverter) Decode(ctx context.Context, input string) ([]byte, error) {
	if !d.runner.Probe(d.binary) {
		return nil, fmt.Errorf("%s not found in PATH: %w", d.binary, process.ErrCapability)
	}

	args := []string{
		"-c",
		"-b", "8",
		"-q", "0",
		"-w",
		"-H", "5",
		"-T",
		"-t", "0",
		input,
	}

	out, err := d.runner.Run(ctx, d.binary, args...)
	if err != nil {
		return nil, fmt.Errorf("raw decode: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("raw decode: %s produced no output: %w", d.binary, process.ErrSubprocess)
	}
	return out, nil
}
