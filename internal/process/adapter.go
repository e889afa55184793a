// internal/process/adapter.go
package process

import (
	"errors"
	"time"

	"github.com/tendant/synothumb/pkg/schema"
)

// Status is the outcome of running a pipeline on one source file.
type Status string

const (
	StatusOK      Status = "ok"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Failure categories. Pipelines wrap one of these so callers can classify
// the error without string matching.
var (
	ErrCapability = errors.New("required tool not available")
	ErrMetadata   = errors.New("missing metadata")
	ErrIO         = errors.New("i/o failure")
	ErrSubprocess = errors.New("external tool failed")
	ErrDecode     = errors.New("decode failed")
	ErrInvalidJob = errors.New("invalid job")
)

// Result captures what happened to a single source file.
type Result struct {
	Path     string
	Pipeline string
	Status   Status
	Reason   string
	Err      error
	Duration time.Duration
}

func OK(pipeline, path string) Result {
	return Result{Path: path, Pipeline: pipeline, Status: StatusOK}
}

func Skipped(pipeline, path, reason string) Result {
	return Result{Path: path, Pipeline: pipeline, Status: StatusSkipped, Reason: reason}
}

func Failed(pipeline, path string, err error) Result {
	r := Result{Path: path, Pipeline: pipeline, Status: StatusFailed, Err: err}
	if err != nil {
		r.Reason = err.Error()
	}
	return r
}

// FailureType maps the wrapped sentinel to its reporting category.
func (r Result) FailureType() schema.FailureType {
	if r.Status != StatusFailed {
		return ""
	}
	return Classify(r.Err)
}

func Classify(err error) schema.FailureType {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCapability):
		return schema.FailureTypeCapability
	case errors.Is(err, ErrMetadata):
		return schema.FailureTypeMetadata
	case errors.Is(err, ErrSubprocess):
		return schema.FailureTypeSubprocess
	case errors.Is(err, ErrDecode):
		return schema.FailureTypeDecode
	case errors.Is(err, ErrInvalidJob):
		return schema.FailureTypeValidation
	default:
		return schema.FailureTypeIO
	}
}
