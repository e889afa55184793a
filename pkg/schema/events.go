// pkg/schema/events.go
package schema

type FailureType string

const (
	FailureTypeCapability FailureType = "capability"
	FailureTypeMetadata   FailureType = "metadata"
	FailureTypeIO         FailureType = "io"
	FailureTypeSubprocess FailureType = "subprocess"
	FailureTypeDecode     FailureType = "decode"
	FailureTypeValidation FailureType = "validation"
)

// ThumbnailJob asks a worker to run the matching pipeline on one file.
type ThumbnailJob struct {
	JobID       string `json:"job_id"`
	SourcePath  string `json:"source_path"`
	RequestedAt int64  `json:"requested_at"`
}

// FileProcessed is published once per source file after its pipeline ran.
type FileProcessed struct {
	SourcePath  string      `json:"source_path"`
	SidecarDir  string      `json:"sidecar_dir"`
	Pipeline    string      `json:"pipeline"`
	Status      string      `json:"status"`
	Reason      string      `json:"reason,omitempty"`
	FailureType FailureType `json:"failure_type,omitempty"`
	DurationMs  int64       `json:"duration_ms"`
	HappenedAt  int64       `json:"happened_at"`
}

// PhaseCompleted summarizes one dispatch phase (images or videos).
type PhaseCompleted struct {
	Root       string `json:"root"`
	Phase      string `json:"phase"`
	Total      int    `json:"total"`
	Processed  int    `json:"processed"`
	Skipped    int    `json:"skipped"`
	Failed     int    `json:"failed"`
	Workers    int    `json:"workers"`
	ElapsedMs  int64  `json:"elapsed_ms"`
	HappenedAt int64  `json:"happened_at"`
}
