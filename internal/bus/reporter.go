package bus

import (
	"log/slog"
	"time"

	"github.com/tendant/synothumb/internal/dispatch"
	"github.com/tendant/synothumb/internal/process"
	"github.com/tendant/synothumb/internal/sidecar"
	"github.com/tendant/synothumb/pkg/schema"
)

// Reporter turns pipeline results into events. Publish errors are logged
// and never affect the run.
type Reporter struct {
	pub        Publisher
	subject    string
	sidecarDir string
	logger     *slog.Logger
	now        func() time.Time
}

func NewReporter(pub Publisher, subject, sidecarDir string, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{
		pub:        pub,
		subject:    subject,
		sidecarDir: sidecarDir,
		logger:     logger,
		now:        time.Now,
	}
}

// SummarySubject is where phase summaries are published.
func (r *Reporter) SummarySubject() string {
	return r.subject + ".summary"
}

// FileDone publishes a FileProcessed event. Safe for concurrent use.
func (r *Reporter) FileDone(res process.Result) {
	evt := schema.FileProcessed{
		SourcePath:  res.Path,
		SidecarDir:  sidecar.Locate(res.Path, r.sidecarDir, "", nil).Dir,
		Pipeline:    res.Pipeline,
		Status:      string(res.Status),
		Reason:      res.Reason,
		FailureType: res.FailureType(),
		DurationMs:  res.Duration.Milliseconds(),
		HappenedAt:  r.now().Unix(),
	}
	if err := r.pub.PublishJSON(r.subject, evt); err != nil {
		r.logger.Warn("publish file event", "subject", r.subject, "path", res.Path, "err", err)
	}
}

// PhaseDone publishes a PhaseCompleted event for one phase.
func (r *Reporter) PhaseDone(root, phase string, s dispatch.Summary) {
	evt := schema.PhaseCompleted{
		Root:       root,
		Phase:      phase,
		Total:      s.Total,
		Processed:  s.OK,
		Skipped:    s.Skipped,
		Failed:     s.Failed,
		Workers:    s.Workers,
		ElapsedMs:  s.Elapsed.Milliseconds(),
		HappenedAt: r.now().Unix(),
	}
	if err := r.pub.PublishJSON(r.SummarySubject(), evt); err != nil {
		r.logger.Warn("publish phase event", "subject", r.SummarySubject(), "phase", phase, "err", err)
	}
}
