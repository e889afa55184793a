// Package metrics records run outcomes as Prometheus metrics and writes
// them in the node_exporter textfile format at the end of a run.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tendant/synothumb/internal/dispatch"
	"github.com/tendant/synothumb/internal/process"
)

// Recorder owns a private registry so a run only exports its own series.
type Recorder struct {
	registry *prometheus.Registry

	FilesTotal      *prometheus.CounterVec
	FailuresTotal   *prometheus.CounterVec
	FileDuration    *prometheus.HistogramVec
	PhaseDuration   *prometheus.GaugeVec
	PhaseFilesTotal *prometheus.GaugeVec
	LastRunTime     prometheus.Gauge
}

func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		FilesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "synothumb_files_total",
				Help: "Total number of source files handled, by pipeline and status",
			},
			[]string{"pipeline", "status"},
		),
		FailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "synothumb_failures_total",
				Help: "Total number of failed files, by pipeline and failure type",
			},
			[]string{"pipeline", "type"},
		),
		FileDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "synothumb_file_duration_seconds",
				Help:    "Time spent on one source file in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"pipeline"},
		),
		PhaseDuration: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "synothumb_phase_duration_seconds",
				Help: "Wall time of the last run of each phase in seconds",
			},
			[]string{"phase"},
		),
		PhaseFilesTotal: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "synothumb_phase_files",
				Help: "Files discovered in the last run of each phase",
			},
			[]string{"phase"},
		),
		LastRunTime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "synothumb_last_run_timestamp_seconds",
				Help: "Unix time the last run finished",
			},
		),
	}
}

// Observe records one pipeline result. Safe for concurrent use.
func (r *Recorder) Observe(res process.Result) {
	r.FilesTotal.WithLabelValues(res.Pipeline, string(res.Status)).Inc()
	if res.Status == process.StatusFailed {
		r.FailuresTotal.WithLabelValues(res.Pipeline, string(res.FailureType())).Inc()
	}
	if res.Status != process.StatusSkipped {
		r.FileDuration.WithLabelValues(res.Pipeline).Observe(res.Duration.Seconds())
	}
}

func (r *Recorder) ObservePhase(phase string, s dispatch.Summary) {
	r.PhaseDuration.WithLabelValues(phase).Set(s.Elapsed.Seconds())
	r.PhaseFilesTotal.WithLabelValues(phase).Set(float64(s.Total))
}

// WriteTextfile stamps the run time and writes every series to path.
func (r *Recorder) WriteTextfile(path string) error {
	r.LastRunTime.SetToCurrentTime()
	return prometheus.WriteToTextfile(path, r.registry)
}
