// cmd/worker/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/tendant/synothumb/internal/bus"
	"github.com/tendant/synothumb/internal/config"
	"github.com/tendant/synothumb/internal/converters"
	"github.com/tendant/synothumb/internal/dispatch"
	"github.com/tendant/synothumb/internal/img"
	"github.com/tendant/synothumb/internal/process"
	"github.com/tendant/synothumb/pkg/schema"
)

func main() {
	root := flag.String("root", "", "only accept jobs for files below this directory")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.NATSURL == "" {
		cfg.NATSURL = "nats://127.0.0.1:4222"
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	nc, err := bus.Connect(cfg.NATSURL)
	if err != nil {
		fatal(logger, "connect to NATS", err, "nats_url", cfg.NATSURL)
	}
	logger.Info("connected to NATS", "nats_url", cfg.NATSURL)
	defer nc.Close()

	w := &worker{
		cfg:      cfg,
		root:     *root,
		runner:   converters.ExecRunner{},
		reporter: bus.NewReporter(nc, cfg.ResultSubject, cfg.SidecarDir, logger),
		logger:   logger,
	}

	// NATS delivers messages for one subscription sequentially, so one
	// queue subscription per worker gives the concurrency.
	workers := dispatch.WorkerCount(cfg.Workers, 0)
	for i := 0; i < workers; i++ {
		_, err := nc.QueueSubscribeJSON(cfg.JobSubject, cfg.WorkerQueue, func(ctx context.Context, data []byte) {
			w.handleJob(ctx, data)
		})
		if err != nil {
			fatal(logger, "subscribe worker", err, "job_subject", cfg.JobSubject, "queue", cfg.WorkerQueue)
		}
	}
	logger.Info("listening for jobs", "subject", cfg.JobSubject, "queue", cfg.WorkerQueue, "workers", workers, "root", *root)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	logger.Info("worker stopping")
}

type worker struct {
	cfg      config.Config
	root     string
	runner   converters.Runner
	reporter *bus.Reporter
	logger   *slog.Logger
}

// handleJob runs one job and reports its result. Bad jobs are reported as
// validation failures and never reach a pipeline.
func (w *worker) handleJob(ctx context.Context, data []byte) process.Result {
	var job schema.ThumbnailJob
	if err := json.Unmarshal(data, &job); err != nil {
		res := process.Failed("job", "", fmt.Errorf("%w: decode: %v", process.ErrInvalidJob, err))
		w.logger.Warn("invalid job payload", "err", err)
		w.reporter.FileDone(res)
		return res
	}

	jobLogger := w.logger.With("job_id", job.JobID)
	jobLogger.Info("received job", "source", job.SourcePath)

	gen, err := w.validate(job.SourcePath)
	if err != nil {
		jobLogger.Warn("rejected job", "source", job.SourcePath, "err", err)
		res := process.Failed("job", job.SourcePath, err)
		w.reporter.FileDone(res)
		return res
	}

	res := dispatch.RunOne(ctx, gen.Process, job.SourcePath)
	if res.Pipeline == "" {
		res.Pipeline = gen.Name()
	}
	w.reporter.FileDone(res)
	jobLogger.Info("completed job", "pipeline", res.Pipeline, "status", res.Status, "duration_ms", res.Duration.Milliseconds())
	return res
}

// validate checks that path names an existing media file this worker is
// allowed to touch and returns the pipeline for it.
func (w *worker) validate(path string) (img.Generator, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: missing source_path", process.ErrInvalidJob)
	}
	if !filepath.IsAbs(path) {
		return nil, fmt.Errorf("%w: source_path must be absolute: %s", process.ErrInvalidJob, path)
	}
	path = filepath.Clean(path)

	if w.root != "" {
		rel, err := filepath.Rel(filepath.Clean(w.root), path)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return nil, fmt.Errorf("%w: %s is outside %s", process.ErrInvalidJob, path, w.root)
		}
	}
	if slices.Contains(strings.Split(filepath.ToSlash(path), "/"), w.cfg.SidecarDir) {
		return nil, fmt.Errorf("%w: %s is a generated artifact", process.ErrInvalidJob, path)
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s does not exist", process.ErrInvalidJob, path)
		}
		return nil, fmt.Errorf("%w: %w", process.ErrIO, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s is not a regular file", process.ErrInvalidJob, path)
	}

	gen, err := img.GetGenerator(w.cfg, w.runner, w.logger, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", process.ErrInvalidJob, err)
	}
	return gen, nil
}

func fatal(logger *slog.Logger, msg string, err error, attrs ...any) {
	attrs = append(attrs, "err", err)
	logger.Error(msg, attrs...)
	os.Exit(1)
}
