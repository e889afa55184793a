// cmd/backfill/main.go
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/tendant/synothumb/internal/bus"
	"github.com/tendant/synothumb/internal/config"
	"github.com/tendant/synothumb/internal/converters"
	"github.com/tendant/synothumb/internal/dispatch"
	"github.com/tendant/synothumb/internal/img"
	"github.com/tendant/synothumb/pkg/schema"
)

type options struct {
	Root        string
	Limit       int
	DryRun      bool
	OnlyMissing bool
}

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	opts := parseFlags()
	if opts.Root == "" {
		fmt.Println("Error: -root flag is required")
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fatal(logger, "load config", err)
	}
	if cfg.NATSURL == "" {
		cfg.NATSURL = "nats://127.0.0.1:4222"
	}

	root, err := filepath.Abs(opts.Root)
	if err != nil {
		fatal(logger, "resolve root", err, "root", opts.Root)
	}
	logger.Info("backfill starting",
		"root", root,
		"nats_url", cfg.NATSURL,
		"job_subject", cfg.JobSubject,
		"limit", opts.Limit,
		"dry_run", opts.DryRun,
		"only_missing", opts.OnlyMissing,
	)

	paths, skippedDone, err := collect(cfg, root, opts.OnlyMissing, opts.Limit)
	if err != nil {
		fatal(logger, "scan failed", err, "root", root)
	}

	if opts.DryRun {
		for _, p := range paths {
			logger.Info("would enqueue", "source", p)
		}
		logger.Info("backfill complete", "total_found", len(paths), "skipped_has_thumbs", skippedDone, "dry_run", true)
		return
	}

	nc, err := bus.Connect(cfg.NATSURL)
	if err != nil {
		fatal(logger, "connect to NATS", err, "nats_url", cfg.NATSURL)
	}
	defer nc.Close()
	logger.Info("connected to NATS", "nats_url", cfg.NATSURL)

	published, failed := publishJobs(nc, cfg.JobSubject, paths, logger)
	logger.Info("backfill complete",
		"total_found", len(paths),
		"jobs_published", published,
		"skipped_has_thumbs", skippedDone,
		"failed", len(failed),
	)
	if len(failed) > 0 {
		logger.Error("some jobs failed", "failed_paths", failed)
	}
}

func parseFlags() options {
	opts := options{DryRun: true, OnlyMissing: true}

	flag.StringVar(&opts.Root, "root", "", "Library root to scan (required)")
	flag.IntVar(&opts.Limit, "limit", 0, "Maximum total number of jobs to publish (0 = unlimited)")
	flag.BoolVar(&opts.DryRun, "dry-run", true, "Show what would be processed without publishing jobs")
	flag.BoolVar(&opts.OnlyMissing, "only-missing", true, "Only enqueue files whose sidecar is incomplete (false = enqueue everything)")

	var execute bool
	flag.BoolVar(&execute, "execute", false, "Actually publish jobs (disables dry-run)")
	flag.Parse()

	if execute {
		opts.DryRun = false
	}
	return opts
}

// collect lists images then videos under root. With onlyMissing, files
// whose completion marker exists are counted in skipped and left out.
func collect(cfg config.Config, root string, onlyMissing bool, limit int) (paths []string, skipped int, err error) {
	runner := converters.ExecRunner{}

	for _, exts := range []map[string]bool{cfg.ImageExtensions, cfg.VideoExtensions} {
		files, err := dispatch.Discover(root, exts, cfg)
		if err != nil {
			return nil, 0, err
		}
		for _, f := range files {
			if limit > 0 && len(paths) >= limit {
				return paths, skipped, nil
			}
			if onlyMissing {
				gen, err := img.GetGenerator(cfg, runner, nil, f)
				if err != nil {
					continue
				}
				if gen.Layout(f).Done() {
					skipped++
					continue
				}
			}
			paths = append(paths, f)
		}
	}
	return paths, skipped, nil
}

// publishJobs sends one job per path and returns the paths that could not
// be published.
func publishJobs(pub bus.Publisher, subject string, paths []string, logger *slog.Logger) (int, []string) {
	published := 0
	var failed []string
	for _, p := range paths {
		job := schema.ThumbnailJob{
			JobID:       uuid.NewString(),
			SourcePath:  p,
			RequestedAt: time.Now().Unix(),
		}
		if err := pub.PublishJSON(subject, job); err != nil {
			logger.Warn("publish job", "source", p, "err", err)
			failed = append(failed, p)
			continue
		}
		published++
	}
	return published, failed
}

func fatal(logger *slog.Logger, msg string, err error, attrs ...any) {
	attrs = append(attrs, "err", err)
	logger.Error(msg, attrs...)
	os.Exit(1)
}
