// cmd/synothumb walks a photo library and writes the thumbnails and video
// previews a Synology Photo Station expects next to every media file.
//
// Usage:
//
//	synothumb /volume1/photo
//	synothumb -y /volume1/photo   # no prompts, for cron
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/tendant/synothumb/internal/bus"
	"github.com/tendant/synothumb/internal/config"
	"github.com/tendant/synothumb/internal/converters"
	"github.com/tendant/synothumb/internal/dispatch"
	"github.com/tendant/synothumb/internal/img"
	"github.com/tendant/synothumb/internal/metrics"
	"github.com/tendant/synothumb/internal/process"
)

const usage = `Usage: synothumb [-y] <directory>

Creates Synology Photo Station thumbnails for every image and video below
<directory>. Images are handled first, then videos. Existing thumbnails are
left alone, so the command can be re-run after adding new files.

Flags:
  -y    start each phase without waiting for Enter
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout))
}

func run(args []string, stdin io.Reader, stdout io.Writer) int {
	flags := flag.NewFlagSet("synothumb", flag.ContinueOnError)
	flags.SetOutput(stdout)
	flags.Usage = func() { fmt.Fprint(stdout, usage) }
	assumeYes := flags.Bool("y", false, "start each phase without waiting for Enter")

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if flags.NArg() == 0 {
		fmt.Fprint(stdout, usage)
		return 0
	}
	root := flags.Arg(0)

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stdout, "synothumb: %v\n", err)
		return 1
	}

	logger := slog.New(slog.NewTextHandler(stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		if err == nil {
			err = errors.New("not a directory")
		}
		logger.Error("unreadable root", "root", root, "err", err)
		return 1
	}

	a := &app{
		cfg:       cfg,
		root:      root,
		logger:    logger,
		in:        bufio.NewReader(stdin),
		out:       stdout,
		assumeYes: *assumeYes,
		progress:  isTerminal(stdout),
		recorder:  metrics.New(),
	}

	if cfg.NATSURL != "" {
		client, err := bus.Connect(cfg.NATSURL)
		if err != nil {
			logger.Warn("events disabled: connect to NATS", "nats_url", cfg.NATSURL, "err", err)
		} else {
			defer client.Close()
			a.reporter = bus.NewReporter(client, cfg.ResultSubject, cfg.SidecarDir, logger)
			logger.Info("publishing results", "nats_url", cfg.NATSURL, "subject", cfg.ResultSubject)
		}
	}

	runner := converters.ExecRunner{}
	phases := []struct {
		name string
		exts map[string]bool
		gen  img.Generator
	}{
		{"images", cfg.ImageExtensions, img.NewImageGenerator(cfg, runner, logger)},
		{"videos", cfg.VideoExtensions, img.NewVideoGenerator(cfg, runner, logger)},
	}

	ctx := context.Background()
	start := time.Now()
	total := 0

	for _, p := range phases {
		summary, proceed, err := a.runPhase(ctx, p.name, p.exts, p.gen)
		if err != nil {
			logger.Error("discover files", "root", root, "phase", p.name, "err", err)
			return 1
		}
		if !proceed {
			fmt.Fprintln(stdout, "Aborted.")
			break
		}
		total += summary.Processed()
	}

	fmt.Fprintf(stdout, "Processed %d files in %s\n", total, time.Since(start).Round(time.Millisecond))

	if cfg.MetricsFile != "" {
		if err := a.recorder.WriteTextfile(cfg.MetricsFile); err != nil {
			logger.Warn("write metrics", "path", cfg.MetricsFile, "err", err)
		}
	}

	return 0
}

type app struct {
	cfg       config.Config
	root      string
	logger    *slog.Logger
	in        *bufio.Reader
	out       io.Writer
	assumeYes bool
	progress  bool
	recorder  *metrics.Recorder
	reporter  *bus.Reporter
}

// runPhase discovers the files for one phase, waits for the operator and
// runs the generator over them. proceed is false when the operator input
// ended before confirming.
func (a *app) runPhase(ctx context.Context, name string, exts map[string]bool, gen img.Generator) (dispatch.Summary, bool, error) {
	files, err := dispatch.Discover(a.root, exts, a.cfg)
	if err != nil {
		return dispatch.Summary{}, false, err
	}

	fmt.Fprintf(a.out, "Found %d %s under %s\n", len(files), name, a.root)
	if !a.confirm() {
		return dispatch.Summary{}, false, nil
	}

	workers := dispatch.WorkerCount(a.cfg.Workers, 0)
	a.logger.Info("phase starting", "phase", name, "files", len(files), "workers", workers)

	var bar *progressbar.ProgressBar
	if a.progress && len(files) > 0 {
		bar = progressbar.Default(int64(len(files)), name)
	}

	summary := dispatch.Dispatch(ctx, files, gen.Process, workers, func(res process.Result) {
		a.observe(res)
		if bar != nil {
			_ = bar.Add(1)
		}
	})
	if bar != nil {
		_ = bar.Finish()
	}

	a.recorder.ObservePhase(name, summary)
	if a.reporter != nil {
		a.reporter.PhaseDone(a.root, name, summary)
	}

	fmt.Fprintf(a.out, "%s: %d converted, %d skipped, %d failed in %s\n",
		name, summary.OK, summary.Skipped, summary.Failed, summary.Elapsed.Round(time.Millisecond))
	return summary, true, nil
}

// observe runs on worker goroutines.
func (a *app) observe(res process.Result) {
	a.recorder.Observe(res)
	if a.reporter != nil {
		a.reporter.FileDone(res)
	}
	if res.Status == process.StatusFailed {
		a.logger.Warn("file failed", "path", res.Path, "pipeline", res.Pipeline, "type", res.FailureType(), "reason", res.Reason)
		return
	}
	a.logger.Debug("file done", "path", res.Path, "pipeline", res.Pipeline, "status", res.Status, "duration", res.Duration)
}

func (a *app) confirm() bool {
	if a.assumeYes {
		return true
	}
	fmt.Fprint(a.out, "Press Enter to continue or Ctrl-C to quit ")
	_, err := a.in.ReadString('\n')
	return err == nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
