package dispatch

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tendant/synothumb/internal/process"
)

// Func runs one pipeline on one file.
type Func func(ctx context.Context, path string) process.Result

// Summary counts the outcomes of one phase.
type Summary struct {
	Total   int
	OK      int
	Skipped int
	Failed  int
	Workers int
	Elapsed time.Duration
}

// Processed is the number of items that reached a worker.
func (s Summary) Processed() int {
	return s.OK + s.Skipped + s.Failed
}

// WorkerCount returns the pool size: override when positive, otherwise one
// worker per usable CPU. GOMAXPROCS already follows container CPU limits.
// A positive limit caps the result.
func WorkerCount(override, limit int) int {
	workers := override
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers < 1 {
		workers = 1
	}
	if limit > 0 && workers > limit {
		workers = limit
	}
	return workers
}

// Dispatch submits every item exactly once to a pool of workers and waits
// for all of them to finish. observe, when set, sees every result and is
// called from worker goroutines.
//
// Cancelling ctx stops submission of items that have not started; running
// pipelines are left to finish.
func Dispatch(ctx context.Context, items []string, fn Func, workers int, observe func(process.Result)) Summary {
	start := time.Now()
	if workers < 1 {
		workers = 1
	}
	if workers > len(items) && len(items) > 0 {
		workers = len(items)
	}

	var okCount, skippedCount, failedCount atomic.Int64
	jobs := make(chan string, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range jobs {
				res := RunOne(ctx, fn, path)
				switch res.Status {
				case process.StatusOK:
					okCount.Add(1)
				case process.StatusSkipped:
					skippedCount.Add(1)
				default:
					failedCount.Add(1)
				}
				if observe != nil {
					observe(res)
				}
			}
		}()
	}

submit:
	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		select {
		case jobs <- item:
		case <-ctx.Done():
			break submit
		}
	}
	close(jobs)
	wg.Wait()

	return Summary{
		Total:   len(items),
		OK:      int(okCount.Load()),
		Skipped: int(skippedCount.Load()),
		Failed:  int(failedCount.Load()),
		Workers: workers,
		Elapsed: time.Since(start),
	}
}

// RunOne runs fn on path and turns a panic into a failed Result, so one bad
// file cannot take the whole run down.
func RunOne(ctx context.Context, fn Func, path string) (res process.Result) {
	defer func() {
		if r := recover(); r != nil {
			res = process.Failed("", path, fmt.Errorf("%w: panic: %v", process.ErrIO, r))
		}
	}()
	return fn(ctx, path)
}
