package krinsky

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"flexwta/domain/core"
	"flexwta/domain/result"
	"flexwta/internal/logging"
	"flexwta/ports"
)

// ReplicateTask runs the full per-replicate pipeline for one drawn
// coefficient vector and returns the statistics it produced. Tasks must be
// independent: each call gets its own theta copy and must not share mutable
// state with other replicates.
type ReplicateTask func(ctx context.Context, replicate int, theta []float64) ([]result.Statistic, error)

// StageError tags a replicate failure with the pipeline stage that produced
// it, so failure accounting can say where a replicate died.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return e.Stage + ": " + e.Err.Error() }
func (e *StageError) Unwrap() error { return e.Err }

// NewStageError wraps err with a pipeline stage name.
func NewStageError(stage string, err error) error {
	return &StageError{Stage: stage, Err: err}
}

// StageOf extracts the stage name from an error chain, defaulting to
// "replicate" for untagged failures.
func StageOf(err error) string {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Stage
	}
	return "replicate"
}

// Progress reports one finished replicate.
type Progress struct {
	Replicate int
	Completed int
	Failed    int
	Total     int
	Err       error
}

// RunnerConfig bounds the replicate pool. A zero Timeout disables the
// per-replicate deadline.
type RunnerConfig struct {
	Workers int
	Timeout time.Duration
}

// Outcome summarizes a finished batch. Failures are recorded, never fatal:
// a failed replicate is missing data, and the aggregation stage counts it.
type Outcome struct {
	Completed int
	Failures  []result.ReplicateFailure
}

// Runner executes replicate tasks across a bounded worker pool. Statistics
// flow through a single writer goroutine, so the sink never sees concurrent
// appends regardless of worker count.
type Runner struct {
	cfg    RunnerConfig
	logger *logging.Logger
}

// NewRunner validates the pool configuration.
func NewRunner(cfg RunnerConfig, logger *logging.Logger) (*Runner, error) {
	if cfg.Workers <= 0 {
		return nil, fmt.Errorf("%w: worker count must be positive, got %d", core.ErrInvalidArgument, cfg.Workers)
	}
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("%w: replicate timeout must be non-negative", core.ErrInvalidArgument)
	}
	if logger == nil {
		logger = logging.DefaultLogger
	}
	return &Runner{cfg: cfg, logger: logger}, nil
}

// Run executes one task per draw. Draw i becomes replicate i+1. The call
// returns after every scheduled replicate has finished or failed; only a
// sink failure or full-batch cancellation aborts the run itself.
func (r *Runner) Run(ctx context.Context, draws [][]float64, task ReplicateTask, sink ports.StatisticSink, onProgress func(Progress)) (*Outcome, error) {
	if len(draws) == 0 {
		return nil, fmt.Errorf("%w: no replicate draws to run", core.ErrInvalidArgument)
	}
	if task == nil || sink == nil {
		return nil, fmt.Errorf("%w: runner requires a task and a statistic sink", core.ErrInvalidArgument)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Single-writer drain: workers hand finished batches to this goroutine,
	// which owns all sink appends. On a sink failure the run cancels but the
	// channel keeps draining so no worker blocks on send.
	statCh := make(chan []result.Statistic, r.cfg.Workers)
	writerDone := make(chan struct{})
	var sinkErr error
	go func() {
		defer close(writerDone)
		for batch := range statCh {
			if sinkErr != nil {
				continue
			}
			if err := sink.Append(runCtx, batch); err != nil {
				sinkErr = err
				cancel()
			}
		}
	}()

	sem := semaphore.NewWeighted(int64(r.cfg.Workers))
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		completed int
		failures  []result.ReplicateFailure
	)
	total := len(draws)

	record := func(replicate int, stage string, err error) {
		mu.Lock()
		failures = append(failures, result.ReplicateFailure{
			Replicate: replicate,
			Stage:     stage,
			Reason:    err.Error(),
		})
		done, failed := completed, len(failures)
		mu.Unlock()
		if onProgress != nil {
			onProgress(Progress{Replicate: replicate, Completed: done, Failed: failed, Total: total, Err: err})
		}
	}

	r.logger.Info("[ReplicationRunner] Starting %d replicates across %d workers", total, r.cfg.Workers)

	for i := range draws {
		replicate := i + 1
		if err := sem.Acquire(runCtx, 1); err != nil {
			record(replicate, "schedule", err)
			continue
		}

		theta := append([]float64(nil), draws[i]...)
		wg.Add(1)
		go func(replicate int, theta []float64) {
			defer wg.Done()
			defer sem.Release(1)

			taskCtx := runCtx
			if r.cfg.Timeout > 0 {
				var cancelTask context.CancelFunc
				taskCtx, cancelTask = context.WithTimeout(runCtx, r.cfg.Timeout)
				defer cancelTask()
			}

			statistics, err := task(taskCtx, replicate, theta)
			if err != nil {
				stage := StageOf(err)
				r.logger.Warn("[ReplicationRunner] Replicate %d failed at %s: %v", replicate, stage, err)
				record(replicate, stage, err)
				return
			}

			statCh <- statistics

			mu.Lock()
			completed++
			done, failed := completed, len(failures)
			mu.Unlock()
			if onProgress != nil {
				onProgress(Progress{Replicate: replicate, Completed: done, Failed: failed, Total: total})
			}
		}(replicate, theta)
	}

	wg.Wait()
	close(statCh)
	<-writerDone

	if sinkErr != nil {
		return nil, fmt.Errorf("statistics sink failed: %w", sinkErr)
	}

	sort.Slice(failures, func(i, j int) bool { return failures[i].Replicate < failures[j].Replicate })
	r.logger.Info("[ReplicationRunner] Finished: %d/%d usable, %d failed", completed, total, len(failures))
	return &Outcome{Completed: completed, Failures: failures}, nil
}
