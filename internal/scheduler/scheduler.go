package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/mirrorget/internal/utils"
)

const DefaultWorkers = 16

var ErrCoordinatorUsed = errors.New("coordinator has already run a batch")

type State int32

const (
	StatePending State = iota
	StateRunning
	StateDraining
	StateDone
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateDone:
		return "done"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

type TaskFetcher interface {
	Fetch(ctx context.Context, task utils.DownloadTask, maxAttempts int, onProgress utils.ProgressFunc) utils.FetchResult
}

// Reporter observes a batch. Calls arrive concurrently from every worker.
type Reporter interface {
	TaskStarted(task utils.DownloadTask)
	TaskProgress(task utils.DownloadTask, downloaded, total int64)
	TaskFinished(result utils.FetchResult, progress Snapshot)
}

type nopReporter struct{}

func (nopReporter) TaskStarted(utils.DownloadTask) {}
func (nopReporter) TaskProgress(utils.DownloadTask, int64, int64) {}
func (nopReporter) TaskFinished(utils.FetchResult, Snapshot) {}

type Options struct {
	Workers     int
	MaxAttempts int
	Reporter    Reporter
}

type BatchReport struct {
	Total     int
	Completed int
	Succeeded []utils.FetchResult
	Failed    []utils.FetchResult
	Elapsed   time.Duration
}

func (r *BatchReport) FailedIDs() []string {
	ids := make([]string, 0, len(r.Failed))
	for _, f := range r.Failed {
		ids = append(ids, f.Task.ID)
	}
	return ids
}

// queueItem is either a task or the stop sentinel for one worker.
type queueItem struct {
	task utils.DownloadTask
	stop bool
}

// Coordinator runs one batch of downloads over a fixed worker pool. It is single use.
type Coordinator struct {
	fetcher     TaskFetcher
	workers     int
	maxAttempts int
	reporter    Reporter

	used     atomic.Bool
	state    atomic.Int32
	progress atomic.Pointer[BatchProgress]

	mu     sync.Mutex
	report BatchReport
}

func New(fetcher TaskFetcher, opts Options) *Coordinator {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.Reporter == nil {
		opts.Reporter = nopReporter{}
	}
	return &Coordinator{
		fetcher:     fetcher,
		workers:     opts.Workers,
		maxAttempts: opts.MaxAttempts,
		reporter:    opts.Reporter,
	}
}

func (c *Coordinator) State() State {
	return State(c.state.Load())
}

func (c *Coordinator) Progress() Snapshot {
	if p := c.progress.Load(); p != nil {
		return p.Snapshot()
	}
	return Snapshot{ETA: -1}
}

// Run processes every task to success or exhausted retries and returns the final report.
// Individual failures are reported in the BatchReport, never as the returned error.
func (c *Coordinator) Run(ctx context.Context, tasks []utils.DownloadTask) (*BatchReport, error) {
	if !c.used.CompareAndSwap(false, true) {
		return nil, ErrCoordinatorUsed
	}
	logger := log.With().Str("op", "scheduler/coordinator").Logger()

	c.state.Store(int32(StatePending))
	queue := make(chan queueItem, len(tasks)+c.workers)
	for _, task := range tasks {
		queue <- queueItem{task: task}
	}
	progress := newBatchProgress(len(tasks))
	c.progress.Store(progress)
	c.report = BatchReport{Total: len(tasks)}
	logger.Info().Int("tasks", len(tasks)).Int("workers", c.workers).Int("attempts", c.maxAttempts).Msg("starting batch")

	c.state.Store(int32(StateRunning))
	var pending sync.WaitGroup
	pending.Add(len(tasks))
	var workers sync.WaitGroup
	for i := 0; i < c.workers; i++ {
		workers.Add(1)
		go func(workerID int) {
			defer workers.Done()
			for item := range queue {
				if item.stop {
					return
				}
				c.process(ctx, workerID, item.task, progress, pending.Done)
			}
		}(i + 1)
	}

	pending.Wait()
	c.state.Store(int32(StateDraining))
	for i := 0; i < c.workers; i++ {
		queue <- queueItem{stop: true}
	}
	workers.Wait()
	close(queue)

	c.mu.Lock()
	snap := progress.Snapshot()
	c.report.Completed = snap.Completed
	c.report.Elapsed = snap.Elapsed
	report := c.report
	c.mu.Unlock()
	c.state.Store(int32(StateDone))
	logger.Info().Int("succeeded", len(report.Succeeded)).Int("failed", len(report.Failed)).
		Dur("elapsed", report.Elapsed).Msg("batch finished")
	return &report, nil
}

// process handles one task end to end. A panic outside the fetch itself (a reporter, say) is logged
// and the task still counts as completed exactly once; done always runs.
func (c *Coordinator) process(ctx context.Context, workerID int, task utils.DownloadTask, progress *BatchProgress, done func()) {
	counted := false
	defer done()
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		log.Error().Str("op", "scheduler/coordinator").
			Int("worker", workerID).
			Str("task", task.ID).
			Str("url", task.URL).
			Str("stack", string(debug.Stack())).
			Msgf("unexpected panic while finishing task: %v", r)
		if counted {
			return
		}
		progress.markCompleted()
		c.record(utils.FetchResult{
			Task:     task,
			Strategy: task.Strategy,
			Err:      fmt.Errorf("%w: %v", utils.ErrUnexpected, r),
		})
	}()

	result := c.runTask(ctx, workerID, task)
	snap := progress.markCompleted()
	c.record(result)
	counted = true
	c.reporter.TaskFinished(result, snap)
}

func (c *Coordinator) record(result utils.FetchResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if result.OK() {
		c.report.Succeeded = append(c.report.Succeeded, result)
	} else {
		c.report.Failed = append(c.report.Failed, result)
	}
}

// runTask converts a panic inside the fetch path into a failed result so the worker keeps going.
func (c *Coordinator) runTask(ctx context.Context, workerID int, task utils.DownloadTask) (result utils.FetchResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("op", "scheduler/coordinator").
				Int("worker", workerID).
				Str("task", task.ID).
				Str("url", task.URL).
				Str("stack", string(debug.Stack())).
				Msgf("unexpected panic while fetching: %v", r)
			result = utils.FetchResult{
				Task:     task,
				Strategy: task.Strategy,
				Err:      fmt.Errorf("%w: %v", utils.ErrUnexpected, r),
			}
		}
	}()
	c.reporter.TaskStarted(task)
	return c.fetcher.Fetch(ctx, task, c.maxAttempts, func(downloaded, total int64) {
		c.reporter.TaskProgress(task, downloaded, total)
	})
}
