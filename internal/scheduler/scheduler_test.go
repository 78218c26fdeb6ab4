package scheduler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tanq16/mirrorget/internal/fetch"
	"github.com/tanq16/mirrorget/internal/utils"
)

// funcFetcher adapts a function to TaskFetcher.
type funcFetcher func(ctx context.Context, task utils.DownloadTask, maxAttempts int) utils.FetchResult

func (f funcFetcher) Fetch(ctx context.Context, task utils.DownloadTask, maxAttempts int, _ utils.ProgressFunc) utils.FetchResult {
	return f(ctx, task, maxAttempts)
}

type recordingReporter struct {
	mu        sync.Mutex
	started   map[string]int
	finished  map[string]int
	completed []int
}

func newRecordingReporter() *recordingReporter {
	return &recordingReporter{started: map[string]int{}, finished: map[string]int{}}
}

func (r *recordingReporter) TaskStarted(task utils.DownloadTask) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started[task.ID]++
}

func (r *recordingReporter) TaskProgress(utils.DownloadTask, int64, int64) {}

func (r *recordingReporter) TaskFinished(result utils.FetchResult, progress Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished[result.Task.ID]++
	r.completed = append(r.completed, progress.Completed)
}

func makeTasks(n int) []utils.DownloadTask {
	tasks := make([]utils.DownloadTask, n)
	for i := range tasks {
		tasks[i] = utils.NewDownloadTask(fmt.Sprintf("https://example.invalid/%d.bin", i), "/tmp", "", utils.StrategyHTTPStream, "")
	}
	return tasks
}

func TestCompletedCountMatchesBatchSize(t *testing.T) {
	for _, n := range []int{0, 1, 7, 40} {
		for _, k := range []int{1, 2, 16} {
			t.Run(fmt.Sprintf("n=%d/k=%d", n, k), func(t *testing.T) {
				var inFlight sync.Map
				var overlap atomic.Bool
				fetcher := funcFetcher(func(ctx context.Context, task utils.DownloadTask, _ int) utils.FetchResult {
					if _, loaded := inFlight.LoadOrStore(task.ID, true); loaded {
						overlap.Store(true)
					}
					time.Sleep(time.Millisecond)
					inFlight.Delete(task.ID)
					return utils.FetchResult{Task: task, Path: task.URL, Attempts: 1}
				})
				reporter := newRecordingReporter()
				c := New(fetcher, Options{Workers: k, MaxAttempts: 3, Reporter: reporter})
				require.Equal(t, StatePending, c.State())

				report, err := c.Run(context.Background(), makeTasks(n))
				require.NoError(t, err)
				require.Equal(t, StateDone, c.State())
				require.Equal(t, n, report.Total)
				require.Equal(t, n, report.Completed)
				require.Len(t, report.Succeeded, n)
				require.Empty(t, report.Failed)
				require.False(t, overlap.Load())

				require.Len(t, reporter.finished, n)
				for _, count := range reporter.finished {
					require.Equal(t, 1, count)
				}
				sort.Ints(reporter.completed)
				for i, v := range reporter.completed {
					require.Equal(t, i+1, v)
				}
			})
		}
	}
}

// flakyFetcher fails a URL a set number of times before succeeding.
type flakyFetcher struct {
	mu       sync.Mutex
	failures map[string]int
	calls    map[string]int
}

func (f *flakyFetcher) Fetch(ctx context.Context, url, destDir, fileName string, onProgress utils.ProgressFunc) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[url]++
	if f.failures[url] > 0 {
		f.failures[url]--
		return "", fmt.Errorf("%w: connection reset", utils.ErrNetwork)
	}
	return filepath.Join(destDir, utils.FileNameFromURL(url)), nil
}

func TestBatchRecoversFlakyTask(t *testing.T) {
	tasks := makeTasks(3)
	flaky := &flakyFetcher{failures: map[string]int{tasks[1].URL: 2}, calls: map[string]int{}}
	c := New(fetch.NewRetryingFetcher(nil, flaky, 0), Options{Workers: 2, MaxAttempts: 3})

	report, err := c.Run(context.Background(), tasks)
	require.NoError(t, err)
	require.Len(t, report.Succeeded, 3)
	require.Empty(t, report.Failed)
	require.Equal(t, 3, report.Completed)
	require.Equal(t, 3, flaky.calls[tasks[1].URL])
	for _, res := range report.Succeeded {
		if res.Task.ID == tasks[1].ID {
			require.Equal(t, 3, res.Attempts)
		}
	}
}

func TestBatchReportsPermanentFailure(t *testing.T) {
	var missingHits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.bin" {
			missingHits.Add(1)
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("payload " + r.URL.Path))
	}))
	defer srv.Close()

	dir := t.TempDir()
	var tasks []utils.DownloadTask
	for _, name := range []string{"a.bin", "b.bin", "missing.bin", "c.bin", "d.bin"} {
		tasks = append(tasks, utils.NewDownloadTask(srv.URL+"/"+name, dir, "", utils.StrategyHTTPStream, ""))
	}
	c := New(fetch.New(srv.Client(), fetch.Options{}), Options{Workers: 3, MaxAttempts: 3})

	report, err := c.Run(context.Background(), tasks)
	require.NoError(t, err)
	require.Len(t, report.Succeeded, 4)
	require.Len(t, report.Failed, 1)
	require.Equal(t, []string{tasks[2].ID}, report.FailedIDs())
	require.ErrorIs(t, report.Failed[0].Err, utils.ErrNetwork)
	require.Equal(t, int32(3), missingHits.Load())
	require.Equal(t, 5, report.Completed)
	for _, res := range report.Succeeded {
		require.FileExists(t, res.Path)
	}
	require.NoFileExists(t, filepath.Join(dir, "missing.bin"))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 4)
}

func TestWorkerSurvivesPanic(t *testing.T) {
	tasks := makeTasks(4)
	fetcher := funcFetcher(func(ctx context.Context, task utils.DownloadTask, _ int) utils.FetchResult {
		if task.ID == tasks[1].ID {
			var m map[string]int
			m["boom"]++ // nil map write
		}
		return utils.FetchResult{Task: task, Path: task.URL, Attempts: 1}
	})
	c := New(fetcher, Options{Workers: 1, MaxAttempts: 1})

	report, err := c.Run(context.Background(), tasks)
	require.NoError(t, err)
	require.Len(t, report.Succeeded, 3)
	require.Len(t, report.Failed, 1)
	require.ErrorIs(t, report.Failed[0].Err, utils.ErrUnexpected)
	require.Equal(t, 4, report.Completed)
	require.Equal(t, StateDone, c.State())
}

// panickyReporter blows up when told about one chosen task finishing.
type panickyReporter struct {
	*recordingReporter
	failOn string
}

func (r *panickyReporter) TaskFinished(result utils.FetchResult, progress Snapshot) {
	if result.Task.ID == r.failOn {
		panic("reporter exploded")
	}
	r.recordingReporter.TaskFinished(result, progress)
}

func TestReporterPanicDoesNotStallBatch(t *testing.T) {
	tasks := makeTasks(3)
	fetcher := funcFetcher(func(ctx context.Context, task utils.DownloadTask, _ int) utils.FetchResult {
		return utils.FetchResult{Task: task, Path: task.URL, Attempts: 1}
	})
	reporter := &panickyReporter{recordingReporter: newRecordingReporter(), failOn: tasks[1].ID}
	c := New(fetcher, Options{Workers: 2, MaxAttempts: 1, Reporter: reporter})

	type outcome struct {
		report *BatchReport
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		report, err := c.Run(context.Background(), tasks)
		done <- outcome{report, err}
	}()
	var got outcome
	select {
	case got = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("batch did not finish after reporter panic")
	}
	require.NoError(t, got.err)
	report := got.report
	require.Equal(t, StateDone, c.State())
	require.Equal(t, 3, report.Completed)
	require.Len(t, report.Succeeded, 3)
	require.Empty(t, report.Failed)
	require.Len(t, reporter.finished, 2)
}

func TestCoordinatorIsSingleUse(t *testing.T) {
	fetcher := funcFetcher(func(ctx context.Context, task utils.DownloadTask, _ int) utils.FetchResult {
		return utils.FetchResult{Task: task, Attempts: 1}
	})
	c := New(fetcher, Options{})
	_, err := c.Run(context.Background(), makeTasks(2))
	require.NoError(t, err)
	_, err = c.Run(context.Background(), makeTasks(2))
	require.True(t, errors.Is(err, ErrCoordinatorUsed))
}

func TestFailuresDoNotBlockOtherTasks(t *testing.T) {
	tasks := makeTasks(5)
	release := make(chan struct{})
	var finished atomic.Int32
	fetcher := funcFetcher(func(ctx context.Context, task utils.DownloadTask, _ int) utils.FetchResult {
		if task.ID == tasks[0].ID {
			<-release
			return utils.FetchResult{Task: task, Attempts: 3, Err: utils.ErrTransferFailed}
		}
		finished.Add(1)
		return utils.FetchResult{Task: task, Path: task.URL, Attempts: 1}
	})
	c := New(fetcher, Options{Workers: 2, MaxAttempts: 3})

	done := make(chan *BatchReport)
	go func() {
		report, _ := c.Run(context.Background(), tasks)
		done <- report
	}()
	require.Eventually(t, func() bool { return c.Progress().Completed == 4 }, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, int32(4), finished.Load())
	require.Equal(t, StateRunning, c.State())
	close(release)
	report := <-done
	require.Len(t, report.Failed, 1)
	require.Len(t, report.Succeeded, 4)
}
