package output

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tanq16/mirrorget/internal/scheduler"
	"github.com/tanq16/mirrorget/internal/utils"
)

type TaskOutput struct {
	ID          string
	Label       string
	Status      string
	Message     string
	StreamLines []string
	Complete    bool
	StartTime   time.Time
	LastUpdated time.Time
	Error       error
	Index       int
}

type ErrorReport struct {
	Task  string
	Error error
	Time  time.Time
}

// Manager is the live terminal display for a batch. It implements scheduler.Reporter.
type Manager struct {
	out          io.Writer
	outputs      map[string]*TaskOutput
	mutex        sync.RWMutex
	numLines     int
	maxStreams   int // Max output stream lines per task
	errors       []ErrorReport
	batch        scheduler.Snapshot
	doneCh       chan struct{} // Channel to signal stopping the display
	displayTick  time.Duration // Interval between display updates
	displayWg    sync.WaitGroup
	taskCount    int
	heightLimit  func() int
	stopOnce     sync.Once
	displayStart sync.Once
}

func NewManager() *Manager {
	return newManager(os.Stdout)
}

func newManager(out io.Writer) *Manager {
	return &Manager{
		out:         out,
		outputs:     make(map[string]*TaskOutput),
		errors:      []ErrorReport{},
		maxStreams:  5,
		doneCh:      make(chan struct{}),
		displayTick: 300 * time.Millisecond,
		batch:       scheduler.Snapshot{ETA: -1},
		heightLimit: terminalHeight,
	}
}

// Register adds tasks in batch order so the display lists them as queued before workers pick them up.
func (m *Manager) Register(tasks []utils.DownloadTask) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	for _, task := range tasks {
		m.registerLocked(task)
	}
	m.batch.Total = len(m.outputs)
}

func (m *Manager) registerLocked(task utils.DownloadTask) *TaskOutput {
	if info, exists := m.outputs[task.ID]; exists {
		return info
	}
	m.taskCount++
	info := &TaskOutput{
		ID:          task.ID,
		Label:       task.Label(),
		Status:      "pending",
		StreamLines: []string{},
		StartTime:   time.Now(),
		LastUpdated: time.Now(),
		Index:       m.taskCount,
	}
	m.outputs[task.ID] = info
	return info
}

func (m *Manager) TaskStarted(task utils.DownloadTask) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	info := m.registerLocked(task)
	info.Status = "running"
	info.Message = fmt.Sprintf("Downloading %s", info.Label)
	info.StartTime = time.Now()
	info.LastUpdated = time.Now()
}

func (m *Manager) TaskProgress(task utils.DownloadTask, downloaded, total int64) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	info, exists := m.outputs[task.ID]
	if !exists {
		return
	}
	elapsed := time.Since(info.StartTime).Round(time.Second).Seconds()
	var display string
	if total > 0 {
		sizes := fmt.Sprintf("%s / %s", utils.FormatBytes(uint64(max(0, downloaded))), utils.FormatBytes(uint64(total)))
		display = fmt.Sprintf("%s%s %s %s", progressBar(downloaded, total, 30), mutedStyle.Render(sizes), glyphSep, mutedStyle.Render(utils.FormatSpeed(downloaded, elapsed)))
	} else {
		display = mutedStyle.Render(fmt.Sprintf("%s %s %s", utils.FormatBytes(uint64(max(0, downloaded))), glyphSep, utils.FormatSpeed(downloaded, elapsed)))
	}
	info.StreamLines = []string{display} // only the latest bar is shown
	info.LastUpdated = time.Now()
}

func (m *Manager) TaskFinished(result utils.FetchResult, progress scheduler.Snapshot) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	info := m.registerLocked(result.Task)
	info.StreamLines = []string{}
	info.Complete = true
	info.LastUpdated = time.Now()
	m.batch = progress
	if result.OK() {
		info.Status = "success"
		info.Message = fmt.Sprintf("Completed %s (%d attempt%s, %s)", info.Label, result.Attempts, plural(result.Attempts), result.Strategy)
		return
	}
	info.Status = "error"
	info.Error = result.Err
	info.Message = fmt.Sprintf("Failed %s after %d attempt%s", info.Label, result.Attempts, plural(result.Attempts))
	m.errors = append(m.errors, ErrorReport{
		Task:  info.Label,
		Error: result.Err,
		Time:  time.Now(),
	})
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

func (m *Manager) GetStatusIndicator(status string) string {
	switch status {
	case "success", "pass":
		return okStyle.Render(glyphPass)
	case "error", "fail":
		return failStyle.Render(glyphFail)
	case "warning":
		return warnStyle.Render(glyphWarn)
	case "pending":
		return queuedStyle.Render(glyphQueued)
	default:
		return activeStyle.Render(glyphActive)
	}
}

func (m *Manager) sortTasks() (active, pending, completed []*TaskOutput) {
	var all []*TaskOutput
	for _, info := range m.outputs {
		all = append(all, info)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].Index < all[j].Index
	})
	for _, t := range all {
		if t.Complete {
			completed = append(completed, t)
		} else if t.Status == "pending" {
			pending = append(pending, t)
		} else {
			active = append(active, t)
		}
	}
	return active, pending, completed
}

func styleMessage(status, message string) string {
	switch status {
	case "success":
		return okStyle.Render(message)
	case "error":
		return failStyle.Render(message)
	case "warning":
		return warnStyle.Render(message)
	default:
		return queuedStyle.Render(message)
	}
}

// render draws one frame and returns the number of lines written.
func (m *Manager) render() int {
	availableLines := m.heightLimit() - 3 // Leave some buffer for prompt
	lineCount := 0
	indent := strings.Repeat(" ", 2+4)
	active, pending, completed := m.sortTasks()

	fmt.Fprintf(m.out, "%s%s\n", strings.Repeat(" ", 2), headerStyle.Render(m.batch.String()))
	lineCount++

	for _, info := range active {
		if lineCount >= availableLines {
			break
		}
		elapsed := time.Since(info.StartTime).Round(time.Second)
		fmt.Fprintf(m.out, "%s%s %s %s\n", strings.Repeat(" ", 2), m.GetStatusIndicator(info.Status), mutedStyle.Render(elapsed.String()), styleMessage(info.Status, info.Message))
		lineCount++
		for _, line := range info.StreamLines {
			if lineCount >= availableLines {
				break
			}
			fmt.Fprintf(m.out, "%s%s\n", indent, logStyle.Render(line))
			lineCount++
		}
	}

	if len(pending) > 0 && lineCount < availableLines {
		fmt.Fprintf(m.out, "%s%s %s\n", strings.Repeat(" ", 2), m.GetStatusIndicator("pending"), queuedStyle.Render(fmt.Sprintf("%d queued", len(pending))))
		lineCount++
	}

	// Only the most recent completions fit on screen
	if len(completed) > 8 && lineCount < availableLines {
		fmt.Fprintf(m.out, "%s%s\n", strings.Repeat(" ", 2), activeStyle.Render(fmt.Sprintf("%d earlier downloads hidden ...", len(completed)-8)))
		completed = completed[len(completed)-8:]
		lineCount++
	}
	for _, info := range completed {
		if lineCount >= availableLines {
			break
		}
		totalTime := info.LastUpdated.Sub(info.StartTime).Round(time.Second)
		fmt.Fprintf(m.out, "%s%s %s %s\n", strings.Repeat(" ", 2), m.GetStatusIndicator(info.Status), mutedStyle.Render(totalTime.String()), styleMessage(info.Status, info.Message))
		lineCount++
	}
	return lineCount
}

func (m *Manager) updateDisplay() {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	if m.numLines > 0 {
		fmt.Fprintf(m.out, "\033[%dA\033[J", m.numLines)
	}
	m.numLines = m.render()
}

func (m *Manager) StartDisplay() {
	m.displayStart.Do(func() {
		m.displayWg.Add(1)
		go func() {
			defer m.displayWg.Done()
			ticker := time.NewTicker(m.displayTick)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					m.updateDisplay()
				case <-m.doneCh:
					m.updateDisplay()
					m.ShowSummary()
					return
				}
			}
		}()
	})
}

func (m *Manager) StopDisplay() {
	m.stopOnce.Do(func() {
		close(m.doneCh)
	})
	m.displayWg.Wait()
}

func (m *Manager) displayErrors() {
	if len(m.errors) == 0 {
		return
	}
	fmt.Fprintln(m.out)
	fmt.Fprintln(m.out, strings.Repeat(" ", 2)+failStyle.Bold(true).Render("Errors:"))
	for i, err := range m.errors {
		fmt.Fprintf(m.out, "%s%s %s %s\n",
			strings.Repeat(" ", 2+2),
			failStyle.Render(fmt.Sprintf("%d.", i+1)),
			mutedStyle.Render(fmt.Sprintf("[%s]", err.Time.Format("15:04:05"))),
			failStyle.Render(fmt.Sprintf("Task: %s", err.Task)))
		fmt.Fprintf(m.out, "%s%s\n", strings.Repeat(" ", 2+4), failStyle.Render(fmt.Sprintf("Error: %v", err.Error)))
	}
}

func (m *Manager) ShowSummary() {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	fmt.Fprintln(m.out)
	var success, failures int
	for _, info := range m.outputs {
		if info.Status == "success" {
			success++
		} else if info.Status == "error" {
			failures++
		}
	}
	fmt.Fprintln(m.out, strings.Repeat(" ", 2)+summaryStyle.Render(fmt.Sprintf("Completed %d of %d", success, len(m.outputs))))
	if failures > 0 {
		fmt.Fprintln(m.out, strings.Repeat(" ", 2)+failStyle.Render(fmt.Sprintf("Failed %d of %d", failures, len(m.outputs))))
	}
	m.displayErrors()
	fmt.Fprintln(m.out)
}
