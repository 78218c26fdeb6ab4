package output

import (
	"fmt"
	"io"
	"sync"

	"github.com/tanq16/mirrorget/internal/scheduler"
	"github.com/tanq16/mirrorget/internal/utils"
)

// PlainReporter prints one line per finished task. Used when stdout is not a terminal.
type PlainReporter struct {
	mu  sync.Mutex
	out io.Writer
}

func NewPlainReporter(out io.Writer) *PlainReporter {
	return &PlainReporter{out: out}
}

func (p *PlainReporter) TaskStarted(task utils.DownloadTask) {}

func (p *PlainReporter) TaskProgress(task utils.DownloadTask, downloaded, total int64) {}

func (p *PlainReporter) TaskFinished(result utils.FetchResult, progress scheduler.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if result.OK() {
		fmt.Fprintf(p.out, "%s %s %s -> %s\n", progress, glyphPass, result.Task.Label(), result.Path)
		return
	}
	fmt.Fprintf(p.out, "%s %s %s: %v\n", progress, glyphFail, result.Task.Label(), result.Err)
}
