package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/tanq16/mirrorget/internal/utils"
)

// BatchProgress is the only state workers share besides the queue. All access goes through mu.
type BatchProgress struct {
	mu        sync.Mutex
	total     int
	completed int
	startTime time.Time
}

func newBatchProgress(total int) *BatchProgress {
	return &BatchProgress{total: total, startTime: time.Now()}
}

// markCompleted records one finished task and returns the state right after it.
func (p *BatchProgress) markCompleted() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.completed < p.total {
		p.completed++
	}
	return p.snapshotLocked()
}

func (p *BatchProgress) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

func (p *BatchProgress) snapshotLocked() Snapshot {
	elapsed := time.Since(p.startTime)
	s := Snapshot{
		Total:     p.total,
		Completed: p.completed,
		Elapsed:   elapsed,
		ETA:       -1,
	}
	if secs := elapsed.Seconds(); secs > 0 {
		s.Rate = float64(p.completed) / secs
	}
	if s.Rate > 0 {
		s.ETA = time.Duration(float64(p.total-p.completed) / s.Rate * float64(time.Second))
	}
	return s
}

type Snapshot struct {
	Total     int
	Completed int
	Elapsed   time.Duration
	Rate      float64       // tasks per second
	ETA       time.Duration // -1 until a rate is known
}

func (s Snapshot) Percent() float64 {
	if s.Total == 0 {
		return 100
	}
	return float64(s.Completed) / float64(s.Total) * 100
}

func (s Snapshot) String() string {
	eta := "--:--"
	if s.ETA >= 0 {
		eta = utils.FormatClock(s.ETA)
	}
	width := len(fmt.Sprint(s.Total))
	return fmt.Sprintf("[%*d/%d] %5.1f%% | %s elapsed | %.2f it/s | ETA %s",
		width, s.Completed, s.Total, s.Percent(), utils.FormatClock(s.Elapsed), s.Rate, eta)
}
