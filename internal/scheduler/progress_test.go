package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBatchProgressNeverExceedsTotal(t *testing.T) {
	p := newBatchProgress(2)
	p.markCompleted()
	p.markCompleted()
	snap := p.markCompleted()
	require.Equal(t, 2, snap.Completed)
	require.Equal(t, 100.0, snap.Percent())
}

func TestSnapshotRateAndETA(t *testing.T) {
	p := newBatchProgress(4)
	p.startTime = time.Now().Add(-10 * time.Second)
	snap := p.markCompleted()
	require.InDelta(t, 0.1, snap.Rate, 0.01)
	require.InDelta(t, 30*time.Second, snap.ETA, float64(time.Second))
	require.Equal(t, 25.0, snap.Percent())
}

func TestSnapshotString(t *testing.T) {
	s := Snapshot{Total: 10, Completed: 3, Elapsed: 75 * time.Second, Rate: 0.04, ETA: 175 * time.Second}
	require.Equal(t, "[ 3/10]  30.0% | 01:15 elapsed | 0.04 it/s | ETA 02:55", s.String())

	unknown := Snapshot{Total: 1, ETA: -1}
	require.Contains(t, unknown.String(), "ETA --:--")
}

func TestEmptySnapshot(t *testing.T) {
	p := newBatchProgress(0)
	snap := p.Snapshot()
	require.Equal(t, 100.0, snap.Percent())
	require.Equal(t, time.Duration(-1), snap.ETA)
}
