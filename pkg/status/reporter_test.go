package status

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scribeworks/mediascribe/pkg/runstate"
)

func TestRender_Waiting(t *testing.T) {
	s := Snapshot{Stage: "describe", Waiting: true}
	surface := render(s, time.Now())

	assert.Equal(t, "waiting for description stage to start", surface.Message)
	assert.Zero(t, surface.Percent)
	assert.Zero(t, surface.ETASec)
}

func TestRender_ProgressAndETA(t *testing.T) {
	now := time.Now()
	s := Snapshot{
		Stage:     "describe",
		Total:     10,
		Processed: 4,
		Failed:    1,
		StartedAt: now.Add(-50 * time.Second),
	}
	surface := render(s, now)

	assert.Equal(t, "describing", surface.Message)
	assert.InDelta(t, 50.0, surface.Percent, 0.01)
	assert.InDelta(t, 50.0, surface.ElapsedSec, 0.5)
	// 5 items worked in 50s, 5 remaining: 50s to go.
	assert.InDelta(t, 50.0, surface.ETASec, 0.5)
}

func TestRender_SkippedItemsExcludedFromRate(t *testing.T) {
	now := time.Now()
	s := Snapshot{
		Stage:     "describe",
		Total:     10,
		Processed: 2,
		Skipped:   4,
		StartedAt: now.Add(-20 * time.Second),
	}
	surface := render(s, now)

	// 2 described in 20s, 4 remaining: 40s to go. The 4 skips are free.
	assert.InDelta(t, 40.0, surface.ETASec, 0.5)
	assert.InDelta(t, 60.0, surface.Percent, 0.01)
}

func TestRender_Complete(t *testing.T) {
	now := time.Now()
	s := Snapshot{
		Stage:     "describe",
		Total:     3,
		Processed: 2,
		Failed:    1,
		StartedAt: now.Add(-time.Second),
	}
	surface := render(s, now)

	assert.Equal(t, "complete", surface.Message)
	assert.InDelta(t, 100.0, surface.Percent, 0.01)
	assert.Zero(t, surface.ETASec)
}

func TestReporter_WritesAndFinalizes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")

	var processed atomic.Int64
	snap := func() Snapshot {
		return Snapshot{
			Stage:     "describe",
			Total:     5,
			Processed: int(processed.Load()),
			StartedAt: time.Now().Add(-time.Second),
		}
	}

	r := NewReporter(path, 10*time.Millisecond, snap, nil)
	r.Start(context.Background())

	// The immediate first write happens before any tick.
	require.Eventually(t, func() bool {
		var s Surface
		return runstate.ReadJSON(path, &s) == nil
	}, time.Second, 5*time.Millisecond)

	processed.Store(5)
	r.Stop()
	r.Stop()

	var s Surface
	require.NoError(t, runstate.ReadJSON(path, &s))
	assert.Equal(t, 5, s.Processed, "final write carries the last counts")
	assert.Equal(t, "complete", s.Message)
	assert.NotEmpty(t, s.UpdatedAt)
}

func TestReporter_StopsOnContextCancel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	ctx, cancel := context.WithCancel(context.Background())

	r := NewReporter(path, 10*time.Millisecond, func() Snapshot {
		return Snapshot{Stage: "describe", Waiting: true}
	}, nil)
	r.Start(ctx)

	cancel()
	r.Stop()

	var s Surface
	require.NoError(t, runstate.ReadJSON(path, &s))
	assert.Equal(t, "describe", s.Stage)
}
