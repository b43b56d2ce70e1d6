package pipeline

import (
	"sync/atomic"
	"time"

	"github.com/scribeworks/mediascribe/pkg/status"
)

// counters holds the foreground worker's progress counts.
//
// The worker is the single writer; the status reporter reads
// concurrently through snapshots, so all fields are atomics.
type counters struct {
	total     atomic.Int64
	processed atomic.Int64
	skipped   atomic.Int64
	failed    atomic.Int64

	// describing flips once the description stage begins; before that
	// the reporter emits a waiting message.
	describing atomic.Bool

	// startedAt is the stage start in UnixNano; zero until describing.
	startedAt atomic.Int64
}

func (c *counters) startDescribe(total int, now time.Time) {
	c.total.Store(int64(total))
	c.startedAt.Store(now.UnixNano())
	c.describing.Store(true)
}

// snapshot implements status.SnapshotFunc over the counters.
func (c *counters) snapshot() status.Snapshot {
	s := status.Snapshot{
		Stage:     "describe",
		Waiting:   !c.describing.Load(),
		Total:     int(c.total.Load()),
		Processed: int(c.processed.Load()),
		Skipped:   int(c.skipped.Load()),
		Failed:    int(c.failed.Load()),
	}
	if ns := c.startedAt.Load(); ns > 0 {
		s.StartedAt = time.Unix(0, ns)
	}
	return s
}
