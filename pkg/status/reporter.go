// Package status implements the live run-status reporter.
//
// The reporter is a pure observer: it runs on its own goroutine, polls a
// snapshot function at a fixed wall-clock interval, and overwrites (never
// appends) a status file. It never mutates state owned by the foreground
// worker, and its own I/O failures are logged, not fatal to the run.
package status

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/scribeworks/mediascribe/pkg/runstate"
)

// DefaultInterval is the default poll interval.
const DefaultInterval = 2 * time.Second

// Snapshot is one observation of run progress. Produced by the
// foreground worker's atomic counters; reading it must not block.
type Snapshot struct {
	// Stage is the stage currently running.
	Stage string

	// Waiting is true before the description stage has started.
	Waiting bool

	// Total is the number of items the stage will consider.
	Total int

	// Processed, Skipped, Failed are the current counters.
	Processed int
	Skipped   int
	Failed    int

	// StartedAt is when the stage began processing.
	StartedAt time.Time
}

// SnapshotFunc returns the current progress observation.
type SnapshotFunc func() Snapshot

// Surface is the JSON shape written to the status file.
type Surface struct {
	Stage      string  `json:"stage"`
	Message    string  `json:"message"`
	Total      int     `json:"total"`
	Processed  int     `json:"processed"`
	Skipped    int     `json:"skipped"`
	Failed     int     `json:"failed"`
	Percent    float64 `json:"percent"`
	ElapsedSec float64 `json:"elapsed_seconds"`
	ETASec     float64 `json:"eta_seconds"`
	UpdatedAt  string  `json:"updated_at"`
}

// Reporter periodically writes a status surface for one run.
type Reporter struct {
	path     string
	interval time.Duration
	snap     SnapshotFunc
	log      *zap.Logger

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewReporter creates a reporter writing to path every interval.
// A zero interval uses DefaultInterval.
func NewReporter(path string, interval time.Duration, snap SnapshotFunc, log *zap.Logger) *Reporter {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Reporter{
		path:     path,
		interval: interval,
		snap:     snap,
		log:      log,
		stop:     make(chan struct{}),
	}
}

// Start launches the polling goroutine. It writes once immediately (the
// waiting message when the stage has not begun), then on every tick, and
// once more on stop so the final counts are always on disk.
func (r *Reporter) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		r.writeOnce()

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				r.writeOnce()
				return
			case <-r.stop:
				r.writeOnce()
				return
			case <-ticker.C:
				r.writeOnce()
			}
		}
	}()
}

// Stop halts polling, writes the final surface, and waits for the
// goroutine to exit. Safe to call more than once.
func (r *Reporter) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
	r.wg.Wait()
}

// writeOnce renders the current snapshot and overwrites the status file
// atomically. Write failures are logged and otherwise ignored.
func (r *Reporter) writeOnce() {
	s := r.snap()
	surface := render(s, time.Now())
	if err := runstate.WriteJSONAtomic(r.path, surface); err != nil {
		r.log.Warn("status write failed", zap.String("path", r.path), zap.Error(err))
	}
}

// render computes the derived fields for a snapshot.
func render(s Snapshot, now time.Time) Surface {
	surface := Surface{
		Stage:     s.Stage,
		Total:     s.Total,
		Processed: s.Processed,
		Skipped:   s.Skipped,
		Failed:    s.Failed,
		UpdatedAt: now.UTC().Format(time.RFC3339),
	}

	if s.Waiting {
		surface.Message = "waiting for description stage to start"
		return surface
	}

	done := s.Processed + s.Skipped + s.Failed
	if s.Total > 0 {
		surface.Percent = 100 * float64(done) / float64(s.Total)
	}

	if !s.StartedAt.IsZero() {
		elapsed := now.Sub(s.StartedAt)
		surface.ElapsedSec = elapsed.Seconds()

		// ETA = elapsed ÷ items-done × items-remaining. Skipped items
		// complete instantly, so the rate uses processed+failed only.
		worked := s.Processed + s.Failed
		remaining := s.Total - done
		if worked > 0 && remaining > 0 {
			perItem := elapsed / time.Duration(worked)
			surface.ETASec = (perItem * time.Duration(remaining)).Seconds()
		}
	}

	if done >= s.Total && s.Total > 0 {
		surface.Message = "complete"
	} else {
		surface.Message = "describing"
	}
	return surface
}
