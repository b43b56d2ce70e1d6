// Package runstate persists per-run pipeline state.
//
// Each run owns one directory under <output-root>/runs/<run-id> holding
// the progress ledger, the run-state file (rewritten atomically on each
// stage transition), the live-overwritten status surface, the append-only
// description-records file, and preparation artifacts.
package runstate

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// File names inside a run directory. These are part of the on-disk
// contract consumed by resume and by the status server.
const (
	StateFile   = "state.json"
	LedgerFile  = "progress.jsonl"
	RecordsFile = "descriptions.jsonl"
	StatusFile  = "status.json"
	PreparedDir = "prepared"
)

// Layout resolves paths inside one run directory.
type Layout struct {
	// Dir is the run directory.
	Dir string
}

// NewLayout returns the layout for a run id under an output root.
func NewLayout(outputRoot, runID string) Layout {
	return Layout{Dir: filepath.Join(outputRoot, "runs", runID)}
}

// Ensure creates the run directory tree.
func (l Layout) Ensure() error {
	if err := os.MkdirAll(l.Prepared(), 0o755); err != nil {
		return fmt.Errorf("create run directory %s: %w", l.Dir, err)
	}
	return nil
}

func (l Layout) State() string    { return filepath.Join(l.Dir, StateFile) }
func (l Layout) Ledger() string   { return filepath.Join(l.Dir, LedgerFile) }
func (l Layout) Records() string  { return filepath.Join(l.Dir, RecordsFile) }
func (l Layout) Status() string   { return filepath.Join(l.Dir, StatusFile) }
func (l Layout) Prepared() string { return filepath.Join(l.Dir, PreparedDir) }

// PreparedManifest is the preparation stage's declared artifact: the
// produced-count and path-map summary written when the stage completes.
func (l Layout) PreparedManifest() string {
	return filepath.Join(l.Prepared(), "manifest.json")
}

// LatestRun returns the layout of the most recent run directory under an
// output root, for resume without an explicit run id. Run ids sort
// chronologically because they carry a timestamp prefix.
func LatestRun(outputRoot string) (Layout, error) {
	runsDir := filepath.Join(outputRoot, "runs")
	entries, err := os.ReadDir(runsDir)
	if err != nil {
		return Layout{}, fmt.Errorf("read runs directory %s: %w", runsDir, err)
	}

	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Name())
		}
	}
	if len(dirs) == 0 {
		return Layout{}, fmt.Errorf("no run directories under %s", runsDir)
	}
	sort.Strings(dirs)
	return Layout{Dir: filepath.Join(runsDir, dirs[len(dirs)-1])}, nil
}
