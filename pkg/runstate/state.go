package runstate

import (
	"fmt"
	"os"
	"time"
)

// Stage names. Order here is the pipeline order.
const (
	StagePrepare  = "prepare"
	StageDescribe = "describe"
)

// StageStatus is the lifecycle state of one pipeline stage.
//
// NOTE: these values are persisted in state.json and are part of the
// stable on-disk contract.
type StageStatus string

const (
	StagePending  StageStatus = "pending"
	StageRunning  StageStatus = "running"
	StageComplete StageStatus = "complete"
	StageFailed   StageStatus = "failed"
)

// StageState tracks one stage's status and counters.
type StageState struct {
	Status    StageStatus `json:"status"`
	Processed int         `json:"processed"`
	Skipped   int         `json:"skipped"`
	Failed    int         `json:"failed"`

	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`

	// Artifacts lists output paths this stage declares. On resume, a
	// complete stage is skipped only while all artifacts still exist.
	Artifacts []string `json:"artifacts,omitempty"`

	// Error holds the failure message for a failed stage.
	Error string `json:"error,omitempty"`
}

// RunState is the mutable, orchestrator-owned state for one run.
//
// The schema is designed for backward-compatible extension (additive
// fields). It is rewritten atomically on every stage transition so an
// interrupted run can always be resumed from the last persisted point.
type RunState struct {
	RunID     string    `json:"run_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Run configuration summary, recorded for resume validation and
	// operator clarity. Intentionally shallow and string-only.
	SourceRoot  string `json:"source_root"`
	Provider    string `json:"provider"`
	Model       string `json:"model"`
	PromptStyle string `json:"prompt_style"`

	Discovered int `json:"discovered"`

	Stages map[string]*StageState `json:"stages"`
}

// New returns a fresh RunState with all stages pending.
func New(runID, sourceRoot, providerID, model, promptStyle string) *RunState {
	now := time.Now().UTC()
	return &RunState{
		RunID:       runID,
		CreatedAt:   now,
		UpdatedAt:   now,
		SourceRoot:  sourceRoot,
		Provider:    providerID,
		Model:       model,
		PromptStyle: promptStyle,
		Stages: map[string]*StageState{
			StagePrepare:  {Status: StagePending},
			StageDescribe: {Status: StagePending},
		},
	}
}

// Stage returns the state for a stage name, creating a pending entry if
// the loaded file predates the stage.
func (s *RunState) Stage(name string) *StageState {
	if s.Stages == nil {
		s.Stages = make(map[string]*StageState)
	}
	st, ok := s.Stages[name]
	if !ok {
		st = &StageState{Status: StagePending}
		s.Stages[name] = st
	}
	return st
}

// StageSkippable reports whether a stage may be skipped on resume: it
// must be complete and every declared artifact must still exist on disk.
func (s *RunState) StageSkippable(name string) bool {
	st := s.Stage(name)
	if st.Status != StageComplete {
		return false
	}
	for _, a := range st.Artifacts {
		if _, err := os.Stat(a); err != nil {
			return false
		}
	}
	return true
}

// Save persists the state atomically into the layout's state file.
func (s *RunState) Save(l Layout) error {
	s.UpdatedAt = time.Now().UTC()
	return WriteJSONAtomic(l.State(), s)
}

// Load reads the persisted state from a run directory.
func Load(l Layout) (*RunState, error) {
	var s RunState
	if err := ReadJSON(l.State(), &s); err != nil {
		return nil, fmt.Errorf("load run state: %w", err)
	}
	return &s, nil
}
