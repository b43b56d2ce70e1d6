// Package pipeline orchestrates description runs.
//
// The orchestrator sequences preparation → description → record
// emission, owns the run state, and persists it atomically on every
// stage transition so an interrupted run can be resumed. The description
// stage alone supports item-level resume through the progress ledger;
// other stages are skipped on resume only while their declared artifacts
// still exist on disk.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/scribeworks/mediascribe/pkg/failure"
	"github.com/scribeworks/mediascribe/pkg/prepare"
	"github.com/scribeworks/mediascribe/pkg/provider"
	"github.com/scribeworks/mediascribe/pkg/retry"
	"github.com/scribeworks/mediascribe/pkg/runstate"
	"github.com/scribeworks/mediascribe/pkg/source"
	"github.com/scribeworks/mediascribe/pkg/status"
)

// Config is the immutable run configuration, built once at start.
type Config struct {
	// Source enumerates work items (required).
	Source source.Source

	// SourceRoot is recorded in run state for operator clarity.
	SourceRoot string

	// Provider is the backend id (required).
	Provider string

	// Model is the model identifier. Empty uses the backend default.
	Model string

	// PromptStyle names the instruction variant.
	PromptStyle string

	// Prompt is custom instruction text; requires the custom-prompt
	// capability.
	Prompt string

	// OutputRoot is where run directories live (required).
	OutputRoot string

	// Resume continues the most recent run under OutputRoot instead of
	// starting a new one.
	Resume bool

	// Registry supplies backend descriptors and factories (required).
	// Constructed once by the caller; there is no ambient registry.
	Registry *provider.Registry

	// ProviderOpts configures backend construction (credential chain,
	// endpoint, HTTP client).
	ProviderOpts provider.Options

	// Retry tunes the resilience layer. Zero fields use defaults.
	Retry retry.Policy

	// RateLimit caps provider calls per second. Zero means unlimited.
	RateLimit float64

	// StatusInterval is the reporter poll interval. Zero uses the
	// reporter default.
	StatusInterval time.Duration

	// Preparers run during the preparation stage. Nil uses the image
	// passthrough only.
	Preparers []prepare.Preparer

	// Logger receives structured run logging. Nil disables logging.
	Logger *zap.Logger
}

// Result summarizes a completed (or halted) run.
type Result struct {
	// RunID identifies the run directory.
	RunID string

	// Discovered, Processed, Skipped, Failed are the final counts.
	// processed + skipped + failed never exceeds discovered.
	Discovered int
	Processed  int
	Skipped    int
	Failed     int

	// Failures aggregates terminal failures by category. Total matches
	// Failed.
	Failures *failure.Summary
}

// Orchestrator drives one run.
type Orchestrator struct {
	cfg        Config
	descriptor provider.Descriptor
	prompt     string
	layout     runstate.Layout
	state      *runstate.RunState
	counters   counters
	log        *zap.Logger
}

// New validates the configuration and binds the run directory: a fresh
// directory for new runs, the most recent one for resume.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("pipeline: source is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("pipeline: provider registry is required")
	}
	if cfg.OutputRoot == "" {
		return nil, fmt.Errorf("pipeline: output root is required")
	}

	descriptor, err := cfg.Registry.Lookup(cfg.Provider)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	if cfg.Model == "" {
		cfg.Model = descriptor.DefaultModel
	}
	if cfg.PromptStyle == "" {
		cfg.PromptStyle = DefaultPromptStyle
	}
	if cfg.Prompt != "" && !descriptor.SupportsCustomPrompt {
		return nil, fmt.Errorf("pipeline: provider %s does not support custom prompts", descriptor.ID)
	}
	prompt, err := buildPrompt(cfg.PromptStyle, cfg.Prompt)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	if len(cfg.Preparers) == 0 {
		cfg.Preparers = []prepare.Preparer{prepare.NewPassthrough()}
	}

	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	o := &Orchestrator{
		cfg:        cfg,
		descriptor: descriptor,
		prompt:     prompt,
		log:        log,
	}

	if cfg.Resume {
		layout, err := runstate.LatestRun(cfg.OutputRoot)
		if err != nil {
			return nil, fmt.Errorf("pipeline: resume: %w", err)
		}
		state, err := runstate.Load(layout)
		if err != nil {
			return nil, fmt.Errorf("pipeline: resume: %w", err)
		}
		// A resumed run must describe the same tuple, or the one-record-
		// per-(item, provider, model, style) invariant breaks.
		if state.Provider != cfg.Provider || state.Model != cfg.Model || state.PromptStyle != cfg.PromptStyle {
			return nil, fmt.Errorf("pipeline: resume mismatch: run %s used provider=%s model=%s style=%s",
				state.RunID, state.Provider, state.Model, state.PromptStyle)
		}
		o.layout = layout
		o.state = state
		return o, nil
	}

	runID := newRunID()
	o.layout = runstate.NewLayout(cfg.OutputRoot, runID)
	o.state = runstate.New(runID, cfg.SourceRoot, cfg.Provider, cfg.Model, cfg.PromptStyle)
	return o, nil
}

// newRunID builds a sortable run id: timestamp prefix for chronological
// ordering, uuid suffix for uniqueness.
func newRunID() string {
	return time.Now().UTC().Format("20060102T150405Z") + "-" + uuid.NewString()[:8]
}

// RunID returns the bound run identifier.
func (o *Orchestrator) RunID() string {
	return o.state.RunID
}

// Layout returns the bound run directory layout.
func (o *Orchestrator) Layout() runstate.Layout {
	return o.layout
}

// Run executes the pipeline.
//
// Errors returned are terminal for the whole run (*source.InputError,
// *StageFailure, context cancellation); per-item failures are aggregated
// in the Result instead. State persisted before the error always
// suffices for a later resume.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	if err := o.layout.Ensure(); err != nil {
		return nil, err
	}

	// The reporter observes the whole run, not just the description
	// stage: until startDescribe flips the counters it surfaces the
	// waiting message while discovery and preparation proceed.
	reporter := status.NewReporter(o.layout.Status(), o.cfg.StatusInterval, o.counters.snapshot, o.log)
	reporter.Start(ctx)
	defer reporter.Stop()

	o.log.Info("run starting",
		zap.String("run_id", o.state.RunID),
		zap.String("provider", o.cfg.Provider),
		zap.String("model", o.cfg.Model),
		zap.String("prompt_style", o.cfg.PromptStyle),
		zap.Bool("resume", o.cfg.Resume))

	items, err := o.cfg.Source.Discover(ctx)
	if err != nil {
		return nil, err
	}
	o.state.Discovered = len(items)
	if err := o.state.Save(o.layout); err != nil {
		return nil, err
	}
	o.log.Info("discovery complete", zap.Int("items", len(items)))

	items, err = o.runPrepare(ctx, items)
	if err != nil {
		return nil, err
	}

	result, err := o.runDescribe(ctx, items)
	if err != nil {
		return result, err
	}

	o.log.Info("run complete",
		zap.String("run_id", o.state.RunID),
		zap.Int("discovered", result.Discovered),
		zap.Int("processed", result.Processed),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed))
	for _, line := range result.Failures.Lines() {
		o.log.Warn(line)
	}

	return result, nil
}

// runPrepare executes the preparation stage, or restores its result when
// the stage is skippable on resume.
func (o *Orchestrator) runPrepare(ctx context.Context, items []source.WorkItem) ([]source.WorkItem, error) {
	st := o.state.Stage(runstate.StagePrepare)

	if o.cfg.Resume && o.state.StageSkippable(runstate.StagePrepare) {
		o.log.Info("prepare stage skipped (complete, artifacts intact)")
		restored, err := o.restorePrepared(items)
		if err == nil {
			return restored, nil
		}
		// Artifact content went bad between the skippability check and
		// the read; fall through and rerun from scratch.
		o.log.Warn("prepared artifacts unreadable, rerunning prepare", zap.Error(err))
	}

	now := time.Now().UTC()
	st.Status = runstate.StageRunning
	st.StartedAt = &now
	st.Processed, st.Skipped, st.Failed = 0, 0, 0
	if err := o.state.Save(o.layout); err != nil {
		return nil, err
	}

	prepared := make([]source.WorkItem, 0, len(items))
	result := prepare.Result{PathMap: make(map[string]string)}

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		p := o.preparerFor(item.Kind)
		if p == nil {
			// No preparer handles this kind; the item continues as-is and
			// pre-flight validation decides its fate.
			st.Skipped++
			prepared = append(prepared, item)
			continue
		}

		out, err := p.Prepare(ctx, item, o.layout.Prepared())
		if err != nil {
			end := time.Now().UTC()
			st.Status = runstate.StageFailed
			st.EndedAt = &end
			st.Error = err.Error()
			if saveErr := o.state.Save(o.layout); saveErr != nil {
				o.log.Error("state save failed during stage failure", zap.Error(saveErr))
			}
			return nil, &StageFailure{Stage: runstate.StagePrepare, Err: err}
		}
		if out.Identity != item.Identity {
			return nil, &StageFailure{
				Stage: runstate.StagePrepare,
				Err:   fmt.Errorf("preparer %s changed item identity %q to %q", p.Name(), item.Identity, out.Identity),
			}
		}

		st.Processed++
		// Remote items may still lack a local payload here (the source
		// localizes them during describe); only items with an on-disk
		// artifact count as produced.
		if out.Path != "" {
			result.Produced++
			result.PathMap[out.Path] = out.Identity
		}
		prepared = append(prepared, out)
	}

	manifestPath := o.layout.PreparedManifest()
	if err := runstate.WriteJSONAtomic(manifestPath, result); err != nil {
		return nil, &StageFailure{Stage: runstate.StagePrepare, Err: err}
	}

	end := time.Now().UTC()
	st.Status = runstate.StageComplete
	st.EndedAt = &end
	st.Artifacts = []string{manifestPath}
	if err := o.state.Save(o.layout); err != nil {
		return nil, err
	}

	o.log.Info("prepare stage complete",
		zap.Int("prepared", st.Processed),
		zap.Int("passed_through", st.Skipped))
	return prepared, nil
}

// restorePrepared rebuilds stage output from the persisted path map.
func (o *Orchestrator) restorePrepared(items []source.WorkItem) ([]source.WorkItem, error) {
	var result prepare.Result
	if err := runstate.ReadJSON(o.layout.PreparedManifest(), &result); err != nil {
		return nil, err
	}

	byIdentity := make(map[string]string, len(result.PathMap))
	for path, identity := range result.PathMap {
		byIdentity[identity] = path
	}

	restored := make([]source.WorkItem, len(items))
	for i, item := range items {
		if path, ok := byIdentity[item.Identity]; ok {
			item.Path = path
		}
		restored[i] = item
	}
	return restored, nil
}

// preparerFor returns the first preparer supporting the kind, or nil.
func (o *Orchestrator) preparerFor(k source.Kind) prepare.Preparer {
	for _, p := range o.cfg.Preparers {
		if p.Supports(k) {
			return p
		}
	}
	return nil
}
