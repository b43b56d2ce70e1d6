package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/scribeworks/mediascribe/pkg/failure"
	"github.com/scribeworks/mediascribe/pkg/ledger"
	"github.com/scribeworks/mediascribe/pkg/output"
	"github.com/scribeworks/mediascribe/pkg/provider"
	"github.com/scribeworks/mediascribe/pkg/retry"
	"github.com/scribeworks/mediascribe/pkg/runstate"
	"github.com/scribeworks/mediascribe/pkg/source"
)

// classifyAttempt routes provider errors through the resilience layer:
// transient sentinels retry, everything else returns immediately.
func classifyAttempt(err error) retry.Class {
	if provider.IsTransient(err) {
		return retry.Transient
	}
	return retry.Permanent
}

// runDescribe executes the description stage: the single foreground
// worker walks items in discovery order, consulting the skip-set, the
// rate limiter, pre-flight validation, and the retry layer per item.
//
// A partial Result is returned alongside the error on interruption so
// callers can report progress made before the cancel.
func (o *Orchestrator) runDescribe(ctx context.Context, items []source.WorkItem) (*Result, error) {
	st := o.state.Stage(runstate.StageDescribe)

	skip, err := ledger.LoadSkipSet(o.layout.Ledger())
	if err != nil {
		return nil, &StageFailure{Stage: runstate.StageDescribe, Err: err}
	}
	if len(skip) > 0 {
		o.log.Info("resume skip-set loaded", zap.Int("completed_items", len(skip)))
	}

	led, err := ledger.OpenWriter(o.layout.Ledger())
	if err != nil {
		return nil, &StageFailure{Stage: runstate.StageDescribe, Err: err}
	}
	defer func() { _ = led.Close() }()

	records, err := output.NewFileWriter(o.layout.Records(), o.state.RunID, o.cfg.Provider)
	if err != nil {
		return nil, &StageFailure{Stage: runstate.StageDescribe, Err: err}
	}
	defer func() { _ = records.Close() }()

	describer, err := o.cfg.Registry.New(ctx, o.cfg.Provider, o.cfg.ProviderOpts)
	if err != nil {
		return nil, &StageFailure{Stage: runstate.StageDescribe, Err: err}
	}
	defer func() { _ = describer.Close() }()

	var limiter *rate.Limiter
	if o.cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(o.cfg.RateLimit), 1)
	}

	start := time.Now().UTC()
	st.Status = runstate.StageRunning
	st.StartedAt = &start
	st.Processed, st.Skipped, st.Failed = 0, 0, 0
	st.Error = ""
	if err := o.state.Save(o.layout); err != nil {
		return nil, err
	}

	o.counters.startDescribe(len(items), start)

	summary := failure.NewSummary()
	localizer, _ := o.cfg.Source.(source.Localizer)

	for i := range items {
		item := items[i]

		if ctx.Err() != nil {
			// Interrupted mid-stage: persist what happened and leave the
			// stage running so resume knows to pick it back up.
			return o.finishDescribe(st, summary, start, false, ctx.Err())
		}

		if _, done := skip[item.Identity]; done {
			st.Skipped++
			o.counters.skipped.Add(1)
			continue
		}

		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return o.finishDescribe(st, summary, start, false, err)
			}
		}

		if localizer != nil && item.Path == "" {
			if err := localizer.Localize(ctx, &item); err != nil {
				if ctx.Err() != nil {
					return o.finishDescribe(st, summary, start, false, ctx.Err())
				}
				o.recordFailure(records, summary, st, item.Identity, 0, err)
				continue
			}
		}

		if err := provider.Validate(o.descriptor, item.Identity, item.Path); err != nil {
			o.recordFailure(records, summary, st, item.Identity, 0, err)
			continue
		}

		req := provider.Request{
			Identity:    item.Identity,
			Path:        item.Path,
			Prompt:      o.prompt,
			PromptStyle: o.cfg.PromptStyle,
			Model:       o.cfg.Model,
		}
		desc, attempts, err := retry.Do(ctx, o.cfg.Retry, classifyAttempt,
			func(ctx context.Context) (*provider.Description, error) {
				return describer.Describe(ctx, req)
			})
		if err != nil {
			if ctx.Err() != nil {
				return o.finishDescribe(st, summary, start, false, ctx.Err())
			}
			o.recordFailure(records, summary, st, item.Identity, attempts, err)
			continue
		}

		if attempts > 1 {
			o.log.Info("described after retries",
				zap.String("identity", item.Identity),
				zap.Int("attempts", attempts))
		}

		rec := &output.DescriptionRecord{
			Identity:     desc.Identity,
			Text:         desc.Text,
			Provider:     desc.Provider,
			Model:        desc.Model,
			PromptStyle:  desc.PromptStyle,
			InputTokens:  desc.Usage.InputTokens,
			OutputTokens: desc.Usage.OutputTokens,
			CreatedAt:    desc.CreatedAt,
		}
		if err := records.WriteDescription(rec); err != nil {
			// Output durability failed; do not ledger the item, so a
			// resume regenerates it.
			return o.finishDescribe(st, summary, start, false, &StageFailure{Stage: runstate.StageDescribe, Err: err})
		}
		if err := led.Record(item.Identity); err != nil {
			return o.finishDescribe(st, summary, start, false, &StageFailure{Stage: runstate.StageDescribe, Err: err})
		}
		st.Processed++
		o.counters.processed.Add(1)
	}

	result, err := o.finishDescribe(st, summary, start, true, nil)
	if err != nil {
		return result, err
	}

	sr := &output.SummaryRecord{
		Discovered:        o.state.Discovered,
		Processed:         result.Processed,
		Skipped:           result.Skipped,
		Failed:            result.Failed,
		Duration:          time.Since(start),
		DurationHuman:     time.Since(start).Round(time.Millisecond).String(),
		FailureCategories: summary.Counts(),
	}
	if err := records.WriteSummary(sr); err != nil {
		return result, &StageFailure{Stage: runstate.StageDescribe, Err: err}
	}
	return result, nil
}

// recordFailure handles one item's terminal failure: categorized record,
// failure JSONL line, counters. A record write failure is logged but does
// not abort the run.
func (o *Orchestrator) recordFailure(records output.Writer, summary *failure.Summary, st *runstate.StageState, identity string, attempts int, err error) {
	rec := failure.NewRecord(identity, attempts, err)
	summary.Add(rec)
	st.Failed++
	o.counters.failed.Add(1)

	o.log.Warn("item failed",
		zap.String("identity", identity),
		zap.String("category", string(rec.Category)),
		zap.Int("attempts", attempts),
		zap.Error(err))

	fr := &output.FailureRecord{
		Category: string(rec.Category),
		Message:  rec.Message,
		Identity: rec.Identity,
		Attempts: rec.Attempts,
		Terminal: rec.Terminal,
	}
	if werr := records.WriteFailure(fr); werr != nil {
		o.log.Error("failure record write failed", zap.String("identity", identity), zap.Error(werr))
	}
}

// finishDescribe persists the stage outcome and assembles the Result.
// complete=false leaves the stage running for resume.
func (o *Orchestrator) finishDescribe(st *runstate.StageState, summary *failure.Summary, start time.Time, complete bool, cause error) (*Result, error) {
	if complete {
		end := time.Now().UTC()
		st.Status = runstate.StageComplete
		st.EndedAt = &end
		st.Artifacts = []string{o.layout.Ledger(), o.layout.Records()}
	}
	if err := o.state.Save(o.layout); err != nil {
		o.log.Error("state save failed at stage end", zap.Error(err))
		if cause == nil {
			cause = err
		}
	}

	result := &Result{
		RunID:      o.state.RunID,
		Discovered: o.state.Discovered,
		Processed:  st.Processed,
		Skipped:    st.Skipped,
		Failed:     st.Failed,
		Failures:   summary,
	}

	if !complete {
		o.log.Warn("describe stage halted",
			zap.Int("processed", st.Processed),
			zap.Int("skipped", st.Skipped),
			zap.Int("failed", st.Failed),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(cause))
	}
	return result, cause
}
