package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jonathan/partner-intake/internal/approval"
	"github.com/jonathan/partner-intake/internal/evidence"
	"github.com/jonathan/partner-intake/internal/pipeline"
	"github.com/jonathan/partner-intake/internal/pipeline/steps"
	"github.com/jonathan/partner-intake/internal/retry"
	"github.com/jonathan/partner-intake/internal/runctx"
	"github.com/jonathan/partner-intake/internal/runstate"
	"github.com/jonathan/partner-intake/internal/types"
	"go.uber.org/zap"
)

// Execution is the result of executing one plan.
type Execution struct {
	Outcomes  []evidence.StepOutcome
	Halted    bool
	Waiting   bool
	Rejection *approval.RejectedError
}

// Last returns the outcome of the last executed step.
func (e *Execution) Last() *evidence.StepOutcome {
	if e == nil || len(e.Outcomes) == 0 {
		return nil
	}
	return &e.Outcomes[len(e.Outcomes)-1]
}

type handler func(ctx context.Context, rc *runctx.RunContext, rec *evidence.Recorder, step steps.Step, plan *Plan, exec *Execution) (*types.ToolResult, error)

// Executor runs planned steps. Every step kind has exactly one handler.
type Executor struct {
	store    *runstate.Store
	adapter  *pipeline.Adapter
	gate     *approval.Gate
	policy   *retry.Policy
	handlers map[steps.Kind]handler
}

// NewExecutor creates an Executor.
func NewExecutor(store *runstate.Store, adapter *pipeline.Adapter, gate *approval.Gate, policy *retry.Policy) *Executor {
	if policy == nil {
		policy = retry.NewPolicy(0)
	}
	e := &Executor{store: store, adapter: adapter, gate: gate, policy: policy}
	e.handlers = map[steps.Kind]handler{
		steps.KindInspectRunStatus:           e.inspect,
		steps.KindIngestAndValidateInitial:   e.ingestInitial,
		steps.KindResumeFromCorrectedFile:    e.resume,
		steps.KindPublishErrorReportInternal: e.publishInternal,
		steps.KindPublishErrorReportPartner:  e.publishPartner,
		steps.KindWaitForInitialUpload:       e.wait,
		steps.KindWaitForPartnerCorrection:   e.wait,
		steps.KindHandlePersistentFailure:    e.persistentFailure,
	}
	return e
}

// Execute runs the plan's steps in order. A halted result or a wait step ends the plan; the returned
// error is reserved for cancellation and failures to read or write run state.
func (e *Executor) Execute(ctx context.Context, rc *runctx.RunContext, rec *evidence.Recorder, plan *Plan) (*Execution, error) {
	exec := &Execution{}
	for _, step := range plan.Steps {
		if err := ctx.Err(); err != nil {
			return exec, err
		}
		h, ok := e.handlers[step.Kind]
		if !ok {
			return exec, fmt.Errorf("no handler for step %s", step.Kind)
		}

		start := map[string]any{"reason": step.Reason}
		if step.File != "" {
			start["file"] = filepath.Base(step.File)
		}
		_ = rec.StepStart(string(step.Kind), start)
		res, err := h(ctx, rc, rec, step, plan, exec)
		if res == nil {
			reason := "no result"
			if err != nil {
				reason = err.Error()
			}
			res = types.Blocked(fmt.Sprintf("%s failed", step.Kind), reason)
		}
		_ = rec.StepEnd(string(step.Kind), res)

		exec.Outcomes = append(exec.Outcomes, evidence.StepOutcome{Kind: step.Kind, OK: !res.Halted(), Summary: res.Summary})
		if err != nil {
			exec.Halted = true
			return exec, fmt.Errorf("%s: %w", step.Kind, err)
		}
		e.recordAction(rc, step.Kind)

		if step.Kind.IsWait() {
			exec.Waiting = true
			break
		}
		if res.Halted() {
			rc.Logger.Info("step halted", zap.String("step", string(step.Kind)), zap.Strings("blockers", res.Blockers))
			exec.Halted = true
			break
		}
	}
	return exec, nil
}

// recordAction stores the last acting step in the manifest. Bookkeeping and wait steps are not recorded.
func (e *Executor) recordAction(rc *runctx.RunContext, kind steps.Kind) {
	if kind == steps.KindInspectRunStatus || kind.IsWait() {
		return
	}
	m, err := e.store.LoadManifest(rc.RunID())
	if err != nil {
		if !errors.Is(err, runstate.ErrNotFound) {
			rc.Logger.Warn("failed to read manifest", zap.Error(err))
		}
		return
	}
	if m.LastOrchestratorAction == string(kind) {
		return
	}
	m.LastOrchestratorAction = string(kind)
	if err := e.store.SaveManifest(m); err != nil {
		rc.Logger.Warn("failed to record orchestrator action", zap.String("action", string(kind)), zap.Error(err))
	}
}

func (e *Executor) inspect(_ context.Context, _ *runctx.RunContext, _ *evidence.Recorder, _ steps.Step, plan *Plan, _ *Execution) (*types.ToolResult, error) {
	data := map[string]any{
		"state":                string(plan.State),
		"resume_attempt_count": plan.Details.ResumeAttemptCount(),
	}
	if r := plan.Details.Resume; r != nil {
		data["current_phase"] = r.CurrentPhase
		data["halt_reason"] = r.HaltReason
	}
	return types.Succeeded(fmt.Sprintf("Run status: %s", plan.State), data), nil
}

func (e *Executor) ingestInitial(ctx context.Context, rc *runctx.RunContext, rec *evidence.Recorder, step steps.Step, _ *Plan, _ *Execution) (*types.ToolResult, error) {
	out, err := e.adapter.RunInitial(ctx, rc, rec, step.File)
	if err != nil {
		return nil, err
	}
	return out.Result(), nil
}

func (e *Executor) resume(ctx context.Context, rc *runctx.RunContext, rec *evidence.Recorder, step steps.Step, _ *Plan, _ *Execution) (*types.ToolResult, error) {
	info, err := os.Stat(step.File)
	if err != nil {
		return types.Blocked("Corrected file unavailable", err.Error()), nil
	}
	out, err := e.adapter.Resume(ctx, rc, rec, step.File, info.ModTime())
	if err != nil {
		return nil, err
	}
	return out.Result(), nil
}

func (e *Executor) publishInternal(ctx context.Context, rc *runctx.RunContext, rec *evidence.Recorder, _ steps.Step, _ *Plan, exec *Execution) (*types.ToolResult, error) {
	out, err := e.gate.Run(ctx, rc, rec)
	if err != nil {
		return nil, err
	}
	exec.Rejection = out.Rejection
	return out.Result, nil
}

func (e *Executor) publishPartner(ctx context.Context, rc *runctx.RunContext, rec *evidence.Recorder, _ steps.Step, _ *Plan, _ *Execution) (*types.ToolResult, error) {
	out, err := e.gate.PublishToPartner(ctx, rc, rec)
	if err != nil {
		return nil, err
	}
	return out.Result, nil
}

// wait reports what the run is waiting for, with error counts from the resume state.
func (e *Executor) wait(_ context.Context, rc *runctx.RunContext, _ *evidence.Recorder, step steps.Step, _ *Plan, _ *Execution) (*types.ToolResult, error) {
	data := map[string]any{"waiting": true}
	resume, err := e.store.LoadResumeState(rc.RunID())
	if err != nil {
		if !errors.Is(err, runstate.ErrNotFound) {
			rc.Logger.Warn("failed to read resume state", zap.Error(err))
		}
		return types.Succeeded(fmt.Sprintf("Waiting for %s", step.Kind), data), nil
	}

	violations := types.Violations{Violations: resume.ValidationViolations}
	errorCount := violations.ErrorCount()
	data["error_count"] = errorCount
	data["warning_count"] = violations.WarningCount()
	data["resume_attempt_count"] = resume.ResumeAttemptCount
	data["validation_passed"] = resume.ValidationPassed

	summary := fmt.Sprintf("Waiting for %s", step.Kind)
	switch {
	case errorCount > 0 && resume.ResumeAttemptCount > 0:
		summary = fmt.Sprintf("Waiting for partner correction (attempt %d): %d errors still present", resume.ResumeAttemptCount+1, errorCount)
	case errorCount > 0:
		summary = fmt.Sprintf("Waiting for partner correction: %d errors found", errorCount)
	}
	return types.Succeeded(summary, data), nil
}

func (e *Executor) persistentFailure(_ context.Context, rc *runctx.RunContext, _ *evidence.Recorder, _ steps.Step, plan *Plan, _ *Execution) (*types.ToolResult, error) {
	return e.policy.HandlePersistentFailure(e.store, rc.RunID(), plan.Details.ResumeAttemptCount())
}
