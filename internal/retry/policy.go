// Package retry bounds the partner correction cycle: it decides between waiting for another correction
// and declaring a persistent failure.
package retry

import (
	"fmt"

	"github.com/jonathan/partner-intake/internal/config"
	"github.com/jonathan/partner-intake/internal/pipeline/steps"
	"github.com/jonathan/partner-intake/internal/runstate"
	"github.com/jonathan/partner-intake/internal/types"
)

// PersistentFailureError describes a run that used up its resume attempts. It is terminal and must be
// handled by a person outside the automated loop.
type PersistentFailureError struct {
	RunID       string
	Attempts    int
	MaxAttempts int
}

func (e *PersistentFailureError) Error() string {
	return fmt.Sprintf("run %s failed validation after %d of %d resume attempts; manual intervention required",
		e.RunID, e.Attempts, e.MaxAttempts)
}

// Policy is the retry ceiling for one orchestrator.
type Policy struct {
	MaxAttempts int
}

// NewPolicy returns a Policy. A non-positive ceiling uses config.DefaultMaxResumeAttempts.
func NewPolicy(maxAttempts int) *Policy {
	if maxAttempts <= 0 {
		maxAttempts = config.DefaultMaxResumeAttempts
	}
	return &Policy{MaxAttempts: maxAttempts}
}

// Exhausted reports whether no further resume is allowed.
func (p *Policy) Exhausted(attempts int) bool {
	return attempts >= p.MaxAttempts
}

// NextAction returns the steps for a run whose resume failed validation again. Other states, and runs
// already marked as persistent failures, get no steps.
func (p *Policy) NextAction(d *runstate.Details) []steps.Step {
	if d == nil || d.State != types.StateResumedValidationFailedAgain || d.PersistentFailure() {
		return nil
	}

	attempts := d.ResumeAttemptCount()
	if p.Exhausted(attempts) {
		return []steps.Step{{
			Kind:   steps.KindHandlePersistentFailure,
			Reason: fmt.Sprintf("resume attempts exhausted (%d of %d)", attempts, p.MaxAttempts),
		}}
	}

	wait := steps.Step{
		Kind:   steps.KindWaitForPartnerCorrection,
		Reason: fmt.Sprintf("awaiting correction %d of %d", attempts+1, p.MaxAttempts),
	}
	if d.Manifest != nil && d.Manifest.LastOrchestratorAction == string(steps.KindPublishErrorReportPartner) {
		return []steps.Step{wait}
	}
	return []steps.Step{
		{Kind: steps.KindPublishErrorReportPartner, Reason: fmt.Sprintf("resume attempt %d failed validation", attempts)},
		wait,
	}
}

// HandlePersistentFailure records the terminal outcome. Calling it again is harmless. The returned
// result always halts the pass; the error is non-nil only when the state could not be written.
func (p *Policy) HandlePersistentFailure(store *runstate.Store, runID string, attempts int) (*types.ToolResult, error) {
	pf := &PersistentFailureError{RunID: runID, Attempts: attempts, MaxAttempts: p.MaxAttempts}
	if err := store.MarkPersistentFailure(runID, pf.Error()); err != nil {
		return types.Blocked("Failed to record persistent failure", err.Error()), fmt.Errorf("mark persistent failure: %w", err)
	}

	res := types.Blocked("Run marked as persistent failure", pf.Error())
	res.Data = map[string]any{
		"resume_attempt_count": attempts,
		"max_resume_attempts":  p.MaxAttempts,
		"orchestrator_status":  types.OrchestratorPersistentFailure,
	}
	return res, nil
}
