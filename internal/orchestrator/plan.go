// Package orchestrator drives partner intake runs through plan, execute, write evidence and re-plan,
// either on file-system events or on a polling interval.
package orchestrator

import (
	"fmt"

	"github.com/jonathan/partner-intake/internal/config"
	"github.com/jonathan/partner-intake/internal/logging"
	"github.com/jonathan/partner-intake/internal/pipeline/steps"
	"github.com/jonathan/partner-intake/internal/retry"
	"github.com/jonathan/partner-intake/internal/runctx"
	"github.com/jonathan/partner-intake/internal/runstate"
	"github.com/jonathan/partner-intake/internal/signature"
	"github.com/jonathan/partner-intake/internal/types"
	"go.uber.org/zap"
)

// Plan is the ordered list of steps chosen for a run from its derived state.
type Plan struct {
	RunID   string
	State   types.OrchestratorState
	Details *runstate.Details
	Steps   []steps.Step
}

func (p *Plan) add(kind steps.Kind, reason, file string) error {
	step, err := steps.New(kind, reason, file)
	if err != nil {
		return err
	}
	p.Steps = append(p.Steps, step)
	return nil
}

// Actions returns the planned kinds without the inspect_run_status bookkeeping step.
func (p *Plan) Actions() []steps.Kind {
	var kinds []steps.Kind
	for _, s := range p.Steps {
		if s.Kind == steps.KindInspectRunStatus {
			continue
		}
		kinds = append(kinds, s.Kind)
	}
	return kinds
}

// Empty reports whether nothing but bookkeeping is planned.
func (p *Plan) Empty() bool {
	return len(p.Actions()) == 0
}

// Waits reports whether the plan ends by waiting for a partner upload.
func (p *Plan) Waits() bool {
	return len(p.Steps) > 0 && p.Steps[len(p.Steps)-1].Kind.IsWait()
}

// Planner chooses the next steps for a run.
type Planner struct {
	store            *runstate.Store
	policy           *retry.Policy
	partnerConfigDir string
	logger           *zap.Logger
}

// NewPlanner creates a Planner. Partner parsing configuration is read from partnerConfigDir.
func NewPlanner(store *runstate.Store, policy *retry.Policy, partnerConfigDir string, logger *zap.Logger) *Planner {
	if policy == nil {
		policy = retry.NewPolicy(0)
	}
	return &Planner{store: store, policy: policy, partnerConfigDir: partnerConfigDir, logger: logging.OrNop(logger)}
}

// Matcher returns the signature matcher for the run's partner.
func (p *Planner) Matcher(rc *runctx.RunContext) *signature.Matcher {
	parsing, err := config.LoadPartnerParsing(p.partnerConfigDir, rc.Identity.Partner)
	if err != nil {
		rc.Logger.Warn("invalid partner parsing config, using defaults", zap.Error(err))
		parsing = config.DefaultPartnerParsing(rc.Identity.Partner)
	}
	return signature.NewMatcher(parsing, rc.Logger)
}

// Plan inspects the run and returns its next steps.
//
// New runs get the newest probe-matching upload or a wait. Existing runs start with inspect_run_status;
// a corrected upload takes precedence, otherwise steps follow the derived state.
func (p *Planner) Plan(rc *runctx.RunContext) (*Plan, error) {
	d, err := p.store.Inspect(rc.RunID())
	if err != nil {
		return nil, fmt.Errorf("inspect run %s: %w", rc.RunID(), err)
	}
	plan := &Plan{RunID: rc.RunID(), State: d.State, Details: d}
	matcher := p.Matcher(rc)

	if d.State == types.StateNew {
		if sig := matcher.FindInitial(rc.UploadsDir()); sig != nil {
			return plan, plan.add(steps.KindIngestAndValidateInitial, "initial partner upload detected", sig.Path)
		}
		return plan, plan.add(steps.KindWaitForInitialUpload, "no partner upload in "+rc.UploadsDir(), "")
	}

	if err := plan.add(steps.KindInspectRunStatus, fmt.Sprintf("run is %s", d.State), ""); err != nil {
		return nil, err
	}
	if d.PersistentFailure() {
		return plan, nil
	}

	if p.correctable(d) {
		if sig := matcher.FindCorrected(rc.UploadsDir(), d.Resume); sig != nil {
			return plan, plan.add(steps.KindResumeFromCorrectedFile, "corrected partner upload detected", sig.Path)
		}
	}

	switch d.State {
	case types.StateAwaitingPartnerUpload:
		err = plan.add(steps.KindWaitForPartnerCorrection, "error report sent to partner", "")
	case types.StateHaltedValidationErrors:
		err = plan.add(steps.KindPublishErrorReportInternal, "validation errors need staff review", "")
	case types.StateResumedValidationFailedAgain:
		plan.Steps = append(plan.Steps, p.policy.NextAction(d)...)
	}
	if err != nil {
		return nil, err
	}
	return plan, nil
}

// correctable reports whether a corrected upload may move the run forward. Once the retry ceiling is
// reached no further upload is resumed, however new.
func (p *Planner) correctable(d *runstate.Details) bool {
	if d.Resume == nil || d.Resume.ValidationPassed || p.policy.Exhausted(d.ResumeAttemptCount()) {
		return false
	}
	return d.State != types.StateHaltedApprovalRejected && d.State != types.StateCompletedOK
}
