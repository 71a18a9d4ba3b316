package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jonathan/partner-intake/internal/evidence"
	"github.com/jonathan/partner-intake/internal/logging"
	"github.com/jonathan/partner-intake/internal/retry"
	"github.com/jonathan/partner-intake/internal/runctx"
	"github.com/jonathan/partner-intake/internal/runstate"
	"github.com/jonathan/partner-intake/internal/signature"
	"github.com/jonathan/partner-intake/internal/types"
	"go.uber.org/zap"
)

// DefaultMaxPasses bounds re-planning within one drive.
const DefaultMaxPasses = 6

// Pass is one plan, execute and write-evidence cycle.
type Pass struct {
	Number    int
	Plan      *Plan
	Execution *Execution
	State     types.OrchestratorState // derived after execution
	Wait      WaitCondition
}

// PassCallback observes completed passes.
type PassCallback func(rc *runctx.RunContext, pass Pass)

// DriveResult is the outcome of driving one run.
type DriveResult struct {
	RunID  string
	Passes []Pass
	// Idle is set when neither the plan nor the run state changed since the previous drive.
	Idle  bool
	State types.OrchestratorState
	Wait  WaitCondition
}

// LoopOptions configures a Loop.
type LoopOptions struct {
	Store          *runstate.Store
	Planner        *Planner
	Executor       *Executor
	Policy         *retry.Policy
	RunsRoot       string
	SimulationRoot string
	Targets        []types.RunIdentity
	MaxPasses      int
	Now            func() time.Time
	Logger         *zap.Logger
	OnPass         PassCallback
}

// Loop owns the plan, execute, write evidence, re-plan cycle. Drives are serialized by a single mutex,
// so at most one file is acted upon at a time in the process.
type Loop struct {
	opts    LoopOptions
	logger  *zap.Logger
	mu      sync.Mutex
	settled map[string]string // run id -> fingerprint of the plan and state a drive settled on
}

// NewLoop creates a Loop.
func NewLoop(opts LoopOptions) *Loop {
	if opts.MaxPasses <= 0 {
		opts.MaxPasses = DefaultMaxPasses
	}
	if opts.Policy == nil {
		opts.Policy = retry.NewPolicy(0)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Loop{opts: opts, logger: logging.OrNop(opts.Logger), settled: make(map[string]string)}
}

// Targets returns the configured runs.
func (l *Loop) Targets() []types.RunIdentity {
	return l.opts.Targets
}

// UploadsRoot is the shared uploads folder, partitioned by partner.
func (l *Loop) UploadsRoot() string {
	return filepath.Join(l.opts.SimulationRoot, runctx.UploadsDir)
}

// RunContext builds the context for one run.
func (l *Loop) RunContext(id types.RunIdentity) *runctx.RunContext {
	return runctx.New(id, l.opts.RunsRoot, l.opts.SimulationRoot, l.opts.Now, l.logger)
}

// Drive plans and executes a run until it waits, has nothing to do, halts without changing state or
// reaches MaxPasses. The wait condition is re-derived from the state written by each pass.
func (l *Loop) Drive(ctx context.Context, id types.RunIdentity) (*DriveResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rc := l.RunContext(id)
	rec := evidence.NewRecorder(rc)
	result := &DriveResult{RunID: rc.RunID()}
	var outcomes []evidence.StepOutcome

	for n := 1; n <= l.opts.MaxPasses; n++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		plan, err := l.opts.Planner.Plan(rc)
		if err != nil {
			return result, err
		}
		before := fingerprint(plan, plan.Details)
		if prev, ok := l.settled[rc.RunID()]; ok && n == 1 && prev == before {
			result.Idle = true
			result.State = plan.State
			result.Wait = DeriveWait(rc, plan.Details)
			return result, nil
		}
		_ = rec.WritePlan(plan.State, plan.Steps)

		exec, execErr := l.opts.Executor.Execute(ctx, rc, rec, plan)
		outcomes = append(outcomes, exec.Outcomes...)

		after, err := l.opts.Store.Inspect(rc.RunID())
		if err != nil {
			return result, errors.Join(execErr, err)
		}
		pass := Pass{Number: n, Plan: plan, Execution: exec, State: after.State, Wait: DeriveWait(rc, after)}
		result.Passes = append(result.Passes, pass)
		result.State = pass.State
		result.Wait = pass.Wait
		l.writeSummary(rec, after, outcomes, pass.Wait)
		if l.opts.OnPass != nil {
			l.opts.OnPass(rc, pass)
		}
		if execErr != nil {
			return result, execErr
		}

		settled := fingerprint(plan, after)
		if plan.Empty() || exec.Waiting || (exec.Halted && settled == before) {
			l.settled[rc.RunID()] = settled
			break
		}
	}

	rc.Logger.Info("run driven",
		zap.String("state", string(result.State)),
		zap.Int("passes", len(result.Passes)),
		zap.String("waiting_for", result.Wait.String()))
	return result, nil
}

func (l *Loop) writeSummary(rec *evidence.Recorder, d *runstate.Details, outcomes []evidence.StepOutcome, wait WaitCondition) {
	s := evidence.Summary{
		RunID:             d.RunID,
		State:             d.State,
		ResumeAttempts:    d.ResumeAttemptCount(),
		MaxResumeAttempts: l.opts.Policy.MaxAttempts,
		Steps:             outcomes,
		WaitingFor:        wait.String(),
	}
	if d.Resume != nil {
		s.Phase = d.Resume.CurrentPhase
		s.HaltReason = d.Resume.HaltReason
	}
	_ = rec.WriteSummary(s)
}

// Tick drives every configured run once.
func (l *Loop) Tick(ctx context.Context) error {
	var errs []error
	for _, id := range l.opts.Targets {
		if ctx.Err() != nil {
			break
		}
		if _, err := l.Drive(ctx, id); err != nil {
			l.logger.Error("drive failed", zap.String("run_id", id.RunID()), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// HandleFile drives the runs of the partner whose upload folder contains path.
func (l *Loop) HandleFile(ctx context.Context, path string) error {
	if signature.IgnoredName(path) {
		return nil
	}
	partner := partnerOf(l.UploadsRoot(), path)
	if partner == "" {
		return nil
	}

	var errs []error
	matched := false
	for _, id := range l.opts.Targets {
		if id.Partner != partner {
			continue
		}
		matched = true
		if _, err := l.Drive(ctx, id); err != nil {
			l.logger.Error("drive failed", zap.String("run_id", id.RunID()), zap.Error(err))
			errs = append(errs, err)
		}
	}
	if !matched {
		l.logger.Debug("upload for unconfigured partner", zap.String("partner", partner), zap.String("path", path))
	}
	return errors.Join(errs...)
}

// partnerOf returns the first path element of path below root, or "" when path is outside root.
func partnerOf(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return ""
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[0]
}

// fingerprint identifies a plan together with the run state it was made from. Bookkeeping fields that
// every pass rewrites are left out.
func fingerprint(plan *Plan, d *runstate.Details) string {
	type doc struct {
		Steps    []string
		Manifest *types.EvidenceManifest
		Resume   *types.ResumeState
	}
	var f doc
	for _, s := range plan.Steps {
		f.Steps = append(f.Steps, string(s.Kind)+"|"+s.File)
	}
	if d != nil && d.Manifest != nil {
		m := *d.Manifest
		m.LastOrchestratorAction = ""
		m.UpdatedAt = time.Time{}
		f.Manifest = &m
	}
	if d != nil && d.Resume != nil {
		r := *d.Resume
		r.UpdatedAt = time.Time{}
		f.Resume = &r
	}
	data, err := json.Marshal(f)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
