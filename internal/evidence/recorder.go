package evidence

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/jonathan/partner-intake/internal/pipeline/steps"
	"github.com/jonathan/partner-intake/internal/runctx"
	"github.com/jonathan/partner-intake/internal/runstate"
	"github.com/jonathan/partner-intake/internal/types"
	"go.uber.org/zap"
)

// Recorder writes evidence for one run. Write failures are logged at Warn and swallowed; every
// method still returns the error so tests can observe it.
type Recorder struct {
	rc *runctx.RunContext
	mu sync.Mutex
}

// NewRecorder creates a Recorder for the run.
func NewRecorder(rc *runctx.RunContext) *Recorder {
	return &Recorder{rc: rc}
}

func (r *Recorder) swallow(err error) error {
	if err == nil {
		return nil
	}
	var we *WriteError
	if !errors.As(err, &we) {
		err = &WriteError{Path: r.rc.RunDir(), Cause: err}
	}
	r.rc.Logger.Warn("evidence write failed", zap.Error(err))
	return err
}

func (r *Recorder) emit(eventType EventType, message string, data map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := NewEvent(eventType, r.rc.RunID(), message, data, r.rc.Now())
	return r.swallow(AppendEvent(r.rc.EvidencePath(runctx.ToolCallsFile), e))
}

// StepStart records that a tool or step is about to run.
func (r *Recorder) StepStart(name string, data map[string]any) error {
	payload := map[string]any{"tool": name}
	for k, v := range data {
		payload[k] = v
	}
	return r.emit(EventStepStart, "Executing "+name, payload)
}

// StepEnd records a tool result. Only scalar metadata from the result reaches the log.
func (r *Recorder) StepEnd(name string, result *types.ToolResult) error {
	payload := map[string]any{"tool": name, "ok": false, "summary": ""}
	if result != nil {
		for k, v := range result.Data {
			payload[k] = v
		}
		payload["ok"] = result.OK
		payload["summary"] = result.Summary
		payload["blocker_count"] = len(result.Blockers)
	}
	return r.emit(EventStepEnd, "Completed "+name, payload)
}

// Track runs fn between a STEP_START and a STEP_END event.
func (r *Recorder) Track(name string, data map[string]any, fn func() *types.ToolResult) *types.ToolResult {
	_ = r.StepStart(name, data)
	result := fn()
	_ = r.StepEnd(name, result)
	return result
}

// WritePlan writes plan.md.
func (r *Recorder) WritePlan(state types.OrchestratorState, plan []steps.Step) error {
	return r.writeFile(runctx.PlanFile, RenderPlan(state, plan))
}

// WriteSummary writes summary.md.
func (r *Recorder) WriteSummary(s Summary) error {
	if s.RunID == "" {
		s.RunID = r.rc.RunID()
	}
	return r.writeFile(runctx.SummaryFile, RenderSummary(s))
}

// WriteSecureLinkCode writes the staff copy of the link and access code. The file is only readable by
// its owner.
func (r *Recorder) WriteSecureLinkCode(url, code string, expiresAt time.Time) error {
	if err := r.writeFile(runctx.SecureLinkCodeFile, RenderSecureLinkCode(url, code, expiresAt)); err != nil {
		return err
	}
	return r.swallow(os.Chmod(r.rc.EvidencePath(runctx.SecureLinkCodeFile), 0o600))
}

func (r *Recorder) writeFile(name, content string) error {
	path := r.rc.EvidencePath(name)
	if err := runstate.WriteFileAtomic(path, []byte(content)); err != nil {
		return r.swallow(&WriteError{Path: path, Cause: err})
	}
	return nil
}

// Events returns the run's recorded events.
func (r *Recorder) Events() ([]Event, error) {
	events, err := ReadEvents(r.rc.EvidencePath(runctx.ToolCallsFile))
	if err != nil {
		return nil, fmt.Errorf("read tool calls: %w", err)
	}
	return events, nil
}
