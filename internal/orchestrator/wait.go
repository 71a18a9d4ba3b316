package orchestrator

import (
	"fmt"
	"time"

	"github.com/jonathan/partner-intake/internal/runctx"
	"github.com/jonathan/partner-intake/internal/runstate"
	"github.com/jonathan/partner-intake/internal/types"
)

// WaitKind says what, if anything, a run is blocked on.
type WaitKind string

const (
	WaitNone            WaitKind = "none"
	WaitInitialUpload   WaitKind = "initial_upload"
	WaitCorrectedUpload WaitKind = "corrected_upload"
	WaitStaffApproval   WaitKind = "staff_approval"
	WaitManual          WaitKind = "manual_intervention"
)

// WaitCondition is derived from freshly written run state after every pass.
type WaitCondition struct {
	Kind   WaitKind
	RunID  string
	Dir    string    // folder a new upload is expected in
	Since  time.Time // corrected uploads must be newer than this
	Reason string
}

// Watching reports whether a new upload in Dir can move the run forward.
func (w WaitCondition) Watching() bool {
	return w.Kind == WaitInitialUpload || w.Kind == WaitCorrectedUpload
}

func (w WaitCondition) String() string {
	switch w.Kind {
	case WaitInitialUpload:
		return fmt.Sprintf("initial upload in %s", w.Dir)
	case WaitCorrectedUpload:
		return fmt.Sprintf("corrected upload in %s newer than %s", w.Dir, w.Since.UTC().Format(time.RFC3339))
	case WaitStaffApproval:
		return "staff approval of the error report"
	case WaitManual:
		return "manual intervention: " + w.Reason
	default:
		return ""
	}
}

// DeriveWait computes what the run is waiting for from its current state.
func DeriveWait(rc *runctx.RunContext, d *runstate.Details) WaitCondition {
	w := WaitCondition{Kind: WaitNone, RunID: rc.RunID()}
	switch {
	case d == nil || d.State == types.StateNew:
		w.Kind = WaitInitialUpload
		w.Dir = rc.UploadsDir()
	case d.PersistentFailure():
		w.Kind = WaitManual
		w.Reason = "resume attempts exhausted"
		if d.Resume != nil && d.Resume.HaltReason != "" {
			w.Reason = d.Resume.HaltReason
		}
	case d.State == types.StateHaltedApprovalRejected:
		w.Kind = WaitManual
		w.Reason = "error report rejected by staff"
		if d.Resume != nil && d.Resume.HaltReason != "" {
			w.Reason = d.Resume.HaltReason
		}
	case d.State == types.StateHaltedValidationErrors:
		w.Kind = WaitStaffApproval
	case d.State == types.StateAwaitingPartnerUpload, d.State == types.StateResumedValidationFailedAgain:
		w.Kind = WaitCorrectedUpload
		w.Dir = rc.UploadsDir()
		if d.Resume != nil {
			w.Since = d.Resume.LastCorrectedFileMtime
		}
	}
	return w
}
