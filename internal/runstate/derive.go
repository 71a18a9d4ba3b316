package runstate

import (
	"errors"

	"github.com/jonathan/partner-intake/internal/types"
)

// Details is the result of inspecting a run.
type Details struct {
	RunID    string
	State    types.OrchestratorState
	Manifest *types.EvidenceManifest // nil when the run has never executed
	Resume   *types.ResumeState      // nil until a correction cycle begins
}

// ResumeAttemptCount returns the number of resumes recorded, or 0.
func (d *Details) ResumeAttemptCount() int {
	if d == nil || d.Resume == nil {
		return 0
	}
	return d.Resume.ResumeAttemptCount
}

// PersistentFailure reports whether the run has been declared a persistent failure.
func (d *Details) PersistentFailure() bool {
	return d != nil && d.Manifest.PersistentFailure()
}

// Derive computes the run state from its documents. It has no side effects.
//
// A resume state without a manifest is treated as a new run.
func Derive(manifest *types.EvidenceManifest, resume *types.ResumeState) types.OrchestratorState {
	if manifest == nil {
		return types.StateNew
	}

	state := types.StateCompletedOK
	switch {
	case manifest.Halted() && manifest.StaffApprovalStatus == types.ApprovalRejected:
		state = types.StateHaltedApprovalRejected
	case manifest.Halted() && manifest.ResumeAvailable:
		state = types.StateAwaitingPartnerUpload
	case manifest.Halted():
		state = types.StateHaltedValidationErrors
	}

	if resume != nil && resume.ResumeAttemptCount > 0 {
		if resume.ValidationPassed {
			state = types.StateCompletedOK
		} else {
			state = types.StateResumedValidationFailedAgain
		}
	}
	return state
}

// Inspect reads a run's manifest and resume state and derives its state.
func (s *Store) Inspect(runID string) (*Details, error) {
	d := &Details{RunID: runID}

	var manifest types.EvidenceManifest
	switch err := s.Get(runID, KeyManifest, &manifest); {
	case err == nil:
		d.Manifest = &manifest
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	var resume types.ResumeState
	switch err := s.Get(runID, KeyResumeState, &resume); {
	case err == nil:
		d.Resume = &resume
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	if d.Manifest == nil && d.Resume != nil {
		s.logger.Warn("resume state without manifest, treating run as new")
	}

	d.State = Derive(d.Manifest, d.Resume)
	return d, nil
}
