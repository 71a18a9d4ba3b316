package types

// OrchestratorState is the lifecycle state of a run. It is never stored; it is derived from the
// manifest and resume state on every planning pass.
type OrchestratorState string

const (
	StateNew                          OrchestratorState = "NEW"
	StateCompletedOK                  OrchestratorState = "COMPLETED_OK"
	StateHaltedValidationErrors       OrchestratorState = "HALTED_VALIDATION_ERRORS"
	StateHaltedApprovalRejected       OrchestratorState = "HALTED_APPROVAL_REJECTED"
	StateAwaitingPartnerUpload        OrchestratorState = "AWAITING_PARTNER_UPLOAD"
	StateResumedValidationFailedAgain OrchestratorState = "RESUMED_VALIDATION_FAILED_AGAIN"
	StateAwaitingHITL                 OrchestratorState = "AWAITING_HITL"
	StateReadyToResume                OrchestratorState = "READY_TO_RESUME"
)

// Terminal reports whether no automated step can move the run forward.
func (s OrchestratorState) Terminal() bool {
	return s == StateCompletedOK || s == StateHaltedApprovalRejected
}
