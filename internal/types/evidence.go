package types

import (
	"encoding/json"
	"time"
)

// Manifest field values.
const (
	HITLHalted                    = "halted"
	ApprovalApproved              = "approved"
	ApprovalRejected              = "rejected"
	OrchestratorPersistentFailure = "persistent_failure"

	DataClassificationInternal = "Internal"
	PIIHandlingRedacted        = "redacted"
)

// Resume state phases.
const (
	PhaseAwaitingStaffReview       = "awaiting_staff_review"
	PhaseAwaitingPartnerCorrection = "awaiting_partner_correction"
	PhaseApprovalRejected          = "approval_rejected"
	PhaseCompleted                 = "completed"
	PhasePersistentFailure         = "persistent_failure"
)

// NullableString is a string that serializes as JSON null when empty.
type NullableString string

// MarshalJSON implements json.Marshaler.
func (s NullableString) MarshalJSON() ([]byte, error) {
	if s == "" {
		return []byte("null"), nil
	}
	return json.Marshal(string(s))
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *NullableString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = ""
		return nil
	}
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*s = NullableString(v)
	return nil
}

// EvidenceManifest is the per-run manifest.json. Its presence means the run has executed at least once.
type EvidenceManifest struct {
	RunID                  string         `json:"run_id"`
	Agent                  string         `json:"agent"`
	Platform               string         `json:"platform"`
	DataClassification     string         `json:"data_classification"`
	PIIHandling            string         `json:"pii_handling"`
	Model                  NullableString `json:"model"`
	HITLStatus             NullableString `json:"hitl_status"`
	StaffApprovalStatus    NullableString `json:"staff_approval_status"`
	ResumeAvailable        bool           `json:"resume_available"`
	OrchestratorStatus     NullableString `json:"orchestrator_status"`
	LastOrchestratorAction string         `json:"last_orchestrator_action,omitempty"`

	// Secure link bookkeeping; the access code itself is never stored here.
	SecureLinkURL       string     `json:"secure_link_url,omitempty"`
	SecureLinkCodeHash  string     `json:"secure_link_code_hash,omitempty"`
	SecureLinkExpiresAt *time.Time `json:"secure_link_expires_at,omitempty"`
	PartnerReportPath   string     `json:"partner_report_path,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Halted reports whether the last pipeline pass halted for human attention.
func (m *EvidenceManifest) Halted() bool {
	return m != nil && m.HITLStatus == HITLHalted
}

// PersistentFailure reports whether the retry ceiling has already been declared.
func (m *EvidenceManifest) PersistentFailure() bool {
	return m != nil && m.OrchestratorStatus == OrchestratorPersistentFailure
}

// ResumeState is the per-run resume_state.json, created when the first correction cycle begins.
type ResumeState struct {
	RunID                  string      `json:"run_id"`
	OriginalFilePath       string      `json:"original_file_path"`
	PartnerErrorReportPath string      `json:"partner_error_report_path"`
	LastCorrectedFilePath  string      `json:"last_corrected_file_path,omitempty"`
	LastCorrectedFileMtime time.Time   `json:"last_corrected_file_mtime"`
	ResumeAttemptCount     int         `json:"resume_attempt_count"`
	ValidationPassed       bool        `json:"validation_passed"`
	HaltReason             string      `json:"halt_reason,omitempty"`
	CurrentPhase           string      `json:"current_phase"`
	PartnerName            string      `json:"partner_name"`
	Quarter                string      `json:"quarter"`
	Year                   string      `json:"year,omitempty"`
	ValidationViolations   []Violation `json:"validation_violations,omitempty"`
	UpdatedAt              time.Time   `json:"updated_at"`
}

// FileSignature is a content fingerprint of a candidate upload: its normalized header keys and mtime.
type FileSignature struct {
	Path    string    `json:"path"`
	Columns []string  `json:"columns"` // sorted, normalized
	ModTime time.Time `json:"mtime"`
}

// HasAll reports whether every key is among the signature's columns.
func (s FileSignature) HasAll(keys []string) bool {
	set := make(map[string]struct{}, len(s.Columns))
	for _, c := range s.Columns {
		set[c] = struct{}{}
	}
	for _, k := range keys {
		if _, ok := set[k]; !ok {
			return false
		}
	}
	return true
}
