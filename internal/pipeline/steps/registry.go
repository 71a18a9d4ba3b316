// Package steps defines the orchestrator's step kinds and the registry that describes them.
package steps

import (
	"fmt"
)

// Kind identifies one orchestrator step. Each kind has exactly one handler in the executor.
type Kind string

const (
	KindInspectRunStatus           Kind = "inspect_run_status"
	KindIngestAndValidateInitial   Kind = "ingest_and_validate_initial"
	KindResumeFromCorrectedFile    Kind = "resume_from_corrected_file"
	KindPublishErrorReportInternal Kind = "publish_error_report_internal"
	KindPublishErrorReportPartner  Kind = "publish_error_report_partner"
	KindWaitForInitialUpload       Kind = "wait_for_initial_upload"
	KindWaitForPartnerCorrection   Kind = "wait_for_partner_correction"
	KindHandlePersistentFailure    Kind = "handle_persistent_failure"
)

// Step categories
const (
	CategoryBookkeeping = "bookkeeping"
	CategoryPipeline    = "pipeline"
	CategoryApproval    = "approval"
	CategoryRetry       = "retry"
)

// StepDefinition defines metadata for an orchestrator step
type StepDefinition struct {
	Kind        Kind
	Category    string
	Description string
	// Wait steps end the current drive; the loop resumes on the next file event or poll tick.
	Wait bool
	// Steps that need a candidate file path.
	NeedsFile bool
}

// StepRegistry holds all step definitions
var StepRegistry = map[Kind]StepDefinition{
	KindInspectRunStatus: {
		Kind:        KindInspectRunStatus,
		Category:    CategoryBookkeeping,
		Description: "Inspect run status from the evidence bundle",
	},
	KindIngestAndValidateInitial: {
		Kind:        KindIngestAndValidateInitial,
		Category:    CategoryPipeline,
		Description: "Ingest, validate and canonicalize the partner's initial upload",
		NeedsFile:   true,
	},
	KindResumeFromCorrectedFile: {
		Kind:        KindResumeFromCorrectedFile,
		Category:    CategoryPipeline,
		Description: "Resume the run from the partner's corrected upload",
		NeedsFile:   true,
	},
	KindPublishErrorReportInternal: {
		Kind:        KindPublishErrorReportInternal,
		Category:    CategoryApproval,
		Description: "Publish the error report internally and request staff approval",
	},
	KindPublishErrorReportPartner: {
		Kind:        KindPublishErrorReportPartner,
		Category:    CategoryRetry,
		Description: "Publish the latest error report to the partner folder",
	},
	KindWaitForInitialUpload: {
		Kind:        KindWaitForInitialUpload,
		Category:    CategoryPipeline,
		Description: "Wait for the partner's initial upload",
		Wait:        true,
	},
	KindWaitForPartnerCorrection: {
		Kind:        KindWaitForPartnerCorrection,
		Category:    CategoryRetry,
		Description: "Wait for the partner to upload a corrected file",
		Wait:        true,
	},
	KindHandlePersistentFailure: {
		Kind:        KindHandlePersistentFailure,
		Category:    CategoryRetry,
		Description: "Mark the run as a persistent failure for manual follow-up",
	},
}

// Lookup returns the definition of a step kind.
func Lookup(kind Kind) (StepDefinition, error) {
	def, ok := StepRegistry[kind]
	if !ok {
		return StepDefinition{}, fmt.Errorf("unknown step: %s", kind)
	}
	return def, nil
}

// IsWait reports whether the kind is a wait step.
func (k Kind) IsWait() bool {
	return StepRegistry[k].Wait
}

// Step is one planned unit of work.
type Step struct {
	Kind   Kind   `json:"kind"`
	Reason string `json:"reason"`
	File   string `json:"file,omitempty"`
}

// New builds a step after checking that the kind is registered and that a file is supplied when needed.
func New(kind Kind, reason, file string) (Step, error) {
	def, err := Lookup(kind)
	if err != nil {
		return Step{}, err
	}
	if def.NeedsFile && file == "" {
		return Step{}, &MissingFileError{Kind: kind}
	}
	return Step{Kind: kind, Reason: reason, File: file}, nil
}

// MissingFileError is returned when a file-driven step is planned without a file.
type MissingFileError struct {
	Kind Kind
}

func (e *MissingFileError) Error() string {
	return fmt.Sprintf("step %s requires a file", e.Kind)
}
