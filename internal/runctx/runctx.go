// Package runctx carries the identity, paths and clock of one run through every component.
package runctx

import (
	"path/filepath"
	"time"

	"github.com/jonathan/partner-intake/internal/logging"
	"github.com/jonathan/partner-intake/internal/types"
	"go.uber.org/zap"
)

// Evidence bundle file names.
const (
	ManifestFile         = "manifest.json"
	ResumeStateFile      = "resume_state.json"
	ToolCallsFile        = "tool_calls.jsonl"
	PlanFile             = "plan.md"
	SummaryFile          = "summary.md"
	SecureLinkCodeFile   = "secure_link_code.txt"
	OutputsDir           = "outputs"
	ValidationReportFile = "validation_report.csv"
	CanonicalFile        = "canonical.csv"
	AggregatesFile       = "wsac_aggregates.json"
	ErrorReportFile      = "partner_error_report.xlsx"
	EmailPreviewFile     = "email_preview.txt"
	PartnerEmailFile     = "partner_email.txt"
	UploadsDir           = "uploads"
)

// RunContext is passed explicitly to every component that acts on a run. It is never stored globally.
type RunContext struct {
	Identity       types.RunIdentity
	RunsRoot       string
	SimulationRoot string
	Now            func() time.Time
	Logger         *zap.Logger
}

// New builds a RunContext. A nil clock uses time.Now.
func New(id types.RunIdentity, runsRoot, simulationRoot string, now func() time.Time, logger *zap.Logger) *RunContext {
	if now == nil {
		now = time.Now
	}
	return &RunContext{
		Identity:       id,
		RunsRoot:       runsRoot,
		SimulationRoot: simulationRoot,
		Now:            now,
		Logger:         logging.ForRun(logger, id.RunID()),
	}
}

// RunID returns the deterministic run key.
func (rc *RunContext) RunID() string {
	return rc.Identity.RunID()
}

// RunDir is the evidence directory for the run.
func (rc *RunContext) RunDir() string {
	return filepath.Join(rc.RunsRoot, rc.RunID())
}

// EvidencePath returns a file inside the evidence directory.
func (rc *RunContext) EvidencePath(name string) string {
	return filepath.Join(rc.RunDir(), name)
}

// OutputPath returns a file inside the evidence outputs directory.
func (rc *RunContext) OutputPath(name string) string {
	return filepath.Join(rc.RunDir(), OutputsDir, name)
}

// UploadsDir is the partner's upload folder in the SharePoint simulation.
func (rc *RunContext) UploadsDir() string {
	return filepath.Join(rc.SimulationRoot, UploadsDir, rc.Identity.Partner)
}
