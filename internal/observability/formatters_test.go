package observability

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/jonathan/partner-intake/internal/evidence"
	"github.com/jonathan/partner-intake/internal/pipeline/steps"
	"github.com/jonathan/partner-intake/internal/runstate"
	"github.com/jonathan/partner-intake/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestPrintRunStatus(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	d := &runstate.Details{
		RunID: "acme-q1-minimal-2026",
		State: types.StateAwaitingPartnerUpload,
		Manifest: &types.EvidenceManifest{
			HITLStatus:             types.HITLHalted,
			ResumeAvailable:        true,
			LastOrchestratorAction: "publish_error_report_internal",
		},
		Resume: &types.ResumeState{
			CurrentPhase:       "awaiting_partner_correction",
			ResumeAttemptCount: 1,
			ValidationViolations: []types.Violation{
				{RowIndex: 2, Field: "Zip", Message: "invalid zip code"},
			},
		},
	}

	p.PrintRunStatus(d)
	output := buf.String()

	assert.Contains(t, output, "RUN STATUS")
	assert.Contains(t, output, "acme-q1-minimal-2026")
	assert.Contains(t, output, "AWAITING_PARTNER_UPLOAD")
	assert.Contains(t, output, "Approval: -")
	assert.Contains(t, output, "awaiting_partner_correction")
	assert.Contains(t, output, "Open violations: 1")
	assert.Contains(t, output, "row 2 Zip: invalid zip code")
}

func TestPrintRunStatus_NewRun(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintRunStatus(&runstate.Details{RunID: "acme-q1-minimal", State: types.StateNew})
	output := buf.String()

	assert.Contains(t, output, "NEW")
	assert.NotContains(t, output, "HITL")
	assert.NotContains(t, output, "Phase")
}

func TestPrintRunStatus_Nil(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintRunStatus(nil)

	assert.Empty(t, buf.String())
}

func TestPrintRunStatus_TruncatesViolations(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	var violations []types.Violation
	for i := 1; i <= 8; i++ {
		violations = append(violations, types.Violation{RowIndex: i, Field: "Zip", Message: fmt.Sprintf("bad zip %d", i)})
	}
	p.PrintRunStatus(&runstate.Details{
		RunID:  "run",
		State:  types.StateResumedValidationFailedAgain,
		Resume: &types.ResumeState{ValidationViolations: violations},
	})
	output := buf.String()

	assert.Contains(t, output, "bad zip 5")
	assert.NotContains(t, output, "bad zip 6")
	assert.Contains(t, output, "... and 3 more")
}

func TestPrintPlan(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintPlan(types.StateHaltedValidationErrors, []steps.Step{
		{Kind: steps.KindInspectRunStatus, Reason: "Inspect run state"},
		{Kind: steps.KindPublishErrorReportInternal, Reason: "Validation halted; staff review required"},
	})
	output := buf.String()

	assert.Contains(t, output, "PLAN")
	assert.Contains(t, output, "HALTED_VALIDATION_ERRORS")
	assert.Contains(t, output, "1. "+string(steps.KindInspectRunStatus))
	assert.Contains(t, output, "2. "+string(steps.KindPublishErrorReportInternal))
	assert.Contains(t, output, "staff review required")
}

func TestPrintPlan_Empty(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintPlan(types.StateCompletedOK, nil)

	assert.Contains(t, buf.String(), "(nothing to do)")
}

func TestPrintOutcomes(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintOutcomes([]evidence.StepOutcome{
		{Kind: steps.KindIngestAndValidateInitial, OK: false, Summary: "Validation failed with 2 errors"},
		{Kind: steps.KindInspectRunStatus, OK: true},
	})
	output := buf.String()

	assert.Contains(t, output, "✗ "+string(steps.KindIngestAndValidateInitial))
	assert.Contains(t, output, "✓ "+string(steps.KindInspectRunStatus))
	assert.Contains(t, output, "Validation failed with 2 errors")
}

func TestPrintOutcomes_Empty(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintOutcomes(nil)

	assert.Empty(t, buf.String())
}

func TestPrintWait(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintWait("run", "")
	assert.Empty(t, buf.String())

	p.PrintWait("run", "staff approval of the error report")
	assert.Equal(t, "⏳ run: staff approval of the error report\n", buf.String())
}

func TestPrintBox_TruncatesLongLines(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.printBox("TITLE", strings.Repeat("x", 200))

	for _, line := range strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n") {
		assert.Equal(t, boxWidth, len([]rune(line)), "line %q", line)
	}
	assert.Contains(t, buf.String(), "...")
}
