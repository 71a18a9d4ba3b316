package evidence

import (
	"fmt"
	"strings"
	"time"

	"github.com/jonathan/partner-intake/internal/pipeline/steps"
	"github.com/jonathan/partner-intake/internal/types"
)

// StepOutcome is the result of one executed step as shown in summary.md.
type StepOutcome struct {
	Kind    steps.Kind
	OK      bool
	Summary string
}

// Summary is the content of summary.md.
type Summary struct {
	RunID             string
	State             types.OrchestratorState
	Phase             string
	HaltReason        string
	ResumeAttempts    int
	MaxResumeAttempts int
	Steps             []StepOutcome
	WaitingFor        string
}

// RenderPlan renders plan.md.
func RenderPlan(state types.OrchestratorState, plan []steps.Step) string {
	var sb strings.Builder
	sb.WriteString("# Execution Plan\n\n")
	sb.WriteString(fmt.Sprintf("State: %s\n\n", state))

	if len(plan) == 0 {
		sb.WriteString("No steps planned.\n")
		return sb.String()
	}
	for i, step := range plan {
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, step.Kind))
		if step.Reason != "" {
			sb.WriteString(fmt.Sprintf("   Reason: %s\n", step.Reason))
		}
		if step.File != "" {
			sb.WriteString(fmt.Sprintf("   File: %s\n", step.File))
		}
	}
	return sb.String()
}

// RenderSummary renders summary.md.
func RenderSummary(s Summary) string {
	var sb strings.Builder
	sb.WriteString("# Orchestrator Summary\n\n")
	sb.WriteString(fmt.Sprintf("- **Run ID:** %s\n", s.RunID))
	sb.WriteString(fmt.Sprintf("- **State:** %s\n", s.State))
	if s.Phase != "" {
		sb.WriteString(fmt.Sprintf("- **Phase:** %s\n", s.Phase))
	}
	if s.HaltReason != "" {
		sb.WriteString(fmt.Sprintf("- **Halt Reason:** %s\n", s.HaltReason))
	}
	if s.MaxResumeAttempts > 0 {
		sb.WriteString(fmt.Sprintf("- **Resume Attempts:** %d of %d\n", s.ResumeAttempts, s.MaxResumeAttempts))
	} else {
		sb.WriteString(fmt.Sprintf("- **Resume Attempts:** %d\n", s.ResumeAttempts))
	}
	if s.WaitingFor != "" {
		sb.WriteString(fmt.Sprintf("- **Waiting For:** %s\n", s.WaitingFor))
	}

	sb.WriteString("\n## Steps\n\n")
	if len(s.Steps) == 0 {
		sb.WriteString("No steps executed.\n")
		return sb.String()
	}
	for i, step := range s.Steps {
		status := "ok"
		if !step.OK {
			status = "halted"
		}
		sb.WriteString(fmt.Sprintf("%d. `%s` (%s): %s\n", i+1, step.Kind, status, step.Summary))
	}
	return sb.String()
}

// RenderSecureLinkCode renders the staff copy of the partner's link and access code.
func RenderSecureLinkCode(url, code string, expiresAt time.Time) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Secure link: %s\n", url))
	sb.WriteString(fmt.Sprintf("Access code: %s\n", code))
	if !expiresAt.IsZero() {
		sb.WriteString(fmt.Sprintf("Expires: %s\n", expiresAt.UTC().Format(time.RFC3339)))
	}
	sb.WriteString("Share the access code with the partner separately from the link.\n")
	return sb.String()
}
