// Package observability provides formatted output utilities for verbose CLI mode.
package observability

import (
	"fmt"
	"io"
	"strings"

	"github.com/jonathan/partner-intake/internal/evidence"
	"github.com/jonathan/partner-intake/internal/pipeline/steps"
	"github.com/jonathan/partner-intake/internal/runstate"
	"github.com/jonathan/partner-intake/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	lines := strings.Split(content, "\n")
	for _, line := range lines {
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, truncate(line, boxWidth-4))
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// PrintRunStatus outputs the derived state of a run together with its manifest and resume fields.
func (p *Printer) PrintRunStatus(d *runstate.Details) {
	if d == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Run:      %s\n", d.RunID))
	sb.WriteString(fmt.Sprintf("State:    %s\n", d.State))

	if m := d.Manifest; m != nil {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("HITL:     %s\n", orDash(string(m.HITLStatus))))
		sb.WriteString(fmt.Sprintf("Approval: %s\n", orDash(string(m.StaffApprovalStatus))))
		sb.WriteString(fmt.Sprintf("Resume:   %t\n", m.ResumeAvailable))
		if m.LastOrchestratorAction != "" {
			sb.WriteString(fmt.Sprintf("Last:     %s\n", m.LastOrchestratorAction))
		}
		if m.SecureLinkExpiresAt != nil {
			sb.WriteString(fmt.Sprintf("Link exp: %s\n", m.SecureLinkExpiresAt.UTC().Format("2006-01-02 15:04 MST")))
		}
	}

	if r := d.Resume; r != nil {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("Phase:    %s\n", r.CurrentPhase))
		sb.WriteString(fmt.Sprintf("Attempts: %d\n", r.ResumeAttemptCount))
		if r.HaltReason != "" {
			sb.WriteString(fmt.Sprintf("Halted:   %s\n", r.HaltReason))
		}
		if n := len(r.ValidationViolations); n > 0 {
			sb.WriteString(fmt.Sprintf("\nOpen violations: %d\n", n))
			count := min(n, maxItemsToShow)
			for i := 0; i < count; i++ {
				v := r.ValidationViolations[i]
				sb.WriteString(fmt.Sprintf("  ⚠ row %d %s: %s\n", v.RowIndex, v.Field, v.Message))
			}
			if n > maxItemsToShow {
				sb.WriteString(fmt.Sprintf("  ... and %d more\n", n-maxItemsToShow))
			}
		}
	}

	p.printBox("RUN STATUS", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintPlan outputs the steps planned for a run in the given state.
func (p *Printer) PrintPlan(state types.OrchestratorState, plan []steps.Step) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("State: %s\n\n", state))
	if len(plan) == 0 {
		sb.WriteString("(nothing to do)")
	}
	for i, step := range plan {
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, step.Kind))
		if step.Reason != "" {
			sb.WriteString(fmt.Sprintf("   %s\n", step.Reason))
		}
	}
	p.printBox("PLAN", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintOutcomes outputs the result of every executed step.
func (p *Printer) PrintOutcomes(outcomes []evidence.StepOutcome) {
	if len(outcomes) == 0 {
		return
	}

	var sb strings.Builder
	for _, o := range outcomes {
		mark := "✓"
		if !o.OK {
			mark = "✗"
		}
		sb.WriteString(fmt.Sprintf("%s %s\n", mark, o.Kind))
		if o.Summary != "" {
			sb.WriteString(fmt.Sprintf("  %s\n", o.Summary))
		}
	}
	p.printBox("EXECUTED STEPS", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintWait outputs what a run is waiting for. Nothing is printed for runs that wait on nothing.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintWait(runID, waitingFor string) {
	if waitingFor == "" {
		return
	}
	fmt.Fprintf(p.out, "⏳ %s: %s\n", runID, waitingFor)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
