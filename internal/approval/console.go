package approval

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jonathan/partner-intake/internal/canonical"
)

const (
	ruleWidth            = 80
	previewLines         = 20
	approvePrompt        = "Approve sending this email to partner? (y/n): "
	commentsPrompt       = "Enter any comments (optional, press Enter to skip): "
	rejectionPrompt      = "Enter rejection reason (required): "
	reasonRequiredNotice = "Rejection reason is required. Please provide a reason."
)

// ConsolePrompter asks for a decision on an interactive terminal.
type ConsolePrompter struct {
	in  *bufio.Reader
	out io.Writer
	now func() time.Time
}

// NewConsolePrompter creates a ConsolePrompter reading from in and writing to out.
func NewConsolePrompter(in io.Reader, out io.Writer, now func() time.Time) *ConsolePrompter {
	if now == nil {
		now = time.Now
	}
	return &ConsolePrompter{in: bufio.NewReader(in), out: out, now: now}
}

// RequestApproval implements Approver. Closed input means nobody can answer and yields
// ErrApprovalUnavailable.
//
//nolint:errcheck // writing to the terminal; errors are not recoverable
func (p *ConsolePrompter) RequestApproval(ctx context.Context, req Request) (*Decision, error) {
	p.printRequest(req)

	for {
		answer, err := p.ask(ctx, approvePrompt)
		if err != nil {
			return nil, err
		}
		switch strings.ToLower(answer) {
		case "y", "yes":
			comments, err := p.ask(ctx, commentsPrompt)
			if err != nil {
				return nil, err
			}
			return p.finish(StatusApproved, comments)
		case "n", "no":
			reason, err := p.ask(ctx, rejectionPrompt)
			if err != nil {
				return nil, err
			}
			if reason == "" {
				fmt.Fprintln(p.out, reasonRequiredNotice)
				continue
			}
			return p.finish(StatusRejected, reason)
		default:
			fmt.Fprintln(p.out, "Please enter 'y' for yes or 'n' for no.")
		}
	}
}

//nolint:errcheck // writing to the terminal; errors are not recoverable
func (p *ConsolePrompter) finish(status Status, comments string) (*Decision, error) {
	d, err := NewDecision(status, comments, p.now())
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(p.out, "\nApproval Status: %s\n", strings.ToUpper(string(status)))
	if comments != "" {
		fmt.Fprintf(p.out, "Staff Comments: %s\n", comments)
	}
	fmt.Fprintln(p.out, strings.Repeat("=", ruleWidth))
	return d, nil
}

func (p *ConsolePrompter) ask(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if _, err := io.WriteString(p.out, prompt); err != nil {
		return "", err
	}
	line, err := p.in.ReadString('\n')
	if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
		return "", fmt.Errorf("%w: %v", ErrApprovalUnavailable, err)
	}
	return strings.TrimSpace(line), nil
}

//nolint:errcheck // writing to the terminal; errors are not recoverable
func (p *ConsolePrompter) printRequest(req Request) {
	rule := strings.Repeat("=", ruleWidth)
	thin := strings.Repeat("-", ruleWidth)

	fmt.Fprintf(p.out, "\n%s\n=== STAFF APPROVAL REQUIRED ===\n%s\n", rule, rule)
	fmt.Fprintf(p.out, "\nPartner: %s\nQuarter: %s", req.Partner, req.Quarter)
	if req.Year != "" {
		fmt.Fprintf(p.out, " %s", req.Year)
	}
	fmt.Fprintf(p.out, "\n\nError Report (local path): %s\n", req.ErrorReportPath)
	if req.InternalReportURL != "" {
		fmt.Fprintf(p.out, "Internal review copy: %s\n", req.InternalReportURL)
	}

	fmt.Fprintln(p.out, "\nError Summary:")
	for _, c := range req.Categories {
		fmt.Fprintf(p.out, "  - %s: %d\n", c.Label, c.Count)
	}
	fmt.Fprintf(p.out, "\n  Total Errors: %d\n  Total Warnings: %d\n", req.ErrorCount, req.WarningCount)
	if req.Aggregates != nil {
		p.printAggregates(req.Aggregates, thin)
	}

	fmt.Fprintf(p.out, "\n%s\nEmail Preview:\n%s\n", thin, thin)
	lines := strings.Split(req.EmailPreview, "\n")
	for i, line := range lines {
		if i == previewLines {
			fmt.Fprintln(p.out, "... (email continues)")
			break
		}
		fmt.Fprintln(p.out, line)
	}
	fmt.Fprintf(p.out, "%s\n\n%s\n", thin, rule)
}

//nolint:errcheck // writing to the terminal; errors are not recoverable
func (p *ConsolePrompter) printAggregates(agg *canonical.Aggregates, thin string) {
	fmt.Fprintf(p.out, "\n%s\nWSAC Aggregates Summary:\n%s\n", thin, thin)
	fmt.Fprintf(p.out, "  Total Participants: %d\n  Total Enrollments: %d\n  Total Employment Placements: %d\n",
		agg.Participants, agg.Enrollments, agg.EmploymentPlacements)
	fmt.Fprintf(p.out, "\n  Status Breakdown:\n    Active: %d\n    Graduated: %d\n    Withdrawn: %d\n",
		agg.Status.Active, agg.Status.Graduated, agg.Status.Withdrawn)
	if agg.WraparoundUsed() {
		fmt.Fprintln(p.out, "\n  Wraparound Services Usage:")
		for _, u := range agg.Wraparound {
			if u.Count > 0 {
				fmt.Fprintf(p.out, "    %s: %d participants\n", u.Name, u.Count)
			}
		}
	}
}
