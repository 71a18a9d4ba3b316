package reporting

import (
	"bytes"
	"context"
	"fmt"
	htmltemplate "html/template"
	"strings"
	"text/template"

	"github.com/jonathan/partner-intake/internal/types"
	"go.uber.org/zap"
)

// Placeholders used in the staff preview in place of partner credentials.
const (
	LinkPlaceholder = "[Secure link will be provided after staff approval]"
	CodePlaceholder = "[Will be provided after staff approval]"
)

// SummaryRequest is the PII-free context handed to a Summarizer.
type SummaryRequest struct {
	Partner      string
	Quarter      string
	Year         string
	ErrorCount   int
	WarningCount int
	Categories   []CategoryCount
}

// Summarizer writes a short professional paragraph describing validation results.
type Summarizer interface {
	Summarize(ctx context.Context, req SummaryRequest) (string, error)
}

// EmailInput carries everything an email needs. SecureLinkURL and AccessCode stay empty for the preview.
type EmailInput struct {
	Partner        string
	Quarter        string
	Year           string
	Violations     types.Violations
	SecureLinkURL  string
	AccessCode     string
	UploadLocation string
}

// Email is a generated notification in text and HTML form.
type Email struct {
	Subject        string
	Text           string
	HTML           string
	ErrorCount     int
	WarningCount   int
	LLMSummaryUsed bool
	Preview        bool
}

// Result converts the email into the tool-call result.
func (e *Email) Result() *types.ToolResult {
	source := "raw summary"
	if e.LLMSummaryUsed {
		source = "LLM summary"
	}
	kind := "final"
	if e.Preview {
		kind = "preview"
	}
	return types.Succeeded(
		fmt.Sprintf("Generated %s email with %d errors and %d warnings (%s)", kind, e.ErrorCount, e.WarningCount, source),
		map[string]any{
			"email_subject":    e.Subject,
			"error_count":      e.ErrorCount,
			"warning_count":    e.WarningCount,
			"llm_summary_used": e.LLMSummaryUsed,
			"preview":          e.Preview,
		})
}

// EmailGenerator renders partner emails, optionally asking a Summarizer for the opening paragraph.
type EmailGenerator struct {
	summarizer Summarizer
	logger     *zap.Logger
}

// NewEmailGenerator creates an EmailGenerator. summarizer may be nil.
func NewEmailGenerator(summarizer Summarizer, logger *zap.Logger) *EmailGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmailGenerator{summarizer: summarizer, logger: logger}
}

// Preview renders the staff preview. It never carries the secure link or access code,
// whatever the input holds.
func (g *EmailGenerator) Preview(ctx context.Context, in EmailInput) (*Email, error) {
	in.SecureLinkURL = ""
	in.AccessCode = ""
	email, err := g.render(ctx, in)
	if err != nil {
		return nil, err
	}
	email.Preview = true
	return email, nil
}

// Final renders the partner email after approval; the link and access code are required.
func (g *EmailGenerator) Final(ctx context.Context, in EmailInput) (*Email, error) {
	if in.SecureLinkURL == "" || in.AccessCode == "" {
		return nil, fmt.Errorf("final email requires a secure link and access code")
	}
	return g.render(ctx, in)
}

type emailView struct {
	EmailInput
	Subject      string
	ErrorCount   int
	WarningCount int
	Categories   []CategoryCount
	Summary      string
	Link         string
	LinkHref     htmltemplate.URL // issued by us; file:// links would otherwise be sanitized away
	Code         string
	Upload       string
}

func (g *EmailGenerator) render(ctx context.Context, in EmailInput) (*Email, error) {
	view := emailView{
		EmailInput:   in,
		Subject:      fmt.Sprintf("Action Required: Data Validation Errors - %s %s %s", in.Partner, in.Quarter, in.Year),
		ErrorCount:   in.Violations.ErrorCount(),
		WarningCount: in.Violations.WarningCount(),
		Categories:   CountErrorsByCategory(in.Violations),
		Link:         orDefault(in.SecureLinkURL, LinkPlaceholder),
		Code:         orDefault(in.AccessCode, CodePlaceholder),
		LinkHref:     htmltemplate.URL(in.SecureLinkURL),
		Upload:       orDefault(in.UploadLocation, "[Upload location]"),
	}
	view.Subject = strings.Join(strings.Fields(view.Subject), " ")

	if g.summarizer != nil {
		summary, err := g.summarizer.Summarize(ctx, SummaryRequest{
			Partner:      in.Partner,
			Quarter:      in.Quarter,
			Year:         in.Year,
			ErrorCount:   view.ErrorCount,
			WarningCount: view.WarningCount,
			Categories:   view.Categories,
		})
		if err != nil {
			g.logger.Warn("error summary unavailable, using raw counts", zap.Error(err))
		} else {
			view.Summary = strings.TrimSpace(summary)
		}
	}

	var text, html bytes.Buffer
	if err := textEmail.Execute(&text, view); err != nil {
		return nil, fmt.Errorf("failed to render email text: %w", err)
	}
	if err := htmlEmail.Execute(&html, view); err != nil {
		return nil, fmt.Errorf("failed to render email HTML: %w", err)
	}
	return &Email{
		Subject:        view.Subject,
		Text:           text.String(),
		HTML:           html.String(),
		ErrorCount:     view.ErrorCount,
		WarningCount:   view.WarningCount,
		LLMSummaryUsed: view.Summary != "",
	}, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

var textEmail = template.Must(template.New("email.txt").Parse(`Subject: {{.Subject}}

Dear {{.Partner}},

{{if .Summary -}}
{{.Summary}}
{{- else -}}
We have identified {{.ErrorCount}} validation error(s) and {{.WarningCount}} warning(s) in your quarterly data submission for {{.Quarter}} {{.Year}}.

Error Summary:
{{- range .Categories}}
- {{.Label}}: {{.Count}}
{{- end}}
{{- end}}

To review and correct these errors:
1. Access the error report using this secure link:
   {{.Link}}
2. Access code: {{.Code}}
3. Review the error details in the Excel file (errors are highlighted in red, warnings in yellow)
4. Correct the data in your source file
5. Upload the corrected file to: {{.Upload}}

If you have any questions, please contact the Data Processing Team.

Thank you,
Data Processing Team
`))

var htmlEmail = htmltemplate.Must(htmltemplate.New("email.html").Parse(`<html>
<body>
<p>Dear {{.Partner}},</p>
{{if .Summary}}<p>{{.Summary}}</p>
{{else}}<p>We have identified {{.ErrorCount}} validation error(s) and {{.WarningCount}} warning(s) in your quarterly data submission for {{.Quarter}} {{.Year}}.</p>
<h3>Error Summary:</h3>
<ul>
{{range .Categories}}<li>{{.Label}}: {{.Count}}</li>
{{end}}</ul>
{{end}}<p>To review and correct these errors:</p>
<ol>
<li>Access the error report using this secure link: {{if .SecureLinkURL}}<a href="{{.LinkHref}}">{{.SecureLinkURL}}</a>{{else}}{{.Link}}{{end}}</li>
<li>Access code: {{.Code}}</li>
<li>Review the error details in the Excel file (errors are highlighted in red, warnings in yellow)</li>
<li>Correct the data in your source file</li>
<li>Upload the corrected file to: {{.Upload}}</li>
</ol>
<p>If you have any questions, please contact the Data Processing Team.</p>
<p>Thank you,<br>Data Processing Team</p>
</body>
</html>
`))
