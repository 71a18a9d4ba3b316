package llm

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/jonathan/partner-intake/internal/reporting"
)

const maxSummarySentences = 4

var sentenceEnd = regexp.MustCompile(`[.!?](\s+|$)`)

// ErrorSummarizer writes the opening paragraph of partner emails. It only ever sees counts and
// category labels, never row data.
type ErrorSummarizer struct {
	client Client
	tier   ModelTier
}

// NewErrorSummarizer creates an ErrorSummarizer on top of client.
func NewErrorSummarizer(client Client) *ErrorSummarizer {
	return &ErrorSummarizer{client: client, tier: TierLite}
}

// Model returns the model name recorded in the evidence manifest.
func (s *ErrorSummarizer) Model() string {
	return s.client.GetModel(s.tier)
}

// Summarize implements reporting.Summarizer.
func (s *ErrorSummarizer) Summarize(ctx context.Context, req reporting.SummaryRequest) (string, error) {
	text, err := s.client.GenerateContent(ctx, BuildSummaryPrompt(req), s.tier)
	if err != nil {
		return "", fmt.Errorf("failed to generate error summary: %w", err)
	}
	summary := cleanSummary(text)
	if summary == "" {
		return "", fmt.Errorf("model returned an empty summary")
	}
	return summary, nil
}

// BuildSummaryPrompt constructs the summary prompt from PII-free counts.
func BuildSummaryPrompt(req reporting.SummaryRequest) string {
	var sb strings.Builder

	sb.WriteString("You are a professional data quality analyst writing an email to a partner organization.\n\n")
	sb.WriteString("Context:\n")
	sb.WriteString(fmt.Sprintf("- Partner: %s\n", req.Partner))
	sb.WriteString(fmt.Sprintf("- Quarter: %s %s\n", req.Quarter, req.Year))
	sb.WriteString(fmt.Sprintf("- Total validation errors: %d\n", req.ErrorCount))
	sb.WriteString(fmt.Sprintf("- Total warnings: %d\n\n", req.WarningCount))

	sb.WriteString("Error Summary:\n")
	if len(req.Categories) == 0 {
		sb.WriteString("No errors found\n")
	}
	for _, c := range req.Categories {
		sb.WriteString(fmt.Sprintf("- %s: %d\n", c.Label, c.Count))
	}

	sb.WriteString("\nWrite a concise, professional summary paragraph (2-4 sentences) that:\n")
	sb.WriteString("1. Acknowledges the data submission\n")
	sb.WriteString("2. Clearly states the number and types of validation errors found\n")
	sb.WriteString("3. Emphasizes the importance of data quality for accurate reporting\n")
	sb.WriteString("4. Maintains a supportive, collaborative tone\n\n")
	sb.WriteString("Do NOT include row numbers, personal data, technical jargon, a greeting or a closing.\n")
	sb.WriteString("Return only the paragraph text.\n")

	return sb.String()
}

// cleanSummary strips code fences and quotes, collapses whitespace and keeps at most four sentences.
func cleanSummary(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```text")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.Trim(strings.TrimSpace(text), `"`)
	text = strings.Join(strings.Fields(text), " ")

	ends := sentenceEnd.FindAllStringIndex(text, -1)
	if len(ends) > maxSummarySentences {
		text = strings.TrimSpace(text[:ends[maxSummarySentences-1][1]])
	}
	return text
}
