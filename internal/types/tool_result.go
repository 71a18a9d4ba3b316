package types

// ToolResult is the uniform outcome of every tool invocation (ingest, validate, canonicalize,
// report, approval, publish). A result that is not OK, or that carries blockers, halts the pass.
type ToolResult struct {
	OK       bool           `json:"ok"`
	Summary  string         `json:"summary"`
	Data     map[string]any `json:"data,omitempty"`
	Warnings []string       `json:"warnings,omitempty"`
	Blockers []string       `json:"blockers,omitempty"`
}

// Halted reports whether the result stops the current pipeline pass.
func (r *ToolResult) Halted() bool {
	return r == nil || !r.OK || len(r.Blockers) > 0
}

// Succeeded builds an OK result.
func Succeeded(summary string, data map[string]any) *ToolResult {
	if data == nil {
		data = map[string]any{}
	}
	return &ToolResult{OK: true, Summary: summary, Data: data}
}

// Blocked builds a failed result carrying the given blockers.
func Blocked(summary string, blockers ...string) *ToolResult {
	if len(blockers) == 0 {
		blockers = []string{summary}
	}
	return &ToolResult{OK: false, Summary: summary, Data: map[string]any{}, Blockers: blockers}
}
