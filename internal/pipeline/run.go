// Package pipeline runs the intake tool sequence (ingest, validate, then canonicalize or report) for one
// partner file and records the outcome in the run's manifest and resume state.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jonathan/partner-intake/internal/canonical"
	"github.com/jonathan/partner-intake/internal/config"
	"github.com/jonathan/partner-intake/internal/evidence"
	"github.com/jonathan/partner-intake/internal/ingestion"
	"github.com/jonathan/partner-intake/internal/reporting"
	"github.com/jonathan/partner-intake/internal/runctx"
	"github.com/jonathan/partner-intake/internal/runstate"
	"github.com/jonathan/partner-intake/internal/types"
	"github.com/jonathan/partner-intake/internal/validation"
	"go.uber.org/zap"
)

// Tool names as they appear in tool_calls.jsonl.
const (
	ToolIngest       = "ingest_partner_file"
	ToolValidate     = "validate_staged_data"
	ToolCanonicalize = "canonicalize_staged_data"
	ToolErrorReport  = "generate_error_report"
	ToolAggregates   = "collect_wsac_aggregates"
)

// Progress categories
const (
	CategoryIngestion  = "ingestion"
	CategoryValidation = "validation"
	CategoryCanonical  = "canonical"
	CategoryReporting  = "reporting"
)

// ProgressEvent represents a progress update during pipeline execution
type ProgressEvent struct {
	Step     string `json:"step"`
	Category string `json:"category"`
	Message  string `json:"message"`
	RunID    string `json:"run_id,omitempty"`
}

// ProgressCallback is called when pipeline progress occurs
type ProgressCallback func(event ProgressEvent)

// Options configures an Adapter.
type Options struct {
	Store            *runstate.Store
	Rules            *validation.RuleSet // default rule set when nil
	PartnerConfigDir string
	Model            string // recorded in the manifest; empty when no LLM is configured
	OnProgress       ProgressCallback
}

// ToolCall is one tool invocation and its result.
type ToolCall struct {
	Tool   string
	Result *types.ToolResult
}

// Outcome is the normalized result of one pipeline pass.
type Outcome struct {
	Halted          bool
	IngestionFailed bool
	Calls           []ToolCall
	Violations      types.Violations
	RowCount        int
	RecordCount     int
	ErrorReportPath string
	CanonicalPath   string
	AggregatesPath  string
	ResumeAttempt   int // set by Resume
}

// Result folds the pass into a single tool result for the orchestrator.
func (o *Outcome) Result() *types.ToolResult {
	summary := "No tools ran"
	if n := len(o.Calls); n > 0 {
		summary = o.Calls[n-1].Result.Summary
	}
	data := map[string]any{
		"row_count":     o.RowCount,
		"error_count":   o.Violations.ErrorCount(),
		"warning_count": o.Violations.WarningCount(),
	}
	if o.RecordCount > 0 {
		data["record_count"] = o.RecordCount
	}
	if o.ResumeAttempt > 0 {
		data["resume_attempt_count"] = o.ResumeAttempt
	}
	if !o.Halted {
		return types.Succeeded(summary, data)
	}

	res := types.Blocked(summary)
	res.Data = data
	for _, c := range o.Calls {
		if c.Result.Halted() && len(c.Result.Blockers) > 0 {
			res.Blockers = c.Result.Blockers
			break
		}
	}
	return res
}

// Adapter runs pipeline passes for any run.
type Adapter struct {
	opts  Options
	store *runstate.Store
	rules *validation.RuleSet
}

// NewAdapter creates an Adapter.
func NewAdapter(opts Options) *Adapter {
	rules := opts.Rules
	if rules == nil {
		rules = validation.DefaultRules()
	}
	return &Adapter{opts: opts, store: opts.Store, rules: rules}
}

// emitProgress calls the progress callback if configured
func (a *Adapter) emitProgress(rc *runctx.RunContext, step, category, message string) {
	if a.opts.OnProgress != nil {
		a.opts.OnProgress(ProgressEvent{
			Step:     step,
			Category: category,
			Message:  message,
			RunID:    rc.RunID(),
		})
	}
}

// RunInitial processes the partner's first upload for a new run and writes a fresh manifest. When
// validation fails the correction cycle begins.
func (a *Adapter) RunInitial(ctx context.Context, rc *runctx.RunContext, rec *evidence.Recorder, path string) (*Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	runID := rc.RunID()

	if !a.store.Exists(runID, runstate.KeyManifest) && a.store.Exists(runID, runstate.KeyResumeState) {
		rc.Logger.Warn("discarding resume state left without a manifest")
		if err := a.store.Delete(runID, runstate.KeyResumeState); err != nil {
			return nil, err
		}
	}

	out, err := a.process(rc, rec, path)
	if err != nil {
		return nil, err
	}

	manifest := runstate.NewManifest(rc.Identity)
	manifest.Model = types.NullableString(a.opts.Model)
	if out.Halted {
		manifest.HITLStatus = types.HITLHalted
		if _, err := a.store.BeginCorrectionCycle(rc.Identity, path, out.ErrorReportPath, out.Violations); err != nil {
			rc.Logger.Warn("failed to start correction cycle", zap.Error(err))
		}
	}
	if err := a.store.SaveManifest(manifest); err != nil {
		rc.Logger.Warn("failed to write manifest", zap.Error(err))
	}
	return out, nil
}

// Resume reprocesses a run from the partner's corrected upload. The attempt counter is incremented
// and persisted before the file is read.
func (a *Adapter) Resume(ctx context.Context, rc *runctx.RunContext, rec *evidence.Recorder, path string, mtime time.Time) (*Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	runID := rc.RunID()

	resume, err := a.store.RecordResumeAttempt(runID, path, mtime)
	if err != nil {
		return nil, fmt.Errorf("record resume attempt: %w", err)
	}
	rc.Logger.Info("resuming from corrected file",
		zap.String("file", filepath.Base(path)), zap.Int("resume_attempt_count", resume.ResumeAttemptCount))

	out, err := a.process(rc, rec, path)
	if err != nil {
		return nil, err
	}
	out.ResumeAttempt = resume.ResumeAttemptCount

	if _, err := a.store.RecordResumeOutcome(runID, !out.Halted, out.Violations, out.ErrorReportPath); err != nil {
		rc.Logger.Warn("failed to record resume outcome", zap.Error(err))
	}

	update := func(m *types.EvidenceManifest) {
		if a.opts.Model != "" {
			m.Model = types.NullableString(a.opts.Model)
		}
		if out.Halted {
			m.HITLStatus = types.HITLHalted
			m.ResumeAvailable = true
			return
		}
		m.HITLStatus = ""
		m.ResumeAvailable = false
	}
	if _, err := a.store.UpdateManifest(runID, update); errors.Is(err, runstate.ErrNotFound) {
		manifest := runstate.NewManifest(rc.Identity)
		update(manifest)
		err = a.store.SaveManifest(manifest)
		if err != nil {
			rc.Logger.Warn("failed to write manifest", zap.Error(err))
		}
	} else if err != nil {
		rc.Logger.Warn("failed to update manifest", zap.Error(err))
	}
	return out, nil
}

// process runs ingest, validate and then canonicalize or report. Tool failures become blockers in the
// outcome; only configuration problems are returned as errors.
func (a *Adapter) process(rc *runctx.RunContext, rec *evidence.Recorder, path string) (*Outcome, error) {
	parsing, err := config.LoadPartnerParsing(a.opts.PartnerConfigDir, rc.Identity.Partner)
	if err != nil {
		return nil, err
	}
	out := &Outcome{}
	record := func(tool string, res *types.ToolResult) {
		out.Calls = append(out.Calls, ToolCall{Tool: tool, Result: res})
	}

	var table *ingestion.StagedTable
	res := rec.Track(ToolIngest, map[string]any{"file": filepath.Base(path)}, func() *types.ToolResult {
		t, err := ingestion.IngestPartnerFile(path, parsing)
		if err != nil {
			return types.Blocked("Ingestion failed", err.Error())
		}
		table = t
		return t.Result()
	})
	record(ToolIngest, res)
	a.emitProgress(rc, ToolIngest, CategoryIngestion, res.Summary)

	if table == nil {
		out.IngestionFailed = true
		out.Violations = types.Violations{Violations: []types.Violation{{
			RowIndex: types.FileLevelRow,
			Field:    "file",
			Severity: types.SeverityError,
			Message:  "File could not be read: " + res.Blockers[0],
		}}}
	} else {
		out.RowCount = table.RowCount()
		validator := validation.NewValidator(a.rules, rc.Now)
		res = rec.Track(ToolValidate, nil, func() *types.ToolResult {
			out.Violations = validator.Validate(table)
			return validation.Result(out.Violations)
		})
		record(ToolValidate, res)
		a.emitProgress(rc, ToolValidate, CategoryValidation, res.Summary)
	}

	if len(out.Violations.Violations) > 0 {
		if err := reporting.WriteValidationReport(rc.OutputPath(runctx.ValidationReportFile), out.Violations); err != nil {
			rc.Logger.Warn("failed to write validation report", zap.Error(err))
		}
	}

	if out.Violations.ErrorCount() > 0 {
		out.Halted = true
		agg := a.collectAggregates(rc, rec, out, table)
		res = rec.Track(ToolErrorReport, nil, func() *types.ToolResult {
			report, err := reporting.WriteErrorReport(rc.OutputPath(runctx.ErrorReportFile), table, out.Violations, agg)
			if err != nil {
				return types.Blocked("Error report generation failed", err.Error())
			}
			out.ErrorReportPath = report.Path
			return report.Result()
		})
		record(ToolErrorReport, res)
		a.emitProgress(rc, ToolErrorReport, CategoryReporting, res.Summary)
		return out, nil
	}

	res = rec.Track(ToolCanonicalize, nil, func() *types.ToolResult {
		ds, err := canonical.Canonicalize(table)
		if err != nil {
			return types.Blocked("Canonicalization failed", err.Error())
		}
		outPath := rc.OutputPath(runctx.CanonicalFile)
		if err := canonical.WriteCSV(outPath, ds); err != nil {
			rc.Logger.Warn("failed to write canonical output", zap.Error(err))
		} else {
			out.CanonicalPath = outPath
		}
		out.RecordCount = len(ds.Records)
		return canonical.Result(ds)
	})
	record(ToolCanonicalize, res)
	a.emitProgress(rc, ToolCanonicalize, CategoryCanonical, res.Summary)
	out.Halted = res.Halted()
	return out, nil
}

// collectAggregates totals the staged rows for staff review and the report's quarterly sheet. A file left
// by an earlier attempt is removed when there is nothing to total.
func (a *Adapter) collectAggregates(rc *runctx.RunContext, rec *evidence.Recorder, out *Outcome, table *ingestion.StagedTable) *canonical.Aggregates {
	outPath := rc.OutputPath(runctx.AggregatesFile)
	if table == nil || table.RowCount() == 0 {
		if err := os.Remove(outPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			rc.Logger.Warn("failed to remove stale aggregates", zap.Error(err))
		}
		return nil
	}

	var agg *canonical.Aggregates
	res := rec.Track(ToolAggregates, nil, func() *types.ToolResult {
		collected, err := canonical.CollectAggregates(table)
		if err != nil {
			return types.Blocked("Aggregate collection failed", err.Error())
		}
		agg = collected
		if err := canonical.WriteAggregates(outPath, collected); err != nil {
			rc.Logger.Warn("failed to write aggregates", zap.Error(err))
		} else {
			out.AggregatesPath = outPath
		}
		return collected.Result()
	})
	out.Calls = append(out.Calls, ToolCall{Tool: ToolAggregates, Result: res})
	a.emitProgress(rc, ToolAggregates, CategoryReporting, res.Summary)
	return agg
}
