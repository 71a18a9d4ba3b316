package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jonathan/partner-intake/internal/config"
	"github.com/jonathan/partner-intake/internal/ingestion"
	"github.com/jonathan/partner-intake/internal/reporting"
	"github.com/jonathan/partner-intake/internal/types"
	"github.com/jonathan/partner-intake/internal/validation"
	"github.com/spf13/cobra"
)

const maxViolationsPrinted = 20

func newValidateCmd(g *globals) *cobra.Command {
	var (
		filePath string
		outPath  string
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Ingest and validate one partner file without touching any run",
		Long: `Parses a partner file with the partner's parsing config and checks it against the validation rules.
Nothing is written to the evidence bundle. Exits with status 1 when the file has errors.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd, g)
			if err != nil {
				return err
			}

			partner := g.partner
			if partner == "" {
				partner = strings.SplitN(strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath)), "_", 2)[0]
			}
			parsing, err := config.LoadPartnerParsing(cfg.PartnerConfigDir, partner)
			if err != nil {
				return fmt.Errorf("failed to load parsing config for %s: %w", partner, err)
			}

			var rules *validation.RuleSet
			if cfg.RulesPath != "" {
				if rules, err = validation.LoadRules(cfg.RulesPath); err != nil {
					return fmt.Errorf("failed to load validation rules: %w", err)
				}
			}

			table, err := ingestion.IngestPartnerFile(filePath, parsing)
			if err != nil {
				return fmt.Errorf("ingestion failed: %w", err)
			}
			violations := validation.NewValidator(rules, nil).Validate(table)

			if outPath != "" {
				if err := reporting.WriteValidationReport(outPath, violations); err != nil {
					return fmt.Errorf("failed to write validation report: %w", err)
				}
			}

			out := cmd.OutOrStdout()
			if asJSON {
				data, err := json.MarshalIndent(violations, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to marshal violations: %w", err)
				}
				_, _ = fmt.Fprintln(out, string(data))
			} else {
				printViolations(cmd, table, violations)
			}

			if err := validation.Check(violations); err != nil {
				_, _ = fmt.Fprintln(out, "Validation failed")
				return err
			}
			_, _ = fmt.Fprintln(out, "Validation passed")
			return nil
		},
	}

	cmd.Flags().StringVarP(&filePath, "file", "f", "", "Partner file to validate (.csv or .txt)")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Write the violations to this CSV report")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print violations as JSON")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

//nolint:errcheck // writing to the terminal
func printViolations(cmd *cobra.Command, table *ingestion.StagedTable, violations types.Violations) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %d rows, %d errors, %d warnings\n",
		filepath.Base(table.SourcePath), table.RowCount(), violations.ErrorCount(), violations.WarningCount())
	for i, v := range violations.Violations {
		if i == maxViolationsPrinted {
			fmt.Fprintf(out, "  ... and %d more\n", len(violations.Violations)-maxViolationsPrinted)
			break
		}
		row := fmt.Sprintf("row %d", v.RowIndex)
		if v.RowIndex == types.FileLevelRow {
			row = "file"
		}
		fmt.Fprintf(out, "  [%s] %s %s: %s\n", v.Severity, row, v.Field, v.Message)
	}
}
