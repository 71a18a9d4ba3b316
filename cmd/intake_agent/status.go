package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/jonathan/partner-intake/internal/observability"
	"github.com/jonathan/partner-intake/internal/runctx"
	"github.com/jonathan/partner-intake/internal/runstate"
	"github.com/spf13/cobra"
)

func newStatusCmd(g *globals) *cobra.Command {
	var (
		render bool
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "status [run_id]",
		Short: "Show the derived state of runs",
		Long: `Prints the orchestrator state of one run, of the runs selected by --partner/--quarter or the config
file, or of every run under the runs root. State is derived from the evidence manifest and resume
state on every call.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, g)
			if err != nil {
				return err
			}
			store := runstate.NewStore(cfg.RunsRoot, g.logger, nil)

			ids, err := statusRunIDs(store, args, func() ([]string, error) {
				targets, err := resolveTargets(cfg, g)
				if err != nil {
					return nil, err
				}
				out := make([]string, len(targets))
				for i, id := range targets {
					out[i] = id.RunID()
				}
				return out, nil
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(ids) == 0 {
				_, _ = fmt.Fprintf(out, "No runs found under %s\n", cfg.RunsRoot)
				return nil
			}

			printer := observability.NewPrinter(out)
			for _, id := range ids {
				d, err := store.Inspect(id)
				if err != nil {
					return fmt.Errorf("failed to inspect %s: %w", id, err)
				}
				switch {
				case asJSON:
					data, err := json.MarshalIndent(d, "", "  ")
					if err != nil {
						return fmt.Errorf("failed to marshal status: %w", err)
					}
					_, _ = fmt.Fprintln(out, string(data))
				case d.Manifest == nil:
					_, _ = fmt.Fprintf(out, "%s: %s (not started)\n", id, d.State)
				default:
					printer.PrintRunStatus(d)
				}

				if render {
					if err := renderSummary(out, filepath.Join(cfg.RunsRoot, id, runctx.SummaryFile)); err != nil {
						return err
					}
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&render, "render", false, "Render the run's summary.md in the terminal")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the manifest, resume state and derived state as JSON")
	return cmd
}

// statusRunIDs picks the runs to report: the argument, the selected targets, or every run on disk.
func statusRunIDs(store *runstate.Store, args []string, targets func() ([]string, error)) ([]string, error) {
	if len(args) == 1 {
		if strings.ContainsAny(args[0], `/\`) || strings.Contains(args[0], "..") {
			return nil, fmt.Errorf("invalid run id %q", args[0])
		}
		return args, nil
	}
	if ids, err := targets(); err == nil {
		return ids, nil
	}
	return store.List()
}

func renderSummary(out io.Writer, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			_, _ = fmt.Fprintln(out, "(no summary yet)")
			return nil
		}
		return fmt.Errorf("failed to read summary: %w", err)
	}

	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
	if err != nil {
		return fmt.Errorf("failed to create renderer: %w", err)
	}
	rendered, err := r.Render(string(data))
	if err != nil {
		return fmt.Errorf("failed to render summary: %w", err)
	}
	_, _ = fmt.Fprint(out, rendered)
	return nil
}
