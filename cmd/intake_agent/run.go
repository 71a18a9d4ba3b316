package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRunCmd(g *globals) *cobra.Command {
	var noPrompt bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Drive each run once until it completes or waits",
		Long: `Plans and executes every pending step for each run, re-planning after each pass, and stops when
a run completes, halts, or is waiting on a partner upload or staff decision.

Runs come from --partner/--quarter or from the "runs" list in the config file.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd, g)
			if err != nil {
				return err
			}
			targets, err := resolveTargets(cfg, g)
			if err != nil {
				return err
			}

			a, err := buildApp(cmd.Context(), cfg, targets, appOptions{
				noPrompt: noPrompt,
				in:       cmd.InOrStdin(),
				out:      cmd.OutOrStdout(),
			}, g.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			for _, id := range targets {
				res, err := a.loop.Drive(cmd.Context(), id)
				if err != nil {
					return fmt.Errorf("failed to drive %s: %w", id.RunID(), err)
				}
				a.printResult(cmd.OutOrStdout(), res)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&noPrompt, "no-prompt", false, "Never prompt for staff approval; error reports wait for a decision")
	return cmd
}
