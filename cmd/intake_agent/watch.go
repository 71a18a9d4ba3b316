package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonathan/partner-intake/internal/orchestrator"
	"github.com/spf13/cobra"
)

func newWatchCmd(g *globals) *cobra.Command {
	var (
		strategy string
		interval time.Duration
		debounce time.Duration
		noPrompt bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Drive runs continuously as partner uploads arrive",
		Long: `Watches the partner upload folders and drives the affected run whenever a file appears.

The event strategy reacts to filesystem notifications (debounced) and falls back to a full sweep at
startup; the poll strategy drives every run on a fixed interval. Stop with Ctrl-C.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd, g)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("strategy") {
				cfg.Strategy = strategy
			}
			targets, err := resolveTargets(cfg, g)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, cfg, targets, appOptions{
				noPrompt: noPrompt,
				in:       cmd.InOrStdin(),
				out:      cmd.OutOrStdout(),
			}, g.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			pollEvery, settle := watchTimeouts(cfg, interval, debounce)
			switch cfg.Strategy {
			case "poll":
				return orchestrator.NewPoller(a.loop, pollEvery, g.logger).Run(ctx)
			case "event":
				return orchestrator.NewEventWatcher(a.loop, settle, g.logger).Run(ctx)
			default:
				return fmt.Errorf("unknown strategy %q (want event or poll)", cfg.Strategy)
			}
		},
	}

	cmd.Flags().StringVar(&strategy, "strategy", "", "Change detection strategy: event or poll (default from config, event)")
	cmd.Flags().DurationVar(&interval, "poll-interval", 0, "Interval between sweeps for the poll strategy")
	cmd.Flags().DurationVar(&debounce, "debounce", 0, "Quiet period before an event-triggered drive")
	cmd.Flags().BoolVar(&noPrompt, "no-prompt", false, "Never prompt for staff approval; error reports wait for a decision")
	return cmd
}
