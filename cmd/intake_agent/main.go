// Package main provides the entry point for the partner intake agent.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/jonathan/partner-intake/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// globals holds the persistent flags shared by every subcommand.
type globals struct {
	configPath       string
	verbose          bool
	runsRoot         string
	simulationRoot   string
	partnerConfigDir string
	rulesPath        string
	platform         string
	year             string
	partner          string
	quarter          string

	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	return buildRootCmd(&globals{})
}

func buildRootCmd(g *globals) *cobra.Command {
	root := &cobra.Command{
		Use:   "intake_agent",
		Short: "Partner data intake orchestrator",
		Long: `Partner intake ingests partner eligibility files, validates them, and runs the human-in-the-loop
correction cycle: staff approve each error report before the partner receives a secure link, and
corrected uploads are picked up and re-validated until the run completes or the retry ceiling is hit.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			logger, err := logging.New(g.verbose)
			if err != nil {
				return err
			}
			g.logger = logger
			return nil
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if g.logger != nil {
				_ = g.logger.Sync()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&g.configPath, "config", "", "Path to config.json file (values can be overridden by other flags)")
	flags.BoolVarP(&g.verbose, "verbose", "v", false, "Debug logging and detailed plan output")
	flags.StringVar(&g.runsRoot, "runs-root", "", "Directory holding one evidence bundle per run")
	flags.StringVar(&g.simulationRoot, "simulation-root", "", "SharePoint simulation root (uploads/, internal/, partner_accessible/)")
	flags.StringVar(&g.partnerConfigDir, "partner-config-dir", "", "Directory of per-partner parsing YAML files")
	flags.StringVar(&g.rulesPath, "rules", "", "Validation rule set YAML (embedded default when empty)")
	flags.StringVar(&g.platform, "platform", "", "Platform component of the run id")
	flags.StringVar(&g.year, "year", "", "Reporting year")
	flags.StringVarP(&g.partner, "partner", "p", "", "Partner to drive (overrides the configured runs)")
	flags.StringVarP(&g.quarter, "quarter", "q", "", "Quarter to drive, required with --partner")

	root.AddCommand(
		newRunCmd(g),
		newWatchCmd(g),
		newStatusCmd(g),
		newValidateCmd(g),
		newServeCmd(g),
	)
	return root
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
