package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jonathan/partner-intake/internal/approval"
	"github.com/jonathan/partner-intake/internal/config"
	"github.com/jonathan/partner-intake/internal/llm"
	"github.com/jonathan/partner-intake/internal/logging"
	"github.com/jonathan/partner-intake/internal/observability"
	"github.com/jonathan/partner-intake/internal/orchestrator"
	"github.com/jonathan/partner-intake/internal/pipeline"
	"github.com/jonathan/partner-intake/internal/publish"
	"github.com/jonathan/partner-intake/internal/reporting"
	"github.com/jonathan/partner-intake/internal/retry"
	"github.com/jonathan/partner-intake/internal/runctx"
	"github.com/jonathan/partner-intake/internal/runstate"
	"github.com/jonathan/partner-intake/internal/types"
	"github.com/jonathan/partner-intake/internal/validation"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// resolveConfig loads the config file if one was given, applies flag overrides and fills defaults.
func resolveConfig(cmd *cobra.Command, g *globals) (config.Config, error) {
	// Step 1: Load config file if provided
	cfg := &config.Config{}
	if g.configPath != "" {
		loaded, err := config.LoadConfig(g.configPath)
		if err != nil {
			return config.Config{}, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	// Step 2: Override with flags explicitly set on the command line
	flags := cmd.Flags()
	if flags.Changed("runs-root") {
		cfg.RunsRoot = g.runsRoot
	}
	if flags.Changed("simulation-root") {
		cfg.SimulationRoot = g.simulationRoot
	}
	if flags.Changed("partner-config-dir") {
		cfg.PartnerConfigDir = g.partnerConfigDir
	}
	if flags.Changed("rules") {
		cfg.RulesPath = g.rulesPath
	}
	if flags.Changed("platform") {
		cfg.Platform = g.platform
	}
	if flags.Changed("year") {
		cfg.Year = g.year
	}
	if flags.Changed("verbose") {
		cfg.Verbose = g.verbose
	}
	if cfg.GeminiAPIKey == "" {
		cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	}
	if cfg.LinkBaseURL == "" {
		cfg.LinkBaseURL = os.Getenv("SECURE_LINK_BASE_URL")
	}

	// Step 3: Validate and fill defaults
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg.MergeWithDefaults(config.Defaults()), nil
}

// resolveTargets returns the runs to drive: --partner/--quarter when given, the configured runs otherwise.
func resolveTargets(cfg config.Config, g *globals) ([]types.RunIdentity, error) {
	runs := cfg.Runs
	if g.partner != "" || g.quarter != "" {
		if g.partner == "" || g.quarter == "" {
			return nil, fmt.Errorf("--partner and --quarter must be given together")
		}
		runs = []config.RunTarget{{Partner: g.partner, Quarter: g.quarter}}
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("no runs configured: pass --partner and --quarter or list runs in the config file")
	}

	targets := make([]types.RunIdentity, 0, len(runs))
	for _, r := range runs {
		id := types.RunIdentity{Partner: r.Partner, Quarter: r.Quarter, Platform: cfg.Platform, Year: cfg.Year}
		if err := id.Validate(); err != nil {
			return nil, fmt.Errorf("invalid run %s/%s: %w", r.Partner, r.Quarter, err)
		}
		targets = append(targets, id)
	}
	return targets, nil
}

// linkSettings reads the secure link settings. Without SECURE_LINK_SECRET a random per-process secret
// is used, so links issued by this process cannot be verified by a separately started server.
func linkSettings(logger *zap.Logger) (*config.LinkConfig, *config.AccessCodeConfig, error) {
	codes, err := config.NewAccessCodeConfig()
	if err != nil {
		return nil, nil, err
	}
	if os.Getenv("SECURE_LINK_SECRET") == "" {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return nil, nil, fmt.Errorf("failed to generate link secret: %w", err)
		}
		logger.Warn("SECURE_LINK_SECRET not set, using an ephemeral secret; issued links will not survive a restart")
		return &config.LinkConfig{Secret: hex.EncodeToString(buf), ExpirationHours: 168}, codes, nil
	}
	links, err := config.NewLinkConfig()
	if err != nil {
		return nil, nil, err
	}
	return links, codes, nil
}

// appOptions carries the per-command choices that shape the wiring.
type appOptions struct {
	noPrompt bool
	in       io.Reader
	out      io.Writer
}

// app is the wired orchestrator for one command invocation.
type app struct {
	cfg     config.Config
	store   *runstate.Store
	loop    *orchestrator.Loop
	printer *observability.Printer
	logger  *zap.Logger
	closers []func() error
}

// buildApp wires the run store, pipeline, approval gate and orchestrator loop for targets.
func buildApp(ctx context.Context, cfg config.Config, targets []types.RunIdentity, opts appOptions, logger *zap.Logger) (*app, error) {
	logger = logging.OrNop(logger)
	a := &app{
		cfg:     cfg,
		store:   runstate.NewStore(cfg.RunsRoot, logger, nil),
		printer: observability.NewPrinter(opts.out),
		logger:  logger,
	}

	linkCfg, codeCfg, err := linkSettings(logger)
	if err != nil {
		return nil, err
	}
	links := publish.NewLinkIssuer(linkCfg, codeCfg, cfg.LinkBaseURL, nil)

	var rules *validation.RuleSet
	if cfg.RulesPath != "" {
		rules, err = validation.LoadRules(cfg.RulesPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load validation rules: %w", err)
		}
	}

	// The LLM only writes the email summary; the agent works without it.
	var summarizer reporting.Summarizer
	var model string
	if cfg.GeminiAPIKey != "" {
		llmCfg := llm.DefaultConfig()
		if cfg.Model != "" {
			llmCfg = llmCfg.WithModel(llm.TierLite, cfg.Model)
		}
		client, err := llm.NewGeminiClient(ctx, llmCfg, cfg.GeminiAPIKey)
		if err != nil {
			logger.Warn("LLM summaries disabled", zap.Error(err))
		} else {
			s := llm.NewErrorSummarizer(client)
			summarizer, model = s, s.Model()
			a.closers = append(a.closers, client.Close)
		}
	}

	var approver approval.Approver = approval.Unavailable{}
	if !opts.noPrompt {
		approver = approval.NewConsolePrompter(opts.in, opts.out, nil)
	}

	policy := retry.NewPolicy(cfg.MaxResumeAttempts)
	adapter := pipeline.NewAdapter(pipeline.Options{
		Store:            a.store,
		Rules:            rules,
		PartnerConfigDir: cfg.PartnerConfigDir,
		Model:            model,
		OnProgress: func(ev pipeline.ProgressEvent) {
			logger.Debug(ev.Message,
				zap.String("run_id", ev.RunID),
				zap.String("step", ev.Step),
				zap.String("category", ev.Category))
		},
	})
	gate := approval.NewGate(a.store, publish.NewPublisher(cfg.SimulationRoot), links,
		reporting.NewEmailGenerator(summarizer, logger), approver)

	a.loop = orchestrator.NewLoop(orchestrator.LoopOptions{
		Store:          a.store,
		Planner:        orchestrator.NewPlanner(a.store, policy, cfg.PartnerConfigDir, logger),
		Executor:       orchestrator.NewExecutor(a.store, adapter, gate, policy),
		Policy:         policy,
		RunsRoot:       cfg.RunsRoot,
		SimulationRoot: cfg.SimulationRoot,
		Targets:        targets,
		Logger:         logger,
		OnPass:         a.printPass,
	})
	return a, nil
}

// printPass shows each executed pass; verbose output adds the plan.
func (a *app) printPass(rc *runctx.RunContext, pass orchestrator.Pass) {
	if a.cfg.Verbose && pass.Plan != nil {
		a.printer.PrintPlan(pass.Plan.State, pass.Plan.Steps)
	}
	if pass.Execution != nil && len(pass.Execution.Outcomes) > 0 {
		a.printer.PrintOutcomes(pass.Execution.Outcomes)
	}
	rc.Logger.Debug("pass complete",
		zap.Int("pass", pass.Number),
		zap.String("state", string(pass.State)))
}

// printResult reports where a drive left its run.
func (a *app) printResult(out io.Writer, res *orchestrator.DriveResult) {
	suffix := ""
	if res.Idle {
		suffix = " (no change)"
	}
	_, _ = fmt.Fprintf(out, "%s: %s%s\n", res.RunID, res.State, suffix)
	a.printer.PrintWait(res.RunID, res.Wait.String())
}

// Close releases the LLM client.
func (a *app) Close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.logger.Warn("failed to release resource", zap.Error(err))
		}
	}
}

// watchTimeouts returns the poll interval and debounce after flag overrides.
func watchTimeouts(cfg config.Config, interval, debounce time.Duration) (time.Duration, time.Duration) {
	if interval <= 0 {
		interval = cfg.PollInterval.Duration
	}
	if debounce <= 0 {
		debounce = cfg.Debounce.Duration
	}
	return interval, debounce
}
