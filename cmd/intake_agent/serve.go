package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonathan/partner-intake/internal/config"
	"github.com/jonathan/partner-intake/internal/publish"
	"github.com/jonathan/partner-intake/internal/runstate"
	"github.com/jonathan/partner-intake/internal/server"
	"github.com/jonathan/partner-intake/internal/server/ratelimit"
	"github.com/spf13/cobra"
)

func newServeCmd(g *globals) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the run status and secure link server",
		Long: `Start an HTTP server exposing run status for staff and secure-link downloads of partner error reports.
SECURE_LINK_SECRET must match the secret used when the links were issued.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd, g)
			if err != nil {
				return err
			}

			linkCfg, err := config.NewLinkConfig()
			if err != nil {
				return err
			}
			codeCfg, err := config.NewAccessCodeConfig()
			if err != nil {
				return err
			}

			srv, err := server.New(server.Config{
				Port:      port,
				Store:     runstate.NewStore(cfg.RunsRoot, g.logger, nil),
				Links:     publish.NewLinkIssuer(linkCfg, codeCfg, cfg.LinkBaseURL, nil),
				RateLimit: ratelimit.LoadConfig(),
				Logger:    g.logger,
			})
			if err != nil {
				return fmt.Errorf("failed to create server: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.Start(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 8080, "Port to listen on")
	return cmd
}
