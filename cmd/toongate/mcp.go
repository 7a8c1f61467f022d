package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pario-ai/toongate/pkg/mcp"
)

func newMCPCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve TOON tools over MCP on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			// Logs go to stderr; stdout carries the protocol.
			st, err := newStack(cfg)
			if err != nil {
				return err
			}
			defer st.close()

			deps := mcp.Deps{
				Converter:           st.converter,
				Pricing:             cfg.Pricing,
				Optimization:        cfg.Conversion.Optimization,
				ConfidenceThreshold: cfg.Detection.ConfidenceThreshold,
				Logger:              st.logger,
			}
			if st.cache != nil {
				deps.Cache = st.cache
			}
			if st.ledger != nil {
				deps.Ledger = st.ledger
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return mcp.New(deps, version).Run(ctx, os.Stdin, os.Stdout)
		},
	}
}
