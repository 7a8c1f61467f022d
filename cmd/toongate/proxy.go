package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pario-ai/toongate/pkg/middleware"
	"github.com/pario-ai/toongate/pkg/proxy"
)

func newProxyCmd(configPath *string) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "proxy",
		Short: "Start the TOON reverse proxy",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Listen = listen
			}

			st, err := newStack(cfg)
			if err != nil {
				return err
			}
			defer st.close()

			opts := []middleware.Option{
				middleware.WithLogger(st.logger),
				middleware.WithConverter(st.converter),
				middleware.WithMetrics(st.metrics),
				middleware.WithConversion(cfg.Conversion),
				middleware.WithDetection(cfg.Detection),
				middleware.WithPricing(cfg.Pricing),
			}
			if st.cache != nil {
				opts = append(opts, middleware.WithCache(st.cache))
			}
			if st.ledger != nil {
				opts = append(opts, middleware.WithTrackers(st.ledger))
			}
			mw := middleware.New(opts...)
			defer mw.Wait()

			srv, err := proxy.New(cfg, mw, st.registry, st.logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			st.logger.Info("starting toongate proxy",
				zap.String("listen", cfg.Listen),
				zap.Int("upstreams", len(cfg.Upstreams)),
				zap.Bool("cache", st.cache != nil),
				zap.Bool("ledger", st.ledger != nil),
			)
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "override the listen address")
	return cmd
}
