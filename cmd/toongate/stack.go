package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/pario-ai/toongate/pkg/cache/memory"
	"github.com/pario-ai/toongate/pkg/config"
	"github.com/pario-ai/toongate/pkg/convert"
	"github.com/pario-ai/toongate/pkg/ledger"
	"github.com/pario-ai/toongate/pkg/logging"
	"github.com/pario-ai/toongate/pkg/metrics"
)

// stack holds the long-lived components shared by the serving commands.
// cache and ledger are nil when disabled in the config.
type stack struct {
	cfg       *config.Config
	logger    *zap.Logger
	registry  *prometheus.Registry
	metrics   *metrics.Metrics
	converter *convert.Converter
	cache     *memory.Cache
	ledger    *ledger.Ledger
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func newStack(cfg *config.Config) (*stack, error) {
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	s := &stack{
		cfg:       cfg,
		logger:    logger,
		registry:  reg,
		metrics:   metrics.New(reg),
		converter: convert.New(convert.TOONCodec{LengthMarkers: cfg.Conversion.LengthMarkers}),
	}

	if cfg.Cache.Enabled {
		s.cache = memory.New(memory.Config{
			MaxSize:     cfg.Cache.MaxSize,
			TTL:         cfg.Cache.TTL,
			CheckPeriod: cfg.Cache.CheckPeriod,
		})
		s.cache.Subscribe(s.metrics.CacheListener(s.cache.Len))
		s.cache.Subscribe(func(e memory.Event) {
			if e.Kind == memory.EventError {
				logger.Warn("cache key generation failed", zap.Error(e.Err))
			}
		})
	}

	if cfg.Ledger.Enabled {
		s.ledger, err = ledger.New(cfg.Ledger)
		if err != nil {
			s.close()
			return nil, fmt.Errorf("init ledger: %w", err)
		}
	}

	return s, nil
}

// close tears the stack down. Callers drain in-flight trackers first.
func (s *stack) close() {
	if s.cache != nil {
		s.cache.Destroy()
	}
	if s.ledger != nil {
		if err := s.ledger.Close(); err != nil {
			s.logger.Warn("close ledger", zap.Error(err))
		}
	}
	_ = s.logger.Sync()
}
