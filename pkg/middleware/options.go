package middleware

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pario-ai/toongate/pkg/cache/memory"
	"github.com/pario-ai/toongate/pkg/config"
	"github.com/pario-ai/toongate/pkg/convert"
	"github.com/pario-ai/toongate/pkg/detect"
	"github.com/pario-ai/toongate/pkg/metrics"
	"github.com/pario-ai/toongate/pkg/models"
)

// Option configures a Middleware.
type Option func(*Middleware)

// WithLogger sets the logger. Nil keeps the no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Middleware) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithCache enables result caching for response and request conversions.
func WithCache(c *memory.Cache) Option {
	return func(m *Middleware) { m.cache = c }
}

// WithConverter replaces the default TOON converter.
func WithConverter(c *convert.Converter) Option {
	return func(m *Middleware) {
		if c != nil {
			m.converter = c
		}
	}
}

// WithMetrics reports modes, detections, durations and savings to mx.
func WithMetrics(mx *metrics.Metrics) Option {
	return func(m *Middleware) { m.metrics = mx }
}

// WithTrackers adds trackers notified of every successful response conversion.
func WithTrackers(ts ...Tracker) Option {
	return func(m *Middleware) {
		for _, t := range ts {
			if t != nil {
				m.trackers = append(m.trackers, t)
			}
		}
	}
}

// WithConversion sets the conversion switches and optimization options.
func WithConversion(c config.ConversionConfig) Option {
	return func(m *Middleware) { m.conversion = c }
}

// WithDetection sets the thresholds and builds custom detectors from the
// configured user-agent patterns and header rules.
func WithDetection(c config.DetectionConfig) Option {
	return func(m *Middleware) {
		m.detection = c
		m.detectors = append(m.detectors, Detectors(c)...)
	}
}

// Detectors builds the custom detectors described by c.
func Detectors(c config.DetectionConfig) []detect.Detector {
	var ds []detect.Detector
	if len(c.UserAgentPatterns) > 0 {
		ds = append(ds, detect.UserAgentDetector(c.UserAgentPatterns))
	}
	for _, rule := range c.HeaderRules {
		var opts []detect.DetectorOption
		if rule.Confidence > 0 {
			opts = append(opts, detect.WithConfidence(rule.Confidence))
		}
		ds = append(ds, detect.HeaderDetector(rule.Header, containsFold(rule.Contains), opts...))
	}
	return ds
}

// WithDetectors appends custom detectors.
func WithDetectors(ds ...detect.Detector) Option {
	return func(m *Middleware) { m.detectors = append(m.detectors, ds...) }
}

// WithPricing sets the cost model for savings headers.
func WithPricing(p models.Pricing) Option {
	return func(m *Middleware) { m.pricing = p }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Middleware) {
		if now != nil {
			m.now = now
		}
	}
}

func containsFold(substr string) func(string) bool {
	needle := strings.ToLower(substr)
	return func(v string) bool {
		return strings.Contains(strings.ToLower(v), needle)
	}
}
