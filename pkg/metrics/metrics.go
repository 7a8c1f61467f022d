// Package metrics exposes toongate counters to Prometheus.
//
// Metrics are registered on the Registerer passed to New, never on the
// global default registry, so tests and multiple servers in one process do
// not collide. All methods are safe on a nil *Metrics.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/pario-ai/toongate/pkg/cache/memory"
	"github.com/pario-ai/toongate/pkg/models"
)

// Conversion modes reported by the middleware.
const (
	ModeTOON        = "toon"
	ModePassthrough = "passthrough"
	ModeFallback    = "fallback"
	ModeDecoded     = "decoded"
)

// Metrics holds the toongate collectors.
type Metrics struct {
	CacheHits      prometheus.Counter
	CacheMisses    prometheus.Counter
	CacheSets      prometheus.Counter
	CacheEvictions prometheus.Counter
	CacheExpired   prometheus.Counter
	CacheErrors    prometheus.Counter
	CacheEntries   prometheus.Gauge

	Conversions        *prometheus.CounterVec
	TokensSaved        prometheus.Counter
	CostSaved          prometheus.Counter
	ConversionDuration prometheus.Histogram
	ClientDetections   *prometheus.CounterVec
}

// New creates and registers the collectors on reg.
//
// Metrics:
//   - toongate_cache_{hits,misses,sets,evictions,expired,errors}_total
//   - toongate_cache_entries - entries currently held
//   - toongate_conversions_total{mode} - responses by outcome
//   - toongate_tokens_saved_total - estimated tokens saved
//   - toongate_cost_saved_total - estimated cost saved
//   - toongate_conversion_duration_seconds - time spent converting a response
//   - toongate_client_detections_total{type} - classifier verdicts
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	counter := func(name, help string) prometheus.Counter {
		return f.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
	}
	return &Metrics{
		CacheHits:      counter("toongate_cache_hits_total", "Total number of conversion cache hits"),
		CacheMisses:    counter("toongate_cache_misses_total", "Total number of conversion cache misses, including expired entries"),
		CacheSets:      counter("toongate_cache_sets_total", "Total number of conversion cache writes"),
		CacheEvictions: counter("toongate_cache_evictions_total", "Total number of entries evicted to respect the size bound"),
		CacheExpired:   counter("toongate_cache_expired_total", "Total number of entries removed after their TTL"),
		CacheErrors:    counter("toongate_cache_errors_total", "Total number of cache key generation failures"),
		CacheEntries: f.NewGauge(prometheus.GaugeOpts{
			Name: "toongate_cache_entries",
			Help: "Current number of entries in the conversion cache",
		}),
		Conversions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "toongate_conversions_total",
			Help: "Total number of handled payloads by conversion mode",
		}, []string{"mode"}),
		TokensSaved: counter("toongate_tokens_saved_total", "Estimated total tokens saved by TOON conversion"),
		CostSaved:   counter("toongate_cost_saved_total", "Estimated total cost saved by TOON conversion"),
		ConversionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "toongate_conversion_duration_seconds",
			Help:    "Duration of response conversion in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14), // 100us to ~1.6s
		}),
		ClientDetections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "toongate_client_detections_total",
			Help: "Total number of client classifications by type",
		}, []string{"type"}),
	}
}

// ObserveMode counts one handled payload.
func (m *Metrics) ObserveMode(mode string) {
	if m == nil {
		return
	}
	m.Conversions.WithLabelValues(mode).Inc()
}

// ObserveDetection counts one classifier verdict.
func (m *Metrics) ObserveDetection(t models.ClientType) {
	if m == nil {
		return
	}
	m.ClientDetections.WithLabelValues(string(t)).Inc()
}

// ObserveDuration records how long a conversion took.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.ConversionDuration.Observe(d.Seconds())
}

// TrackConversion adds a successful conversion's savings.
func (m *Metrics) TrackConversion(_ context.Context, rec models.ConversionRecord) error {
	if m == nil {
		return nil
	}
	if rec.TokensSaved > 0 {
		m.TokensSaved.Add(float64(rec.TokensSaved))
	}
	if rec.CostSaved > 0 {
		m.CostSaved.Add(rec.CostSaved)
	}
	return nil
}

// CacheListener returns a listener that mirrors cache events into the
// collectors. sizeFn reports the current entry count for the gauge.
func (m *Metrics) CacheListener(sizeFn func() int) memory.Listener {
	return func(e memory.Event) {
		if m == nil {
			return
		}
		switch e.Kind {
		case memory.EventHit:
			m.CacheHits.Inc()
		case memory.EventMiss:
			m.CacheMisses.Inc()
		case memory.EventExpired:
			m.CacheMisses.Inc()
			m.CacheExpired.Inc()
		case memory.EventSet:
			m.CacheSets.Inc()
		case memory.EventEvicted:
			m.CacheEvictions.Inc()
		case memory.EventCleanup:
			m.CacheExpired.Add(float64(e.Count))
		case memory.EventError:
			m.CacheErrors.Inc()
		}
		if sizeFn != nil {
			m.CacheEntries.Set(float64(sizeFn()))
		}
	}
}
