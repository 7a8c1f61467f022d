// Package middleware converts JSON responses to TOON for LLM clients.
//
// The handler classifies each request, decodes TOON request bodies when the
// client sends them, and rewrites qualifying JSON responses as TOON with
// savings headers. Any conversion failure falls back to the original JSON.
package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/pario-ai/toongate/pkg/cache/memory"
	"github.com/pario-ai/toongate/pkg/config"
	"github.com/pario-ai/toongate/pkg/convert"
	"github.com/pario-ai/toongate/pkg/detect"
	"github.com/pario-ai/toongate/pkg/metrics"
	"github.com/pario-ai/toongate/pkg/models"
	"github.com/pario-ai/toongate/pkg/normalize"
	"github.com/pario-ai/toongate/pkg/savings"
)

// Response headers.
const (
	HeaderRequestID = "X-Request-ID"
	HeaderMode      = "X-TOON-Mode"
	HeaderSavings   = "X-TOON-Savings"
	HeaderTokens    = "X-TOON-Tokens"
	HeaderCostSaved = "X-TOON-Cost-Saved"
	HeaderError     = "X-TOON-Error"
)

// Values of HeaderMode.
const (
	ModeTOON        = metrics.ModeTOON
	ModePassthrough = metrics.ModePassthrough
	ModeFallback    = metrics.ModeFallback
)

// ErrorCode is the error field of the 500 body written when the middleware
// itself fails.
const ErrorCode = "TOON_MIDDLEWARE_FAILURE"

// Tracker receives successful response conversions.
type Tracker interface {
	TrackConversion(ctx context.Context, rec models.ConversionRecord) error
}

// Middleware holds the shared state of the TOON handler.
type Middleware struct {
	logger     *zap.Logger
	cache      *memory.Cache
	converter  *convert.Converter
	metrics    *metrics.Metrics
	trackers   []Tracker
	detectors  []detect.Detector
	conversion config.ConversionConfig
	detection  config.DetectionConfig
	pricing    models.Pricing
	now        func() time.Time

	group    singleflight.Group
	inflight sync.WaitGroup
}

// New builds a Middleware. Without options it converts responses for LLM
// clients with the default thresholds, no cache and no trackers.
func New(opts ...Option) *Middleware {
	defaults := config.Default()
	m := &Middleware{
		logger:     zap.NewNop(),
		converter:  convert.New(nil),
		conversion: defaults.Conversion,
		detection:  defaults.Detection,
		pricing:    defaults.Pricing,
		now:        time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Wait blocks until background tracker writes have finished.
func (m *Middleware) Wait() {
	m.inflight.Wait()
}

type ctxKey int

const (
	clientKey ctxKey = iota
	requestIDKey
)

// ClientFromContext returns the classification the middleware stored for
// the request.
func ClientFromContext(ctx context.Context) (models.ClientDetectionResult, bool) {
	c, ok := ctx.Value(clientKey).(models.ClientDetectionResult)
	return c, ok
}

// RequestIDFromContext returns the request ID assigned by the middleware.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// Handler wraps next with TOON conversion.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := m.now()
		requestID := r.Header.Get(HeaderRequestID)
		if requestID == "" {
			requestID = "req_" + uuid.NewString()
		}

		var buf *responseBuffer
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler || (buf != nil && buf.sent()) {
				panic(rec)
			}
			m.logger.Error("middleware panic",
				zap.String("request_id", requestID),
				zap.String("url", r.URL.String()),
				zap.Any("panic", rec),
			)
			writeFailure(w, fmt.Sprintf("Middleware execution failed: %v", rec))
		}()

		m.logger.Debug("request received",
			zap.String("request_id", requestID),
			zap.String("method", r.Method),
			zap.String("url", r.URL.String()),
			zap.String("user_agent", r.UserAgent()),
		)

		headers := detect.HeadersFromHTTP(r.Header)
		client := detect.Detect(detect.Request{
			Headers:   headers,
			UserAgent: r.UserAgent(),
			Detectors: m.detectors,
		}, detect.Options{
			ConfidenceThreshold: m.detection.ConfidenceThreshold,
			Clock:               m.now,
		})
		m.metrics.ObserveDetection(client.Type)

		ctx := context.WithValue(r.Context(), clientKey, client)
		ctx = context.WithValue(ctx, requestIDKey, requestID)
		r = r.WithContext(ctx)

		if m.conversion.ConvertRequests && wantsRequestDecode(headers) {
			m.decodeRequest(r, requestID)
		}

		convertible := m.conversion.AutoConvert &&
			detect.IsConfidenceHigh(client, m.detection.ResponseConfidenceThreshold)
		buf = newResponseBuffer(w, func(status int, h http.Header) bool {
			return convertible && capturable(status, h)
		})

		next.ServeHTTP(buf, r)

		if !buf.wroteHeader {
			buf.WriteHeader(http.StatusOK)
		}
		if buf.captured() {
			m.writeConverted(w, r, buf, client, requestID, start)
		} else {
			m.metrics.ObserveMode(ModePassthrough)
		}

		m.logger.Info("request completed",
			zap.String("request_id", requestID),
			zap.Duration("duration", m.now().Sub(start)),
			zap.Int("status", buf.status),
			zap.String("client_type", string(client.Type)),
		)
	})
}

// capturable accepts successful, uncompressed JSON responses.
func capturable(status int, h http.Header) bool {
	if status < 200 || status > 299 || status == http.StatusNoContent {
		return false
	}
	if enc := h.Get("Content-Encoding"); enc != "" && !strings.EqualFold(enc, "identity") {
		return false
	}
	return isJSON(h.Get("Content-Type"))
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

// writeConverted sends the captured response, as TOON when possible.
func (m *Middleware) writeConverted(w http.ResponseWriter, r *http.Request, buf *responseBuffer, client models.ClientDetectionResult, requestID string, start time.Time) {
	body := buf.body.Bytes()
	payload, err := normalize.DecodeJSON(body)
	if err != nil || !isContainer(payload) {
		m.writeOriginal(w, buf.status, body, ModePassthrough, "")
		return
	}

	convStart := m.now()
	res, cacheHit := m.convertPayload(r, payload)
	m.metrics.ObserveDuration(m.now().Sub(convStart))

	if !res.Success {
		m.logger.Warn("TOON conversion failed, falling back to JSON",
			zap.String("request_id", requestID),
			zap.String("error", res.Error),
		)
		m.writeOriginal(w, buf.status, body, ModeFallback, "Conversion failed - fallback to JSON")
		return
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, body); err != nil {
		compact.Reset()
		compact.Write(body)
	}
	pricing := m.pricing
	pricing.Timestamp = m.now()
	calc := savings.Calculate(compact.String(), res.Data, pricing)

	h := w.Header()
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set(HeaderSavings, fmt.Sprintf("%d%%", calc.Savings.Percentage))
	h.Set(HeaderTokens, fmt.Sprintf("%d->%d", calc.Original.Tokens, calc.Converted.Tokens))
	h.Set(HeaderCostSaved, fmt.Sprintf("$%.4f", calc.Savings.Cost))
	h.Set(HeaderRequestID, requestID)
	h.Set(HeaderMode, ModeTOON)
	h.Set("Content-Length", strconv.Itoa(len(res.Data)))
	w.WriteHeader(buf.status)
	if _, err := io.WriteString(w, res.Data); err != nil {
		m.logger.Debug("write response", zap.String("request_id", requestID), zap.Error(err))
	}

	latency := m.now().Sub(start)
	m.metrics.ObserveMode(ModeTOON)
	m.logger.Info("TOON conversion successful",
		zap.String("request_id", requestID),
		zap.Duration("duration", latency),
		zap.Int("savings", calc.Savings.Percentage),
		zap.Int("tokens_saved", calc.Savings.Tokens),
		zap.String("client_type", string(client.Type)),
		zap.Bool("cache_hit", cacheHit),
	)

	rec := models.NewConversionRecord(requestID, r.URL.Path, r.Method, client, calc)
	rec.CacheHit = cacheHit
	rec.LatencyMs = latency.Milliseconds()
	rec.CreatedAt = pricing.Timestamp
	m.track(rec)
}

func (m *Middleware) writeOriginal(w http.ResponseWriter, status int, body []byte, mode, errHeader string) {
	h := w.Header()
	h.Set(HeaderMode, mode)
	if errHeader != "" {
		h.Set(HeaderError, errHeader)
	}
	h.Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	_, _ = w.Write(body)
	m.metrics.ObserveMode(mode)
}

// convertPayload returns the TOON result for payload, from the cache when
// possible. Concurrent misses for the same key share one conversion.
func (m *Middleware) convertPayload(r *http.Request, payload any) (models.ConversionResult, bool) {
	opts := m.conversion.Optimization
	if m.cache == nil {
		return m.converter.ToTOON(payload, opts), false
	}

	key, ok := m.cache.GenerateKey(memory.RequestMeta{
		URL:       r.URL.RequestURI(),
		Method:    r.Method,
		UserAgent: r.UserAgent(),
	}, payload)
	if !ok {
		return m.converter.ToTOON(payload, opts), false
	}
	if cached, hit := m.cache.Get(key); hit {
		return cached, true
	}

	v, _, _ := m.group.Do(key, func() (any, error) {
		res := m.converter.ToTOON(payload, opts)
		if res.Success {
			m.cache.Set(key, res)
		}
		return res, nil
	})
	return v.(models.ConversionResult), false
}

// track hands rec to the trackers. Metrics are updated inline; other
// trackers run in the background so storage never delays the response.
func (m *Middleware) track(rec models.ConversionRecord) {
	_ = m.metrics.TrackConversion(context.Background(), rec)
	for _, t := range m.trackers {
		m.inflight.Add(1)
		go func(t Tracker) {
			defer m.inflight.Done()
			if err := t.TrackConversion(context.Background(), rec); err != nil {
				m.logger.Warn("track conversion",
					zap.String("request_id", rec.RequestID),
					zap.Error(err),
				)
			}
		}(t)
	}
}

func isContainer(v any) bool {
	switch v.(type) {
	case *normalize.Object, map[string]any, []any:
		return true
	}
	return false
}

func writeFailure(w http.ResponseWriter, message string) {
	body, _ := json.Marshal(map[string]string{
		"error":   ErrorCode,
		"message": message,
	})
	w.Header().Set("Content-Type", "application/json")
	w.Header().Del("Content-Length")
	w.WriteHeader(http.StatusInternalServerError)
	_, _ = w.Write(body)
}
