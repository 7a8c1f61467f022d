// Package detect decides whether a request comes from an LLM-style client
// that benefits from TOON responses.
//
// Detect is a pure scoring function: it reads headers and the user agent,
// runs any pluggable detectors, and turns the accumulated weights into a
// confidence in [0,1]. Nothing is cached; the verdict depends on live headers.
package detect

import (
	"maps"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/pario-ai/toongate/pkg/models"
)

// Header names and markers understood by the classifier.
const (
	HeaderAcceptTOON = "x-accept-toon"
	HeaderAccept     = "accept"
	HeaderUserAgent  = "user-agent"
	AcceptMarker     = "toon"
)

// DefaultThreshold is the confidence at or above which a client is LLM.
const DefaultThreshold = 0.7

// Score weights.
const (
	optInWeight           = 100
	acceptWeight          = 50
	patternWeight         = 30
	detectorLLMWeight     = 20
	detectorRegularWeight = 10
)

// Patterns are the lower-case user-agent fragments that mark LLM clients.
// Every matching fragment adds weight.
var Patterns = []string{
	"openai",
	"claude",
	"gpt-",
	"gemini",
	"llama",
	"mistral",
	"anthropic",
	"ai-api",
	"llm-client",
	"toon-enabled",
}

// Epoch is the detection timestamp used when no clock is supplied.
var Epoch = time.Unix(0, 0).UTC()

// Options are caller-level defaults for Detect.
type Options struct {
	ConfidenceThreshold float64
	Clock               func() time.Time
}

// Request is the classifier input for one inbound request.
// A ConfidenceThreshold outside (0,1] counts as unset.
type Request struct {
	Headers             map[string]string
	UserAgent           string
	Detectors           []Detector
	ConfidenceThreshold float64
	Clock               func() time.Time
}

// Detect scores req and returns the classification.
func Detect(req Request, opts Options) models.ClientDetectionResult {
	headers := lowerKeys(req.Headers)
	var scores models.Scores

	if headers[HeaderAcceptTOON] == "true" {
		scores.LLM += optInWeight
	}
	if strings.Contains(strings.ToLower(headers[HeaderAccept]), AcceptMarker) {
		scores.LLM += acceptWeight
	}

	ua := req.UserAgent
	if ua == "" {
		ua = headers[HeaderUserAgent]
	}
	ua = strings.ToLower(ua)

	matched := []string{}
	for _, p := range Patterns {
		if strings.Contains(ua, p) {
			matched = append(matched, p)
			scores.LLM += patternWeight
		}
	}

	for _, d := range req.Detectors {
		v := runDetector(d, Input{Headers: maps.Clone(headers), UserAgent: ua, Options: opts})
		switch v.Kind {
		case KindLLM:
			scores.LLM += v.Confidence * detectorLLMWeight
		case KindRegular:
			scores.Regular += v.Confidence * detectorRegularWeight
		}
	}

	confidence := 0.0
	if total := scores.LLM + scores.Regular; total > 0 {
		confidence = round2(scores.LLM / total)
	}

	// Compare the rounded value so the reported confidence and type always agree.
	clientType := models.ClientRegular
	if confidence >= resolveThreshold(req.ConfidenceThreshold, opts.ConfidenceThreshold) {
		clientType = models.ClientLLM
	}

	return models.ClientDetectionResult{
		Type:       clientType,
		Confidence: confidence,
		Scores: models.Scores{
			LLM:     round2(scores.LLM),
			Regular: round2(scores.Regular),
		},
		MatchedPatterns: matched,
		DetectedAt:      resolveClock(opts.Clock, req.Clock),
	}
}

// runDetector isolates faults in foreign detector code: a panic counts as no opinion.
func runDetector(d Detector, in Input) (v Verdict) {
	if d == nil {
		return Abstain()
	}
	defer func() {
		if recover() != nil {
			v = Abstain()
		}
	}()
	return d(in).clamped()
}

func resolveThreshold(candidates ...float64) float64 {
	for _, t := range candidates {
		if t > 0 && t <= 1 {
			return t
		}
	}
	return DefaultThreshold
}

func resolveClock(clocks ...func() time.Time) time.Time {
	for _, c := range clocks {
		if c != nil {
			return c()
		}
	}
	return Epoch
}

// IsConfidenceHigh reports whether r is an LLM verdict at or above threshold.
func IsConfidenceHigh(r models.ClientDetectionResult, threshold float64) bool {
	return r.Type == models.ClientLLM && r.Confidence >= threshold
}

// WantsTOON reports whether headers ask for TOON explicitly, either through
// the opt-in header or the Accept header.
func WantsTOON(headers map[string]string) bool {
	h := lowerKeys(headers)
	return h[HeaderAcceptTOON] == "true" || strings.Contains(strings.ToLower(h[HeaderAccept]), AcceptMarker)
}

// HeadersFromHTTP flattens an http.Header into lower-case keys, joining
// repeated values with ", ".
func HeadersFromHTTP(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vals := range h {
		out[strings.ToLower(k)] = strings.Join(vals, ", ")
	}
	return out
}

func lowerKeys(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[strings.ToLower(k)] = v
	}
	return out
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}

func clamp01(x float64) float64 {
	if math.IsNaN(x) {
		return 0
	}
	return math.Min(math.Max(x, 0), 1)
}
