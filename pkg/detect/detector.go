package detect

import "strings"

// Kind tags a detector verdict.
type Kind int

const (
	KindNoOpinion Kind = iota
	KindLLM
	KindRegular
)

// Verdict is what a pluggable detector reports. Confidence is clamped to
// [0,1] before it is weighted; it is ignored for KindNoOpinion.
type Verdict struct {
	Kind       Kind
	Confidence float64
}

// Abstain is a verdict that contributes nothing.
func Abstain() Verdict { return Verdict{Kind: KindNoOpinion} }

// LikelyLLM votes for an LLM client.
func LikelyLLM(confidence float64) Verdict {
	return Verdict{Kind: KindLLM, Confidence: clamp01(confidence)}
}

// LikelyRegular votes for a regular client.
func LikelyRegular(confidence float64) Verdict {
	return Verdict{Kind: KindRegular, Confidence: clamp01(confidence)}
}

func (v Verdict) clamped() Verdict {
	v.Confidence = clamp01(v.Confidence)
	return v
}

// Input is what a detector is given. Headers have lower-case keys and
// UserAgent is already lower-cased; detectors receive their own copy of Headers.
type Input struct {
	Headers   map[string]string
	UserAgent string
	Options   Options
}

// Detector is a pluggable classification heuristic. A panicking detector
// is treated as abstaining and does not affect the others.
type Detector func(Input) Verdict

type detectorConfig struct {
	confidence float64
}

// DetectorOption configures the built-in detector factories.
type DetectorOption func(*detectorConfig)

// WithConfidence sets the confidence a built-in detector reports on a match.
func WithConfidence(c float64) DetectorOption {
	return func(cfg *detectorConfig) { cfg.confidence = clamp01(c) }
}

// UserAgentDetector votes LLM with confidence 0.8 (by default) when the user
// agent contains any of patterns, case-insensitively. The first match wins.
func UserAgentDetector(patterns []string, opts ...DetectorOption) Detector {
	cfg := detectorConfig{confidence: 0.8}
	for _, o := range opts {
		o(&cfg)
	}
	lowered := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if p = strings.ToLower(p); p != "" {
			lowered = append(lowered, p)
		}
	}

	return func(in Input) Verdict {
		ua := in.UserAgent
		if ua == "" {
			ua = in.Headers[HeaderUserAgent]
		}
		ua = strings.ToLower(ua)
		for _, p := range lowered {
			if strings.Contains(ua, p) {
				return LikelyLLM(cfg.confidence)
			}
		}
		return Abstain()
	}
}

// HeaderDetector votes LLM with confidence c (0.6 by default) when header is
// present and predicate accepts its value, and regular with 1-c otherwise.
func HeaderDetector(header string, predicate func(string) bool, opts ...DetectorOption) Detector {
	cfg := detectorConfig{confidence: 0.6}
	for _, o := range opts {
		o(&cfg)
	}
	name := strings.ToLower(header)

	return func(in Input) Verdict {
		if value, ok := in.Headers[name]; ok && predicate != nil && predicate(value) {
			return LikelyLLM(cfg.confidence)
		}
		return LikelyRegular(1 - cfg.confidence)
	}
}
