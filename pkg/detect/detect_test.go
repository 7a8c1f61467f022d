package detect

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pario-ai/toongate/pkg/models"
)

func TestDetect_OptInHeader(t *testing.T) {
	res := Detect(Request{Headers: map[string]string{"x-accept-toon": "true"}}, Options{})

	assert.Equal(t, models.ClientLLM, res.Type)
	assert.Equal(t, 1.0, res.Confidence)
	assert.Equal(t, 100.0, res.Scores.LLM)
	assert.Empty(t, res.MatchedPatterns)
}

func TestDetect_BrowserIsRegular(t *testing.T) {
	res := Detect(Request{Headers: map[string]string{}, UserAgent: "Mozilla/5.0"}, Options{})

	assert.Equal(t, models.ClientRegular, res.Type)
	assert.Equal(t, 0.0, res.Confidence)
	assert.NotNil(t, res.MatchedPatterns)
	assert.Equal(t, Epoch, res.DetectedAt)
}

func TestDetect_OptInRequiresLiteralTrue(t *testing.T) {
	res := Detect(Request{Headers: map[string]string{"X-Accept-TOON": "yes"}}, Options{})
	assert.Equal(t, 0.0, res.Scores.LLM)
}

func TestDetect_AcceptHeaderCaseInsensitive(t *testing.T) {
	res := Detect(Request{Headers: map[string]string{"Accept": "text/TOON, application/json"}}, Options{})

	assert.Equal(t, 50.0, res.Scores.LLM)
	assert.Equal(t, models.ClientLLM, res.Type)
}

func TestDetect_UserAgentPatternsAccumulate(t *testing.T) {
	res := Detect(Request{UserAgent: "Anthropic-Claude-Client/1.0 (llm-client)"}, Options{})

	assert.ElementsMatch(t, []string{"claude", "anthropic", "llm-client"}, res.MatchedPatterns)
	assert.Equal(t, 90.0, res.Scores.LLM)
}

func TestDetect_UserAgentFallsBackToHeader(t *testing.T) {
	res := Detect(Request{Headers: map[string]string{"User-Agent": "openai-python/1.0"}}, Options{})
	assert.Equal(t, []string{"openai"}, res.MatchedPatterns)
}

func TestDetect_CustomDetectors(t *testing.T) {
	regular := func(Input) Verdict { return LikelyRegular(1) }
	llm := func(Input) Verdict { return LikelyLLM(0.5) }

	res := Detect(Request{Detectors: []Detector{regular, llm}}, Options{})

	assert.Equal(t, 10.0, res.Scores.LLM)
	assert.Equal(t, 10.0, res.Scores.Regular)
	assert.Equal(t, 0.5, res.Confidence)
	assert.Equal(t, models.ClientRegular, res.Type)
}

func TestDetect_PanickingDetectorIsIsolated(t *testing.T) {
	boom := func(Input) Verdict { panic("boom") }
	llm := func(Input) Verdict { return LikelyLLM(1) }

	var res models.ClientDetectionResult
	require.NotPanics(t, func() {
		res = Detect(Request{Detectors: []Detector{boom, nil, llm}}, Options{})
	})
	assert.Equal(t, 20.0, res.Scores.LLM)
	assert.Equal(t, models.ClientLLM, res.Type)
}

func TestDetect_DetectorConfidenceClamped(t *testing.T) {
	over := func(Input) Verdict { return Verdict{Kind: KindLLM, Confidence: 7} }
	res := Detect(Request{Detectors: []Detector{over}}, Options{})
	assert.Equal(t, 20.0, res.Scores.LLM)
}

func TestDetect_DetectorsCannotMutateSharedHeaders(t *testing.T) {
	mutate := func(in Input) Verdict {
		in.Headers["x-accept-toon"] = "true"
		return Abstain()
	}
	check := func(in Input) Verdict {
		if in.Headers["x-accept-toon"] == "true" {
			return LikelyLLM(1)
		}
		return Abstain()
	}

	res := Detect(Request{Detectors: []Detector{mutate, check}}, Options{})
	assert.Equal(t, 0.0, res.Scores.LLM)
}

func TestDetect_ThresholdPrecedence(t *testing.T) {
	// Accept alone plus one regular vote gives 50/(50+10) = 0.83.
	req := Request{
		Headers:   map[string]string{"accept": "toon"},
		Detectors: []Detector{func(Input) Verdict { return LikelyRegular(1) }},
	}

	assert.Equal(t, models.ClientLLM, Detect(req, Options{}).Type)
	assert.Equal(t, models.ClientRegular, Detect(req, Options{ConfidenceThreshold: 0.9}).Type)

	req.ConfidenceThreshold = 0.8
	assert.Equal(t, models.ClientLLM, Detect(req, Options{ConfidenceThreshold: 0.9}).Type)
}

func TestDetect_ConfidenceRounding(t *testing.T) {
	req := Request{
		Headers: map[string]string{"accept": "toon"},
		Detectors: []Detector{
			func(Input) Verdict { return LikelyRegular(1) },
			func(Input) Verdict { return LikelyLLM(1.0 / 3.0) },
		},
	}
	res := Detect(req, Options{})

	assert.Equal(t, 56.67, res.Scores.LLM)
	assert.Equal(t, 0.85, res.Confidence)
}

func TestDetect_TypeFollowsRoundedConfidence(t *testing.T) {
	// 50/(50+21.6) is 0.698, which rounds to the 0.7 threshold.
	req := Request{
		Headers: map[string]string{"accept": "toon"},
		Detectors: []Detector{
			func(Input) Verdict { return LikelyRegular(1) },
			func(Input) Verdict { return LikelyRegular(1) },
			func(Input) Verdict { return LikelyRegular(0.16) },
		},
	}
	res := Detect(req, Options{})

	assert.Equal(t, 0.7, res.Confidence)
	assert.Equal(t, models.ClientLLM, res.Type)
}

func TestDetect_Clock(t *testing.T) {
	reqTime := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	optTime := reqTime.Add(time.Hour)

	res := Detect(Request{Clock: func() time.Time { return reqTime }}, Options{})
	assert.Equal(t, reqTime, res.DetectedAt)

	res = Detect(Request{Clock: func() time.Time { return reqTime }}, Options{Clock: func() time.Time { return optTime }})
	assert.Equal(t, optTime, res.DetectedAt)
}

func TestDetect_ConfidenceBounds(t *testing.T) {
	inputs := []Request{
		{},
		{UserAgent: "gpt-4 openai claude gemini llama mistral anthropic ai-api llm-client toon-enabled"},
		{Detectors: []Detector{func(Input) Verdict { return LikelyRegular(1) }}},
		{Headers: map[string]string{"x-accept-toon": "true", "accept": "toon"}},
	}
	for _, req := range inputs {
		res := Detect(req, Options{})
		assert.GreaterOrEqual(t, res.Confidence, 0.0)
		assert.LessOrEqual(t, res.Confidence, 1.0)
		assert.Equal(t, res.Confidence >= DefaultThreshold, res.Type == models.ClientLLM)
	}
}

func TestUserAgentDetector(t *testing.T) {
	d := UserAgentDetector([]string{"MyBot", "crawler"}, WithConfidence(0.9))

	assert.Equal(t, LikelyLLM(0.9), d(Input{UserAgent: "mybot/2"}))
	assert.Equal(t, LikelyLLM(0.9), d(Input{Headers: map[string]string{"user-agent": "Crawler"}}))
	assert.Equal(t, Abstain(), d(Input{UserAgent: "curl/8"}))

	assert.Equal(t, LikelyLLM(0.8), UserAgentDetector([]string{"x"})(Input{UserAgent: "x"}))
}

func TestHeaderDetector(t *testing.T) {
	d := HeaderDetector("X-Client-Kind", func(v string) bool { return strings.EqualFold(v, "agent") })

	assert.Equal(t, LikelyLLM(0.6), d(Input{Headers: map[string]string{"x-client-kind": "Agent"}}))
	v := d(Input{Headers: map[string]string{"x-client-kind": "human"}})
	assert.Equal(t, KindRegular, v.Kind)
	assert.InDelta(t, 0.4, v.Confidence, 1e-9)
	assert.Equal(t, KindRegular, d(Input{Headers: map[string]string{}}).Kind)
}

func TestWantsTOON(t *testing.T) {
	assert.True(t, WantsTOON(map[string]string{"X-Accept-Toon": "true"}))
	assert.True(t, WantsTOON(map[string]string{"Accept": "application/toon"}))
	assert.False(t, WantsTOON(map[string]string{"accept": "application/json"}))
}

func TestIsConfidenceHigh(t *testing.T) {
	assert.True(t, IsConfidenceHigh(models.ClientDetectionResult{Type: models.ClientLLM, Confidence: 0.8}, 0.8))
	assert.False(t, IsConfidenceHigh(models.ClientDetectionResult{Type: models.ClientLLM, Confidence: 0.75}, 0.8))
	assert.False(t, IsConfidenceHigh(models.ClientDetectionResult{Type: models.ClientRegular, Confidence: 0.9}, 0.8))
}

func TestHeadersFromHTTP(t *testing.T) {
	h := http.Header{}
	h.Add("Accept", "a")
	h.Add("Accept", "b")
	h.Set("X-Accept-Toon", "true")

	assert.Equal(t, map[string]string{"accept": "a, b", "x-accept-toon": "true"}, HeadersFromHTTP(h))
}
