// Package savings estimates token counts and values the difference between
// a JSON payload and its TOON encoding.
//
// The token model is a character heuristic (about four characters per
// token, adjusted for non-ASCII text and JSON punctuation). It is an
// approximation for reporting, not a tokenizer, and will disagree with any
// real model's tokenizer.
package savings

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pario-ai/toongate/pkg/models"
)

// Defaults for EstimateOptions.
const (
	DefaultCharsPerToken     = 4.0
	DefaultUnicodeMultiplier = 1.2
	DefaultJSONOverhead      = 1.1
)

// Epoch stamps calculations made without a pricing timestamp.
var Epoch = time.Unix(0, 0).UTC()

// EstimateOptions tunes the heuristic. Zero fields take the defaults.
type EstimateOptions struct {
	CharsPerToken     float64
	UnicodeMultiplier float64
	JSONOverhead      float64
}

func (o EstimateOptions) withDefaults() EstimateOptions {
	if o.CharsPerToken <= 0 {
		o.CharsPerToken = DefaultCharsPerToken
	}
	if o.UnicodeMultiplier <= 0 {
		o.UnicodeMultiplier = DefaultUnicodeMultiplier
	}
	if o.JSONOverhead <= 0 {
		o.JSONOverhead = DefaultJSONOverhead
	}
	return o
}

// EstimateTokens approximates the token count of text. The result is never below 1.
func EstimateTokens(text string, opts EstimateOptions) int {
	opts = opts.withDefaults()

	chars := utf8.RuneCountInString(text)
	unicodeFactor := 1.0
	if hasNonASCII(text) {
		unicodeFactor = opts.UnicodeMultiplier
	}
	jsonFactor := 1.0
	if trimmed := strings.TrimSpace(text); strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		jsonFactor = opts.JSONOverhead
	}

	tokens := int(math.Ceil(float64(chars) / opts.CharsPerToken * unicodeFactor * jsonFactor))
	return max(1, tokens)
}

// EstimateValueTokens estimates tokens for a non-string value by its JSON
// serialization, falling back to its %v formatting.
func EstimateValueTokens(v any, opts EstimateOptions) int {
	if s, ok := v.(string); ok {
		return EstimateTokens(s, opts)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return EstimateTokens(fmt.Sprint(v), opts)
	}
	return EstimateTokens(string(data), opts)
}

// Calculate compares original and converted with the default estimator.
// The result depends only on its arguments.
func Calculate(original, converted string, pricing models.Pricing) models.SavingsCalculation {
	return CalculateWith(original, converted, pricing, EstimateOptions{})
}

// CalculateWith is Calculate with a tuned estimator.
func CalculateWith(original, converted string, pricing models.Pricing, opts EstimateOptions) models.SavingsCalculation {
	origTokens := EstimateTokens(original, opts)
	convTokens := EstimateTokens(converted, opts)
	origSize := utf8.RuneCountInString(original)
	convSize := utf8.RuneCountInString(converted)

	saved := max(0, origTokens-convTokens)
	percentage := 0
	if origTokens > 0 {
		percentage = roundHalfUp(float64(saved) / float64(origTokens) * 100)
	}

	ratio := 1.0
	if origSize > 0 {
		ratio = float64(convSize) / float64(origSize)
	}

	calculatedAt := pricing.Timestamp
	if calculatedAt.IsZero() {
		calculatedAt = Epoch
	}

	return models.SavingsCalculation{
		Original:  models.TokenSize{Tokens: origTokens, Size: origSize},
		Converted: models.TokenSize{Tokens: convTokens, Size: convSize},
		Savings: models.SavingsBreakdown{
			Tokens:          saved,
			Percentage:      percentage,
			Cost:            float64(saved) / 1000 * pricing.Per1K,
			SpaceEfficiency: roundHalfUp((1 - ratio) * 100),
		},
		Metrics: models.SavingsMetrics{
			CompressionRatio: ratio,
			TokensPerByte: models.TokensPerByte{
				Original:  float64(origTokens) / float64(max(origSize, 1)),
				Converted: float64(convTokens) / float64(max(convSize, 1)),
			},
		},
		Pricing:      pricing,
		CalculatedAt: calculatedAt,
	}
}

func hasNonASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return true
		}
	}
	return false
}

// roundHalfUp rounds .5 toward positive infinity.
func roundHalfUp(x float64) int {
	return int(math.Floor(x + 0.5))
}
