package models

import "time"

// DefaultPer1K is the fallback cost per 1K tokens used for savings reports.
const DefaultPer1K = 0.002

// Pricing defines the per-1K token cost used to value savings.
// A zero Timestamp stamps calculations with the Unix epoch.
type Pricing struct {
	Per1K     float64   `json:"per_1k" yaml:"per_1k"`
	Timestamp time.Time `json:"timestamp,omitempty" yaml:"-"`
}

// TokenSize pairs an estimated token count with a character count.
type TokenSize struct {
	Tokens int `json:"tokens"`
	Size   int `json:"size"`
}

// SavingsBreakdown is the difference between two serializations.
type SavingsBreakdown struct {
	Tokens          int     `json:"tokens"`
	Percentage      int     `json:"percentage"`
	Cost            float64 `json:"cost"`
	SpaceEfficiency int     `json:"space_efficiency"`
}

// TokensPerByte is the token density of each serialization.
type TokensPerByte struct {
	Original  float64 `json:"original"`
	Converted float64 `json:"converted"`
}

// SavingsMetrics holds derived ratios.
type SavingsMetrics struct {
	CompressionRatio float64       `json:"compression_ratio"`
	TokensPerByte    TokensPerByte `json:"tokens_per_byte"`
}

// SavingsCalculation compares an original (JSON) and converted (TOON) payload.
type SavingsCalculation struct {
	Original     TokenSize        `json:"original"`
	Converted    TokenSize        `json:"converted"`
	Savings      SavingsBreakdown `json:"savings"`
	Metrics      SavingsMetrics   `json:"metrics"`
	Pricing      Pricing          `json:"pricing"`
	CalculatedAt time.Time        `json:"calculated_at"`
}
