package models

import "time"

// ConversionRecord is one successful response conversion, as kept in the ledger.
type ConversionRecord struct {
	ID              string     `json:"id"`
	RequestID       string     `json:"request_id"`
	Path            string     `json:"path"`
	Method          string     `json:"method"`
	ClientType      ClientType `json:"client_type"`
	Confidence      float64    `json:"confidence"`
	CacheHit        bool       `json:"cache_hit"`
	OriginalTokens  int        `json:"original_tokens"`
	ConvertedTokens int        `json:"converted_tokens"`
	TokensSaved     int        `json:"tokens_saved"`
	Percentage      int        `json:"percentage"`
	CostSaved       float64    `json:"cost_saved"`
	OriginalSize    int        `json:"original_size"`
	ConvertedSize   int        `json:"converted_size"`
	LatencyMs       int64      `json:"latency_ms"`
	CreatedAt       time.Time  `json:"created_at"`
}

// NewConversionRecord fills the savings columns of a record from a calculation.
func NewConversionRecord(requestID, path, method string, client ClientDetectionResult, s SavingsCalculation) ConversionRecord {
	return ConversionRecord{
		RequestID:       requestID,
		Path:            path,
		Method:          method,
		ClientType:      client.Type,
		Confidence:      client.Confidence,
		OriginalTokens:  s.Original.Tokens,
		ConvertedTokens: s.Converted.Tokens,
		TokensSaved:     s.Savings.Tokens,
		Percentage:      s.Savings.Percentage,
		CostSaved:       s.Savings.Cost,
		OriginalSize:    s.Original.Size,
		ConvertedSize:   s.Converted.Size,
	}
}

// ConversionSummary aggregates ledger records for one path.
type ConversionSummary struct {
	Path            string  `json:"path"`
	Conversions     int     `json:"conversions"`
	CacheHits       int     `json:"cache_hits"`
	OriginalTokens  int64   `json:"original_tokens"`
	ConvertedTokens int64   `json:"converted_tokens"`
	TokensSaved     int64   `json:"tokens_saved"`
	CostSaved       float64 `json:"cost_saved"`
}

// LedgerQuery filters ledger records.
type LedgerQuery struct {
	Path       string
	ClientType ClientType
	RequestID  string
	Since      time.Time
	Limit      int
}
