package models

import "time"

// ClientType classifies the consumer of a response.
type ClientType string

const (
	ClientLLM     ClientType = "LLM"
	ClientRegular ClientType = "regular"
)

// Scores holds the raw weight accumulated for each client type.
type Scores struct {
	LLM     float64 `json:"LLM"`
	Regular float64 `json:"regular"`
}

// ClientDetectionResult is the classifier's verdict for a single request.
type ClientDetectionResult struct {
	Type            ClientType `json:"type"`
	Confidence      float64    `json:"confidence"`
	Scores          Scores     `json:"scores"`
	MatchedPatterns []string   `json:"matched_patterns"`
	DetectedAt      time.Time  `json:"detected_at"`
}

// IsLLM reports whether the request was classified as an LLM client.
func (r ClientDetectionResult) IsLLM() bool {
	return r.Type == ClientLLM
}
