package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/pario-ai/toongate/pkg/detect"
	"github.com/pario-ai/toongate/pkg/models"
	"github.com/pario-ai/toongate/pkg/normalize"
	"github.com/pario-ai/toongate/pkg/savings"
)

type toolHandler func(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult

var toolHandlers = map[string]toolHandler{
	"toon_convert":        handleConvert,
	"toon_decode":         handleDecode,
	"toon_detect_client":  handleDetectClient,
	"toon_savings":        handleSavings,
	"toon_cache_stats":    handleCacheStats,
	"toon_ledger_summary": handleLedgerSummary,
}

var allTools = []ToolDefinition{
	{
		Name:        "toon_convert",
		Description: "Convert a JSON document to TOON and report the estimated token savings.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"json": map[string]any{
					"type":        "string",
					"description": "JSON document to convert",
				},
				"sort_keys": map[string]any{
					"type":        "boolean",
					"description": "Sort object keys (default true)",
				},
				"dedupe_arrays": map[string]any{
					"type":        "boolean",
					"description": "Drop repeated array elements (default true)",
				},
				"trim_strings": map[string]any{
					"type":        "boolean",
					"description": "Trim surrounding whitespace from strings (default true)",
				},
				"max_string_length": map[string]any{
					"type":        "integer",
					"description": "Truncate longer strings to this many characters (optional)",
				},
				"compact_booleans": map[string]any{
					"type":        "boolean",
					"description": "Rewrite boolean fields as 0/1 (optional)",
				},
			},
			"required": []string{"json"},
		},
	},
	{
		Name:        "toon_decode",
		Description: "Decode TOON text back to JSON.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"toon": map[string]any{
					"type":        "string",
					"description": "TOON text to decode",
				},
			},
			"required": []string{"toon"},
		},
	},
	{
		Name:        "toon_detect_client",
		Description: "Classify a client as LLM or regular from its user agent and headers.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"user_agent": map[string]any{
					"type":        "string",
					"description": "User-Agent header value (optional)",
				},
				"headers": map[string]any{
					"type":                 "object",
					"description":          "Request headers by name (optional)",
					"additionalProperties": map[string]any{"type": "string"},
				},
			},
		},
	},
	{
		Name:        "toon_savings",
		Description: "Estimate tokens and cost saved between an original and a converted payload.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"original": map[string]any{
					"type":        "string",
					"description": "Original payload, usually JSON",
				},
				"converted": map[string]any{
					"type":        "string",
					"description": "Converted payload, usually TOON",
				},
			},
			"required": []string{"original", "converted"},
		},
	},
	{
		Name:        "toon_cache_stats",
		Description: "Show conversion cache statistics including hit rate.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	},
	{
		Name:        "toon_ledger_summary",
		Description: "Summarize recorded conversions and savings per path.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"since": map[string]any{
					"type":        "string",
					"description": "Start date in YYYY-MM-DD format (default: beginning of current month)",
				},
			},
		},
	},
}

func textResult(text string) ToolCallResult {
	return ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
	}
}

func errorResult(text string) ToolCallResult {
	return ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
		IsError: true,
	}
}

type convertArgs struct {
	JSON            string `json:"json"`
	SortKeys        *bool  `json:"sort_keys"`
	DedupeArrays    *bool  `json:"dedupe_arrays"`
	TrimStrings     *bool  `json:"trim_strings"`
	MaxStringLength *int   `json:"max_string_length"`
	CompactBooleans *bool  `json:"compact_booleans"`
}

// options layers the call's overrides on the server defaults.
func (a convertArgs) options(base models.OptimizationOptions) models.OptimizationOptions {
	if a.SortKeys != nil {
		base.SortKeys = a.SortKeys
	}
	if a.DedupeArrays != nil {
		base.DedupeArrays = a.DedupeArrays
	}
	if a.TrimStrings != nil {
		base.TrimStrings = a.TrimStrings
	}
	if a.MaxStringLength != nil && *a.MaxStringLength >= 0 {
		base.MaxStringLength = *a.MaxStringLength
	}
	if a.CompactBooleans != nil {
		base.CompactBooleans = *a.CompactBooleans
	}
	return base
}

func handleConvert(_ context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args convertArgs
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return errorResult("Invalid arguments: " + err.Error())
	}
	if strings.TrimSpace(args.JSON) == "" {
		return errorResult("json is required")
	}

	payload, err := normalize.DecodeJSON([]byte(args.JSON))
	if err != nil {
		return errorResult("Invalid JSON: " + err.Error())
	}
	res, hit := s.convert(args.JSON, payload, args.options(s.deps.Optimization))
	if !res.Success {
		return errorResult("Conversion failed: " + res.Error)
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, []byte(args.JSON)); err != nil {
		compact.Reset()
		compact.WriteString(args.JSON)
	}
	calc := savings.Calculate(compact.String(), res.Data, s.pricing())
	report := formatSavings(calc)
	if hit {
		report += "  Source:    cache\n"
	}
	return textResult(res.Data + "\n\n" + report)
}

type convertKey struct {
	JSON    string                     `json:"json"`
	Options models.OptimizationOptions `json:"options"`
}

// convert runs the conversion through the cache when one is configured.
// Only successful results are stored.
func (s *Server) convert(text string, payload any, opts models.OptimizationOptions) (models.ConversionResult, bool) {
	if s.deps.Cache == nil {
		return s.deps.Converter.ToTOON(payload, opts), false
	}
	key, ok := s.deps.Cache.HashData(convertKey{JSON: text, Options: opts})
	if ok {
		if res, hit := s.deps.Cache.Get(key); hit {
			return res, true
		}
	}
	res := s.deps.Converter.ToTOON(payload, opts)
	if ok && res.Success {
		s.deps.Cache.Set(key, res)
	}
	return res, false
}

func handleDecode(_ context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args struct {
		TOON string `json:"toon"`
	}
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return errorResult("Invalid arguments: " + err.Error())
	}
	res := s.deps.Converter.FromTOON(args.TOON)
	if !res.Success {
		return errorResult("Decode failed: " + res.Error)
	}
	out, err := json.MarshalIndent(normalize.ToPlain(res.Decoded), "", "  ")
	if err != nil {
		return errorResult("Encoding JSON failed: " + err.Error())
	}
	return textResult(string(out))
}

type detectArgs struct {
	UserAgent string            `json:"user_agent"`
	Headers   map[string]string `json:"headers"`
}

func handleDetectClient(_ context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args detectArgs
	if len(rawArgs) > 0 {
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return errorResult("Invalid arguments: " + err.Error())
		}
	}
	res := detect.Detect(detect.Request{
		Headers:   args.Headers,
		UserAgent: args.UserAgent,
	}, detect.Options{
		ConfidenceThreshold: s.deps.ConfidenceThreshold,
		Clock:               s.now,
	})
	return textResult(formatDetection(res))
}

func handleSavings(_ context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args struct {
		Original  string `json:"original"`
		Converted string `json:"converted"`
	}
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return errorResult("Invalid arguments: " + err.Error())
	}
	if args.Original == "" || args.Converted == "" {
		return errorResult("original and converted are required")
	}
	return textResult(formatSavings(savings.Calculate(args.Original, args.Converted, s.pricing())))
}

func handleCacheStats(_ context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	if s.deps.Cache == nil {
		return textResult("Cache is not configured.")
	}
	return textResult(formatCacheStats(s.deps.Cache.Stats()))
}

func handleLedgerSummary(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	if s.deps.Ledger == nil {
		return textResult("Conversion ledger is not configured.")
	}
	var args struct {
		Since string `json:"since"`
	}
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}

	since := beginningOfMonth(s.now())
	if args.Since != "" {
		t, err := time.Parse("2006-01-02", args.Since)
		if err != nil {
			return errorResult("Invalid since date (use YYYY-MM-DD): " + err.Error())
		}
		since = t
	}

	rows, err := s.deps.Ledger.Summary(ctx, since)
	if err != nil {
		return errorResult("Error fetching ledger summary: " + err.Error())
	}
	return textResult(formatLedgerSummary(rows))
}

func (s *Server) pricing() models.Pricing {
	p := s.deps.Pricing
	if p.Per1K == 0 {
		p.Per1K = models.DefaultPer1K
	}
	p.Timestamp = s.now().UTC()
	return p
}

func beginningOfMonth(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}
