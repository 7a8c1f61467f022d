package mcp

import (
	"fmt"
	"strings"

	"github.com/pario-ai/toongate/pkg/models"
)

// formatSavings formats a savings calculation as text.
func formatSavings(c models.SavingsCalculation) string {
	return fmt.Sprintf("Token Savings\n"+
		"  Original:  %d tokens (%d chars)\n"+
		"  Converted: %d tokens (%d chars)\n"+
		"  Saved:     %d tokens (%d%%)\n"+
		"  Cost:      $%.4f at $%.4f/1K\n"+
		"  Ratio:     %.2f\n",
		c.Original.Tokens, c.Original.Size,
		c.Converted.Tokens, c.Converted.Size,
		c.Savings.Tokens, c.Savings.Percentage,
		c.Savings.Cost, c.Pricing.Per1K,
		c.Metrics.CompressionRatio)
}

func formatDetection(r models.ClientDetectionResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Client:     %s\n", r.Type)
	fmt.Fprintf(&b, "Confidence: %.2f\n", r.Confidence)
	fmt.Fprintf(&b, "Scores:     LLM=%.2f regular=%.2f\n", r.Scores.LLM, r.Scores.Regular)
	if len(r.MatchedPatterns) > 0 {
		fmt.Fprintf(&b, "Matched:    %s\n", strings.Join(r.MatchedPatterns, ", "))
	}
	return b.String()
}

// formatCacheStats formats cache stats as text.
func formatCacheStats(stats models.CacheStats) string {
	return fmt.Sprintf("Cache Statistics\n"+
		"  Entries:   %d\n"+
		"  Hits:      %d\n"+
		"  Misses:    %d\n"+
		"  Sets:      %d\n"+
		"  Evictions: %d\n"+
		"  Hit Rate:  %.1f%%\n",
		stats.Entries, stats.Hits, stats.Misses, stats.Sets, stats.Evictions, stats.HitRate())
}

// formatLedgerSummary formats per-path ledger totals as a text table.
func formatLedgerSummary(rows []models.ConversionSummary) string {
	if len(rows) == 0 {
		return "No conversions recorded."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-30s %8s %8s %10s %10s %10s %10s\n",
		"Path", "Convs", "Cached", "Original", "Converted", "Saved", "Cost")
	b.WriteString(strings.Repeat("-", 92) + "\n")
	var saved int64
	var cost float64
	for _, r := range rows {
		path := r.Path
		if len(path) > 30 {
			path = path[:13] + "..." + path[len(path)-14:]
		}
		fmt.Fprintf(&b, "%-30s %8d %8d %10d %10d %10d %10s\n",
			path, r.Conversions, r.CacheHits, r.OriginalTokens, r.ConvertedTokens, r.TokensSaved,
			fmt.Sprintf("$%.4f", r.CostSaved))
		saved += r.TokensSaved
		cost += r.CostSaved
	}
	fmt.Fprintf(&b, "\nTotal saved: %d tokens ($%.4f)\n", saved, cost)
	return b.String()
}
