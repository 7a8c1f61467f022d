package models

import "time"

// CacheEntry is a stored conversion result with its lifetime bookkeeping.
// ExpiresAt is always CreatedAt plus the TTL the entry was stored with.
type CacheEntry struct {
	Value       ConversionResult `json:"value"`
	CreatedAt   time.Time        `json:"created_at"`
	ExpiresAt   time.Time        `json:"expires_at"`
	AccessCount int64            `json:"access_count"`
}

// Expired reports whether the entry is past its expiry at now.
func (e *CacheEntry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// CacheStats reports cache performance counters for the life of a cache.
type CacheStats struct {
	Entries   int64 `json:"entries"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Sets      int64 `json:"sets"`
	Evictions int64 `json:"evictions"`
}

// HitRate returns hits as a percentage of all lookups.
func (s CacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}
