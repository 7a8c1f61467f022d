// Package normalize reshapes JSON-like values into a deterministic form
// before they are encoded: strings are trimmed, undefined values dropped,
// duplicate array elements removed and object keys sorted.
//
// Normalize is pure and idempotent: Normalize(Normalize(v)) equals
// Normalize(v), and the input is never mutated.
package normalize

import (
	"sort"
	"strings"
	"unicode"

	"github.com/pario-ai/toongate/pkg/models"
)

// Normalize returns the normalized form of v under opts.
func Normalize(v any, opts models.OptimizationOptions) any {
	switch t := v.(type) {
	case *Object:
		return normalizeObject(t, opts)
	case map[string]any:
		return normalizeMap(t, opts)
	case []any:
		return normalizeArray(t, opts)
	case string:
		return normalizeString(t, opts)
	default:
		return v
	}
}

func normalizeObject(o *Object, opts models.OptimizationOptions) *Object {
	fields := make([]Field, 0, o.Len())
	for _, f := range o.Fields() {
		if IsUndefined(f.Value) {
			continue
		}
		fields = append(fields, Field{Key: f.Key, Value: normalizeMember(f.Value, opts)})
	}
	if opts.ShouldSort() {
		sort.SliceStable(fields, func(i, j int) bool { return fields[i].Key < fields[j].Key })
	}
	return NewObject(fields...)
}

// Go maps are unordered; encoders emit their keys sorted, so SortKeys has
// nothing further to do here.
func normalizeMap(m map[string]any, opts models.OptimizationOptions) map[string]any {
	out := make(map[string]any, len(m))
	for k, val := range m {
		if IsUndefined(val) {
			continue
		}
		out[k] = normalizeMember(val, opts)
	}
	return out
}

func normalizeMember(v any, opts models.OptimizationOptions) any {
	n := Normalize(v, opts)
	if b, ok := n.(bool); ok && opts.CompactBooleans {
		if b {
			return float64(1)
		}
		return float64(0)
	}
	return n
}

func normalizeArray(items []any, opts models.OptimizationOptions) []any {
	out := make([]any, 0, len(items))
	for _, item := range items {
		n := Normalize(item, opts)
		if IsUndefined(n) {
			continue
		}
		out = append(out, n)
	}
	if !opts.ShouldDedupe() {
		return out
	}

	seen := make(map[string]struct{}, len(out))
	deduped := out[:0]
	for _, item := range out {
		key := CanonicalString(item)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		deduped = append(deduped, item)
	}
	return deduped
}

func normalizeString(s string, opts models.OptimizationOptions) string {
	trim := opts.ShouldTrim()
	if trim {
		s = strings.TrimSpace(s)
	}
	if opts.MaxStringLength > 0 {
		runes := []rune(s)
		if len(runes) > opts.MaxStringLength {
			s = string(runes[:opts.MaxStringLength])
			// A cut can expose trailing whitespace; trim it so a second pass is a no-op.
			if trim {
				s = strings.TrimRightFunc(s, unicode.IsSpace)
			}
		}
	}
	return s
}
