package models

// ConversionResult is the outcome of one JSON <-> TOON conversion.
// Data holds the encoded TOON text for encodes; Decoded holds the value for decodes.
type ConversionResult struct {
	Success          bool    `json:"success"`
	Data             string  `json:"data,omitempty"`
	Decoded          any     `json:"decoded,omitempty"`
	Error            string  `json:"error,omitempty"`
	OriginalSize     int     `json:"original_size"`
	ConvertedSize    int     `json:"converted_size"`
	CompressionRatio float64 `json:"compression_ratio"`
}

// Failed builds an unsuccessful ConversionResult.
func Failed(msg string) ConversionResult {
	return ConversionResult{Success: false, Error: msg}
}

// OptimizationOptions controls how payloads are normalized before encoding.
// Nil pointer fields take their documented default.
type OptimizationOptions struct {
	// TrimStrings trims leading/trailing whitespace. Default true.
	TrimStrings *bool `json:"trim_strings,omitempty" yaml:"trim_strings"`
	// MaxStringLength truncates strings longer than this many runes. Zero disables.
	MaxStringLength int `json:"max_string_length,omitempty" yaml:"max_string_length"`
	// DedupeArrays removes array elements whose canonical form repeats. Default true.
	DedupeArrays *bool `json:"dedupe_arrays,omitempty" yaml:"dedupe_arrays"`
	// SortKeys orders object keys lexicographically. Default true.
	SortKeys *bool `json:"sort_keys,omitempty" yaml:"sort_keys"`
	// CompactBooleans rewrites boolean object values to 0/1.
	CompactBooleans bool `json:"compact_booleans,omitempty" yaml:"compact_booleans"`
}

// Bool returns a pointer to b, for populating OptimizationOptions.
func Bool(b bool) *bool {
	return &b
}

func (o OptimizationOptions) ShouldTrim() bool   { return o.TrimStrings == nil || *o.TrimStrings }
func (o OptimizationOptions) ShouldDedupe() bool { return o.DedupeArrays == nil || *o.DedupeArrays }
func (o OptimizationOptions) ShouldSort() bool   { return o.SortKeys == nil || *o.SortKeys }

// Destructive reports whether the options can change scalar values, which
// rules out an exact decode(encode(x)) round trip.
func (o OptimizationOptions) Destructive() bool {
	return o.ShouldTrim() || o.MaxStringLength > 0 || o.CompactBooleans
}

// ValidationResult is the verdict of an output sanity check.
type ValidationResult struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}
