// Package validate holds the sanity gates applied to codec output before a
// conversion is reported as successful. The checks only reject; they never repair.
package validate

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/pario-ai/toongate/pkg/models"
	"github.com/pario-ai/toongate/pkg/normalize"
)

// Encoded rejects encoder output that is blank.
func Encoded(text string) models.ValidationResult {
	if strings.TrimSpace(text) == "" {
		return models.ValidationResult{Valid: false, Error: "TOON output cannot be empty"}
	}
	return models.ValidationResult{Valid: true}
}

// Decoded rejects decoder output that is undefined, a non-finite number or an
// empty array. Empty objects, null, false and 0 are valid.
func Decoded(v any) models.ValidationResult {
	if normalize.IsUndefined(v) {
		return models.ValidationResult{Valid: false, Error: "decoded data cannot be undefined"}
	}
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return models.ValidationResult{Valid: false, Error: "decoded number must be finite"}
		}
	case float32:
		f := float64(t)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return models.ValidationResult{Valid: false, Error: "decoded number must be finite"}
		}
	case json.Number:
		if _, err := t.Float64(); err != nil && !isRangeErr(err) {
			return models.ValidationResult{Valid: false, Error: "decoded number is malformed"}
		}
	case []any:
		if len(t) == 0 {
			return models.ValidationResult{Valid: false, Error: "decoded array cannot be empty"}
		}
	}
	return models.ValidationResult{Valid: true}
}

// isRangeErr reports a literal too large for float64. Such a literal is
// still a finite number.
func isRangeErr(err error) bool {
	return errors.Is(err, strconv.ErrRange)
}

// IsTOONString reports whether text passes Encoded.
func IsTOONString(text string) bool {
	return Encoded(text).Valid
}
