// Package convert turns JSON-like values into TOON text and back.
//
// Conversions never return errors or panic across the package boundary:
// every failure is reported as a models.ConversionResult with Success false
// and a readable Error, so callers can fall back to plain JSON.
package convert

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/pario-ai/toongate/pkg/models"
	"github.com/pario-ai/toongate/pkg/normalize"
	"github.com/pario-ai/toongate/pkg/validate"
)

var (
	// ErrNilInput is reported when there is nothing to encode.
	ErrNilInput = errors.New("cannot convert null or undefined to TOON")
	// ErrEmptyInput is reported when decode input is blank.
	ErrEmptyInput = errors.New("TOON input cannot be empty")
)

// Converter runs the normalize, encode, validate pipeline over a Codec.
type Converter struct {
	codec Codec
}

// New returns a Converter over codec, or over TOONCodec if codec is nil.
func New(codec Codec) *Converter {
	if codec == nil {
		codec = TOONCodec{}
	}
	return &Converter{codec: codec}
}

var defaultConverter = New(nil)

// ToTOON converts data with the default TOON codec.
func ToTOON(data any, opts models.OptimizationOptions) models.ConversionResult {
	return defaultConverter.ToTOON(data, opts)
}

// FromTOON decodes text with the default TOON codec.
func FromTOON(text string) models.ConversionResult {
	return defaultConverter.FromTOON(text)
}

// ToTOON normalizes data per opts and encodes it. Sizes are measured in
// characters; OriginalSize is the length of data's compact JSON form.
func (c *Converter) ToTOON(data any, opts models.OptimizationOptions) (res models.ConversionResult) {
	defer func() {
		if r := recover(); r != nil {
			res = models.Failed(fmt.Sprintf("TOON conversion failed: %v", r))
		}
	}()

	if data == nil || normalize.IsUndefined(data) {
		return models.Failed(ErrNilInput.Error())
	}

	generic, err := normalize.Generic(data)
	if err != nil {
		return models.Failed("TOON conversion failed: " + err.Error())
	}
	original, err := json.Marshal(generic)
	if err != nil {
		return models.Failed("TOON conversion failed: " + err.Error())
	}

	text, err := c.codec.Encode(normalize.Normalize(generic, opts))
	if err != nil {
		return models.Failed("TOON conversion failed: " + err.Error())
	}
	if v := validate.Encoded(text); !v.Valid {
		return models.Failed(v.Error)
	}

	originalSize := utf8.RuneCount(original)
	convertedSize := utf8.RuneCountInString(text)
	return models.ConversionResult{
		Success:          true,
		Data:             text,
		OriginalSize:     originalSize,
		ConvertedSize:    convertedSize,
		CompressionRatio: ratio(convertedSize, originalSize),
	}
}

// FromTOON decodes text. Decoded carries the value; ConvertedSize is the
// length of its compact JSON form.
func (c *Converter) FromTOON(text string) (res models.ConversionResult) {
	defer func() {
		if r := recover(); r != nil {
			res = models.Failed(fmt.Sprintf("TOON parsing failed: %v", r))
		}
	}()

	if strings.TrimSpace(text) == "" {
		return models.Failed(ErrEmptyInput.Error())
	}

	v, err := c.codec.Decode(text)
	if err != nil {
		return models.Failed("TOON parsing failed: " + err.Error())
	}
	if check := validate.Decoded(v); !check.Valid {
		return models.Failed(check.Error)
	}
	out, err := json.Marshal(v)
	if err != nil {
		return models.Failed("TOON parsing failed: " + err.Error())
	}

	originalSize := utf8.RuneCountInString(text)
	convertedSize := utf8.RuneCount(out)
	return models.ConversionResult{
		Success:          true,
		Decoded:          v,
		OriginalSize:     originalSize,
		ConvertedSize:    convertedSize,
		CompressionRatio: ratio(convertedSize, originalSize),
	}
}

func ratio(converted, original int) float64 {
	if original == 0 {
		return 1
	}
	return float64(converted) / float64(original)
}
