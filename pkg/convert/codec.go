package convert

import (
	"encoding/json"
	"math/big"
	"strconv"

	"github.com/toon-format/toon-go"

	"github.com/pario-ai/toongate/pkg/normalize"
)

// Codec encodes generic values to a dense text format and back.
type Codec interface {
	Encode(v any) (string, error)
	Decode(text string) (any, error)
}

// TOONCodec is the Codec backed by toon-go.
type TOONCodec struct {
	// LengthMarkers prefixes array lengths with '#'.
	LengthMarkers bool
}

func (c TOONCodec) Encode(v any) (string, error) {
	out, err := toon.Marshal(toonValue(v), toon.WithLengthMarkers(c.LengthMarkers))
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (c TOONCodec) Decode(text string) (any, error) {
	var v any
	if err := toon.Unmarshal([]byte(text), &v); err != nil {
		return nil, err
	}
	return v, nil
}

// toonValue rebuilds v for the encoder. Ordered objects become toon.Object,
// which is emitted in field order; plain maps are emitted with sorted keys.
func toonValue(v any) any {
	switch t := v.(type) {
	case *normalize.Object:
		fields := make([]toon.Field, 0, t.Len())
		for _, f := range t.Fields() {
			if normalize.IsUndefined(f.Value) {
				continue
			}
			fields = append(fields, toon.Field{Key: f.Key, Value: toonValue(f.Value)})
		}
		return toon.NewObject(fields...)
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			if normalize.IsUndefined(val) {
				continue
			}
			m[k] = toonValue(val)
		}
		return m
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = toonValue(item)
		}
		return out
	case json.Number:
		return exactNumber(t)
	}
	if normalize.IsUndefined(v) {
		return nil
	}
	return v
}

// exactNumber passes integer literals to the encoder as integers so no digit
// is lost: toon-go writes them verbatim up to 2^53 and as decimal strings
// beyond. Fractions and exponents go through its float formatting.
func exactNumber(n json.Number) any {
	s := n.String()
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if u, err := strconv.ParseUint(s, 10, 64); err == nil {
		return u
	}
	if b, ok := new(big.Int).SetString(s, 10); ok {
		return b
	}
	return n
}
