package normalize

import (
	"fmt"
	"sort"
	"strings"
)

// CanonicalString serializes v with object keys in sorted order. Two values
// with the same canonical string are considered duplicates.
func CanonicalString(v any) string {
	var b strings.Builder
	writeCanonical(&b, v)
	return b.String()
}

func writeCanonical(b *strings.Builder, v any) {
	switch t := v.(type) {
	case undefinedValue:
		b.WriteString("undefined")
	case *Object:
		fields := t.Fields()
		sort.SliceStable(fields, func(i, j int) bool { return fields[i].Key < fields[j].Key })
		b.WriteByte('{')
		first := true
		for _, f := range fields {
			if IsUndefined(f.Value) {
				continue
			}
			if !first {
				b.WriteByte(',')
			}
			first = false
			writeLiteral(b, f.Key)
			b.WriteByte(':')
			writeCanonical(b, f.Value)
		}
		b.WriteByte('}')
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k, val := range t {
			if !IsUndefined(val) {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			writeLiteral(b, k)
			b.WriteByte(':')
			writeCanonical(b, t[k])
		}
		b.WriteByte('}')
	case []any:
		b.WriteByte('[')
		for i, item := range t {
			if i > 0 {
				b.WriteByte(',')
			}
			writeCanonical(b, item)
		}
		b.WriteByte(']')
	default:
		writeLiteral(b, v)
	}
}

func writeLiteral(b *strings.Builder, v any) {
	data, err := marshalLiteral(v)
	if err != nil {
		fmt.Fprintf(b, "%v", v)
		return
	}
	b.Write(data)
}
