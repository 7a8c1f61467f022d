package normalize

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pario-ai/toongate/pkg/models"
)

func mustDecode(t *testing.T, s string) any {
	t.Helper()
	v, err := DecodeJSON([]byte(s))
	require.NoError(t, err)
	return v
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

func TestNormalize_SortsKeysAndDropsUndefined(t *testing.T) {
	in := NewObject(
		Field{Key: "b", Value: float64(1)},
		Field{Key: "a", Value: float64(2)},
		Field{Key: "c", Value: Undefined},
	)

	out := Normalize(in, models.OptimizationOptions{})

	obj, ok := out.(*Object)
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, obj.Keys())
	assert.Equal(t, `{"a":2,"b":1}`, mustJSON(t, obj))
}

func TestNormalize_PreservesOrderWhenSortDisabled(t *testing.T) {
	in := mustDecode(t, `{"z":1,"a":2}`)

	out := Normalize(in, models.OptimizationOptions{SortKeys: models.Bool(false)})

	assert.Equal(t, `{"z":1,"a":2}`, mustJSON(t, out))
}

func TestNormalize_MapDropsUndefined(t *testing.T) {
	in := map[string]any{"b": 1, "a": " x ", "gone": Undefined}

	out := Normalize(in, models.OptimizationOptions{})

	assert.Equal(t, map[string]any{"a": "x", "b": 1}, out)
}

func TestNormalize_DedupeArrays(t *testing.T) {
	tests := []struct {
		name string
		in   string
		opts models.OptimizationOptions
		want string
	}{
		{"numbers", `[1,1,2]`, models.OptimizationOptions{}, `[1,2]`},
		{"first occurrence wins", `[3,1,3,2,1]`, models.OptimizationOptions{}, `[3,1,2]`},
		{"objects with different key order", `[{"a":1,"b":2},{"b":2,"a":1}]`, models.OptimizationOptions{}, `[{"a":1,"b":2}]`},
		{"strings equal after trim", `[" x","x "]`, models.OptimizationOptions{}, `["x"]`},
		{"disabled", `[1,1,2]`, models.OptimizationOptions{DedupeArrays: models.Bool(false)}, `[1,1,2]`},
		{"string and number differ", `["1",1]`, models.OptimizationOptions{}, `["1",1]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Normalize(mustDecode(t, tt.in), tt.opts)
			assert.Equal(t, tt.want, mustJSON(t, out))
		})
	}
}

func TestNormalize_ArrayDropsUndefined(t *testing.T) {
	out := Normalize([]any{Undefined, "a", nil}, models.OptimizationOptions{})
	assert.Equal(t, []any{"a", nil}, out)
}

func TestNormalize_Strings(t *testing.T) {
	tests := []struct {
		name string
		in   string
		opts models.OptimizationOptions
		want string
	}{
		{"trim by default", "  hi  ", models.OptimizationOptions{}, "hi"},
		{"trim disabled", "  hi  ", models.OptimizationOptions{TrimStrings: models.Bool(false)}, "  hi  "},
		{"truncate", " abcdef ", models.OptimizationOptions{MaxStringLength: 3}, "abc"},
		{"truncate counts runes", "héllo", models.OptimizationOptions{MaxStringLength: 2}, "hé"},
		{"truncate exposes space", "ab cd", models.OptimizationOptions{MaxStringLength: 3}, "ab"},
		{"under limit", "abc", models.OptimizationOptions{MaxStringLength: 10}, "abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in, tt.opts))
		})
	}
}

func TestNormalize_CompactBooleans(t *testing.T) {
	in := mustDecode(t, `{"on":true,"off":false,"list":[true]}`)

	out := Normalize(in, models.OptimizationOptions{CompactBooleans: true})

	assert.Equal(t, `{"list":[true],"off":0,"on":1}`, mustJSON(t, out))
}

func TestNormalize_PrimitivesPassThrough(t *testing.T) {
	for _, v := range []any{nil, true, float64(3.5), 7} {
		assert.Equal(t, v, Normalize(v, models.OptimizationOptions{}))
	}
}

func TestNormalize_DoesNotMutateInput(t *testing.T) {
	in := mustDecode(t, `{"b":[" x ","x"],"a":1}`)
	before := mustJSON(t, in)

	_ = Normalize(in, models.OptimizationOptions{})

	assert.Equal(t, before, mustJSON(t, in))
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		`{"b":1,"a":{"y":[1,1,{"k":" v "}],"x":"  s  "}}`,
		`[[1,2],[1,2],[2,1]]`,
		`[{"a":true},{"a":1}]`,
		`"   padded   "`,
		`{"s":"ab   cd ef","n":null}`,
		`[]`,
	}
	optionSets := []models.OptimizationOptions{
		{},
		{MaxStringLength: 4},
		{CompactBooleans: true},
		{SortKeys: models.Bool(false), DedupeArrays: models.Bool(false)},
	}
	for _, in := range inputs {
		for _, opts := range optionSets {
			once := Normalize(mustDecode(t, in), opts)
			twice := Normalize(once, opts)
			assert.Equal(t, mustJSON(t, once), mustJSON(t, twice), "input %s", in)
		}
	}
}

func TestNormalize_Deterministic(t *testing.T) {
	in := map[string]any{"z": []any{"a", "b", "a"}, "m": map[string]any{"q": 1, "p": 2}}

	first := mustJSON(t, Normalize(in, models.OptimizationOptions{}))
	second := mustJSON(t, Normalize(in, models.OptimizationOptions{}))

	assert.Equal(t, first, second)
}

func TestCanonicalString(t *testing.T) {
	obj := NewObject(Field{Key: "b", Value: float64(1)}, Field{Key: "a", Value: []any{"<x>", nil}})

	assert.Equal(t, `{"a":["<x>",null],"b":1}`, CanonicalString(obj))
	assert.Equal(t, CanonicalString(map[string]any{"a": []any{"<x>", nil}, "b": 1}), CanonicalString(obj))
	assert.Equal(t, "1", CanonicalString(float64(1)))
	assert.Equal(t, "undefined", CanonicalString(Undefined))
}

func TestDecodeJSON(t *testing.T) {
	v := mustDecode(t, ` {"k":[1,"two",true,null,{"n":1.5}],"dup":1,"dup":2} `)

	obj, ok := v.(*Object)
	require.True(t, ok)
	assert.Equal(t, []string{"k", "dup"}, obj.Keys())
	dup, _ := obj.Get("dup")
	assert.Equal(t, json.Number("2"), dup)

	big := mustDecode(t, `{"id":12345678901234567890}`)
	assert.Equal(t, `{"id":12345678901234567890}`, mustJSON(t, big))
	assert.Equal(t, `{"id":12345678901234567890}`, CanonicalString(big))

	_, err := DecodeJSON([]byte(`{"a":1} {"b":2}`))
	assert.Error(t, err)
	_, err = DecodeJSON([]byte(`{"a":`))
	assert.Error(t, err)
}

func TestGeneric(t *testing.T) {
	type item struct {
		Name string `json:"name"`
		ID   int    `json:"id"`
	}

	v, err := Generic([]item{{Name: "a", ID: 1}})
	require.NoError(t, err)
	assert.Equal(t, `[{"name":"a","id":1}]`, mustJSON(t, v))

	_, err = Generic(make(chan int))
	assert.Error(t, err)
}

func TestToPlain(t *testing.T) {
	v := ToPlain(mustDecode(t, `{"a":[{"b":1}]}`))
	assert.Equal(t, map[string]any{"a": []any{map[string]any{"b": json.Number("1")}}}, v)
}
