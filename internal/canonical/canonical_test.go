package canonical

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeSortsKeys(t *testing.T) {
	out, err := Encode(map[string]any{"b": 1, "a": 2})
	require.NoError(t, err)
	assert.Equal(t, "a2616102616201", hex.EncodeToString(out))
}

func TestEncodeDeterministic(t *testing.T) {
	build := func(order []string) map[string]any {
		fields := map[string]any{}
		for _, key := range order {
			fields[key] = map[string]any{
				"origin": "ID",
				"grams":  250,
				"tags":   []any{"organic", "fair-trade"},
			}
		}
		return fields
	}

	first, err := Encode(build([]string{"x", "y", "z", "long-key"}))
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		again, err := Encode(build([]string{"long-key", "z", "y", "x"}))
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestEncodeIntegralFloatsMatchIntegers(t *testing.T) {
	fromInt, err := Encode(map[string]any{"n": 3})
	require.NoError(t, err)
	fromFloat, err := Encode(map[string]any{"n": 3.0})
	require.NoError(t, err)
	fromJSON, err := Encode(map[string]any{"n": json.Number("3")})
	require.NoError(t, err)

	assert.Equal(t, fromInt, fromFloat)
	assert.Equal(t, fromInt, fromJSON)

	fractional, err := Encode(map[string]any{"n": 3.5})
	require.NoError(t, err)
	assert.NotEqual(t, fromInt, fractional)
}

func TestEncodeTypedContainers(t *testing.T) {
	typed, err := Encode(map[string]any{
		"tags":  []string{"a", "b"},
		"attrs": map[string]string{"color": "red"},
	})
	require.NoError(t, err)

	generic, err := Encode(map[string]any{
		"tags":  []any{"a", "b"},
		"attrs": map[string]any{"color": "red"},
	})
	require.NoError(t, err)

	assert.Equal(t, generic, typed)
}

func TestEncodeRejectsInvalidValues(t *testing.T) {
	cyclicMap := map[string]any{}
	cyclicMap["self"] = cyclicMap

	cyclicList := []any{nil}
	cyclicList[0] = cyclicList

	cases := []struct {
		name   string
		fields map[string]any
		want   error
	}{
		{name: "nan", fields: map[string]any{"n": math.NaN()}, want: ErrNonFiniteNumber},
		{name: "inf", fields: map[string]any{"n": math.Inf(1)}, want: ErrNonFiniteNumber},
		{name: "nested_inf", fields: map[string]any{"m": map[string]any{"n": math.Inf(-1)}}, want: ErrNonFiniteNumber},
		{name: "null", fields: map[string]any{"n": nil}, want: ErrUnsupportedValue},
		{name: "channel", fields: map[string]any{"c": make(chan int)}, want: ErrUnsupportedValue},
		{name: "func", fields: map[string]any{"f": func() {}}, want: ErrUnsupportedValue},
		{name: "struct", fields: map[string]any{"s": struct{ A int }{A: 1}}, want: ErrUnsupportedValue},
		{name: "int_keys", fields: map[string]any{"m": map[int]string{1: "a"}}, want: ErrUnsupportedValue},
		{name: "cyclic_map", fields: cyclicMap, want: ErrCyclicValue},
		{name: "cyclic_list", fields: map[string]any{"l": cyclicList}, want: ErrCyclicValue},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Encode(tc.fields)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)

			var encErr *EncodingError
			assert.True(t, errors.As(err, &encErr))
		})
	}
}

func TestEncodeAllowsSharedSiblings(t *testing.T) {
	shared := []any{"x"}
	_, err := Encode(map[string]any{"a": shared, "b": shared})
	assert.NoError(t, err)
}

func TestEncodingErrorPath(t *testing.T) {
	_, err := Encode(map[string]any{"outer": map[string]any{"inner": math.NaN()}})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "$.outer.inner"), err.Error())
}

func TestUnmarshalRoundTrip(t *testing.T) {
	in := map[string]any{"name": "Widget", "count": 2, "nested": map[string]any{"ok": true}}
	encoded, err := Encode(in)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, Unmarshal(encoded, &decoded))

	reencoded, err := Encode(decoded)
	require.NoError(t, err)
	assert.Equal(t, encoded, reencoded)
}

func TestUnmarshalRejectsDuplicateKeys(t *testing.T) {
	// {"a": 1, "a": 2}
	raw, err := hex.DecodeString("a2616101616102")
	require.NoError(t, err)

	var decoded map[string]any
	assert.Error(t, Unmarshal(raw, &decoded))
}
