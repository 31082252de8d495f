package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalScalars(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"string", "hello", `"hello"`},
		{"address", Address("0xabc"), `"0xabc"`},
		{"int", 42, "42"},
		{"negative int64", int64(-7), "-7"},
		{"max uint64", uint64(18446744073709551615), "18446744073709551615"},
		{"hub id", HubID(3), "3"},
		{"group id", GroupID(9), "9"},
		{"bool", true, "true"},
		{"string slice", []string{"a", "b"}, `["a","b"]`},
		{"empty object", Attrs{}, "{}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalSortsNestedKeys(t *testing.T) {
	attrs := Attrs{
		"z": map[string]any{"b": 1, "a": 2},
		"a": []any{"x", 3, false},
	}

	result, err := MarshalCanonical(attrs)
	require.NoError(t, err)
	assert.Equal(t, `{"a":["x",3,false],"z":{"a":2,"b":1}}`, string(result))
}

func TestMarshalCanonicalUTF16Ordering(t *testing.T) {
	// U+10000 encodes as the surrogate pair 0xD800 0xDC00, so it sorts
	// before U+E000 even though its UTF-8 bytes sort after.
	obj := Attrs{
		"\uE000":     1,
		"\U00010000": 2,
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"`+"\U00010000"+`":2,"`+"\uE000"+`":1}`, string(result))
}

func TestMarshalCanonicalNoHTMLEscape(t *testing.T) {
	result, err := MarshalCanonical("<a&b>")
	require.NoError(t, err)
	assert.Equal(t, `"<a&b>"`, string(result))
}

func TestMarshalCanonicalLineSeparators(t *testing.T) {
	result, err := MarshalCanonical("a\u2028b\u2029c")
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\u2029c\"", string(result))

	// A literal backslash followed by the text u2028 stays escaped.
	result, err = MarshalCanonical(`x\u2028`)
	require.NoError(t, err)
	assert.Equal(t, `"x\\u2028"`, string(result))
}

func TestMarshalCanonicalNFC(t *testing.T) {
	// "e" + combining acute normalizes to the precomposed form.
	result, err := MarshalCanonical("e\u0301")
	require.NoError(t, err)
	assert.Equal(t, "\"\u00e9\"", string(result))
}

func TestMarshalCanonicalRejects(t *testing.T) {
	_, err := MarshalCanonical(nil)
	assert.Error(t, err)

	_, err = MarshalCanonical(Attrs{"price": 1.5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "floats are forbidden")

	_, err = MarshalCanonical(struct{}{})
	assert.Error(t, err)
}

func TestSortedKeys(t *testing.T) {
	keys := SortedKeys(map[string]int{"b": 1, "a": 2, "c": 3})
	assert.Equal(t, []string{"a", "b", "c"}, keys)
}

func TestMarshalCanonicalJSONNumber(t *testing.T) {
	result, err := MarshalCanonical(Attrs{"n": json.Number("12")})
	require.NoError(t, err)
	assert.Equal(t, `{"n":12}`, string(result))

	_, err = MarshalCanonical(json.Number("1.5"))
	assert.Error(t, err)
}
