package persist

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testState is a struct for round-trip codec testing.
type testState struct {
	Name   string         `json:"name"   yaml:"name"`
	Count  int            `json:"count"  yaml:"count"`
	Values map[string]int `json:"values" yaml:"values"`
}

func TestJSONCodec_RoundTrip(t *testing.T) {
	t.Parallel()

	codec := NewJSONCodec()
	original := testState{Name: "test", Count: 42, Values: map[string]int{"a": 1, "b": 2}}

	var buf bytes.Buffer

	require.NoError(t, codec.Encode(&buf, original))

	var decoded testState

	require.NoError(t, codec.Decode(&buf, &decoded))
	assert.Equal(t, original, decoded)
}

func TestJSONCodec_PrettyAndCompact(t *testing.T) {
	t.Parallel()

	var pretty, compact bytes.Buffer

	require.NoError(t, NewJSONCodec().Encode(&pretty, testState{Name: "<a>"}))
	require.NoError(t, (&JSONCodec{}).Encode(&compact, testState{Name: "<a>"}))

	assert.Contains(t, pretty.String(), defaultIndent)
	assert.Contains(t, pretty.String(), "<a>")
	assert.LessOrEqual(t, strings.Count(compact.String(), "\n"), 1)
	assert.Equal(t, ".json", NewJSONCodec().Extension())
}

func TestJSONCodec_Errors(t *testing.T) {
	t.Parallel()

	codec := NewJSONCodec()

	var buf bytes.Buffer

	// Channels cannot be JSON-encoded.
	err := codec.Encode(&buf, make(chan int))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "json encode")

	var decoded testState

	err = codec.Decode(strings.NewReader("not valid json{{{"), &decoded)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "json decode")
}

func TestYAMLCodec_RoundTrip(t *testing.T) {
	t.Parallel()

	codec := NewYAMLCodec()
	original := testState{Name: "yaml", Count: 7, Values: map[string]int{"x": 3}}

	var buf bytes.Buffer

	require.NoError(t, codec.Encode(&buf, original))
	assert.Contains(t, buf.String(), "name: yaml")

	var decoded testState

	require.NoError(t, codec.Decode(&buf, &decoded))
	assert.Equal(t, original, decoded)
	assert.Equal(t, ".yaml", codec.Extension())
}

func TestCodecFor(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"json", ".json"} {
		codec, err := CodecFor(name)
		require.NoError(t, err)
		assert.IsType(t, &JSONCodec{}, codec)
	}

	for _, name := range []string{"yaml", "yml", ".yaml", ".yml"} {
		codec, err := CodecFor(name)
		require.NoError(t, err)
		assert.IsType(t, &YAMLCodec{}, codec)
	}

	_, err := CodecFor("gob")
	require.ErrorIs(t, err, ErrUnknownFormat)
}
