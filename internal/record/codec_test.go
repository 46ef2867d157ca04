package record

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipeflow/internal/definition"
)

func TestCodec_NormalisesRecords(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	b, err := Encode(map[string]any{
		"id":      7,
		"tags":    []string{"a", "b"},
		"at":      at,
		"ordered": definition.Ordered{{Key: "k", Value: 1}},
		"counts":  map[int]int{1: 2},
	})
	require.NoError(t, err)

	got, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"id":      7.0,
		"tags":    []any{"a", "b"},
		"at":      "2024-01-02T03:04:05Z",
		"ordered": map[string]any{"k": 1.0},
		"counts":  map[string]any{"1": 2.0},
	}, got)
}

func TestCodec_Scalars(t *testing.T) {
	for _, v := range []any{nil, "x", true} {
		b, err := Encode(v)
		require.NoError(t, err)
		got, err := Decode(b)
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestDecode_Invalid(t *testing.T) {
	_, err := Decode([]byte("{"))
	require.Error(t, err)
}

func TestEncode_Compact(t *testing.T) {
	b, err := Encode(map[string]any{"a": 1, "b": []any{"x", nil}})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1,"b":["x",null]}`, string(b))
}
